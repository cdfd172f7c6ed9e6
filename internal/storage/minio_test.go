package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPublicBase(t *testing.T) {
	assert.Equal(t, "http://localhost:9000/portraits", publicBase(Config{Endpoint: "localhost:9000", Bucket: "portraits"}))
	assert.Equal(t, "https://s3.example.com/portraits", publicBase(Config{Endpoint: "s3.example.com", Bucket: "portraits", UseSSL: true}))
	assert.Equal(t, "https://cdn.example.com", publicBase(Config{PublicBaseURL: "https://cdn.example.com/"}))
}

func TestObjectURL(t *testing.T) {
	assert.Equal(t,
		"https://cdn.example.com/variations/abc/Bella%20the%20dog.png",
		ObjectURL("https://cdn.example.com/", "variations/abc/Bella the dog.png"),
	)
}
