package portrait

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildVariationPrompt(t *testing.T) {
	prompt, err := BuildVariationPrompt(Request{
		Style:        "Royal",
		PetName:      "Bella",
		Species:      "dog",
		Breed:        "Cavalier King Charles",
		Instructions: "add a tiny crown",
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(prompt, "Transform the attached photo of a Cavalier King Charles dog named Bella into a regal court portrait"))
	assert.Contains(t, prompt, "crimson, royal blue and polished gold")
	assert.Contains(t, prompt, "preserve its markings")
	assert.True(t, strings.HasSuffix(prompt, "Additional customer requests: add a tiny crown"))
}

func TestBuildVariationPrompt_Defaults(t *testing.T) {
	prompt, err := BuildVariationPrompt(Request{Style: "pop-art"})
	require.NoError(t, err)
	assert.Contains(t, prompt, "photo of a pet into a bold pop art print")
	assert.NotContains(t, prompt, "named")
	assert.NotContains(t, prompt, "Additional customer requests")
}

func TestBuildVariationPrompt_Errors(t *testing.T) {
	_, err := BuildVariationPrompt(Request{Style: "cubist"})
	assert.ErrorIs(t, err, ErrUnknownStyle)

	_, err = BuildVariationPrompt(Request{Style: "watercolor", Instructions: strings.Repeat("x", maxInstructionsLength+1)})
	assert.ErrorIs(t, err, ErrInstructionsTooLong)
}

func TestBuildVariationPrompt_TruncatesLongNames(t *testing.T) {
	prompt, err := BuildVariationPrompt(Request{Style: "cartoon", PetName: strings.Repeat("n", 80)})
	require.NoError(t, err)
	assert.Contains(t, prompt, "named "+strings.Repeat("n", maxPetNameLength)+" into")
}

func TestStyles(t *testing.T) {
	assert.Equal(t, []string{"cartoon", "pencil_sketch", "pop_art", "renaissance", "royal", "watercolor"}, Styles())
}
