package utils

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", time.Hour)
	id := uuid.New()

	tok, err := issuer.Generate(id, SubjectPartner, "shop@example.com", false)
	require.NoError(t, err)
	assert.Equal(t, "Bearer", tok.TokenType)
	assert.Equal(t, int64(3600), tok.ExpiresIn)

	claims, err := issuer.Validate(tok.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, id, claims.SubjectID)
	assert.Equal(t, SubjectPartner, claims.UserType)
	assert.False(t, claims.IsAdmin)
}

func TestTokenRejectsOtherSecretAndExpiry(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", time.Hour)
	tok, err := issuer.Generate(uuid.New(), SubjectAdmin, "ops@example.com", true)
	require.NoError(t, err)

	_, err = NewTokenIssuer("other-secret", time.Hour).Validate(tok.AccessToken)
	assert.Error(t, err)

	expired := NewTokenIssuer("test-secret", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, err := expired.Generate(uuid.New(), SubjectPartner, "a@example.com", false)
	require.NoError(t, err)
	_, err = issuer.Validate(old.AccessToken)
	assert.Error(t, err)
}

func TestVerifyStripeSignature(t *testing.T) {
	payload := []byte(`{"type":"payment_intent.succeeded"}`)
	now := time.Unix(1_700_000_000, 0)
	header := SignStripePayload(payload, "whsec_test", now)

	assert.NoError(t, VerifyStripeSignature(payload, header, "whsec_test", 5*time.Minute, now.Add(time.Minute)))
	assert.ErrorIs(t, VerifyStripeSignature(payload, header, "whsec_other", 5*time.Minute, now), ErrInvalidSignature)
	assert.ErrorIs(t, VerifyStripeSignature([]byte(`{}`), header, "whsec_test", 5*time.Minute, now), ErrInvalidSignature)
	assert.ErrorIs(t, VerifyStripeSignature(payload, header, "whsec_test", 5*time.Minute, now.Add(10*time.Minute)), ErrSignatureTimestamp)
	assert.ErrorIs(t, VerifyStripeSignature(payload, "", "whsec_test", 0, now), ErrMissingSignature)
	assert.ErrorIs(t, VerifyStripeSignature(payload, "t=abc,v1=00", "whsec_test", 0, now), ErrMissingSignature)
}

func TestVerifyStripeSignatureAcceptsAnyV1(t *testing.T) {
	payload := []byte(`{}`)
	now := time.Unix(1_700_000_000, 0)
	good := SignStripePayload(payload, "whsec_new", now)
	header := good + ",v1=deadbeef"

	assert.NoError(t, VerifyStripeSignature(payload, header, "whsec_new", 0, now))
}
