package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DOPPLER_PROJECT", "pawtraits-test-missing")
	t.Setenv("PATH", "")

	cfg := LoadConfig()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "10", cfg.Referral.DiscountPercent)
	assert.Equal(t, "10.00", cfg.Referral.CustomerCreditRate)
	assert.Equal(t, 3, cfg.RateLimit.PortraitLimit)
	assert.Equal(t, 3600, cfg.RateLimit.PortraitWindow)
	assert.Equal(t, "change-me-in-production", cfg.JWT.Secret)
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("PATH", "")
	t.Setenv("PORT", "9090")
	t.Setenv("RATE_LIMIT_PORTRAIT_LIMIT", "5")
	t.Setenv("RATE_LIMIT_IP_BURST", "not-a-number")
	t.Setenv("JWT_SECRET", "jwt-from-env")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_test")
	t.Setenv("STORAGE_USE_SSL", "true")
	t.Setenv("ENVIRONMENT", "production")

	cfg := LoadConfig()

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 5, cfg.RateLimit.PortraitLimit)
	assert.Equal(t, 40, cfg.RateLimit.IPBurst)
	assert.Equal(t, "jwt-from-env", cfg.JWT.Secret)
	assert.Equal(t, "whsec_test", cfg.Stripe.WebhookSecret)
	assert.True(t, cfg.Storage.UseSSL)
	assert.True(t, cfg.IsProduction())
}
