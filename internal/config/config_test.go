package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("EMAIL_PROVIDER", "")
	t.Setenv("LOG_RETENTION", "")
	t.Setenv("STORAGE", "")
	t.Setenv("SEND_IP_RATE_LIMIT", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "smtp", cfg.EmailProvider)
	assert.Equal(t, 30*24*time.Hour, cfg.LogRetention)
	assert.Equal(t, 1025, cfg.SMTPPort)
	assert.True(t, cfg.SMTPInsecureSkipVerify)
	assert.Equal(t, "postgres", cfg.Storage)
	assert.Equal(t, 600, cfg.SendIPRateLimit)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("EMAIL_PROVIDER", "SES")
	t.Setenv("SEND_TIMEOUT", "5s")
	t.Setenv("SMTP_PORT", "2525")
	t.Setenv("SEND_IP_RATE_LIMIT", "0")
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.example , ,https://b.example")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "ses", cfg.EmailProvider)
	assert.Equal(t, 5*time.Second, cfg.SendTimeout)
	assert.Equal(t, 2525, cfg.SMTPPort)
	assert.Zero(t, cfg.SendIPRateLimit)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
}

func TestLoad_RejectsUnknownProvider(t *testing.T) {
	t.Setenv("EMAIL_PROVIDER", "brevo")
	_, err := Load()
	require.Error(t, err)
}

func TestLocation_Fallbacks(t *testing.T) {
	assert.Equal(t, time.Local, Config{}.Location())
	assert.Equal(t, time.Local, Config{PurgeTimezone: "Nowhere/Invalid"}.Location())
	assert.Equal(t, "UTC", Config{PurgeTimezone: "UTC"}.Location().String())
}

func TestLoad_Storage(t *testing.T) {
	t.Setenv("STORAGE", "Memory")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Storage)

	t.Setenv("STORAGE", "sqlite")
	_, err = Load()
	require.Error(t, err)
}
