package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	t.Setenv("QUEUE_BACKEND", "memory")

	cfg, err := Parse()
	require.NoError(t, err)
	assert.Equal(t, "8081", cfg.HTTPPort)
	assert.Equal(t, "Asia/Jakarta", cfg.Timezone)
	assert.Equal(t, 5*time.Minute, cfg.StatsCacheTTL)
	assert.Equal(t, 120, cfg.RateLimitPerMin)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.False(t, cfg.CloudinaryEnabled())
	assert.Equal(t, "Asia/Jakarta", cfg.Location().String())
}

func TestParseOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("JWT_SIGNING_KEY", "prod-jwt-key")
	t.Setenv("QR_SIGNING_KEY", "prod-qr-key")
	t.Setenv("QUEUE_BACKEND", "rabbitmq")
	t.Setenv("ACCESS_TTL", "30m")
	t.Setenv("CLOUDINARY_CLOUD_NAME", "demo")
	t.Setenv("CLOUDINARY_API_KEY", "key")
	t.Setenv("CLOUDINARY_API_SECRET", "secret")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Parse()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.Equal(t, 30*time.Minute, cfg.AccessTTL)
	assert.True(t, cfg.CloudinaryEnabled())
}

func TestParseRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{name: "unknown queue backend", key: "QUEUE_BACKEND", val: "kafka"},
		{name: "bad timezone", key: "APP_TIMEZONE", val: "Mars/Olympus"},
		{name: "bad duration", key: "ACCESS_TTL", val: "soon"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := Parse()
			assert.Error(t, err)
		})
	}
}

func TestParseRejectsDevKeysInProduction(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("QR_SIGNING_KEY", "prod-qr-key")
	_, err := Parse()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SIGNING_KEY")

	t.Setenv("JWT_SIGNING_KEY", "prod-jwt-key")
	t.Setenv("QR_SIGNING_KEY", devQRSigningKey)
	_, err = Parse()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "QR_SIGNING_KEY")

	t.Setenv("QR_SIGNING_KEY", "prod-qr-key")
	_, err = Parse()
	assert.NoError(t, err)
}
