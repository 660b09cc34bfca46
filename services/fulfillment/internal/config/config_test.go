package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, 8013, cfg.HTTPPort)
	assert.Equal(t, "fulfillment_db", cfg.PostgresDB)
	assert.Equal(t, 3, cfg.OCCMaxAttempts)
	assert.Equal(t, 300, cfg.SummaryCacheTTL)
	assert.Equal(t, "USD", cfg.DefaultCurrency)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "http://localhost:8001", cfg.CatalogServiceURL)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	assert.InDelta(t, 50.0, cfg.RateLimitRPS, 0)
	assert.Equal(t, 100, cfg.RateLimitBurst)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("FULFILLMENT_HTTP_PORT", "9100")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("OCC_MAX_ATTEMPTS", "5")
	t.Setenv("DEFAULT_CURRENCY", "EUR")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://shop.example.com,https://admin.example.com")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.HTTPPort)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 5, cfg.OCCMaxAttempts)
	assert.Equal(t, "EUR", cfg.DefaultCurrency)
	assert.Equal(t, "cache", cfg.RedisHost)
	assert.Equal(t, []string{"https://shop.example.com", "https://admin.example.com"}, cfg.CORSAllowedOrigins)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantErr string
	}{
		{"http port zero", "FULFILLMENT_HTTP_PORT", "0", "invalid HTTP port"},
		{"http port too large", "FULFILLMENT_HTTP_PORT", "70000", "invalid HTTP port"},
		{"redis port", "REDIS_PORT", "0", "invalid Redis port"},
		{"cache ttl", "SUMMARY_CACHE_TTL_SECONDS", "0", "SUMMARY_CACHE_TTL_SECONDS must be > 0"},
		{"idempotency ttl", "EVENT_IDEMPOTENCY_TTL_HOURS", "-1", "EVENT_IDEMPOTENCY_TTL_HOURS must be > 0"},
		{"occ attempts", "OCC_MAX_ATTEMPTS", "0", "OCC_MAX_ATTEMPTS must be >= 1"},
		{"currency", "DEFAULT_CURRENCY", "EURO", "DEFAULT_CURRENCY must be a 3-letter ISO code"},
		{"failure ratio", "CB_FAILURE_RATIO", "1.5", "CB_FAILURE_RATIO must be in"},
		{"sample rate", "OTEL_SAMPLE_RATE", "2.0", "OTEL_SAMPLE_RATE must be between 0.0 and 1.0"},
		{"rate limit", "RATE_LIMIT_RPS", "-1", "RATE_LIMIT_RPS and RATE_LIMIT_BURST must be >= 0"},
		{"catalog url", "CATALOG_SERVICE_URL", "not a url", "invalid CATALOG_SERVICE_URL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			cfg, err := Load()

			assert.Nil(t, cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_MalformedNumber(t *testing.T) {
	t.Setenv("OCC_MAX_ATTEMPTS", "three")

	cfg, err := Load()

	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load fulfillment config")
}
