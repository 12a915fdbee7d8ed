package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// inTempDir runs the test from an empty directory so no stray .env is read.
func inTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("PROMOTIONS_DSN", "")
	t.Setenv("CATALOG_SEED_FILE", "")
	return dir
}

func TestLoadCheckout_Defaults(t *testing.T) {
	inTempDir(t)
	t.Setenv("CATALOG_SEED_FILE", "seed.yaml")

	cfg, err := LoadCheckout()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "checkout-api", cfg.ServiceName)
	assert.Equal(t, 5*time.Second, cfg.GatewayTimeout)
	assert.Equal(t, 5*time.Minute, cfg.PromotionsTTL)
	assert.Equal(t, "USD", cfg.Currency)
	assert.Empty(t, cfg.KafkaBrokers)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
}

func TestLoadCheckout_FromEnvironment(t *testing.T) {
	inTempDir(t)
	t.Setenv("PROMOTIONS_DSN", "postgres://localhost/shop")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("GATEWAY_TIMEOUT", "1500ms")
	t.Setenv("STORE_TIMEZONE", "America/Mexico_City")
	t.Setenv("CURRENCY", "MXN")

	cfg, err := LoadCheckout()
	require.NoError(t, err)

	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 1500*time.Millisecond, cfg.GatewayTimeout)
	assert.Equal(t, "MXN", cfg.Currency)
	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "America/Mexico_City", loc.String())
}

func TestLoadCheckout_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"no catalog source", map[string]string{}},
		{"bad timezone", map[string]string{"CATALOG_SEED_FILE": "s.yaml", "STORE_TIMEZONE": "Mars/Olympus"}},
		{"bad currency", map[string]string{"CATALOG_SEED_FILE": "s.yaml", "CURRENCY": "dollars"}},
		{"bad duration", map[string]string{"CATALOG_SEED_FILE": "s.yaml", "GATEWAY_TIMEOUT": "soon"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inTempDir(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadCheckout()
			assert.Error(t, err)
		})
	}
}

func TestLoadGateway_ReadsDotEnv(t *testing.T) {
	dir := inTempDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte("DECLINE_ABOVE=250.50\nNOTIFY_URL=http://checkout:8080/payments/notifications\n"), 0o600))
	// godotenv never overrides variables that are already set.
	t.Setenv("PORT", "7000")
	t.Cleanup(func() {
		os.Unsetenv("DECLINE_ABOVE")
		os.Unsetenv("NOTIFY_URL")
	})

	cfg, err := LoadGateway()
	require.NoError(t, err)

	assert.Equal(t, "7000", cfg.Port)
	assert.True(t, cfg.DeclineAbove.Equal(decimal.RequireFromString("250.50")))
	assert.Equal(t, "http://checkout:8080/payments/notifications", cfg.NotifyURL)
	assert.Equal(t, "payment-gateway", cfg.ServiceName)
}
