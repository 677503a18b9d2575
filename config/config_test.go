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

func chdirTemp(t *testing.T, yaml string) {
	t.Helper()
	dir := t.TempDir()
	if yaml != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))
	}
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoadFromFileWithDefaults(t *testing.T) {
	chdirTemp(t, `
database:
  dsn: "file:test.db"
  driver: sqlite
jwt:
  secret: s3cret
payment:
  webhook_secret: whsec
`)
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 24*time.Hour, cfg.Redis.ProcessedTTL)
	assert.Equal(t, 5*time.Minute, cfg.Payment.WebhookTolerance)
	assert.Equal(t, "featured", cfg.Promotion.DefaultTier)

	prices, err := cfg.Promotion.Prices()
	require.NoError(t, err)
	assert.True(t, prices["featured"].Equal(decimal.RequireFromString("4.99")))
	assert.True(t, prices["spotlight"].Equal(decimal.RequireFromString("9.99")))
}

func TestLoadEnvOverrides(t *testing.T) {
	chdirTemp(t, "")
	t.Setenv("DATABASE_DSN", "file:env.db")
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("PAYMENT_WEBHOOK_SECRET", "whsec-env")
	t.Setenv("SERVER_PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "file:env.db", cfg.Database.DSN)
	assert.Equal(t, "from-env", cfg.JWT.Secret)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestLoadRequiresSecrets(t *testing.T) {
	chdirTemp(t, `
database:
  dsn: "file:test.db"
`)
	_, err := Load()
	assert.ErrorContains(t, err, "jwt.secret")
}

func TestPricesRejectsBadTier(t *testing.T) {
	_, err := PromotionConfig{Tiers: map[string]string{"featured": "abc"}}.Prices()
	assert.Error(t, err)

	_, err = PromotionConfig{Tiers: map[string]string{"featured": "0"}}.Prices()
	assert.Error(t, err)
}

func TestBrokerList(t *testing.T) {
	assert.Nil(t, KafkaConfig{}.BrokerList())
	assert.Equal(t, []string{"a:9092", "b:9092"}, KafkaConfig{Brokers: " a:9092, ,b:9092"}.BrokerList())
}
