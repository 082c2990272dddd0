package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("applies defaults", func(t *testing.T) {
		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, ":8080", cfg.Server.Address)
		assert.Equal(t, "sqlite", cfg.Database.Driver)
		assert.Equal(t, "Brusnika_SBP", cfg.Gateway.DefaultProvider)
		assert.Equal(t, 6, cfg.Callback.RetryMax)
		assert.Equal(t, 500*time.Millisecond, cfg.Callback.BaseDelay)
		assert.Equal(t, 8*time.Second, cfg.Callback.MaxDelay)
		assert.Equal(t, 15*time.Second, cfg.HTTPClient.Timeout)
		assert.Equal(t, "https://api.brusnikapay.top", cfg.Providers.Brusnika.BaseURL)
		assert.Equal(t, "https://pt.wallet-expert.com", cfg.Providers.Forta.BaseURL)
		assert.False(t, cfg.Redis.Enabled())
	})

	t.Run("environment overrides nested keys", func(t *testing.T) {
		t.Setenv("GATEWAY_CALLBACK_SIGNING_SECRET", "from-env")
		t.Setenv("GATEWAY_GATEWAY_DEFAULT_PROVIDER", "Forta_SBP_ECOM")
		t.Setenv("GATEWAY_REDIS_ADDRESS", "localhost:6379")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "from-env", cfg.Callback.SigningSecret)
		assert.Equal(t, "Forta_SBP_ECOM", cfg.Gateway.DefaultProvider)
		assert.True(t, cfg.Redis.Enabled())
	})

	t.Run("historical secret names win", func(t *testing.T) {
		t.Setenv("RP_CALLBACK_SECRET", "legacy")
		t.Setenv("ADMIN_SECRET", "admin")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "legacy", cfg.Callback.SigningSecret)
		assert.Equal(t, "admin", cfg.Admin.Secret)
	})
}

func TestDatabaseConfig_DSN(t *testing.T) {
	t.Run("sqlite uses path", func(t *testing.T) {
		c := DatabaseConfig{Driver: "sqlite", Path: "/tmp/x.db"}
		assert.Equal(t, "/tmp/x.db", c.DSN())
	})

	t.Run("postgres builds key value dsn", func(t *testing.T) {
		c := DatabaseConfig{Driver: "postgres", Host: "db", Port: 5432, User: "u", Password: "p", Database: "gw", SSLMode: "disable"}
		assert.Equal(t, "host=db port=5432 user=u password=p dbname=gw sslmode=disable", c.DSN())
	})
}
