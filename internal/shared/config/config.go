package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Log        LogConfig        `mapstructure:"log"`
	Gateway    GatewayConfig    `mapstructure:"gateway"`
	Callback   CallbackConfig   `mapstructure:"callback"`
	Admin      AdminConfig      `mapstructure:"admin"`
	HTTPClient HTTPClientConfig `mapstructure:"http_client"`
	Breaker    BreakerConfig    `mapstructure:"breaker"`
	Providers  ProvidersConfig  `mapstructure:"providers"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Address      string        `mapstructure:"address"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// DatabaseConfig holds database configuration.
// Driver is either "postgres" or "sqlite"; Path is only used by sqlite.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Path            string        `mapstructure:"path"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// DSN returns the database connection string.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == "sqlite" {
		return c.Path
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisConfig holds Redis configuration. An empty address disables Redis.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Enabled reports whether a Redis address is configured.
func (c *RedisConfig) Enabled() bool {
	return c.Address != ""
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// GatewayConfig holds routing and public addressing settings.
type GatewayConfig struct {
	AppName          string        `mapstructure:"app_name"`
	DefaultProvider  string        `mapstructure:"default_provider"`
	PublicBaseURL    string        `mapstructure:"public_base_url"`
	IdempotencyTTL   time.Duration `mapstructure:"idempotency_ttl"`
	WebhookReplayTTL time.Duration `mapstructure:"webhook_replay_ttl"`
}

// CallbackConfig holds outbound platform callback settings.
type CallbackConfig struct {
	SigningSecret string        `mapstructure:"signing_secret"`
	RetryMax      int           `mapstructure:"retry_max"`
	BaseDelay     time.Duration `mapstructure:"base_delay"`
	MaxDelay      time.Duration `mapstructure:"max_delay"`
	Timeout       time.Duration `mapstructure:"timeout"`
	LegacyIV      bool          `mapstructure:"legacy_iv"`
}

// AdminConfig holds the shared secret guarding admin endpoints.
// SecretHash, when set, is a bcrypt hash and takes precedence over Secret.
type AdminConfig struct {
	Secret     string `mapstructure:"secret"`
	SecretHash string `mapstructure:"secret_hash"`
}

// HTTPClientConfig holds outbound provider HTTP settings.
type HTTPClientConfig struct {
	Timeout             time.Duration `mapstructure:"timeout"`
	DialTimeout         time.Duration `mapstructure:"dial_timeout"`
	KeepAlive           time.Duration `mapstructure:"keep_alive"`
	MaxIdleConns        int           `mapstructure:"max_idle_conns"`
	MaxIdleConnsPerHost int           `mapstructure:"max_idle_conns_per_host"`
	IdleConnTimeout     time.Duration `mapstructure:"idle_conn_timeout"`
	TLSHandshakeTimeout time.Duration `mapstructure:"tls_handshake_timeout"`
}

// BreakerConfig holds per-provider circuit breaker settings.
type BreakerConfig struct {
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
	OpenTimeout      time.Duration `mapstructure:"open_timeout"`
	HalfOpenRequests uint32        `mapstructure:"half_open_requests"`
}

// ProvidersConfig holds downstream provider credentials.
type ProvidersConfig struct {
	Brusnika BrusnikaConfig `mapstructure:"brusnika"`
	Forta    FortaConfig    `mapstructure:"forta"`
	Stripe   StripeConfig   `mapstructure:"stripe"`
}

// BrusnikaConfig holds Brusnika SBP settings.
type BrusnikaConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	APIKey     string `mapstructure:"api_key"`
	WebhookURL string `mapstructure:"webhook_url"`
}

// FortaConfig holds Forta SBP e-commerce settings.
type FortaConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	APIToken   string `mapstructure:"api_token"`
	WebhookURL string `mapstructure:"webhook_url"`
}

// StripeConfig holds Stripe settings. The adapter is registered only when APIKey is set.
type StripeConfig struct {
	APIKey        string `mapstructure:"api_key"`
	WebhookSecret string `mapstructure:"webhook_secret"`
	BaseURL       string `mapstructure:"base_url"`
}

// Load loads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/gatewayconnect")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	// GATEWAY_CALLBACK_SIGNING_SECRET -> callback.signing_secret
	v.SetEnvPrefix("GATEWAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Secrets commonly provisioned under their historical names.
	if secret := os.Getenv("RP_CALLBACK_SECRET"); secret != "" {
		cfg.Callback.SigningSecret = secret
	}
	if secret := os.Getenv("ADMIN_SECRET"); secret != "" {
		cfg.Admin.Secret = secret
	}
	if key := os.Getenv("BRUSNIKA_API_KEY"); key != "" {
		cfg.Providers.Brusnika.APIKey = key
	}
	if token := os.Getenv("FORTA_API_TOKEN"); token != "" {
		cfg.Providers.Forta.APIToken = token
	}
	if password := os.Getenv("GATEWAY_DB_PASSWORD"); password != "" {
		cfg.Database.Password = password
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/gateway.sqlite3")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.database", "gatewayconnect")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", 30*time.Minute)

	v.SetDefault("redis.address", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("gateway.app_name", "GatewayConnect")
	v.SetDefault("gateway.default_provider", "Brusnika_SBP")
	v.SetDefault("gateway.public_base_url", "http://localhost:8080")
	v.SetDefault("gateway.idempotency_ttl", 24*time.Hour)
	v.SetDefault("gateway.webhook_replay_ttl", 10*time.Minute)

	v.SetDefault("callback.signing_secret", "replace_me")
	v.SetDefault("callback.retry_max", 6)
	v.SetDefault("callback.base_delay", 500*time.Millisecond)
	v.SetDefault("callback.max_delay", 8*time.Second)
	v.SetDefault("callback.timeout", 15*time.Second)
	v.SetDefault("callback.legacy_iv", true)

	v.SetDefault("http_client.timeout", 15*time.Second)
	v.SetDefault("http_client.dial_timeout", 5*time.Second)
	v.SetDefault("http_client.keep_alive", 30*time.Second)
	v.SetDefault("http_client.max_idle_conns", 100)
	v.SetDefault("http_client.max_idle_conns_per_host", 10)
	v.SetDefault("http_client.idle_conn_timeout", 90*time.Second)
	v.SetDefault("http_client.tls_handshake_timeout", 10*time.Second)

	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.open_timeout", 30*time.Second)
	v.SetDefault("breaker.half_open_requests", 1)

	v.SetDefault("providers.brusnika.base_url", "https://api.brusnikapay.top")
	v.SetDefault("providers.brusnika.webhook_url", "")
	v.SetDefault("providers.forta.base_url", "https://pt.wallet-expert.com")
	v.SetDefault("providers.forta.webhook_url", "")
	v.SetDefault("providers.stripe.api_key", "")
	v.SetDefault("providers.stripe.webhook_secret", "")
	v.SetDefault("providers.stripe.base_url", "")
}
