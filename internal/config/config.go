package config

import (
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Queue     QueueConfig     `mapstructure:"queue"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	IPAllow   IPAllowConfig   `mapstructure:"ipallow"`
	Exchanges ExchangesConfig `mapstructure:"exchanges"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Vault     VaultConfig     `mapstructure:"vault"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
}

type AuthConfig struct {
	// JWTSecret signs the broker bearer tokens issued by the workspace admin.
	JWTSecret string `mapstructure:"jwt_secret"`
	// WebhookSecret is the default HMAC signing secret for webhook sources
	// that do not carry a per-instance secret.
	WebhookSecret string `mapstructure:"webhook_secret"`
	// SharedSecretField names the optional body field carrying a shared secret.
	SharedSecretField string `mapstructure:"shared_secret_field"`
	// MaxSkewMs bounds the accepted signature timestamp drift.
	MaxSkewMs int64 `mapstructure:"max_skew_ms"`
}

type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type QueueConfig struct {
	Name          string `mapstructure:"name"`
	MaxAttempts   int    `mapstructure:"max_attempts"`
	BackoffBaseMs int    `mapstructure:"backoff_base_ms"`
	BackoffCapMs  int    `mapstructure:"backoff_cap_ms"`
	Concurrency   int    `mapstructure:"concurrency"`
}

type RateLimitConfig struct {
	WebhookPerMinute int `mapstructure:"webhook_per_minute"`
	BrokerPerMinute  int `mapstructure:"broker_per_minute"`
}

type IPAllowConfig struct {
	// Sources is a comma-separated list of IPs / IPv4 CIDRs.
	Sources string `mapstructure:"sources"`
	// File points at an optional newline-separated allowlist file.
	File string `mapstructure:"file"`
	// ReloadMinutes is the file reload interval; values below 5 are clamped.
	ReloadMinutes int `mapstructure:"reload_minutes"`
	// DevBypass allows all sources when no list is configured at all.
	DevBypass bool `mapstructure:"dev_bypass"`
}

type ExchangesConfig struct {
	Sandbox          bool   `mapstructure:"sandbox"`
	TimeoutMs        int    `mapstructure:"timeout_ms"`
	MaxQty           string `mapstructure:"max_qty"`
	KiteBaseURL      string `mapstructure:"kite_base_url"`
	BinanceBaseURL   string `mapstructure:"binance_base_url"`
	BitgetBaseURL    string `mapstructure:"bitget_base_url"`
	DefaultExchange  string `mapstructure:"default_exchange"`
	KiteDefaultVenue string `mapstructure:"kite_default_venue"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type VaultConfig struct {
	// Key is a hex-encoded 32 byte AES key for the local vault implementation.
	Key string `mapstructure:"key"`
}

func (q QueueConfig) BackoffBase() time.Duration {
	return time.Duration(q.BackoffBaseMs) * time.Millisecond
}

func (q QueueConfig) BackoffCap() time.Duration {
	return time.Duration(q.BackoffCapMs) * time.Millisecond
}

func (e ExchangesConfig) Timeout() time.Duration {
	return time.Duration(e.TimeoutMs) * time.Millisecond
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./configs")

	// Environment variables support
	// e.g. SIGNALGATE_AUTH_JWT_SECRET
	viper.SetEnvPrefix("signalgate")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("auth.shared_secret_field", "secret")
	viper.SetDefault("auth.max_skew_ms", 300000)
	viper.SetDefault("queue.name", "signals")
	viper.SetDefault("queue.max_attempts", 5)
	viper.SetDefault("queue.backoff_base_ms", 1000)
	viper.SetDefault("queue.backoff_cap_ms", 60000)
	viper.SetDefault("queue.concurrency", 3)
	viper.SetDefault("ratelimit.webhook_per_minute", 60)
	viper.SetDefault("ratelimit.broker_per_minute", 120)
	viper.SetDefault("ipallow.reload_minutes", 5)
	viper.SetDefault("exchanges.timeout_ms", 8000)
	viper.SetDefault("exchanges.max_qty", "1000000")
	viper.SetDefault("exchanges.kite_base_url", "https://api.kite.trade")
	viper.SetDefault("exchanges.binance_base_url", "https://api.binance.com")
	viper.SetDefault("exchanges.bitget_base_url", "https://api.bitget.com")
	viper.SetDefault("exchanges.kite_default_venue", "NSE")
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("No config file found, using defaults and env vars")
		} else {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
