package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/shopkart/internal/domain/settings"
	"github.com/xenking/shopkart/internal/events"
	"github.com/xenking/shopkart/internal/storage/rediscache"
)

// Config holds the complete application configuration, loadable from
// environment variables (SHOPKART_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (SHOPKART_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	ImageBaseURL string `default:"" usage:"Base URL for product images" flag:"image-base-url"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing (SHOPKART_API_KEY_PEPPER)" flag:"api-key-pepper"`
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
	Redis        RedisConfig
	Kafka        events.Config
	Shipping     ShippingConfig
}

// RateLimitConfig controls the per-client rate limiter. With Redis enabled
// the counters are shared between replicas.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// RedisConfig enables the settings cache and shared rate limiting.
type RedisConfig struct {
	Addr        string        `default:"" usage:"Redis address; caching is disabled when empty"`
	Password    string        `default:"" usage:"Redis password"`
	DB          int           `default:"0" usage:"Redis database"`
	PoolSize    int           `default:"10" usage:"Redis connection pool size"`
	PoolTimeout time.Duration `default:"4s" usage:"Redis pool wait timeout"`
	SettingsTTL time.Duration `default:"5m" usage:"Settings cache TTL"`
}

// Client returns the connection part of the configuration.
func (c RedisConfig) Client() rediscache.Config {
	return rediscache.Config{
		Addr:        c.Addr,
		Password:    c.Password,
		DB:          c.DB,
		PoolSize:    c.PoolSize,
		PoolTimeout: c.PoolTimeout,
	}
}

// ShippingConfig is the flat shipping policy.
type ShippingConfig struct {
	FreeThreshold string `default:"100" usage:"Subtotal above which shipping is free"`
	FlatFee       string `default:"15" usage:"Shipping fee below the threshold"`
}

// Policy parses the configured amounts.
func (c ShippingConfig) Policy() (settings.ShippingPolicy, error) {
	threshold, err := decimal.NewFromString(c.FreeThreshold)
	if err != nil {
		return settings.ShippingPolicy{}, errors.Wrap(err, "free threshold")
	}
	fee, err := decimal.NewFromString(c.FlatFee)
	if err != nil {
		return settings.ShippingPolicy{}, errors.Wrap(err, "flat fee")
	}
	if threshold.IsNegative() || fee.IsNegative() {
		return settings.ShippingPolicy{}, errors.New("shipping amounts must not be negative")
	}
	return settings.ShippingPolicy{FreeThreshold: threshold, FlatFee: fee}, nil
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "SHOPKART",
		Files:     []string{"config.yaml", "/etc/shopkart/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set SHOPKART_DATABASE_URL or DATABASE_URL")
	}
	if _, err := cfg.Shipping.Policy(); err != nil {
		return nil, errors.Wrap(err, "shipping")
	}

	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's SHOPKART_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if c.Redis.Addr == "" {
		if v := os.Getenv("REDIS_ADDR"); v != "" {
			c.Redis.Addr = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
