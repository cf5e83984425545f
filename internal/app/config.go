package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/tiffin/internal/domain/pricing"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (TIFFIN_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (TIFFIN_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	ImageBaseURL string `default:"" usage:"Base URL for vendor and menu images" flag:"image-base-url"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing (TIFFIN_API_KEY_PEPPER)" flag:"api-key-pepper"`
	Redis        RedisConfig
	Pricing      PricingConfig
	Session      SessionConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// RedisConfig selects the durable basket store. Without a URL baskets live in
// process memory only.
type RedisConfig struct {
	URL string        `usage:"Redis URL for basket snapshots (TIFFIN_REDIS_URL or REDIS_URL)" flag:"redis-url"`
	TTL time.Duration `default:"168h" usage:"Expiry of stored baskets" flag:"redis-ttl"`
}

// PricingConfig holds the price calculator parameters.
type PricingConfig struct {
	DeliveryFee int64  `default:"40" usage:"Flat delivery fee in minor units" flag:"delivery-fee"`
	TaxRate     string `default:"0.05" usage:"Tax rate applied to the subtotal" flag:"tax-rate"`
}

// SessionConfig controls eviction of idle in-memory sessions.
type SessionConfig struct {
	IdleTimeout   time.Duration `default:"30m" usage:"Evict sessions idle for longer than this" flag:"session-idle"`
	SweepInterval time.Duration `default:"1m"  usage:"How often idle sessions are evicted" flag:"session-sweep"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
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

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "TIFFIN",
		Files:     []string{"config.yaml", "/etc/tiffin/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set TIFFIN_DATABASE_URL or DATABASE_URL")
	}
	if _, err := c.Pricing.Calculator(); err != nil {
		return err
	}
	if c.RateLimit.Max <= 0 || c.RateLimit.Window <= 0 {
		return errors.New("rate limit max and window must be positive")
	}
	return nil
}

// Calculator returns the pricing configuration with the tax rate parsed.
func (p PricingConfig) Calculator() (pricing.Config, error) {
	cfg := pricing.Config{DeliveryFee: p.DeliveryFee}
	if p.DeliveryFee < 0 {
		return cfg, errors.Errorf("delivery fee %d must not be negative", p.DeliveryFee)
	}
	if p.TaxRate == "" {
		return cfg, nil
	}
	rate, err := decimal.NewFromString(p.TaxRate)
	if err != nil {
		return cfg, errors.Wrapf(err, "parse tax rate %q", p.TaxRate)
	}
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return cfg, errors.Errorf("tax rate %s must be in [0, 1)", rate)
	}
	cfg.TaxRate = rate
	return cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's TIFFIN_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if c.Redis.URL == "" {
		c.Redis.URL = os.Getenv("REDIS_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}
