package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the complete application configuration, loadable from
// environment variables (ORDERS_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (ORDERS_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	ImageBaseURL string `default:"" usage:"Base URL for restaurant and food images" flag:"image-base-url"`
	Kafka        KafkaConfig
	PartyCache   PartyCacheConfig
	RateLimit    RateLimitConfig
	Orders       OrdersConfig
	Graceful     GracefulConfig
}

// KafkaConfig controls order event publishing. Events are dropped when no
// brokers are set.
type KafkaConfig struct {
	Brokers string `default:"" usage:"Comma separated Kafka brokers"`
	Topic   string `default:"orders.events" usage:"Topic order events are written to"`
	Async   bool   `default:"false" usage:"Write events without waiting for acks"`
	// Required gates readiness on broker reachability.
	Required bool `default:"false" usage:"Report not ready while no broker is reachable"`
}

// PartyCacheConfig sizes the admin/user lookup cache.
type PartyCacheConfig struct {
	Size int           `default:"10000" usage:"Max cached admin and user lookups"`
	TTL  time.Duration `default:"1m" usage:"Lifetime of a cached lookup"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
	Keys   int           `default:"10000" usage:"Max tracked clients"`
}

// OrdersConfig bounds order listings.
type OrdersConfig struct {
	DefaultLimit int `default:"20" usage:"Page size when none is requested"`
	MaxLimit     int `default:"100" usage:"Largest page size a caller may request"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	return loadConfig(os.Args[1:])
}

func loadConfig(args []string) (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "ORDERS",
		Args:      args,
		Files:     []string{"config.yaml", "/etc/orders/config.yaml"},
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
	switch {
	case c.DatabaseURL == "":
		return errors.New("database URL is required: set ORDERS_DATABASE_URL or DATABASE_URL")
	case c.Orders.DefaultLimit <= 0 || c.Orders.MaxLimit < c.Orders.DefaultLimit:
		return errors.Errorf("invalid page limits: default %d, max %d", c.Orders.DefaultLimit, c.Orders.MaxLimit)
	case c.RateLimit.Max <= 0 || c.RateLimit.Window <= 0:
		return errors.New("rate limit max and window must be positive")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's ORDERS_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
