package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (STOREFRONT_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"HTTP listen address"`
	StoreName    string `default:"Paper & Pen Co." usage:"Store name shown in the header and on the home page" flag:"store-name"`
	Tagline      string `default:"Your one-stop shop for premium stationery." usage:"Tagline shown on the home page"`
	CatalogFile  string `default:"" usage:"Path to a JSON product catalog; empty uses the built-in catalog" flag:"catalog-file"`
	ImageBaseURL string `default:"" usage:"Base URL for relative product image paths (e.g. https://cdn.example.com/images)" flag:"image-base-url"`
	Session      SessionConfig
	RateLimit    RateLimitConfig
	Graceful     GracefulConfig
}

// SessionConfig controls visitor sessions and their carts.
type SessionConfig struct {
	CookieName  string        `default:"storefront_session" usage:"Session cookie name" flag:"session-cookie"`
	IdleTimeout time.Duration `default:"30m" usage:"Idle time after which a session and its cart are discarded" flag:"session-idle-timeout"`
	Secure      bool          `default:"false" usage:"Send the session cookie over HTTPS only" flag:"session-secure"`
	MaxActive   int           `default:"10000" usage:"Active sessions above which the service reports not ready" flag:"session-max-active"`
}

// RateLimitConfig controls the per-client sliding window rate limiter
// applied to cart mutations.
type RateLimitConfig struct {
	Max    int           `default:"60" usage:"Max mutating requests per window"`
	Window time.Duration `default:"1m" usage:"Rate limit window duration"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, flags and YAML
// config files, and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	return loadConfig(aconfig.Config{
		EnvPrefix: "STOREFRONT",
		Files:     []string{"config.yaml", "/etc/storefront/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
}

func loadConfig(ac aconfig.Config) (*Config, error) {
	var cfg Config
	if err := aconfig.LoaderFor(&cfg, ac).Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports settings the service cannot start with.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return errors.New("listen address is required")
	case c.Session.IdleTimeout <= 0:
		return errors.Errorf("session idle timeout must be positive, got %s", c.Session.IdleTimeout)
	case c.Session.MaxActive < 1:
		return errors.Errorf("session max active must be at least 1, got %d", c.Session.MaxActive)
	case c.RateLimit.Max < 1:
		return errors.Errorf("rate limit max must be at least 1, got %d", c.RateLimit.Max)
	case c.RateLimit.Window <= 0:
		return errors.Errorf("rate limit window must be positive, got %s", c.RateLimit.Window)
	}
	return nil
}

// applyPlatformDefaults maps the PORT variable set by hosting platforms
// (Railway, Render, etc.) onto the listen address when Addr was not changed.
func (c *Config) applyPlatformDefaults() {
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}
