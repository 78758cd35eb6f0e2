package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds the complete application configuration, loadable from
// environment variables (KART_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (KART_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing" flag:"api-key-pepper"`
	// BootstrapAPIKey is registered with write scope on startup. Without it a
	// memory store has no way to authorize writes.
	BootstrapAPIKey string `usage:"Raw API key registered with write scope at startup" flag:"bootstrap-api-key"`
	Storage         StorageConfig
	RateLimit       RateLimitConfig
	CORS            CORSConfig
	Graceful        GracefulConfig
}

// StorageConfig selects the repository implementation.
type StorageConfig struct {
	Driver string `default:"postgres" usage:"Storage driver: postgres or memory"`
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

// LoadConfig loads configuration from flags, environment and YAML files.
func LoadConfig() (*Config, error) {
	return loadConfig(aconfig.Config{
		EnvPrefix: "KART",
		Files:     []string{"config.yaml", "/etc/kart/config.yaml"},
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

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("database URL is required: set KART_DATABASE_URL or DATABASE_URL")
		}
	case DriverMemory:
	default:
		return errors.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.RateLimit.Max <= 0 || c.RateLimit.Window <= 0 {
		return errors.New("rate limit max and window must be positive")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided DATABASE_URL and PORT to the
// KART_ configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
