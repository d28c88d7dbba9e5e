package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/Veraticus/storefront-checkout/internal/common"
)

// Store drivers.
const (
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
	DriverMemory = "memory"
)

// Config holds every setting the checkout client reads.
type Config struct {
	Backend   BackendConfig
	Tokenizer TokenizerConfig
	Store     StoreConfig
	Logging   LoggingConfig
	ProductID string
}

// BackendConfig locates the transaction backend.
type BackendConfig struct {
	URL     string
	Timeout time.Duration
}

// TokenizerConfig locates the card tokenization service.
type TokenizerConfig struct {
	URL       string
	PublicKey string
}

// StoreConfig selects the durable store.
type StoreConfig struct {
	Driver    string
	Path      string
	RedisAddr string
	Namespace string
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string
	Format string
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("backend.url", "http://localhost:3000")
	v.SetDefault("backend.timeout", 30*time.Second)
	v.SetDefault("tokenizer.url", "https://api-sandbox.co.uat.wompi.dev")
	v.SetDefault("store.driver", DriverSQLite)
	v.SetDefault("store.path", filepath.Join(DefaultDataDir(), "checkout.db"))
	v.SetDefault("store.redis_addr", "localhost:6379")
	v.SetDefault("store.namespace", "checkout")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// LoadDotEnv loads variables from a .env file into the process environment.
// A missing file is not an error; existing variables are not overridden.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// Load builds a Config from v.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Backend: BackendConfig{
			URL:     v.GetString("backend.url"),
			Timeout: v.GetDuration("backend.timeout"),
		},
		Tokenizer: TokenizerConfig{
			URL:       v.GetString("tokenizer.url"),
			PublicKey: v.GetString("tokenizer.public_key"),
		},
		Store: StoreConfig{
			Driver:    v.GetString("store.driver"),
			Path:      ExpandPath(v.GetString("store.path")),
			RedisAddr: v.GetString("store.redis_addr"),
			Namespace: v.GetString("store.namespace"),
		},
		Logging: LoggingConfig{
			Level:  v.GetString("logging.level"),
			Format: v.GetString("logging.format"),
		},
		ProductID: v.GetString("checkout.product_id"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings needed by every command.
func (c *Config) Validate() error {
	if c.Backend.URL == "" {
		return fmt.Errorf("%w: backend.url", common.ErrMissingConfig)
	}
	if err := validateURL(c.Backend.URL, "backend.url"); err != nil {
		return err
	}
	if c.Backend.Timeout <= 0 {
		return fmt.Errorf("%w: backend.timeout must be positive", common.ErrInvalidConfig)
	}

	switch c.Store.Driver {
	case DriverSQLite:
		if c.Store.Path == "" {
			return fmt.Errorf("%w: store.path", common.ErrMissingConfig)
		}
	case DriverRedis:
		if c.Store.RedisAddr == "" {
			return fmt.Errorf("%w: store.redis_addr", common.ErrMissingConfig)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("%w: unknown store.driver %q", common.ErrInvalidConfig, c.Store.Driver)
	}

	if _, err := common.ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	return nil
}

// ValidatePayment checks the extra settings needed to submit a card.
func (c *Config) ValidatePayment() error {
	if c.Tokenizer.URL == "" {
		return fmt.Errorf("%w: tokenizer.url", common.ErrMissingConfig)
	}
	if err := validateURL(c.Tokenizer.URL, "tokenizer.url"); err != nil {
		return err
	}
	if c.Tokenizer.PublicKey == "" {
		return fmt.Errorf("%w: tokenizer.public_key", common.ErrMissingConfig)
	}
	return nil
}

func validateURL(raw, key string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: %s is not an absolute URL: %q", common.ErrInvalidConfig, key, raw)
	}
	return nil
}
