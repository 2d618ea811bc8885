// Package config loads the storefront client configuration.
//
// Values are layered: built-in defaults, then an optional YAML file, then
// .env files, then the process environment. Later layers win.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/vetclinic/storefront/internal/httputil"
	"github.com/vetclinic/storefront/internal/remote"
	"github.com/vetclinic/storefront/pkg/logger"
)

// DefaultPath is the YAML file read when no path is given and it exists.
const DefaultPath = "storefront.yaml"

// Config is the full client configuration.
type Config struct {
	API     APIConfig     `yaml:"api"`
	Cache   CacheConfig   `yaml:"cache"`
	Session SessionConfig `yaml:"session"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
	Cart    CartConfig    `yaml:"cart"`

	// Demo runs against a built-in catalog with no server.
	Demo bool `yaml:"demo" env:"STOREFRONT_DEMO"`
}

// APIConfig locates the storefront REST services.
type APIConfig struct {
	BaseURL string `yaml:"base_url" env:"STOREFRONT_API_URL"`
	// Per-service overrides; empty means BaseURL.
	CartURL    string `yaml:"cart_url" env:"STOREFRONT_CART_URL"`
	CatalogURL string `yaml:"catalog_url" env:"STOREFRONT_CATALOG_URL"`
	OrdersURL  string `yaml:"orders_url" env:"STOREFRONT_ORDERS_URL"`
	UsersURL   string `yaml:"users_url" env:"STOREFRONT_USERS_URL"`

	Timeout           time.Duration `yaml:"timeout" env:"STOREFRONT_API_TIMEOUT"`
	MaxRetries        int           `yaml:"max_retries" env:"STOREFRONT_API_MAX_RETRIES"`
	RequestsPerSecond float64       `yaml:"requests_per_second" env:"STOREFRONT_API_RPS"`
	Burst             int           `yaml:"burst" env:"STOREFRONT_API_BURST"`
	UserAgent         string        `yaml:"user_agent" env:"STOREFRONT_USER_AGENT"`
}

// CacheConfig configures the catalog cache.
type CacheConfig struct {
	// RedisURL selects Redis; empty keeps the cache in memory.
	RedisURL   string        `yaml:"redis_url" env:"STOREFRONT_REDIS_URL"`
	Prefix     string        `yaml:"prefix" env:"STOREFRONT_CACHE_PREFIX"`
	CatalogTTL time.Duration `yaml:"catalog_ttl" env:"STOREFRONT_CATALOG_TTL"`
}

// SessionConfig locates the persisted session.
type SessionConfig struct {
	File string `yaml:"file" env:"STOREFRONT_SESSION_FILE"`
}

// LogConfig configures pkg/logger.
type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Addr string `yaml:"addr" env:"STOREFRONT_METRICS_ADDR"`
}

// CartConfig holds cart limits.
type CartConfig struct {
	MaxPerAdd int `yaml:"max_per_add" env:"STOREFRONT_MAX_PER_ADD"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:    "http://localhost:3000",
			Timeout:    15 * time.Second,
			MaxRetries: 2,
			UserAgent:  "storefront-cli",
		},
		Cache: CacheConfig{
			Prefix:     "storefront:",
			CatalogTTL: 5 * time.Minute,
		},
		Session: SessionConfig{File: defaultSessionFile()},
		Log:     LogConfig{Level: "info", Format: "text"},
		Cart:    CartConfig{MaxPerAdd: 10},
	}
}

func defaultSessionFile() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		return ".storefront-session.json"
	}
	return filepath.Join(dir, "storefront", "session.json")
}

// Load builds the configuration. path names a YAML file; when empty,
// DefaultPath is read if present. envFiles are loaded into the environment
// first; missing ones are skipped.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	if err := cfg.loadYAML(path); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	for _, f := range envFiles {
		if f == "" {
			continue
		}
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: load %s: %w", f, err)
		}
	}

	if err := envdecode.Decode(cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("config: decode environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// Validate checks URLs and ranges.
func (c *Config) Validate() error {
	if !c.Demo {
		if err := checkURL("api.base_url", c.API.BaseURL, true); err != nil {
			return err
		}
	}
	overrides := map[string]string{
		"api.cart_url":    c.API.CartURL,
		"api.catalog_url": c.API.CatalogURL,
		"api.orders_url":  c.API.OrdersURL,
		"api.users_url":   c.API.UsersURL,
	}
	for name, v := range overrides {
		if err := checkURL(name, v, false); err != nil {
			return err
		}
	}

	if c.API.Timeout < 0 {
		return fmt.Errorf("config: api.timeout must not be negative")
	}
	if c.API.MaxRetries < -1 || c.API.MaxRetries > 10 {
		return fmt.Errorf("config: api.max_retries must be between -1 and 10")
	}
	if c.API.RequestsPerSecond < 0 {
		return fmt.Errorf("config: api.requests_per_second must not be negative")
	}
	if c.Cache.CatalogTTL < 0 {
		return fmt.Errorf("config: cache.catalog_ttl must not be negative")
	}
	if c.Cache.RedisURL != "" && !strings.HasPrefix(c.Cache.RedisURL, "redis://") && !strings.HasPrefix(c.Cache.RedisURL, "rediss://") {
		return fmt.Errorf("config: cache.redis_url must use redis:// or rediss://")
	}
	if c.Cart.MaxPerAdd < 0 {
		return fmt.Errorf("config: cart.max_per_add must not be negative")
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("config: log.format must be text or json")
	}
	return nil
}

func checkURL(name, raw string, required bool) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if required {
			return fmt.Errorf("config: %s is required", name)
		}
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("config: %s must be an http(s) URL", name)
	}
	return nil
}

// HTTP returns the REST client configuration.
func (c *Config) HTTP(token httputil.TokenFunc, log *logger.Logger) httputil.Config {
	return httputil.Config{
		BaseURL:           c.API.BaseURL,
		Token:             token,
		Timeout:           c.API.Timeout,
		MaxRetries:        c.API.MaxRetries,
		RequestsPerSecond: c.API.RequestsPerSecond,
		Burst:             c.API.Burst,
		UserAgent:         c.API.UserAgent,
		Logger:            log,
	}
}

// Endpoints returns the per-service overrides.
func (c *Config) Endpoints() remote.Endpoints {
	return remote.Endpoints{
		Cart:    c.API.CartURL,
		Catalog: c.API.CatalogURL,
		Orders:  c.API.OrdersURL,
		Users:   c.API.UsersURL,
	}
}

// Logger returns the logger configuration for component.
func (c *Config) Logger(component string) logger.Config {
	return logger.Config{Level: c.Log.Level, Format: c.Log.Format, Component: component}
}
