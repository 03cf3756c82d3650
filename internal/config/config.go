package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the catalogq configuration.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	Cache    CacheConfig    `yaml:"cache"`
	Delegate DelegateConfig `yaml:"delegate"`
	Query    QueryConfig    `yaml:"query"`
	Hydrate  HydrateConfig  `yaml:"hydrate"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int    `yaml:"port"`
	ReadTimeoutSec  int    `yaml:"read_timeout_sec"`
	WriteTimeoutSec int    `yaml:"write_timeout_sec"`
	ShutdownSec     int    `yaml:"shutdown_timeout_sec"`
	PublicURL       string `yaml:"public_url"` // base for next/prev links; request host when empty
}

// DatabaseConfig holds relational backend settings.
type DatabaseConfig struct {
	Driver          string `yaml:"driver"` // postgres, sqlite (default: postgres)
	DSN             string `yaml:"dsn"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime string `yaml:"conn_max_lifetime"`
	PingTimeoutSec  int    `yaml:"ping_timeout_sec"`
}

// CacheConfig holds result cache settings.
type CacheConfig struct {
	Driver           string   `yaml:"driver"` // redis, valkey, none (default: none)
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	TTL              string   `yaml:"ttl"`
	KeyPrefix        string   `yaml:"key_prefix"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// DelegateConfig holds external search delegate settings.
type DelegateConfig struct {
	Enabled         bool     `yaml:"enabled"`
	BaseURL         string   `yaml:"base_url"`
	Credential      string   `yaml:"credential"`
	Timeout         string   `yaml:"timeout"`
	Retries         int      `yaml:"retries"`
	Backoff         string   `yaml:"backoff"`
	RateLimit       float64  `yaml:"rate_limit"` // requests per second, 0 = unlimited
	Burst           int      `yaml:"burst"`
	Mode            string   `yaml:"mode"` // delegate_first, relational (default: delegate_first)
	SupportedFields []string `yaml:"supported_fields"`
	Rehydrate       bool     `yaml:"rehydrate"`
}

// QueryConfig holds query execution settings.
type QueryConfig struct {
	DefaultPageSize int    `yaml:"default_page_size"`
	MaxPageSize     int    `yaml:"max_page_size"`
	SlowThreshold   string `yaml:"slow_threshold"`
	DefaultTimeout  string `yaml:"default_timeout"`
	CursorSecret    string `yaml:"cursor_secret"`
}

// HydrateConfig holds batch hydration settings.
type HydrateConfig struct {
	ChunkThreshold int `yaml:"chunk_threshold"`
	ChunkSize      int `yaml:"chunk_size"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	return LoadFile(findConfigPath(env))
}

// LoadFile reads configuration from an explicit path.
func LoadFile(configPath string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}
	return Parse(data)
}

// Parse decodes YAML config bytes, expanding ${VAR} and ${VAR:-default}.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	if c.Database.MaxOpenConns <= 0 {
		c.Database.MaxOpenConns = 20
	}
	if c.Database.MaxIdleConns <= 0 {
		c.Database.MaxIdleConns = c.Database.MaxOpenConns / 2
	}
	if c.Database.ConnMaxLifetime == "" {
		c.Database.ConnMaxLifetime = "30m"
	}
	if c.Database.PingTimeoutSec <= 0 {
		c.Database.PingTimeoutSec = 5
	}
	if c.Cache.Driver == "" {
		c.Cache.Driver = "none"
	}
	if c.Cache.TTL == "" {
		c.Cache.TTL = "5m"
	}
	if c.Cache.KeyPrefix == "" {
		c.Cache.KeyPrefix = "catalogq:"
	}
	if c.Cache.ReadinessTimeout <= 0 {
		c.Cache.ReadinessTimeout = 10
	}
	if c.Delegate.Timeout == "" {
		c.Delegate.Timeout = "2s"
	}
	if c.Delegate.Retries < 0 {
		c.Delegate.Retries = 0
	}
	if c.Delegate.Backoff == "" {
		c.Delegate.Backoff = "100ms"
	}
	if c.Delegate.Burst <= 0 {
		c.Delegate.Burst = 10
	}
	if c.Delegate.Mode == "" {
		c.Delegate.Mode = "delegate_first"
	}
	if c.Query.DefaultPageSize <= 0 {
		c.Query.DefaultPageSize = 25
	}
	if c.Query.MaxPageSize <= 0 {
		c.Query.MaxPageSize = 1000
	}
	if c.Query.SlowThreshold == "" {
		c.Query.SlowThreshold = "1s"
	}
	if c.Query.DefaultTimeout == "" {
		c.Query.DefaultTimeout = "10s"
	}
	if c.Hydrate.ChunkThreshold <= 0 {
		c.Hydrate.ChunkThreshold = 1000
	}
	if c.Hydrate.ChunkSize <= 0 {
		c.Hydrate.ChunkSize = 500
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 0 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver must be \"postgres\" or \"sqlite\", got %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	switch c.Cache.Driver {
	case "none":
	case "redis", "valkey":
		if len(c.Cache.Addrs) == 0 {
			return fmt.Errorf("cache.addrs is required for driver %q", c.Cache.Driver)
		}
	default:
		return fmt.Errorf("cache.driver must be \"redis\", \"valkey\" or \"none\", got %q", c.Cache.Driver)
	}
	if c.Delegate.Enabled && c.Delegate.BaseURL == "" {
		return fmt.Errorf("delegate.base_url is required when delegate is enabled")
	}
	switch c.Delegate.Mode {
	case "delegate_first", "relational":
	default:
		return fmt.Errorf("delegate.mode must be \"delegate_first\" or \"relational\", got %q", c.Delegate.Mode)
	}
	if c.Hydrate.ChunkSize > c.Hydrate.ChunkThreshold {
		return fmt.Errorf("hydrate.chunk_size (%d) must not exceed hydrate.chunk_threshold (%d)",
			c.Hydrate.ChunkSize, c.Hydrate.ChunkThreshold)
	}
	durations := map[string]string{
		"database.conn_max_lifetime": c.Database.ConnMaxLifetime,
		"cache.ttl":                  c.Cache.TTL,
		"delegate.timeout":           c.Delegate.Timeout,
		"delegate.backoff":           c.Delegate.Backoff,
		"query.slow_threshold":       c.Query.SlowThreshold,
		"query.default_timeout":      c.Query.DefaultTimeout,
	}
	for name, v := range durations {
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("%s: invalid duration %q", name, v)
		}
	}
	return nil
}

// Duration parses a validated duration field. Invalid values yield zero.
func Duration(v string) time.Duration {
	d, _ := time.ParseDuration(v)
	return d
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
