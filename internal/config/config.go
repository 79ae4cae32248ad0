// Package config loads and validates the reportsync YAML configuration.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by [Load] when a field is omitted.
const (
	DefaultPollInterval   = 15 * time.Minute
	DefaultPageLimit      = 20000
	DefaultLookbackMonths = 1
	DefaultMaxPages       = 10000
	DefaultRequestTimeout = 30 * time.Second
	DefaultRetries        = 3
	DefaultBaseDelay      = 100 * time.Millisecond
	DefaultMaxDelay       = 5 * time.Second
	DefaultKeyPrefix      = "reportsync:"
)

// Config holds the full application configuration loaded from YAML.
type Config struct {
	// APIURL is the reports endpoint (e.g. "https://api.example.com/reports").
	// The client appends updated_since and limit query parameters.
	APIURL string `yaml:"api_url"`

	// PollInterval controls how often the daemon runs a sync pass.
	// Minimum 1m, maximum 24h. Defaults to 15m if unset.
	PollInterval time.Duration `yaml:"poll_interval,omitempty"`

	// PageLimit is the number of records requested per page.
	PageLimit int `yaml:"page_limit,omitempty"`

	// LookbackMonths is how many calendar months a cold sync reaches back.
	LookbackMonths int `yaml:"lookback_months,omitempty"`

	// MaxPages caps the pages fetched in one pass.
	MaxPages int `yaml:"max_pages,omitempty"`

	// RequestTimeout bounds a single HTTP request, retries excluded.
	RequestTimeout time.Duration `yaml:"request_timeout,omitempty"`

	Retry   RetryConfig   `yaml:"retry,omitempty"`
	Storage StorageConfig `yaml:"storage,omitempty"`

	// Output, when set, is a file that receives the published reports as
	// a JSON array after every pass that publishes.
	Output string `yaml:"output,omitempty"`

	Log LogConfig `yaml:"log,omitempty"`

	// Telemetry configures optional OpenTelemetry export via OTLP gRPC.
	// Omit the block entirely to disable telemetry.
	Telemetry *TelemetryConfig `yaml:"telemetry,omitempty"`
}

// RetryConfig controls transport retries for page requests.
type RetryConfig struct {
	// Retries is the number of retries after the first attempt. Nil selects
	// the default of 3; 0 disables retries.
	Retries *int `yaml:"retries,omitempty"`

	BaseDelay time.Duration `yaml:"base_delay,omitempty"`
	MaxDelay  time.Duration `yaml:"max_delay,omitempty"`
}

// RetryCount returns the configured retry count.
func (r RetryConfig) RetryCount() int {
	if r.Retries == nil {
		return DefaultRetries
	}
	return *r.Retries
}

// StorageConfig selects the cache backend.
type StorageConfig struct {
	// Backend is "sqlite" (default) or "redis".
	Backend string `yaml:"backend,omitempty"`

	// Path is the SQLite database file. Defaults to
	// ~/.local/share/reportsync/cache.db.
	Path string `yaml:"path,omitempty"`

	RedisAddr     string `yaml:"redis_addr,omitempty"`
	RedisPassword string `yaml:"redis_password,omitempty"`
	RedisDB       int    `yaml:"redis_db,omitempty"`

	// KeyPrefix namespaces the Redis keys. Defaults to "reportsync:".
	KeyPrefix string `yaml:"key_prefix,omitempty"`
}

// LogConfig controls logging. Console output always goes to stderr; File
// adds a rotated JSON log.
type LogConfig struct {
	// Level is one of debug, info, warn, error. Defaults to info.
	Level string `yaml:"level,omitempty"`

	File       string `yaml:"file,omitempty"`
	MaxSizeMB  int    `yaml:"max_size_mb,omitempty"`
	MaxBackups int    `yaml:"max_backups,omitempty"`
	MaxAgeDays int    `yaml:"max_age_days,omitempty"`
}

// TelemetryConfig holds optional OpenTelemetry settings.
type TelemetryConfig struct {
	// OTLPEndpoint is the gRPC host:port of the OTLP collector (e.g. "localhost:4317").
	OTLPEndpoint string `yaml:"otlp_endpoint"`

	// Insecure disables TLS for the collector connection. Use for local collectors.
	Insecure bool `yaml:"insecure,omitempty"`

	// ServiceName overrides the OTel service.name attribute. Defaults to "reportsync".
	ServiceName string `yaml:"service_name,omitempty"`

	// Headers contains key-value pairs sent as gRPC metadata on every OTLP
	// request. Equivalent to the OTEL_EXPORTER_OTLP_HEADERS environment
	// variable. Use this for authentication tokens, e.g.:
	//   Authorization: "Bearer <token>"
	Headers map[string]string `yaml:"headers,omitempty"`
}

// DefaultPath returns the default config file path: ~/.config/reportsync/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "reportsync", "config.yaml"), nil
}

// Load reads and validates the configuration file at the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening config file %q: %w", path, err)
	}
	defer f.Close()

	var cfg Config
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true) // reject unknown keys to catch typos early
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %q: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Write saves c as YAML at path, creating parent directories. The file is
// readable by the owner only since it may hold credentials.
func (c *Config) Write(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file %q: %w", path, err)
	}
	return nil
}

// validate applies defaults and checks that all fields are well-formed.
func (c *Config) validate() error {
	if c.APIURL == "" {
		return fmt.Errorf("api_url is required")
	}
	u, err := url.ParseRequestURI(c.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("api_url %q must be a valid http or https URL", c.APIURL)
	}

	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.PollInterval < time.Minute {
		return fmt.Errorf("poll_interval %v is too short (minimum 1m)", c.PollInterval)
	}
	if c.PollInterval > 24*time.Hour {
		return fmt.Errorf("poll_interval %v is too long (maximum 24h)", c.PollInterval)
	}

	if c.PageLimit == 0 {
		c.PageLimit = DefaultPageLimit
	}
	if c.PageLimit < 0 {
		return fmt.Errorf("page_limit must be positive, got %d", c.PageLimit)
	}

	if c.LookbackMonths == 0 {
		c.LookbackMonths = DefaultLookbackMonths
	}
	if c.LookbackMonths < 0 || c.LookbackMonths > 120 {
		return fmt.Errorf("lookback_months %d is out of range (1-120)", c.LookbackMonths)
	}

	if c.MaxPages == 0 {
		c.MaxPages = DefaultMaxPages
	}
	if c.MaxPages < 0 {
		return fmt.Errorf("max_pages must be positive, got %d", c.MaxPages)
	}

	if c.RequestTimeout == 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("request_timeout must be positive, got %v", c.RequestTimeout)
	}

	if err := c.Retry.validate(); err != nil {
		return err
	}
	if err := c.Storage.validate(); err != nil {
		return err
	}
	if err := c.Log.validate(); err != nil {
		return err
	}

	if c.Telemetry != nil {
		if c.Telemetry.OTLPEndpoint == "" {
			return fmt.Errorf("telemetry.otlp_endpoint is required when telemetry is configured")
		}
	}

	return nil
}

func (r *RetryConfig) validate() error {
	if r.Retries != nil && *r.Retries < 0 {
		return fmt.Errorf("retry.retries must not be negative, got %d", *r.Retries)
	}
	if r.BaseDelay == 0 {
		r.BaseDelay = DefaultBaseDelay
	}
	if r.MaxDelay == 0 {
		r.MaxDelay = DefaultMaxDelay
	}
	if r.BaseDelay < 0 || r.MaxDelay < 0 {
		return fmt.Errorf("retry delays must be positive")
	}
	if r.BaseDelay > r.MaxDelay {
		return fmt.Errorf("retry.base_delay %v exceeds retry.max_delay %v", r.BaseDelay, r.MaxDelay)
	}
	return nil
}

func (s *StorageConfig) validate() error {
	switch s.Backend {
	case "":
		s.Backend = "sqlite"
	case "sqlite":
	case "redis":
		if s.RedisAddr == "" {
			return fmt.Errorf("storage.redis_addr is required for the redis backend")
		}
		if s.KeyPrefix == "" {
			s.KeyPrefix = DefaultKeyPrefix
		}
	default:
		return fmt.Errorf("storage.backend %q must be sqlite or redis", s.Backend)
	}
	if s.RedisDB < 0 {
		return fmt.Errorf("storage.redis_db must not be negative, got %d", s.RedisDB)
	}
	return nil
}

func (l *LogConfig) validate() error {
	l.Level = strings.ToLower(l.Level)
	switch l.Level {
	case "":
		l.Level = "info"
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q must be one of debug, info, warn, error", l.Level)
	}
	if l.MaxSizeMB == 0 {
		l.MaxSizeMB = 10
	}
	if l.MaxBackups == 0 {
		l.MaxBackups = 3
	}
	if l.MaxAgeDays == 0 {
		l.MaxAgeDays = 28
	}
	if l.MaxSizeMB < 0 || l.MaxBackups < 0 || l.MaxAgeDays < 0 {
		return fmt.Errorf("log rotation settings must not be negative")
	}
	return nil
}
