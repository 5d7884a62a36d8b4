// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - The Config struct is built once at startup and threaded through
//   constructors; core packages never read the environment themselves.
// - External errors are wrapped with this package's sentinel errors.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// DefaultIPHashSalt is the non-production anonymizer key. Startup warns when
// it is still in use.
const DefaultIPHashSalt = "change-me-insecure-default"

// Config contains process configuration.
type Config struct {
	// LogLevel controls operational log verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects operational log rendering: text or json.
	LogFormat string `koanf:"log_format"`

	// Port is the HTTP listen port.
	Port int `koanf:"port"`

	// LogToFile toggles the durable day-partitioned file sink.
	LogToFile bool `koanf:"log_to_file"`

	// LogDir is the directory holding visits-YYYY-MM-DD files.
	LogDir string `koanf:"log_dir"`

	// LogFsync forces an fsync after every file append.
	LogFsync bool `koanf:"log_fsync"`

	// LogTimezone names the location used for day partitioning.
	LogTimezone string `koanf:"log_timezone"`

	// IPHashSalt keys the IP anonymizer.
	IPHashSalt string `koanf:"ip_hash_salt"`

	// ConsentRequired tells the browser collector to wait for explicit consent.
	ConsentRequired bool `koanf:"consent_required"`

	// RateLimitPoints and RateLimitWindowSeconds bound POST /collect per client.
	RateLimitPoints        int `koanf:"rate_limit_points"`
	RateLimitWindowSeconds int `koanf:"rate_limit_window_seconds"`

	// MaxBodyBytes caps the POST /collect body.
	MaxBodyBytes int64 `koanf:"max_body_bytes"`

	// QueueSize bounds the pageview hand-off queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of pageview writers.
	WorkerCount int `koanf:"worker_count"`

	// CORSAllowedOrigins lists origins allowed to call /collect and /config.
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins"`

	// MetricsInstance is the constant instance label on every metric. Empty
	// means the host name.
	MetricsInstance string `koanf:"metrics_instance"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:               "info",
		LogFormat:              "text",
		Port:                   10000,
		LogToFile:              true,
		LogDir:                 "./data/logs",
		LogFsync:               true,
		LogTimezone:            "UTC",
		IPHashSalt:             DefaultIPHashSalt,
		ConsentRequired:        false,
		RateLimitPoints:        60,
		RateLimitWindowSeconds: 60,
		MaxBodyBytes:           32 << 10,
		QueueSize:              10_000,
		WorkerCount:            4,
	}
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

// RateLimitWindow returns the limiter window as a duration.
func (c *Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowSeconds) * time.Second
}

// Location resolves LogTimezone. Validate guarantees it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.LogTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Instance returns MetricsInstance, or the host name when it is unset.
func (c *Config) Instance() string {
	if c.MetricsInstance != "" {
		return c.MetricsInstance
	}
	host, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return host
}

// UsesDefaultSalt reports whether the anonymizer still runs on the shipped key.
func (c *Config) UsesDefaultSalt() bool {
	return c.IPHashSalt == DefaultIPHashSalt
}

// Validate checks ranges and cross-field constraints.
func (c *Config) Validate() error {
	switch {
	case c.Port < 1 || c.Port > 65535:
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, c.Port)
	case c.RateLimitPoints < 1:
		return fmt.Errorf("%w: rate_limit_points must be positive", ErrInvalidConfig)
	case c.RateLimitWindowSeconds < 1:
		return fmt.Errorf("%w: rate_limit_window_seconds must be positive", ErrInvalidConfig)
	case c.MaxBodyBytes < 1:
		return fmt.Errorf("%w: max_body_bytes must be positive", ErrInvalidConfig)
	case c.LogToFile && c.LogDir == "":
		return fmt.Errorf("%w: log_dir must not be empty when log_to_file is on", ErrInvalidConfig)
	}
	if _, err := time.LoadLocation(c.LogTimezone); err != nil {
		return fmt.Errorf("%w: log_timezone: %v", ErrInvalidConfig, err)
	}
	return nil
}
