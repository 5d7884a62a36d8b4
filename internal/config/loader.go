package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// FileEnv names the environment variable holding an optional YAML config path.
const FileEnv = "FOOTPRINT_CONFIG"

// knownKeys limits which environment variables are lifted into koanf.
var knownKeys = map[string]struct{}{
	"log_level":                 {},
	"log_format":                {},
	"port":                      {},
	"log_to_file":               {},
	"log_dir":                   {},
	"log_fsync":                 {},
	"log_timezone":              {},
	"ip_hash_salt":              {},
	"consent_required":          {},
	"rate_limit_points":         {},
	"rate_limit_window_seconds": {},
	"max_body_bytes":            {},
	"queue_size":                {},
	"worker_count":              {},
	"cors_allowed_origins":      {},
	"metrics_instance":          {},
}

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. .env in the working directory, if present (never overrides real env)
//  3. file (YAML) if FOOTPRINT_CONFIG is set
//  4. env (LOG_TO_FILE, LOG_DIR, IP_HASH_SALT, CONSENT_REQUIRED, PORT, ...)
func Load(_ context.Context) (*Config, error) {
	base := New()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: .env: %v", ErrLoadConfig, err)
	}

	k := koanf.New(".")

	if path := os.Getenv(FileEnv); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrLoadConfig, path, err)
		}
	}

	// Map env keys like RATE_LIMIT_POINTS -> rate_limit_points (flat keys).
	// Unknown variables are dropped by returning an empty key.
	envProvider := env.Provider("", ".", func(s string) string {
		key := strings.ToLower(s)
		if _, ok := knownKeys[key]; !ok {
			return ""
		}
		return key
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %v", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}
	cfg.CORSAllowedOrigins = splitOrigins(cfg.CORSAllowedOrigins)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// splitOrigins flattens comma-joined entries and drops blanks.
func splitOrigins(in []string) []string {
	var out []string
	for _, item := range in {
		for _, o := range strings.Split(item, ",") {
			if o = strings.TrimSpace(o); o != "" {
				out = append(out, o)
			}
		}
	}
	return out
}
