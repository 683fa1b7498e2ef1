// Package config loads this server's runtime configuration from an
// optional YAML file overlaid with environment variables, following the
// env-first loader shape of
// _examples/Mindburn-Labs-helm/core/pkg/config/config.go, generalized to
// also accept a file (spec.md §6 names a federation-specific settings
// surface a bare env-var loader can't cleanly express: multiple trust
// anchor identifiers, a signing key file path, crawl roots).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the federation server's runtime configuration.
type Config struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"log_level"`

	EntityIdentifier string   `yaml:"entity_identifier"`
	TrustAnchors     []string `yaml:"trust_anchors"`
	AuthorityHints   []string `yaml:"authority_hints"`
	CrawlRoots       []string `yaml:"crawl_roots"`

	SigningKeyFile string `yaml:"signing_key_file"`

	RedisAddr string `yaml:"redis_addr"`

	FetchRatePerSecond float64 `yaml:"fetch_rate_per_second"`
	FetchBurst         int     `yaml:"fetch_burst"`

	OTLPEndpoint     string  `yaml:"otlp_endpoint"`
	ObservabilityOn  bool    `yaml:"observability_enabled"`
	TraceSampleRatio float64 `yaml:"trace_sample_ratio"`

	AdminBearerToken string `yaml:"admin_bearer_token"`

	S3Bucket string `yaml:"s3_snapshot_bucket"`
}

// DefaultConfig returns development-friendly defaults.
func DefaultConfig() *Config {
	return &Config{
		Port:               "8443",
		LogLevel:           "INFO",
		RedisAddr:          "localhost:6379",
		FetchRatePerSecond: 50,
		FetchBurst:         10,
		OTLPEndpoint:       "localhost:4317",
		ObservabilityOn:    true,
		TraceSampleRatio:   1.0,
	}
}

// Load builds a Config by starting from DefaultConfig, overlaying path's
// YAML contents if path is non-empty and the file exists, then overlaying
// environment variables, which always take precedence (spec.md §6
// "Configuration precedence").
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	overlayEnv(cfg)
	return cfg, nil
}

func overlayEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("ENTITY_IDENTIFIER"); v != "" {
		cfg.EntityIdentifier = v
	}
	if v := os.Getenv("TRUST_ANCHORS"); v != "" {
		cfg.TrustAnchors = splitCSV(v)
	}
	if v := os.Getenv("AUTHORITY_HINTS"); v != "" {
		cfg.AuthorityHints = splitCSV(v)
	}
	if v := os.Getenv("CRAWL_ROOTS"); v != "" {
		cfg.CrawlRoots = splitCSV(v)
	}
	if v := os.Getenv("SIGNING_KEY_FILE"); v != "" {
		cfg.SigningKeyFile = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("FETCH_RATE_PER_SECOND"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.FetchRatePerSecond = f
		}
	}
	if v := os.Getenv("FETCH_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.FetchBurst = n
		}
	}
	if v := os.Getenv("OTLP_ENDPOINT"); v != "" {
		cfg.OTLPEndpoint = v
	}
	if v := os.Getenv("OBSERVABILITY_ENABLED"); v != "" {
		cfg.ObservabilityOn = v == "true"
	}
	if v := os.Getenv("ADMIN_BEARER_TOKEN"); v != "" {
		cfg.AdminBearerToken = v
	}
	if v := os.Getenv("S3_SNAPSHOT_BUCKET"); v != "" {
		cfg.S3Bucket = v
	}
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
