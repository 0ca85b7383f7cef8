// Package config provides environment-driven configuration for querymesh.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Secret wraps a sensitive string to prevent accidental logging or marshalling.
type Secret string

// String implements fmt.Stringer, returning a redacted placeholder.
func (s Secret) String() string { return "[REDACTED]" }

// GoString implements fmt.GoStringer, returning a redacted placeholder.
func (s Secret) GoString() string { return "[REDACTED]" }

// MarshalText implements encoding.TextMarshaler, returning a redacted placeholder.
func (s Secret) MarshalText() ([]byte, error) { return []byte("[REDACTED]"), nil }

// Value returns the underlying secret string.
func (s Secret) Value() string { return string(s) }

// Optimizer strategies.
const (
	OptimizerRules = "rules"
	OptimizerLLM   = "llm"
)

// Config holds all application configuration values.
type Config struct {
	DatabaseURL  Secret
	Port         string
	ListenHost   string
	CORSOrigins  []string
	PollInterval time.Duration
	MaxFanout    int
	Optimizer    string
	LLMURL       string
	LLMModel     string
	APIKey       Secret
	LogLevel     string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL: Secret(envOrDefault("DATABASE_URL", "")),
		Port:        envOrDefault("PORT", "4040"),
		ListenHost:  envOrDefault("LISTEN_HOST", "127.0.0.1"),
		Optimizer:   envOrDefault("OPTIMIZER", OptimizerRules),
		LLMURL:      envOrDefault("LLM_URL", "http://localhost:11434"),
		LLMModel:    envOrDefault("LLM_MODEL", "qwen3:4b"),
		APIKey:      Secret(envOrDefault("API_KEY", "")),
		LogLevel:    envOrDefault("LOG_LEVEL", "info"),
	}

	pollInterval, err := time.ParseDuration(envOrDefault("POLL_INTERVAL", "30m"))
	if err != nil {
		return nil, fmt.Errorf("POLL_INTERVAL must be a valid duration: %w", err)
	}
	cfg.PollInterval = pollInterval

	maxFanout, err := strconv.Atoi(envOrDefault("MAX_FANOUT", "3"))
	if err != nil {
		return nil, fmt.Errorf("MAX_FANOUT must be an integer: %w", err)
	}
	cfg.MaxFanout = maxFanout

	origins := envOrDefault("CORS_ORIGINS", "http://localhost:3002")
	cfg.CORSOrigins = strings.Split(origins, ",")

	for i, o := range cfg.CORSOrigins {
		cfg.CORSOrigins[i] = strings.TrimSpace(o)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// Addr returns the listen address in host:port format.
func (c *Config) Addr() string {
	return c.ListenHost + ":" + c.Port
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}
