// Package config loads worker and controller settings from an optional
// YAML file, environment variables and defaults, in that order of precedence
// (environment wins).
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// Config holds all configuration values for the application.
type Config struct {
	// Database connection string, postgres:// or memory://
	DatabaseURL string

	// HTTP server port for the controller
	HTTPPort int

	// Port of the worker's /metrics endpoint
	MetricsPort int

	// Worker-specific configuration
	WorkerID           string
	WorkerPollInterval time.Duration
	WorkerYieldDelay   time.Duration

	// Per job type concurrency overrides, keyed by type name
	JobConcurrency map[string]int

	SchedulerEnabled bool
	SchedulerSpec    string
	StaleAfter       time.Duration

	// OTLP gRPC endpoint for traces
	OTELEndpoint string

	// Bearer secret required by /internal routes
	InternalSecret string

	// Requests per second allowed per client, and the burst above it
	RateLimit      float64
	RateLimitBurst int

	GroqAPIKey  string
	GroqBaseURL string
	GroqModel   string

	GeminiAPIKey  string
	GeminiBaseURL string
	GeminiModel   string

	LogLevel string
}

// envNames maps config keys to environment variables whose names
// differ from the upper-cased key.
var envNames = map[string]string{
	"http_port":     "PORT",
	"otel_endpoint": "OTEL_EXPORTER_OTLP_ENDPOINT",
}

var keys = []string{
	"database_url", "http_port", "metrics_port",
	"worker_id", "worker_poll_interval", "worker_yield_delay", "job_concurrency",
	"scheduler_enabled", "scheduler_spec", "stale_after",
	"otel_endpoint", "internal_secret", "rate_limit", "rate_limit_burst",
	"groq_api_key", "groq_base_url", "groq_model",
	"gemini_api_key", "gemini_base_url", "gemini_model",
	"log_level",
}

// Load reads configuration. path is an optional YAML file.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	for _, key := range keys {
		env, ok := envNames[key]
		if !ok {
			env = strings.ToUpper(key)
		}
		if err := v.BindEnv(key, env); err != nil {
			return nil, err
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	cfg := &Config{
		DatabaseURL:        v.GetString("database_url"),
		HTTPPort:           v.GetInt("http_port"),
		MetricsPort:        v.GetInt("metrics_port"),
		WorkerID:           v.GetString("worker_id"),
		WorkerPollInterval: v.GetDuration("worker_poll_interval"),
		WorkerYieldDelay:   v.GetDuration("worker_yield_delay"),
		SchedulerEnabled:   v.GetBool("scheduler_enabled"),
		SchedulerSpec:      v.GetString("scheduler_spec"),
		StaleAfter:         v.GetDuration("stale_after"),
		OTELEndpoint:       v.GetString("otel_endpoint"),
		InternalSecret:     v.GetString("internal_secret"),
		RateLimit:          v.GetFloat64("rate_limit"),
		RateLimitBurst:     v.GetInt("rate_limit_burst"),
		GroqAPIKey:         v.GetString("groq_api_key"),
		GroqBaseURL:        v.GetString("groq_base_url"),
		GroqModel:          v.GetString("groq_model"),
		GeminiAPIKey:       v.GetString("gemini_api_key"),
		GeminiBaseURL:      v.GetString("gemini_base_url"),
		GeminiModel:        v.GetString("gemini_model"),
		LogLevel:           v.GetString("log_level"),
	}

	concurrency, err := parseConcurrency(v.Get("job_concurrency"))
	if err != nil {
		return nil, err
	}
	cfg.JobConcurrency = concurrency

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_port", 6161)
	v.SetDefault("metrics_port", 6162)
	v.SetDefault("worker_poll_interval", 5*time.Second)
	v.SetDefault("worker_yield_delay", 50*time.Millisecond)
	v.SetDefault("scheduler_enabled", true)
	v.SetDefault("scheduler_spec", "0 0 * * *")
	v.SetDefault("stale_after", 24*time.Hour)
	v.SetDefault("otel_endpoint", "localhost:4317")
	v.SetDefault("rate_limit", 10.0)
	v.SetDefault("rate_limit_burst", 20)
	v.SetDefault("log_level", "info")
}

// parseConcurrency accepts a YAML mapping or an env string of the form
// "extract_topics=2,podcast_import=1".
func parseConcurrency(raw any) (map[string]int, error) {
	out := make(map[string]int)
	if raw == nil {
		return out, nil
	}

	if s, ok := raw.(string); ok {
		for _, pair := range strings.Split(s, ",") {
			pair = strings.TrimSpace(pair)
			if pair == "" {
				continue
			}
			name, value, found := strings.Cut(pair, "=")
			if !found {
				return nil, fmt.Errorf("invalid job_concurrency entry %q, want type=n", pair)
			}
			n, err := cast.ToIntE(strings.TrimSpace(value))
			if err != nil {
				return nil, fmt.Errorf("invalid job_concurrency for %s: %w", name, err)
			}
			out[strings.TrimSpace(name)] = n
		}
		return out, nil
	}

	m, err := cast.ToStringMapE(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid job_concurrency: %w", err)
	}
	for name, value := range m {
		n, err := cast.ToIntE(value)
		if err != nil {
			return nil, fmt.Errorf("invalid job_concurrency for %s: %w", name, err)
		}
		out[name] = n
	}
	return out, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database_url is required (env: DATABASE_URL)")
	}
	if c.WorkerPollInterval <= 0 {
		return fmt.Errorf("worker_poll_interval must be positive, got %v", c.WorkerPollInterval)
	}
	if c.WorkerYieldDelay < 0 {
		return fmt.Errorf("worker_yield_delay must not be negative, got %v", c.WorkerYieldDelay)
	}
	if c.StaleAfter <= 0 {
		return fmt.Errorf("stale_after must be positive, got %v", c.StaleAfter)
	}
	if c.RateLimit <= 0 || c.RateLimitBurst < 1 {
		return fmt.Errorf("rate_limit and rate_limit_burst must be positive")
	}
	return nil
}

// IsMemory reports whether the in-process store was requested.
func (c *Config) IsMemory() bool {
	return strings.HasPrefix(c.DatabaseURL, "memory://")
}
