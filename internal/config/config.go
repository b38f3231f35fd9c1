// Package config provides configuration loading and validation for the tag service.
// It uses koanf to merge environment variables with optional file overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/redis/go-redis/v9"

	"github.com/onnwee/trendtags/internal/tracing"
)

// Config holds all configuration values for the tag service.
type Config struct {
	// Server settings
	Port     int    `koanf:"port"`
	Env      string `koanf:"env"`
	LogLevel string `koanf:"log_level"`

	// Database
	DatabaseURL   string `koanf:"database_url"`
	DBAutoMigrate bool   `koanf:"db_auto_migrate"` // create hive_posts_cache if missing

	// Redis (optional shared cache tier and rate limit store)
	RedisURL string `koanf:"redis_url"`

	// Result cache
	CacheMaxEntries    int           `koanf:"cache_max_entries"`
	CacheSingleFlight  bool          `koanf:"cache_single_flight"`
	CacheSweepInterval time.Duration `koanf:"cache_sweep_interval"`

	// Rate limiting of /tags endpoints
	RateLimitRequests int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`

	// Tracing
	TracingEnabled    bool    `koanf:"tracing_enabled"`
	TracingExporter   string  `koanf:"tracing_exporter"`
	TracingEndpoint   string  `koanf:"tracing_endpoint"`
	TracingSampleRate float64 `koanf:"tracing_sample_rate"`
	TracingInsecure   bool    `koanf:"tracing_insecure"`
}

// Configuration validation errors.
var (
	ErrMissingDatabaseURL       = errors.New("DATABASE_URL is required")
	ErrInvalidPort              = errors.New("PORT must be between 1 and 65535")
	ErrInvalidValue             = errors.New("invalid value")
	ErrInvalidRedisURL          = errors.New("REDIS_URL is not a valid redis URL")
	ErrInvalidLogLevel          = errors.New("LOG_LEVEL must be one of debug, info, warn, error")
	ErrInvalidCacheMaxEntries   = errors.New("CACHE_MAX_ENTRIES must be positive")
	ErrInvalidCacheSweep        = errors.New("CACHE_SWEEP_INTERVAL must be positive")
	ErrInvalidRateLimitRequests = errors.New("RATE_LIMIT_REQUESTS must be positive")
	ErrInvalidRateLimitWindow   = errors.New("RATE_LIMIT_WINDOW must be positive")
)

// ServiceName identifies the service in traces and logs.
const ServiceName = "trendtags"

// Default values for non-secret configuration.
const (
	DefaultPort               = 8080
	DefaultEnv                = "development"
	DefaultCacheMaxEntries    = 1024
	DefaultCacheSingleFlight  = true
	DefaultCacheSweepInterval = 5 * time.Minute
	DefaultRateLimitRequests  = 120
	DefaultRateLimitWindow    = time.Minute
	DefaultTracingExporter    = tracing.ExporterOTLPHTTP
	DefaultTracingSampleRate  = 0.1
)

// Load reads configuration from environment variables and an optional config file.
// Environment variables take precedence over file values.
// Returns the loaded config and a slice of validation errors (empty if valid).
// If a config file path is provided and the file cannot be loaded, an error is returned.
func Load(configFilePath string) (*Config, []error) {
	k := koanf.New(".")

	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
	}

	l := &loader{k: k}
	cfg := &Config{
		Port:               l.intValue([]string{"TAGS_PORT", "PORT"}, "port", DefaultPort),
		Env:                getEnvOrDefaultMulti([]string{"TAGS_ENV", "ENV"}, k.String("env"), DefaultEnv),
		LogLevel:           getEnvOrKoanf("LOG_LEVEL", k, "log_level"),
		DatabaseURL:        getEnvOrKoanf("DATABASE_URL", k, "database_url"),
		DBAutoMigrate:      l.boolValue("DB_AUTO_MIGRATE", "db_auto_migrate", false),
		RedisURL:           getEnvOrKoanf("REDIS_URL", k, "redis_url"),
		CacheMaxEntries:    l.intValue([]string{"CACHE_MAX_ENTRIES"}, "cache_max_entries", DefaultCacheMaxEntries),
		CacheSingleFlight:  l.boolValue("CACHE_SINGLE_FLIGHT", "cache_single_flight", DefaultCacheSingleFlight),
		CacheSweepInterval: l.durationValue("CACHE_SWEEP_INTERVAL", "cache_sweep_interval", DefaultCacheSweepInterval),
		RateLimitRequests:  l.intValue([]string{"RATE_LIMIT_REQUESTS"}, "rate_limit_requests", DefaultRateLimitRequests),
		RateLimitWindow:    l.durationValue("RATE_LIMIT_WINDOW", "rate_limit_window", DefaultRateLimitWindow),
		TracingEnabled:     l.boolValue("TRACING_ENABLED", "tracing_enabled", false),
		TracingExporter:    getEnvOrDefault("TRACING_EXPORTER", k.String("tracing_exporter"), DefaultTracingExporter),
		TracingEndpoint:    getEnvOrKoanf("OTEL_EXPORTER_OTLP_ENDPOINT", k, "tracing_endpoint"),
		TracingSampleRate:  l.floatValue("TRACING_SAMPLE_RATE", "tracing_sample_rate", DefaultTracingSampleRate),
		TracingInsecure:    l.boolValue("TRACING_INSECURE", "tracing_insecure", false),
	}

	errs := append(l.errs, cfg.Validate()...)
	return cfg, errs
}

// TracingConfig returns the tracing settings of the service.
func (c *Config) TracingConfig(version string) tracing.Config {
	return tracing.Config{
		ServiceName:    ServiceName,
		ServiceVersion: version,
		Environment:    c.Env,
		Enabled:        c.TracingEnabled,
		Exporter:       c.TracingExporter,
		Endpoint:       c.TracingEndpoint,
		SampleRate:     c.TracingSampleRate,
		Insecure:       c.TracingInsecure,
	}
}

// loader resolves typed values with env > file > default precedence and
// collects parse errors.
type loader struct {
	k    *koanf.Koanf
	errs []error
}

func (l *loader) intValue(envKeys []string, koanfKey string, defaultVal int) int {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			i, err := strconv.Atoi(strings.TrimSpace(val))
			if err != nil {
				l.errs = append(l.errs, fmt.Errorf("%s must be a valid integer: %w", key, ErrInvalidValue))
				return defaultVal
			}
			return i
		}
	}
	if l.k.Exists(koanfKey) {
		return l.k.Int(koanfKey)
	}
	return defaultVal
}

func (l *loader) boolValue(envKey, koanfKey string, defaultVal bool) bool {
	if val := os.Getenv(envKey); val != "" {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		default:
			l.errs = append(l.errs, fmt.Errorf("%s must be a boolean: %w", envKey, ErrInvalidValue))
			return defaultVal
		}
	}
	if l.k.Exists(koanfKey) {
		return l.k.Bool(koanfKey)
	}
	return defaultVal
}

func (l *loader) floatValue(envKey, koanfKey string, defaultVal float64) float64 {
	if val := os.Getenv(envKey); val != "" {
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			l.errs = append(l.errs, fmt.Errorf("%s must be a valid float: %w", envKey, ErrInvalidValue))
			return defaultVal
		}
		return f
	}
	if l.k.Exists(koanfKey) {
		return l.k.Float64(koanfKey)
	}
	return defaultVal
}

// durationValue accepts Go duration strings such as "90s" or "5m".
func (l *loader) durationValue(envKey, koanfKey string, defaultVal time.Duration) time.Duration {
	raw := os.Getenv(envKey)
	source := envKey
	if raw == "" && l.k.Exists(koanfKey) {
		raw = l.k.String(koanfKey)
		source = koanfKey
	}
	if raw == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("%s must be a duration like 30s or 5m: %w", source, ErrInvalidValue))
		return defaultVal
	}
	return d
}

// getEnvOrKoanf returns the environment variable value if set, otherwise the koanf value.
func getEnvOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	return k.String(koanfKey)
}

// getEnvOrDefault returns the environment variable value if set, otherwise the koanf value, or default.
func getEnvOrDefault(envKey string, koanfVal string, defaultVal string) string {
	return getEnvOrDefaultMulti([]string{envKey}, koanfVal, defaultVal)
}

// getEnvOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first non-empty value found, otherwise the koanf value, or default.
func getEnvOrDefaultMulti(envKeys []string, koanfVal string, defaultVal string) string {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// Validate checks required values and ranges.
// Returns a slice of validation errors (empty if valid).
func (c *Config) Validate() []error {
	var errs []error

	if c.DatabaseURL == "" {
		errs = append(errs, ErrMissingDatabaseURL)
	}
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, ErrInvalidPort)
	}
	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, ErrInvalidLogLevel)
	}
	if c.RedisURL != "" {
		if _, err := redis.ParseURL(c.RedisURL); err != nil {
			errs = append(errs, fmt.Errorf("%w: %v", ErrInvalidRedisURL, err))
		}
	}
	if c.CacheMaxEntries <= 0 {
		errs = append(errs, ErrInvalidCacheMaxEntries)
	}
	if c.CacheSweepInterval <= 0 {
		errs = append(errs, ErrInvalidCacheSweep)
	}
	if c.RateLimitRequests <= 0 {
		errs = append(errs, ErrInvalidRateLimitRequests)
	}
	if c.RateLimitWindow <= 0 {
		errs = append(errs, ErrInvalidRateLimitWindow)
	}
	if c.TracingEnabled {
		if err := c.TracingConfig("").Validate(); err != nil {
			errs = append(errs, err)
		}
	}

	return errs
}

// LogSummary returns a summary of the configuration suitable for logging.
// All secrets are masked to prevent accidental exposure.
func (c *Config) LogSummary() map[string]string {
	return map[string]string{
		"port":                 strconv.Itoa(c.Port),
		"env":                  c.Env,
		"log_level":            c.LogLevel,
		"database_url":         maskURL(c.DatabaseURL),
		"db_auto_migrate":      strconv.FormatBool(c.DBAutoMigrate),
		"redis_url":            maskURL(c.RedisURL),
		"cache_max_entries":    strconv.Itoa(c.CacheMaxEntries),
		"cache_single_flight":  strconv.FormatBool(c.CacheSingleFlight),
		"cache_sweep_interval": c.CacheSweepInterval.String(),
		"rate_limit_requests":  strconv.Itoa(c.RateLimitRequests),
		"rate_limit_window":    c.RateLimitWindow.String(),
		"tracing_enabled":      strconv.FormatBool(c.TracingEnabled),
		"tracing_exporter":     c.TracingExporter,
		"tracing_endpoint":     c.TracingEndpoint,
		"tracing_sample_rate":  strconv.FormatFloat(c.TracingSampleRate, 'f', -1, 64),
	}
}

// maskSecret masks a secret value, showing only the first 4 characters followed by ****
// If the secret is shorter than 8 characters, it's fully masked.
func maskSecret(s string) string {
	if s == "" {
		return "<not set>"
	}
	if len(s) < 8 {
		return "****"
	}
	return s[:4] + "****"
}

// maskURL masks the password in a postgres:// or redis:// URL.
func maskURL(s string) string {
	if s == "" {
		return "<not set>"
	}

	schemeEnd := strings.Index(s, "://")
	if schemeEnd == -1 {
		return maskSecret(s)
	}

	rest := s[schemeEnd+3:]
	atIndex := strings.Index(rest, "@")
	if atIndex == -1 {
		return s // no credentials
	}

	colonIndex := strings.Index(rest[:atIndex], ":")
	if colonIndex == -1 {
		return s // username only
	}

	return s[:schemeEnd+3] + rest[:colonIndex] + ":****" + rest[atIndex:]
}
