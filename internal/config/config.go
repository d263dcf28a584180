package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Config holds application configuration values
type Config struct {
	// Logging
	LogLevel     string
	JSONLog      bool
	LogDirectory string

	// HTTP/Scraping
	HTTPTimeout time.Duration
	UserAgent   string
	Proxy       string

	// Rate Limiting, per host
	RateLimitRPS   float64
	RateLimitBurst int

	// Retries
	RetryAttempts int
	RetryBackoff  time.Duration

	// Caching; a zero size disables the cache
	CacheTTL  time.Duration
	CacheSize int

	// Cookie replay store
	KeyringService string

	// Output
	Format      string
	MetricsFile string
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() *Config {
	return &Config{
		LogLevel:       DefaultLogLevel,
		JSONLog:        DefaultJSONLog,
		HTTPTimeout:    DefaultHTTPTimeout,
		UserAgent:      DefaultUserAgent,
		RateLimitRPS:   DefaultRateLimitRPS,
		RateLimitBurst: DefaultRateLimitBurst,
		RetryAttempts:  DefaultRetryAttempts,
		RetryBackoff:   DefaultRetryBackoff,
		CacheTTL:       DefaultCacheTTL,
		CacheSize:      DefaultCacheSize,
		KeyringService: DefaultKeyringService,
		Format:         DefaultFormat,
	}
}

// Load builds a Config by combining defaults, environment variables
// (PLANSCRAPE_*) and CLI flags, in that order of precedence.
// Caller should pass the root *cobra.Command so flags can be read.
func Load(cmd *cobra.Command) (*Config, error) {
	cfg := Defaults()
	if err := fromEnv(cfg, os.Getenv); err != nil {
		return nil, err
	}
	if cmd != nil {
		if err := fromFlags(cfg, cmd.Flags()); err != nil {
			return nil, err
		}
	}

	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.Format = strings.ToLower(cfg.Format)
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func fromEnv(cfg *Config, getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := getenv(EnvPrefix + key); v != "" {
			*dst = v
		}
	}
	str("LOG_LEVEL", &cfg.LogLevel)
	str("LOG_DIR", &cfg.LogDirectory)
	str("USER_AGENT", &cfg.UserAgent)
	str("PROXY", &cfg.Proxy)
	str("KEYRING_SERVICE", &cfg.KeyringService)
	str("FORMAT", &cfg.Format)
	str("METRICS_FILE", &cfg.MetricsFile)

	parsers := []struct {
		key   string
		parse func(string) error
	}{
		{"JSON_LOG", func(v string) (err error) { cfg.JSONLog, err = strconv.ParseBool(v); return }},
		{"TIMEOUT", func(v string) (err error) { cfg.HTTPTimeout, err = time.ParseDuration(v); return }},
		{"RATE_LIMIT", func(v string) (err error) { cfg.RateLimitRPS, err = strconv.ParseFloat(v, 64); return }},
		{"RATE_BURST", func(v string) (err error) { cfg.RateLimitBurst, err = strconv.Atoi(v); return }},
		{"RETRIES", func(v string) (err error) { cfg.RetryAttempts, err = strconv.Atoi(v); return }},
		{"RETRY_BACKOFF", func(v string) (err error) { cfg.RetryBackoff, err = time.ParseDuration(v); return }},
		{"CACHE_TTL", func(v string) (err error) { cfg.CacheTTL, err = time.ParseDuration(v); return }},
		{"CACHE_SIZE", func(v string) (err error) { cfg.CacheSize, err = strconv.Atoi(v); return }},
	}
	for _, p := range parsers {
		v := getenv(EnvPrefix + p.key)
		if v == "" {
			continue
		}
		if err := p.parse(v); err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, p.key, err)
		}
	}
	return nil
}

// fromFlags applies the flags the user actually set, so flag defaults never
// mask the environment.
func fromFlags(cfg *Config, flags *pflag.FlagSet) error {
	var err error
	flags.Visit(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		v := f.Value.String()
		switch f.Name {
		case "level":
			cfg.LogLevel = v
		case "logdir":
			cfg.LogDirectory = v
		case "json":
			cfg.JSONLog = v == "true"
		case "format":
			cfg.Format = v
		case "proxy":
			cfg.Proxy = v
		case "user-agent":
			cfg.UserAgent = v
		case "metrics-file":
			cfg.MetricsFile = v
		case "timeout":
			cfg.HTTPTimeout, err = time.ParseDuration(v)
		case "rate":
			cfg.RateLimitRPS, err = strconv.ParseFloat(v, 64)
		case "retries":
			cfg.RetryAttempts, err = strconv.Atoi(v)
		case "no-cache":
			if v == "true" {
				cfg.CacheSize = 0
			}
		}
		if err != nil {
			err = fmt.Errorf("--%s: %w", f.Name, err)
		}
	})
	return err
}
