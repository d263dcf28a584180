// Package app provides the core application initialization and lifecycle management.
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/law-makers/planscrape/internal/cache"
	"github.com/law-makers/planscrape/internal/config"
	"github.com/law-makers/planscrape/internal/cookiestore"
	"github.com/law-makers/planscrape/internal/dispatch"
	"github.com/law-makers/planscrape/internal/metrics"
	"github.com/law-makers/planscrape/internal/ratelimit"
	"github.com/law-makers/planscrape/internal/registry"
	"github.com/law-makers/planscrape/internal/retry"
	"github.com/law-makers/planscrape/internal/scrape"
	"github.com/law-makers/planscrape/internal/sites"
)

// Application holds all application dependencies and manages their lifecycle.
//
// It is created once at startup and shared across all CLI commands.
// Use Close() to ensure proper resource cleanup on shutdown.
type Application struct {
	Config      *config.Config
	Logger      *zerolog.Logger
	Cache       *cache.PageCache
	RateLimiter ratelimit.RateLimiter
	Cookies     cookiestore.Store
	Metrics     *metrics.Metrics
	Registry    *registry.Registry
	Dispatcher  *dispatch.Dispatcher
	startTime   time.Time
}

// Option adjusts an Application before its dispatcher is built.
type Option func(*Application)

// WithRegistry replaces the built-in authority table.
func WithRegistry(r *registry.Registry) Option {
	return func(a *Application) { a.Registry = r }
}

// WithCookieStore replaces the keyring backed cookie store.
func WithCookieStore(s cookiestore.Store) Option {
	return func(a *Application) { a.Cookies = s }
}

// WithLogOutput sends process logs to w.
func WithLogOutput(w io.Writer) Option {
	return func(a *Application) {
		l := a.Logger.Output(w)
		a.Logger = &l
	}
}

// New creates and initializes a new Application with all dependencies.
//
// It performs the following initialization steps:
//   - Configures logging based on the provided config
//   - Creates the page cache, per-host rate limiter and cookie store
//   - Registers the metrics collectors
//   - Builds the authority registry and the dispatcher over it
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Application, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	var logWriter io.Writer
	if cfg.JSONLog {
		logWriter = os.Stderr
	} else {
		logWriter = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	}
	// The level stays on this logger so scrapers can log below it.
	logger := zerolog.New(logWriter).Level(level).With().Timestamp().Logger()

	a := &Application{
		Config:    cfg,
		Logger:    &logger,
		Metrics:   metrics.New(),
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(a)
	}
	log.Logger = *a.Logger

	a.Logger.Debug().
		Str("level", cfg.LogLevel).
		Bool("json", cfg.JSONLog).
		Msg("Logger initialized")

	if cfg.CacheSize > 0 {
		a.Cache = cache.NewPageCache(cfg.CacheSize, cfg.CacheTTL)
		a.Logger.Debug().Int("size", cfg.CacheSize).Dur("ttl", cfg.CacheTTL).Msg("Page cache initialized")
	}

	if cfg.RateLimitRPS > 0 {
		a.RateLimiter = ratelimit.NewHostLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	} else {
		a.RateLimiter = ratelimit.Unlimited{}
	}
	a.Logger.Debug().
		Float64("rps", cfg.RateLimitRPS).
		Int("burst", cfg.RateLimitBurst).
		Msg("Rate limiter initialized")

	if a.Cookies == nil {
		store, err := cookiestore.New(cfg.KeyringService)
		if err != nil {
			a.Logger.Warn().Err(err).Msg("Cookie store unavailable, stored cookies will not be replayed")
		} else {
			a.Cookies = store
		}
	}

	if a.Registry == nil {
		a.Registry = registry.New()
		sites.Register(a.Registry)
	}

	rc := retry.DefaultConfig()
	rc.MaxAttempts = cfg.RetryAttempts
	rc.InitialBackoff = cfg.RetryBackoff

	base := scrape.Options{
		LogLevel:     cfg.LogLevel,
		LogDirectory: cfg.LogDirectory,
		Logger:       a.Logger,
		UserAgent:    cfg.UserAgent,
		Timeout:      cfg.HTTPTimeout,
		Proxy:        cfg.Proxy,
		Limiter:      a.RateLimiter,
		Cookies:      a.Cookies,
		Retry:        &rc,
		Metrics:      a.Metrics,
	}
	// a nil *PageCache in the interface would not read as "no cache"
	if a.Cache != nil {
		base.Cache = a.Cache
	}
	a.Dispatcher = dispatch.New(a.Registry, base)

	a.Logger.Debug().
		Int("scrapers", len(a.Registry.Entries(true))).
		Msg("Application initialized")
	return a, nil
}

// Close flushes metrics and releases shared resources.
//
// Errors are logged and the first one is returned; no step is skipped
// because an earlier one failed.
func (a *Application) Close(ctx context.Context) error {
	var first error
	if a.Config.MetricsFile != "" {
		if err := a.Metrics.WriteTextfile(a.Config.MetricsFile); err != nil {
			a.Logger.Warn().Err(err).Str("file", a.Config.MetricsFile).Msg("Failed to write metrics")
			first = err
		} else {
			a.Logger.Debug().Str("file", a.Config.MetricsFile).Msg("Metrics written")
		}
	}

	if a.Cache != nil {
		a.Cache.Purge()
	}

	a.Logger.Debug().Dur("uptime", a.Uptime()).Msg("Application shutdown complete")
	return first
}

// Uptime returns how long the application has been running.
func (a *Application) Uptime() time.Duration {
	return time.Since(a.startTime)
}
