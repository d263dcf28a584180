// Package scrape is the engine shared by every planning portal scraper:
// the iteration strategies behind gather_ids, the fetch/show/update
// operations and the error wrapper every site hook runs under.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/law-makers/planscrape/internal/cache"
	"github.com/law-makers/planscrape/internal/cookiestore"
	"github.com/law-makers/planscrape/internal/httpsession"
	"github.com/law-makers/planscrape/internal/metrics"
	"github.com/law-makers/planscrape/internal/proxy"
	"github.com/law-makers/planscrape/internal/ratelimit"
	"github.com/law-makers/planscrape/internal/reqctx"
	"github.com/law-makers/planscrape/internal/retry"
	"github.com/law-makers/planscrape/internal/scrapeerr"
	"github.com/law-makers/planscrape/internal/utils/headers"
	"github.com/law-makers/planscrape/pkg/models"
)

// Options carries the process-wide collaborators a scraper is built with.
// All fields are optional.
type Options struct {
	// LogLevel, LogDirectory and LogName route the scraper's log. With a
	// directory the log goes to <LogDirectory>/<LogName>.log, LogName
	// defaulting to the authority name.
	LogLevel     string
	LogDirectory string
	LogName      string
	Logger       *zerolog.Logger

	UserAgent string
	Timeout   time.Duration
	// Proxy is used when the site declares no proxies of its own.
	Proxy string

	Limiter   ratelimit.RateLimiter
	Cache     cache.Cache
	Cookies   cookiestore.Store
	Retry     *retry.Config
	Metrics   *metrics.Metrics
	Transport http.RoundTripper

	Now func() time.Time
}

// Scraper is one authority's scraper: a Site, its Source hooks and the
// strategy chosen by the site's base type. A Scraper owns its HTTP session
// and must not be used from more than one goroutine at a time.
type Scraper struct {
	site     Site
	src      Source
	strategy strategy
	session  *httpsession.Session
	logger   zerolog.Logger
	logFile  io.Closer
	metrics  *metrics.Metrics
	now      func() time.Time
	runID    string
}

// New builds a scraper. Configuration errors, such as a missing authority
// name or a source lacking the hook its strategy needs, are returned here
// rather than surfacing later as scrape errors.
func New(site Site, src Source, opts Options) (*Scraper, error) {
	site = site.withDefaults()
	if err := site.validate(); err != nil {
		return nil, err
	}
	if src == nil {
		return nil, fmt.Errorf("%s: no source", site.AuthorityName)
	}
	st, err := strategyFor(site, src)
	if err != nil {
		return nil, err
	}

	logger, logFile, err := newLogger(site.AuthorityName, opts)
	if err != nil {
		return nil, err
	}

	s := &Scraper{
		site:     site,
		src:      src,
		strategy: st,
		logger:   logger,
		logFile:  logFile,
		metrics:  opts.Metrics,
		now:      opts.Now,
	}
	if s.now == nil {
		s.now = time.Now
	}

	timeout := site.Timeout
	if opts.Timeout > 0 && site.Timeout == httpsession.DefaultTimeout {
		timeout = opts.Timeout
	}
	proxies := site.Proxies
	if len(proxies) == 0 && opts.Proxy != "" {
		proxies = []string{opts.Proxy}
	}
	var pool *proxy.Pool
	if len(proxies) > 0 {
		pool = proxy.NewPool(proxies...)
	}

	limiter := opts.Limiter
	if hl, ok := limiter.(*ratelimit.HostLimiter); ok && site.RateLimit > 0 {
		if u, err := url.Parse(site.SearchURL); err == nil && u.Host != "" {
			hl.SetLimit(u.Host, site.RateLimit, 1)
		}
	}

	s.session, err = httpsession.New(httpsession.Options{
		Authority: site.AuthorityName,
		Timeout:   timeout,
		UserAgent: opts.UserAgent,
		Headers:   headers.ParseHeaders(site.Headers),
		Insecure:  site.Insecure,
		Proxies:   pool,
		Limiter:   limiter,
		Cache:     opts.Cache,
		Retry:     opts.Retry,
		Metrics:   opts.Metrics,
		Logger:    &s.logger,
		Transport: opts.Transport,
	})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("%s: %w", site.AuthorityName, err)
	}

	if err := s.replayCookies(opts.Cookies); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func newLogger(authority string, opts Options) (zerolog.Logger, io.Closer, error) {
	level := zerolog.InfoLevel
	if opts.LogLevel != "" {
		l, err := zerolog.ParseLevel(opts.LogLevel)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("invalid log level %q: %w", opts.LogLevel, err)
		}
		level = l
	}

	if opts.LogDirectory == "" {
		base := log.Logger
		if opts.Logger != nil {
			base = *opts.Logger
		}
		return base.Level(level).With().Str("authority", authority).Logger(), nil, nil
	}

	name := opts.LogName
	if name == "" {
		name = authority
	}
	file := &lumberjack.Logger{
		Filename:   filepath.Join(opts.LogDirectory, name+".log"),
		MaxSize:    10,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	}
	logger := zerolog.New(file).Level(level).With().Timestamp().Str("authority", authority).Logger()
	return logger, file, nil
}

func (s *Scraper) replayCookies(store cookiestore.Store) error {
	cookies := append([]*http.Cookie(nil), s.site.Cookies...)
	if store != nil {
		stored, err := store.Load(s.site.AuthorityName)
		switch {
		case err == nil:
			cookies = append(cookies, stored...)
		case !errors.Is(err, cookiestore.ErrNotFound):
			s.logger.Warn().Err(err).Msg("Failed to load stored cookies")
		}
	}
	if len(cookies) == 0 {
		return nil
	}
	if s.site.SearchURL == "" {
		return fmt.Errorf("%s: cookies declared without a search url", s.site.AuthorityName)
	}
	if err := s.session.SetCookie(s.site.SearchURL, cookies...); err != nil {
		return fmt.Errorf("%s: %w", s.site.AuthorityName, err)
	}
	s.logger.Debug().Int("cookies", len(cookies)).Msg("Cookies replayed")
	return nil
}

// Authority returns the authority name the scraper is registered under.
func (s *Scraper) Authority() string { return s.site.AuthorityName }

// Site returns the scraper's constants with defaults applied.
func (s *Scraper) Site() Site { return s.site }

// Session returns the HTTP session hooks drive.
func (s *Scraper) Session() *httpsession.Session { return s.session }

// Logger returns the scraper's logger.
func (s *Scraper) Logger() *zerolog.Logger { return &s.logger }

// Now returns the scraper's clock reading.
func (s *Scraper) Now() time.Time { return s.now() }

// Descriptor returns the scraper's published metadata.
func (s *Scraper) Descriptor() models.Descriptor { return s.site.Descriptor() }

// SetRunID tags every request of subsequent operations with id.
func (s *Scraper) SetRunID(id string) { s.runID = id }

// Close releases the session and the log file.
func (s *Scraper) Close() error {
	if s.session != nil {
		s.session.Close()
	}
	if s.logFile != nil {
		return s.logFile.Close()
	}
	return nil
}

func (s *Scraper) context(ctx context.Context) context.Context {
	if s.runID != "" {
		return reqctx.WithRunID(ctx, s.site.AuthorityName, s.runID)
	}
	return reqctx.WithRequestContext(ctx, s.site.AuthorityName)
}

// guard runs one site hook and converts whatever it returns, panics
// included, into a tagged error. Network failures are logged at WARN,
// unexpected ones at ERROR.
func (s *Scraper) guard(ctx context.Context, op string, fn func(ctx context.Context) error) (err error) {
	ctx = s.context(ctx)
	defer func() {
		if r := recover(); r != nil {
			err = scrapeerr.Newf(scrapeerr.OtherError, "%s panicked: %v", op, r)
			s.logger.Error().Str("op", op).Bytes("stack", debug.Stack()).Msg(err.Error())
		}
		if err != nil {
			s.metrics.IncError(s.site.AuthorityName, string(scrapeerr.TagOf(err)))
		}
	}()

	if err := fn(ctx); err != nil {
		se := scrapeerr.Classify(err)
		runID := reqctx.GetRequestContext(ctx).RunID
		switch se.Tag {
		case scrapeerr.FetchFail:
			s.logger.Warn().Err(err).Str("op", op).Str("run_id", runID).Msg("Fetch failed")
		case scrapeerr.GetError, scrapeerr.OtherError:
			s.logger.Error().Err(err).Str("op", op).Str("run_id", runID).Msg("Unexpected error")
		default:
			s.logger.Info().Str("tag", string(se.Tag)).Str("op", op).Str("run_id", runID).Msg(se.Message)
		}
		return se
	}
	return nil
}
