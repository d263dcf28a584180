package httpsession

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/publicsuffix"

	"github.com/law-makers/planscrape/internal/cache"
	"github.com/law-makers/planscrape/internal/metrics"
	"github.com/law-makers/planscrape/internal/proxy"
	"github.com/law-makers/planscrape/internal/ratelimit"
	"github.com/law-makers/planscrape/internal/reqctx"
	"github.com/law-makers/planscrape/internal/retry"
	"github.com/law-makers/planscrape/internal/utils/headers"
)

const (
	// DefaultTimeout bounds every outbound request.
	DefaultTimeout = 20 * time.Second
	// DefaultUserAgent identifies the scraper to council web servers.
	DefaultUserAgent = "Mozilla/5.0 (compatible; planscrape/1.0; +https://github.com/law-makers/planscrape)"

	maxBodyBytes = 32 << 20
)

// ErrNoPage is returned by form and link operations before any page is open.
var ErrNoPage = errors.New("no page open")

// Options configures a Session. Zero values fall back to defaults.
type Options struct {
	Authority string
	Timeout   time.Duration
	UserAgent string
	Headers   map[string]string

	// Insecure disables certificate verification for this session only.
	Insecure bool
	Proxies  *proxy.Pool

	Limiter ratelimit.RateLimiter
	Cache   cache.Cache
	Retry   *retry.Config
	Metrics *metrics.Metrics
	Logger  *zerolog.Logger

	// Transport replaces the built transport; Insecure and Proxies are then
	// the caller's concern.
	Transport http.RoundTripper
}

// Session is the stateful browser one scraper instance drives. It owns a
// cookie jar and remembers the current page so forms and links can be
// followed from it. A Session must not be shared between scrapers or used
// from more than one goroutine.
type Session struct {
	opts    Options
	client  *http.Client
	jar     *cookiejar.Jar
	current *Page
	logger  zerolog.Logger
}

// New builds a session with its own cookie jar and transport.
func New(opts Options) (*Session, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Limiter == nil {
		opts.Limiter = ratelimit.Unlimited{}
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	transport := opts.Transport
	if transport == nil {
		transport = newTransport(opts)
	}

	logger := log.Logger.With().Str("authority", opts.Authority).Logger()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	return &Session{
		opts: opts,
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
			Jar:       jar,
		},
		jar:    jar,
		logger: logger,
	}, nil
}

func newTransport(opts Options) *http.Transport {
	t := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
	}
	if opts.Insecure {
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opted in per site
	}
	if opts.Proxies != nil && opts.Proxies.Len() > 0 {
		pool := opts.Proxies
		t.Proxy = func(req *http.Request) (*url.URL, error) {
			u := pool.Next()
			reqctx.GetRequestContext(req.Context()).SetProxy(u)
			return u, nil
		}
	}
	return t
}

// Current returns the last page loaded, or nil.
func (s *Session) Current() *Page {
	return s.current
}

// Open fetches rawURL with GET and makes it the current page.
func (s *Session) Open(ctx context.Context, rawURL string) (*Page, error) {
	return s.do(ctx, http.MethodGet, rawURL, nil, "", true)
}

// OpenFresh is Open without the page cache, for listing pages whose content
// depends on session state.
func (s *Session) OpenFresh(ctx context.Context, rawURL string) (*Page, error) {
	return s.do(ctx, http.MethodGet, rawURL, nil, "", false)
}

// Post submits form values to rawURL as application/x-www-form-urlencoded.
func (s *Session) Post(ctx context.Context, rawURL string, values url.Values) (*Page, error) {
	return s.do(ctx, http.MethodPost, rawURL, []byte(values.Encode()), "application/x-www-form-urlencoded", false)
}

// PostJSON sends body as an application/json POST.
func (s *Session) PostJSON(ctx context.Context, rawURL string, body []byte) (*Page, error) {
	return s.do(ctx, http.MethodPost, rawURL, body, "application/json", false)
}

// SetCookie stores a cookie for rawURL's host in the session jar.
func (s *Session) SetCookie(rawURL string, cookies ...*http.Cookie) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("set cookie: %w", err)
	}
	s.jar.SetCookies(u, cookies)
	return nil
}

// Cookies returns the cookies the jar would send to rawURL.
func (s *Session) Cookies(rawURL string) []*http.Cookie {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	return s.jar.Cookies(u)
}

// Close releases idle connections.
func (s *Session) Close() {
	s.client.CloseIdleConnections()
}

func (s *Session) do(ctx context.Context, method, rawURL string, body []byte, contentType string, useCache bool) (*Page, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = reqctx.WithRequestContext(ctx, s.opts.Authority)
	rc := reqctx.GetRequestContext(ctx)

	cacheable := useCache && method == http.MethodGet && s.opts.Cache != nil
	key := cache.Key(s.opts.Authority, rawURL)
	if cacheable {
		if e, ok := s.opts.Cache.Get(key); ok {
			page := &Page{URL: e.URL, Status: http.StatusOK, ContentType: e.ContentType, Body: e.Body, FromCache: true}
			s.current = page
			return page, nil
		}
	}

	cfg := retry.DefaultConfig()
	if s.opts.Retry != nil {
		cfg = *s.opts.Retry
	}
	onRetry := cfg.OnRetry
	cfg.OnRetry = func(attempt int, err error) {
		s.opts.Metrics.IncRetry(s.opts.Authority)
		if onRetry != nil {
			onRetry(attempt, err)
		}
	}

	var page *Page
	start := time.Now()
	err := retry.WithRetry(ctx, cfg, func(ctx context.Context) error {
		if err := s.opts.Limiter.Wait(ctx, rawURL); err != nil {
			return retry.Permanent(err)
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
		if err != nil {
			return retry.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		req.Header.Set("User-Agent", s.opts.UserAgent)
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml,application/json;q=0.9,*/*;q=0.8")
		req.Header.Set("Accept-Language", "en-GB,en;q=0.9")
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		if s.current != nil {
			req.Header.Set("Referer", s.current.URL)
		}
		headers.Apply(req, s.opts.Headers)

		resp, err := s.client.Do(req)
		if err != nil {
			s.opts.Proxies.MarkFailed(rc.Proxy())
			return err
		}
		defer resp.Body.Close()
		s.opts.Proxies.MarkHealthy(rc.Proxy())

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return fmt.Errorf("read body: %w", err)
		}
		if resp.StatusCode >= http.StatusBadRequest {
			return retry.NewHTTPError(resp.StatusCode, resp.Status, rawURL)
		}

		finalURL := rawURL
		if resp.Request != nil && resp.Request.URL != nil {
			finalURL = resp.Request.URL.String()
		}
		page = &Page{
			URL:         finalURL,
			Status:      resp.StatusCode,
			ContentType: resp.Header.Get("Content-Type"),
			Body:        data,
		}
		return nil
	})
	s.opts.Metrics.ObserveRequest(s.opts.Authority, method, time.Since(start))

	if err != nil {
		s.logger.Debug().Err(err).Str("run_id", rc.RunID).Str("method", method).Str("url", rawURL).Msg("Request failed")
		return nil, err
	}

	s.logger.Debug().
		Str("run_id", rc.RunID).
		Str("method", method).
		Str("url", page.URL).
		Int("status", page.Status).
		Int("bytes", len(page.Body)).
		Dur("elapsed", time.Since(start)).
		Msg("Fetch completed")

	if cacheable {
		s.opts.Cache.Set(key, &cache.Entry{URL: page.URL, Body: page.Body, ContentType: page.ContentType, FetchedAt: time.Now()})
	}
	s.current = page
	return page, nil
}
