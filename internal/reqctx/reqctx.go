package reqctx

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
)

type key int

const requestKey key = 0

// RequestContext follows one scraper call through the transport. The proxy
// slot is written by the transport when it picks an upstream so the session
// can mark that proxy failed afterwards.
type RequestContext struct {
	RunID     string
	Authority string
	StartTime time.Time

	mu    sync.Mutex
	proxy *url.URL
}

// WithRequestContext attaches a fresh RequestContext to ctx. An existing one
// is kept so nested calls share a run id.
func WithRequestContext(ctx context.Context, authority string) context.Context {
	if rc, ok := ctx.Value(requestKey).(*RequestContext); ok && rc.Authority == authority {
		return ctx
	}
	return context.WithValue(ctx, requestKey, &RequestContext{
		RunID:     uuid.NewString(),
		Authority: authority,
		StartTime: time.Now(),
	})
}

// WithRunID is WithRequestContext with a caller-chosen id, used by sweeps so
// every authority in one sweep logs the same id.
func WithRunID(ctx context.Context, authority, runID string) context.Context {
	return context.WithValue(ctx, requestKey, &RequestContext{
		RunID:     runID,
		Authority: authority,
		StartTime: time.Now(),
	})
}

func GetRequestContext(ctx context.Context) *RequestContext {
	if rc, ok := ctx.Value(requestKey).(*RequestContext); ok {
		return rc
	}
	return &RequestContext{
		RunID:     "unknown",
		StartTime: time.Now(),
	}
}

// SetProxy records the proxy the transport chose for the current attempt.
func (rc *RequestContext) SetProxy(u *url.URL) {
	rc.mu.Lock()
	rc.proxy = u
	rc.mu.Unlock()
}

// Proxy returns the proxy used by the latest attempt, if any.
func (rc *RequestContext) Proxy() *url.URL {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.proxy
}

// RequestError wraps an error with the run id it happened under
type RequestError struct {
	RunID string
	Err   error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("[%s] %v", e.RunID, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// NewRequestError creates a RequestError from ctx
func NewRequestError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	return &RequestError{
		RunID: GetRequestContext(ctx).RunID,
		Err:   err,
	}
}
