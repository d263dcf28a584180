package proxy

import (
	"net/http"
	"net/url"
	"sync"
	"time"
)

// DefaultCooldown is how long a failed proxy is skipped.
const DefaultCooldown = 5 * time.Minute

// Pool rotates through the proxies configured for one scraper. A scraper
// with a single proxy gets a pool of one.
type Pool struct {
	mu       sync.Mutex
	proxies  []*url.URL
	index    int
	failed   map[string]time.Time
	cooldown time.Duration
	now      func() time.Time
}

// NewPool parses the proxy URLs; invalid entries are skipped.
func NewPool(proxies ...string) *Pool {
	p := &Pool{
		failed:   make(map[string]time.Time),
		cooldown: DefaultCooldown,
		now:      time.Now,
	}
	for _, raw := range proxies {
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			continue
		}
		p.proxies = append(p.proxies, u)
	}
	return p
}

// Len returns the number of usable proxy entries
func (p *Pool) Len() int {
	if p == nil {
		return 0
	}
	return len(p.proxies)
}

// Next returns the next healthy proxy, or nil when the pool is empty.
// If every proxy is cooling down the least recently failed one is returned.
func (p *Pool) Next() *url.URL {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.proxies) == 0 {
		return nil
	}

	var oldest *url.URL
	var oldestAt time.Time
	for range p.proxies {
		candidate := p.proxies[p.index]
		p.index = (p.index + 1) % len(p.proxies)

		failedAt, ok := p.failed[candidate.String()]
		if !ok {
			return candidate
		}
		if p.now().Sub(failedAt) >= p.cooldown {
			delete(p.failed, candidate.String())
			return candidate
		}
		if oldest == nil || failedAt.Before(oldestAt) {
			oldest, oldestAt = candidate, failedAt
		}
	}
	return oldest
}

// MarkFailed marks a proxy as failed so it will be skipped for a while
func (p *Pool) MarkFailed(proxy *url.URL) {
	if p == nil || proxy == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failed[proxy.String()] = p.now()
}

// MarkHealthy clears the failure status of a proxy
func (p *Pool) MarkHealthy(proxy *url.URL) {
	if p == nil || proxy == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.failed, proxy.String())
}

// TransportProxy adapts the pool to http.Transport.Proxy.
func (p *Pool) TransportProxy() func(*http.Request) (*url.URL, error) {
	if p == nil || len(p.proxies) == 0 {
		return http.ProxyFromEnvironment
	}
	return func(*http.Request) (*url.URL, error) {
		return p.Next(), nil
	}
}
