// Package proxy rotates outbound embed probes across a set of HTTP or SOCKS
// proxies, benching a proxy after repeated failures.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// endpoint is one proxy with health tracking.
type endpoint struct {
	url        *url.URL
	failures   int
	benchUntil time.Time
}

// Config defines settings for the Pool.
type Config struct {
	// MaxFailures consecutive failures bench a proxy.
	MaxFailures int
	// Cooldown is how long a benched proxy sits out.
	Cooldown time.Duration
}

// Pool hands out proxies round-robin, skipping benched ones. It is safe for concurrent use.
type Pool struct {
	mu          sync.Mutex
	endpoints   []*endpoint
	next        int
	maxFailures int
	cooldown    time.Duration
	now         func() time.Time
}

// New parses rawURLs into a pool. A missing scheme defaults to http.
func New(cfg Config, rawURLs ...string) (*Pool, error) {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Minute
	}
	p := &Pool{
		maxFailures: cfg.MaxFailures,
		cooldown:    cfg.Cooldown,
		now:         time.Now,
	}
	for _, raw := range rawURLs {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if !strings.Contains(raw, "://") {
			raw = "http://" + raw
		}
		u, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("proxy: parse %q: %w", raw, err)
		}
		p.endpoints = append(p.endpoints, &endpoint{url: u})
	}
	return p, nil
}

// Len reports the number of configured proxies.
func (p *Pool) Len() int {
	if p == nil {
		return 0
	}
	return len(p.endpoints)
}

// Next returns the next usable proxy, or nil when none is configured or all are benched.
func (p *Pool) Next() *url.URL {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	for i := 0; i < len(p.endpoints); i++ {
		ep := p.endpoints[p.next]
		p.next = (p.next + 1) % len(p.endpoints)

		if !ep.benchUntil.IsZero() && now.Before(ep.benchUntil) {
			continue
		}
		if !ep.benchUntil.IsZero() {
			ep.benchUntil = time.Time{}
			ep.failures = 0
		}
		return ep.url
	}
	return nil
}

// Report records the outcome of a request sent through u.
func (p *Pool) Report(u *url.URL, ok bool) error {
	if u == nil {
		return errors.New("proxy: nil url")
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	ep := p.find(u)
	if ep == nil {
		return fmt.Errorf("proxy: %s not in pool", u.Redacted())
	}
	if ok {
		ep.failures = 0
		return nil
	}
	ep.failures++
	if ep.failures >= p.maxFailures {
		ep.benchUntil = p.now().Add(p.cooldown)
	}
	return nil
}

func (p *Pool) find(u *url.URL) *endpoint {
	target := u.String()
	for _, ep := range p.endpoints {
		if ep.url.String() == target {
			return ep
		}
	}
	return nil
}

type ctxKey struct{}

// WithProxy attaches u to ctx for ProxyFunc to pick up.
func WithProxy(ctx context.Context, u *url.URL) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

// FromContext returns the proxy attached by WithProxy, if any.
func FromContext(ctx context.Context) *url.URL {
	u, _ := ctx.Value(ctxKey{}).(*url.URL)
	return u
}

// ProxyFunc is an http.Transport Proxy that routes each request through the
// proxy attached to its context, and connects directly otherwise.
func ProxyFunc(req *http.Request) (*url.URL, error) {
	return FromContext(req.Context()), nil
}
