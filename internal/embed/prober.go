// Package embed checks that a video actually plays in the embedded player by
// fetching its embed page and scanning it for the player's error messages.
package embed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/FranksOps/curator/internal/cache"
	"github.com/FranksOps/curator/internal/fingerprint"
	"github.com/FranksOps/curator/internal/metrics"
	"github.com/FranksOps/curator/pkg/httpclient"
	"github.com/FranksOps/curator/pkg/proxy"
	"github.com/FranksOps/curator/pkg/ratelimit"
	"github.com/FranksOps/curator/pkg/useragent"
)

// Defaults for Config fields left zero.
const (
	DefaultBaseURL     = "https://www.youtube.com"
	DefaultTimeout     = 10 * time.Second
	DefaultCacheTTL    = 24 * time.Hour
	DefaultConcurrency = 4

	maxBodyBytes = 2 << 20
)

var errRetryStatus = errors.New("embed: retryable status")

// Config configures a Prober.
//
//nolint:govet // fieldalignment
type Config struct {
	BaseURL      string
	Timeout      time.Duration
	CacheTTL     time.Duration
	RPS          float64
	Burst        int
	Jitter       float64
	Concurrency  int
	Fingerprint  fingerprint.Profile
	UserAgents   []string
	Proxies      []string
	RetryBackoff time.Duration
}

// Prober fetches embed pages and memoizes the verdict per video ID.
type Prober struct {
	cfg       Config
	store     *cache.Store
	client    *httpclient.Client
	limiter   *ratelimit.Limiter
	proxies   *proxy.Pool
	detectors []Detector
	logger    *zap.Logger
}

// New builds a Prober. A nil store disables memoization.
func New(cfg Config, store *cache.Store, logger *zap.Logger) (*Prober, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if store == nil {
		store = cache.New(cache.Noop{})
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Fingerprint == "" {
		cfg.Fingerprint = fingerprint.ProfileGo
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 300 * time.Millisecond
	}

	proxies, err := proxy.New(proxy.Config{}, cfg.Proxies...)
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}

	var opts fingerprint.Options
	if proxies.Len() > 0 {
		opts.Proxy = proxy.ProxyFunc
	}
	rt, err := fingerprint.Transport(cfg.Fingerprint, opts)
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}

	return &Prober{
		cfg:   cfg,
		store: store,
		client: httpclient.New(httpclient.Config{
			Timeout:      cfg.Timeout,
			MaxRedirects: 5,
			Transport:    rt,
			UserAgents:   useragent.NewPool(cfg.UserAgents),
		}),
		limiter:   ratelimit.NewLimiter(cfg.RPS, cfg.Burst, cfg.Jitter),
		proxies:   proxies,
		detectors: DefaultDetectors(),
		logger:    logger.With(zap.String("component", "embed")),
	}, nil
}

// CacheKey is the store key holding the verdict for id.
func CacheKey(id string) string {
	return "embed_ok:" + id
}

// URL returns the embed page probed for id.
func (p *Prober) URL(id string) string {
	return p.cfg.BaseURL + "/embed/" + id
}

// Probe reports whether id plays in the embedded player. Verdicts are cached
// for the configured TTL; network failures return false and are not cached.
func (p *Prober) Probe(ctx context.Context, id string) bool {
	id = strings.TrimSpace(id)
	if id == "" {
		return false
	}
	log := p.logger.With(zap.String("stage", "probe"), zap.String("video_id", id))

	if ok, hit := cache.GetJSON[bool](ctx, p.store, CacheKey(id)); hit {
		metrics.RecordProbe(verdictLabel(ok), "cache", 0)
		log.Debug("probe cache hit", zap.Bool("playable", ok))
		return ok
	}

	start := time.Now()
	page, err := p.fetch(ctx, id)
	if err != nil {
		metrics.RecordProbe("error", "network", time.Since(start))
		log.Warn("embed probe failed, treating as unplayable", zap.Error(err))
		return false
	}

	blocked, reason := Analyze(page, p.detectors)
	playable := !blocked
	cache.SetJSON(ctx, p.store, CacheKey(id), playable, p.cfg.CacheTTL)
	metrics.RecordProbe(verdictLabel(playable), "network", time.Since(start))

	if ce := log.Check(zap.DebugLevel, "embed probed"); ce != nil {
		ce.Write(
			zap.Int("status", page.StatusCode),
			zap.String("title", pageTitle(page.Body)),
			zap.Bool("playable", playable),
			zap.String("reason", reason),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
	return playable
}

// ProbeAll probes ids with at most concurrency requests in flight and returns
// verdicts aligned with ids. concurrency <= 0 uses the configured default.
func (p *Prober) ProbeAll(ctx context.Context, ids []string, concurrency int) []bool {
	if concurrency <= 0 {
		concurrency = p.cfg.Concurrency
	}
	out := make([]bool, len(ids))

	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, id := range ids {
		g.Go(func() error {
			out[i] = p.Probe(ctx, id)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// fetch GETs the embed page, retrying once on transport errors, 429 and 5xx.
// A page is returned whenever the last attempt produced a response.
func (p *Prober) fetch(ctx context.Context, id string) (*Page, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.cfg.RetryBackoff
	bo.MaxInterval = 4 * p.cfg.RetryBackoff

	var last *Page
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		last = nil
		page, err := p.fetchOnce(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return struct{}{}, backoff.Permanent(err)
			}
			return struct{}{}, err
		}
		last = page
		if page.StatusCode == http.StatusTooManyRequests || page.StatusCode >= 500 {
			return struct{}{}, errRetryStatus
		}
		return struct{}{}, nil
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(2))

	if last != nil {
		return last, nil
	}
	return nil, err
}

func (p *Prober) fetchOnce(ctx context.Context, id string) (*Page, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	reqCtx := ctx
	via := p.proxies.Next()
	if via != nil {
		reqCtx = proxy.WithProxy(ctx, via)
	}

	resp, err := p.client.Get(reqCtx, p.URL(id))
	if err != nil {
		if via != nil {
			_ = p.proxies.Report(via, false)
		}
		return nil, err
	}
	defer resp.Body.Close()
	if via != nil {
		_ = p.proxies.Report(via, true)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return &Page{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

// pageTitle extracts the document title for diagnostics.
func pageTitle(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

func verdictLabel(playable bool) string {
	if playable {
		return "playable"
	}
	return "blocked"
}
