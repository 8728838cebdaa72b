// Package youtube wraps the two Data API calls the curation pipeline makes:
// an id-only search and a bulk videos.list used for metadata validation.
package youtube

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/googleapi/transport"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/FranksOps/curator/internal/metrics"
	"github.com/FranksOps/curator/pkg/httpclient"
)

// ErrMissingCredential is returned internally when no API key is configured.
var ErrMissingCredential = errors.New("youtube: API key not configured")

// Upstream limits and defaults.
const (
	MaxBatch          = 50
	DefaultMaxResults = 15
	DefaultSafeSearch = "strict"
	DefaultTimeout    = 10 * time.Second
)

// Config configures the Data API client.
//
//nolint:govet // fieldalignment
type Config struct {
	APIKey string
	// Endpoint overrides the API base URL, e.g. an httptest server.
	Endpoint          string
	Timeout           time.Duration
	RegionCode        string
	RelevanceLanguage string
	MaxResults        int64
	SafeSearch        string
	// DailyQuota and QuotaThreshold (percent) bound units spent per UTC day.
	DailyQuota     int
	QuotaThreshold int
	// RetryBackoff is the initial delay before the single retry.
	RetryBackoff time.Duration
	// Transport is the base round tripper. Defaults to http.DefaultTransport.
	Transport http.RoundTripper
}

// Client performs the search and validation calls. A Client without an API key
// is valid: every call returns empty without touching the network.
type Client struct {
	svc    *youtube.Service
	cfg    Config
	budget *Budget
	logger *zap.Logger

	missingOnce sync.Once
}

// NewClient builds a client. It only fails when the service cannot be constructed.
func NewClient(ctx context.Context, cfg Config, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxResults <= 0 || cfg.MaxResults > MaxBatch {
		cfg.MaxResults = DefaultMaxResults
	}
	if cfg.SafeSearch == "" {
		cfg.SafeSearch = DefaultSafeSearch
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 250 * time.Millisecond
	}
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)

	c := &Client{
		cfg:    cfg,
		budget: NewBudget(cfg.DailyQuota, cfg.QuotaThreshold),
		logger: logger.With(zap.String("component", "youtube")),
	}
	if cfg.APIKey == "" {
		return c, nil
	}

	// option.WithAPIKey is ignored once a custom client is supplied, so the
	// key is attached by the transport instead.
	hc := httpclient.New(httpclient.Config{
		Timeout:   cfg.Timeout,
		Transport: &transport.APIKey{Key: cfg.APIKey, Transport: cfg.Transport},
	})
	opts := []option.ClientOption{option.WithHTTPClient(hc.Client)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(strings.TrimRight(cfg.Endpoint, "/")+"/"))
	}

	svc, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("youtube: create service: %w", err)
	}
	c.svc = svc
	return c, nil
}

// Configured reports whether an API key is present.
func (c *Client) Configured() bool {
	return c.svc != nil
}

// Budget exposes the quota tracker.
func (c *Client) Budget() *Budget {
	return c.budget
}

// ready reports whether a call may be made, logging the missing credential once.
func (c *Client) ready(call string) bool {
	if c.Configured() {
		return true
	}
	metrics.YouTubeCallsTotal.WithLabelValues(call, "unconfigured").Inc()
	c.missingOnce.Do(func() {
		c.logger.Error("youtube API key missing, search and validation disabled", zap.Error(ErrMissingCredential))
	})
	return false
}
