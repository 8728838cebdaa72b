// Package pipeline turns a free-text course or module title into at most three
// safe, embeddable, ranked videos, or the fallback sentinel.
//
// The stages run in a fixed order: search, validate, slice, probe, rank. Any
// stage that yields nothing ends the run with the sentinel; no stage error ever
// reaches the caller.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/FranksOps/curator/internal/cache"
	"github.com/FranksOps/curator/internal/metrics"
	"github.com/FranksOps/curator/internal/video"
)

// Searcher returns candidate IDs for a query in relevance order.
type Searcher interface {
	SearchIDs(ctx context.Context, query string) []string
}

// Validator keeps the candidates whose metadata passes every rule.
type Validator interface {
	Validate(ctx context.Context, ids []string) []video.Validated
}

// Prober reports whether a video plays in the embedded player.
type Prober interface {
	Probe(ctx context.Context, id string) bool
}

// Ranker orders and truncates the playable set.
type Ranker interface {
	Rank(videos []video.Validated) []video.Result
}

// Fallback reasons recorded in the trace.
const (
	ReasonNoCandidates     = "no_candidates"
	ReasonNoValidMetadata  = "no_valid_metadata"
	ReasonNoPlayableEmbeds = "no_playable_embeds"
	ReasonCancelled        = "cancelled"
	ReasonInternal         = "internal_error"
)

// Defaults for Config fields left zero. MaxProbe is also the upper bound.
const (
	DefaultMaxProbe    = 8
	DefaultConcurrency = 4
	DefaultResultTTL   = 10 * time.Minute
)

// Config bounds a pipeline run.
type Config struct {
	// MaxProbe caps how many validated candidates are probed.
	MaxProbe int
	// Concurrency caps probes in flight.
	Concurrency int
	// ResultTTL is how long a non-fallback result list is reused.
	ResultTTL time.Duration
}

// Request is one lookup. Scope isolates cached results, e.g. course and module IDs.
type Request struct {
	Query string
	Scope []string
}

// ProbeVerdict is the probe outcome for one sliced candidate.
type ProbeVerdict struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Playable bool   `json:"playable"`
}

// Trace records what each stage did during a run.
type Trace struct {
	RunID          string         `json:"run_id"`
	Query          string         `json:"query"`
	Scope          []string       `json:"scope,omitempty"`
	StartedAt      time.Time      `json:"started_at"`
	Duration       time.Duration  `json:"duration"`
	CacheHit       bool           `json:"cache_hit"`
	Shared         bool           `json:"shared"`
	Candidates     int            `json:"candidates"`
	Validated      int            `json:"validated"`
	Probed         int            `json:"probed"`
	Playable       int            `json:"playable"`
	Ranked         int            `json:"ranked"`
	Verdicts       []ProbeVerdict `json:"verdicts,omitempty"`
	FallbackReason string         `json:"fallback_reason,omitempty"`
}

// Outcome is the result list plus the trace of the run that produced it.
type Outcome struct {
	Results []video.Result
	Trace   Trace
}

// Fallback reports whether the outcome is the sentinel.
func (o Outcome) Fallback() bool {
	return video.IsFallback(o.Results)
}

// Pipeline sequences the stages. It is safe for concurrent use.
type Pipeline struct {
	searcher  Searcher
	validator Validator
	prober    Prober
	ranker    Ranker

	results *cache.Store
	cfg     Config
	logger  *zap.Logger
	group   singleflight.Group
	now     func() time.Time

	mu      sync.Mutex
	flights map[string]*flight
}

// flight is the context of one shared run. It is cancelled once every caller
// waiting on it has gone.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithConfig sets the run bounds.
func WithConfig(cfg Config) Option {
	return func(p *Pipeline) { p.cfg = cfg }
}

// WithResultCache enables reuse of result lists per normalized query and scope.
func WithResultCache(s *cache.Store) Option {
	return func(p *Pipeline) { p.results = s }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// New wires the four stages into a pipeline.
func New(s Searcher, v Validator, pr Prober, r Ranker, opts ...Option) *Pipeline {
	p := &Pipeline{
		searcher:  s,
		validator: v,
		prober:    pr,
		ranker:    r,
		logger:    zap.NewNop(),
		now:       time.Now,
		flights:   make(map[string]*flight),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.cfg.MaxProbe <= 0 || p.cfg.MaxProbe > DefaultMaxProbe {
		p.cfg.MaxProbe = DefaultMaxProbe
	}
	if p.cfg.Concurrency <= 0 {
		p.cfg.Concurrency = DefaultConcurrency
	}
	if p.cfg.ResultTTL <= 0 {
		p.cfg.ResultTTL = DefaultResultTTL
	}
	p.logger = p.logger.With(zap.String("component", "pipeline"))
	return p
}

// GetSafeVideos returns 1 to 3 ranked videos for query, or the sentinel.
func (p *Pipeline) GetSafeVideos(ctx context.Context, query string) []video.Result {
	return p.Run(ctx, Request{Query: query}).Results
}

// Run executes one lookup. It never panics and always returns 1 to 3 results
// or the sentinel.
func (p *Pipeline) Run(ctx context.Context, req Request) (out Outcome) {
	trace := Trace{
		RunID:     uuid.NewString(),
		Query:     req.Query,
		Scope:     cleanScope(req.Scope),
		StartedAt: p.now(),
	}
	log := p.logger.With(zap.String("run_id", trace.RunID), zap.String("query", req.Query))

	defer func() {
		if r := recover(); r != nil {
			log.Error("pipeline stage panicked, returning fallback", zap.Any("panic", r), zap.Stack("stack"))
			out = p.fallback(trace, ReasonInternal)
		}
		out.Trace.Duration = p.now().Sub(out.Trace.StartedAt)
		metrics.RecordRun(out.Fallback(), out.Trace.FallbackReason, out.Trace.Duration)
		log.Info("pipeline finished",
			zap.Int("results", len(out.Results)),
			zap.Bool("fallback", out.Fallback()),
			zap.String("reason", out.Trace.FallbackReason),
			zap.Bool("cache_hit", out.Trace.CacheHit),
			zap.Duration("elapsed", out.Trace.Duration),
		)
	}()

	if video.NormalizeQuery(req.Query) == "" {
		return p.fallback(trace, ReasonNoCandidates)
	}
	if ctx.Err() != nil {
		return p.fallback(trace, ReasonCancelled)
	}

	key := ResultKey(req)
	if cached, ok := p.cachedResults(ctx, key); ok {
		trace.CacheHit = true
		trace.Ranked = len(cached)
		return Outcome{Results: cached, Trace: trace}
	}

	// Identical concurrent lookups share one run. The run outlives any single
	// caller and stops only when the last one has left.
	f := p.join(ctx, key)
	defer p.leave(key, f)

	ch := p.group.DoChan(key, func() (v any, err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("pipeline stage panicked, returning fallback", zap.Any("panic", r), zap.Stack("stack"))
				v, err = p.fallback(trace, ReasonInternal), nil
			}
		}()
		return p.execute(f.ctx, req, trace, log), nil
	})

	select {
	case r := <-ch:
		res := r.Val.(Outcome)
		if r.Shared {
			res.Trace.Shared = true
			res.Results = cloneResults(res.Results)
		}
		return res
	case <-ctx.Done():
		return p.fallback(trace, ReasonCancelled)
	}
}

// join registers the caller on the shared run context for key.
func (p *Pipeline) join(ctx context.Context, key string) *flight {
	p.mu.Lock()
	defer p.mu.Unlock()
	f, ok := p.flights[key]
	if !ok {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{ctx: fctx, cancel: cancel}
		p.flights[key] = f
	}
	f.waiters++
	return f
}

// leave drops the caller. The last one out cancels the run and forgets it, so
// a later caller never joins a cancelled run.
func (p *Pipeline) leave(key string, f *flight) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f.waiters--
	if f.waiters > 0 {
		return
	}
	f.cancel()
	if p.flights[key] == f {
		delete(p.flights, key)
		p.group.Forget(key)
	}
}

func (p *Pipeline) execute(ctx context.Context, req Request, trace Trace, log *zap.Logger) Outcome {
	if ctx.Err() != nil {
		return p.fallback(trace, ReasonCancelled)
	}

	ids := p.searcher.SearchIDs(ctx, req.Query)
	trace.Candidates = len(ids)
	log.Debug("search stage", zap.Int("candidates", len(ids)))
	if len(ids) == 0 {
		return p.fallback(trace, p.emptyReason(ctx, ReasonNoCandidates))
	}
	if ctx.Err() != nil {
		return p.fallback(trace, ReasonCancelled)
	}

	valid := p.validator.Validate(ctx, ids)
	trace.Validated = len(valid)
	log.Debug("validate stage", zap.Int("validated", len(valid)))
	if len(valid) == 0 {
		return p.fallback(trace, p.emptyReason(ctx, ReasonNoValidMetadata))
	}
	if ctx.Err() != nil {
		return p.fallback(trace, ReasonCancelled)
	}

	if len(valid) > p.cfg.MaxProbe {
		valid = valid[:p.cfg.MaxProbe]
	}
	playable, verdicts := p.probeAll(ctx, valid, log)
	trace.Probed = len(valid)
	trace.Playable = len(playable)
	trace.Verdicts = verdicts
	log.Debug("probe stage", zap.Int("probed", len(valid)), zap.Int("playable", len(playable)))
	if len(playable) == 0 {
		return p.fallback(trace, p.emptyReason(ctx, ReasonNoPlayableEmbeds))
	}

	results := p.ranker.Rank(playable)
	if len(results) > 3 {
		results = results[:3]
	}
	trace.Ranked = len(results)
	if len(results) == 0 {
		return p.fallback(trace, ReasonNoPlayableEmbeds)
	}

	if p.results != nil && ctx.Err() == nil {
		cache.SetJSON(ctx, p.results, ResultKey(req), results, p.cfg.ResultTTL)
	}
	return Outcome{Results: results, Trace: trace}
}

// probeAll probes candidates with bounded concurrency and keeps the playable
// ones in validator order.
// A prober that panics yields an unplayable verdict for that candidate.
func (p *Pipeline) probeAll(ctx context.Context, candidates []video.Validated, log *zap.Logger) ([]video.Validated, []ProbeVerdict) {
	ok := make([]bool, len(candidates))

	var g errgroup.Group
	g.SetLimit(p.cfg.Concurrency)
	for i, c := range candidates {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					ok[i] = false
					log.Error("embed probe panicked, treating as unplayable",
						zap.String("video_id", c.ID), zap.Any("panic", r), zap.Stack("stack"))
				}
			}()
			ok[i] = p.prober.Probe(ctx, c.ID)
			return nil
		})
	}
	_ = g.Wait()

	playable := make([]video.Validated, 0, len(candidates))
	verdicts := make([]ProbeVerdict, len(candidates))
	for i, c := range candidates {
		verdicts[i] = ProbeVerdict{ID: c.ID, Title: c.Title, Playable: ok[i]}
		if ok[i] {
			playable = append(playable, c)
		}
	}
	return playable, verdicts
}

func (p *Pipeline) fallback(trace Trace, reason string) Outcome {
	trace.FallbackReason = reason
	return Outcome{Results: video.Fallback(), Trace: trace}
}

func (p *Pipeline) emptyReason(ctx context.Context, reason string) string {
	if ctx.Err() != nil {
		return ReasonCancelled
	}
	return reason
}

// cachedResults returns a previously stored result list. Anything that is not
// a well-formed 1 to 3 item list is ignored.
func (p *Pipeline) cachedResults(ctx context.Context, key string) ([]video.Result, bool) {
	if p.results == nil {
		return nil, false
	}
	results, ok := cache.GetJSON[[]video.Result](ctx, p.results, key)
	if !ok || len(results) == 0 || len(results) > 3 {
		return nil, false
	}
	for _, r := range results {
		if r.URL == nil {
			return nil, false
		}
	}
	return results, true
}

// ResultKey is the result cache key for req: the normalized query plus its scope.
func ResultKey(req Request) string {
	parts := append([]string{"videos", video.NormalizeQuery(req.Query)}, cleanScope(req.Scope)...)
	return cache.Key(parts...)
}

func cleanScope(scope []string) []string {
	var out []string
	for _, s := range scope {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func cloneResults(in []video.Result) []video.Result {
	out := make([]video.Result, len(in))
	copy(out, in)
	for i := range out {
		if out[i].URL != nil {
			u := *out[i].URL
			out[i].URL = &u
		}
	}
	return out
}

// String renders the trace on one line for logs and the CLI.
func (t Trace) String() string {
	s := fmt.Sprintf("run=%s candidates=%d validated=%d probed=%d playable=%d ranked=%d",
		t.RunID, t.Candidates, t.Validated, t.Probed, t.Playable, t.Ranked)
	if t.CacheHit {
		s += " cache=hit"
	}
	if t.FallbackReason != "" {
		s += " fallback=" + t.FallbackReason
	}
	return s
}
