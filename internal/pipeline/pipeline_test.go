package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FranksOps/curator/internal/cache"
	"github.com/FranksOps/curator/internal/rank"
	"github.com/FranksOps/curator/internal/video"
)

type fakeSearcher struct {
	ids   []string
	calls atomic.Int32
	hook  func(ctx context.Context)
}

func (f *fakeSearcher) SearchIDs(ctx context.Context, _ string) []string {
	f.calls.Add(1)
	if f.hook != nil {
		f.hook(ctx)
	}
	return f.ids
}

type fakeValidator struct {
	byID map[string]video.Validated
	seen []string
}

func (f *fakeValidator) Validate(_ context.Context, ids []string) []video.Validated {
	f.seen = ids
	var out []video.Validated
	for _, id := range ids {
		if v, ok := f.byID[id]; ok {
			out = append(out, v)
		}
	}
	return out
}

type fakeProber struct {
	playable map[string]bool
	delay    time.Duration

	mu       sync.Mutex
	probed   []string
	inFlight int32
	peak     int32
}

func (f *fakeProber) Probe(_ context.Context, id string) bool {
	n := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		p := atomic.LoadInt32(&f.peak)
		if n <= p || atomic.CompareAndSwapInt32(&f.peak, p, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	f.probed = append(f.probed, id)
	f.mu.Unlock()
	return f.playable[id]
}

type panicProber struct {
	panicOn map[string]bool
}

func (p panicProber) Probe(_ context.Context, id string) bool {
	if p.panicOn[id] {
		panic("probe failed: " + id)
	}
	return true
}

type panicValidator struct{}

func (panicValidator) Validate(context.Context, []string) []video.Validated {
	panic("boom")
}

func meta(id string, views, likes uint64) video.Validated {
	return video.Validated{ID: id, Title: "Video " + id, ViewCount: views, LikeCount: likes, Embeddable: true, PrivacyStatus: "public"}
}

func catalog(vs ...video.Validated) map[string]video.Validated {
	m := make(map[string]video.Validated, len(vs))
	for _, v := range vs {
		m[v.ID] = v
	}
	return m
}

func allPlayable(ids ...string) map[string]bool {
	m := make(map[string]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return m
}

func TestRun_RanksPlayableVideos(t *testing.T) {
	s := &fakeSearcher{ids: []string{"a", "b", "c", "d"}}
	v := &fakeValidator{byID: catalog(meta("a", 100, 10), meta("b", 500, 5), meta("c", 50, 100), meta("d", 9000, 900))}
	pr := &fakeProber{playable: allPlayable("a", "b", "c")}

	p := New(s, v, pr, rank.New())
	out := p.Run(context.Background(), Request{Query: "Intro to Recursion"})

	require.False(t, out.Fallback())
	require.Len(t, out.Results, 3)
	assert.Equal(t, "Video b", out.Results[0].Title)
	assert.Equal(t, "Video a", out.Results[1].Title)
	assert.Equal(t, "Video c", out.Results[2].Title)
	assert.Equal(t, video.WatchURL("b"), *out.Results[0].URL)

	assert.Equal(t, 4, out.Trace.Candidates)
	assert.Equal(t, 4, out.Trace.Validated)
	assert.Equal(t, 4, out.Trace.Probed)
	assert.Equal(t, 3, out.Trace.Playable)
	assert.Equal(t, 3, out.Trace.Ranked)
	assert.Empty(t, out.Trace.FallbackReason)
	assert.NotEmpty(t, out.Trace.RunID)
}

func TestRun_FallbackReasons(t *testing.T) {
	tests := []struct {
		name     string
		ids      []string
		catalog  map[string]video.Validated
		playable map[string]bool
		want     string
	}{
		{
			name: "search returns nothing",
			want: ReasonNoCandidates,
		},
		{
			name:    "every candidate rejected",
			ids:     []string{"a", "b"},
			catalog: catalog(),
			want:    ReasonNoValidMetadata,
		},
		{
			name:     "nothing plays embedded",
			ids:      []string{"a", "b"},
			catalog:  catalog(meta("a", 1, 1), meta("b", 2, 2)),
			playable: map[string]bool{},
			want:     ReasonNoPlayableEmbeds,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(&fakeSearcher{ids: tt.ids}, &fakeValidator{byID: tt.catalog}, &fakeProber{playable: tt.playable}, rank.New())
			out := p.Run(context.Background(), Request{Query: "anything"})

			require.True(t, out.Fallback())
			assert.Equal(t, video.Fallback(), out.Results)
			assert.Equal(t, tt.want, out.Trace.FallbackReason)
		})
	}
}

func TestRun_BlankQueryFallsBackWithoutSearching(t *testing.T) {
	s := &fakeSearcher{ids: []string{"a"}}
	p := New(s, &fakeValidator{}, &fakeProber{}, rank.New())

	out := p.Run(context.Background(), Request{Query: "   "})
	assert.True(t, out.Fallback())
	assert.Equal(t, ReasonNoCandidates, out.Trace.FallbackReason)
	assert.Zero(t, s.calls.Load())
}

func TestRun_ProbesAtMostMaxProbe(t *testing.T) {
	ids := []string{"v1", "v2", "v3", "v4", "v5", "v6", "v7", "v8", "v9", "v10", "v11", "v12"}
	var vs []video.Validated
	for i, id := range ids {
		vs = append(vs, meta(id, uint64(100*(i+1)), 1))
	}
	pr := &fakeProber{playable: allPlayable(ids...)}

	p := New(&fakeSearcher{ids: ids}, &fakeValidator{byID: catalog(vs...)}, pr, rank.New())
	out := p.Run(context.Background(), Request{Query: "sorting"})

	require.False(t, out.Fallback())
	assert.Len(t, pr.probed, DefaultMaxProbe)
	assert.ElementsMatch(t, ids[:DefaultMaxProbe], pr.probed)
	assert.Equal(t, DefaultMaxProbe, out.Trace.Probed)
	// v9..v12 have the most views but sit past the probe slice.
	assert.Equal(t, "Video v8", out.Results[0].Title)
}

func TestRun_ProbeConcurrencyBounded(t *testing.T) {
	ids := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	var vs []video.Validated
	for _, id := range ids {
		vs = append(vs, meta(id, 10, 1))
	}
	pr := &fakeProber{playable: allPlayable(ids...), delay: 20 * time.Millisecond}

	p := New(&fakeSearcher{ids: ids}, &fakeValidator{byID: catalog(vs...)}, pr, rank.New(),
		WithConfig(Config{Concurrency: 2}))
	p.Run(context.Background(), Request{Query: "graphs"})

	assert.LessOrEqual(t, atomic.LoadInt32(&pr.peak), int32(2))
	assert.Len(t, pr.probed, len(ids))
}

func TestRun_VerdictsFollowValidatorOrder(t *testing.T) {
	ids := []string{"x", "y", "z"}
	pr := &fakeProber{playable: allPlayable("x", "z")}
	p := New(&fakeSearcher{ids: ids}, &fakeValidator{byID: catalog(meta("x", 1, 0), meta("y", 2, 0), meta("z", 3, 0))}, pr, rank.New())

	out := p.Run(context.Background(), Request{Query: "q"})
	require.Len(t, out.Trace.Verdicts, 3)
	assert.Equal(t, ProbeVerdict{ID: "x", Title: "Video x", Playable: true}, out.Trace.Verdicts[0])
	assert.Equal(t, ProbeVerdict{ID: "y", Title: "Video y", Playable: false}, out.Trace.Verdicts[1])
	assert.Equal(t, ProbeVerdict{ID: "z", Title: "Video z", Playable: true}, out.Trace.Verdicts[2])
}

func TestRun_ResultCacheHit(t *testing.T) {
	store := cache.New(cache.NewMemory())
	s := &fakeSearcher{ids: []string{"a"}}
	p := New(s, &fakeValidator{byID: catalog(meta("a", 5, 1))}, &fakeProber{playable: allPlayable("a")}, rank.New(),
		WithResultCache(store))

	first := p.Run(context.Background(), Request{Query: "Linked Lists"})
	require.False(t, first.Fallback())
	assert.False(t, first.Trace.CacheHit)

	second := p.Run(context.Background(), Request{Query: "  linked   LISTS "})
	assert.True(t, second.Trace.CacheHit)
	assert.Equal(t, first.Results, second.Results)
	assert.EqualValues(t, 1, s.calls.Load())
}

func TestRun_ScopeIsolatesCache(t *testing.T) {
	store := cache.New(cache.NewMemory())
	s := &fakeSearcher{ids: []string{"a"}}
	p := New(s, &fakeValidator{byID: catalog(meta("a", 5, 1))}, &fakeProber{playable: allPlayable("a")}, rank.New(),
		WithResultCache(store))

	p.Run(context.Background(), Request{Query: "trees", Scope: []string{"course-1"}})
	p.Run(context.Background(), Request{Query: "trees", Scope: []string{"course-2"}})
	assert.EqualValues(t, 2, s.calls.Load())
	assert.NotEqual(t,
		ResultKey(Request{Query: "trees", Scope: []string{"course-1"}}),
		ResultKey(Request{Query: "trees", Scope: []string{"course-2"}}))

	p.Run(context.Background(), Request{Query: "trees|course-1"})
	assert.EqualValues(t, 3, s.calls.Load(), "a query containing the scope text must not reuse the scoped entry")
	assert.NotEqual(t,
		ResultKey(Request{Query: "binary trees", Scope: []string{"cs101"}}),
		ResultKey(Request{Query: "binary trees|cs101"}))
}

func TestRun_FallbackIsNotCached(t *testing.T) {
	store := cache.New(cache.NewMemory())
	s := &fakeSearcher{}
	p := New(s, &fakeValidator{}, &fakeProber{}, rank.New(), WithResultCache(store))

	p.Run(context.Background(), Request{Query: "heaps"})
	p.Run(context.Background(), Request{Query: "heaps"})
	assert.EqualValues(t, 2, s.calls.Load())
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := &fakeSearcher{ids: []string{"a"}}
	p := New(s, &fakeValidator{}, &fakeProber{}, rank.New())
	out := p.Run(ctx, Request{Query: "tries"})

	assert.True(t, out.Fallback())
	assert.Equal(t, ReasonCancelled, out.Trace.FallbackReason)
	assert.Zero(t, s.calls.Load())
}

func TestRun_CancelledMidRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var stopped atomic.Bool
	s := &fakeSearcher{ids: []string{"a"}, hook: func(runCtx context.Context) {
		cancel()
		select {
		case <-runCtx.Done():
			stopped.Store(true)
		case <-time.After(2 * time.Second):
		}
	}}
	v := &fakeValidator{byID: catalog(meta("a", 1, 1))}
	p := New(s, v, &fakeProber{playable: allPlayable("a")}, rank.New())

	out := p.Run(ctx, Request{Query: "stacks"})
	assert.True(t, out.Fallback())
	assert.Equal(t, ReasonCancelled, out.Trace.FallbackReason)
	// The only caller left, so the run itself is cancelled too.
	assert.Eventually(t, stopped.Load, time.Second, 5*time.Millisecond)
}

func TestRun_SharedRunSurvivesLeaderCancel(t *testing.T) {
	release := make(chan struct{})
	s := &fakeSearcher{ids: []string{"a", "b"}, hook: func(context.Context) { <-release }}
	v := &fakeValidator{byID: catalog(meta("a", 10, 1), meta("b", 20, 2))}
	p := New(s, v, &fakeProber{playable: allPlayable("a", "b")}, rank.New())
	req := Request{Query: "hash tables"}
	key := ResultKey(req)

	waiters := func() int {
		p.mu.Lock()
		defer p.mu.Unlock()
		if f, ok := p.flights[key]; ok {
			return f.waiters
		}
		return 0
	}

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderDone := make(chan Outcome, 1)
	go func() { leaderDone <- p.Run(leaderCtx, req) }()
	require.Eventually(t, func() bool { return s.calls.Load() == 1 }, time.Second, time.Millisecond)

	followerDone := make(chan Outcome, 1)
	go func() { followerDone <- p.Run(context.Background(), req) }()
	require.Eventually(t, func() bool { return waiters() == 2 }, time.Second, time.Millisecond)

	cancelLeader()
	leader := <-leaderDone
	assert.Equal(t, ReasonCancelled, leader.Trace.FallbackReason)

	close(release)
	follower := <-followerDone
	require.False(t, follower.Fallback(), "follower got fallback %q", follower.Trace.FallbackReason)
	assert.True(t, follower.Trace.Shared)
	assert.Equal(t, "Video b", follower.Results[0].Title)
	assert.EqualValues(t, 1, s.calls.Load())
	assert.Zero(t, waiters())
}

func TestRun_PanicBecomesFallback(t *testing.T) {
	p := New(&fakeSearcher{ids: []string{"a"}}, panicValidator{}, &fakeProber{}, rank.New())

	var out Outcome
	require.NotPanics(t, func() {
		out = p.Run(context.Background(), Request{Query: "queues"})
	})
	assert.True(t, out.Fallback())
	assert.Equal(t, ReasonInternal, out.Trace.FallbackReason)
}

func TestRun_PanickingProbeIsUnplayable(t *testing.T) {
	ids := []string{"a", "b", "c"}
	v := &fakeValidator{byID: catalog(meta("a", 10, 0), meta("b", 900, 0), meta("c", 20, 0))}
	p := New(&fakeSearcher{ids: ids}, v, panicProber{panicOn: map[string]bool{"b": true}}, rank.New())

	var out Outcome
	require.NotPanics(t, func() {
		out = p.Run(context.Background(), Request{Query: "arrays"})
	})
	require.False(t, out.Fallback())
	require.Len(t, out.Results, 2)
	assert.Equal(t, "Video c", out.Results[0].Title)
	assert.Equal(t, "Video a", out.Results[1].Title)
	assert.False(t, out.Trace.Verdicts[1].Playable)
}

func TestRun_EveryProbePanics(t *testing.T) {
	v := &fakeValidator{byID: catalog(meta("a", 10, 0))}
	p := New(&fakeSearcher{ids: []string{"a"}}, v, panicProber{panicOn: map[string]bool{"a": true}}, rank.New())

	out := p.Run(context.Background(), Request{Query: "strings"})
	assert.True(t, out.Fallback())
	assert.Equal(t, ReasonNoPlayableEmbeds, out.Trace.FallbackReason)
}

func TestNew_ClampsMaxProbe(t *testing.T) {
	ids := make([]string, 20)
	var vs []video.Validated
	for i := range ids {
		ids[i] = string(rune('a' + i))
		vs = append(vs, meta(ids[i], 1, 0))
	}
	pr := &fakeProber{playable: allPlayable(ids...)}
	p := New(&fakeSearcher{ids: ids}, &fakeValidator{byID: catalog(vs...)}, pr, rank.New(),
		WithConfig(Config{MaxProbe: 20}))

	out := p.Run(context.Background(), Request{Query: "matrices"})
	assert.Equal(t, DefaultMaxProbe, out.Trace.Probed)
	assert.Len(t, pr.probed, DefaultMaxProbe)
}

func TestGetSafeVideos_OneToThreeOrSentinel(t *testing.T) {
	ids := []string{"a", "b", "c", "d", "e"}
	var vs []video.Validated
	for i, id := range ids {
		vs = append(vs, meta(id, uint64(i+1), 0))
	}
	p := New(&fakeSearcher{ids: ids}, &fakeValidator{byID: catalog(vs...)}, &fakeProber{playable: allPlayable(ids...)}, rank.New())

	got := p.GetSafeVideos(context.Background(), "dynamic programming")
	require.Len(t, got, 3)
	for _, r := range got {
		require.NotNil(t, r.URL)
	}

	empty := New(&fakeSearcher{}, &fakeValidator{}, &fakeProber{}, rank.New())
	assert.Equal(t, video.Fallback(), empty.GetSafeVideos(context.Background(), "nothing here"))
}

func TestTrace_String(t *testing.T) {
	tr := Trace{RunID: "r1", Candidates: 4, Validated: 2, Probed: 2, Playable: 0, FallbackReason: ReasonNoPlayableEmbeds}
	assert.Equal(t, "run=r1 candidates=4 validated=2 probed=2 playable=0 ranked=0 fallback=no_playable_embeds", tr.String())
}
