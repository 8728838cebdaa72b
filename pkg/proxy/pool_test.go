package proxy

import (
	"context"
	"net/http"
	"testing"
	"time"
)

func TestPool_Rotation(t *testing.T) {
	pool, err := New(Config{}, "127.0.0.1:8080", "http://127.0.0.1:8081", " ", "socks5://127.0.0.1:9050")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pool.Len() != 3 {
		t.Fatalf("expected 3 proxies, got %d", pool.Len())
	}

	want := []string{
		"http://127.0.0.1:8080",
		"http://127.0.0.1:8081",
		"socks5://127.0.0.1:9050",
		"http://127.0.0.1:8080",
	}
	for i, w := range want {
		if got := pool.Next(); got == nil || got.String() != w {
			t.Errorf("call %d: expected %s, got %v", i, w, got)
		}
	}
}

func TestPool_BenchAndRecover(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	pool, _ := New(Config{MaxFailures: 2, Cooldown: time.Minute}, "http://a", "http://b")
	pool.now = func() time.Time { return now }

	a := pool.Next()
	_ = pool.Report(a, false)
	_ = pool.Report(a, false)

	for i := 0; i < 4; i++ {
		if got := pool.Next(); got.String() != "http://b" {
			t.Fatalf("expected benched proxy a to be skipped, got %s", got)
		}
	}

	now = now.Add(time.Minute)
	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		seen[pool.Next().String()] = true
	}
	if !seen["http://a"] {
		t.Error("expected proxy a back after cooldown")
	}
}

func TestPool_AllBenched(t *testing.T) {
	pool, _ := New(Config{MaxFailures: 1, Cooldown: time.Hour}, "http://a")
	_ = pool.Report(pool.Next(), false)

	if got := pool.Next(); got != nil {
		t.Errorf("expected nil when every proxy is benched, got %v", got)
	}
}

func TestPool_SuccessResetsFailures(t *testing.T) {
	pool, _ := New(Config{MaxFailures: 2}, "http://a")
	u := pool.Next()
	_ = pool.Report(u, false)
	_ = pool.Report(u, true)
	_ = pool.Report(u, false)

	if pool.Next() == nil {
		t.Error("a success in between must reset the failure streak")
	}
}

func TestPool_ReportErrors(t *testing.T) {
	pool, _ := New(Config{}, "http://a")
	if err := pool.Report(nil, true); err == nil {
		t.Error("expected error for nil url")
	}
	other, _ := New(Config{}, "http://zzz")
	if err := pool.Report(other.Next(), true); err == nil {
		t.Error("expected error for unknown proxy")
	}
}

func TestNilPool(t *testing.T) {
	var pool *Pool
	if pool.Next() != nil || pool.Len() != 0 {
		t.Error("nil pool must behave as empty")
	}
}

func TestProxyFunc(t *testing.T) {
	pool, _ := New(Config{}, "http://proxy.local:3128")
	u := pool.Next()

	req, _ := http.NewRequestWithContext(WithProxy(context.Background(), u), http.MethodGet, "https://www.youtube.com/embed/x", nil)
	got, err := ProxyFunc(req)
	if err != nil || got == nil || got.Host != "proxy.local:3128" {
		t.Errorf("expected context proxy, got %v (%v)", got, err)
	}

	direct, _ := http.NewRequest(http.MethodGet, "https://www.youtube.com/embed/x", nil)
	if got, _ := ProxyFunc(direct); got != nil {
		t.Errorf("expected direct connection, got %v", got)
	}
}
