package cassync

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func newTestStaleCache(t *testing.T, clk *fakeClock, fetch func(context.Context) (int, error), hooks Hooks) *StaleCache[int] {
	t.Helper()
	sc, err := NewStaleCache(StaleCacheOptions[int]{
		Fetch: fetch,
		TTL:   5 * time.Minute,
		Now:   clk.Now,
		Hooks: hooks,
	})
	if err != nil {
		t.Fatalf("NewStaleCache: %v", err)
	}
	return sc
}

func counting(n *atomic.Int64) func(context.Context) (int, error) {
	return func(context.Context) (int, error) { return int(n.Add(1)), nil }
}

func TestStaleCache_TTLGate(t *testing.T) {
	clk := newFakeClock()
	var n atomic.Int64
	sc := newTestStaleCache(t, clk, counting(&n), nil)
	ctx := context.Background()

	if err := sc.EnsureFresh(ctx, false); err != nil {
		t.Fatalf("EnsureFresh: %v", err)
	}
	t0 := sc.State().FetchedAt

	clk.Advance(60 * time.Second)
	_ = sc.EnsureFresh(ctx, false)
	if n.Load() != 1 {
		t.Fatalf("refetched a 60s old value")
	}

	clk.Advance(241 * time.Second) // 301s since the fetch
	_ = sc.EnsureFresh(ctx, false)
	if n.Load() != 2 {
		t.Fatalf("did not refetch a 301s old value")
	}
	st := sc.State()
	if st.Value != 2 || !st.FetchedAt.After(t0) || st.Loading || !st.Initialized {
		t.Fatalf("state after refetch: %+v", st)
	}

	_ = sc.EnsureFresh(ctx, true)
	if n.Load() != 3 {
		t.Fatalf("force did not refetch")
	}
}

func TestStaleCache_FailureKeepsValue(t *testing.T) {
	clk := newFakeClock()
	hooks := newRecHooks()
	boom := errors.New("boom")
	fail := false
	sc := newTestStaleCache(t, clk, func(context.Context) (int, error) {
		if fail {
			return 0, boom
		}
		return 42, nil
	}, hooks)
	ctx := context.Background()

	if err := sc.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	before := sc.State()

	fail = true
	clk.Advance(10 * time.Minute)
	if err := sc.EnsureFresh(ctx, false); !errors.Is(err, boom) {
		t.Fatalf("want boom, got %v", err)
	}
	after := sc.State()
	if after.Value != 42 || !after.FetchedAt.Equal(before.FetchedAt) || after.Loading {
		t.Fatalf("failure changed state: %+v", after)
	}
	if hooks.count("refresh_failed") != 1 {
		t.Fatalf("RefreshFailed not reported")
	}
}

func TestStaleCache_InitializeOnce(t *testing.T) {
	clk := newFakeClock()
	var n atomic.Int64
	sc := newTestStaleCache(t, clk, counting(&n), nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := sc.Initialize(ctx); err != nil {
			t.Fatalf("Initialize: %v", err)
		}
		clk.Advance(time.Hour)
	}
	if n.Load() != 1 {
		t.Fatalf("Initialize fetched %d times", n.Load())
	}
}

func TestStaleCache_LoadDoesNotToggleLoading(t *testing.T) {
	clk := newFakeClock()
	var n atomic.Int64
	sc := newTestStaleCache(t, clk, counting(&n), nil)

	var sawLoading bool
	cancel := sc.Subscribe(func(st State[int]) {
		if st.Loading {
			sawLoading = true
		}
	})
	defer cancel()

	v, err := sc.Load(context.Background())
	if err != nil || v != 1 {
		t.Fatalf("Load: v=%d err=%v", v, err)
	}
	if sawLoading {
		t.Fatalf("Load set loading")
	}
	if v, _ := sc.Load(context.Background()); v != 1 || n.Load() != 1 {
		t.Fatalf("fresh Load refetched: v=%d n=%d", v, n.Load())
	}

	v, err = sc.LoadWith(context.Background(), func(context.Context) (int, error) { return 99, nil })
	if err != nil || v != 1 {
		t.Fatalf("fresh LoadWith should serve cache: v=%d err=%v", v, err)
	}
	clk.Advance(time.Hour)
	v, err = sc.LoadWith(context.Background(), func(context.Context) (int, error) { return 99, nil })
	if err != nil || v != 99 || sc.State().Value != 99 {
		t.Fatalf("stale LoadWith: v=%d err=%v", v, err)
	}
}

func TestStaleCache_OlderFetchLandingLastIsDropped(t *testing.T) {
	clk := newFakeClock()
	sc := newTestStaleCache(t, clk, func(context.Context) (int, error) { return 2, nil }, nil)

	started := make(chan struct{})
	release := make(chan struct{})
	type result struct {
		v   int
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := sc.LoadWith(context.Background(), func(context.Context) (int, error) {
			close(started)
			<-release
			return 1, nil
		})
		done <- result{v, err}
	}()
	<-started

	clk.Advance(time.Second)
	if err := sc.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	want := sc.State()
	if want.Value != 2 {
		t.Fatalf("Refresh did not commit: %+v", want)
	}

	close(release)
	select {
	case r := <-done:
		if r.err != nil || r.v != 2 {
			t.Fatalf("older LoadWith: v=%d err=%v", r.v, r.err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("LoadWith did not return")
	}
	if got := sc.State(); got.Value != want.Value || !got.FetchedAt.Equal(want.FetchedAt) {
		t.Fatalf("older result overwrote newer: before=%+v after=%+v", want, got)
	}
}

func TestStaleCache_SubscribeAndCancel(t *testing.T) {
	clk := newFakeClock()
	var n atomic.Int64
	sc := newTestStaleCache(t, clk, counting(&n), nil)

	var seen []State[int]
	cancel := sc.Subscribe(func(st State[int]) { seen = append(seen, st) })
	_ = sc.Refresh(context.Background())
	cancel()
	_ = sc.Refresh(context.Background())

	// initial, loading on, committed
	if len(seen) != 3 {
		t.Fatalf("got %d notifications: %+v", len(seen), seen)
	}
	if !seen[1].Loading || seen[2].Loading || seen[2].Value != 1 {
		t.Fatalf("unexpected sequence: %+v", seen)
	}
}

func TestNewStaleCache_RequiresFetch(t *testing.T) {
	if _, err := NewStaleCache(StaleCacheOptions[int]{}); err == nil {
		t.Fatal("want error without Fetch")
	}
}
