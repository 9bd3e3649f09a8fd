package cassync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// State is a point-in-time view of a StaleCache.
type State[V any] struct {
	Value       V
	FetchedAt   time.Time // zero until the first successful fetch
	Loading     bool
	Initialized bool // at least one fetch succeeded
}

// StaleCacheOptions configure a StaleCache. Fetch is required.
type StaleCacheOptions[V any] struct {
	Fetch  func(ctx context.Context) (V, error)
	TTL    time.Duration    // 0 => 5m
	Now    func() time.Time // nil => time.Now
	Logger Logger
	Hooks  Hooks
}

// StaleCache serves one aggregate value and refetches it only once it is
// older than TTL, or when a refresh is forced. A failed refetch keeps the
// previous value.
type StaleCache[V any] struct {
	fetch func(context.Context) (V, error)
	ttl   time.Duration
	now   func() time.Time
	log   Logger
	hooks Hooks

	mu      sync.RWMutex
	state   State[V]
	subs    map[int]func(State[V])
	nextSub int
	seq     uint64 // fetches started
	applied uint64 // seq of the fetch that produced state.Value

	initMu  sync.Mutex
	initRan bool

	group singleflight.Group
}

func NewStaleCache[V any](opts StaleCacheOptions[V]) (*StaleCache[V], error) {
	if opts.Fetch == nil {
		return nil, fmt.Errorf("cassync: fetch function is required")
	}
	sc := &StaleCache[V]{
		fetch: opts.Fetch,
		now:   opts.Now,
		subs:  make(map[int]func(State[V])),
	}
	if sc.now == nil {
		sc.now = time.Now
	}
	sc.ttl = coalesce[time.Duration](opts.TTL, DefaultStaleTTL)
	sc.log = coalesce[Logger](opts.Logger, NopLogger{})
	sc.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	return sc, nil
}

// EnsureFresh refetches unless the cached value is younger than TTL and
// force is false. On failure the previous value and FetchedAt are kept,
// loading is cleared and the error is returned.
func (sc *StaleCache[V]) EnsureFresh(ctx context.Context, force bool) error {
	if !force && sc.fresh() {
		return nil
	}
	_, err := sc.refetch(ctx, "ensure", sc.fetch, true)
	return err
}

// Refresh always refetches.
func (sc *StaleCache[V]) Refresh(ctx context.Context) error {
	return sc.EnsureFresh(ctx, true)
}

// Initialize runs EnsureFresh(false) on its first call only. Later calls
// return nil without doing anything, so a first load can be told apart from
// a manual Refresh.
func (sc *StaleCache[V]) Initialize(ctx context.Context) error {
	sc.initMu.Lock()
	if sc.initRan {
		sc.initMu.Unlock()
		return nil
	}
	sc.initRan = true
	sc.initMu.Unlock()
	return sc.EnsureFresh(ctx, false)
}

// Load returns the cached value while it is fresh. Otherwise it fetches,
// stores and returns the new value without a second read of the cache.
// Load does not toggle the loading flag.
func (sc *StaleCache[V]) Load(ctx context.Context) (V, error) {
	return sc.load(ctx, "load", sc.fetch)
}

// LoadWith is Load with a different fetch function for the miss path.
// Concurrent LoadWith calls share one fetch, whichever fn they pass. When a
// fetch started later lands first, the older result is dropped and the
// cached value is returned instead.
func (sc *StaleCache[V]) LoadWith(ctx context.Context, fn func(context.Context) (V, error)) (V, error) {
	return sc.load(ctx, "load-with", fn)
}

func (sc *StaleCache[V]) load(ctx context.Context, key string, fn func(context.Context) (V, error)) (V, error) {
	sc.mu.RLock()
	if sc.freshLocked() {
		v := sc.state.Value
		sc.mu.RUnlock()
		return v, nil
	}
	sc.mu.RUnlock()
	return sc.refetch(ctx, key, fn, false)
}

// State returns the current state.
func (sc *StaleCache[V]) State() State[V] {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.state
}

// Subscribe calls fn with the current state and again after every change.
// fn runs synchronously on the goroutine that made the change and must not
// call back into the cache's mutating methods.
func (sc *StaleCache[V]) Subscribe(fn func(State[V])) (cancel func()) {
	sc.mu.Lock()
	id := sc.nextSub
	sc.nextSub++
	sc.subs[id] = fn
	st := sc.state
	sc.mu.Unlock()

	fn(st)
	return func() {
		sc.mu.Lock()
		delete(sc.subs, id)
		sc.mu.Unlock()
	}
}

func (sc *StaleCache[V]) fresh() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.freshLocked()
}

func (sc *StaleCache[V]) freshLocked() bool {
	if !sc.state.Initialized {
		return false
	}
	return sc.now().Sub(sc.state.FetchedAt) < sc.ttl
}

// refetch collapses concurrent refetches into one call of Fetch.
func (sc *StaleCache[V]) refetch(ctx context.Context, key string, fn func(context.Context) (V, error), markLoading bool) (V, error) {
	res, err, _ := sc.group.Do(key, func() (any, error) {
		return sc.doFetch(ctx, fn, markLoading)
	})
	v, _ := res.(V)
	return v, err
}

func (sc *StaleCache[V]) doFetch(ctx context.Context, fn func(context.Context) (V, error), markLoading bool) (V, error) {
	sc.mu.Lock()
	sc.seq++
	seq := sc.seq
	sc.mu.Unlock()

	if markLoading {
		sc.update(func(s *State[V]) { s.Loading = true })
	}
	started := sc.now()

	v, err := fn(ctx)
	if err != nil {
		if markLoading {
			sc.update(func(s *State[V]) { s.Loading = false })
		}
		sc.hooks.RefreshFailed(err)
		sc.log.Warn("refresh failed; serving previous value", Fields{"err": err})
		var zero V
		return zero, err
	}

	var out V
	sc.update(func(s *State[V]) {
		if markLoading {
			s.Loading = false
		}
		// value and FetchedAt move together, and only forward
		if seq > sc.applied {
			sc.applied = seq
			s.Value = v
			s.FetchedAt = started
			s.Initialized = true
		} else {
			sc.log.Debug("older fetch result dropped", Fields{"seq": seq, "applied": sc.applied})
		}
		out = s.Value
	})
	return out, nil
}

func (sc *StaleCache[V]) update(fn func(*State[V])) {
	sc.mu.Lock()
	fn(&sc.state)
	st := sc.state
	subs := make([]func(State[V]), 0, len(sc.subs))
	for _, s := range sc.subs {
		subs = append(subs, s)
	}
	sc.mu.Unlock()

	for _, s := range subs {
		s(st)
	}
}
