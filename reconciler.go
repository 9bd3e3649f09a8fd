package cassync

import (
	"context"
	"fmt"
	"sync"
	"time"

	c "github.com/unkn0wn-root/cassync/codec"
)

// ReconcilerOptions configure a Reconciler.
// Value and Persist are required; others have sensible defaults.
type ReconcilerOptions[V any] struct {
	// Required
	Value   func() V                                  // accessor; must not hand out state the caller keeps mutating
	Persist func(ctx context.Context, v V) (V, error) // remote write; returns the value as stored

	Commit   func(V)       // called with the persisted value when the save still matches local state
	Interval time.Duration // 0 => 1s
	Codec    c.Codec[V]    // snapshot codec; nil => canonical CBOR
	IsEmpty  func(V) bool  // nil => value snapshots like the zero value
	Logger   Logger        // nil => NopLogger
	Hooks    Hooks         // nil => NopHooks
}

// Reconciler periodically persists a mutable value. A persist result is
// committed only if the value did not change while the persist was in flight.
type Reconciler[V any] struct {
	value    func() V
	persist  func(context.Context, V) (V, error)
	commit   func(V)
	isEmpty  func(V) bool
	cmp      Comparator[V]
	interval time.Duration
	log      Logger
	hooks    Hooks

	mu      sync.Mutex
	saved   Snapshot
	running bool
	ticker  *time.Ticker
	stopCh  chan struct{}
	loopWg  sync.WaitGroup
}

func NewReconciler[V any](opts ReconcilerOptions[V]) (*Reconciler[V], error) {
	if opts.Value == nil {
		return nil, fmt.Errorf("cassync: value accessor is required")
	}
	if opts.Persist == nil {
		return nil, fmt.Errorf("cassync: persist function is required")
	}
	cmp, err := NewComparator(opts.Codec)
	if err != nil {
		return nil, fmt.Errorf("cassync: snapshot codec: %w", err)
	}

	r := &Reconciler[V]{
		value:   opts.Value,
		persist: opts.Persist,
		commit:  opts.Commit,
		isEmpty: opts.IsEmpty,
		cmp:     cmp,
	}
	r.interval = coalesce[time.Duration](opts.Interval, DefaultSaveInterval)
	r.log = coalesce[Logger](opts.Logger, NopLogger{})
	r.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	return r, nil
}

// Start records the current value as the saved baseline and begins saving
// every Interval. The returned function stops the reconciler (flushing one
// last time) and is safe to defer; it flushes even if ctx was cancelled.
func (r *Reconciler[V]) Start(ctx context.Context) (func() error, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return nil, ErrAlreadyStarted
	}
	base, err := r.cmp.Take(r.value())
	if err != nil {
		return nil, fmt.Errorf("cassync: snapshot baseline: %w", err)
	}
	r.saved = base
	r.running = true
	r.ticker = time.NewTicker(r.interval)
	r.stopCh = make(chan struct{})
	r.loopWg.Add(1)
	go r.loop(ctx, r.ticker, r.stopCh)

	r.log.Debug("reconciler started", Fields{"interval": r.interval})
	return func() error { return r.Stop(context.WithoutCancel(ctx)) }, nil
}

func (r *Reconciler[V]) loop(ctx context.Context, ticker *time.Ticker, stopCh chan struct{}) {
	defer r.loopWg.Done()
	for {
		select {
		case <-ticker.C:
			if err := r.Save(ctx); err != nil {
				r.hooks.SaveFailed(err)
				r.log.Warn("autosave failed; retrying next tick", Fields{"err": err})
			}
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Save persists the current value unless it is empty or already saved.
//
// The value is read again after Persist returns. If it changed meanwhile,
// the result is dropped: the baseline stays put and Commit is not called,
// so the newer edit is picked up by the next Save instead of being
// overwritten by bookkeeping for the older one.
func (r *Reconciler[V]) Save(ctx context.Context) error {
	val := r.value()
	before, err := r.cmp.Take(val)
	if err != nil {
		return fmt.Errorf("cassync: snapshot: %w", err)
	}
	if r.empty(val, before) || before == r.Saved() {
		return nil
	}

	persisted, err := r.persist(ctx, val)
	if err != nil {
		return &SaveError{Snapshot: before, Err: err}
	}
	saved, err := r.cmp.Take(persisted)
	if err != nil {
		return fmt.Errorf("cassync: snapshot persisted value: %w", err)
	}

	after, err := r.cmp.Take(r.value())
	if err != nil {
		return fmt.Errorf("cassync: snapshot: %w", err)
	}
	if before != after {
		r.hooks.SaveDiscarded(before, after)
		r.log.Debug("save result discarded (value changed during persist)", Fields{
			"before_len": len(before),
			"after_len":  len(after),
		})
		return nil
	}

	r.mu.Lock()
	r.saved = saved
	r.mu.Unlock()
	if r.commit != nil {
		r.commit(persisted)
	}
	return nil
}

// Stop runs a final Save, then stops the ticker and waits for the loop.
// Calling Stop on a stopped reconciler is a no-op.
func (r *Reconciler[V]) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	ticker, stopCh := r.ticker, r.stopCh
	r.mu.Unlock()

	err := r.Save(ctx)

	close(stopCh)
	ticker.Stop()
	r.loopWg.Wait()

	if err != nil {
		r.log.Error("final save on stop failed", Fields{"err": err})
	}
	return err
}

// Saved returns the snapshot of the last committed value.
func (r *Reconciler[V]) Saved() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saved
}

func (r *Reconciler[V]) empty(v V, s Snapshot) bool {
	if r.isEmpty != nil {
		return r.isEmpty(v)
	}
	return r.cmp.IsZero(s)
}
