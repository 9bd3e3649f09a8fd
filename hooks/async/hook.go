// Package asynchook moves hook calls off the save and fetch paths.
//
// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{
//	    SupersededEvery: 10, // sample: ~every 10th superseded fetch
//	})
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	coord, _ := cassync.NewCoordinator[Ticket](cassync.CoordinatorOptions[Ticket]{
//	    Namespace: "tickets",
//	    Provider:  provider,
//	    Fetch:     fetchTickets,
//	    Hooks:     hooks, // or `raw` if you don't want async
//	})
package asynchook

import (
	"sync"

	"github.com/unkn0wn-root/cassync"
)

// Hooks queues every event for a worker pool. Events are dropped when the
// queue is full.
type Hooks struct {
	inner cassync.Hooks
	q     chan func()
	wg    sync.WaitGroup
	once  sync.Once
}

var _ cassync.Hooks = (*Hooks)(nil)

func New(inner cassync.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains the queue and waits for the workers. Calling a hook after
// Close panics.
func (h *Hooks) Close() {
	h.once.Do(func() {
		close(h.q)
		h.wg.Wait()
	})
}

func (h *Hooks) try(f func()) {
	select {
	case h.q <- f:
	default: // drop
	}
}

func (h *Hooks) SaveDiscarded(b, a cassync.Snapshot) { h.try(func() { h.inner.SaveDiscarded(b, a) }) }
func (h *Hooks) SaveFailed(err error)                { h.try(func() { h.inner.SaveFailed(err) }) }
func (h *Hooks) FetchSuperseded(k string)            { h.try(func() { h.inner.FetchSuperseded(k) }) }
func (h *Hooks) Invalidated(n int, exact bool)       { h.try(func() { h.inner.Invalidated(n, exact) }) }
func (h *Hooks) RefreshFailed(err error)             { h.try(func() { h.inner.RefreshFailed(err) }) }
func (h *Hooks) ProviderSetRejected(k string)        { h.try(func() { h.inner.ProviderSetRejected(k) }) }
func (h *Hooks) GenSnapshotError(k string, err error) {
	h.try(func() { h.inner.GenSnapshotError(k, err) })
}
func (h *Hooks) GenBumpError(k string, err error) { h.try(func() { h.inner.GenBumpError(k, err) }) }
