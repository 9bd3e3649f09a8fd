package cassync

import (
	"context"
	"sync"
)

// Mutator runs a write so that starting a new call cancels the context of
// the call before it. Use it for writes fired in quick succession (e.g. on
// every keystroke) where only the latest one matters.
type Mutator[P, R any] struct {
	fn func(ctx context.Context, p P) (R, error)

	mu     sync.Mutex
	cancel context.CancelFunc
}

func NewMutator[P, R any](fn func(ctx context.Context, p P) (R, error)) *Mutator[P, R] {
	return &Mutator[P, R]{fn: fn}
}

// Do cancels the previous in-flight call, then calls fn with p.
// A cancelled call returns whatever fn returns, normally context.Canceled.
func (m *Mutator[P, R]) Do(ctx context.Context, p P) (R, error) {
	cctx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
	}
	m.cancel = cancel
	m.mu.Unlock()
	defer cancel()

	return m.fn(cctx, p)
}
