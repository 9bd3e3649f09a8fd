package ristretto

import (
	"context"
	"errors"
	"time"

	rc "github.com/dgraph-io/ristretto"

	pr "github.com/unkn0wn-root/cassync/provider"
)

// Provider keeps results in an in-process ristretto cache.
type Provider struct {
	c          *rc.Cache
	syncWrites bool
	sizeCost   bool
}

var _ pr.Provider = (*Provider)(nil)

type Config struct {
	NumCounters int64 // ~10x the expected number of live keys
	MaxCost     int64 // in bytes when SizeCost is set
	BufferItems int64 // 64 is a good default
	Metrics     bool
	// SyncWrites waits for ristretto's write buffer after every Set so a
	// result is readable as soon as Execute returns.
	SyncWrites bool
	// SizeCost charges each entry its encoded size instead of the caller's cost.
	SizeCost bool
}

func New(cfg Config) (*Provider, error) {
	if cfg.NumCounters <= 0 || cfg.MaxCost <= 0 || cfg.BufferItems <= 0 {
		return nil, errors.New("ristretto: NumCounters, MaxCost and BufferItems must be positive")
	}
	c, err := rc.NewCache(&rc.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
		Metrics:     cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}
	return &Provider{c: c, syncWrites: cfg.SyncWrites, sizeCost: cfg.SizeCost}, nil
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, found := p.c.Get(key)
	if !found {
		return nil, false, nil
	}
	if b, ok := v.([]byte); ok && b != nil {
		return b, true, nil
	}
	p.c.Del(key) // not ours
	return nil, false, nil
}

// Set returns ok=false when ristretto drops the write (contention or the
// admission policy).
func (p *Provider) Set(_ context.Context, key string, value []byte, cost int64, ttl time.Duration) (bool, error) {
	if p.sizeCost {
		cost = int64(len(value))
	}
	if ttl < 0 {
		ttl = 0
	}
	if !p.c.SetWithTTL(key, value, cost, ttl) {
		return false, nil
	}
	if p.syncWrites {
		p.c.Wait()
	}
	return true, nil
}

func (p *Provider) Del(_ context.Context, key string) error {
	p.c.Del(key)
	return nil
}

func (p *Provider) Close(_ context.Context) error {
	p.c.Wait()
	p.c.Close()
	return nil
}

// Metrics exposes ristretto metrics (nil unless Config.Metrics).
func (p *Provider) Metrics() *rc.Metrics { return p.c.Metrics }
