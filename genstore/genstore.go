// Package genstore keeps per-key generation counters for the fetch coordinator.
//
// A generation is bumped every time a key is invalidated. A fetch result is
// stored together with the generation observed when its request was issued,
// and is only stored (and later served) while that generation is current.
package genstore

import (
	"context"
	"time"
)

// GenStore abstracts where generations live.
// Use Local (default) for in-process gens, or Redis to share invalidations
// between processes.
type GenStore interface {
	// Snapshot returns the current generation; missing => 0.
	Snapshot(ctx context.Context, storageKey string) (uint64, error)
	// Bump atomically increments and returns the new generation.
	Bump(ctx context.Context, storageKey string) (uint64, error)
	// BumpMany bumps every key; the result holds the new generations of the
	// keys that were bumped before any error.
	BumpMany(ctx context.Context, storageKeys []string) (map[string]uint64, error)
	// Cleanup prunes old metadata if applicable (no-op for Redis).
	Cleanup(retention time.Duration)
	// Close releases resources (no-op ok).
	Close(context.Context) error
}
