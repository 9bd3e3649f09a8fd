// Package sloghooks reports cassync events to a *slog.Logger.
package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/cassync"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	DiscardEvery    uint64
	SupersededEvery uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	discardCtr    atomic.Uint64
	supersededCtr atomic.Uint64
}

var _ cassync.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

// SaveDiscarded logs sizes only; snapshots carry user content.
func (h *Hooks) SaveDiscarded(before, after cassync.Snapshot) {
	if h.l == nil || !sample(h.opts.DiscardEvery, &h.discardCtr) {
		return
	}
	h.l.Debug("cassync.save_discarded",
		"before_len", len(before),
		"after_len", len(after))
}

func (h *Hooks) SaveFailed(err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("cassync.save_failed", "err", err)
}

func (h *Hooks) FetchSuperseded(storageKey string) {
	if h.l == nil || !sample(h.opts.SupersededEvery, &h.supersededCtr) {
		return
	}
	h.l.Debug("cassync.fetch_superseded", "key", h.redact(storageKey))
}

func (h *Hooks) Invalidated(count int, exact bool) {
	if h.l == nil {
		return
	}
	h.l.Info("cassync.invalidated",
		"count", count,
		"exact", exact)
}

func (h *Hooks) RefreshFailed(err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("cassync.refresh_failed", "err", err)
}

func (h *Hooks) ProviderSetRejected(storageKey string) {
	if h.l == nil {
		return
	}
	h.l.Warn("cassync.provider_set_rejected", "key", h.redact(storageKey))
}

func (h *Hooks) GenSnapshotError(storageKey string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("cassync.gen_snapshot_error",
		"key", h.redact(storageKey),
		"err", err)
}

func (h *Hooks) GenBumpError(storageKey string, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("cassync.gen_bump_error",
		"key", h.redact(storageKey),
		"err", err)
}
