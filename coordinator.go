package cassync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	c "github.com/unkn0wn-root/cassync/codec"
	gen "github.com/unkn0wn-root/cassync/genstore"
	"github.com/unkn0wn-root/cassync/internal/util"
	"github.com/unkn0wn-root/cassync/internal/wire"
	pr "github.com/unkn0wn-root/cassync/provider"
	"github.com/unkn0wn-root/cassync/provider/ristretto"
)

const (
	defaultGenRetention = 30 * 24 * time.Hour
	defaultSweep        = time.Hour

	defaultProviderBytes = 64 << 20
)

// FetchFunc performs the remote read for params. It should stop early when
// ctx is cancelled, but the coordinator discards superseded results either way.
type FetchFunc[R any] func(ctx context.Context, p Params) (R, error)

// CoordinatorOptions configure a Coordinator.
type CoordinatorOptions[R any] struct {
	// Required
	Namespace string           // isolates storage keys, e.g. "users", "agents"
	Key       func(Params) Key // projects validated params onto the cache key
	Fetch     FetchFunc[R]

	Provider        pr.Provider   // nil => in-process ristretto, 64MiB
	Schema          *Schema       // nil => every params map is valid
	Codec           c.Codec[R]    // nil => CBOR
	GenStore        gen.GenStore  // nil => in-process generations
	TTL             time.Duration // stored result lifetime; 0 => 10m
	CleanupInterval time.Duration // local genstore sweep; 0 => 1h
	GenRetention    time.Duration // local genstore retention; 0 => 30d
	Logger          Logger
	Hooks           Hooks
}

// execSlot holds the descriptor issued by Execute. Get issues descriptors
// under the canonical key bytes instead, so reads of different keys never
// supersede each other.
const execSlot = ""

// descriptor is one issued request. Only the current descriptor of its slot
// may commit a result.
type descriptor struct {
	id     uuid.UUID
	slot   string
	token  uint64
	ctx    context.Context
	cancel context.CancelFunc
}

// liveKey is a key that was fetched or is being fetched. inv counts local
// invalidations; a store only marks the key fresh when inv did not move
// while its fetch ran.
type liveKey struct {
	key        Key
	storageKey string
	stale      bool
	inv        uint64
}

// Coordinator turns params into cache keys, runs fetches so that a newer
// request always wins over an older one, and invalidates cached results by
// exact key or key prefix.
type Coordinator[R any] struct {
	ns       string
	schema   *Schema
	keyFn    func(Params) Key
	fetch    FetchFunc[R]
	provider pr.Provider
	codec    c.Codec[R]
	gen      gen.GenStore
	ttl      time.Duration
	log      Logger
	hooks    Hooks
	now      func() time.Time

	// commitMu orders issue against the check-and-store of a finished
	// fetch. Lock order: commitMu, then mu.
	commitMu sync.Mutex

	mu      sync.Mutex
	token   uint64
	current map[string]*descriptor // by slot
	live    map[string]*liveKey    // by canonical key bytes
	closed  bool

	group singleflight.Group
}

func NewCoordinator[R any](opts CoordinatorOptions[R]) (*Coordinator[R], error) {
	if opts.Namespace == "" {
		return nil, fmt.Errorf("cassync: namespace is required")
	}
	if opts.Key == nil {
		return nil, fmt.Errorf("cassync: key function is required")
	}
	if opts.Fetch == nil {
		return nil, fmt.Errorf("cassync: fetch function is required")
	}

	co := &Coordinator[R]{
		ns:       opts.Namespace,
		schema:   opts.Schema,
		keyFn:    opts.Key,
		fetch:    opts.Fetch,
		provider: opts.Provider,
		codec:    opts.Codec,
		gen:      opts.GenStore,
		current:  make(map[string]*descriptor),
		live:     make(map[string]*liveKey),
		now:      time.Now,
	}
	if co.codec == nil {
		co.codec = c.MustCBOR[R](false)
	}
	if co.provider == nil {
		p, err := ristretto.New(ristretto.Config{
			NumCounters: 100_000,
			MaxCost:     defaultProviderBytes,
			BufferItems: 64,
			SyncWrites:  true,
			SizeCost:    true,
		})
		if err != nil {
			return nil, fmt.Errorf("cassync: default provider: %w", err)
		}
		co.provider = p
	}
	co.ttl = coalesce[time.Duration](opts.TTL, DefaultResultTTL)
	co.log = coalesce[Logger](opts.Logger, NopLogger{})
	co.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	if co.gen == nil {
		co.gen = gen.NewLocal(
			coalesce[time.Duration](opts.CleanupInterval, defaultSweep),
			coalesce[time.Duration](opts.GenRetention, defaultGenRetention),
		)
	}
	return co, nil
}

// BuildKey validates p and returns its key, or nil when p does not validate
// (the request is not ready to be made yet).
func (co *Coordinator[R]) BuildKey(p Params) Key {
	vp, err := co.schema.Validate(p)
	if err != nil {
		return nil
	}
	return co.keyFn(vp)
}

// Execute cancels the request issued by the previous Execute, if it is still
// running, and fetches p. A result that arrives after a newer Execute was
// issued is dropped and ErrSuperseded is returned instead.
//
// p is passed to Fetch as given, even when it does not validate. The result
// is stored only when p validates to a key.
func (co *Coordinator[R]) Execute(ctx context.Context, p Params) (R, error) {
	d, err := co.issue(ctx, execSlot)
	if err != nil {
		var zero R
		return zero, err
	}
	return co.run(ctx, d, p)
}

// Get returns the stored result for p when its key is live and not stale;
// otherwise it fetches p. Concurrent Gets for the same key share one fetch.
// A Get only supersedes an earlier Get of the same key; it never cancels an
// Execute or a Get of another key. ok is false when p does not validate.
func (co *Coordinator[R]) Get(ctx context.Context, p Params) (v R, ok bool, err error) {
	key := co.BuildKey(p)
	if key == nil {
		return v, false, nil
	}
	canon, err := util.Canonical(key)
	if err != nil {
		return v, false, err
	}
	if cached, hit := co.lookup(ctx, canon); hit {
		return cached, true, nil
	}

	res, err, _ := co.group.Do(string(canon), func() (any, error) {
		d, err := co.issue(ctx, string(canon))
		if err != nil {
			return nil, err
		}
		return co.run(ctx, d, p)
	})
	if err != nil {
		return v, true, err
	}
	v, _ = res.(R)
	return v, true, nil
}

// Invalidate marks stale every live key equal to the key of p. Fields of p
// that do not validate match any value at their position.
func (co *Coordinator[R]) Invalidate(ctx context.Context, p Params) (int, error) {
	return co.invalidate(ctx, p, true)
}

// InvalidatePrefix marks stale every live key that starts with the key of p.
func (co *Coordinator[R]) InvalidatePrefix(ctx context.Context, p Params) (int, error) {
	return co.invalidate(ctx, p, false)
}

func (co *Coordinator[R]) invalidate(ctx context.Context, p Params, exact bool) (int, error) {
	pattern := co.keyFn(co.schema.Lenient(p))

	co.mu.Lock()
	var storageKeys []string
	for _, lk := range co.live {
		if pattern.Matches(lk.key, exact) {
			lk.stale = true
			lk.inv++
			storageKeys = append(storageKeys, lk.storageKey)
		}
	}
	co.mu.Unlock()

	if len(storageKeys) == 0 {
		return 0, nil
	}

	bumped, bumpErr := co.gen.BumpMany(ctx, storageKeys)
	var errs []error
	for _, sk := range storageKeys {
		ie := &InvalidateError{Key: sk}
		if _, ok := bumped[sk]; !ok {
			ie.BumpErr = bumpErr
			if ie.BumpErr == nil {
				ie.BumpErr = errors.New("generation not bumped")
			}
			co.hooks.GenBumpError(sk, ie.BumpErr)
		}
		ie.DelErr = co.provider.Del(ctx, sk)
		if ie.BumpErr != nil || ie.DelErr != nil {
			errs = append(errs, ie)
		}
	}

	co.hooks.Invalidated(len(storageKeys), exact)
	co.log.Debug("invalidated keys", Fields{"ns": co.ns, "count": len(storageKeys), "exact": exact})
	return len(storageKeys), errors.Join(errs...)
}

// Stale reports whether p needs a fetch: its key is not live yet or was
// invalidated. Params that do not validate are never stale.
func (co *Coordinator[R]) Stale(p Params) bool {
	key := co.BuildKey(p)
	if key == nil {
		return false
	}
	canon, err := util.Canonical(key)
	if err != nil {
		return true
	}
	co.mu.Lock()
	defer co.mu.Unlock()
	lk, ok := co.live[string(canon)]
	return !ok || lk.stale
}

// Close cancels every in-flight request and releases the generation store
// and provider. Results of cancelled requests are dropped with ErrClosed.
func (co *Coordinator[R]) Close(ctx context.Context) error {
	co.commitMu.Lock()
	co.mu.Lock()
	if co.closed {
		co.mu.Unlock()
		co.commitMu.Unlock()
		return nil
	}
	co.closed = true
	for slot, d := range co.current {
		d.cancel()
		delete(co.current, slot)
	}
	co.mu.Unlock()
	co.commitMu.Unlock()

	return errors.Join(co.gen.Close(ctx), co.provider.Close(ctx))
}

// issue replaces the current descriptor of slot. The previous request is
// cancelled before the new one exists, so its result can never be committed.
func (co *Coordinator[R]) issue(ctx context.Context, slot string) (*descriptor, error) {
	co.commitMu.Lock()
	defer co.commitMu.Unlock()
	co.mu.Lock()
	defer co.mu.Unlock()
	if co.closed {
		return nil, ErrClosed
	}
	if prev := co.current[slot]; prev != nil {
		prev.cancel()
	}
	co.token++
	dctx, cancel := context.WithCancel(ctx)
	d := &descriptor{id: uuid.New(), slot: slot, token: co.token, ctx: dctx, cancel: cancel}
	co.current[slot] = d
	return d, nil
}

// run fetches p for d and commits the result if d is still current.
func (co *Coordinator[R]) run(ctx context.Context, d *descriptor, p Params) (R, error) {
	var zero R
	defer co.release(d)

	var (
		key   = co.BuildKey(p)
		canon []byte
		sk    string
		obs   uint64
		inv   uint64
		err   error
	)
	if key != nil {
		if canon, err = util.Canonical(key); err != nil {
			co.log.Warn("key not encodable; result will not be stored", Fields{"ns": co.ns, "err": err})
			key = nil
		} else {
			sk = co.storageKey(canon)
			inv = co.track(canon, key, sk)
			obs = co.snapshotGen(ctx, sk)
		}
	}

	v, fetchErr := co.fetch(d.ctx, p)

	co.commitMu.Lock()
	defer co.commitMu.Unlock()
	if err := co.currentErr(d); err != nil {
		if errors.Is(err, ErrSuperseded) {
			co.hooks.FetchSuperseded(sk)
			co.log.Debug("fetch result discarded (superseded)", Fields{"ns": co.ns, "request": d.id.String()})
		}
		return zero, err
	}
	if fetchErr != nil {
		return zero, fetchErr
	}
	if key != nil {
		co.store(ctx, canon, sk, v, obs, inv)
	}
	return v, nil
}

// currentErr reports why d may not commit, or nil when it may. Callers hold
// commitMu, so no newer descriptor can be issued until the commit is done.
func (co *Coordinator[R]) currentErr(d *descriptor) error {
	co.mu.Lock()
	defer co.mu.Unlock()
	if co.closed {
		return ErrClosed
	}
	if co.current[d.slot] != d {
		return ErrSuperseded
	}
	return nil
}

// release cancels d and forgets it once nothing newer replaced it.
func (co *Coordinator[R]) release(d *descriptor) {
	d.cancel()
	co.mu.Lock()
	if co.current[d.slot] == d {
		delete(co.current, d.slot)
	}
	co.mu.Unlock()
}

// track registers key as live before its fetch starts, stale until a store
// commits, so an invalidation during a first fetch still matches it. It
// returns the key's invalidation count.
func (co *Coordinator[R]) track(canon []byte, key Key, sk string) uint64 {
	co.mu.Lock()
	defer co.mu.Unlock()
	lk, ok := co.live[string(canon)]
	if !ok {
		lk = &liveKey{key: key, storageKey: sk, stale: true}
		co.live[string(canon)] = lk
	}
	return lk.inv
}

// store writes v under sk if the key's generation is still the one observed
// before the fetch, and marks the key fresh unless it was invalidated
// meanwhile.
func (co *Coordinator[R]) store(ctx context.Context, canon []byte, sk string, v R, obs, inv uint64) {
	if co.snapshotGen(ctx, sk) != obs {
		// invalidated while the fetch was in flight; keep it stale
		co.log.Debug("result not stored (gen moved)", Fields{"ns": co.ns, "key": sk, "obs": obs})
		return
	}
	payload, err := co.codec.Encode(v)
	if err != nil {
		co.log.Warn("result encode failed", Fields{"ns": co.ns, "key": sk, "err": err})
		return
	}
	ok, err := co.provider.Set(ctx, sk, wire.EncodeEntry(obs, co.now(), payload), 1, co.ttl)
	if err != nil {
		co.log.Warn("result store failed", Fields{"ns": co.ns, "key": sk, "err": err})
		return
	}
	if !ok {
		co.hooks.ProviderSetRejected(sk)
		co.log.Debug("result rejected by provider (pressure)", Fields{"ns": co.ns, "key": sk})
	}

	co.mu.Lock()
	if lk := co.live[string(canon)]; lk != nil && lk.inv == inv {
		lk.stale = false
	}
	co.mu.Unlock()
}

// lookup serves a stored result. Corrupt, stale-generation and undecodable
// entries are deleted and reported as misses.
func (co *Coordinator[R]) lookup(ctx context.Context, canon []byte) (R, bool) {
	var zero R
	co.mu.Lock()
	lk, ok := co.live[string(canon)]
	if !ok || lk.stale {
		co.mu.Unlock()
		return zero, false
	}
	sk := lk.storageKey
	co.mu.Unlock()

	raw, ok, err := co.provider.Get(ctx, sk)
	if err != nil || !ok {
		return zero, false
	}
	e, err := wire.DecodeEntry(raw)
	if err != nil {
		_ = co.provider.Del(ctx, sk) // self-heal corrupt
		return zero, false
	}
	if e.Gen != co.snapshotGen(ctx, sk) {
		_ = co.provider.Del(ctx, sk)
		return zero, false
	}
	v, err := co.codec.Decode(e.Payload)
	if err != nil {
		_ = co.provider.Del(ctx, sk) // self-heal
		return zero, false
	}
	return v, true
}

func (co *Coordinator[R]) snapshotGen(ctx context.Context, sk string) uint64 {
	g, err := co.gen.Snapshot(ctx, sk)
	if err != nil {
		// Conservative: a wrong observation only skips a store or forces a refetch.
		co.hooks.GenSnapshotError(sk, err)
		co.log.Warn("gen snapshot error", Fields{"key": sk, "err": err})
		return 0
	}
	return g
}

func (co *Coordinator[R]) storageKey(canon []byte) string {
	return util.StorageKey("fetch:"+co.ns, canon)
}
