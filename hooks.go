package cassync

// Hooks are lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking; they run inline with
// saves and fetches. Wrap slow sinks with hooks/async.
type Hooks interface {
	// A persist result was dropped because the value changed while it was in flight.
	SaveDiscarded(before, after Snapshot)

	// Persist returned an error; the same content is retried on the next tick.
	SaveFailed(err error)

	// A fetch completed after a newer Execute had replaced it.
	FetchSuperseded(storageKey string)

	// Invalidate marked count live keys stale.
	Invalidated(count int, exact bool)

	// A staleness-gated refetch failed; the previous value is still served.
	RefreshFailed(err error)

	// Provider returned ok=false on Set (backpressure/eviction).
	ProviderSetRejected(storageKey string)

	// GenStore errors (snapshot or bump).
	GenSnapshotError(storageKey string, err error)
	GenBumpError(storageKey string, err error)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) SaveDiscarded(Snapshot, Snapshot) {}
func (NopHooks) SaveFailed(error)                 {}
func (NopHooks) FetchSuperseded(string)           {}
func (NopHooks) Invalidated(int, bool)            {}
func (NopHooks) RefreshFailed(error)              {}
func (NopHooks) ProviderSetRejected(string)       {}
func (NopHooks) GenSnapshotError(string, error)   {}
func (NopHooks) GenBumpError(string, error)       {}
