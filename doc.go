// Package cassync keeps client-side state in step with a remote service when
// writes and reads race each other.
//
// Components:
//   - Reconciler[V]: periodic autosave with a stale-write guard. A persist result
//     is committed only if the value has not changed since it was taken.
//   - FileMonitor: Reconciler over pending file contents, committed per file.
//   - Coordinator[R]: keyed fetches where only the latest Execute may commit,
//     backed by a Provider byte store and per-key generations (GenStore).
//   - StaleCache[V]: one aggregate value refetched once older than a TTL.
//   - Mutator[P, R]: writes where a newer call cancels the previous one.
//
// Keys:
//
//	fetch:<ns>:<hash>  - stored fetch results (hash over the canonical key)
//	gen:<ns>:<hash>    - generations, when the Redis GenStore is used
//
// Stale-write guard:
//
//	before := cmp.Take(value())
//	res, err := persist(ctx, value())
//	if cmp.Take(value()) != before { return } // changed while in flight
//	commit(res)
package cassync
