// Package codec turns values into bytes for snapshots and stored fetch results.
//
// Snapshots are compared byte-for-byte, so a codec used for snapshots must be
// deterministic: two equal values must always encode to the same bytes. CBOR
// in deterministic mode and JSON (sorted map keys) qualify; Msgpack does not
// sort map keys and should only be used for stored results.
package codec

// Codec encodes/decodes values V to []byte.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}

// Snapshot returns the default snapshot codec for V: canonical CBOR.
func Snapshot[V any]() Codec[V] {
	return MustCBOR[V](true)
}
