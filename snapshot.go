package cassync

import (
	c "github.com/unkn0wn-root/cassync/codec"
)

// Snapshot is the serialized form of a value. It is only ever compared as a
// whole; two values are "the same" iff their snapshots are equal.
type Snapshot string

// Comparator serializes values of type V into snapshots with a deterministic
// codec. The zero Comparator is not usable; build one with NewComparator.
type Comparator[V any] struct {
	codec c.Codec[V]
	zero  Snapshot
}

// NewComparator returns a comparator over codec. A nil codec selects
// canonical CBOR.
func NewComparator[V any](codec c.Codec[V]) (Comparator[V], error) {
	if codec == nil {
		codec = c.Snapshot[V]()
	}
	cmp := Comparator[V]{codec: codec}
	var zero V
	z, err := cmp.Take(zero)
	if err != nil {
		return Comparator[V]{}, err
	}
	cmp.zero = z
	return cmp, nil
}

// Take returns the snapshot of v.
func (cmp Comparator[V]) Take(v V) (Snapshot, error) {
	b, err := cmp.codec.Encode(v)
	if err != nil {
		return "", err
	}
	return Snapshot(b), nil
}

// Equal reports whether a and b serialize identically.
func (cmp Comparator[V]) Equal(a, b V) (bool, error) {
	sa, err := cmp.Take(a)
	if err != nil {
		return false, err
	}
	sb, err := cmp.Take(b)
	if err != nil {
		return false, err
	}
	return sa == sb, nil
}

// IsZero reports whether s is the snapshot of V's zero value (nil map,
// empty string, zero struct). Such values count as absent.
func (cmp Comparator[V]) IsZero(s Snapshot) bool {
	return s == cmp.zero
}
