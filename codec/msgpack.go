package codec

import "github.com/vmihailenco/msgpack/v5"

// Msgpack is a compact codec for stored fetch results.
// The zero value is ready to use. Map key order is not canonical, so do not
// use it for snapshots.
type Msgpack[V any] struct{}

func (Msgpack[V]) Encode(v V) ([]byte, error) {
	return msgpack.Marshal(v)
}

func (Msgpack[V]) Decode(b []byte) (V, error) {
	var v V
	err := msgpack.Unmarshal(b, &v)
	return v, err
}
