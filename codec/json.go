package codec

import "encoding/json"

// JSON encodes with encoding/json. Map keys are emitted sorted, which makes
// it usable for snapshots of map-shaped documents.
type JSON[V any] struct{}

var _ Codec[map[string]string] = JSON[map[string]string]{}

func (JSON[V]) Encode(v V) ([]byte, error) { return json.Marshal(v) }
func (JSON[V]) Decode(b []byte) (V, error) {
	var v V
	err := json.Unmarshal(b, &v)
	return v, err
}
