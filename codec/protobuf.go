package codec

import "google.golang.org/protobuf/proto"

// Protobuf stores proto messages. Deterministic marshaling is enabled so the
// codec may back snapshots of proto-shaped values as well.
type Protobuf[T proto.Message] struct {
	new func() T // e.g. func() *pb.Workspace { return &pb.Workspace{} }
}

func NewProtobuf[T proto.Message](ctor func() T) Protobuf[T] {
	return Protobuf[T]{new: ctor}
}

func (c Protobuf[T]) Encode(v T) ([]byte, error) {
	return proto.MarshalOptions{Deterministic: true}.Marshal(v)
}

func (c Protobuf[T]) Decode(b []byte) (T, error) {
	m := c.new()
	err := proto.Unmarshal(b, m)
	return m, err
}
