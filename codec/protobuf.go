package codec

import "google.golang.org/protobuf/proto"

// Protobuf serializes proto-typed values. Needs a constructor because a
// proto.Message type parameter alone cannot produce a fresh concrete message.
type Protobuf[T proto.Message] struct {
	new func() T // e.g. func() *mypb.KeyTable { return &mypb.KeyTable{} }
}

func NewProtobuf[T proto.Message](ctor func() T) Protobuf[T] {
	return Protobuf[T]{new: ctor}
}

func (c Protobuf[T]) Encode(v T) ([]byte, error) {
	return proto.Marshal(v)
}
func (c Protobuf[T]) Decode(b []byte) (T, error) {
	m := c.new()
	err := proto.Unmarshal(b, m)
	return m, err
}
