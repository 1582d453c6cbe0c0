package codec

import "github.com/eigerco/viewstore/pkg/serialization/codec/binary"

// BinaryCodec implements Codec with the deterministic binary encoding. This
// is the codec used for stored values and derived keys.
type BinaryCodec struct{}

// NewBinaryCodec initializes an instance of the deterministic binary codec.
func NewBinaryCodec() *BinaryCodec {
	return &BinaryCodec{}
}

func (c *BinaryCodec) Marshal(v any) ([]byte, error) {
	return binary.Marshal(v)
}

func (c *BinaryCodec) Unmarshal(data []byte, v any) error {
	return binary.Unmarshal(data, v)
}
