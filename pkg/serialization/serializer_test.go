package serialization

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/viewstore/pkg/serialization/codec"
	"github.com/eigerco/viewstore/pkg/store"
)

type record struct {
	ID    uint64 `json:"id"`
	Label string `json:"label"`
}

func TestSerializerRoundTrip(t *testing.T) {
	testCases := []struct {
		name  string
		codec codec.Codec
	}{
		{"binary", codec.NewBinaryCodec()},
		{"json", codec.NewJSONCodec()},
	}

	in := record{ID: 7, Label: "seven"}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := NewSerializer(tc.codec)

			encoded, err := s.Encode(in)
			require.NoError(t, err)

			var out record
			require.NoError(t, s.Decode(encoded, &out))
			assert.Equal(t, in, out)
		})
	}
}

// The binary codec carries store snapshots: a key-value slice must survive
// the roundtrip byte-exact.
func TestBinaryCodecKeyValueSnapshot(t *testing.T) {
	s := NewSerializer(codec.NewBinaryCodec())

	in := []store.KeyValue{
		{Key: []byte{0x01, 0x01}, Value: []byte("a")},
		{Key: []byte{0x01, 0x02}, Value: []byte{}},
		{Key: []byte{0xFF}, Value: []byte("edge")},
	}

	encoded, err := s.Encode(in)
	require.NoError(t, err)

	var out []store.KeyValue
	require.NoError(t, s.Decode(encoded, &out))
	assert.Equal(t, in, out)
}
