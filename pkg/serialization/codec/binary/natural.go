package binary

import (
	"encoding/binary"
	"math"
)

// EncodeUint encodes a natural number of up to 2^64 with the compact
// variable-length scheme: a prefix byte whose run of leading one bits gives
// the number of following little-endian bytes, the remaining prefix bits
// carrying the high end of the value. Values below 128 encode to one byte.
func EncodeUint(x uint64) []byte {
	var l uint8
	for l = 0; l < 8; l++ {
		if x < (1 << (7 * (l + 1))) {
			break
		}
	}
	out := make([]byte, 0, l+1)
	if l < 8 {
		prefix := uint8((256 - (1 << (8 - l))) + (x>>(8*l))&math.MaxUint8)
		out = append(out, prefix)
	} else {
		out = append(out, math.MaxUint8)
	}
	for i := 0; i < int(l); i++ {
		out = append(out, uint8((x>>(8*i))&math.MaxUint8))
	}
	return out
}

// decodeUintBytes reconstructs a compact natural from its full encoding:
// the prefix byte followed by l little-endian bytes.
func decodeUintBytes(encoded []byte, l uint8, u *uint64) error {
	*u = 0

	n := len(encoded)
	if n == 0 {
		return nil
	}

	if n > 8 {
		if encoded[0] != math.MaxUint8 {
			return errNineBytePrefix
		}
		*u = binary.LittleEndian.Uint64(encoded[1:9])
		return nil
	}

	for i := uint8(0); i < l; i++ {
		*u |= uint64(encoded[i+1]) << (8 * i)
	}
	*u |= uint64(encoded[0]&(math.MaxUint8>>l)) << (8 * l)

	return nil
}

// encodeFixed encodes x as exactly l little-endian bytes, truncating any
// higher bytes.
func encodeFixed(x uint64, l uint) []byte {
	out := make([]byte, l)
	for i := uint(0); i < l; i++ {
		out[i] = byte((x >> (8 * i)) & math.MaxUint8)
	}
	return out
}

// decodeFixed reconstructs a little-endian natural from its fixed-width
// encoding.
func decodeFixed(encoded []byte) uint64 {
	var u uint64
	for i := 0; i < len(encoded); i++ {
		u |= uint64(encoded[i]) << (8 * i)
	}
	return u
}
