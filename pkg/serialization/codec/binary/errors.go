package binary

import "errors"

var (
	errNineBytePrefix   = errors.New("expected first byte to be 255 for 9-byte encoding")
	ErrInvalidPointer   = errors.New("invalid pointer marker")
	ErrDecodingBool     = errors.New("invalid boolean byte")
	ErrByteLengthTooBig = errors.New("byte sequence length exceeds max value of uint32")

	ErrUnsupportedType     = "unsupported type: %T"
	ErrReadingBytes        = "reading bytes: %w"
	ErrReadingByte         = "reading byte: %w"
	ErrDecodingUint        = "decoding uint: %w"
	ErrUnsupportedMapKey   = "unsupported map key type %v"
	ErrDecodingMapLength   = "decoding map length: %w"
	ErrDecodingMapKey      = "decoding map key: %w"
	ErrDecodingMapValue    = "decoding map value: %w"
	ErrEncodingStructField = "encoding struct field %q: %w"
	ErrDecodingStructField = "decoding struct field %q: %w"
	ErrInvalidLengthTag    = "invalid length tag on field %q: %v"
	ErrConflictingTags     = "conflicting length and encoding tags on field %q"
	ErrNonCompactField     = "compact encoding unsupported for field kind %v"
)
