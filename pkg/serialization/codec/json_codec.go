package codec

import "encoding/json"

// JSONCodec implements Codec with JSON encoding. Its output is readable but
// not deterministic across Go versions, so it is for tooling and debugging
// only, never for derived keys.
type JSONCodec struct{}

// NewJSONCodec initializes an instance of the JSON codec.
func NewJSONCodec() *JSONCodec {
	return &JSONCodec{}
}

func (c *JSONCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (c *JSONCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
