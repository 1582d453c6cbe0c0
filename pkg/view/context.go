// Package view provides the key-derivation protocol that lets independent
// persistent structures share one physical store: a Context binds a backend
// handle to a base key and turns typed indices into collision-free absolute
// keys under that address. A Context is an addressing helper, not an
// automatic prefixing wrapper: its I/O methods pass keys to the backend
// exactly as supplied, and callers derive full keys first.
package view

import (
	"context"
	"fmt"

	"github.com/eigerco/viewstore/pkg/serialization/codec/binary"
	"github.com/eigerco/viewstore/pkg/store"
)

// Context addresses one logical sub-structure inside a shared key-value
// store. Contexts are value-like: they are cheap to copy, never mutated in
// place, and re-addressing produces a new Context. Copies sharing one
// backend handle are safe for concurrent reads; the backend owns the
// sharing discipline of the handle itself.
type Context interface {
	// Extra returns the caller-supplied data carried along with the
	// context and duplicated on cloning.
	Extra() any

	// BaseKey returns the byte-string address of this context's subtree.
	BaseKey() []byte

	// BaseTag returns baseKey || tag, establishing a one-byte-wide
	// disjoint sub-namespace under the base.
	BaseTag(tag byte) []byte

	// BaseTagIndex returns baseKey || tag || index for manually keyed
	// sub-namespaces.
	BaseTagIndex(tag byte, index []byte) []byte

	// DeriveKey returns baseKey || encode(index) using the deterministic
	// binary codec. An index that encodes to zero bytes would alias the
	// base key itself and panics: that is a key-space bug to prevent, not
	// an error to handle.
	DeriveKey(index any) ([]byte, error)

	// DeriveTagKey returns baseKey || tag || encode(index).
	DeriveTagKey(tag byte, index any) ([]byte, error)

	// DeriveShortKey returns encode(index) alone, with no base prefix,
	// for callers building keys not rooted at this context's address.
	DeriveShortKey(index any) ([]byte, error)

	// DeriveKeyBytes returns baseKey || suffix without encoding.
	DeriveKeyBytes(suffix []byte) []byte

	// ReadKeyBytes, FindKeysByPrefix, FindKeyValuesByPrefix and WriteBatch
	// delegate to the backend with the same contract as store.Store. Keys
	// and prefixes are passed through unprefixed.
	ReadKeyBytes(ctx context.Context, key []byte) ([]byte, error)
	FindKeysByPrefix(ctx context.Context, prefix []byte) ([][]byte, error)
	FindKeyValuesByPrefix(ctx context.Context, prefix []byte) ([]store.KeyValue, error)
	WriteBatch(ctx context.Context, batch *store.Batch) error

	// CloneWithBaseKey returns a new Context sharing the same backend
	// handle and extra data, addressed at baseKey.
	CloneWithBaseKey(baseKey []byte) Context
}

// ReadKey reads the value at key through c and decodes it with the
// deterministic binary codec. A nil pointer means the key is absent.
func ReadKey[V any](ctx context.Context, c Context, key []byte) (*V, error) {
	raw, err := c.ReadKeyBytes(ctx, key)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	return DecodeValue[V](raw)
}

// DecodeValue decodes stored value bytes as a V.
func DecodeValue[V any](raw []byte) (*V, error) {
	value := new(V)
	if err := binary.Unmarshal(raw, value); err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	return value, nil
}
