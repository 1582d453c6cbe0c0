package view

import (
	"context"
	"fmt"

	"github.com/eigerco/viewstore/pkg/serialization/codec/binary"
	"github.com/eigerco/viewstore/pkg/store"
)

// StoreContext implements Context directly over any store.Store: derivations
// are pure address arithmetic and every I/O call delegates unprefixed to the
// backend. E is the type of the extra data carried along.
type StoreContext[E any] struct {
	store   store.Store
	baseKey []byte
	extra   E
}

// NewStoreContext returns a StoreContext over s addressed at baseKey.
func NewStoreContext[E any](s store.Store, baseKey []byte, extra E) StoreContext[E] {
	return StoreContext[E]{
		store:   s,
		baseKey: baseKey,
		extra:   extra,
	}
}

// Store returns the backend handle, shared between contexts cloned from one
// another.
func (c StoreContext[E]) Store() store.Store {
	return c.store
}

func (c StoreContext[E]) Extra() any {
	return c.extra
}

// TypedExtra returns the extra data without the any indirection of the
// Context interface.
func (c StoreContext[E]) TypedExtra() E {
	return c.extra
}

func (c StoreContext[E]) BaseKey() []byte {
	key := make([]byte, len(c.baseKey))
	copy(key, c.baseKey)
	return key
}

func (c StoreContext[E]) BaseTag(tag byte) []byte {
	key := make([]byte, 0, len(c.baseKey)+1)
	key = append(key, c.baseKey...)
	key = append(key, tag)
	return key
}

func (c StoreContext[E]) BaseTagIndex(tag byte, index []byte) []byte {
	key := make([]byte, 0, len(c.baseKey)+1+len(index))
	key = append(key, c.baseKey...)
	key = append(key, tag)
	key = append(key, index...)
	return key
}

func (c StoreContext[E]) DeriveKey(index any) ([]byte, error) {
	encoded, err := binary.Marshal(index)
	if err != nil {
		return nil, fmt.Errorf("encode index: %w", err)
	}
	// Zero-byte encodings are forbidden: the derived key would equal the
	// base key and collide with unrelated data.
	if len(encoded) == 0 {
		panic("view: index encodes to zero bytes, derived key would alias the base key")
	}
	key := make([]byte, 0, len(c.baseKey)+len(encoded))
	key = append(key, c.baseKey...)
	key = append(key, encoded...)
	return key, nil
}

func (c StoreContext[E]) DeriveTagKey(tag byte, index any) ([]byte, error) {
	encoded, err := binary.Marshal(index)
	if err != nil {
		return nil, fmt.Errorf("encode index: %w", err)
	}
	key := make([]byte, 0, len(c.baseKey)+1+len(encoded))
	key = append(key, c.baseKey...)
	key = append(key, tag)
	key = append(key, encoded...)
	return key, nil
}

func (c StoreContext[E]) DeriveShortKey(index any) ([]byte, error) {
	encoded, err := binary.Marshal(index)
	if err != nil {
		return nil, fmt.Errorf("encode index: %w", err)
	}
	return encoded, nil
}

func (c StoreContext[E]) DeriveKeyBytes(suffix []byte) []byte {
	key := make([]byte, 0, len(c.baseKey)+len(suffix))
	key = append(key, c.baseKey...)
	key = append(key, suffix...)
	return key
}

func (c StoreContext[E]) ReadKeyBytes(ctx context.Context, key []byte) ([]byte, error) {
	return c.store.ReadKeyBytes(ctx, key)
}

func (c StoreContext[E]) FindKeysByPrefix(ctx context.Context, prefix []byte) ([][]byte, error) {
	return c.store.FindKeysByPrefix(ctx, prefix)
}

func (c StoreContext[E]) FindKeyValuesByPrefix(ctx context.Context, prefix []byte) ([]store.KeyValue, error) {
	return c.store.FindKeyValuesByPrefix(ctx, prefix)
}

func (c StoreContext[E]) WriteBatch(ctx context.Context, batch *store.Batch) error {
	return c.store.WriteBatch(ctx, batch)
}

func (c StoreContext[E]) CloneWithBaseKey(baseKey []byte) Context {
	return StoreContext[E]{
		store:   c.store,
		baseKey: baseKey,
		extra:   c.extra,
	}
}
