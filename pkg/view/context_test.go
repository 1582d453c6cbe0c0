package view

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/viewstore/pkg/store"
	"github.com/eigerco/viewstore/pkg/store/memstore"
)

func newTestContext(t *testing.T) StoreContext[string] {
	t.Helper()
	return NewStoreContext(memstore.New(), []byte{0x01}, "extra")
}

func TestBaseKeyDerivations(t *testing.T) {
	c := newTestContext(t)

	assert.Equal(t, []byte{0x01}, c.BaseKey())
	assert.Equal(t, []byte{0x01, 0x05}, c.BaseTag(0x05))
	assert.Equal(t, []byte{0x01, 0x05, 0xAB}, c.BaseTagIndex(0x05, []byte{0xAB}))
	assert.Equal(t, []byte{0x01, 0xCC, 0xDD}, c.DeriveKeyBytes([]byte{0xCC, 0xDD}))
}

func TestBaseKeyIsACopy(t *testing.T) {
	c := newTestContext(t)

	key := c.BaseKey()
	key[0] = 0xFF
	assert.Equal(t, []byte{0x01}, c.BaseKey())
}

func TestDeriveKey(t *testing.T) {
	c := newTestContext(t)

	key, err := c.DeriveKey(uint8(0xAB))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0xAB}, key)

	key, err = c.DeriveTagKey(0x02, uint8(0xAB))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02, 0xAB}, key)

	// Short keys carry no base prefix.
	key, err = c.DeriveShortKey(uint8(0xAB))
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAB}, key)
}

func TestDeriveKeyPanicsOnEmptyEncoding(t *testing.T) {
	c := newTestContext(t)

	// An empty struct encodes to zero bytes; the derived key would collide
	// with the base key itself.
	assert.Panics(t, func() {
		_, _ = c.DeriveKey(struct{}{})
	})
}

func TestIOPassesKeysThroughUnprefixed(t *testing.T) {
	ctx := context.Background()

	backend := memstore.New()
	c := NewStoreContext(backend, []byte{0x01}, struct{}{})

	batch, err := store.Build(func(b *store.Batch) error {
		b.PutBytes([]byte{0x42}, []byte("value"))
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, c.WriteBatch(ctx, batch))

	// The key lands in the backend exactly as written, outside the base.
	value, err := backend.ReadKeyBytes(ctx, []byte{0x42})
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), value)

	value, err = c.ReadKeyBytes(ctx, []byte{0x42})
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), value)

	keys, err := c.FindKeysByPrefix(ctx, []byte{0x42})
	require.NoError(t, err)
	assert.Equal(t, [][]byte{{0x42}}, keys)

	kvs, err := c.FindKeyValuesByPrefix(ctx, []byte{0x42})
	require.NoError(t, err)
	assert.Equal(t, []store.KeyValue{{Key: []byte{0x42}, Value: []byte("value")}}, kvs)
}

func TestCloneWithBaseKey(t *testing.T) {
	ctx := context.Background()

	c := newTestContext(t)
	clone := c.CloneWithBaseKey([]byte{0x02, 0x03})

	assert.Equal(t, []byte{0x02, 0x03}, clone.BaseKey())
	assert.Equal(t, "extra", clone.Extra())
	assert.Equal(t, []byte{0x01}, c.BaseKey())

	// Both contexts address the same backend.
	batch, err := store.Build(func(b *store.Batch) error {
		b.PutBytes([]byte("shared"), []byte("yes"))
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, clone.WriteBatch(ctx, batch))

	value, err := c.ReadKeyBytes(ctx, []byte("shared"))
	require.NoError(t, err)
	assert.Equal(t, []byte("yes"), value)
}

func TestReadKeyDecodes(t *testing.T) {
	ctx := context.Background()

	c := newTestContext(t)
	key, err := c.DeriveKey(uint8(7))
	require.NoError(t, err)

	batch, err := store.Build(func(b *store.Batch) error {
		return b.Put(key, uint64(1234))
	})
	require.NoError(t, err)
	require.NoError(t, c.WriteBatch(ctx, batch))

	value, err := ReadKey[uint64](ctx, c, key)
	require.NoError(t, err)
	require.NotNil(t, value)
	assert.Equal(t, uint64(1234), *value)

	absent, err := ReadKey[uint64](ctx, c, []byte("missing"))
	require.NoError(t, err)
	assert.Nil(t, absent)
}

func TestTypedExtra(t *testing.T) {
	c := newTestContext(t)
	assert.Equal(t, "extra", c.TypedExtra())
}
