// Package storetest provides a conformance suite that every store.Store
// implementation is run through: point reads, ordered prefix scans, atomic
// batch writes and prefix deletes, exercised through the public contract
// only.
package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/viewstore/pkg/store"
)

// Factory returns a fresh, empty store for one subtest. Cleanup should be
// registered on t.
type Factory func(t *testing.T) store.Store

// Run exercises the full store.Store contract against stores built by
// factory.
func Run(t *testing.T, factory Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{
			name: "read_absent_key",
			fn:   testReadAbsentKey,
		},
		{
			name: "write_then_read",
			fn:   testWriteThenRead,
		},
		{
			name: "batch_is_applied_in_order",
			fn:   testBatchAppliedInOrder,
		},
		{
			name: "prefix_scans_are_ordered",
			fn:   testPrefixScansOrdered,
		},
		{
			name: "prefix_scan_bounds",
			fn:   testPrefixScanBounds,
		},
		{
			name: "delete_prefix",
			fn:   testDeletePrefix,
		},
		{
			name: "delete_prefix_spares_later_write",
			fn:   testDeletePrefixSparesLaterWrite,
		},
		{
			name: "unbounded_prefix_delete",
			fn:   testUnboundedPrefixDelete,
		},
		{
			name: "simplified_batch_scan_matches_survivors",
			fn:   testSimplifiedBatchSurvivors,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, factory(t))
		})
	}
}

func write(t *testing.T, s store.Store, build func(b *store.Batch)) {
	t.Helper()
	batch, err := store.Build(func(b *store.Batch) error {
		build(b)
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, s.WriteBatch(context.Background(), batch))
}

func testReadAbsentKey(t *testing.T, s store.Store) {
	value, err := s.ReadKeyBytes(context.Background(), []byte("absent"))
	require.NoError(t, err)
	assert.Nil(t, value)
}

func testWriteThenRead(t *testing.T, s store.Store) {
	ctx := context.Background()

	write(t, s, func(b *store.Batch) {
		b.PutBytes([]byte("alpha"), []byte("1"))
		b.PutBytes([]byte("beta"), []byte("2"))
	})

	value, err := s.ReadKeyBytes(ctx, []byte("alpha"))
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), value)

	value, err = s.ReadKeyBytes(ctx, []byte("beta"))
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), value)
}

func testBatchAppliedInOrder(t *testing.T, s store.Store) {
	ctx := context.Background()

	write(t, s, func(b *store.Batch) {
		b.PutBytes([]byte("key"), []byte("first"))
		b.PutBytes([]byte("key"), []byte("second"))
		b.Delete([]byte("other"))
	})

	value, err := s.ReadKeyBytes(ctx, []byte("key"))
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), value)
}

func testPrefixScansOrdered(t *testing.T, s store.Store) {
	ctx := context.Background()

	// Inserted out of order on purpose.
	write(t, s, func(b *store.Batch) {
		b.PutBytes([]byte{1, 9}, []byte("c"))
		b.PutBytes([]byte{1, 1}, []byte("a"))
		b.PutBytes([]byte{1, 5}, []byte("b"))
		b.PutBytes([]byte{2, 0}, []byte("x"))
	})

	keys, err := s.FindKeysByPrefix(ctx, []byte{1})
	require.NoError(t, err)
	assert.Equal(t, [][]byte{{1, 1}, {1, 5}, {1, 9}}, keys)

	kvs, err := s.FindKeyValuesByPrefix(ctx, []byte{1})
	require.NoError(t, err)
	require.Len(t, kvs, 3)
	assert.Equal(t, []byte{1, 1}, kvs[0].Key)
	assert.Equal(t, []byte("a"), kvs[0].Value)
	assert.Equal(t, []byte{1, 9}, kvs[2].Key)
	assert.Equal(t, []byte("c"), kvs[2].Value)
}

func testPrefixScanBounds(t *testing.T, s store.Store) {
	ctx := context.Background()

	// A prefix ending in 0xFF must not leak into sibling ranges.
	write(t, s, func(b *store.Batch) {
		b.PutBytes([]byte{5, 255}, []byte("in"))
		b.PutBytes([]byte{5, 255, 0}, []byte("in-deeper"))
		b.PutBytes([]byte{6}, []byte("out"))
	})

	keys, err := s.FindKeysByPrefix(ctx, []byte{5, 255})
	require.NoError(t, err)
	assert.Equal(t, [][]byte{{5, 255}, {5, 255, 0}}, keys)
}

func testDeletePrefix(t *testing.T, s store.Store) {
	ctx := context.Background()

	write(t, s, func(b *store.Batch) {
		b.PutBytes([]byte{1, 1}, []byte("a"))
		b.PutBytes([]byte{1, 2}, []byte("b"))
		b.PutBytes([]byte{2, 1}, []byte("c"))
	})
	write(t, s, func(b *store.Batch) {
		b.DeletePrefix([]byte{1})
	})

	keys, err := s.FindKeysByPrefix(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{{2, 1}}, keys)
}

func testDeletePrefixSparesLaterWrite(t *testing.T, s store.Store) {
	ctx := context.Background()

	write(t, s, func(b *store.Batch) {
		b.PutBytes([]byte{1, 1}, []byte("old"))
	})
	// One batch: the prefix delete clears the subtree, the later put
	// re-creates a single key under it.
	write(t, s, func(b *store.Batch) {
		b.PutBytes([]byte{1, 2}, []byte("doomed"))
		b.DeletePrefix([]byte{1})
		b.PutBytes([]byte{1, 3}, []byte("kept"))
	})

	keys, err := s.FindKeysByPrefix(ctx, []byte{1})
	require.NoError(t, err)
	assert.Equal(t, [][]byte{{1, 3}}, keys)

	value, err := s.ReadKeyBytes(ctx, []byte{1, 3})
	require.NoError(t, err)
	assert.Equal(t, []byte("kept"), value)
}

func testUnboundedPrefixDelete(t *testing.T, s store.Store) {
	ctx := context.Background()

	// An all-0xFF prefix has no exclusive upper bound.
	write(t, s, func(b *store.Batch) {
		b.PutBytes([]byte{255, 255}, []byte("a"))
		b.PutBytes([]byte{255, 255, 7}, []byte("b"))
		b.PutBytes([]byte{255, 254}, []byte("keep"))
	})
	write(t, s, func(b *store.Batch) {
		b.DeletePrefix([]byte{255, 255})
	})

	keys, err := s.FindKeysByPrefix(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{{255, 254}}, keys)
}

func testSimplifiedBatchSurvivors(t *testing.T, s store.Store) {
	ctx := context.Background()

	batch, err := store.Build(func(b *store.Batch) error {
		b.PutBytes([]byte{1, 1}, []byte("dead"))
		b.PutBytes([]byte{1, 2}, []byte("dead"))
		b.DeletePrefix([]byte{1})
		b.PutBytes([]byte{1, 5}, []byte("alive"))
		b.PutBytes([]byte{2, 1}, []byte("alive"))
		b.Delete([]byte{2, 2})
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, s.WriteBatch(ctx, batch.Simplify()))

	keys, err := s.FindKeysByPrefix(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{{1, 5}, {2, 1}}, keys)
}
