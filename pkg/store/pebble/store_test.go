package pebble

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/viewstore/pkg/store"
	"github.com/eigerco/viewstore/pkg/store/storetest"
)

func TestStoreConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s, err := OpenMemory()
		require.NoError(t, err)
		t.Cleanup(func() {
			_ = s.Close()
		})
		return s
	})
}

func TestStoreClosure(t *testing.T) {
	ctx := context.Background()

	s, err := OpenMemory()
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.ReadKeyBytes(ctx, []byte("key"))
	assert.ErrorIs(t, err, ErrClosed)

	_, err = s.FindKeysByPrefix(ctx, nil)
	assert.ErrorIs(t, err, ErrClosed)

	err = s.WriteBatch(ctx, store.NewBatch())
	assert.ErrorIs(t, err, ErrClosed)

	// Double close should not error
	assert.NoError(t, s.Close())
}

func TestOpenOnDisk(t *testing.T) {
	ctx := context.Background()

	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	batch, err := store.Build(func(b *store.Batch) error {
		b.PutBytes([]byte("persisted"), []byte("yes"))
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, s.WriteBatch(ctx, batch))

	value, err := s.ReadKeyBytes(ctx, []byte("persisted"))
	require.NoError(t, err)
	assert.Equal(t, []byte("yes"), value)
}
