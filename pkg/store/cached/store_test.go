package cached

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/viewstore/pkg/store"
	"github.com/eigerco/viewstore/pkg/store/memstore"
	"github.com/eigerco/viewstore/pkg/store/storetest"
)

func TestStoreConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s, err := Wrap(memstore.New(), 128)
		require.NoError(t, err)
		return s
	})
}

// countingStore counts the point reads that reach the inner store.
type countingStore struct {
	store.Store
	reads int
}

func (c *countingStore) ReadKeyBytes(ctx context.Context, key []byte) ([]byte, error) {
	c.reads++
	return c.Store.ReadKeyBytes(ctx, key)
}

func TestReadThrough(t *testing.T) {
	ctx := context.Background()

	inner := &countingStore{Store: memstore.New()}
	s, err := Wrap(inner, 16)
	require.NoError(t, err)

	batch, err := store.Build(func(b *store.Batch) error {
		b.PutBytes([]byte("key"), []byte("value"))
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, s.WriteBatch(ctx, batch))

	// The write already populated the cache.
	for i := 0; i < 3; i++ {
		value, err := s.ReadKeyBytes(ctx, []byte("key"))
		require.NoError(t, err)
		assert.Equal(t, []byte("value"), value)
	}
	assert.Equal(t, 0, inner.reads)
}

func TestDeleteInvalidates(t *testing.T) {
	ctx := context.Background()

	s, err := Wrap(memstore.New(), 16)
	require.NoError(t, err)

	batch, err := store.Build(func(b *store.Batch) error {
		b.PutBytes([]byte("key"), []byte("value"))
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, s.WriteBatch(ctx, batch))

	batch, err = store.Build(func(b *store.Batch) error {
		b.Delete([]byte("key"))
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, s.WriteBatch(ctx, batch))

	value, err := s.ReadKeyBytes(ctx, []byte("key"))
	require.NoError(t, err)
	assert.Nil(t, value)
}

// gatedStore blocks its first caller after the inner commit until released,
// exposing the window between a commit and the cache update mirroring it.
type gatedStore struct {
	store.Store
	entered chan struct{}
	release chan struct{}
	first   sync.Once
}

func (g *gatedStore) WriteBatch(ctx context.Context, batch *store.Batch) error {
	err := g.Store.WriteBatch(ctx, batch)
	gated := false
	g.first.Do(func() { gated = true })
	if gated {
		close(g.entered)
		<-g.release
	}
	return err
}

// Two writers racing on the same key must leave the cache holding whatever
// the backend holds, even when the first writer stalls between its commit
// and its cache update.
func TestConcurrentWritersKeepCacheFresh(t *testing.T) {
	ctx := context.Background()

	inner := &gatedStore{
		Store:   memstore.New(),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	s, err := Wrap(inner, 16)
	require.NoError(t, err)

	putKey := func(value string) {
		batch, err := store.Build(func(b *store.Batch) error {
			b.PutBytes([]byte("key"), []byte(value))
			return nil
		})
		assert.NoError(t, err)
		assert.NoError(t, s.WriteBatch(ctx, batch))
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		putKey("old")
	}()

	// The first writer has committed and is stalled; start the second, give
	// it a chance to run, then let the first finish.
	<-inner.entered
	go func() {
		defer wg.Done()
		putKey("new")
	}()
	time.Sleep(10 * time.Millisecond)
	close(inner.release)
	wg.Wait()

	cachedValue, err := s.ReadKeyBytes(ctx, []byte("key"))
	require.NoError(t, err)
	backendValue, err := inner.ReadKeyBytes(ctx, []byte("key"))
	require.NoError(t, err)
	assert.Equal(t, backendValue, cachedValue)
	assert.Equal(t, []byte("new"), cachedValue)
}

func TestPrefixDeletePurges(t *testing.T) {
	ctx := context.Background()

	s, err := Wrap(memstore.New(), 16)
	require.NoError(t, err)

	batch, err := store.Build(func(b *store.Batch) error {
		b.PutBytes([]byte{1, 1}, []byte("a"))
		b.PutBytes([]byte{1, 2}, []byte("b"))
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, s.WriteBatch(ctx, batch))

	batch, err = store.Build(func(b *store.Batch) error {
		b.DeletePrefix([]byte{1})
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, s.WriteBatch(ctx, batch))

	value, err := s.ReadKeyBytes(ctx, []byte{1, 1})
	require.NoError(t, err)
	assert.Nil(t, value)

	value, err = s.ReadKeyBytes(ctx, []byte{1, 2})
	require.NoError(t, err)
	assert.Nil(t, value)
}
