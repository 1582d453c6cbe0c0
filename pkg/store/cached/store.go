// Package cached decorates any store.Store with an LRU cache over point
// reads. Prefix scans always go to the backend: a scan result cannot be
// validated against a partial cache.
package cached

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru"

	"github.com/eigerco/viewstore/pkg/store"
)

// Store wraps an inner store.Store with a read-through LRU over
// ReadKeyBytes. Writes go to the inner store first and update the cache
// only on success, so the cache never observes a batch the store rejected.
type Store struct {
	inner store.Store
	cache *lru.Cache

	// mu orders inner commits with the cache updates that mirror them.
	// Writers hold the write side across both; read-through fills hold the
	// read side, so a fill can never insert a value older than the last
	// committed batch.
	mu sync.RWMutex
}

var _ store.Store = (*Store)(nil)

// Wrap returns a caching decorator over inner holding up to size point
// reads.
func Wrap(inner store.Store, size int) (*Store, error) {
	cache, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("create lru cache: %w", err)
	}
	return &Store{inner: inner, cache: cache}, nil
}

func (s *Store) ReadKeyBytes(ctx context.Context, key []byte) ([]byte, error) {
	if value, ok := s.lookup(key); ok {
		return value, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	// Re-check under the lock: a writer may have filled the key meanwhile.
	if value, ok := s.lookup(key); ok {
		return value, nil
	}

	value, err := s.inner.ReadKeyBytes(ctx, key)
	if err != nil {
		return nil, err
	}
	if value != nil {
		held := make([]byte, len(value))
		copy(held, value)
		s.cache.Add(string(key), held)
	}
	return value, nil
}

func (s *Store) lookup(key []byte) ([]byte, bool) {
	cached, ok := s.cache.Get(string(key))
	if !ok {
		return nil, false
	}
	value := cached.([]byte)
	out := make([]byte, len(value))
	copy(out, value)
	return out, true
}

func (s *Store) FindKeysByPrefix(ctx context.Context, prefix []byte) ([][]byte, error) {
	return s.inner.FindKeysByPrefix(ctx, prefix)
}

func (s *Store) FindKeyValuesByPrefix(ctx context.Context, prefix []byte) ([]store.KeyValue, error) {
	return s.inner.FindKeyValuesByPrefix(ctx, prefix)
}

func (s *Store) WriteBatch(ctx context.Context, batch *store.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.inner.WriteBatch(ctx, batch); err != nil {
		return err
	}

	for _, op := range batch.Operations {
		switch op.Kind {
		case store.OpPut:
			held := make([]byte, len(op.Value))
			copy(held, op.Value)
			s.cache.Add(string(op.Key), held)
		case store.OpDelete:
			s.cache.Remove(string(op.Key))
		case store.OpDeletePrefix:
			// The cache cannot enumerate keys under a prefix.
			s.cache.Purge()
		}
	}
	return nil
}

// Purge drops every cached entry.
func (s *Store) Purge() {
	s.cache.Purge()
}
