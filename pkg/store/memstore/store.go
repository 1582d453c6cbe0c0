// Package memstore provides an in-memory store.Store for tests and
// ephemeral deployments. Keys are held in a plain map; scans sort on
// demand.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/eigerco/viewstore/pkg/store"
)

// Store is an in-memory key-value store. The zero value is not usable; use
// New. A Store is safe for concurrent use: reads take a shared lock and
// WriteBatch applies all of its operations under the exclusive lock, so
// readers observe either all of a batch's effects or none.
type Store struct {
	mu   sync.RWMutex
	data map[string][]byte
}

var _ store.Store = (*Store)(nil)

// New returns an empty in-memory store.
func New() *Store {
	return &Store{data: make(map[string][]byte)}
}

func (s *Store) ReadKeyBytes(ctx context.Context, key []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.data[string(key)]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

func (s *Store) FindKeysByPrefix(ctx context.Context, prefix []byte) ([][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys [][]byte
	for key := range s.data {
		if strings.HasPrefix(key, string(prefix)) {
			keys = append(keys, []byte(key))
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		return string(keys[i]) < string(keys[j])
	})
	return keys, nil
}

func (s *Store) FindKeyValuesByPrefix(ctx context.Context, prefix []byte) ([]store.KeyValue, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var kvs []store.KeyValue
	for key, value := range s.data {
		if strings.HasPrefix(key, string(prefix)) {
			out := make([]byte, len(value))
			copy(out, value)
			kvs = append(kvs, store.KeyValue{Key: []byte(key), Value: out})
		}
	}
	sort.Slice(kvs, func(i, j int) bool {
		return string(kvs[i].Key) < string(kvs[j].Key)
	})
	return kvs, nil
}

func (s *Store) WriteBatch(ctx context.Context, batch *store.Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, op := range batch.Operations {
		switch op.Kind {
		case store.OpPut:
			value := make([]byte, len(op.Value))
			copy(value, op.Value)
			s.data[string(op.Key)] = value
		case store.OpDelete:
			delete(s.data, string(op.Key))
		case store.OpDeletePrefix:
			for key := range s.data {
				if strings.HasPrefix(key, string(op.Key)) {
					delete(s.data, key)
				}
			}
		}
	}
	return nil
}

// Len returns the number of stored keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
