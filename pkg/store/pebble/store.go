// Package pebble adapts cockroachdb/pebble to the store.Store contract.
// Bounded prefix deletes map to pebble range deletes; batches commit through
// one pebble batch, which pebble applies atomically.
package pebble

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"

	"github.com/eigerco/viewstore/pkg/log"
	"github.com/eigerco/viewstore/pkg/store"
)

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("pebble store: database is closed")

// Store is a pebble-backed store.Store. Safe for concurrent use; pebble
// owns the on-disk atomicity of batch commits.
type Store struct {
	db     *pebble.DB
	closed bool
	mu     sync.RWMutex
}

var _ store.Store = (*Store)(nil)

// Open opens or creates a pebble database at path.
func Open(path string) (*Store, error) {
	opts := &pebble.Options{
		Cache:        pebble.NewCache(64 * 1024 * 1024),
		MemTableSize: 32 * 1024 * 1024,
	}

	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("open pebble database: %w", err)
	}
	log.Store.Debug().Str("path", path).Msg("opened pebble database")
	return &Store{db: db}, nil
}

// OpenMemory opens a pebble database backed by an in-memory filesystem,
// for tests.
func OpenMemory() (*Store, error) {
	db, err := pebble.Open("", &pebble.Options{FS: vfs.NewMem()})
	if err != nil {
		return nil, fmt.Errorf("open in-memory pebble database: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) ReadKeyBytes(ctx context.Context, key []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}

	value, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read key %x: %w", key, err)
	}
	defer closer.Close()

	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

func (s *Store) FindKeysByPrefix(ctx context.Context, prefix []byte) ([][]byte, error) {
	var keys [][]byte
	err := s.scanPrefix(ctx, prefix, func(key, _ []byte) {
		out := make([]byte, len(key))
		copy(out, key)
		keys = append(keys, out)
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (s *Store) FindKeyValuesByPrefix(ctx context.Context, prefix []byte) ([]store.KeyValue, error) {
	var kvs []store.KeyValue
	err := s.scanPrefix(ctx, prefix, func(key, value []byte) {
		outKey := make([]byte, len(key))
		copy(outKey, key)
		outValue := make([]byte, len(value))
		copy(outValue, value)
		kvs = append(kvs, store.KeyValue{Key: outKey, Value: outValue})
	})
	if err != nil {
		return nil, err
	}
	return kvs, nil
}

func (s *Store) scanPrefix(ctx context.Context, prefix []byte, visit func(key, value []byte)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrClosed
	}

	start, end := store.PrefixRange(prefix)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: start,
		UpperBound: end,
	})
	if err != nil {
		return fmt.Errorf("create iterator: %w", err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		value, err := iter.ValueAndErr()
		if err != nil {
			return fmt.Errorf("read iterator value: %w", err)
		}
		visit(iter.Key(), value)
	}
	return iter.Error()
}

func (s *Store) WriteBatch(ctx context.Context, batch *store.Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	// An indexed batch lets an unbounded prefix delete observe keys
	// written earlier in the same batch.
	b := s.db.NewIndexedBatch()
	defer b.Close()

	for _, op := range batch.Operations {
		var err error
		switch op.Kind {
		case store.OpPut:
			err = b.Set(op.Key, op.Value, nil)
		case store.OpDelete:
			err = b.Delete(op.Key, nil)
		case store.OpDeletePrefix:
			err = s.deletePrefix(b, op.Key)
		}
		if err != nil {
			return fmt.Errorf("stage batch operation: %w", err)
		}
	}

	if err := b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

func (s *Store) deletePrefix(b *pebble.Batch, prefix []byte) error {
	start, end := store.PrefixRange(prefix)
	if end != nil {
		return b.DeleteRange(start, end, nil)
	}

	// Unbounded interval: pebble range deletes need an exclusive end, so
	// fall back to point deletes of every matching key.
	iter, err := b.NewIter(&pebble.IterOptions{LowerBound: start})
	if err != nil {
		return fmt.Errorf("create iterator: %w", err)
	}

	var keys [][]byte
	for iter.First(); iter.Valid(); iter.Next() {
		key := make([]byte, len(iter.Key()))
		copy(key, iter.Key())
		keys = append(keys, key)
	}
	if err := iter.Error(); err != nil {
		iter.Close()
		return err
	}
	if err := iter.Close(); err != nil {
		return err
	}

	for _, key := range keys {
		if err := b.Delete(key, nil); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying database. Later operations return ErrClosed;
// double close is a no-op.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	log.Store.Debug().Msg("closing pebble database")
	return s.db.Close()
}
