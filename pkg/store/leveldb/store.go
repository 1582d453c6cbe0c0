// Package leveldb adapts syndtr/goleveldb to the store.Store contract.
// goleveldb has no native range deletes, so prefix deletes are expanded to
// point deletes against a snapshot before the batch is written atomically.
package leveldb

import (
	"context"
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/eigerco/viewstore/pkg/log"
	"github.com/eigerco/viewstore/pkg/store"
)

var (
	writeOpt = opt.WriteOptions{Sync: true}
	readOpt  = opt.ReadOptions{}
	scanOpt  = opt.ReadOptions{DontFillCache: true}
)

// Store is a goleveldb-backed store.Store.
type Store struct {
	db *leveldb.DB
}

var _ store.Store = (*Store)(nil)

// Open opens or creates a leveldb database at path.
func Open(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb database: %w", err)
	}
	log.Store.Debug().Str("path", path).Msg("opened leveldb database")
	return &Store{db: db}, nil
}

// OpenMemory opens a leveldb database over in-memory storage, for tests.
func OpenMemory() (*Store, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("open in-memory leveldb database: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) ReadKeyBytes(ctx context.Context, key []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	value, err := s.db.Get(key, &readOpt)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read key %x: %w", key, err)
	}
	return value, nil
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

	start, end := store.PrefixRange(prefix)
	iter := s.db.NewIterator(&util.Range{Start: start, Limit: end}, &scanOpt)
	defer iter.Release()

	for iter.Next() {
		visit(iter.Key(), iter.Value())
	}
	return iter.Error()
}

// WriteBatch stages the whole batch into one leveldb batch and writes it in
// a single call, which goleveldb applies atomically. Prefix deletes are
// expanded in append order so later point writes under a deleted prefix
// still take effect.
func (s *Store) WriteBatch(ctx context.Context, batch *store.Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b := new(leveldb.Batch)
	// Tracks the net keys of this batch so prefix deletes also cover keys
	// written earlier in the same batch but not yet visible in the store.
	staged := make(map[string]bool)

	snapshot, err := s.db.GetSnapshot()
	if err != nil {
		return fmt.Errorf("acquire snapshot: %w", err)
	}
	defer snapshot.Release()

	for _, op := range batch.Operations {
		switch op.Kind {
		case store.OpPut:
			b.Put(op.Key, op.Value)
			staged[string(op.Key)] = true
		case store.OpDelete:
			b.Delete(op.Key)
			staged[string(op.Key)] = false
		case store.OpDeletePrefix:
			if err := expandPrefixDelete(snapshot, b, staged, op.Key); err != nil {
				return err
			}
		}
	}

	if err := s.db.Write(b, &writeOpt); err != nil {
		return fmt.Errorf("write batch: %w", err)
	}
	return nil
}

func expandPrefixDelete(snapshot *leveldb.Snapshot, b *leveldb.Batch, staged map[string]bool, prefix []byte) error {
	start, end := store.PrefixRange(prefix)
	iter := snapshot.NewIterator(&util.Range{Start: start, Limit: end}, &scanOpt)
	defer iter.Release()

	for iter.Next() {
		key := make([]byte, len(iter.Key()))
		copy(key, iter.Key())
		b.Delete(key)
		staged[string(key)] = false
	}
	if err := iter.Error(); err != nil {
		return fmt.Errorf("expand prefix delete %x: %w", prefix, err)
	}

	// Keys introduced by earlier operations of this same batch.
	for key, live := range staged {
		if live && len(key) >= len(prefix) && key[:len(prefix)] == string(prefix) {
			b.Delete([]byte(key))
			staged[key] = false
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	log.Store.Debug().Msg("closing leveldb database")
	return s.db.Close()
}
