// Package bolt adapts go.etcd.io/bbolt to the store.Store contract. Every
// batch write runs inside one bbolt write transaction, which provides the
// required atomicity.
package bolt

import (
	"bytes"
	"context"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/eigerco/viewstore/pkg/log"
	"github.com/eigerco/viewstore/pkg/store"
)

var defaultBucket = []byte("viewstore")

// Store is a bbolt-backed store.Store. All keys live in a single bucket.
type Store struct {
	db *bbolt.DB
}

var _ store.Store = (*Store)(nil)

// Open opens or creates a bbolt database at path.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open bolt database: %w", err)
	}

	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(defaultBucket)
		return err
	}); err != nil {
		return nil, fmt.Errorf("create bucket: %w", err)
	}
	log.Store.Debug().Str("path", path).Msg("opened bolt database")
	return &Store{db: db}, nil
}

func (s *Store) ReadKeyBytes(ctx context.Context, key []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		value := tx.Bucket(defaultBucket).Get(key)
		if value == nil {
			return nil
		}
		// The slice is only valid inside the transaction.
		out = make([]byte, len(value))
		copy(out, value)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read key %x: %w", key, err)
	}
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

	return s.db.View(func(tx *bbolt.Tx) error {
		cursor := tx.Bucket(defaultBucket).Cursor()
		for k, v := cursor.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = cursor.Next() {
			visit(k, v)
		}
		return nil
	})
}

func (s *Store) WriteBatch(ctx context.Context, batch *store.Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(defaultBucket)
		for _, op := range batch.Operations {
			switch op.Kind {
			case store.OpPut:
				if err := bucket.Put(op.Key, op.Value); err != nil {
					return err
				}
			case store.OpDelete:
				if err := bucket.Delete(op.Key); err != nil {
					return err
				}
			case store.OpDeletePrefix:
				if err := deletePrefix(bucket, op.Key); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("write batch: %w", err)
	}
	return nil
}

func deletePrefix(bucket *bbolt.Bucket, prefix []byte) error {
	// Collect first: deleting while a cursor walks the bucket is fragile.
	var keys [][]byte
	cursor := bucket.Cursor()
	for k, _ := cursor.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = cursor.Next() {
		key := make([]byte, len(k))
		copy(key, k)
		keys = append(keys, key)
	}

	for _, key := range keys {
		if err := bucket.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	log.Store.Debug().Msg("closing bolt database")
	return s.db.Close()
}
