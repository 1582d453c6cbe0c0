// Package store defines the raw key-value contract shared by every physical
// backend, the write-batching model views stage their mutations through, and
// the prefix-interval arithmetic both rely on. Keys are arbitrary byte
// strings ordered bytewise; prefix scans over that order are the only query
// primitive a backend must provide.
package store

import (
	"context"
	"fmt"

	"github.com/eigerco/viewstore/pkg/serialization/codec/binary"
)

// KeyValue pairs a full stored key with its value.
type KeyValue struct {
	Key   []byte
	Value []byte
}

// Store is the contract a physical key-value backend must satisfy. All
// methods may suspend awaiting backend I/O and honor cancellation through
// ctx. A Store handle must be safe for concurrent use; batches themselves
// are single-writer.
type Store interface {
	// ReadKeyBytes returns the value stored at key, or nil if the key is
	// absent.
	ReadKeyBytes(ctx context.Context, key []byte) ([]byte, error)

	// FindKeysByPrefix returns every stored key having prefix as a prefix,
	// in ascending bytewise order. Returned keys are full keys, prefix
	// included.
	FindKeysByPrefix(ctx context.Context, prefix []byte) ([][]byte, error)

	// FindKeyValuesByPrefix returns every stored key-value pair whose key
	// has prefix as a prefix, in ascending key order.
	FindKeyValuesByPrefix(ctx context.Context, prefix []byte) ([]KeyValue, error)

	// WriteBatch atomically applies the batch: concurrent readers observe
	// either all of its effects or none. Operations are applied in append
	// order, so simplified and unsimplified batches are both valid input.
	WriteBatch(ctx context.Context, batch *Batch) error
}

// ReadKey reads the value stored at key and decodes it with the
// deterministic binary codec. A nil pointer is returned when the key is
// absent; bytes that exist but fail to decode as V are an error.
func ReadKey[V any](ctx context.Context, s Store, key []byte) (*V, error) {
	raw, err := s.ReadKeyBytes(ctx, key)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	value := new(V)
	if err := binary.Unmarshal(raw, value); err != nil {
		return nil, fmt.Errorf("decode value at key %x: %w", key, err)
	}
	return value, nil
}
