package store

import (
	"fmt"
	"sort"
	"strings"

	"github.com/eigerco/viewstore/pkg/serialization/codec/binary"
)

// OpKind discriminates the pending mutation kinds a Batch can hold.
type OpKind uint8

const (
	OpDelete OpKind = iota
	OpDeletePrefix
	OpPut
)

// WriteOperation is a single pending mutation. Key holds the target key, or
// the key prefix for OpDeletePrefix. Value is set for OpPut only. Operations
// are built through Batch appenders and not modified afterwards.
type WriteOperation struct {
	Kind  OpKind
	Key   []byte
	Value []byte
}

// Batch is an ordered list of pending mutations applied together, atomically,
// by a Store. Operations take effect in append order: each operation's effect
// is computed against the state produced by all prior operations in the same
// batch. A batch is built by a single writer and consumed by one WriteBatch
// call; it is not safe for concurrent mutation.
type Batch struct {
	Operations []WriteOperation
}

// NewBatch returns an empty batch.
func NewBatch() *Batch {
	return &Batch{}
}

// Build runs fn against a fresh batch and returns the built batch. If fn
// fails the partial batch is discarded and only the error is returned.
func Build(fn func(*Batch) error) (*Batch, error) {
	batch := NewBatch()
	if err := fn(batch); err != nil {
		return nil, err
	}
	return batch, nil
}

// PutBytes appends a write of raw value bytes at key.
func (b *Batch) PutBytes(key, value []byte) {
	b.Operations = append(b.Operations, WriteOperation{Kind: OpPut, Key: key, Value: value})
}

// Put encodes value with the deterministic binary codec and appends a write
// of the encoding at key.
func (b *Batch) Put(key []byte, value any) error {
	encoded, err := binary.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode value for key %x: %w", key, err)
	}
	b.PutBytes(key, encoded)
	return nil
}

// Delete appends a point delete of key.
func (b *Batch) Delete(key []byte) {
	b.Operations = append(b.Operations, WriteOperation{Kind: OpDelete, Key: key})
}

// DeletePrefix appends a delete of every key under prefix.
func (b *Batch) DeletePrefix(prefix []byte) {
	b.Operations = append(b.Operations, WriteOperation{Kind: OpDeletePrefix, Key: prefix})
}

// Len returns the number of pending operations.
func (b *Batch) Len() int {
	return len(b.Operations)
}

// pendingEffect is the surviving outcome for one exact key while simplifying.
type pendingEffect struct {
	put   bool
	value []byte
}

// Simplify reduces the batch to a canonical form with the same observable
// effect on any store state, suitable for backends that cannot tolerate
// duplicate keys in one atomic write:
//
//   - at most one operation survives per exact key, the last one appended;
//   - a prefix delete absorbs every earlier point operation under it and
//     every earlier prefix delete contained in it, while point operations
//     appended after it survive as more specific overrides;
//   - the result lists all prefix deletes first, then all point operations,
//     each group sorted by key, so surviving point operations under a
//     surviving prefix delete are applied after it.
//
// Simplify is idempotent and does not touch the receiver.
func (b *Batch) Simplify() *Batch {
	pending := make(map[string]pendingEffect)
	prefixes := make(map[string]struct{})

	for _, op := range b.Operations {
		switch op.Kind {
		case OpPut:
			pending[string(op.Key)] = pendingEffect{put: true, value: op.Value}
		case OpDelete:
			pending[string(op.Key)] = pendingEffect{}
		case OpDeletePrefix:
			prefix := string(op.Key)
			for key := range pending {
				if strings.HasPrefix(key, prefix) {
					delete(pending, key)
				}
			}
			for earlier := range prefixes {
				if strings.HasPrefix(earlier, prefix) {
					delete(prefixes, earlier)
				}
			}
			prefixes[prefix] = struct{}{}
		}
	}

	simplified := &Batch{
		Operations: make([]WriteOperation, 0, len(prefixes)+len(pending)),
	}

	sortedPrefixes := make([]string, 0, len(prefixes))
	for prefix := range prefixes {
		sortedPrefixes = append(sortedPrefixes, prefix)
	}
	sort.Strings(sortedPrefixes)
	for _, prefix := range sortedPrefixes {
		simplified.Operations = append(simplified.Operations, WriteOperation{
			Kind: OpDeletePrefix,
			Key:  []byte(prefix),
		})
	}

	sortedKeys := make([]string, 0, len(pending))
	for key := range pending {
		sortedKeys = append(sortedKeys, key)
	}
	sort.Strings(sortedKeys)
	for _, key := range sortedKeys {
		effect := pending[key]
		if effect.put {
			simplified.Operations = append(simplified.Operations, WriteOperation{
				Kind:  OpPut,
				Key:   []byte(key),
				Value: effect.value,
			})
		} else {
			simplified.Operations = append(simplified.Operations, WriteOperation{
				Kind: OpDelete,
				Key:  []byte(key),
			})
		}
	}

	return simplified
}
