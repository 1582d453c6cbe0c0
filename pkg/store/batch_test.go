package store

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func opsOf(b *Batch) []WriteOperation {
	return b.Operations
}

func TestBatchAppendOrder(t *testing.T) {
	batch := NewBatch()
	batch.PutBytes([]byte{1}, []byte("a"))
	batch.Delete([]byte{2})
	batch.DeletePrefix([]byte{3})

	require.Equal(t, 3, batch.Len())
	assert.Equal(t, OpPut, batch.Operations[0].Kind)
	assert.Equal(t, OpDelete, batch.Operations[1].Kind)
	assert.Equal(t, OpDeletePrefix, batch.Operations[2].Kind)
}

func TestBatchPutEncodesValue(t *testing.T) {
	batch := NewBatch()
	err := batch.Put([]byte{1}, uint32(0x01020304))
	require.NoError(t, err)

	require.Equal(t, 1, batch.Len())
	assert.Equal(t, []byte{4, 3, 2, 1}, batch.Operations[0].Value)
}

func TestBuild(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		batch, err := Build(func(b *Batch) error {
			b.PutBytes([]byte{1}, []byte("a"))
			b.Delete([]byte{2})
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 2, batch.Len())
	})

	t.Run("failure_discards_partial_batch", func(t *testing.T) {
		buildErr := errors.New("builder failed")
		batch, err := Build(func(b *Batch) error {
			b.PutBytes([]byte{1}, []byte("a"))
			return buildErr
		})
		require.ErrorIs(t, err, buildErr)
		assert.Nil(t, batch)
	})
}

func TestSimplify(t *testing.T) {
	tests := []struct {
		name  string
		build func(b *Batch)
		want  []WriteOperation
	}{
		{
			name: "last_put_wins",
			build: func(b *Batch) {
				b.PutBytes([]byte{1}, []byte("v1"))
				b.PutBytes([]byte{1}, []byte("v2"))
			},
			want: []WriteOperation{
				{Kind: OpPut, Key: []byte{1}, Value: []byte("v2")},
			},
		},
		{
			name: "delete_overrides_put",
			build: func(b *Batch) {
				b.PutBytes([]byte{1}, []byte("v1"))
				b.Delete([]byte{1})
			},
			want: []WriteOperation{
				{Kind: OpDelete, Key: []byte{1}},
			},
		},
		{
			name: "prefix_absorbs_earlier_put",
			build: func(b *Batch) {
				b.PutBytes([]byte{1, 2}, []byte("v"))
				b.DeletePrefix([]byte{1})
			},
			want: []WriteOperation{
				{Kind: OpDeletePrefix, Key: []byte{1}},
			},
		},
		{
			name: "later_put_survives_prefix",
			build: func(b *Batch) {
				b.DeletePrefix([]byte{1})
				b.PutBytes([]byte{1, 2}, []byte("v"))
			},
			want: []WriteOperation{
				{Kind: OpDeletePrefix, Key: []byte{1}},
				{Kind: OpPut, Key: []byte{1, 2}, Value: []byte("v")},
			},
		},
		{
			name: "wider_prefix_absorbs_narrower",
			build: func(b *Batch) {
				b.DeletePrefix([]byte{1, 2})
				b.DeletePrefix([]byte{1})
			},
			want: []WriteOperation{
				{Kind: OpDeletePrefix, Key: []byte{1}},
			},
		},
		{
			name: "narrower_prefix_after_wider_survives",
			build: func(b *Batch) {
				b.DeletePrefix([]byte{1})
				b.DeletePrefix([]byte{1, 2})
			},
			want: []WriteOperation{
				{Kind: OpDeletePrefix, Key: []byte{1}},
				{Kind: OpDeletePrefix, Key: []byte{1, 2}},
			},
		},
		{
			name: "incomparable_prefixes_both_survive",
			build: func(b *Batch) {
				b.DeletePrefix([]byte{1, 2})
				b.DeletePrefix([]byte{1, 3})
			},
			want: []WriteOperation{
				{Kind: OpDeletePrefix, Key: []byte{1, 2}},
				{Kind: OpDeletePrefix, Key: []byte{1, 3}},
			},
		},
		{
			name: "three_way_overlap_with_interleaved_writes",
			build: func(b *Batch) {
				b.PutBytes([]byte{1, 2, 9}, []byte("a"))
				b.DeletePrefix([]byte{1, 2})
				b.PutBytes([]byte{1, 3, 9}, []byte("b"))
				b.DeletePrefix([]byte{1, 3})
				b.PutBytes([]byte{1, 2, 7}, []byte("c"))
				b.DeletePrefix([]byte{1})
				b.PutBytes([]byte{1, 4}, []byte("d"))
			},
			want: []WriteOperation{
				{Kind: OpDeletePrefix, Key: []byte{1}},
				{Kind: OpPut, Key: []byte{1, 4}, Value: []byte("d")},
			},
		},
		{
			name: "emission_groups_and_sorts",
			build: func(b *Batch) {
				b.PutBytes([]byte{9}, []byte("z"))
				b.DeletePrefix([]byte{5})
				b.Delete([]byte{0})
				b.DeletePrefix([]byte{2})
				b.PutBytes([]byte{5, 1}, []byte("y"))
			},
			want: []WriteOperation{
				{Kind: OpDeletePrefix, Key: []byte{2}},
				{Kind: OpDeletePrefix, Key: []byte{5}},
				{Kind: OpDelete, Key: []byte{0}},
				{Kind: OpPut, Key: []byte{5, 1}, Value: []byte("y")},
				{Kind: OpPut, Key: []byte{9}, Value: []byte("z")},
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			batch := NewBatch()
			tc.build(batch)

			simplified := batch.Simplify()
			assert.Equal(t, tc.want, opsOf(simplified))

			// A second pass must not change anything.
			assert.Equal(t, tc.want, opsOf(simplified.Simplify()))
		})
	}
}

func TestSimplifyOrdersPrefixesFirst(t *testing.T) {
	batch := NewBatch()
	batch.PutBytes([]byte{1}, []byte("a"))
	batch.DeletePrefix([]byte{4})
	batch.PutBytes([]byte{4, 4}, []byte("b"))
	batch.Delete([]byte{7})
	batch.DeletePrefix([]byte{9})

	simplified := batch.Simplify()

	sawPoint := false
	for _, op := range simplified.Operations {
		if op.Kind == OpDeletePrefix {
			require.False(t, sawPoint, "prefix delete emitted after a point operation")
		} else {
			sawPoint = true
		}
	}
}

func TestSimplifyLeavesReceiverIntact(t *testing.T) {
	batch := NewBatch()
	batch.PutBytes([]byte{1}, []byte("a"))
	batch.PutBytes([]byte{1}, []byte("b"))

	_ = batch.Simplify()
	assert.Equal(t, 2, batch.Len())
}
