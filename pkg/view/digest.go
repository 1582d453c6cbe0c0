package view

import (
	"context"
	"encoding/hex"

	"golang.org/x/crypto/blake2b"

	"github.com/eigerco/viewstore/pkg/log"
	"github.com/eigerco/viewstore/pkg/serialization/codec/binary"
)

// DigestSize is the byte length of a subtree digest.
const DigestSize = 32

// Digest is a blake2b-256 digest of a key subtree's contents.
type Digest [DigestSize]byte

func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// SubtreeDigest hashes every key-value pair stored under prefix, in
// ascending key order. Keys and values are length-prefixed in the hash
// input so adjacent pairs cannot be confused, making the digest a
// deterministic fingerprint of the subtree's exact contents.
func SubtreeDigest(ctx context.Context, c Context, prefix []byte) (Digest, error) {
	hasher, err := blake2b.New256(nil)
	if err != nil {
		return Digest{}, err
	}

	kvs, err := c.FindKeyValuesByPrefix(ctx, prefix)
	if err != nil {
		return Digest{}, err
	}
	for _, kv := range kvs {
		hasher.Write(binary.EncodeUint(uint64(len(kv.Key))))
		hasher.Write(kv.Key)
		hasher.Write(binary.EncodeUint(uint64(len(kv.Value))))
		hasher.Write(kv.Value)
	}

	var digest Digest
	copy(digest[:], hasher.Sum(nil))
	log.View.Debug().Hex("prefix", prefix).Int("pairs", len(kvs)).Msg("computed subtree digest")
	return digest, nil
}
