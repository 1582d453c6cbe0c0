package store

// UpperBound returns the exclusive upper bound of the key interval that
// contains exactly the keys having prefix as a prefix: a key k starts with
// prefix iff prefix <= k < UpperBound(prefix) in bytewise order. A nil result
// means the interval is unbounded above, which happens when the prefix is
// empty or every byte of it is 0xFF.
func UpperBound(prefix []byte) []byte {
	for i := len(prefix) - 1; i >= 0; i-- {
		if prefix[i] < 0xFF {
			upper := make([]byte, i+1)
			copy(upper, prefix[:i+1])
			upper[i]++
			return upper
		}
	}
	return nil
}

// PrefixRange returns the half-open interval [start, end) covering every key
// under prefix. end is nil when the interval is unbounded above. The bounds
// follow the iterator convention of pebble and goleveldb: inclusive lower
// bound, exclusive upper bound, nil upper bound meaning no limit.
func PrefixRange(prefix []byte) (start, end []byte) {
	return prefix, UpperBound(prefix)
}
