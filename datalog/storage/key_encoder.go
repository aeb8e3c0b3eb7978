package storage

import (
	"fmt"

	"github.com/wbrown/janus-reactive/datalog"
)

// Key layout shared by the ordered key-value backends (Badger, Pebble):
//
//	[index byte][value][value][value]
//
// Values use datalog's order-preserving encoding, so byte order within one
// index prefix equals the comparator's tuple order, and the encoding of a
// leading subset of columns is a byte prefix of every matching key.

// EncodeKey creates the index key of a fact.
func EncodeKey(idx IndexType, f datalog.Fact) []byte {
	t := idx.Permute(f)
	key := make([]byte, 1, 32)
	key[0] = byte(idx)
	for _, v := range t {
		key = datalog.AppendValue(key, v)
	}
	return key
}

// DecodeKey extracts the fact from an index key.
func DecodeKey(key []byte) (IndexType, datalog.Fact, error) {
	if len(key) < 1 {
		return 0, datalog.Fact{}, fmt.Errorf("key too short")
	}
	idx := IndexType(key[0])
	if idx >= numIndexes {
		return 0, datalog.Fact{}, fmt.Errorf("unknown index type: %d", key[0])
	}
	values, err := datalog.DecodeValues(key[1:], 3)
	if err != nil {
		return 0, datalog.Fact{}, fmt.Errorf("decode %s key: %w", idx, err)
	}
	return idx, idx.Unpermute(values), nil
}

// EncodePrefix creates a prefix key for range scans
func EncodePrefix(idx IndexType, prefix ...datalog.Value) []byte {
	key := []byte{byte(idx)}
	for _, v := range prefix {
		key = datalog.AppendValue(key, v)
	}
	return key
}

// EncodePrefixRange creates start and end keys for a prefix scan
func EncodePrefixRange(idx IndexType, prefix ...datalog.Value) (start, end []byte) {
	start = EncodePrefix(idx, prefix...)
	return start, prefixEnd(start)
}

// prefixEnd returns the smallest key greater than every key with the given
// prefix.
func prefixEnd(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xFF {
			end[i]++
			return end[:i+1]
		}
	}
	// All bytes are 0xFF: no upper bound
	return nil
}
