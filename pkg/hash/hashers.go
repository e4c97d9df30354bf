package hash

import (
	"github.com/cespare/xxhash"
	"github.com/spaolacci/murmur3"
)

// Hasher computes an unsigned hash over the raw encoded bytes of a key;
// HashTable masks the low global_depth bits of the result to pick a
// directory slot. Hashes whatever byte form a Codec produces, so it
// works for any key type rather than a hard-coded int64.
type Hasher func(key []byte) uint32

// XxHasher hashes the encoded key with xxHash. This is the default
// hasher for HashIndex[K,V].
func XxHasher(key []byte) uint32 {
	return uint32(xxhash.Sum64(key))
}

// MurmurHasher hashes the encoded key with MurmurHash3, an alternate
// hash family.
func MurmurHasher(key []byte) uint32 {
	return murmur3.Sum32(key)
}

// bucketIndex masks a hash down to the directory's live range.
func bucketIndex(h uint32, mask int64) int64 {
	return int64(h) & mask
}
