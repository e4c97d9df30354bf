package concurrency_test

import (
	"testing"
	"time"

	"dinohash/pkg/codec"
	"dinohash/pkg/hash"
	"dinohash/test/utils"
)

var BUFFER_SIZE int = 1024
var DELAY_TIME = 10 * time.Millisecond

// setupIndex creates and opens a fresh hash index, naming it the way
// concurrency.TransactionManager expects of anything it locks (see
// hash.HashIndex.GetName, which satisfies concurrency.Nameable).
func setupIndex(t *testing.T) *hash.HashIndex[int64, int64] {
	t.Parallel()
	dbName := utils.GetTempDbFile(t)
	index, err := hash.OpenIndex(dbName, codec.Int64Codec, codec.Int64Codec, hash.Int64Comparator, hash.XxHasher)
	if err != nil {
		t.Fatalf("Failed to create hash index: %q", err)
	}
	utils.EnsureCleanup(t, func() {
		_ = index.Close()
	})
	return index
}
