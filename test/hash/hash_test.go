package hash_test

import (
	"context"
	"strings"
	"testing"

	"dinohash/pkg/codec"
	"dinohash/pkg/hash"
	"dinohash/test/utils"

	"golang.org/x/sync/errgroup"
)

// setupHash opens a fresh int64/int64 hash index backed by a temp file.
func setupHash(t *testing.T) *hash.HashIndex[int64, int64] {
	t.Parallel()
	dbName := utils.GetTempDbFile(t)
	index, err := hash.OpenIndex(dbName, codec.Int64Codec, codec.Int64Codec, hash.Int64Comparator, hash.XxHasher)
	if err != nil {
		t.Fatalf("Failed to open hash index: %v", err)
	}
	return index
}

// encodeKey mirrors what HashTable does internally to hash a key, letting
// tests reason about which directory slot a key will land in.
func encodeKey(key int64) []byte {
	buf := make([]byte, codec.Int64Codec.Size)
	codec.Int64Codec.Encode(key, buf)
	return buf
}

// findKeysForResidue returns count distinct int64 keys whose XxHasher
// value agrees with value on every bit in mask, starting the search from
// start. Keys sharing a residue over the full directory mask can never be
// separated by any amount of splitting, since every split only looks at
// one more bit of the same hash.
func findKeysForResidue(mask int64, value int64, count int, start int64) []int64 {
	keys := make([]int64, 0, count)
	for k := start; len(keys) < count; k++ {
		h := int64(hash.XxHasher(encodeKey(k)))
		if h&mask == value&mask {
			keys = append(keys, k)
		}
	}
	return keys
}

// S1: a fresh index starts at global depth 0 and returns inserted values.
func TestScenarioBasicInsertGet(t *testing.T) {
	index := setupHash(t)
	t.Cleanup(func() { _ = index.Close() })

	if index.GlobalDepth() != 0 {
		t.Fatalf("expected a fresh index to start at global depth 0, got %d", index.GlobalDepth())
	}

	ok, err := index.Insert(nil, 42, 100)
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if !ok {
		t.Fatal("insert of (42, 100) was rejected")
	}

	values, err := index.Get(nil, 42)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if len(values) != 1 || values[0] != 100 {
		t.Fatalf("expected [100] under key 42, got %v", values)
	}

	if _, err := index.Get(nil, 99); err != nil {
		t.Fatalf("get of missing key should not error: %v", err)
	}

	if err := index.VerifyIntegrity(); err != nil {
		t.Fatalf("fresh index failed integrity check: %v", err)
	}
}

// TestPrintShowsInsertedEntries checks that Print's dump of the
// directory and bucket contents mentions an inserted entry.
func TestPrintShowsInsertedEntries(t *testing.T) {
	index := setupHash(t)
	t.Cleanup(func() { _ = index.Close() })

	utils.InsertEntry(t, index, 42, 100)

	var sb strings.Builder
	index.Print(&sb)
	out := sb.String()
	if !strings.Contains(out, "global depth") {
		t.Fatalf("expected Print output to mention global depth, got %q", out)
	}
	if !strings.Contains(out, "(42, 100)") {
		t.Fatalf("expected Print output to include the inserted (42, 100) entry, got %q", out)
	}
}

// S2: a key may hold several distinct values at once, and re-inserting an
// identical (key,value) pair is rejected rather than duplicated.
func TestScenarioDuplicateKeys(t *testing.T) {
	index := setupHash(t)
	t.Cleanup(func() { _ = index.Close() })

	utils.InsertEntry(t, index, 7, 1)
	utils.InsertEntry(t, index, 7, 2)
	utils.InsertEntry(t, index, 7, 3)

	ok, err := index.Insert(nil, 7, 2)
	if err != nil {
		t.Fatalf("re-insert failed: %v", err)
	}
	if ok {
		t.Fatal("re-insert of an existing (key, value) pair should be rejected")
	}

	values, err := index.Get(nil, 7)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if len(values) != 3 {
		t.Fatalf("expected 3 distinct values under key 7, got %v", values)
	}
	utils.CheckFindEntry(t, index, 7, 1)
	utils.CheckFindEntry(t, index, 7, 2)
	utils.CheckFindEntry(t, index, 7, 3)
}

// S3: removing one value under a key leaves its siblings intact, and
// removing an absent (key,value) pair is reported, not silently ignored.
func TestScenarioRemoveSymmetry(t *testing.T) {
	index := setupHash(t)
	t.Cleanup(func() { _ = index.Close() })

	utils.InsertEntry(t, index, 11, 1)
	utils.InsertEntry(t, index, 11, 2)

	removed, err := index.Remove(nil, 11, 1)
	if err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if !removed {
		t.Fatal("remove of present (11, 1) should have succeeded")
	}

	removed, err = index.Remove(nil, 11, 99)
	if err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if removed {
		t.Fatal("remove of absent (11, 99) should report false")
	}

	utils.CheckFindEntry(t, index, 11, 2)
	values, err := index.Get(nil, 11)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if len(values) != 1 {
		t.Fatalf("expected only the surviving value under key 11, got %v", values)
	}

	if err := index.VerifyIntegrity(); err != nil {
		t.Fatalf("integrity check failed: %v", err)
	}
}

// S4: forcing a bucket to split by filling it past capacity, then
// removing every entry back out, should fold the split back together and
// shrink the directory to its minimal global depth.
func TestScenarioSplitMergeShrink(t *testing.T) {
	index := setupHash(t)
	t.Cleanup(func() { _ = index.Close() })

	// Every key here shares hash bit 0 == 0, so they all route to the
	// same half of the directory regardless of how many times it grows;
	// filling past BUCKET_CAPACITY forces exactly one split of that half.
	const mask = int64(1)
	keys := findKeysForResidue(mask, 0, hash.BUCKET_CAPACITY+1, 0)

	for i, k := range keys {
		utils.InsertEntry(t, index, k, int64(i))
	}
	if index.GlobalDepth() == 0 {
		t.Fatal("expected a split to have grown the directory past global depth 0")
	}
	if err := index.VerifyIntegrity(); err != nil {
		t.Fatalf("integrity check failed after split: %v", err)
	}

	for i, k := range keys {
		removed, err := index.Remove(nil, k, int64(i))
		if err != nil {
			t.Fatalf("remove of (%d, %d) failed: %v", k, i, err)
		}
		if !removed {
			t.Fatalf("remove of (%d, %d) should have succeeded", k, i)
		}
	}

	if index.GlobalDepth() != 0 {
		t.Fatalf("expected directory to shrink back to global depth 0 once empty, got %d", index.GlobalDepth())
	}
	if err := index.VerifyIntegrity(); err != nil {
		t.Fatalf("integrity check failed after merge/shrink: %v", err)
	}
}

// S5: keys that agree on every bit the directory can ever address drive
// the table to DIRECTORY_CAPACITY and then are rejected outright, rather
// than looping or corrupting the structure.
func TestScenarioDirectoryExhaustion(t *testing.T) {
	index := setupHash(t)
	t.Cleanup(func() { _ = index.Close() })

	mask := int64(hash.DIRECTORY_CAPACITY - 1)
	// Fill one bucket to exactly capacity: these all succeed without
	// forcing any split, since the bucket isn't full until the last one.
	fillKeys := findKeysForResidue(mask, 0, hash.BUCKET_CAPACITY, 0)
	for i, k := range fillKeys {
		utils.InsertEntry(t, index, k, int64(i))
	}

	// One more key with the same full-mask residue can never land beside
	// the others: every split looks at one more low bit, and these keys
	// agree on all of them, so the directory is driven all the way to
	// DIRECTORY_CAPACITY and the insert is still rejected, not errored.
	overflow := findKeysForResidue(mask, 0, 1, fillKeys[len(fillKeys)-1]+1)
	ok, err := index.Insert(nil, overflow[0], 999)
	if err != nil {
		t.Fatalf("insert should fail cleanly, not error: %v", err)
	}
	if ok {
		t.Fatal("expected insert to be rejected once the directory can no longer grow")
	}
	if index.GlobalDepth() != 8 {
		t.Fatalf("expected colliding keys to drive global depth to 8 (log2 DIRECTORY_CAPACITY), got %d", index.GlobalDepth())
	}

	if err := index.VerifyIntegrity(); err != nil {
		t.Fatalf("integrity check failed at directory capacity: %v", err)
	}
}

// S6: concurrent readers and a writer operating on disjoint keys leave
// the index internally consistent.
func TestScenarioConcurrentReadersWriter(t *testing.T) {
	index := setupHash(t)
	t.Cleanup(func() { _ = index.Close() })

	const numKeys = 500
	for i := int64(0); i < numKeys/2; i++ {
		utils.InsertEntry(t, index, i, i*10)
	}

	g, _ := errgroup.WithContext(context.Background())

	for r := 0; r < 8; r++ {
		g.Go(func() error {
			for i := int64(0); i < numKeys/2; i++ {
				if _, err := index.Get(nil, i); err != nil {
					return err
				}
			}
			return nil
		})
	}

	g.Go(func() error {
		for i := int64(numKeys / 2); i < numKeys; i++ {
			if _, err := index.Insert(nil, i, i*10); err != nil {
				return err
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent readers/writer reported an error: %v", err)
	}

	for i := int64(0); i < numKeys; i++ {
		utils.CheckFindEntry(t, index, i, i*10)
	}
	if err := index.VerifyIntegrity(); err != nil {
		t.Fatalf("integrity check failed after concurrent access: %v", err)
	}
}

// closeAndReopen closes index and reopens the same backing file,
// exercising ReadHashTable's reconstruction of an existing directory.
func closeAndReopen(t *testing.T, index *hash.HashIndex[int64, int64], filename string) *hash.HashIndex[int64, int64] {
	if err := index.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	reopened, err := hash.OpenIndex(filename, codec.Int64Codec, codec.Int64Codec, hash.Int64Comparator, hash.XxHasher)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	return reopened
}

func TestCloseAndReopenPersists(t *testing.T) {
	t.Parallel()
	dbName := utils.GetTempDbFile(t)
	index, err := hash.OpenIndex(dbName, codec.Int64Codec, codec.Int64Codec, hash.Int64Comparator, hash.XxHasher)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}

	utils.InsertEntry(t, index, 5, 50)
	utils.InsertEntry(t, index, 6, 60)

	index = closeAndReopen(t, index, dbName)
	t.Cleanup(func() { _ = index.Close() })

	utils.CheckFindEntry(t, index, 5, 50)
	utils.CheckFindEntry(t, index, 6, 60)
	if err := index.VerifyIntegrity(); err != nil {
		t.Fatalf("integrity check failed after reopen: %v", err)
	}
}

// TestLargeRandomRoundTrip exercises round-trip at scale: 1000 random
// keys with random values, each inserted once, survive a close/reopen
// and are all still retrievable afterward.
func TestLargeRandomRoundTrip(t *testing.T) {
	t.Parallel()
	dbName := utils.GetTempDbFile(t)
	index, err := hash.OpenIndex(dbName, codec.Int64Codec, codec.Int64Codec, hash.Int64Comparator, hash.XxHasher)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}

	entries, answerKey := utils.GenerateRandomKeyValuePairs(1000)
	for _, entry := range entries {
		utils.InsertEntry(t, index, entry.Key, entry.Val)
	}
	if t.Failed() {
		t.FailNow()
	}

	index = closeAndReopen(t, index, dbName)
	t.Cleanup(func() { _ = index.Close() })

	for k, v := range answerKey {
		utils.CheckFindEntry(t, index, k, v)
	}
	if err := index.VerifyIntegrity(); err != nil {
		t.Fatalf("integrity check failed after large random round trip: %v", err)
	}
}
