package utils

import (
	"math/rand"
	"os"
	"testing"

	"dinohash/pkg/hash"
)

// Mod vals by this value to prevent hardcoding tests
// + 1 is necessary because rand.Int63n(_) can return 0
var Salt int64 = rand.Int63n(1000) + 1

// EnsureCleanup registers fn to run once the test (and its subtests)
// finish, regardless of whether the test passed or failed.
func EnsureCleanup(t *testing.T, fn func()) {
	t.Cleanup(fn)
}

// GetTempDbFile creates a random file in the OS's temporary directory to be used for testing,
// returning the file's name. Once the test is done running, the file is deleted
func GetTempDbFile(t *testing.T) string {
	// file will be created in OS's default temporary directory
	tmpfile, err := os.CreateTemp("", "*.db")
	if err != nil {
		t.Fatal(err)
	}

	// Since os.CreateTemp automatically opens the file, we need to close it
	_ = tmpfile.Close()

	EnsureCleanup(t, func() {
		_ = os.Remove(tmpfile.Name())
	})
	return tmpfile.Name()
}

// InsertEntry tries to insert (key, val) into the given index, erroring
// the test if the operation was rejected.
func InsertEntry(t *testing.T, index *hash.HashIndex[int64, int64], key, val int64) {
	ok, err := index.Insert(nil, key, val)
	if err != nil {
		t.Errorf("Failed to insert (%d, %d) into the index: %s", key, val, err)
		return
	}
	if !ok {
		t.Errorf("Insert of (%d, %d) was rejected", key, val)
	}
}

// CheckFindEntry verifies that expectedVal is among the values stored
// under key, erroring the test if the entry isn't found.
func CheckFindEntry(t *testing.T, index *hash.HashIndex[int64, int64], key, expectedVal int64) {
	values, err := index.Get(nil, key)
	if err != nil {
		t.Errorf("Failed to get key %d: %s", key, err)
		return
	}
	for _, v := range values {
		if v == expectedVal {
			return
		}
	}
	t.Errorf("Expected to find value %d under key %d, but got %v", expectedVal, key, values)
}
