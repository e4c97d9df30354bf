package hash_test

import (
	"testing"

	"dinohash/pkg/codec"
	"dinohash/pkg/hash"
	"dinohash/pkg/pager"
	"dinohash/test/utils"
)

// setupPager creates a fresh, throwaway pager for bucket/directory unit
// tests that want to exercise a page view without going through a whole
// HashIndex.
func setupPager(t *testing.T) *pager.Pager {
	t.Parallel()
	dbname := utils.GetTempDbFile(t)
	p, err := pager.New(dbname)
	if err != nil {
		t.Fatal("Failed to create a new pager:", err)
	}
	utils.EnsureCleanup(t, func() {
		_ = p.Close()
	})
	return p
}

// newBucket allocates a fresh page and initializes it as an empty
// int64/int64 bucket, returning the bucket view.
func newBucket(t *testing.T) *hash.BucketPage[int64, int64] {
	p := setupPager(t)
	page, err := p.GetNewPage()
	if err != nil {
		t.Fatalf("Failed to allocate a new page: %v", err)
	}
	utils.EnsureCleanup(t, func() {
		_ = p.PutPage(page)
	})
	return hash.InitBucketPage[int64, int64](page, codec.Int64Codec, codec.Int64Codec)
}

func TestBucketInsertGet(t *testing.T) {
	b := newBucket(t)
	if !b.Insert(1, 100, hash.Int64Comparator) {
		t.Fatal("insert of (1, 100) was rejected")
	}
	if !b.Insert(1, 200, hash.Int64Comparator) {
		t.Fatal("insert of (1, 200) was rejected")
	}
	values := b.Get(1, hash.Int64Comparator)
	if len(values) != 2 {
		t.Fatalf("expected 2 values under key 1, got %v", values)
	}
	seen := map[int64]bool{}
	for _, v := range values {
		seen[v] = true
	}
	if !seen[100] || !seen[200] {
		t.Fatalf("expected values {100, 200}, got %v", values)
	}
	if got := b.Get(2, hash.Int64Comparator); len(got) != 0 {
		t.Fatalf("expected no values under unused key 2, got %v", got)
	}
}

func TestBucketDuplicateRejected(t *testing.T) {
	b := newBucket(t)
	if !b.Insert(5, 50, hash.Int64Comparator) {
		t.Fatal("first insert of (5, 50) was rejected")
	}
	if b.Insert(5, 50, hash.Int64Comparator) {
		t.Fatal("duplicate insert of (5, 50) should have been rejected")
	}
	values := b.Get(5, hash.Int64Comparator)
	if len(values) != 1 {
		t.Fatalf("expected exactly one (5,50) entry, got %v", values)
	}
}

func TestBucketRemoveTombstone(t *testing.T) {
	b := newBucket(t)
	b.Insert(7, 70, hash.Int64Comparator)
	if !b.Remove(7, 70, hash.Int64Comparator) {
		t.Fatal("remove of present (7, 70) should have succeeded")
	}
	if got := b.Get(7, hash.Int64Comparator); len(got) != 0 {
		t.Fatalf("expected no live values after remove, got %v", got)
	}
	if b.Remove(7, 70, hash.Int64Comparator) {
		t.Fatal("remove of already-removed (7, 70) should fail")
	}
	if !b.IsEmpty() {
		t.Fatal("bucket should report empty once its only entry is removed")
	}
}

func TestBucketFullAndCompact(t *testing.T) {
	b := newBucket(t)
	for i := 0; i < hash.BUCKET_CAPACITY; i++ {
		if !b.Insert(int64(i), int64(i), hash.Int64Comparator) {
			t.Fatalf("insert %d should have succeeded in an empty bucket", i)
		}
	}
	if !b.IsFull() {
		t.Fatal("bucket should be full after BUCKET_CAPACITY distinct inserts")
	}
	if b.Insert(int64(hash.BUCKET_CAPACITY), 0, hash.Int64Comparator) {
		t.Fatal("insert into a full bucket with no tombstones should fail")
	}

	// Free up a slot via a tombstone; Compact (triggered by Insert's
	// internal full-bucket retry) should reclaim it.
	if !b.Remove(0, 0, hash.Int64Comparator) {
		t.Fatal("remove of (0, 0) should have succeeded")
	}
	if b.IsFull() {
		t.Fatal("bucket should no longer report full after a tombstone")
	}
	if !b.Insert(int64(hash.BUCKET_CAPACITY), 0, hash.Int64Comparator) {
		t.Fatal("insert should succeed once a slot has been freed")
	}
	if b.NumReadable() != hash.BUCKET_CAPACITY {
		t.Fatalf("expected %d readable entries, got %d", hash.BUCKET_CAPACITY, b.NumReadable())
	}

	entries := b.Entries()
	if len(entries) != hash.BUCKET_CAPACITY {
		t.Fatalf("expected Entries() to return %d live pairs, got %d", hash.BUCKET_CAPACITY, len(entries))
	}
}
