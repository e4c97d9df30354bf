package hash

import (
	"errors"
	"io"
	"sync"

	"dinohash/pkg/codec"
	"dinohash/pkg/pager"
)

// errMisroutedEntry is returned by VerifyIntegrity when a bucket holds
// an entry that no longer hashes to the directory slot addressing it.
var errMisroutedEntry = errors.New("hash: entry found in bucket not addressed by its hash")

// errBadBitmap is returned by VerifyIntegrity when a bucket's bitmaps
// have a readable slot that is not occupied, or occupied slots that do
// not form a prefix.
var errBadBitmap = errors.New("hash: bucket occupied/readable bitmaps are inconsistent")

// HashTable is a disk-backed extendible hash index over one (K,V) pair
// type. It owns the directory page id, a hash function, a key
// comparator, and the table-level reader/writer latch; every entry it
// holds lives in a page fetched through its pager, never in the struct
// itself. Parameterized over K and V via Go generics instead of fixing
// both to int64 - see BucketPage for the same move.
type HashTable[K any, V comparable] struct {
	directoryPN int64
	pager       *pager.Pager
	keyCodec    codec.Codec[K]
	valCodec    codec.Codec[V]
	cmp         Comparator[K]
	hasher      Hasher
	rwlock      sync.RWMutex
}

// NewHashTable allocates a fresh directory page and one initial bucket
// page (global_depth=0, local_depth[0]=0). The
// directory is always the pager's first page, so a later ReadHashTable
// on the same pager finds it at page 0 without a side file.
func NewHashTable[K any, V comparable](p *pager.Pager, keyCodec codec.Codec[K], valCodec codec.Codec[V], cmp Comparator[K], hasher Hasher) (*HashTable[K, V], error) {
	dirGuard, err := allocPage(p, noLock)
	if err != nil {
		return nil, err
	}
	directoryPN := dirGuard.Page().GetPageNum()

	bg, err := allocBucket[K, V](p, noLock, keyCodec, valCodec)
	if err != nil {
		dirGuard.Release()
		return nil, err
	}
	bucketPN := bg.guard.Page().GetPageNum()
	bg.Release()

	InitDirectoryPage(dirGuard.Page(), bucketPN)
	dirGuard.Release()

	return &HashTable[K, V]{
		directoryPN: directoryPN,
		pager:       p,
		keyCodec:    keyCodec,
		valCodec:    valCodec,
		cmp:         cmp,
		hasher:      hasher,
	}, nil
}

// ReadHashTable reconstructs a HashTable over a pager whose page 0
// already holds a directory written by a prior NewHashTable.
func ReadHashTable[K any, V comparable](p *pager.Pager, keyCodec codec.Codec[K], valCodec codec.Codec[V], cmp Comparator[K], hasher Hasher) *HashTable[K, V] {
	return &HashTable[K, V]{
		directoryPN: 0,
		pager:       p,
		keyCodec:    keyCodec,
		valCodec:    valCodec,
		cmp:         cmp,
		hasher:      hasher,
	}
}

func (t *HashTable[K, V]) encodeKey(key K) []byte {
	buf := make([]byte, t.keyCodec.Size)
	t.keyCodec.Encode(key, buf)
	return buf
}

func (t *HashTable[K, V]) hashKey(key K) uint32 {
	return t.hasher(t.encodeKey(key))
}

// resolveBucketPage briefly pins and read-latches the directory to
// translate key to the page id of the bucket that currently owns it.
func (t *HashTable[K, V]) resolveBucketPage(key K) (int64, error) {
	dg, err := fetchDirectory(t.pager, t.directoryPN, readLock)
	if err != nil {
		return INVALID_PAGE_ID, err
	}
	defer dg.Release()
	idx := bucketIndex(t.hashKey(key), dg.dir.GlobalDepthMask())
	return dg.dir.BucketPageID(idx), nil
}

// GlobalDepth reports the directory's current global depth.
func (t *HashTable[K, V]) GlobalDepth() int64 {
	t.rwlock.RLock()
	defer t.rwlock.RUnlock()
	dg, err := fetchDirectory(t.pager, t.directoryPN, readLock)
	if err != nil {
		return 0
	}
	defer dg.Release()
	return dg.dir.GlobalDepth()
}

// Get returns every value stored under key.
func (t *HashTable[K, V]) Get(key K) ([]V, error) {
	t.rwlock.RLock()
	defer t.rwlock.RUnlock()

	bucketPN, err := t.resolveBucketPage(key)
	if err != nil {
		return nil, err
	}
	bg, err := fetchBucket[K, V](t.pager, bucketPN, readLock, t.keyCodec, t.valCodec)
	if err != nil {
		return nil, err
	}
	defer bg.Release()
	return bg.bucket.Get(key, t.cmp), nil
}

// Insert adds (key, value) to the table, splitting buckets as needed.
// The fast path takes only the table's reader latch: it resolves and
// write-latches the target bucket directly and tries the insert there.
// Only when that fails because the bucket is genuinely full does it
// release everything and re-enter under the table's writer latch via
// splitInsert, keeping the fast uncontended path separate from the
// slower structural-change path.
func (t *HashTable[K, V]) Insert(key K, value V) (bool, error) {
	t.rwlock.RLock()
	bucketPN, err := t.resolveBucketPage(key)
	if err != nil {
		t.rwlock.RUnlock()
		return false, err
	}
	bg, err := fetchBucket[K, V](t.pager, bucketPN, writeLock, t.keyCodec, t.valCodec)
	if err != nil {
		t.rwlock.RUnlock()
		return false, err
	}
	inserted := bg.bucket.Insert(key, value, t.cmp)
	full := bg.bucket.IsFull()
	bg.Release()
	t.rwlock.RUnlock()

	if inserted || !full {
		return inserted, nil
	}
	return t.splitInsert(key, value)
}

// splitInsert holds the table's writer latch for as long as it takes to
// split the target bucket's lineage until the insert fits, resolving
// the bucket fresh from the directory on every iteration - a guard is
// never carried across a split, only reacquired after it (per the
// no-stale-guards discipline guard.go's Release is built around).
func (t *HashTable[K, V]) splitInsert(key K, value V) (bool, error) {
	t.rwlock.Lock()
	defer t.rwlock.Unlock()

	for {
		bucketPN, err := t.resolveBucketPage(key)
		if err != nil {
			return false, err
		}
		bg, err := fetchBucket[K, V](t.pager, bucketPN, writeLock, t.keyCodec, t.valCodec)
		if err != nil {
			return false, err
		}
		if bg.bucket.Insert(key, value, t.cmp) {
			bg.Release()
			return true, nil
		}
		bg.Release()

		grew, err := t.split(bucketPN, key)
		if err != nil {
			return false, err
		}
		if !grew {
			return false, nil
		}
	}
}

// split relieves an overflowing bucket by incrementing its local depth,
// first doubling the directory if its local depth already equals the
// global depth. Returns false only when the directory is already at
// DIRECTORY_CAPACITY and cannot grow to make room for a new split.
func (t *HashTable[K, V]) split(bucketPN int64, key K) (bool, error) {
	dg, err := fetchDirectory(t.pager, t.directoryPN, writeLock)
	if err != nil {
		return false, err
	}
	defer dg.Release()

	bucketIdx := bucketIndex(t.hashKey(key), dg.dir.GlobalDepthMask())
	if dg.dir.LocalDepth(bucketIdx) == dg.dir.GlobalDepth() {
		if dg.dir.Size()*2 > int64(DIRECTORY_CAPACITY) {
			return false, nil
		}
		growDirectory(dg.dir)
	}

	if err := t.splitBucket(dg.dir, bucketIdx); err != nil {
		return false, err
	}
	return true, nil
}

// growDirectory doubles the directory's addressable range: every slot i
// is mirrored into i+size so both copies still point at the same bucket
// with the same local depth, and only then is global depth bumped -
// mirror-then-grow order, which keeps every lookup in flight consistent.
func growDirectory(dir *DirectoryPage) {
	size := dir.Size()
	for i := int64(0); i < size; i++ {
		dir.SetBucketPageID(size+i, dir.BucketPageID(i))
		dir.SetLocalDepth(size+i, dir.LocalDepth(i))
	}
	dir.SetGlobalDepth(dir.GlobalDepth() + 1)
}

// splitBucket increments the local depth of the bucket at directory
// slot bucketIdx, allocates its two new homes, and redistributes its
// live entries between them by the newly significant hash bit, then
// repoints every directory slot that referenced the old bucket.
func (t *HashTable[K, V]) splitBucket(dir *DirectoryPage, bucketIdx int64) error {
	oldPN := dir.BucketPageID(bucketIdx)
	localDepth := dir.LocalDepth(bucketIdx)
	localMask := dir.LocalDepthMask(bucketIdx)
	localValue := bucketIdx & localMask

	oldBG, err := fetchBucket[K, V](t.pager, oldPN, writeLock, t.keyCodec, t.valCodec)
	if err != nil {
		return err
	}
	entries := oldBG.bucket.Entries()
	oldBG.Release()

	newMask := (localMask << 1) | 1
	var newPN [2]int64
	var newEntries [2][]Pair[K, V]
	for side := 0; side < 2; side++ {
		newValue := localValue | (int64(side) << uint(localDepth))
		for _, e := range entries {
			if (int64(t.hashKey(e.Key)) & newMask) == newValue {
				newEntries[side] = append(newEntries[side], e)
			}
		}
	}

	for side := 0; side < 2; side++ {
		bg, err := allocBucket[K, V](t.pager, writeLock, t.keyCodec, t.valCodec)
		if err != nil {
			// Roll back any new page already allocated on the other side
			// rather than leaving it dangling with no directory slot
			// pointing at it and no way to free it later.
			for prevSide := 0; prevSide < side; prevSide++ {
				_, _ = t.pager.DeletePage(newPN[prevSide])
			}
			return err
		}
		for _, e := range newEntries[side] {
			bg.bucket.Insert(e.Key, e.Value, t.cmp)
		}
		newPN[side] = bg.guard.Page().GetPageNum()
		bg.Release()
	}

	size := dir.Size()
	for i := int64(0); i < size; i++ {
		if dir.BucketPageID(i) == oldPN {
			side := (i >> uint(localDepth)) & 1
			dir.SetBucketPageID(i, newPN[side])
			dir.SetLocalDepth(i, localDepth+1)
		}
	}

	if _, err := t.pager.DeletePage(oldPN); err != nil {
		return err
	}
	return nil
}

// Remove deletes (key, value) from the table if present, then folds the
// bucket's lineage back together with merge/shrinkDirectory for as long
// as removing left it empty and a merge is legal - mirroring the
// teacher's Remove loop (itself following ExtendibleHashTable::Remove).
func (t *HashTable[K, V]) Remove(key K, value V) (bool, error) {
	t.rwlock.Lock()
	defer t.rwlock.Unlock()

	bucketPN, err := t.resolveBucketPage(key)
	if err != nil {
		return false, err
	}
	bg, err := fetchBucket[K, V](t.pager, bucketPN, writeLock, t.keyCodec, t.valCodec)
	if err != nil {
		return false, err
	}
	removed := bg.bucket.Remove(key, value, t.cmp)
	empty := removed && bg.bucket.IsEmpty()
	bg.Release()
	if !removed {
		return false, nil
	}

	for empty {
		merged, err := t.merge(bucketPN)
		if err != nil {
			return true, err
		}
		if !merged {
			break
		}
		if err := t.shrinkDirectory(); err != nil {
			return true, err
		}

		bucketPN, err = t.resolveBucketPage(key)
		if err != nil {
			return true, err
		}
		rbg, err := fetchBucket[K, V](t.pager, bucketPN, readLock, t.keyCodec, t.valCodec)
		if err != nil {
			return true, err
		}
		empty = rbg.bucket.IsEmpty()
		rbg.Release()
	}
	return true, nil
}

// merge folds the bucket at bucketPN back into its split image: every
// directory slot sharing the bucket's shrunk mask is repointed at the
// sibling and has its local depth decremented. It is a no-op (false,
// nil) if the bucket is already at local depth 0, or if some slot
// sharing that mask has a deeper local depth - meaning the sibling's own
// subtree has since split further and can't be folded into yet.
func (t *HashTable[K, V]) merge(bucketPN int64) (bool, error) {
	dg, err := fetchDirectory(t.pager, t.directoryPN, writeLock)
	if err != nil {
		return false, err
	}
	defer dg.Release()

	size := dg.dir.Size()
	bucketIdx := int64(-1)
	for i := int64(0); i < size; i++ {
		if dg.dir.BucketPageID(i) == bucketPN {
			bucketIdx = i
			break
		}
	}
	if bucketIdx == -1 {
		return false, nil
	}
	localDepth := dg.dir.LocalDepth(bucketIdx)
	if localDepth == 0 {
		return false, nil
	}

	newMask := dg.dir.LocalDepthMask(bucketIdx) >> 1
	newValue := bucketIdx & newMask
	for i := int64(0); i < size; i++ {
		if (i&newMask) == newValue && dg.dir.LocalDepth(i) > localDepth {
			return false, nil
		}
	}

	siblingIdx := dg.dir.SplitImage(bucketIdx)
	siblingPN := dg.dir.BucketPageID(siblingIdx)
	for i := int64(0); i < size; i++ {
		if (i & newMask) == newValue {
			dg.dir.SetBucketPageID(i, siblingPN)
			dg.dir.SetLocalDepth(i, dg.dir.LocalDepth(i)-1)
		}
	}

	if _, err := t.pager.DeletePage(bucketPN); err != nil {
		return false, err
	}
	return true, nil
}

// shrinkDirectory drops global depth down to the deepest local depth
// still in use.
func (t *HashTable[K, V]) shrinkDirectory() error {
	dg, err := fetchDirectory(t.pager, t.directoryPN, writeLock)
	if err != nil {
		return err
	}
	defer dg.Release()

	size := dg.dir.Size()
	maxLocal := int64(0)
	for i := int64(0); i < size; i++ {
		if d := dg.dir.LocalDepth(i); d > maxLocal {
			maxLocal = d
		}
	}
	for dg.dir.GlobalDepth() > maxLocal {
		dg.dir.SetGlobalDepth(dg.dir.GlobalDepth() - 1)
	}
	return nil
}

// VerifyIntegrity checks the directory-level invariants from the data
// model (see DirectoryPage.VerifyIntegrity) plus the bucket-level ones
// for every bucket the directory addresses: every entry it holds agrees
// with the addressing slot on the low local_depth bits of its hash, no
// slot is readable without being occupied, and the occupied slots form
// a prefix. Buckets that no directory slot addresses are not visited.
func (t *HashTable[K, V]) VerifyIntegrity() error {
	t.rwlock.RLock()
	defer t.rwlock.RUnlock()

	dg, err := fetchDirectory(t.pager, t.directoryPN, readLock)
	if err != nil {
		return err
	}
	defer dg.Release()

	if err := dg.dir.VerifyIntegrity(); err != nil {
		return err
	}

	size := dg.dir.Size()
	seen := make(map[int64]bool)
	for i := int64(0); i < size; i++ {
		pn := dg.dir.BucketPageID(i)
		if seen[pn] {
			continue
		}
		seen[pn] = true

		bg, err := fetchBucket[K, V](t.pager, pn, readLock, t.keyCodec, t.valCodec)
		if err != nil {
			return err
		}
		localMask := dg.dir.LocalDepthMask(i)
		for _, e := range bg.bucket.Entries() {
			if bucketIndex(t.hashKey(e.Key), localMask) != i&localMask {
				bg.Release()
				return errMisroutedEntry
			}
		}
		for j := 0; j < BUCKET_CAPACITY; j++ {
			occupied := bg.bucket.isOccupied(j)
			if (bg.bucket.isReadable(j) && !occupied) || (j > 0 && occupied && !bg.bucket.isOccupied(j-1)) {
				bg.Release()
				return errBadBitmap
			}
		}
		bg.Release()
	}
	return nil
}

// Print writes the directory's layout followed by every distinct
// bucket's contents to w, taking the table's reader latch for the
// duration of the dump.
func (t *HashTable[K, V]) Print(w io.Writer) {
	t.rwlock.RLock()
	defer t.rwlock.RUnlock()

	dg, err := fetchDirectory(t.pager, t.directoryPN, readLock)
	if err != nil {
		io.WriteString(w, "====\n")
		return
	}
	defer dg.Release()

	io.WriteString(w, "====\n")
	dg.dir.Print(w)

	size := dg.dir.Size()
	seen := make(map[int64]bool)
	for i := int64(0); i < size; i++ {
		pn := dg.dir.BucketPageID(i)
		if seen[pn] {
			continue
		}
		seen[pn] = true

		bg, err := fetchBucket[K, V](t.pager, pn, readLock, t.keyCodec, t.valCodec)
		if err != nil {
			continue
		}
		bg.bucket.Print(w)
		bg.Release()
	}
	io.WriteString(w, "====\n")
}
