package hash

import (
	"fmt"
	"io"

	"dinohash/pkg/codec"
	"dinohash/pkg/pager"

	"github.com/bits-and-blooms/bitset"
)

// Comparator orders two keys, returning 0 when they are equal. This is
// the Go-generics stand-in for the source's KeyComparator template
// parameter.
type Comparator[K any] func(a, b K) int

// BucketPage is a fixed-capacity associative container packed into a
// single page: an array of BUCKET_CAPACITY (key,value) slots, plus two
// bitmaps (occupied and readable) recording which slots have ever held
// an entry and which currently hold a live one. It is a thin view over
// a *pager.Page's bytes, not an owner of the page - callers are
// responsible for pinning/latching it via a guard (see guard.go) for
// the duration of any call.
type BucketPage[K any, V comparable] struct {
	page           *pager.Page
	keyCodec       codec.Codec[K]
	valCodec       codec.Codec[V]
	entrySize      int
	occupiedOffset int64
	readableOffset int64
}

// NewBucketPage wraps an existing page (already holding bucket data, or
// freshly allocated) as a BucketPage view.
func NewBucketPage[K any, V comparable](page *pager.Page, keyCodec codec.Codec[K], valCodec codec.Codec[V]) *BucketPage[K, V] {
	entrySize := keyCodec.Size + valCodec.Size
	if entrySize > maxEntrySize {
		panic(fmt.Sprintf("hash: entry size %d exceeds maximum %d for BUCKET_CAPACITY %d", entrySize, maxEntrySize, BUCKET_CAPACITY))
	}
	occOff := int64(BUCKET_CAPACITY * entrySize)
	return &BucketPage[K, V]{
		page:           page,
		keyCodec:       keyCodec,
		valCodec:       valCodec,
		entrySize:      entrySize,
		occupiedOffset: occOff,
		readableOffset: occOff + int64(bitmapBytes(BUCKET_CAPACITY)),
	}
}

// InitBucketPage zeroes out a freshly allocated page's bitmaps so that
// it starts out as an empty bucket, then returns it as a BucketPage.
func InitBucketPage[K any, V comparable](page *pager.Page, keyCodec codec.Codec[K], valCodec codec.Codec[V]) *BucketPage[K, V] {
	b := NewBucketPage(page, keyCodec, valCodec)
	zero := make([]byte, bitmapBytes(BUCKET_CAPACITY))
	page.Update(zero, b.occupiedOffset, int64(len(zero)))
	page.Update(zero, b.readableOffset, int64(len(zero)))
	return b
}

// GetPage returns the page backing this bucket view.
func (b *BucketPage[K, V]) GetPage() *pager.Page {
	return b.page
}

// Get returns every live value stored under key, stopping the scan at
// the first never-occupied slot.
func (b *BucketPage[K, V]) Get(key K, cmp Comparator[K]) []V {
	var out []V
	for i := 0; i < BUCKET_CAPACITY; i++ {
		if !b.isOccupied(i) {
			break
		}
		if b.isReadable(i) && cmp(key, b.keyAt(i)) == 0 {
			out = append(out, b.valueAt(i))
		}
	}
	return out
}

// Insert places (key, value) into the bucket, rejecting an identical
// (key, value) pair already present. Returns false if the bucket has no
// room even after an internal compaction attempt.
func (b *BucketPage[K, V]) Insert(key K, value V, cmp Comparator[K]) bool {
	if b.isOccupied(BUCKET_CAPACITY - 1) {
		b.Compact()
		if b.isOccupied(BUCKET_CAPACITY - 1) {
			return false
		}
	}
	occupyIndex := -1
	for i := 0; i < BUCKET_CAPACITY; i++ {
		if !b.isOccupied(i) {
			if occupyIndex == -1 {
				occupyIndex = i
			}
			break
		}
		if b.isReadable(i) {
			if cmp(key, b.keyAt(i)) == 0 && b.valueAt(i) == value {
				return false
			}
		} else if occupyIndex == -1 {
			occupyIndex = i
		}
	}
	if occupyIndex == -1 {
		return false
	}
	b.setOccupied(occupyIndex)
	b.writeEntry(occupyIndex, key, value)
	b.setReadable(occupyIndex)
	return true
}

// Remove clears the readable bit of the slot holding (key, value),
// leaving its occupied bit set as a tombstone. Returns false if no such
// live entry is found.
func (b *BucketPage[K, V]) Remove(key K, value V, cmp Comparator[K]) bool {
	for i := 0; i < BUCKET_CAPACITY; i++ {
		if !b.isOccupied(i) {
			break
		}
		if b.isReadable(i) && cmp(key, b.keyAt(i)) == 0 && b.valueAt(i) == value {
			b.setUnreadable(i)
			return true
		}
	}
	return false
}

// IsFull reports whether every slot is readable.
func (b *BucketPage[K, V]) IsFull() bool {
	bs := bitsFromBytes(b.readableBytes(), BUCKET_CAPACITY)
	return bs.Count() == uint(BUCKET_CAPACITY)
}

// IsEmpty reports whether no slot is readable.
func (b *BucketPage[K, V]) IsEmpty() bool {
	bs := bitsFromBytes(b.readableBytes(), BUCKET_CAPACITY)
	return bs.None()
}

// NumReadable returns the popcount of the readable bitmap.
func (b *BucketPage[K, V]) NumReadable() int {
	bs := bitsFromBytes(b.readableBytes(), BUCKET_CAPACITY)
	return int(bs.Count())
}

// Compact rewrites the bucket so that all readable entries occupy a
// dense prefix [0, NumReadable()), clearing occupied/readable beyond it.
// Preserves the multiset of live entries.
func (b *BucketPage[K, V]) Compact() {
	tail := 0
	for i := 0; i < BUCKET_CAPACITY; i++ {
		if !b.isOccupied(i) {
			break
		}
		if b.isReadable(i) {
			if tail != i {
				b.writeEntry(tail, b.keyAt(i), b.valueAt(i))
				b.setReadable(tail)
			}
			tail++
		}
	}
	for i := tail; i < BUCKET_CAPACITY; i++ {
		b.setUnoccupied(i)
		b.setUnreadable(i)
	}
}

// Entries returns every live (key, value) pair in the bucket, used by
// split to redistribute entries between the two new buckets.
func (b *BucketPage[K, V]) Entries() []Pair[K, V] {
	out := make([]Pair[K, V], 0, b.NumReadable())
	for i := 0; i < BUCKET_CAPACITY; i++ {
		if !b.isOccupied(i) {
			break
		}
		if b.isReadable(i) {
			out = append(out, Pair[K, V]{Key: b.keyAt(i), Value: b.valueAt(i)})
		}
	}
	return out
}

// Pair is a (key, value) entry, used when bulk-extracting a bucket's
// contents for redistribution during a split.
type Pair[K any, V comparable] struct {
	Key   K
	Value V
}

// Print writes this bucket's live entries to w, one bucket-per-line
// summary followed by each (key, value) pair.
func (b *BucketPage[K, V]) Print(w io.Writer) {
	io.WriteString(w, fmt.Sprintf("bucket (%d/%d readable): ", b.NumReadable(), BUCKET_CAPACITY))
	for _, e := range b.Entries() {
		fmt.Fprintf(w, "(%v, %v), ", e.Key, e.Value)
	}
	io.WriteString(w, "\n")
}

/////////////////////////////////////////////////////////////////////////////
///////////////////////// BucketPage Helper Functions ///////////////////////
/////////////////////////////////////////////////////////////////////////////

func (b *BucketPage[K, V]) entryOffset(i int) int64 {
	return int64(i * b.entrySize)
}

func (b *BucketPage[K, V]) keyAt(i int) K {
	off := b.entryOffset(i)
	return b.keyCodec.Decode(b.page.GetData()[off : off+int64(b.keyCodec.Size)])
}

func (b *BucketPage[K, V]) valueAt(i int) V {
	off := b.entryOffset(i) + int64(b.keyCodec.Size)
	return b.valCodec.Decode(b.page.GetData()[off : off+int64(b.valCodec.Size)])
}

func (b *BucketPage[K, V]) writeEntry(i int, key K, value V) {
	buf := make([]byte, b.entrySize)
	b.keyCodec.Encode(key, buf[:b.keyCodec.Size])
	b.valCodec.Encode(value, buf[b.keyCodec.Size:])
	b.page.Update(buf, b.entryOffset(i), int64(b.entrySize))
}

func (b *BucketPage[K, V]) occupiedBytes() []byte {
	n := int64(bitmapBytes(BUCKET_CAPACITY))
	return b.page.GetData()[b.occupiedOffset : b.occupiedOffset+n]
}

func (b *BucketPage[K, V]) readableBytes() []byte {
	n := int64(bitmapBytes(BUCKET_CAPACITY))
	return b.page.GetData()[b.readableOffset : b.readableOffset+n]
}

func (b *BucketPage[K, V]) isOccupied(i int) bool {
	raw := b.occupiedBytes()
	return raw[i/8]&(1<<uint(i%8)) != 0
}

func (b *BucketPage[K, V]) isReadable(i int) bool {
	raw := b.readableBytes()
	return raw[i/8]&(1<<uint(i%8)) != 0
}

func (b *BucketPage[K, V]) setOccupied(i int) {
	off := b.occupiedOffset + int64(i/8)
	cur := b.page.GetData()[off] | (1 << uint(i%8))
	b.page.Update([]byte{cur}, off, 1)
}

func (b *BucketPage[K, V]) setUnoccupied(i int) {
	off := b.occupiedOffset + int64(i/8)
	cur := b.page.GetData()[off] &^ (1 << uint(i%8))
	b.page.Update([]byte{cur}, off, 1)
}

func (b *BucketPage[K, V]) setReadable(i int) {
	off := b.readableOffset + int64(i/8)
	cur := b.page.GetData()[off] | (1 << uint(i%8))
	b.page.Update([]byte{cur}, off, 1)
}

func (b *BucketPage[K, V]) setUnreadable(i int) {
	off := b.readableOffset + int64(i/8)
	cur := b.page.GetData()[off] &^ (1 << uint(i%8))
	b.page.Update([]byte{cur}, off, 1)
}

// bitsFromBytes decodes a byte-exact, LSB-first bitmap of n bits into a
// bitset.BitSet for the bulk scans (Count/None) that the
// individual setters above don't need.
func bitsFromBytes(raw []byte, n int) *bitset.BitSet {
	bs := bitset.New(uint(n))
	for i := 0; i < n; i++ {
		if raw[i/8]&(1<<uint(i%8)) != 0 {
			bs.Set(uint(i))
		}
	}
	return bs
}
