package hash

import (
	"encoding/binary"
	"fmt"
	"io"

	"dinohash/pkg/pager"
)

// Directory page layout offsets, bit-exact on disk: global_depth (u64),
// then bucket_page_id[DIRECTORY_CAPACITY] (u64 each), then
// local_depth[DIRECTORY_CAPACITY] (u8 each).
const (
	dirGlobalDepthOffset int64 = 0
	dirGlobalDepthSize   int64 = 8
	dirBucketIDOffset    int64 = dirGlobalDepthOffset + dirGlobalDepthSize
	dirBucketIDEntrySize int64 = 8
	dirLocalDepthOffset  int64 = dirBucketIDOffset + int64(DIRECTORY_CAPACITY)*dirBucketIDEntrySize
)

// DirectoryPage is the radix-style routing table mapping the low
// global_depth bits of a key's hash to a bucket page id, with a local
// depth recorded per slot. Like BucketPage, it is a thin view over a
// *pager.Page - callers pin/latch it via a guard for the call's duration.
type DirectoryPage struct {
	page *pager.Page
}

// NewDirectoryPage wraps an existing page as a DirectoryPage view.
func NewDirectoryPage(page *pager.Page) *DirectoryPage {
	return &DirectoryPage{page: page}
}

// InitDirectoryPage sets up a brand-new directory: global_depth=0,
// one live slot pointing at initialBucketPN with local_depth=0.
func InitDirectoryPage(page *pager.Page, initialBucketPN int64) *DirectoryPage {
	dir := &DirectoryPage{page: page}
	dir.SetGlobalDepth(0)
	dir.SetBucketPageID(0, initialBucketPN)
	dir.SetLocalDepth(0, 0)
	return dir
}

// GetPage returns the page backing this directory view.
func (dir *DirectoryPage) GetPage() *pager.Page {
	return dir.page
}

// GlobalDepth returns the number of hash bits the directory currently
// indexes with.
func (dir *DirectoryPage) GlobalDepth() int64 {
	return int64(binary.LittleEndian.Uint64(dir.page.GetData()[dirGlobalDepthOffset : dirGlobalDepthOffset+dirGlobalDepthSize]))
}

// SetGlobalDepth writes the directory's global depth.
func (dir *DirectoryPage) SetGlobalDepth(depth int64) {
	buf := make([]byte, dirGlobalDepthSize)
	binary.LittleEndian.PutUint64(buf, uint64(depth))
	dir.page.Update(buf, dirGlobalDepthOffset, dirGlobalDepthSize)
}

// Size returns 1 << global_depth, the number of live directory slots.
func (dir *DirectoryPage) Size() int64 {
	return int64(1) << uint(dir.GlobalDepth())
}

// GlobalDepthMask returns size()-1.
func (dir *DirectoryPage) GlobalDepthMask() int64 {
	return dir.Size() - 1
}

// LocalDepthMask returns (1 << local_depth[i]) - 1.
func (dir *DirectoryPage) LocalDepthMask(i int64) int64 {
	return (int64(1) << uint(dir.LocalDepth(i))) - 1
}

// SplitImage returns the sibling slot that would merge back with i:
// i XOR (1 << (local_depth[i]-1)). Requires local_depth[i] > 0.
func (dir *DirectoryPage) SplitImage(i int64) int64 {
	d := dir.LocalDepth(i)
	return i ^ (int64(1) << uint(d-1))
}

// BucketPageID returns the page id stored at directory slot i.
func (dir *DirectoryPage) BucketPageID(i int64) int64 {
	off := dirBucketIDOffset + i*dirBucketIDEntrySize
	return int64(binary.LittleEndian.Uint64(dir.page.GetData()[off : off+dirBucketIDEntrySize]))
}

// SetBucketPageID points directory slot i at the given bucket page.
func (dir *DirectoryPage) SetBucketPageID(i int64, pageID int64) {
	buf := make([]byte, dirBucketIDEntrySize)
	binary.LittleEndian.PutUint64(buf, uint64(pageID))
	off := dirBucketIDOffset + i*dirBucketIDEntrySize
	dir.page.Update(buf, off, dirBucketIDEntrySize)
}

// LocalDepth returns the local depth recorded for directory slot i.
func (dir *DirectoryPage) LocalDepth(i int64) int64 {
	off := dirLocalDepthOffset + i
	return int64(dir.page.GetData()[off])
}

// SetLocalDepth writes the local depth for directory slot i.
func (dir *DirectoryPage) SetLocalDepth(i int64, depth int64) {
	off := dirLocalDepthOffset + i
	dir.page.Update([]byte{byte(depth)}, off, 1)
}

// CanShrink reports whether every live slot's local depth is strictly
// less than the global depth, meaning the directory's upper half could
// be dropped without losing a distinct bucket mapping.
func (dir *DirectoryPage) CanShrink() bool {
	size := dir.Size()
	depth := dir.GlobalDepth()
	for i := int64(0); i < size; i++ {
		if dir.LocalDepth(i) >= depth {
			return false
		}
	}
	return true
}

// VerifyIntegrity checks the directory's structural invariants: equal
// bucket ids imply equal local depths, the set of slots pointing at a
// bucket with local depth d agrees on its low d bits, and every local
// depth is within [0, global_depth].
func (dir *DirectoryPage) VerifyIntegrity() error {
	size := dir.Size()
	depth := dir.GlobalDepth()
	if depth < 0 || depth > int64(dirCapacityDepth) {
		return fmt.Errorf("directory: global depth %d out of bounds", depth)
	}
	localDepthOf := make(map[int64]int64)
	for i := int64(0); i < size; i++ {
		d := dir.LocalDepth(i)
		if d < 0 || d > depth {
			return fmt.Errorf("directory: slot %d has local depth %d outside [0,%d]", i, d, depth)
		}
		pn := dir.BucketPageID(i)
		if prevDepth, ok := localDepthOf[pn]; ok {
			if prevDepth != d {
				return fmt.Errorf("directory: bucket page %d referenced with local depths %d and %d", pn, prevDepth, d)
			}
		} else {
			localDepthOf[pn] = d
		}
		mask := dir.LocalDepthMask(i)
		for j := int64(0); j < size; j++ {
			if dir.BucketPageID(j) == pn && (j&mask) != (i&mask) {
				return fmt.Errorf("directory: slot %d points at bucket %d but disagrees with slot %d on low %d bits", j, pn, i, d)
			}
		}
	}
	return nil
}

// Print writes the directory's global depth and, per slot, the bucket
// page id and local depth it routes to.
func (dir *DirectoryPage) Print(w io.Writer) {
	size := dir.Size()
	fmt.Fprintf(w, "global depth: %d\n", dir.GlobalDepth())
	for i := int64(0); i < size; i++ {
		fmt.Fprintf(w, "slot %d -> bucket %d (local depth %d)\n", i, dir.BucketPageID(i), dir.LocalDepth(i))
	}
}

// dirCapacityDepth is log2(DIRECTORY_CAPACITY), the maximum legal global
// depth.
var dirCapacityDepth = func() int64 {
	d := int64(0)
	for cap := 1; cap < DIRECTORY_CAPACITY; cap <<= 1 {
		d++
	}
	return d
}()
