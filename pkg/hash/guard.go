package hash

import (
	"dinohash/pkg/codec"
	"dinohash/pkg/pager"
)

// lockMode is the latch mode a pageGuard holds on its page.
type lockMode int

const (
	noLock lockMode = iota
	readLock
	writeLock
)

// pageGuard scopes a buffer-pool pin plus an optional page latch,
// guaranteeing both are released exactly once no matter which exit path
// a caller takes - one scoped type in place of a manual
// `defer page.WUnlock(); defer pager.PutPage(page)` pairing repeated at
// every call site.
type pageGuard struct {
	pager    *pager.Pager
	page     *pager.Page
	mode     lockMode
	released bool
}

// fetchPage pins an existing page and latches it in the given mode.
func fetchPage(p *pager.Pager, pn int64, mode lockMode) (*pageGuard, error) {
	page, err := p.GetPage(pn)
	if err != nil {
		return nil, err
	}
	latch(page, mode)
	return &pageGuard{pager: p, page: page, mode: mode}, nil
}

// allocPage pins a freshly allocated page and latches it in the given mode.
func allocPage(p *pager.Pager, mode lockMode) (*pageGuard, error) {
	page, err := p.GetNewPage()
	if err != nil {
		return nil, err
	}
	latch(page, mode)
	return &pageGuard{pager: p, page: page, mode: mode}, nil
}

func latch(page *pager.Page, mode lockMode) {
	switch mode {
	case readLock:
		page.RLock()
	case writeLock:
		page.WLock()
	}
}

// Page returns the underlying pinned, latched page.
func (g *pageGuard) Page() *pager.Page {
	return g.page
}

// Release unlatches (if latched) and unpins the page. Idempotent: only
// the first call has any effect, so a guard may be released on every
// exit path (including defers stacked above an earlier explicit
// release) without double-unpinning.
func (g *pageGuard) Release() {
	if g.released {
		return
	}
	g.released = true
	switch g.mode {
	case readLock:
		g.page.RUnlock()
	case writeLock:
		g.page.WUnlock()
	}
	g.pager.PutPage(g.page)
}

// bucketGuard pairs a pageGuard with a typed BucketPage view over the
// same page.
type bucketGuard[K any, V comparable] struct {
	guard  *pageGuard
	bucket *BucketPage[K, V]
}

// fetchBucket pins and latches an existing bucket page.
func fetchBucket[K any, V comparable](p *pager.Pager, pn int64, mode lockMode, keyCodec codec.Codec[K], valCodec codec.Codec[V]) (*bucketGuard[K, V], error) {
	g, err := fetchPage(p, pn, mode)
	if err != nil {
		return nil, err
	}
	return &bucketGuard[K, V]{guard: g, bucket: NewBucketPage(g.Page(), keyCodec, valCodec)}, nil
}

// allocBucket allocates, pins, latches, and zero-initializes a new bucket page.
func allocBucket[K any, V comparable](p *pager.Pager, mode lockMode, keyCodec codec.Codec[K], valCodec codec.Codec[V]) (*bucketGuard[K, V], error) {
	g, err := allocPage(p, mode)
	if err != nil {
		return nil, err
	}
	return &bucketGuard[K, V]{guard: g, bucket: InitBucketPage(g.Page(), keyCodec, valCodec)}, nil
}

func (g *bucketGuard[K, V]) Release() {
	g.guard.Release()
}

// directoryGuard pairs a pageGuard with a DirectoryPage view over the
// same page.
type directoryGuard struct {
	guard *pageGuard
	dir   *DirectoryPage
}

// fetchDirectory pins and latches the directory page.
func fetchDirectory(p *pager.Pager, pn int64, mode lockMode) (*directoryGuard, error) {
	g, err := fetchPage(p, pn, mode)
	if err != nil {
		return nil, err
	}
	return &directoryGuard{guard: g, dir: NewDirectoryPage(g.Page())}, nil
}

func (g *directoryGuard) Release() {
	g.guard.Release()
}
