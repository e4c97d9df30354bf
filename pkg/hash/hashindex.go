package hash

import (
	"io"
	"path/filepath"

	"dinohash/pkg/codec"
	"dinohash/pkg/concurrency"
	"dinohash/pkg/pager"
)

// HashIndex is a named, openable/closable index backed by a HashTable.
// It is the unit the rest of the database (REPL, transaction manager)
// actually holds - HashTable itself knows nothing about file names or
// transactions. Parameterized over K, V the same way HashTable is,
// instead of fixing both to int64.
//
// The transaction argument on Get/Insert/Remove is accepted but never
// inspected: callers (see TransactionREPL in transaction_repl.go) take
// the matching per-key lock through the TransactionManager before calling in, so
// the index's own table_latch only has to arbitrate between goroutines
// of the same logical operation, not between transactions.
type HashIndex[K any, V comparable] struct {
	table *HashTable[K, V]
	pager *pager.Pager
}

// OpenIndex opens (or creates, if filename doesn't already hold one) a
// HashIndex backed by a file at filename.
func OpenIndex[K any, V comparable](filename string, keyCodec codec.Codec[K], valCodec codec.Codec[V], cmp Comparator[K], hasher Hasher) (*HashIndex[K, V], error) {
	p, err := pager.New(filename)
	if err != nil {
		return nil, err
	}

	var table *HashTable[K, V]
	if p.GetNumPages() == 0 {
		table, err = NewHashTable[K, V](p, keyCodec, valCodec, cmp, hasher)
	} else {
		table = ReadHashTable[K, V](p, keyCodec, valCodec, cmp, hasher)
	}
	if err != nil {
		return nil, err
	}
	return &HashIndex[K, V]{table: table, pager: p}, nil
}

// GetName returns the base file name of the file backing this index's
// pager, satisfying concurrency.Nameable so the index can be locked by
// the transaction manager.
func (index *HashIndex[K, V]) GetName() string {
	return filepath.Base(index.pager.GetFileName())
}

// GetPager returns the pager backing this index.
func (index *HashIndex[K, V]) GetPager() *pager.Pager {
	return index.pager
}

// GetTable returns the underlying HashTable.
func (index *HashIndex[K, V]) GetTable() *HashTable[K, V] {
	return index.table
}

// Close flushes the index's pages and closes its pager.
func (index *HashIndex[K, V]) Close() error {
	return index.pager.Close()
}

// Get returns every value stored under key.
func (index *HashIndex[K, V]) Get(txn *concurrency.Transaction, key K) ([]V, error) {
	return index.table.Get(key)
}

// Insert adds (key, value) to the index.
func (index *HashIndex[K, V]) Insert(txn *concurrency.Transaction, key K, value V) (bool, error) {
	return index.table.Insert(key, value)
}

// Remove deletes (key, value) from the index.
func (index *HashIndex[K, V]) Remove(txn *concurrency.Transaction, key K, value V) (bool, error) {
	return index.table.Remove(key, value)
}

// GlobalDepth reports the underlying directory's current global depth.
func (index *HashIndex[K, V]) GlobalDepth() int64 {
	return index.table.GlobalDepth()
}

// VerifyIntegrity checks the index's structural invariants end to end.
func (index *HashIndex[K, V]) VerifyIntegrity() error {
	return index.table.VerifyIntegrity()
}

// Print writes the index's directory and bucket contents to w.
func (index *HashIndex[K, V]) Print(w io.Writer) {
	index.table.Print(w)
}
