package hash

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"dinohash/pkg/concurrency"
	"dinohash/pkg/repl"

	"github.com/google/uuid"
)

// TransactionREPL wires transaction-scoped commands (begin/commit,
// lock, get/insert/remove) around a single int64/int64 HashIndex,
// generalized from a TransactionREPL shape that once dispatched
// across an arbitrary number of named tables in a database.Database) to
// the one index this system indexes. It lives alongside HashIndex,
// rather than in pkg/concurrency, so that pkg/concurrency stays a
// low-level package that knows nothing about what it's locking.
func TransactionREPL(index *HashIndex[int64, int64], tm *concurrency.TransactionManager) *repl.REPL {
	r := repl.NewRepl()

	r.AddCommand("transaction", func(payload string, replConfig *repl.REPLConfig) (string, error) {
		return "", HandleTransaction(tm, payload, replConfig.GetAddr())
	}, "Handle transactions. usage: transaction <begin|commit>")

	r.AddCommand("get", func(payload string, replConfig *repl.REPLConfig) (string, error) {
		return HandleGet(index, tm, payload, replConfig.GetAddr())
	}, "Get the values stored under a key. usage: get <key>")

	r.AddCommand("insert", func(payload string, replConfig *repl.REPLConfig) (string, error) {
		return "", HandleInsert(index, tm, payload, replConfig.GetAddr())
	}, "Insert a key/value pair. usage: insert <key> <value>")

	r.AddCommand("remove", func(payload string, replConfig *repl.REPLConfig) (string, error) {
		return "", HandleRemove(index, tm, payload, replConfig.GetAddr())
	}, "Remove a key/value pair. usage: remove <key> <value>")

	r.AddCommand("lock", func(payload string, replConfig *repl.REPLConfig) (string, error) {
		return "", HandleLock(index, tm, payload, replConfig.GetAddr())
	}, "Grabs a write lock on a key. usage: lock <key>")

	r.AddCommand("depth", func(payload string, replConfig *repl.REPLConfig) (string, error) {
		return HandleDepth(index, payload)
	}, "Print the index's current global depth. usage: depth")

	return r
}

// HandleTransaction begins or commits the calling client's transaction.
func HandleTransaction(tm *concurrency.TransactionManager, payload string, clientId uuid.UUID) error {
	fields := strings.Fields(payload)
	if len(fields) != 2 || (fields[1] != "begin" && fields[1] != "commit") {
		return errors.New("usage: transaction <begin|commit>")
	}
	switch fields[1] {
	case "begin":
		return tm.Begin(clientId)
	case "commit":
		return tm.Commit(clientId)
	default:
		return errors.New("internal error in transaction handler")
	}
}

// HandleGet takes a reader lock on key, then reads through it.
func HandleGet(index *HashIndex[int64, int64], tm *concurrency.TransactionManager, payload string, clientId uuid.UUID) (string, error) {
	fields := strings.Fields(payload)
	if len(fields) != 2 {
		return "", errors.New("usage: get <key>")
	}
	key, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return "", fmt.Errorf("get error: %v", err)
	}
	if err := tm.Lock(clientId, index, key, concurrency.R_LOCK); err != nil {
		return "", fmt.Errorf("get error: %v", err)
	}
	txn, _ := tm.GetTransaction(clientId)
	values, err := index.Get(txn, key)
	if err != nil {
		return "", fmt.Errorf("get error: %v", err)
	}
	return fmt.Sprintf("%v", values), nil
}

// HandleInsert takes a writer lock on key, then inserts through it.
func HandleInsert(index *HashIndex[int64, int64], tm *concurrency.TransactionManager, payload string, clientId uuid.UUID) error {
	fields := strings.Fields(payload)
	if len(fields) != 3 {
		return errors.New("usage: insert <key> <value>")
	}
	key, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return fmt.Errorf("insert error: %v", err)
	}
	value, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return fmt.Errorf("insert error: %v", err)
	}
	if err := tm.Lock(clientId, index, key, concurrency.W_LOCK); err != nil {
		return fmt.Errorf("insert error: %v", err)
	}
	txn, _ := tm.GetTransaction(clientId)
	if _, err := index.Insert(txn, key, value); err != nil {
		return fmt.Errorf("insert error: %v", err)
	}
	return nil
}

// HandleRemove takes a writer lock on key, then removes through it.
func HandleRemove(index *HashIndex[int64, int64], tm *concurrency.TransactionManager, payload string, clientId uuid.UUID) error {
	fields := strings.Fields(payload)
	if len(fields) != 3 {
		return errors.New("usage: remove <key> <value>")
	}
	key, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return fmt.Errorf("remove error: %v", err)
	}
	value, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return fmt.Errorf("remove error: %v", err)
	}
	if err := tm.Lock(clientId, index, key, concurrency.W_LOCK); err != nil {
		return fmt.Errorf("remove error: %v", err)
	}
	txn, _ := tm.GetTransaction(clientId)
	if _, err := index.Remove(txn, key, value); err != nil {
		return fmt.Errorf("remove error: %v", err)
	}
	return nil
}

// HandleLock grabs a write lock on a key without performing an
// operation, for exercising the deadlock detector by hand.
func HandleLock(index *HashIndex[int64, int64], tm *concurrency.TransactionManager, payload string, clientId uuid.UUID) error {
	fields := strings.Fields(payload)
	if len(fields) != 2 {
		return errors.New("usage: lock <key>")
	}
	key, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return fmt.Errorf("lock error: %v", err)
	}
	if err := tm.Lock(clientId, index, key, concurrency.W_LOCK); err != nil {
		return fmt.Errorf("lock error: %v", err)
	}
	return nil
}

// HandleDepth prints the index's current global depth. It takes no
// transaction lock; HashTable.GlobalDepth still takes the table's reader
// latch, so it never observes a split in progress.
func HandleDepth(index *HashIndex[int64, int64], payload string) (string, error) {
	fields := strings.Fields(payload)
	if len(fields) != 1 {
		return "", errors.New("usage: depth")
	}
	return fmt.Sprintf("%d", index.GlobalDepth()), nil
}
