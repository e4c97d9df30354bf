package hash

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"dinohash/pkg/codec"
	"dinohash/pkg/repl"
)

// HashRepl builds a REPL over a single int64/int64 HashIndex opened at
// filename, for manual poking at the index the same way PagerRepl lets
// you poke at a bare pager.
func HashRepl(filename string) (*repl.REPL, error) {
	index, err := OpenIndex(filename, codec.Int64Codec, codec.Int64Codec, Int64Comparator, XxHasher)
	if err != nil {
		return nil, err
	}
	return HashReplOver(index)
}

// HashReplOver builds the same commands as HashRepl over an
// already-open index, for callers (like the stress binary) that manage
// the index's lifecycle themselves.
func HashReplOver(index *HashIndex[int64, int64]) (*repl.REPL, error) {
	r := repl.NewRepl()

	r.AddCommand("hash_insert", func(payload string, replConfig *repl.REPLConfig) (string, error) {
		return "", HandleHashInsert(index, payload)
	}, "Insert a key/value pair. usage: hash_insert <key> <value>")

	r.AddCommand("hash_get", func(payload string, replConfig *repl.REPLConfig) (string, error) {
		return HandleHashGet(index, payload)
	}, "Get the values stored under a key. usage: hash_get <key>")

	r.AddCommand("hash_remove", func(payload string, replConfig *repl.REPLConfig) (string, error) {
		return "", HandleHashRemove(index, payload)
	}, "Remove a key/value pair. usage: hash_remove <key> <value>")

	r.AddCommand("hash_depth", func(payload string, replConfig *repl.REPLConfig) (string, error) {
		return HandleHashDepth(index, payload)
	}, "Print the directory's current global depth. usage: hash_depth")

	r.AddCommand("hash_print", func(payload string, replConfig *repl.REPLConfig) (string, error) {
		return HandleHashPrint(index, payload)
	}, "Print the table's directory and bucket contents. usage: hash_print")

	r.AddCommand("hash_verify", func(payload string, replConfig *repl.REPLConfig) (string, error) {
		return "", HandleHashVerify(index, payload)
	}, "Verify the index's structural invariants. usage: hash_verify")

	return r, nil
}

// Int64Comparator is the natural ordering comparator for int64 keys,
// used by the int64/int64 HashIndex instantiation the REPL and CLI
// binaries default to.
func Int64Comparator(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func HandleHashInsert(index *HashIndex[int64, int64], payload string) error {
	fields := strings.Fields(payload)
	if len(fields) != 3 {
		return errors.New("usage: hash_insert <key> <value>")
	}
	key, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return err
	}
	value, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return err
	}
	_, err = index.Insert(nil, key, value)
	return err
}

func HandleHashGet(index *HashIndex[int64, int64], payload string) (string, error) {
	fields := strings.Fields(payload)
	if len(fields) != 2 {
		return "", errors.New("usage: hash_get <key>")
	}
	key, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return "", err
	}
	values, err := index.Get(nil, key)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%v", values), nil
}

func HandleHashRemove(index *HashIndex[int64, int64], payload string) error {
	fields := strings.Fields(payload)
	if len(fields) != 3 {
		return errors.New("usage: hash_remove <key> <value>")
	}
	key, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return err
	}
	value, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return err
	}
	_, err = index.Remove(nil, key, value)
	return err
}

func HandleHashDepth(index *HashIndex[int64, int64], payload string) (string, error) {
	fields := strings.Fields(payload)
	if len(fields) != 1 {
		return "", errors.New("usage: hash_depth")
	}
	return fmt.Sprintf("%d", index.GlobalDepth()), nil
}

func HandleHashPrint(index *HashIndex[int64, int64], payload string) (string, error) {
	fields := strings.Fields(payload)
	if len(fields) != 1 {
		return "", errors.New("usage: hash_print")
	}
	var sb strings.Builder
	index.Print(&sb)
	return sb.String(), nil
}

func HandleHashVerify(index *HashIndex[int64, int64], payload string) error {
	fields := strings.Fields(payload)
	if len(fields) != 1 {
		return errors.New("usage: hash_verify")
	}
	return index.VerifyIntegrity()
}
