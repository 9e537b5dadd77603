// Package kvstore implements the relay's persistent key-value store (C1):
// a flat keyspace partitioned by logical "tree" names, backed by
// cometbft-db. It is not a database — no range queries beyond an ordered
// scan of one tree are used or needed.
package kvstore

import (
	"bytes"
	"fmt"

	dbm "github.com/cometbft/cometbft-db"
)

// Reserved tree names referenced throughout the relay.
const (
	TreeEvmCursorPrefix      = "evm_cursor/"
	TreeEvmConfirmationQueue = "evm_confirmation_queue"
	TreePendingTonEvents     = "pending_ton_events"
	TreeVerificationState    = "verification_state"
)

// treeSeparator can never appear in a tree name; it delimits the tree prefix
// from the caller's key inside the flat underlying keyspace.
const treeSeparator = 0x00

// Store is the relay's durable key-value store, partitioned by tree.
type Store struct {
	db dbm.DB
}

// New wraps an already-open cometbft-db handle.
func New(db dbm.DB) *Store {
	return &Store{db: db}
}

// Open opens (creating if absent) a goleveldb-backed store at dir/name.
func Open(name, dir string) (*Store, error) {
	db, err := dbm.NewDB(name, dbm.GoLevelDBBackend, dir)
	if err != nil {
		return nil, fmt.Errorf("kvstore: open %s in %s: %w", name, dir, err)
	}
	return New(db), nil
}

func treeKey(tree string, key []byte) []byte {
	buf := make([]byte, 0, len(tree)+1+len(key))
	buf = append(buf, tree...)
	buf = append(buf, treeSeparator)
	buf = append(buf, key...)
	return buf
}

// Get reads key from tree. A missing key returns (nil, nil), matching the
// reference adapter's nil-safe "not found is not an error" behavior.
func (s *Store) Get(tree string, key []byte) ([]byte, error) {
	val, err := s.db.Get(treeKey(tree, key))
	if err != nil {
		return nil, fmt.Errorf("kvstore: get %s/%x: %w", tree, key, err)
	}
	return val, nil
}

// Put durably writes key=value into tree. Writes are synchronous (SetSync)
// so the store's durable-on-return guarantee holds without a transaction.
func (s *Store) Put(tree string, key, value []byte) error {
	if err := s.db.SetSync(treeKey(tree, key), value); err != nil {
		return fmt.Errorf("kvstore: put %s/%x: %w", tree, key, err)
	}
	return nil
}

// Delete removes key from tree. Deleting an absent key is not an error.
func (s *Store) Delete(tree string, key []byte) error {
	if err := s.db.DeleteSync(treeKey(tree, key)); err != nil {
		return fmt.Errorf("kvstore: delete %s/%x: %w", tree, key, err)
	}
	return nil
}

// Entry is one (key, value) pair yielded by Scan, with the tree prefix
// already stripped back off the key.
type Entry struct {
	Key   []byte
	Value []byte
}

// Scan returns every entry in tree in key order.
func (s *Store) Scan(tree string) ([]Entry, error) {
	prefix := append([]byte(tree), treeSeparator)
	start := prefix
	end := prefixUpperBound(prefix)

	it, err := s.db.Iterator(start, end)
	if err != nil {
		return nil, fmt.Errorf("kvstore: scan %s: %w", tree, err)
	}
	defer it.Close()

	var out []Entry
	for ; it.Valid(); it.Next() {
		k := it.Key()
		if !bytes.HasPrefix(k, prefix) {
			continue
		}
		key := make([]byte, len(k)-len(prefix))
		copy(key, k[len(prefix):])
		val := make([]byte, len(it.Value()))
		copy(val, it.Value())
		out = append(out, Entry{Key: key, Value: val})
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("kvstore: scan %s: %w", tree, err)
	}
	return out, nil
}

// prefixUpperBound returns the smallest key that is strictly greater than
// every key with the given prefix, i.e. prefix with its last byte
// incremented (carrying as needed). A nil result means "no upper bound"
// (prefix was all 0xff), which cometbft-db's Iterator accepts as "no end".
func prefixUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
