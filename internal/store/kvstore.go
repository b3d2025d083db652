// Package store persists the block log and account state behind an
// atomic batch-write primitive, and exposes the apply_block mutator that
// is the only way committed blocks reach durable state.
package store

import (
	"errors"
)

// ErrNotFound is returned by Get and by the typed lookups built on it
// when a key is absent.
var ErrNotFound = errors.New("store: key not found")

// KVStore is the minimal durable key-value contract the block/account
// store is built on: an atomic multi-key write, a point read, and a
// prefix scan. BoltKVStore backs it with an embedded database file;
// MemKVStore backs it with an in-memory map for tests.
type KVStore interface {
	// PutBatch writes every (key, value) pair in one atomic transaction.
	PutBatch(items map[string][]byte) error
	// Get returns the value for key, or ErrNotFound.
	Get(key string) ([]byte, error)
	// Scan calls fn for every key with the given prefix, in key order,
	// until fn returns false or the keys are exhausted.
	Scan(prefix string, fn func(key string, value []byte) bool) error
	// Close releases the store's resources.
	Close() error
}
