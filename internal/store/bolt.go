package store

import (
	"fmt"
	"sort"
	"strings"

	"github.com/boltdb/bolt"
)

var bucketName = []byte("kv")

// BoltKVStore is a KVStore backed by an embedded BoltDB file: a
// single-writer, many-readers B+tree with ACID transactions, matching
// the store's "concurrent-readers / single-writer" contract directly at
// the storage-engine level.
type BoltKVStore struct {
	db *bolt.DB
}

// OpenBolt opens (creating if absent) a BoltDB file at path.
func OpenBolt(path string) (*BoltKVStore, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("store: open bolt db %q: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create bucket: %w", err)
	}
	return &BoltKVStore{db: db}, nil
}

// PutBatch writes every pair in one Bolt transaction.
func (s *BoltKVStore) PutBatch(items map[string][]byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		for k, v := range items {
			if err := b.Put([]byte(k), v); err != nil {
				return fmt.Errorf("store: put %q: %w", k, err)
			}
		}
		return nil
	})
}

// Get returns the value for key, or ErrNotFound.
func (s *BoltKVStore) Get(key string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketName).Get([]byte(key))
		if v == nil {
			return ErrNotFound
		}
		out = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Scan walks every key with the given prefix in ascending order.
func (s *BoltKVStore) Scan(prefix string, fn func(key string, value []byte) bool) error {
	return s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketName).Cursor()
		p := []byte(prefix)
		for k, v := c.Seek(p); k != nil && strings.HasPrefix(string(k), prefix); k, v = c.Next() {
			if !fn(string(k), v) {
				break
			}
		}
		return nil
	})
}

// Close closes the underlying database file.
func (s *BoltKVStore) Close() error { return s.db.Close() }

// MemKVStore is an in-memory KVStore for tests: same contract, no
// persistence.
type MemKVStore struct {
	data map[string][]byte
}

// NewMemKVStore returns an empty in-memory store.
func NewMemKVStore() *MemKVStore {
	return &MemKVStore{data: make(map[string][]byte)}
}

func (s *MemKVStore) PutBatch(items map[string][]byte) error {
	for k, v := range items {
		cp := append([]byte(nil), v...)
		s.data[k] = cp
	}
	return nil
}

func (s *MemKVStore) Get(key string) ([]byte, error) {
	v, ok := s.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}

func (s *MemKVStore) Scan(prefix string, fn func(key string, value []byte) bool) error {
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !fn(k, s.data[k]) {
			break
		}
	}
	return nil
}

func (s *MemKVStore) Close() error { return nil }
