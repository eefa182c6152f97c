package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

const visitedBucket = "visited"

// boltStore implements Store backed by BoltDB. Unlike the file log it does
// not keep an in-memory mirror; lookups go through bolt's mmap'd pages.
type boltStore struct {
	db *bolt.DB
}

// openBolt initializes a BoltDB-backed Store.
func openBolt(path string) (Store, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt db: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(visitedBucket))
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("init bucket: %w", err)
	}

	return &boltStore{db: db}, nil
}

// Close closes the BoltDB store.
func (b *boltStore) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

// Seen checks whether the listing id has already been committed.
func (b *boltStore) Seen(id string) (bool, error) {
	if b == nil || b.db == nil {
		return false, nil
	}

	var exists bool
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(visitedBucket))
		if bucket == nil {
			return fmt.Errorf("visited bucket missing")
		}
		exists = bucket.Get([]byte(id)) != nil
		return nil
	})
	return exists, err
}

// MarkBatch records the ids as committed in a single transaction.
func (b *boltStore) MarkBatch(ids []string) error {
	if b == nil || b.db == nil || len(ids) == 0 {
		return nil
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(visitedBucket))
		if bucket == nil {
			return fmt.Errorf("visited bucket missing")
		}
		for _, id := range ids {
			if id == "" {
				continue
			}
			if err := bucket.Put([]byte(id), []byte{1}); err != nil {
				return err
			}
		}
		return nil
	})
}

// Len reports the number of stored ids.
func (b *boltStore) Len() int {
	if b == nil || b.db == nil {
		return 0
	}
	count := 0
	_ = b.db.View(func(tx *bolt.Tx) error {
		if bucket := tx.Bucket([]byte(visitedBucket)); bucket != nil {
			count = bucket.Stats().KeyN
		}
		return nil
	})
	return count
}
