package vault

import (
	"context"
	"fmt"

	bolt "go.etcd.io/bbolt"
)

var bucketVault = []byte("vault")

// BoltStore persists the vault's envelope and state metadata in a single
// bbolt bucket, the on-disk counterpart to MemoryStore. One file backs
// one agent's vault.
type BoltStore struct {
	db *bolt.DB
}

// OpenBoltStore opens (creating if absent) the bbolt file at path.
func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open vault store: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketVault)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init vault bucket: %w", err)
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error { return s.db.Close() }

func (s *BoltStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketVault).Get([]byte(key))
		if v != nil {
			value = make([]byte, len(v))
			copy(value, v)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return value, value != nil, nil
}

func (s *BoltStore) Put(ctx context.Context, key string, value []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketVault).Put([]byte(key), value)
	})
}
