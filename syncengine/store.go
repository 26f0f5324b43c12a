package syncengine

import (
	"fmt"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketCursors = []byte("cursors")
	bucketQueue   = []byte("queue")
	bucketHistory = []byte("history")
)

// boltStore persists cursors, queue items and de-dup history in a single
// embedded ordered-key store — one bbolt.DB, three buckets. Bbolt buckets
// are byte-sorted, so a Cursor().Seek over the queue bucket yields
// lexicographic key order with no extra sort step.
type boltStore struct {
	db *bolt.DB
}

func openStore(path string) (*boltStore, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open sync store: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketCursors, bucketQueue, bucketHistory} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init sync store buckets: %w", err)
	}
	return &boltStore{db: db}, nil
}

func (s *boltStore) Close() error { return s.db.Close() }

func cursorKey(did, dwnURL string, direction string) []byte {
	return []byte(did + "~" + dwnURL + "~" + direction)
}

func (s *boltStore) getCursor(did, dwnURL, direction string) (string, error) {
	var value string
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketCursors).Get(cursorKey(did, dwnURL, direction))
		if v != nil {
			value = string(v)
		}
		return nil
	})
	return value, err
}

func (s *boltStore) putCursor(did, dwnURL, direction, cursor string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCursors).Put(cursorKey(did, dwnURL, direction), []byte(cursor))
	})
}

// queueKey layers direction in front of the spec's
// did~dwn_url~watermark~message_cid key so a single bucket holds both
// queues while still sorting each direction's items lexicographically
// among themselves.
func queueKey(direction, did, dwnURL, watermark, messageCID string) []byte {
	return []byte(direction + "~" + did + "~" + dwnURL + "~" + watermark + "~" + messageCID)
}

func (s *boltStore) enqueue(direction, did, dwnURL, watermark, messageCID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketQueue).Put(queueKey(direction, did, dwnURL, watermark, messageCID), nil)
	})
}

func (s *boltStore) removeQueueItem(key []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketQueue).Delete(key)
	})
}

// queueItem is one parsed queue key.
type queueItem struct {
	key        []byte
	direction  string
	did        string
	dwnURL     string
	watermark  string
	messageCID string
}

// listQueue returns every item for direction in lexicographic key order
// (bbolt's natural byte order), matching the dispatch algorithm's
// iteration rule.
func (s *boltStore) listQueue(direction string) ([]queueItem, error) {
	var items []queueItem
	prefix := []byte(direction + "~")
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketQueue).Cursor()
		for k, _ := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, _ = c.Next() {
			item, ok := parseQueueKey(k)
			if !ok {
				continue
			}
			items = append(items, item)
		}
		return nil
	})
	return items, err
}

func hasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i := range prefix {
		if b[i] != prefix[i] {
			return false
		}
	}
	return true
}

func parseQueueKey(k []byte) (queueItem, bool) {
	parts := splitTilde(string(k))
	if len(parts) != 5 {
		return queueItem{}, false
	}
	keyCopy := make([]byte, len(k))
	copy(keyCopy, k)
	return queueItem{
		key: keyCopy, direction: parts[0], did: parts[1], dwnURL: parts[2], watermark: parts[3], messageCID: parts[4],
	}, true
}

func splitTilde(s string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '~' {
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	parts = append(parts, s[start:])
	return parts
}

func (s *boltStore) isSynchronized(did, messageCID string) (bool, error) {
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketHistory).Bucket([]byte(did))
		if b == nil {
			return nil
		}
		found = b.Get([]byte(messageCID)) != nil
		return nil
	})
	return found, err
}

func (s *boltStore) recordSynchronized(did, messageCID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.Bucket(bucketHistory).CreateBucketIfNotExists([]byte(did))
		if err != nil {
			return err
		}
		return b.Put([]byte(messageCID), []byte{1})
	})
}
