// snapshot.go - historical pool stats persistence
package snapshot

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/id-pointer/id-pointer-pool-go/internal/pool"
)

var statsBucket = []byte("pool_stats")

// Record is one timestamped sample of every endpoint's Stats, as
// written by Store and read back by Recent.
type Record struct {
	Timestamp time.Time               `json:"timestamp"`
	Pools     map[string]pool.Stats   `json:"pools"`
}

// Store persists periodic PoolMap snapshots to a bbolt database, keyed
// by timestamp, trimming to Retain most recent records on every write.
type Store struct {
	db     *bbolt.DB
	retain int
}

// Open opens (creating if absent) the bbolt database at path.
func Open(path string, retain int) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(statsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	if retain <= 0 {
		retain = 288
	}
	return &Store{db: db, retain: retain}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Store writes one Record, keyed by its timestamp, and trims the
// bucket down to the most recent s.retain records.
func (s *Store) Store(snap map[pool.Endpoint]pool.Stats) error {
	rec := Record{
		Timestamp: time.Now(),
		Pools:     make(map[string]pool.Stats, len(snap)),
	}
	for ep, stats := range snap {
		rec.Pools[ep.String()] = stats
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(statsBucket)
		if err := b.Put(timeKey(rec.Timestamp), data); err != nil {
			return err
		}
		return trimOldest(b, s.retain)
	})
}

// Recent returns up to n most recent records, newest first.
func (s *Store) Recent(n int) ([]Record, error) {
	var out []Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(statsBucket)
		c := b.Cursor()
		for k, v := c.Last(); k != nil && len(out) < n; k, v = c.Prev() {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			out = append(out, rec)
		}
		return nil
	})
	return out, err
}

// timeKey renders t as a big-endian nanosecond timestamp so bbolt's
// byte-order key iteration matches chronological order.
func timeKey(t time.Time) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(t.UnixNano()))
	return buf
}

// trimOldest deletes the oldest entries in b until at most retain
// remain. Must run inside an Update transaction.
func trimOldest(b *bbolt.Bucket, retain int) error {
	// Count with a cursor: it sees keys written earlier in this
	// transaction, which Bucket.Stats does not.
	var keys [][]byte
	c := b.Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		keys = append(keys, append([]byte(nil), k...))
	}
	if len(keys) <= retain {
		return nil
	}
	for _, k := range keys[:len(keys)-retain] {
		if err := b.Delete(k); err != nil {
			return err
		}
	}
	return nil
}
