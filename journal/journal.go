// Package journal persists the ledger's event stream in a bbolt file so
// indexers can replay events that have aged out of the in-memory backlog.
package journal

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"twitt3r/core"
)

var bucketEvents = []byte("events")

// Store is a durable, append-only event journal keyed by sequence number.
type Store struct {
	db *bolt.DB
}

// Open initialises (and migrates) the bbolt-backed journal.
func Open(path string, options *bolt.Options) (*Store, error) {
	if options == nil {
		options = &bolt.Options{Timeout: time.Second}
	} else if options.Timeout == 0 {
		options.Timeout = time.Second
	}
	db, err := bolt.Open(path, 0o600, options)
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketEvents)
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func sequenceKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}

// Append stores one sequenced event. Sequences must be strictly increasing;
// the ledger guarantees that.
func (s *Store) Append(evt core.StreamEvent) error {
	encoded, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("journal: encode event %d: %w", evt.Sequence, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEvents).Put(sequenceKey(evt.Sequence), encoded)
	})
}

// ReadAfter returns up to limit events with sequence strictly greater than
// seq, in order.
func (s *Store) ReadAfter(seq uint64, limit int) ([]core.StreamEvent, error) {
	var out []core.StreamEvent
	err := s.db.View(func(tx *bolt.Tx) error {
		cursor := tx.Bucket(bucketEvents).Cursor()
		for k, v := cursor.Seek(sequenceKey(seq + 1)); k != nil; k, v = cursor.Next() {
			var evt core.StreamEvent
			if err := json.Unmarshal(v, &evt); err != nil {
				return fmt.Errorf("journal: decode event: %w", err)
			}
			out = append(out, evt)
			if limit > 0 && len(out) >= limit {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// LastSequence returns the highest stored sequence, or zero when empty.
func (s *Store) LastSequence() (uint64, error) {
	var last uint64
	err := s.db.View(func(tx *bolt.Tx) error {
		k, _ := tx.Bucket(bucketEvents).Cursor().Last()
		if k != nil {
			last = binary.BigEndian.Uint64(k)
		}
		return nil
	})
	return last, err
}
