// Package store persists flagged queries from the live path so that
// findings survive restarts and can be reviewed later. The store is a
// single-file bbolt database keyed by observation time, which makes
// "most recent findings" a reverse cursor walk.
package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	bbolt "go.etcd.io/bbolt"
)

var (
	bucketFlagged = []byte("flagged")
	bucketState   = []byte("state")
)

// Flagged is one suspicious query recorded by the live path.
type Flagged struct {
	ID         uuid.UUID `json:"id"`
	QName      string    `json:"qname"`
	Verdict    string    `json:"verdict"`
	Confidence float64   `json:"confidence"`
	Score      float64   `json:"score"`
	ObservedAt time.Time `json:"observed_at"`
	Source     string    `json:"source"`
}

// Store is a bbolt-backed record of flagged queries.
type Store struct {
	db *bbolt.DB
}

// Open opens (or creates) the database at path and ensures the bucket
// exists.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening flag store: %w", err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketFlagged); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketState)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// keyLayout is fixed-width so keys sort chronologically byte-wise;
// RFC3339Nano would trim trailing zeros and break the ordering.
const keyLayout = "2006-01-02T15:04:05.000000000"

// key orders records by observation time; the UUID suffix keeps two
// findings in the same nanosecond from colliding.
func key(f Flagged) []byte {
	return []byte(f.ObservedAt.UTC().Format(keyLayout) + "|" + f.ID.String())
}

// Put records one flagged query. A zero ID is assigned.
func (s *Store) Put(f Flagged) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	if f.ObservedAt.IsZero() {
		f.ObservedAt = time.Now()
	}
	buf, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encoding flagged query: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketFlagged).Put(key(f), buf)
	})
}

// Recent returns up to limit findings, newest first.
func (s *Store) Recent(limit int) ([]Flagged, error) {
	if limit <= 0 {
		return nil, nil
	}
	var out []Flagged
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketFlagged).Cursor()
		for k, v := c.Last(); k != nil && len(out) < limit; k, v = c.Prev() {
			var f Flagged
			if err := json.Unmarshal(v, &f); err != nil {
				return fmt.Errorf("decoding flagged query %q: %w", k, err)
			}
			out = append(out, f)
		}
		return nil
	})
	return out, err
}

// SaveOffset checkpoints the tail offset for a query log so a restart
// resumes where the previous run stopped.
func (s *Store) SaveOffset(logPath string, offset int64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(offset))
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketState).Put(offsetKey(logPath), buf)
	})
}

// Offset returns the checkpointed tail offset for a query log, or zero
// when none was saved.
func (s *Store) Offset(logPath string) (int64, error) {
	var off int64
	err := s.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(bucketState).Get(offsetKey(logPath)); len(v) == 8 {
			off = int64(binary.BigEndian.Uint64(v))
		}
		return nil
	})
	return off, err
}

func offsetKey(logPath string) []byte {
	return []byte("offset|" + logPath)
}

// Count returns the number of stored findings.
func (s *Store) Count() (int, error) {
	var n int
	err := s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketFlagged).Stats().KeyN
		return nil
	})
	return n, err
}
