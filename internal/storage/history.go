// Package storage persists finished run reports so runs can be compared
// and re-exported later.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"oidbs/internal/metrics"
)

const (
	BucketRuns = "runs"

	maxHistory = 100
)

type HistoryItem struct {
	ID      string          `json:"id"`
	SavedAt time.Time       `json:"saved_at"`
	Report  *metrics.Report `json:"report"`
}

type Store struct {
	db   *bbolt.DB
	path string
}

// Open opens (or creates) the history database at path. An empty path
// defaults to ~/.oidbs/history.db.
func Open(path string) (*Store, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(home, ".oidbs", "history.db")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(BucketRuns))
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, path: path}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Save stores the report keyed by start time so cursor order is
// chronological, and prunes the bucket to the retention limit.
func (s *Store) Save(item HistoryItem) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(BucketRuns))

		key := historyKey(item.Report.StartedAt, item.ID)
		data, err := json.Marshal(item)
		if err != nil {
			return err
		}
		if err := b.Put(key, data); err != nil {
			return err
		}

		// Prune oldest entries past the cap.
		n := 0
		c := b.Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			n++
		}
		for ; n > maxHistory; n-- {
			k, _ := b.Cursor().First()
			if k == nil {
				break
			}
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// List returns saved runs newest-first.
func (s *Store) List() []HistoryItem {
	var items []HistoryItem

	s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(BucketRuns))
		c := b.Cursor()

		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var item HistoryItem
			if err := json.Unmarshal(v, &item); err == nil {
				items = append(items, item)
			}
		}
		return nil
	})

	return items
}

func (s *Store) Get(id string) (*HistoryItem, error) {
	var item *HistoryItem
	s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(BucketRuns))
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if strings.HasSuffix(string(k), "-"+id) {
				var it HistoryItem
				if err := json.Unmarshal(v, &it); err != nil {
					return err
				}
				item = &it
				return nil
			}
		}
		return nil
	})
	if item == nil {
		return nil, fmt.Errorf("run %s not found", id)
	}
	return item, nil
}

func historyKey(startedAt time.Time, id string) []byte {
	return []byte(fmt.Sprintf("%020d-%s", startedAt.UnixNano(), id))
}
