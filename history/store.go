// Package history keeps a local record of finished conversions.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	pebble "github.com/cockroachdb/pebble"
)

// Record statuses.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Record describes one finished conversion
type Record struct {
	Key          string        `json:"key"`
	Title        string        `json:"title"`
	SourceFormat string        `json:"source_format"`
	OutputFormat string        `json:"output_format"`
	SourceURL    string        `json:"source_url,omitempty"`
	ResultURL    string        `json:"result_url,omitempty"`
	Status       string        `json:"status"`
	Error        string        `json:"error,omitempty"`
	Size         int           `json:"size"`
	Duration     time.Duration `json:"duration"`
	Timestamp    time.Time     `json:"timestamp"`
}

var db *pebble.DB

// Init opens the history store at dbPath
func Init(dbPath string) error {
	var err error
	db, err = pebble.Open(dbPath, &pebble.Options{})
	if err != nil {
		return fmt.Errorf("failed to open history store: %w", err)
	}
	return nil
}

// Close closes the history store
func Close() error {
	if db == nil {
		return nil
	}
	err := db.Close()
	db = nil
	return err
}

// Store writes rec under its key. A zero timestamp is set to now.
func Store(rec Record) error {
	if db == nil {
		return fmt.Errorf("history store not initialized")
	}
	if rec.Key == "" {
		return fmt.Errorf("history record has no key")
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal history record: %w", err)
	}
	return db.Set([]byte(rec.Key), data, pebble.Sync)
}

// Get retrieves a record by job key. A missing key returns nil, nil.
func Get(key string) (*Record, error) {
	if db == nil {
		return nil, fmt.Errorf("history store not initialized")
	}

	data, closer, err := db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	defer closer.Close()

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal history record: %w", err)
	}
	return &rec, nil
}

// Delete removes a record
func Delete(key string) error {
	if db == nil {
		return fmt.Errorf("history store not initialized")
	}
	return db.Delete([]byte(key), pebble.Sync)
}

// List returns all records, newest first.
func List() ([]Record, error) {
	if db == nil {
		return nil, fmt.Errorf("history store not initialized")
	}

	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var records []Record
	for iter.First(); iter.Valid(); iter.Next() {
		var rec Record
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			continue // Skip invalid records
		}
		records = append(records, rec)
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp.After(records[j].Timestamp)
	})
	return records, nil
}

// CleanupOldRecords removes records older than maxAge and reports how many
// were deleted.
func CleanupOldRecords(maxAge time.Duration) (int, error) {
	if db == nil {
		return 0, fmt.Errorf("history store not initialized")
	}

	cutoff := time.Now().Add(-maxAge)
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return 0, err
	}

	var keysToDelete [][]byte
	for iter.First(); iter.Valid(); iter.Next() {
		var rec Record
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			continue
		}
		if rec.Timestamp.Before(cutoff) {
			key := make([]byte, len(iter.Key()))
			copy(key, iter.Key())
			keysToDelete = append(keysToDelete, key)
		}
	}
	if err := iter.Close(); err != nil {
		return 0, err
	}

	batch := db.NewBatch()
	defer batch.Close()
	for _, key := range keysToDelete {
		if err := batch.Delete(key, nil); err != nil {
			return 0, fmt.Errorf("failed to delete old history record: %w", err)
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return 0, fmt.Errorf("failed to delete old history records: %w", err)
	}
	return len(keysToDelete), nil
}

// CheckHealth performs a basic health check on the history database
func CheckHealth() error {
	if db == nil {
		return fmt.Errorf("history database not initialized")
	}

	_, closer, err := db.Get([]byte("__health_check__"))
	if err != nil && !errors.Is(err, pebble.ErrNotFound) {
		return fmt.Errorf("database health check failed: %w", err)
	}
	if closer != nil {
		closer.Close()
	}
	return nil
}
