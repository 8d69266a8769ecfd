// Package storage is the bbolt-backed persistence layer for the sync
// engine: the instance/counter registry, the durable Store/RMC/DMC tables,
// SyncSession/TransferSession bookkeeping, and the transient per-transfer
// Buffer/RMCBuffer tables.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	bolt "go.etcd.io/bbolt"
)

// jsonUnmarshal is a thin alias kept local to this package so the dequeue
// pipeline's tight transaction loops read a little less noisily.
func jsonUnmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

var (
	bucketInstance        = []byte("instance")
	bucketStore           = []byte("store")
	bucketRMC             = []byte("record_max_counter")
	bucketDMC             = []byte("database_max_counter")
	bucketSyncSession     = []byte("sync_session")
	bucketTransferSession = []byte("transfer_session")
	bucketBuffer          = []byte("buffer")
	bucketRMCBuffer       = []byte("record_max_counter_buffer")
)

// keySep separates compound-key components. UUID hex and partition strings
// never contain it.
const keySep = "\x1f"

func compoundKey(parts ...string) []byte {
	out := parts[0]
	for _, p := range parts[1:] {
		out += keySep + p
	}
	return []byte(out)
}

// BoltStore implements the sync engine's durable state using a single
// embedded BoltDB database file.
type BoltStore struct {
	db *bolt.DB

	// counterMu serializes instance counter bumps against each other,
	// independent of the bbolt transaction lock, so `current()` snapshots
	// never interleave with a bump's read-modify-write.
	counterMu sync.Mutex
}

// NewBoltStore opens (creating if absent) the database file under dataDir.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating data dir %s: %w", dataDir, err)
	}
	dbPath := filepath.Join(dataDir, "morango.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketInstance,
			bucketStore,
			bucketRMC,
			bucketDMC,
			bucketSyncSession,
			bucketTransferSession,
			bucketBuffer,
			bucketRMCBuffer,
		}
		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
