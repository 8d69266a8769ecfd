package storage

import (
	"bytes"
	"encoding/json"

	bolt "go.etcd.io/bbolt"

	"github.com/morango-sync/morango/internal/fsic"
	"github.com/morango-sync/morango/internal/model"
)

func dmcKey(instanceID, partitionPrefix string) []byte {
	return compoundKey(instanceID, partitionPrefix)
}

func putDMC(tx *bolt.Tx, dmc *model.DatabaseMaxCounter) error {
	data, err := json.Marshal(dmc)
	if err != nil {
		return err
	}
	return tx.Bucket(bucketDMC).Put(dmcKey(dmc.InstanceID, dmc.PartitionPrefix), data)
}

// UpsertDMC inserts or overwrites one DatabaseMaxCounter (FSIC) row.
func (s *BoltStore) UpsertDMC(dmc *model.DatabaseMaxCounter) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putDMC(tx, dmc)
	})
}

// ComputeFSIC derives this side's FSIC from the local DMC table scoped to
// filter, the digest each peer hands the other ahead of queuing.
func (s *BoltStore) ComputeFSIC(filter model.Filter) (map[string]uint64, error) {
	rows, err := s.ListDMCs()
	if err != nil {
		return nil, err
	}
	return fsic.Compute(rows, filter), nil
}

// UpdateFSICs absorbs a peer's FSIC into the local DMC table: for each
// (instance, counter) pair and each prefix scoping the transfer, the DMC
// row is raised to the incoming counter if it was lower. An empty filter
// records the counters under the root (empty) prefix. Raising a DMC is
// only valid once every buffered record at or below these counters has
// been merged, so callers run this after dequeue has committed.
func (s *BoltStore) UpdateFSICs(counters map[string]uint64, filter model.Filter) error {
	prefixes := []string(filter)
	if len(prefixes) == 0 {
		prefixes = []string{""}
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDMC)
		for instanceID, counter := range counters {
			for _, prefix := range prefixes {
				key := dmcKey(instanceID, prefix)
				row := model.DatabaseMaxCounter{InstanceID: instanceID, PartitionPrefix: prefix, Counter: counter}
				if data := b.Get(key); data != nil {
					var existing model.DatabaseMaxCounter
					if err := json.Unmarshal(data, &existing); err != nil {
						return err
					}
					if existing.Counter >= counter {
						continue
					}
				}
				data, err := json.Marshal(row)
				if err != nil {
					return err
				}
				if err := b.Put(key, data); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// ListDMCsForInstance returns every partition-prefix counter row for one
// instance.
func (s *BoltStore) ListDMCsForInstance(instanceID string) ([]*model.DatabaseMaxCounter, error) {
	var out []*model.DatabaseMaxCounter
	prefix := []byte(instanceID + keySep)
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketDMC).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var dmc model.DatabaseMaxCounter
			if err := json.Unmarshal(v, &dmc); err != nil {
				return err
			}
			out = append(out, &dmc)
		}
		return nil
	})
	return out, err
}

// ListDMCs returns every DMC row, across all instances.
func (s *BoltStore) ListDMCs() ([]*model.DatabaseMaxCounter, error) {
	var out []*model.DatabaseMaxCounter
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDMC).ForEach(func(k, v []byte) error {
			var dmc model.DatabaseMaxCounter
			if err := json.Unmarshal(v, &dmc); err != nil {
				return err
			}
			out = append(out, &dmc)
			return nil
		})
	})
	return out, err
}
