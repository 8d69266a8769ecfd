package storage

import (
	"bytes"
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/morango-sync/morango/internal/model"
)

// UpsertStoreRecord writes (or overwrites) a store row.
func (s *BoltStore) UpsertStoreRecord(r *model.StoreRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putStoreRecord(tx, r)
	})
}

func putStoreRecord(tx *bolt.Tx, r *model.StoreRecord) error {
	b := tx.Bucket(bucketStore)
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return b.Put([]byte(r.ID), data)
}

// GetStoreRecord fetches a store row by id. Returns (nil, nil) if absent.
func (s *BoltStore) GetStoreRecord(id string) (*model.StoreRecord, error) {
	var r *model.StoreRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		found, err := getStoreRecord(tx, id)
		r = found
		return err
	})
	return r, err
}

func getStoreRecord(tx *bolt.Tx, id string) (*model.StoreRecord, error) {
	b := tx.Bucket(bucketStore)
	data := b.Get([]byte(id))
	if data == nil {
		return nil, nil
	}
	var r model.StoreRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decoding store record %s: %w", id, err)
	}
	return &r, nil
}

// ListStoreRecords returns every store record; QueueIntoBuffer scans it to
// pick the rows to buffer.
func (s *BoltStore) ListStoreRecords() ([]*model.StoreRecord, error) {
	var out []*model.StoreRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketStore)
		return b.ForEach(func(k, v []byte) error {
			var r model.StoreRecord
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			out = append(out, &r)
			return nil
		})
	})
	return out, err
}

// UpsertFromApp absorbs an app-layer modification of a record: bump the
// instance counter, stamp last_saved_instance/counter, clear the dirty bit,
// and upsert the corresponding RMC row. The DMC row for this instance's
// partition advances with the counter — every local write is, trivially,
// already absorbed locally.
func (s *BoltStore) UpsertFromApp(r *model.StoreRecord) error {
	inst, err := s.BumpInstanceCounter()
	if err != nil {
		return fmt.Errorf("bumping instance counter: %w", err)
	}

	r.LastSavedInstance = inst.ID
	r.LastSavedCounter = inst.Counter
	r.DirtyBit = false

	return s.db.Update(func(tx *bolt.Tx) error {
		if err := putStoreRecord(tx, r); err != nil {
			return err
		}
		if err := putRMC(tx, &model.RecordMaxCounter{
			StoreRecordID: r.ID,
			InstanceID:    inst.ID,
			Counter:       inst.Counter,
		}); err != nil {
			return err
		}
		return putDMC(tx, &model.DatabaseMaxCounter{
			InstanceID:      inst.ID,
			PartitionPrefix: r.Partition,
			Counter:         inst.Counter,
		})
	})
}

// --- RecordMaxCounter ---

func rmcKey(storeRecordID, instanceID string) []byte {
	return compoundKey(storeRecordID, instanceID)
}

func putRMC(tx *bolt.Tx, rmc *model.RecordMaxCounter) error {
	b := tx.Bucket(bucketRMC)
	data, err := json.Marshal(rmc)
	if err != nil {
		return err
	}
	return b.Put(rmcKey(rmc.StoreRecordID, rmc.InstanceID), data)
}

// UpsertRMC inserts or overwrites one RecordMaxCounter row.
func (s *BoltStore) UpsertRMC(rmc *model.RecordMaxCounter) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putRMC(tx, rmc)
	})
}

// GetRMC fetches one (store_record_id, instance_id) counter row. Returns
// (nil, nil) if absent.
func (s *BoltStore) GetRMC(storeRecordID, instanceID string) (*model.RecordMaxCounter, error) {
	var rmc *model.RecordMaxCounter
	err := s.db.View(func(tx *bolt.Tx) error {
		found, err := getRMC(tx, storeRecordID, instanceID)
		rmc = found
		return err
	})
	return rmc, err
}

func getRMC(tx *bolt.Tx, storeRecordID, instanceID string) (*model.RecordMaxCounter, error) {
	b := tx.Bucket(bucketRMC)
	data := b.Get(rmcKey(storeRecordID, instanceID))
	if data == nil {
		return nil, nil
	}
	var rmc model.RecordMaxCounter
	if err := json.Unmarshal(data, &rmc); err != nil {
		return nil, err
	}
	return &rmc, nil
}

// ListRMCsForRecord returns every instance's counter row for one store
// record, by scanning the storeRecordID prefix of the compound key space.
func (s *BoltStore) ListRMCsForRecord(storeRecordID string) ([]*model.RecordMaxCounter, error) {
	var out []*model.RecordMaxCounter
	prefix := []byte(storeRecordID + keySep)
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketRMC).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var rmc model.RecordMaxCounter
			if err := json.Unmarshal(v, &rmc); err != nil {
				return err
			}
			out = append(out, &rmc)
		}
		return nil
	})
	return out, err
}

func deleteRMC(tx *bolt.Tx, storeRecordID, instanceID string) error {
	return tx.Bucket(bucketRMC).Delete(rmcKey(storeRecordID, instanceID))
}
