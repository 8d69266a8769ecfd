package storage

import (
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/morango-sync/morango/internal/model"
)

// currentInstanceKey is the single row under which the process-wide
// instance identity lives; there is exactly one instance per process
// lifetime.
var currentInstanceKey = []byte("current")

// CurrentInstance returns the process-wide instance, minting and
// persisting a new one on first use.
func (s *BoltStore) CurrentInstance() (model.Instance, error) {
	s.counterMu.Lock()
	defer s.counterMu.Unlock()

	var inst model.Instance
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketInstance)
		data := b.Get(currentInstanceKey)
		if data != nil {
			return json.Unmarshal(data, &inst)
		}

		inst = model.Instance{ID: model.NewUUIDHex(), Counter: 0}
		data, err := json.Marshal(inst)
		if err != nil {
			return err
		}
		return b.Put(currentInstanceKey, data)
	})
	return inst, err
}

// BumpInstanceCounter atomically increments the current instance's counter
// and returns the resulting pair. Bump is serialized against other bumps by
// counterMu so readers always see a point-in-time snapshot.
func (s *BoltStore) BumpInstanceCounter() (model.Instance, error) {
	s.counterMu.Lock()
	defer s.counterMu.Unlock()

	var inst model.Instance
	err := s.db.Update(func(tx *bolt.Tx) error {
		id, counter, err := bumpInstanceCounterTx(tx)
		inst = model.Instance{ID: id, Counter: counter}
		return err
	})
	return inst, err
}

// bumpInstanceCounterTx performs the bump within an already-open writable
// transaction, used by callers (like the dequeue pipeline) that must bump
// the counter as part of a larger atomic transaction — bbolt allows only
// one writable transaction at a time, so this must never be called from
// within a nested db.Update.
func bumpInstanceCounterTx(tx *bolt.Tx) (string, uint64, error) {
	b := tx.Bucket(bucketInstance)
	var inst model.Instance
	data := b.Get(currentInstanceKey)
	if data == nil {
		inst = model.Instance{ID: model.NewUUIDHex(), Counter: 0}
	} else if err := json.Unmarshal(data, &inst); err != nil {
		return "", 0, fmt.Errorf("decoding current instance: %w", err)
	}

	inst.Counter++
	encoded, err := json.Marshal(inst)
	if err != nil {
		return "", 0, err
	}
	if err := b.Put(currentInstanceKey, encoded); err != nil {
		return "", 0, err
	}
	return inst.ID, inst.Counter, nil
}
