package storage

import (
	"bytes"

	bolt "go.etcd.io/bbolt"

	"github.com/morango-sync/morango/internal/model"
	"github.com/morango-sync/morango/internal/syncerr"
	"github.com/morango-sync/morango/internal/syncmetrics"
)

// DequeueIntoStore merges a transfer session's buffered rows into the
// durable Store/RMC tables inside a single database transaction. Every
// step commits or rolls back together.
//
// Buffer rows are keyed uniquely by (transfer_session_id, model_uuid), so
// a second row queued for the same model overwrites the first and the last
// write wins.
func (s *BoltStore) DequeueIntoStore(transferSessionID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bufRows, err := listBufferTx(tx, transferSessionID)
		if err != nil {
			return err
		}

		transferred := 0
		for _, buf := range bufRows {
			if err := dequeueOneModel(tx, transferSessionID, buf); err != nil {
				return err
			}
			transferred++
		}

		if err := purgeBufferTx(tx, transferSessionID); err != nil {
			return err
		}

		ts, err := getTransferSession(tx, transferSessionID)
		if err != nil {
			return err
		}
		ts.RecordsTransferred = transferred
		return putTransferSession(tx, ts)
	})
}

func dequeueOneModel(tx *bolt.Tx, transferSessionID string, buf *model.Buffer) error {
	timer := syncmetrics.NewTimer()
	defer timer.ObserveDurationVec(syncmetrics.DequeueStepDuration, "dequeue_model")

	modelUUID := buf.ModelUUID

	localRMCs, err := listRMCsTx(tx, modelUUID)
	if err != nil {
		return err
	}
	localByInstance := map[string]uint64{}
	for _, rmc := range localRMCs {
		localByInstance[rmc.InstanceID] = rmc.Counter
	}

	rmcBufRows, err := listRMCBufferTx(tx, transferSessionID, modelUUID)
	if err != nil {
		return err
	}

	// Step 1: delete superseded RMCBuffers (incoming data already known).
	incomingByInstance := map[string]uint64{}
	var remaining []*model.RMCBuffer
	for _, rb := range rmcBufRows {
		incomingByInstance[rb.InstanceID] = rb.Counter
		if localCounter, ok := localByInstance[rb.InstanceID]; ok && localCounter >= rb.Counter {
			if err := tx.Bucket(bucketRMCBuffer).Delete(rmcBufferKey(transferSessionID, modelUUID, rb.InstanceID)); err != nil {
				return err
			}
			continue
		}
		remaining = append(remaining, rb)
	}

	// Step 2: delete the whole Buffer row if none of its remaining
	// RMCBuffer rows exceed the corresponding local RMC.
	anyExceeds := false
	for _, rb := range remaining {
		if localCounter, ok := localByInstance[rb.InstanceID]; !ok || rb.Counter > localCounter {
			anyExceeds = true
			break
		}
	}
	if !anyExceeds {
		if err := tx.Bucket(bucketBuffer).Delete(bufferKey(transferSessionID, modelUUID)); err != nil {
			return err
		}
		for _, rb := range remaining {
			if err := tx.Bucket(bucketRMCBuffer).Delete(rmcBufferKey(transferSessionID, modelUUID, rb.InstanceID)); err != nil {
				return err
			}
		}
		return nil
	}

	// Step 3: merge-conflict RMCB — where both RMC and RMCBuffer exist for
	// an instance, the buffer row carries the combined (max) knowledge.
	remainingByInstance := map[string]uint64{}
	for _, rb := range remaining {
		c := rb.Counter
		if localCounter, ok := localByInstance[rb.InstanceID]; ok && localCounter > c {
			c = localCounter
		}
		remainingByInstance[rb.InstanceID] = c
		if c != rb.Counter {
			rb.Counter = c
			if err := putRMCBuffer(tx, rb); err != nil {
				return err
			}
		}
	}

	bufferDominatesLocal := true
	for instance, counter := range localByInstance {
		if c, ok := incomingByInstance[instance]; !ok || c < counter {
			bufferDominatesLocal = false
			break
		}
	}
	localDominatesBuffer := true
	for instance, counter := range remainingByInstance {
		if c, ok := localByInstance[instance]; !ok || c < counter {
			localDominatesBuffer = false
			break
		}
	}

	switch {
	case localDominatesBuffer && !bufferDominatesLocal:
		// Fully superseded once per-instance knowledge is combined.
		if err := tx.Bucket(bucketBuffer).Delete(bufferKey(transferSessionID, modelUUID)); err != nil {
			return err
		}
		for instance := range remainingByInstance {
			if err := tx.Bucket(bucketRMCBuffer).Delete(rmcBufferKey(transferSessionID, modelUUID, instance)); err != nil {
				return err
			}
		}
		return nil

	case bufferDominatesLocal:
		// Step 7 (this model's share): strict fast-forward. The buffer
		// row becomes the new Store row verbatim; its RMCBuffer rows
		// become RMC rows.
		newRecord := &model.StoreRecord{
			ID:                        modelUUID,
			Partition:                 buf.Partition,
			Profile:                   buf.Profile,
			Serialized:                buf.Serialized,
			LastSavedInstance:         buf.LastSavedInstance,
			LastSavedCounter:          buf.LastSavedCounter,
			ConflictingSerializedData: buf.ConflictingSerializedData,
			Deleted:                   buf.Deleted,
			HardDeleted:               buf.HardDeleted,
		}
		if err := putStoreRecord(tx, newRecord); err != nil {
			return err
		}
		for instance, counter := range remainingByInstance {
			if err := putRMC(tx, &model.RecordMaxCounter{StoreRecordID: modelUUID, InstanceID: instance, Counter: counter}); err != nil {
				return err
			}
		}
		syncmetrics.RecordsDequeued.Inc()

	default:
		// Step 4/5: genuine conflict — neither side fully dominates.
		existing, err := getStoreRecord(tx, modelUUID)
		if err != nil {
			return err
		}
		if existing == nil {
			return syncerr.ErrIntegrity
		}

		newInstance, newCounter, err := bumpInstanceCounterTx(tx)
		if err != nil {
			return err
		}

		merged := *existing
		merged.ConflictingSerializedData = buf.Serialized + "\n" + existing.Serialized
		merged.Serialized = buf.Serialized
		merged.Deleted = buf.Deleted || existing.Deleted
		merged.LastSavedInstance = newInstance
		merged.LastSavedCounter = newCounter
		if buf.HardDeleted && existing.HardDeleted {
			merged.Serialized = ""
			merged.ConflictingSerializedData = ""
		}
		merged.HardDeleted = buf.HardDeleted || existing.HardDeleted

		if err := putStoreRecord(tx, &merged); err != nil {
			return err
		}
		// Step 5: rewrite the "last saved by" RMC for the new version,
		// and fold the combined per-instance knowledge from step 3 into
		// the durable RMC table before the buffer rows are purged.
		if err := putRMC(tx, &model.RecordMaxCounter{StoreRecordID: modelUUID, InstanceID: newInstance, Counter: newCounter}); err != nil {
			return err
		}
		for instance, counter := range remainingByInstance {
			if err := putRMC(tx, &model.RecordMaxCounter{StoreRecordID: modelUUID, InstanceID: instance, Counter: counter}); err != nil {
				return err
			}
		}
		syncmetrics.RecordsDequeued.Inc()
	}

	// Step 6: delete the buffer rows handled above.
	if err := tx.Bucket(bucketBuffer).Delete(bufferKey(transferSessionID, modelUUID)); err != nil {
		return err
	}
	for instance := range remainingByInstance {
		if err := tx.Bucket(bucketRMCBuffer).Delete(rmcBufferKey(transferSessionID, modelUUID, instance)); err != nil {
			return err
		}
	}
	return nil
}

func listBufferTx(tx *bolt.Tx, transferSessionID string) ([]*model.Buffer, error) {
	var out []*model.Buffer
	prefix := []byte(transferSessionID + keySep)
	c := tx.Bucket(bucketBuffer).Cursor()
	for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		var buf model.Buffer
		if err := jsonUnmarshal(v, &buf); err != nil {
			return nil, err
		}
		out = append(out, &buf)
	}
	return out, nil
}

func listRMCsTx(tx *bolt.Tx, storeRecordID string) ([]*model.RecordMaxCounter, error) {
	var out []*model.RecordMaxCounter
	prefix := []byte(storeRecordID + keySep)
	c := tx.Bucket(bucketRMC).Cursor()
	for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		var rmc model.RecordMaxCounter
		if err := jsonUnmarshal(v, &rmc); err != nil {
			return nil, err
		}
		out = append(out, &rmc)
	}
	return out, nil
}

func listRMCBufferTx(tx *bolt.Tx, transferSessionID, modelUUID string) ([]*model.RMCBuffer, error) {
	var out []*model.RMCBuffer
	prefix := []byte(transferSessionID + keySep + modelUUID + keySep)
	c := tx.Bucket(bucketRMCBuffer).Cursor()
	for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		var rb model.RMCBuffer
		if err := jsonUnmarshal(v, &rb); err != nil {
			return nil, err
		}
		out = append(out, &rb)
	}
	return out, nil
}

// PurgeBuffer discards any Buffer/RMCBuffer rows still tagged with the
// transfer session. Cleanup runs it on the sending side, where exported
// rows are never dequeued locally; no buffer row outlives its session.
func (s *BoltStore) PurgeBuffer(transferSessionID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return purgeBufferTx(tx, transferSessionID)
	})
}

func purgeBufferTx(tx *bolt.Tx, transferSessionID string) error {
	prefix := []byte(transferSessionID + keySep)

	bufC := tx.Bucket(bucketBuffer).Cursor()
	var bufKeys [][]byte
	for k, _ := bufC.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = bufC.Next() {
		bufKeys = append(bufKeys, append([]byte(nil), k...))
	}
	for _, k := range bufKeys {
		if err := tx.Bucket(bucketBuffer).Delete(k); err != nil {
			return err
		}
	}

	rmcbC := tx.Bucket(bucketRMCBuffer).Cursor()
	var rmcbKeys [][]byte
	for k, _ := rmcbC.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = rmcbC.Next() {
		rmcbKeys = append(rmcbKeys, append([]byte(nil), k...))
	}
	for _, k := range rmcbKeys {
		if err := tx.Bucket(bucketRMCBuffer).Delete(k); err != nil {
			return err
		}
	}
	return nil
}
