package storage

import (
	"bytes"
	"encoding/json"

	bolt "go.etcd.io/bbolt"

	"github.com/morango-sync/morango/internal/fsic"
	"github.com/morango-sync/morango/internal/model"
	"github.com/morango-sync/morango/internal/syncmetrics"
)

func bufferKey(transferSessionID, modelUUID string) []byte {
	return compoundKey(transferSessionID, modelUUID)
}

func rmcBufferKey(transferSessionID, modelUUID, instanceID string) []byte {
	return compoundKey(transferSessionID, modelUUID, instanceID)
}

func putBuffer(tx *bolt.Tx, buf *model.Buffer) error {
	data, err := json.Marshal(buf)
	if err != nil {
		return err
	}
	return tx.Bucket(bucketBuffer).Put(bufferKey(buf.TransferSessionID, buf.ModelUUID), data)
}

func putRMCBuffer(tx *bolt.Tx, rb *model.RMCBuffer) error {
	data, err := json.Marshal(rb)
	if err != nil {
		return err
	}
	return tx.Bucket(bucketRMCBuffer).Put(rmcBufferKey(rb.TransferSessionID, rb.ModelUUID, rb.InstanceID), data)
}

// ListBufferForSession returns every Buffer row scoped to one transfer
// session, by prefix-scanning the compound key space.
func (s *BoltStore) ListBufferForSession(transferSessionID string) ([]*model.Buffer, error) {
	var out []*model.Buffer
	prefix := []byte(transferSessionID + keySep)
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketBuffer).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var buf model.Buffer
			if err := json.Unmarshal(v, &buf); err != nil {
				return err
			}
			out = append(out, &buf)
		}
		return nil
	})
	return out, err
}

// ListRMCBufferForModel returns every RMCBuffer row for one (transfer
// session, model) pair.
func (s *BoltStore) ListRMCBufferForModel(transferSessionID, modelUUID string) ([]*model.RMCBuffer, error) {
	var out []*model.RMCBuffer
	prefix := []byte(transferSessionID + keySep + modelUUID + keySep)
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketRMCBuffer).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var rb model.RMCBuffer
			if err := json.Unmarshal(v, &rb); err != nil {
				return err
			}
			out = append(out, &rb)
		}
		return nil
	})
	return out, err
}

// QueueIntoBuffer is the sending half of the transfer: it copies every
// matching (Store, RMC) row into (Buffer, RMCBuffer) tagged with the
// transfer session's id, and sets records_total to the count of buffered
// rows. The transfer direction decides which side's FSIC plays the sender
// role in the diff: the client's on a push, the server's on a pull.
func (s *BoltStore) QueueIntoBuffer(ts *model.TransferSession) error {
	sender, recipient := fsic.FSIC(ts.ClientFSIC), fsic.FSIC(ts.ServerFSIC)
	if !ts.Push {
		sender, recipient = recipient, sender
	}
	floor := fsic.Diff(sender, recipient)
	filter := ts.FilterList()

	syncSession, err := s.GetSyncSession(ts.SyncSessionID)
	if err != nil {
		return err
	}
	profile := syncSession.Profile

	records, err := s.ListStoreRecords()
	if err != nil {
		return err
	}

	queued := 0
	err = s.db.Update(func(tx *bolt.Tx) error {
		for _, r := range records {
			rmcs, err := listRMCsTx(tx, r.ID)
			if err != nil {
				return err
			}
			if !fsic.RecordQueues(r.Profile, profile, r.Partition, filter, rmcs, floor) {
				continue
			}

			buf := &model.Buffer{
				TransferSessionID:         ts.ID,
				ModelUUID:                 r.ID,
				Serialized:                r.Serialized,
				Deleted:                   r.Deleted,
				HardDeleted:               r.HardDeleted,
				LastSavedInstance:         r.LastSavedInstance,
				LastSavedCounter:          r.LastSavedCounter,
				Profile:                   r.Profile,
				Partition:                 r.Partition,
				ConflictingSerializedData: r.ConflictingSerializedData,
			}
			if err := putBuffer(tx, buf); err != nil {
				return err
			}
			for _, rmc := range rmcs {
				rb := &model.RMCBuffer{
					TransferSessionID: ts.ID,
					ModelUUID:         rmc.StoreRecordID,
					InstanceID:        rmc.InstanceID,
					Counter:           rmc.Counter,
				}
				if err := putRMCBuffer(tx, rb); err != nil {
					return err
				}
			}
			queued++
		}
		return nil
	})
	if err != nil {
		return err
	}

	syncmetrics.RecordsQueued.Add(float64(queued))
	ts.RecordsTotal = queued
	return s.UpsertTransferSession(ts)
}
