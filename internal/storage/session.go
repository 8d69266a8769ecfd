package storage

import (
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/morango-sync/morango/internal/model"
	"github.com/morango-sync/morango/internal/syncerr"
)

// UpsertSyncSession writes (or overwrites) a sync session row.
func (s *BoltStore) UpsertSyncSession(sess *model.SyncSession) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(sess)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketSyncSession).Put([]byte(sess.ID), data)
	})
}

// GetSyncSession fetches a sync session by id.
func (s *BoltStore) GetSyncSession(id string) (*model.SyncSession, error) {
	var sess model.SyncSession
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketSyncSession).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: sync session %s", syncerr.ErrNotFound, id)
		}
		return json.Unmarshal(data, &sess)
	})
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// UpsertTransferSession writes (or overwrites) a transfer session row.
func (s *BoltStore) UpsertTransferSession(ts *model.TransferSession) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putTransferSession(tx, ts)
	})
}

func putTransferSession(tx *bolt.Tx, ts *model.TransferSession) error {
	data, err := json.Marshal(ts)
	if err != nil {
		return err
	}
	return tx.Bucket(bucketTransferSession).Put([]byte(ts.ID), data)
}

// GetTransferSession fetches a transfer session by id.
func (s *BoltStore) GetTransferSession(id string) (*model.TransferSession, error) {
	var ts model.TransferSession
	err := s.db.View(func(tx *bolt.Tx) error {
		found, err := getTransferSession(tx, id)
		if err != nil {
			return err
		}
		ts = *found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &ts, nil
}

func getTransferSession(tx *bolt.Tx, id string) (*model.TransferSession, error) {
	data := tx.Bucket(bucketTransferSession).Get([]byte(id))
	if data == nil {
		return nil, fmt.Errorf("%w: transfer session %s", syncerr.ErrNotFound, id)
	}
	var ts model.TransferSession
	if err := json.Unmarshal(data, &ts); err != nil {
		return nil, err
	}
	return &ts, nil
}

// UpdateTransferSessionState sets the stage/status fields of a transfer
// session and persists the change.
func (s *BoltStore) UpdateTransferSessionState(id string, stage model.Stage, status model.Status) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		ts, err := getTransferSession(tx, id)
		if err != nil {
			return err
		}
		ts.TransferStage = stage
		ts.TransferStageStatus = status
		return putTransferSession(tx, ts)
	})
}
