package storage

import (
	bolt "go.etcd.io/bbolt"

	"github.com/morango-sync/morango/internal/model"
	"github.com/morango-sync/morango/internal/transport"
)

// ExportBufferChunks reads every Buffer/RMCBuffer row for a transfer
// session and shapes them into wire chunks, for the sending side of
// TRANSFERRING to push over a SyncConnection.
func (s *BoltStore) ExportBufferChunks(transferSessionID string) ([]transport.BufferChunk, error) {
	bufRows, err := s.ListBufferForSession(transferSessionID)
	if err != nil {
		return nil, err
	}

	chunks := make([]transport.BufferChunk, 0, len(bufRows))
	for _, buf := range bufRows {
		rmcbRows, err := s.ListRMCBufferForModel(transferSessionID, buf.ModelUUID)
		if err != nil {
			return nil, err
		}
		entries := make([]transport.RMCBEntry, 0, len(rmcbRows))
		for _, rb := range rmcbRows {
			entries = append(entries, transport.RMCBEntry{InstanceID: rb.InstanceID, Counter: rb.Counter})
		}
		chunks = append(chunks, transport.BufferChunk{
			ModelUUID:                 buf.ModelUUID,
			Serialized:                buf.Serialized,
			Deleted:                   buf.Deleted,
			HardDeleted:               buf.HardDeleted,
			LastSavedInstance:         buf.LastSavedInstance,
			LastSavedCounter:          buf.LastSavedCounter,
			ModelName:                 buf.ModelName,
			Profile:                   buf.Profile,
			Partition:                 buf.Partition,
			SourceID:                  buf.SourceID,
			ConflictingSerializedData: buf.ConflictingSerializedData,
			RMCBList:                  entries,
		})
	}
	return chunks, nil
}

// IngestBufferChunks writes an incoming wire chunk set into the
// Buffer/RMCBuffer tables for a transfer session, the receiving side of
// TRANSFERRING, ahead of DEQUEUING folding them into Store/RMC.
func (s *BoltStore) IngestBufferChunks(transferSessionID string, chunks []transport.BufferChunk) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, chunk := range chunks {
			buf := &model.Buffer{
				TransferSessionID:         transferSessionID,
				ModelUUID:                 chunk.ModelUUID,
				Serialized:                chunk.Serialized,
				Deleted:                   chunk.Deleted,
				HardDeleted:               chunk.HardDeleted,
				LastSavedInstance:         chunk.LastSavedInstance,
				LastSavedCounter:          chunk.LastSavedCounter,
				ModelName:                 chunk.ModelName,
				Profile:                   chunk.Profile,
				Partition:                 chunk.Partition,
				SourceID:                  chunk.SourceID,
				ConflictingSerializedData: chunk.ConflictingSerializedData,
			}
			if err := putBuffer(tx, buf); err != nil {
				return err
			}
			for _, entry := range chunk.RMCBList {
				rb := &model.RMCBuffer{
					TransferSessionID: transferSessionID,
					ModelUUID:         chunk.ModelUUID,
					InstanceID:        entry.InstanceID,
					Counter:           entry.Counter,
				}
				if err := putRMCBuffer(tx, rb); err != nil {
					return err
				}
			}
		}
		return nil
	})
}
