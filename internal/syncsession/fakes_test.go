package syncsession

import (
	gocontext "context"

	"github.com/morango-sync/morango/internal/model"
	"github.com/morango-sync/morango/internal/transport"
)

// fakeConnection is a no-op transport.SyncConnection for tests that never
// exercise an actual wire round trip.
type fakeConnection struct {
	pushed []transport.BufferChunk
	pulled []transport.BufferChunk
}

func (c *fakeConnection) ServerInfo() map[string]interface{} { return nil }

func (c *fakeConnection) CreateSyncSession(gocontext.Context, string) (*model.SyncSession, error) {
	return &model.SyncSession{ID: "sess1"}, nil
}

func (c *fakeConnection) CreateTransferSession(_ gocontext.Context, ts *model.TransferSession) (*model.TransferSession, error) {
	return ts, nil
}

func (c *fakeConnection) PushBuffer(_ gocontext.Context, _ string, chunks []transport.BufferChunk) error {
	c.pushed = chunks
	return nil
}

func (c *fakeConnection) PullBuffer(gocontext.Context, string) ([]transport.BufferChunk, error) {
	return c.pulled, nil
}

func (c *fakeConnection) Close(gocontext.Context, string) error { return nil }

// fakeStore is a minimal in-memory Store for controller/transfer-client
// tests that don't need real bbolt persistence.
type fakeStore struct {
	queued       []string
	dequeued     []string
	sessions     map[string]*model.TransferSession
	exported     []transport.BufferChunk
	ingested     []transport.BufferChunk
	fsicsUpdated []map[string]uint64
}

func newFakeStore() *fakeStore {
	return &fakeStore{sessions: map[string]*model.TransferSession{}}
}

func (s *fakeStore) QueueIntoBuffer(ts *model.TransferSession) error {
	s.queued = append(s.queued, ts.ID)
	return nil
}

func (s *fakeStore) DequeueIntoStore(transferSessionID string) error {
	s.dequeued = append(s.dequeued, transferSessionID)
	return nil
}

func (s *fakeStore) UpsertTransferSession(ts *model.TransferSession) error {
	s.sessions[ts.ID] = ts
	return nil
}

func (s *fakeStore) ExportBufferChunks(string) ([]transport.BufferChunk, error) {
	return s.exported, nil
}

func (s *fakeStore) IngestBufferChunks(_ string, chunks []transport.BufferChunk) error {
	s.ingested = chunks
	return nil
}

func (s *fakeStore) PurgeBuffer(string) error { return nil }

func (s *fakeStore) ComputeFSIC(model.Filter) (map[string]uint64, error) {
	return map[string]uint64{}, nil
}

func (s *fakeStore) UpdateFSICs(counters map[string]uint64, _ model.Filter) error {
	s.fsicsUpdated = append(s.fsicsUpdated, counters)
	return nil
}
