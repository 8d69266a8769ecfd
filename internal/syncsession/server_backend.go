package syncsession

import (
	gocontext "context"
	"time"

	"github.com/morango-sync/morango/internal/model"
	"github.com/morango-sync/morango/internal/transport"
)

// SessionStore is the storage surface ServerBackend needs beyond the
// shared Store interface: session row lookups and the current instance
// identity, both server-only concerns.
type SessionStore interface {
	Store
	CurrentInstance() (model.Instance, error)
	UpsertSyncSession(sess *model.SyncSession) error
	GetSyncSession(id string) (*model.SyncSession, error)
	GetTransferSession(id string) (*model.TransferSession, error)
}

// ServerBackend implements transport.ServerBackend, answering each inbound
// request by running a fresh server-side LocalSessionContext through the
// shared middleware registry.
type ServerBackend struct {
	Registry *MiddlewareRegistry
	Store    SessionStore
	Profile  string
}

// NewServerBackend builds a ServerBackend over registry and store for the
// given profile name.
func NewServerBackend(registry *MiddlewareRegistry, store SessionStore, profile string) *ServerBackend {
	return &ServerBackend{Registry: registry, Store: store, Profile: profile}
}

func (b *ServerBackend) HandleCreateSyncSession(_ gocontext.Context, clientCertificate string) (*model.SyncSession, error) {
	inst, err := b.Store.CurrentInstance()
	if err != nil {
		return nil, err
	}
	sess := &model.SyncSession{
		ID:                    model.NewUUIDHex(),
		Profile:               b.Profile,
		ClientCertificate:     clientCertificate,
		ServerInstance:        inst.ID,
		Active:                true,
		LastActivityTimestamp: time.Now(),
		ServerInfo:            map[string]interface{}{"capabilities": capabilitySlice(Capabilities)},
	}
	if err := b.Store.UpsertSyncSession(sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (b *ServerBackend) HandleCreateTransferSession(_ gocontext.Context, ts *model.TransferSession) (*model.TransferSession, error) {
	if ts.ID == "" {
		ts.ID = model.NewUUIDHex()
	}
	ts.Active = true

	serverFSIC, err := b.Store.ComputeFSIC(ts.FilterList())
	if err != nil {
		return nil, err
	}
	ts.ServerFSIC = serverFSIC

	if err := b.Store.UpsertTransferSession(ts); err != nil {
		return nil, err
	}

	ctx, err := b.contextFor(ts)
	if err != nil {
		return nil, err
	}
	controller := NewController(b.Registry, ctx, false)
	if status := controller.ProceedTo(model.StageInitializing); status == model.StatusErrored {
		return nil, ctx.Err()
	}
	return ctx.TransferSession(), nil
}

func (b *ServerBackend) HandlePushBuffer(_ gocontext.Context, transferSessionID string, chunks []transport.BufferChunk) error {
	ts, err := b.Store.GetTransferSession(transferSessionID)
	if err != nil {
		return err
	}
	if err := b.Store.IngestBufferChunks(transferSessionID, chunks); err != nil {
		return err
	}
	ts.RecordsTransferred += len(chunks)
	return b.Store.UpsertTransferSession(ts)
}

func (b *ServerBackend) HandlePullBuffer(_ gocontext.Context, transferSessionID string) ([]transport.BufferChunk, error) {
	ts, err := b.Store.GetTransferSession(transferSessionID)
	if err != nil {
		return nil, err
	}
	ctx, err := b.contextFor(ts)
	if err != nil {
		return nil, err
	}
	controller := NewController(b.Registry, ctx, false)
	if status := controller.ProceedTo(model.StageQueuing); status == model.StatusErrored {
		return nil, ctx.Err()
	}
	return b.Store.ExportBufferChunks(transferSessionID)
}

func (b *ServerBackend) HandleClose(_ gocontext.Context, transferSessionID string) error {
	ts, err := b.Store.GetTransferSession(transferSessionID)
	if err != nil {
		return err
	}
	ctx, err := b.contextFor(ts)
	if err != nil {
		return err
	}
	controller := NewController(b.Registry, ctx, false)
	if status := controller.ProceedTo(model.StageCleanup); status == model.StatusErrored {
		return ctx.Err()
	}
	return nil
}

func (b *ServerBackend) contextFor(ts *model.TransferSession) (*LocalSessionContext, error) {
	syncSession, err := b.Store.GetSyncSession(ts.SyncSessionID)
	if err != nil {
		return nil, err
	}
	return NewLocalSessionContext(syncSession, ts, capabilitySlice(Capabilities), true), nil
}
