package syncsession

import (
	gocontext "context"
	"fmt"
	"time"

	"github.com/morango-sync/morango/internal/model"
	"github.com/morango-sync/morango/internal/syncerr"
	"github.com/morango-sync/morango/internal/transport"
)

// transferTimeout bounds a single TRANSFERRING-stage network round trip.
const transferTimeout = 30 * time.Second

// Store is the subset of internal/storage.BoltStore the default stage
// middleware depends on. Expressed as an interface here so this package
// doesn't import internal/storage directly (storage already imports
// internal/fsic and internal/transport; syncsession stays the seam that
// wires concrete collaborators together at construction time).
type Store interface {
	QueueIntoBuffer(ts *model.TransferSession) error
	DequeueIntoStore(transferSessionID string) error
	UpsertTransferSession(ts *model.TransferSession) error
	ExportBufferChunks(transferSessionID string) ([]transport.BufferChunk, error)
	IngestBufferChunks(transferSessionID string, chunks []transport.BufferChunk) error
	PurgeBuffer(transferSessionID string) error
	ComputeFSIC(filter model.Filter) (map[string]uint64, error)
	UpdateFSICs(counters map[string]uint64, filter model.Filter) error
}

// RecordSerializer is the app-layer collaborator that knows how to turn
// dirty application records into Store rows and back. The engine never
// sees the application's own model schema; this is the seam the app layer
// plugs into for SERIALIZING and DESERIALIZING.
type RecordSerializer interface {
	SerializeIntoStore(filter model.Filter) error
	DeserializeFromStore(filter model.Filter, skipErroring bool) error
}

// NoopSerializer is the default RecordSerializer: an application with no
// app-layer models registered has nothing to serialize or deserialize.
type NoopSerializer struct{}

func (NoopSerializer) SerializeIntoStore(model.Filter) error         { return nil }
func (NoopSerializer) DeserializeFromStore(model.Filter, bool) error { return nil }

// isSendingSide reports whether this context is on the side of the wire
// that is pushing data out for the current transfer direction: the client
// for a push, the server for a pull.
func isSendingSide(ctx Context) bool {
	isServer := false
	if local, ok := ctx.(*LocalSessionContext); ok {
		isServer = local.IsServer()
	}
	if ctx.IsPush() {
		return !isServer
	}
	return isServer
}

// --- INITIALIZING ---

type initializingHandler struct {
	required []string
}

func (h initializingHandler) RelatedStage() model.Stage { return model.StageInitializing }

func (h initializingHandler) Handle(ctx Context) model.Status {
	if ctx.SyncSession() == nil {
		err := fmt.Errorf("%w: no sync session attached", syncerr.ErrProtocol)
		_ = ctx.Update(ContextUpdate{Err: err})
		return model.StatusErrored
	}

	negotiated := ctx.Capabilities()
	for _, capability := range h.required {
		if !negotiated[capability] {
			err := fmt.Errorf("%w: peer missing required capability %q", syncerr.ErrCapabilityMismatch, capability)
			_ = ctx.Update(ContextUpdate{Err: err})
			return model.StatusErrored
		}
	}
	return model.StatusCompleted
}

// --- SERIALIZING ---

type serializingHandler struct {
	serializer RecordSerializer
}

func (h serializingHandler) RelatedStage() model.Stage { return model.StageSerializing }

func (h serializingHandler) Handle(ctx Context) model.Status {
	if err := h.serializer.SerializeIntoStore(ctx.Filter()); err != nil {
		_ = ctx.Update(ContextUpdate{Err: fmt.Errorf("serializing into store: %w", err)})
		return model.StatusErrored
	}
	return model.StatusCompleted
}

// --- QUEUING ---

type queuingHandler struct {
	store Store
}

func (h queuingHandler) RelatedStage() model.Stage { return model.StageQueuing }

func (h queuingHandler) Handle(ctx Context) model.Status {
	ts := ctx.TransferSession()
	if ts == nil || !isSendingSide(ctx) {
		return model.StatusCompleted
	}
	if err := h.store.QueueIntoBuffer(ts); err != nil {
		_ = ctx.Update(ContextUpdate{Err: fmt.Errorf("queuing into buffer: %w", err)})
		return model.StatusErrored
	}
	return model.StatusCompleted
}

// --- TRANSFERRING ---

type transferringHandler struct {
	store Store
}

func (h transferringHandler) RelatedStage() model.Stage { return model.StageTransferring }

func (h transferringHandler) Handle(ctx Context) model.Status {
	net, ok := ctx.(*NetworkSessionContext)
	if !ok {
		// Operating purely in-process against a single shared store: the
		// buffer rows queuingHandler wrote are already visible to the
		// receiving side, nothing needs to move over a wire.
		return model.StatusCompleted
	}

	conn := net.Connection()
	if conn == nil {
		err := fmt.Errorf("%w: network context missing its connection", syncerr.ErrProtocol)
		_ = ctx.Update(ContextUpdate{Err: err})
		return model.StatusErrored
	}

	ts := ctx.TransferSession()
	if ts == nil {
		return model.StatusCompleted
	}

	reqCtx, cancel := gocontext.WithTimeout(gocontext.Background(), transferTimeout)
	defer cancel()

	if isSendingSide(ctx) {
		chunks, err := h.store.ExportBufferChunks(ts.ID)
		if err != nil {
			_ = ctx.Update(ContextUpdate{Err: fmt.Errorf("exporting buffer chunks: %w", err)})
			return model.StatusErrored
		}
		if err := conn.PushBuffer(reqCtx, ts.ID, chunks); err != nil {
			_ = ctx.Update(ContextUpdate{Err: err})
			return model.StatusErrored
		}
		return model.StatusCompleted
	}

	chunks, err := conn.PullBuffer(reqCtx, ts.ID)
	if err != nil {
		_ = ctx.Update(ContextUpdate{Err: err})
		return model.StatusErrored
	}
	if err := h.store.IngestBufferChunks(ts.ID, chunks); err != nil {
		_ = ctx.Update(ContextUpdate{Err: fmt.Errorf("ingesting buffer chunks: %w", err)})
		return model.StatusErrored
	}

	ts.RecordsTransferred = len(chunks)
	if err := h.store.UpsertTransferSession(ts); err != nil {
		_ = ctx.Update(ContextUpdate{Err: fmt.Errorf("persisting records_transferred: %w", err)})
		return model.StatusErrored
	}
	return model.StatusCompleted
}

// --- DEQUEUING ---

type dequeuingHandler struct {
	store Store
}

func (h dequeuingHandler) RelatedStage() model.Stage { return model.StageDequeuing }

func (h dequeuingHandler) Handle(ctx Context) model.Status {
	ts := ctx.TransferSession()
	if ts == nil || isSendingSide(ctx) {
		return model.StatusCompleted
	}
	if ts.RecordsTransferred <= 0 {
		return model.StatusCompleted
	}
	if err := h.store.DequeueIntoStore(ts.ID); err != nil {
		_ = ctx.Update(ContextUpdate{Err: fmt.Errorf("%w: %v", syncerr.ErrIntegrity, err)})
		return model.StatusErrored
	}
	return model.StatusCompleted
}

// --- DESERIALIZING ---

type deserializingHandler struct {
	store      Store
	serializer RecordSerializer
}

func (h deserializingHandler) RelatedStage() model.Stage { return model.StageDeserializing }

func (h deserializingHandler) Handle(ctx Context) model.Status {
	// The receiving side raises its DMC rows to the sender's counters once
	// the dequeue transaction has committed: everything at or below them is
	// now merged locally.
	ts := ctx.TransferSession()
	if ts != nil && !isSendingSide(ctx) && ts.RecordsTransferred > 0 {
		counters := ts.ServerFSIC
		if ts.Push {
			counters = ts.ClientFSIC
		}
		if err := h.store.UpdateFSICs(counters, ctx.Filter()); err != nil {
			_ = ctx.Update(ContextUpdate{Err: fmt.Errorf("updating fsics: %w", err)})
			return model.StatusErrored
		}
	}

	if err := h.serializer.DeserializeFromStore(ctx.Filter(), false); err != nil {
		_ = ctx.Update(ContextUpdate{Err: fmt.Errorf("deserializing from store: %w", err)})
		return model.StatusErrored
	}
	return model.StatusCompleted
}

// --- CLEANUP ---

type cleanupHandler struct {
	store Store
}

func (h cleanupHandler) RelatedStage() model.Stage { return model.StageCleanup }

func (h cleanupHandler) Handle(ctx Context) model.Status {
	ts := ctx.TransferSession()
	if ts == nil {
		return model.StatusCompleted
	}
	if err := h.store.PurgeBuffer(ts.ID); err != nil {
		_ = ctx.Update(ContextUpdate{Err: fmt.Errorf("purging buffer: %w", err)})
		return model.StatusErrored
	}
	ts.Active = false
	if err := h.store.UpsertTransferSession(ts); err != nil {
		_ = ctx.Update(ContextUpdate{Err: fmt.Errorf("closing transfer session: %w", err)})
		return model.StatusErrored
	}
	return model.StatusCompleted
}

// RegisterDefaultMiddleware registers the seven stock stage handlers on
// registry, in pipeline order. serializer may be nil, defaulting to
// NoopSerializer. requiredCapabilities are the capability strings
// INITIALIZING refuses to proceed without once negotiated against the
// peer.
func RegisterDefaultMiddleware(registry *MiddlewareRegistry, store Store, serializer RecordSerializer, requiredCapabilities []string) error {
	if serializer == nil {
		serializer = NoopSerializer{}
	}
	handlers := []StageHandler{
		initializingHandler{required: requiredCapabilities},
		serializingHandler{serializer: serializer},
		queuingHandler{store: store},
		transferringHandler{store: store},
		dequeuingHandler{store: store},
		deserializingHandler{store: store, serializer: serializer},
		cleanupHandler{store: store},
	}
	for _, h := range handlers {
		if err := registry.Register(h); err != nil {
			return err
		}
	}
	return nil
}
