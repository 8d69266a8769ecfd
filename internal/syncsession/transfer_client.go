package syncsession

import (
	gocontext "context"
	"fmt"
	"strings"

	"github.com/morango-sync/morango/internal/model"
	"github.com/morango-sync/morango/internal/syncerr"
	"github.com/morango-sync/morango/internal/synclog"
	"github.com/morango-sync/morango/internal/transport"
)

// SyncClientSignals bundles the four signal groups a TransferClient fires
// at stage boundaries: session (around initializing/cleanup), queuing,
// transferring, dequeuing.
type SyncClientSignals struct {
	Session      *SignalGroup
	Queuing      *SignalGroup
	Transferring *SignalGroup
	Dequeuing    *SignalGroup
}

// NewSyncClientSignals builds an independent signal bundle; handlers
// registered on one TransferClient's signals never cross-fire with
// another's.
func NewSyncClientSignals() *SyncClientSignals {
	return &SyncClientSignals{
		Session:      NewSignalGroup("session"),
		Queuing:      NewSignalGroup("queuing"),
		Transferring: NewSignalGroup("transferring"),
		Dequeuing:    NewSignalGroup("dequeuing"),
	}
}

// TransferClient drives one push or pull episode against a remote peer
// over a SyncConnection, holding at most one live TransferSession at a
// time.
type TransferClient struct {
	Connection transport.SyncConnection
	Signals    *SyncClientSignals

	registry *MiddlewareRegistry
	store    Store

	CurrentTransferSession *model.TransferSession
}

// NewTransferClient builds a TransferClient bound to a connection, a
// (possibly shared) middleware registry, and the local persistence layer.
func NewTransferClient(conn transport.SyncConnection, registry *MiddlewareRegistry, store Store) *TransferClient {
	return &TransferClient{
		Connection: conn,
		Signals:    NewSyncClientSignals(),
		registry:   registry,
		store:      store,
	}
}

// InitiateTransfer runs one full push or pull episode: it creates a
// TransferSession with the peer, then walks a SessionController through
// every stage to CLEANUP, firing lifecycle signals around their
// respective stage boundaries.
func (c *TransferClient) InitiateTransfer(reqCtx gocontext.Context, syncSession *model.SyncSession, push bool, filter model.Filter) (model.Status, error) {
	if c.CurrentTransferSession != nil && c.CurrentTransferSession.Active {
		return model.StatusErrored, fmt.Errorf("%w: a transfer session is already active on this client", syncerr.ErrProtocol)
	}

	clientFSIC, err := c.store.ComputeFSIC(filter)
	if err != nil {
		return model.StatusErrored, fmt.Errorf("computing client fsic: %w", err)
	}

	ts := &model.TransferSession{
		ID:            model.NewUUIDHex(),
		SyncSessionID: syncSession.ID,
		Push:          push,
		Filter:        joinFilter(filter),
		ClientFSIC:    clientFSIC,
		Active:        true,
	}

	sessCtx := NewNetworkSessionContext(c.Connection, syncSession, nil)
	if err := sessCtx.Update(ContextUpdate{IsPush: &push}); err != nil {
		return model.StatusErrored, err
	}

	var (
		status model.Status
		opErr  error
	)

	c.Signals.Session.Send(map[string]interface{}{"sync_session": syncSession}, func() {
		created, err := c.Connection.CreateTransferSession(reqCtx, ts)
		if err != nil {
			opErr = fmt.Errorf("%w: creating transfer session: %v", syncerr.ErrTransport, err)
			status = model.StatusErrored
			return
		}
		ts = created
		if err := sessCtx.Update(ContextUpdate{TransferSession: ts}); err != nil {
			opErr = err
			status = model.StatusErrored
			return
		}
		c.CurrentTransferSession = ts
		defer func() { c.CurrentTransferSession = nil }()

		controller := NewController(c.registry, sessCtx, false)

		c.Signals.Queuing.Send(map[string]interface{}{"transfer_session": ts}, func() {
			status = controller.ProceedTo(model.StageQueuing)
		})
		if status != model.StatusCompleted {
			return
		}

		c.Signals.Transferring.Send(map[string]interface{}{"transfer_session": ts}, func() {
			status = controller.ProceedTo(model.StageTransferring)
		})
		if status != model.StatusCompleted {
			return
		}

		c.Signals.Dequeuing.Send(map[string]interface{}{"transfer_session": ts}, func() {
			status = controller.ProceedTo(model.StageDequeuing)
		})
		if status != model.StatusCompleted {
			return
		}

		status = controller.ProceedTo(model.StageCleanup)
		if status != model.StatusCompleted {
			return
		}

		// The peer holds its own TransferSession row for this episode;
		// tell it to run its cleanup too.
		if err := c.Connection.Close(reqCtx, ts.ID); err != nil {
			logger := synclog.WithTransferSession(ts.ID)
			logger.Warn().Err(err).Msg("closing remote transfer session")
		}
	})

	if opErr != nil {
		return model.StatusErrored, opErr
	}
	return status, sessCtx.Err()
}

func joinFilter(filter model.Filter) string {
	return strings.Join(filter, "\n")
}
