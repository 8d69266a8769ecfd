package syncsession

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/morango-sync/morango/internal/model"
)

func TestIsSendingSide(t *testing.T) {
	syncSession := &model.SyncSession{ID: "sess1"}

	t.Run("client pushing is the sending side", func(t *testing.T) {
		ctx := NewLocalSessionContext(syncSession, nil, nil, false)
		truth := true
		require.NoError(t, ctx.Update(ContextUpdate{IsPush: &truth}))
		assert.True(t, isSendingSide(ctx))
	})

	t.Run("server handling a push is the receiving side", func(t *testing.T) {
		ctx := NewLocalSessionContext(syncSession, nil, nil, true)
		truth := true
		require.NoError(t, ctx.Update(ContextUpdate{IsPush: &truth}))
		assert.False(t, isSendingSide(ctx))
	})

	t.Run("server handling a pull is the sending side", func(t *testing.T) {
		ctx := NewLocalSessionContext(syncSession, nil, nil, true)
		lie := false
		require.NoError(t, ctx.Update(ContextUpdate{IsPush: &lie}))
		assert.True(t, isSendingSide(ctx))
	})
}

func TestQueuingHandler_OnlyRunsOnSendingSide(t *testing.T) {
	store := newFakeStore()
	h := queuingHandler{store: store}

	syncSession := &model.SyncSession{ID: "sess1"}
	ts := &model.TransferSession{ID: "ts1"}

	receiving := NewLocalSessionContext(syncSession, ts, nil, true)
	truth := true
	require.NoError(t, receiving.Update(ContextUpdate{IsPush: &truth}))
	status := h.Handle(receiving)
	assert.Equal(t, model.StatusCompleted, status)
	assert.Empty(t, store.queued)

	sending := NewLocalSessionContext(syncSession, ts, nil, false)
	require.NoError(t, sending.Update(ContextUpdate{IsPush: &truth}))
	status = h.Handle(sending)
	assert.Equal(t, model.StatusCompleted, status)
	assert.Equal(t, []string{"ts1"}, store.queued)
}

func TestDequeuingHandler_SkipsWhenNoRecordsTransferred(t *testing.T) {
	store := newFakeStore()
	h := dequeuingHandler{store: store}

	syncSession := &model.SyncSession{ID: "sess1"}
	ts := &model.TransferSession{ID: "ts1", RecordsTransferred: 0}
	ctx := NewLocalSessionContext(syncSession, ts, nil, true)
	truth := true
	require.NoError(t, ctx.Update(ContextUpdate{IsPush: &truth}))

	status := h.Handle(ctx)
	assert.Equal(t, model.StatusCompleted, status)
	assert.Empty(t, store.dequeued)

	ts.RecordsTransferred = 3
	status = h.Handle(ctx)
	assert.Equal(t, model.StatusCompleted, status)
	assert.Equal(t, []string{"ts1"}, store.dequeued)
}

func TestDeserializingHandler_AbsorbsSenderFSICsOnReceivingSide(t *testing.T) {
	store := newFakeStore()
	h := deserializingHandler{store: store, serializer: NoopSerializer{}}

	syncSession := &model.SyncSession{ID: "sess1"}
	ts := &model.TransferSession{
		ID: "ts1", Push: true, RecordsTransferred: 2,
		ClientFSIC: map[string]uint64{"A": 5},
		ServerFSIC: map[string]uint64{"A": 1},
	}
	ctx := NewLocalSessionContext(syncSession, ts, nil, true)

	status := h.Handle(ctx)
	assert.Equal(t, model.StatusCompleted, status)
	require.Len(t, store.fsicsUpdated, 1)
	assert.Equal(t, map[string]uint64{"A": 5}, store.fsicsUpdated[0], "a pushed-to server absorbs the client's counters")

	// The sending side never touches its DMC rows here.
	sending := NewLocalSessionContext(syncSession, ts, nil, false)
	status = h.Handle(sending)
	assert.Equal(t, model.StatusCompleted, status)
	assert.Len(t, store.fsicsUpdated, 1)
}

func TestRegisterDefaultMiddleware_OrdersSevenStages(t *testing.T) {
	registry := NewMiddlewareRegistry()
	store := newFakeStore()
	require.NoError(t, RegisterDefaultMiddleware(registry, store, nil, []string{"gzip-buffer-compression"}))

	ordered := registry.lock()
	require.Len(t, ordered, 7)

	want := []model.Stage{
		model.StageInitializing, model.StageSerializing, model.StageQueuing,
		model.StageTransferring, model.StageDequeuing, model.StageDeserializing,
		model.StageCleanup,
	}
	for i, stage := range want {
		assert.Equal(t, stage, ordered[i].RelatedStage())
	}
}

func TestInitializingHandler_RejectsMissingCapability(t *testing.T) {
	h := initializingHandler{required: []string{"gzip-buffer-compression"}}
	syncSession := &model.SyncSession{ID: "sess1"}
	ctx := NewLocalSessionContext(syncSession, nil, nil, false)

	status := h.Handle(ctx)
	assert.Equal(t, model.StatusErrored, status)
	require.Error(t, ctx.Err())
}
