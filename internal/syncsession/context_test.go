package syncsession

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/morango-sync/morango/internal/model"
	"github.com/morango-sync/morango/internal/syncerr"
)

func TestLocalSessionContext_WriteOnceFields(t *testing.T) {
	syncSession := &model.SyncSession{ID: "sess1"}
	ctx := NewLocalSessionContext(syncSession, nil, nil, false)

	t.Run("transfer_session can be set once", func(t *testing.T) {
		ts := &model.TransferSession{ID: "ts1"}
		require.NoError(t, ctx.Update(ContextUpdate{TransferSession: ts}))
		assert.Equal(t, ts, ctx.TransferSession())
	})

	t.Run("reassigning transfer_session to a different one fails", func(t *testing.T) {
		other := &model.TransferSession{ID: "ts2"}
		err := ctx.Update(ContextUpdate{TransferSession: other})
		assert.ErrorIs(t, err, syncerr.ErrContextUpdate)
		assert.Equal(t, "ts1", ctx.TransferSession().ID)
	})

	t.Run("filter can be set once", func(t *testing.T) {
		fresh := NewLocalSessionContext(syncSession, nil, nil, false)
		require.NoError(t, fresh.Update(ContextUpdate{Filter: model.Filter{"user1"}}))
		assert.Equal(t, model.Filter{"user1"}, fresh.Filter())

		err := fresh.Update(ContextUpdate{Filter: model.Filter{"user2"}})
		assert.ErrorIs(t, err, syncerr.ErrContextUpdate)
	})

	t.Run("is_push can be set once", func(t *testing.T) {
		fresh := NewLocalSessionContext(syncSession, nil, nil, false)
		truth := true
		require.NoError(t, fresh.Update(ContextUpdate{IsPush: &truth}))
		assert.True(t, fresh.IsPush())

		lie := false
		err := fresh.Update(ContextUpdate{IsPush: &lie})
		assert.ErrorIs(t, err, syncerr.ErrContextUpdate)
	})

	t.Run("stage and stage_status are freely mutable", func(t *testing.T) {
		fresh := NewLocalSessionContext(syncSession, nil, nil, false)
		require.NoError(t, fresh.Update(ContextUpdate{Stage: model.StageQueuing, StageStatus: model.StatusStarted}))
		require.NoError(t, fresh.Update(ContextUpdate{Stage: model.StageTransferring, StageStatus: model.StatusCompleted}))
		assert.Equal(t, model.StageTransferring, fresh.Stage())
		assert.Equal(t, model.StatusCompleted, fresh.StageStatus())
	})
}

func TestLocalSessionContext_State(t *testing.T) {
	syncSession := &model.SyncSession{ID: "sess1"}
	ts := &model.TransferSession{ID: "ts1"}
	ctx := NewLocalSessionContext(syncSession, ts, []string{"gzip-buffer-compression"}, true)

	state := ctx.State()
	assert.Equal(t, "sess1", state.SyncSessionID)
	assert.Equal(t, "ts1", state.TransferSessionID)
	require.NotNil(t, state.IsServer)
	assert.True(t, *state.IsServer)
}

func TestNetworkSessionContext_ConnectionNotSerialized(t *testing.T) {
	conn := &fakeConnection{}
	syncSession := &model.SyncSession{ID: "sess1"}
	ctx := NewNetworkSessionContext(conn, syncSession, nil)

	state := ctx.State()
	assert.Nil(t, state.IsServer)
	assert.Equal(t, "sess1", state.SyncSessionID)
}
