package storage

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/morango-sync/morango/internal/model"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	store, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// seedSyncSession writes a minimal sync session row so QueueIntoBuffer can
// resolve the session profile.
func seedSyncSession(t *testing.T, store *BoltStore, id, profile string) {
	t.Helper()
	require.NoError(t, store.UpsertSyncSession(&model.SyncSession{ID: id, Profile: profile, Active: true}))
}

func TestUpsertFromApp_StampsVersionAndAdvancesCounters(t *testing.T) {
	store := newTestStore(t)

	rec := &model.StoreRecord{
		ID:         model.NewUUIDHex(),
		Partition:  "user1:summary",
		Profile:    "facilitydata",
		Serialized: "payload",
		DirtyBit:   true,
	}
	require.NoError(t, store.UpsertFromApp(rec))

	inst, err := store.CurrentInstance()
	require.NoError(t, err)
	require.Equal(t, inst.ID, rec.LastSavedInstance)
	require.Equal(t, inst.Counter, rec.LastSavedCounter)
	require.False(t, rec.DirtyBit)

	// The winning version's RMC row carries exactly last_saved_counter.
	rmc, err := store.GetRMC(rec.ID, inst.ID)
	require.NoError(t, err)
	require.NotNil(t, rmc)
	require.Equal(t, rec.LastSavedCounter, rmc.Counter)

	// A second write bumps the counter and keeps RMC and DMC in step.
	rec.Serialized = "payload-2"
	require.NoError(t, store.UpsertFromApp(rec))
	require.Equal(t, inst.Counter+1, rec.LastSavedCounter)

	fsics, err := store.ComputeFSIC(model.Filter{"user1"})
	require.NoError(t, err)
	require.Equal(t, map[string]uint64{inst.ID: rec.LastSavedCounter}, fsics)
}

func TestBumpInstanceCounter_MonotonicAcrossCalls(t *testing.T) {
	store := newTestStore(t)

	first, err := store.BumpInstanceCounter()
	require.NoError(t, err)
	second, err := store.BumpInstanceCounter()
	require.NoError(t, err)

	require.Equal(t, first.ID, second.ID)
	require.Equal(t, first.Counter+1, second.Counter)
}
