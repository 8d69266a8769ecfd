package storage

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/morango-sync/morango/internal/fsic"
	"github.com/morango-sync/morango/internal/model"
)

func TestUpdateFSICs_RaisesButNeverLowersCounters(t *testing.T) {
	store := newTestStore(t)
	filter := model.Filter{"user1"}

	require.NoError(t, store.UpsertDMC(&model.DatabaseMaxCounter{InstanceID: "A", PartitionPrefix: "user1", Counter: 3}))

	require.NoError(t, store.UpdateFSICs(map[string]uint64{"A": 5, "B": 2}, filter))
	require.NoError(t, store.UpdateFSICs(map[string]uint64{"A": 4}, filter))

	rows, err := store.ListDMCs()
	require.NoError(t, err)
	got := fsic.Compute(rows, filter)
	require.Equal(t, fsic.FSIC{"A": 5, "B": 2}, got)
}

func TestUpdateFSICs_EmptyFilterUsesRootPrefix(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.UpdateFSICs(map[string]uint64{"A": 7}, nil))

	rows, err := store.ListDMCsForInstance("A")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "", rows[0].PartitionPrefix)
	require.Equal(t, uint64(7), rows[0].Counter)
}
