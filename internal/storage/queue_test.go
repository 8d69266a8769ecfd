package storage

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/morango-sync/morango/internal/model"
)

// seedRecord writes a store record plus one RMC row attributing it to a
// single instance/counter.
func seedRecord(t *testing.T, store *BoltStore, id, partition, instance string, counter uint64) {
	t.Helper()
	require.NoError(t, store.UpsertStoreRecord(&model.StoreRecord{
		ID:                id,
		Partition:         partition,
		Profile:           "facilitydata",
		Serialized:        "payload-" + id,
		LastSavedInstance: instance,
		LastSavedCounter:  counter,
	}))
	require.NoError(t, store.UpsertRMC(&model.RecordMaxCounter{StoreRecordID: id, InstanceID: instance, Counter: counter}))
}

func queuedModelUUIDs(t *testing.T, store *BoltStore, transferSessionID string) []string {
	t.Helper()
	rows, err := store.ListBufferForSession(transferSessionID)
	require.NoError(t, err)
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.ModelUUID
	}
	return out
}

func TestQueueIntoBuffer_AllInstancesNewToRecipient(t *testing.T) {
	store := newTestStore(t)
	seedSyncSession(t, store, "sess1", "facilitydata")
	seedRecord(t, store, "rec-a", "user1", "A", 1)
	seedRecord(t, store, "rec-b", "user1", "B", 1)

	ts := &model.TransferSession{
		ID: "ts1", SyncSessionID: "sess1", Push: true,
		ClientFSIC: map[string]uint64{"A": 1, "B": 1},
		ServerFSIC: map[string]uint64{},
	}
	require.NoError(t, store.QueueIntoBuffer(ts))

	require.ElementsMatch(t, []string{"rec-a", "rec-b"}, queuedModelUUIDs(t, store, "ts1"))
	require.Equal(t, 2, ts.RecordsTotal)
}

func TestQueueIntoBuffer_OnlyRecordsFromDiffedInstance(t *testing.T) {
	store := newTestStore(t)
	seedSyncSession(t, store, "sess1", "facilitydata")
	seedRecord(t, store, "rec-a", "user1", "A", 1)
	seedRecord(t, store, "rec-b", "user1", "B", 1)

	ts := &model.TransferSession{
		ID: "ts2", SyncSessionID: "sess1", Push: true,
		ClientFSIC: map[string]uint64{"B": 1},
		ServerFSIC: map[string]uint64{},
	}
	require.NoError(t, store.QueueIntoBuffer(ts))

	require.Equal(t, []string{"rec-b"}, queuedModelUUIDs(t, store, "ts2"))
}

func TestQueueIntoBuffer_CounterFloorExcludesAlreadyHeld(t *testing.T) {
	store := newTestStore(t)
	seedSyncSession(t, store, "sess1", "facilitydata")
	seedRecord(t, store, "rec-old", "user1", "A", 4)
	seedRecord(t, store, "rec-new", "user1", "A", 5)

	ts := &model.TransferSession{
		ID: "ts3", SyncSessionID: "sess1", Push: true,
		ClientFSIC: map[string]uint64{"A": 5},
		ServerFSIC: map[string]uint64{"A": 4},
	}
	require.NoError(t, store.QueueIntoBuffer(ts))

	require.Equal(t, []string{"rec-new"}, queuedModelUUIDs(t, store, "ts3"))
}

func TestQueueIntoBuffer_NothingQueuedWhenCaughtUp(t *testing.T) {
	store := newTestStore(t)
	seedSyncSession(t, store, "sess1", "facilitydata")
	seedRecord(t, store, "rec-a", "user1", "A", 50)
	seedRecord(t, store, "rec-b", "user1", "B", 50)

	ts := &model.TransferSession{
		ID: "ts4", SyncSessionID: "sess1", Push: true,
		ClientFSIC: map[string]uint64{"A": 100, "B": 100},
		ServerFSIC: map[string]uint64{"A": 100, "B": 100},
	}
	require.NoError(t, store.QueueIntoBuffer(ts))

	require.Empty(t, queuedModelUUIDs(t, store, "ts4"))
	require.Equal(t, 0, ts.RecordsTotal)
}

func TestQueueIntoBuffer_PartitionFilterScopesQueue(t *testing.T) {
	store := newTestStore(t)
	seedSyncSession(t, store, "sess1", "facilitydata")
	seedRecord(t, store, "rec-in", "user3:user:summary", "A", 1)
	seedRecord(t, store, "rec-out", "user2:user:summary", "A", 1)

	ts := &model.TransferSession{
		ID: "ts5", SyncSessionID: "sess1", Push: true,
		ClientFSIC: map[string]uint64{"A": 1},
		ServerFSIC: map[string]uint64{},
		Filter:     "user3:user:summary\nuser3:user:interaction",
	}
	require.NoError(t, store.QueueIntoBuffer(ts))

	require.Equal(t, []string{"rec-in"}, queuedModelUUIDs(t, store, "ts5"))
}
