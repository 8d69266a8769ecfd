package fsic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/morango-sync/morango/internal/model"
)

func TestCompute(t *testing.T) {
	tests := []struct {
		name   string
		rows   []*model.DatabaseMaxCounter
		filter model.Filter
		want   FSIC
	}{
		{
			name: "single instance single prefix",
			rows: []*model.DatabaseMaxCounter{
				{InstanceID: "A", PartitionPrefix: "user1", Counter: 5},
			},
			filter: model.Filter{"user1"},
			want:   FSIC{"A": 5},
		},
		{
			name: "minimum kept across overlapping prefixes",
			rows: []*model.DatabaseMaxCounter{
				{InstanceID: "A", PartitionPrefix: "user1", Counter: 5},
				{InstanceID: "A", PartitionPrefix: "user1:summary", Counter: 2},
			},
			filter: model.Filter{"user1"},
			want:   FSIC{"A": 2},
		},
		{
			name: "unrelated prefix excluded",
			rows: []*model.DatabaseMaxCounter{
				{InstanceID: "A", PartitionPrefix: "user2", Counter: 9},
			},
			filter: model.Filter{"user1"},
			want:   FSIC{},
		},
		{
			name: "empty filter matches everything",
			rows: []*model.DatabaseMaxCounter{
				{InstanceID: "A", PartitionPrefix: "anything", Counter: 3},
			},
			filter: nil,
			want:   FSIC{"A": 3},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Compute(tt.rows, tt.filter)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDiff(t *testing.T) {
	tests := []struct {
		name      string
		sender    FSIC
		recipient FSIC
		want      map[string]uint64
	}{
		{
			name:      "recipient has neither instance",
			sender:    FSIC{"A": 1, "B": 1},
			recipient: FSIC{},
			want:      map[string]uint64{"A": 0, "B": 0},
		},
		{
			name:      "counter floor",
			sender:    FSIC{"A": 5},
			recipient: FSIC{"A": 4},
			want:      map[string]uint64{"A": 4},
		},
		{
			name:      "caught up both instances",
			sender:    FSIC{"A": 100, "B": 100},
			recipient: FSIC{"A": 100, "B": 100},
			want:      map[string]uint64{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Diff(tt.sender, tt.recipient)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRecordQueues(t *testing.T) {
	floor := map[string]uint64{"A": 0, "B": 0}

	t.Run("queues a record written by either diffed instance", func(t *testing.T) {
		rmcs := []*model.RecordMaxCounter{{InstanceID: "A", Counter: 1}}
		assert.True(t, RecordQueues("facilitydata", "facilitydata", "user1", nil, rmcs, floor))
	})

	t.Run("excludes records carrying only an instance outside the floor", func(t *testing.T) {
		narrowFloor := map[string]uint64{"B": 0}
		rmcsA := []*model.RecordMaxCounter{{InstanceID: "A", Counter: 1}}
		rmcsB := []*model.RecordMaxCounter{{InstanceID: "B", Counter: 1}}
		assert.False(t, RecordQueues("facilitydata", "facilitydata", "user1", nil, rmcsA, narrowFloor))
		assert.True(t, RecordQueues("facilitydata", "facilitydata", "user1", nil, rmcsB, narrowFloor))
	})

	t.Run("counter floor excludes non-exceeding RMCs", func(t *testing.T) {
		aFloor := map[string]uint64{"A": 4}
		below := []*model.RecordMaxCounter{{InstanceID: "A", Counter: 4}}
		above := []*model.RecordMaxCounter{{InstanceID: "A", Counter: 5}}
		assert.False(t, RecordQueues("facilitydata", "facilitydata", "user1", nil, below, aFloor))
		assert.True(t, RecordQueues("facilitydata", "facilitydata", "user1", nil, above, aFloor))
	})

	t.Run("partition filter excludes non-matching records", func(t *testing.T) {
		filter := model.Filter{"user3:user:summary", "user3:user:interaction"}
		rmcs := []*model.RecordMaxCounter{{InstanceID: "A", Counter: 1}}
		assert.True(t, RecordQueues("facilitydata", "facilitydata", "user3:user:summary", filter, rmcs, floor))
		assert.False(t, RecordQueues("facilitydata", "facilitydata", "user2:user:summary", filter, rmcs, floor))
	})

	t.Run("profile mismatch always excludes", func(t *testing.T) {
		rmcs := []*model.RecordMaxCounter{{InstanceID: "A", Counter: 1}}
		assert.False(t, RecordQueues("otherdata", "facilitydata", "user1", nil, rmcs, floor))
	})
}

func TestFilterMatches(t *testing.T) {
	require.True(t, model.Filter(nil).Matches("anything"))
	require.True(t, model.Filter{"user3:user:summary"}.Matches("user3:user:summary:extra"))
	require.False(t, model.Filter{"user3:user:summary"}.Matches("user2:user:summary"))
}
