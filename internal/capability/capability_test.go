package capability

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agenthub/hub/internal/routing"
	"github.com/agenthub/hub/internal/types"
)

func TestUpsertAndRankIntegration(t *testing.T) {
	s := New()
	s.Upsert(types.CapabilityRecord{AccountName: "alice", Skills: []string{"go"}, TotalTasks: 10, AcceptedTasks: 9})
	s.Upsert(types.CapabilityRecord{AccountName: "bob", Skills: []string{"python"}, TotalTasks: 10, AcceptedTasks: 2})
	s.SetWorkload(types.WorkloadSnapshot{AccountName: "alice", WIPCount: 3})

	ranked := routing.Rank(s.All(), []string{"go"}, routing.RankOptions{Workload: s.Workloads()})
	require.Equal(t, "alice", ranked[0].AccountName)
}
