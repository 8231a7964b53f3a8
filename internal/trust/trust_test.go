package trust

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agenthub/hub/internal/types"
)

func TestUnknownAgentCreatedWithBaseline(t *testing.T) {
	s := New()
	out := s.RecordOutcome("alice", types.OutcomeCompleted)
	require.True(t, out.Changed)
	require.Equal(t, baselineScore+completedDelta, out.Record.TrustScore)
}

func TestScoreClampedToRange(t *testing.T) {
	s := New()
	for i := 0; i < 100; i++ {
		s.RecordOutcome("alice", types.OutcomeCompleted)
	}
	rec, ok := s.Get("alice")
	require.True(t, ok)
	require.Equal(t, maxScore, rec.TrustScore)

	for i := 0; i < 100; i++ {
		s.RecordOutcome("alice", types.OutcomeFailed)
	}
	rec, _ = s.Get("alice")
	require.Equal(t, minScore, rec.TrustScore)
}

func TestFailedAndRejectedMoveScoreDown(t *testing.T) {
	s := New()
	s.RecordOutcome("bob", types.OutcomeCompleted)
	before, _ := s.Get("bob")

	out := s.RecordOutcome("bob", types.OutcomeFailed)
	require.Less(t, out.Record.TrustScore, before.TrustScore)
}

func TestGetAllReturnsAllRecords(t *testing.T) {
	s := New()
	s.RecordOutcome("alice", types.OutcomeCompleted)
	s.RecordOutcome("bob", types.OutcomeFailed)
	require.Len(t, s.GetAll(), 2)
}
