package handoff

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMostRecentReturnsLatest(t *testing.T) {
	s := New()
	s.Create("t1", "orchestrator", "alice", `{"goal":"first"}`, "")
	second := s.Create("t1", "orchestrator", "alice", `{"goal":"second"}`, "")

	rec, ok := s.MostRecent("t1")
	require.True(t, ok)
	require.Equal(t, second.ID, rec.ID)
}

func TestMostRecentUnknownTaskReturnsFalse(t *testing.T) {
	s := New()
	_, ok := s.MostRecent("ghost")
	require.False(t, ok)
}

func TestAllReturnsFullHistory(t *testing.T) {
	s := New()
	s.Create("t1", "a", "b", "one", "")
	s.Create("t1", "a", "b", "two", "")
	require.Len(t, s.All("t1"), 2)
}
