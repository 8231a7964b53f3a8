package circuitbreaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQuarantineAfterThreshold(t *testing.T) {
	b := New(3, time.Minute, time.Hour)
	_, tripped := b.RecordFailure("alice", "timeout", "")
	require.False(t, tripped)
	_, tripped = b.RecordFailure("alice", "timeout", "")
	require.False(t, tripped)
	q, tripped := b.RecordFailure("alice", "timeout", "three strikes")
	require.True(t, tripped)
	require.Equal(t, "alice", q.Agent)
	require.True(t, b.IsQuarantined("alice"))
}

func TestFailuresOutsideWindowDoNotAccumulate(t *testing.T) {
	b := New(2, 10*time.Millisecond, time.Hour)
	b.RecordFailure("alice", "x", "")
	time.Sleep(20 * time.Millisecond)
	_, tripped := b.RecordFailure("alice", "x", "")
	require.False(t, tripped)
}

func TestReinstateClearsQuarantine(t *testing.T) {
	b := New(1, time.Minute, time.Hour)
	b.RecordFailure("alice", "x", "")
	require.True(t, b.IsQuarantined("alice"))

	_, ok := b.Reinstate("alice")
	require.True(t, ok)
	require.False(t, b.IsQuarantined("alice"))
}

func TestQuarantineExpiresAfterDuration(t *testing.T) {
	b := New(1, time.Minute, 10*time.Millisecond)
	b.RecordFailure("alice", "x", "")
	require.True(t, b.IsQuarantined("alice"))
	time.Sleep(20 * time.Millisecond)
	require.False(t, b.IsQuarantined("alice"))
}
