package subscription

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agenthub/hub/internal/types"
)

type fakeSocket struct {
	mu     sync.Mutex
	writes int
	closed bool
	fail   error
}

func (f *fakeSocket) Write(b []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	return f.fail
}

func (f *fakeSocket) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func TestPatternMatching(t *testing.T) {
	require.True(t, matches("*", "TASK_STARTED"))
	require.True(t, matches("TASK_STARTED", "TASK_STARTED"))
	require.True(t, matches("TASK_*", "TASK_STARTED"))
	require.False(t, matches("TASK_*", "WORKFLOW_STARTED"))
	require.False(t, matches("TASK_STARTED", "TASK_ACCEPTED"))
}

func TestBroadcastDeliversToMatchingSubscriber(t *testing.T) {
	r := New()
	sock := &fakeSocket{}
	r.Subscribe(sock, "alice", []string{"TASK_*"})

	r.Broadcast(types.Event{Type: types.EventTaskStarted, TaskID: "t1"})

	sock.mu.Lock()
	defer sock.mu.Unlock()
	require.Equal(t, 1, sock.writes)
}

func TestBroadcastSkipsNonMatching(t *testing.T) {
	r := New()
	sock := &fakeSocket{}
	r.Subscribe(sock, "alice", []string{"WORKFLOW_*"})

	r.Broadcast(types.Event{Type: types.EventTaskStarted})

	sock.mu.Lock()
	defer sock.mu.Unlock()
	require.Equal(t, 0, sock.writes)
}

func TestRemoveSocketStopsDelivery(t *testing.T) {
	r := New()
	sock := &fakeSocket{}
	r.Subscribe(sock, "alice", []string{"*"})
	r.RemoveSocket(sock)

	r.Broadcast(types.Event{Type: types.EventTaskStarted})

	sock.mu.Lock()
	defer sock.mu.Unlock()
	require.Equal(t, 0, sock.writes)
}

func TestPendingWritesCapDropsEvent(t *testing.T) {
	r := New()
	sock := &fakeSocket{fail: ErrWouldBlock}
	r.Subscribe(sock, "alice", []string{"*"})

	for i := 0; i < MaxPendingWrites+1; i++ {
		r.Broadcast(types.Event{Type: types.EventTaskStarted})
	}

	sock.mu.Lock()
	defer sock.mu.Unlock()
	require.Equal(t, MaxPendingWrites, sock.writes)
}

func TestDrainTimeoutDestroysSocket(t *testing.T) {
	r := New()
	r.drainTimeout = 10 * time.Millisecond
	sock := &fakeSocket{fail: ErrWouldBlock}
	r.Subscribe(sock, "alice", []string{"*"})

	r.Broadcast(types.Event{Type: types.EventTaskStarted})
	time.Sleep(50 * time.Millisecond)

	sock.mu.Lock()
	defer sock.mu.Unlock()
	require.True(t, sock.closed)
}
