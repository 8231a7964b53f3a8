package eventlog

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agenthub/hub/internal/eventbus"
	"github.com/agenthub/hub/internal/types"
)

func TestAppendAndQuery(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "events.ndjson"))
	require.NoError(t, l.Append(types.Event{Type: types.EventTaskStarted, Timestamp: time.Now().UTC(), TaskID: "t1"}))
	require.NoError(t, l.Append(types.Event{Type: types.EventTaskAccepted, Timestamp: time.Now().UTC(), TaskID: "t1"}))

	events, err := l.Query(Query{Limit: 10})
	require.NoError(t, err)
	require.Len(t, events, 2)
}

func TestQueryFiltersByTypePrefix(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "events.ndjson"))
	require.NoError(t, l.Append(types.Event{Type: types.EventTaskStarted, Timestamp: time.Now().UTC()}))
	require.NoError(t, l.Append(types.Event{Type: types.EventWorkflowStarted, Timestamp: time.Now().UTC()}))

	events, err := l.Query(Query{Type: "TASK_*", Limit: 10})
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, types.EventTaskStarted, events[0].Type)
}

func TestQueryOnMissingFileReturnsEmpty(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "missing.ndjson"))
	events, err := l.Query(Query{})
	require.NoError(t, err)
	require.Empty(t, events)
}

func TestSubscribeAutoAppends(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "events.ndjson"))
	bus := eventbus.New()
	l.Subscribe(bus)

	bus.Emit(types.Event{Type: types.EventTaskStarted})

	events, err := l.Query(Query{Limit: 10})
	require.NoError(t, err)
	require.Len(t, events, 1)
}

func TestPruneDropsOldEntries(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "events.ndjson"))
	l.SetMaxAge(time.Hour)
	require.NoError(t, l.Append(types.Event{Type: types.EventTaskStarted, Timestamp: time.Now().Add(-48 * time.Hour)}))
	require.NoError(t, l.Append(types.Event{Type: types.EventTaskAccepted, Timestamp: time.Now()}))

	require.NoError(t, l.Prune())
	events, err := l.Query(Query{Limit: 10})
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, types.EventTaskAccepted, events[0].Type)
}
