package eventbus

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agenthub/hub/internal/types"
)

func TestEmitDispatchesTypedThenWildcard(t *testing.T) {
	b := New()
	var order []string
	b.On(types.EventTaskStarted, func(e types.Event) { order = append(order, "typed") })
	b.On("*", func(e types.Event) { order = append(order, "wild") })

	b.Emit(types.Event{Type: types.EventTaskStarted})
	require.Equal(t, []string{"typed", "wild"}, order)
}

func TestEmitAssignsIDAndTimestamp(t *testing.T) {
	b := New()
	id := b.Emit(types.Event{Type: types.EventTaskStarted})
	require.NotEmpty(t, id)

	recent := b.GetRecent(RecentQuery{Limit: 1})
	require.Len(t, recent, 1)
	require.Equal(t, id, recent[0].ID)
	require.False(t, recent[0].Timestamp.IsZero())
}

func TestRecentRingEvictsOldest(t *testing.T) {
	b := New()
	b.SetMaxRecent(2)
	b.Emit(types.Event{Type: types.EventTaskStarted, TaskID: "1"})
	b.Emit(types.Event{Type: types.EventTaskStarted, TaskID: "2"})
	b.Emit(types.Event{Type: types.EventTaskStarted, TaskID: "3"})

	recent := b.GetRecent(RecentQuery{Limit: 10})
	require.Len(t, recent, 2)
	require.Equal(t, "2", recent[0].TaskID)
	require.Equal(t, "3", recent[1].TaskID)
}

func TestHandlerPanicDoesNotBlockSiblingsOrPropagate(t *testing.T) {
	b := New()
	called := false
	b.On(types.EventTaskStarted, func(e types.Event) { panic("boom") })
	b.On(types.EventTaskStarted, func(e types.Event) { called = true })

	require.NotPanics(t, func() {
		b.Emit(types.Event{Type: types.EventTaskStarted})
	})
	require.True(t, called)
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	b := New()
	count := 0
	unsub := b.On(types.EventTaskStarted, func(e types.Event) { count++ })
	unsub()
	unsub()
	b.Emit(types.Event{Type: types.EventTaskStarted})
	require.Equal(t, 0, count)
}

func TestGetRecentFiltersByTypeAndTaskID(t *testing.T) {
	b := New()
	b.Emit(types.Event{Type: types.EventTaskStarted, TaskID: "a"})
	b.Emit(types.Event{Type: types.EventTaskAccepted, TaskID: "a"})
	b.Emit(types.Event{Type: types.EventTaskStarted, TaskID: "b"})

	recent := b.GetRecent(RecentQuery{Type: types.EventTaskStarted, TaskID: "a"})
	require.Len(t, recent, 1)
	require.Equal(t, "a", recent[0].TaskID)
}
