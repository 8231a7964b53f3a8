package activity

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agenthub/hub/internal/eventbus"
	"github.com/agenthub/hub/internal/types"
)

func TestSubscribeIndexesAllEvents(t *testing.T) {
	bus := eventbus.New()
	idx := New()
	idx.Subscribe(bus)

	bus.Emit(types.Event{Type: types.EventTaskStarted, TaskID: "t1"})
	bus.Emit(types.Event{Type: types.EventTaskAccepted, TaskID: "t2"})

	all := idx.Query(Query{})
	require.Len(t, all, 2)
}

func TestQueryFiltersByTypeAndTaskID(t *testing.T) {
	bus := eventbus.New()
	idx := New()
	idx.Subscribe(bus)

	bus.Emit(types.Event{Type: types.EventTaskStarted, TaskID: "t1"})
	bus.Emit(types.Event{Type: types.EventTaskAccepted, TaskID: "t1"})
	bus.Emit(types.Event{Type: types.EventTaskAccepted, TaskID: "t2"})

	byType := idx.Query(Query{Type: types.EventTaskAccepted})
	require.Len(t, byType, 2)

	byTask := idx.Query(Query{TaskID: "t1"})
	require.Len(t, byTask, 2)

	both := idx.Query(Query{Type: types.EventTaskAccepted, TaskID: "t1"})
	require.Len(t, both, 1)
}

func TestAnalyticsAggregatesByType(t *testing.T) {
	bus := eventbus.New()
	idx := New()
	idx.Subscribe(bus)

	bus.Emit(types.Event{Type: types.EventTaskStarted})
	bus.Emit(types.Event{Type: types.EventTaskStarted})
	bus.Emit(types.Event{Type: types.EventTaskAccepted})

	a := idx.Analytics()
	require.Equal(t, 3, a.TotalEvents)
	require.Equal(t, 2, a.ByType[types.EventTaskStarted])
	require.Equal(t, 1, a.ByType[types.EventTaskAccepted])
}

func TestQueryRespectsLimitAndRecencyOrder(t *testing.T) {
	bus := eventbus.New()
	idx := New()
	idx.Subscribe(bus)

	bus.Emit(types.Event{Type: types.EventTaskStarted, TaskID: "first"})
	bus.Emit(types.Event{Type: types.EventTaskStarted, TaskID: "second"})

	out := idx.Query(Query{Limit: 1})
	require.Len(t, out, 1)
	require.Equal(t, "second", out[0].TaskID)
}
