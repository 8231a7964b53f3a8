// Package activity maintains a queryable, in-memory index of daemon events,
// wired to the event bus by the daemon bootstrap. It backs the get_analytics
// RPC surface without requiring a SQL-backed store.
package activity

import (
	"sync"

	"github.com/agenthub/hub/internal/eventbus"
	"github.com/agenthub/hub/internal/types"
)

const defaultMaxEntries = 5000

// Entry is one indexed activity record.
type Entry struct {
	Event types.Event
}

// Index is a bounded ring of recent events, queryable by type and task id.
type Index struct {
	mu         sync.Mutex
	entries    []Entry
	maxEntries int
}

func New() *Index {
	return &Index{maxEntries: defaultMaxEntries}
}

// Subscribe wires the index to every event on the bus.
func (idx *Index) Subscribe(bus *eventbus.Bus) {
	bus.On("*", func(evt types.Event) { idx.record(evt) })
}

func (idx *Index) record(evt types.Event) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.entries = append(idx.entries, Entry{Event: evt})
	if len(idx.entries) > idx.maxEntries {
		idx.entries = idx.entries[len(idx.entries)-idx.maxEntries:]
	}
}

// Query filters indexed entries by optional event type and task id, most
// recent first, capped at limit (default 100).
type Query struct {
	Type   types.EventType
	TaskID string
	Limit  int
}

func (idx *Index) Query(q Query) []types.Event {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}

	out := make([]types.Event, 0, limit)
	for i := len(idx.entries) - 1; i >= 0 && len(out) < limit; i-- {
		e := idx.entries[i].Event
		if q.Type != "" && e.Type != q.Type {
			continue
		}
		if q.TaskID != "" && e.TaskID != q.TaskID {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Analytics is a cheap aggregate summary of indexed activity, backing
// get_analytics.
type Analytics struct {
	TotalEvents int                       `json:"total_events"`
	ByType      map[types.EventType]int   `json:"by_type"`
}

func (idx *Index) Analytics() Analytics {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	byType := make(map[types.EventType]int)
	for _, e := range idx.entries {
		byType[e.Event.Type]++
	}
	return Analytics{TotalEvents: len(idx.entries), ByType: byType}
}
