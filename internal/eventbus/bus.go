// Package eventbus implements the daemon's in-process typed pub/sub: a
// bounded recent-events ring plus per-type and wildcard handlers, dispatched
// synchronously and single-threaded relative to a single emit call.
package eventbus

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agenthub/hub/internal/obs"
	"github.com/agenthub/hub/internal/types"
)

// Handler reacts to an event. It must not block; long-running work belongs
// on a worker goroutine dispatched from inside the handler.
type Handler func(types.Event)

// Unsubscribe removes a previously registered handler. Idempotent.
type Unsubscribe func()

const defaultMaxRecent = 1000

type registration struct {
	id       uint64
	priority int
	handler  Handler
}

// Bus is the event bus (C2). Zero value is not usable; use New.
type Bus struct {
	mu        sync.Mutex
	maxRecent int
	recent    []types.Event
	byType    map[types.EventType][]registration
	wildcard  []registration
	nextID    uint64

	jetstream JetStreamPublisher // optional, see jetstream.go
}

// JetStreamPublisher is the narrow interface the bus needs from a NATS
// JetStream connection; nil unless SetJetStream has attached one.
type JetStreamPublisher interface {
	Publish(subject string, data []byte) error
}

// New constructs an empty Bus with the default recent-events bound.
func New() *Bus {
	return &Bus{
		maxRecent: defaultMaxRecent,
		byType:    make(map[types.EventType][]registration),
	}
}

// SetJetStream attaches an optional durable mirror target.
func (b *Bus) SetJetStream(p JetStreamPublisher) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.jetstream = p
}

// SetMaxRecent overrides the recent-ring bound (for tests).
func (b *Bus) SetMaxRecent(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maxRecent = n
}

// On registers a handler for an exact type or "*" for all events. Handlers
// for the same type/wildcard set fire in registration order (stable sort by
// insertion sequence — priority ties broken by order, matching §8's
// event-ordering invariant).
func (b *Bus) On(eventType types.EventType, handler Handler) Unsubscribe {
	return b.onWithPriority(eventType, 0, handler)
}

func (b *Bus) onWithPriority(eventType types.EventType, priority int, handler Handler) Unsubscribe {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	reg := registration{id: id, priority: priority, handler: handler}
	if eventType == "*" {
		b.wildcard = append(b.wildcard, reg)
	} else {
		b.byType[eventType] = append(b.byType[eventType], reg)
	}
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if eventType == "*" {
				b.wildcard = removeReg(b.wildcard, id)
			} else {
				b.byType[eventType] = removeReg(b.byType[eventType], id)
			}
		})
	}
}

func removeReg(regs []registration, id uint64) []registration {
	out := regs[:0:0]
	for _, r := range regs {
		if r.id != id {
			out = append(out, r)
		}
	}
	return out
}

// Emit assigns an id and timestamp, appends to the recent ring (evicting the
// oldest on overflow), then synchronously invokes type-specific handlers
// followed by wildcard handlers in priority order. Handler panics/errors are
// caught and logged; they never propagate to the caller or block siblings.
func (b *Bus) Emit(evt types.Event) string {
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	b.mu.Lock()
	b.recent = append(b.recent, evt)
	if len(b.recent) > b.maxRecent {
		b.recent = b.recent[len(b.recent)-b.maxRecent:]
	}
	typed := snapshot(b.byType[evt.Type])
	wild := snapshot(b.wildcard)
	js := b.jetstream
	b.mu.Unlock()

	dispatch(typed, evt)
	dispatch(wild, evt)

	if js != nil {
		b.publishToJetStream(js, evt)
	}

	return evt.ID
}

func snapshot(regs []registration) []registration {
	out := make([]registration, len(regs))
	copy(out, regs)
	sort.SliceStable(out, func(i, j int) bool { return out[i].priority > out[j].priority })
	return out
}

func dispatch(regs []registration, evt types.Event) {
	for _, r := range regs {
		invoke(r.handler, evt)
	}
}

func invoke(h Handler, evt types.Event) {
	defer func() {
		if r := recover(); r != nil {
			obs.Warnf("eventbus: handler panic for %s: %v", evt.Type, r)
		}
	}()
	h(evt)
}

// RecentQuery filters GetRecent results.
type RecentQuery struct {
	Type   types.EventType
	TaskID string
	Limit  int
}

// GetRecent returns up to Limit (default 50) most-recent matches, newest last.
func (b *Bus) GetRecent(q RecentQuery) []types.Event {
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	var matched []types.Event
	for i := len(b.recent) - 1; i >= 0 && len(matched) < limit; i-- {
		e := b.recent[i]
		if q.Type != "" && e.Type != q.Type {
			continue
		}
		if q.TaskID != "" && e.TaskID != q.TaskID {
			continue
		}
		matched = append(matched, e)
	}
	// reverse back to chronological order
	for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
		matched[i], matched[j] = matched[j], matched[i]
	}
	return matched
}

// Clear wipes handlers and the recent ring (for tests).
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.recent = nil
	b.byType = make(map[types.EventType][]registration)
	b.wildcard = nil
}
