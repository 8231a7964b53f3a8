// Package subscription implements the socket-to-pattern-set registry (C3):
// it broadcasts bus events to subscribed sockets with per-socket
// backpressure, drain timeouts, and a periodic heartbeat.
package subscription

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/agenthub/hub/internal/framing"
	"github.com/agenthub/hub/internal/obs"
	"github.com/agenthub/hub/internal/types"
)

const (
	MaxPendingWrites       = 500
	DefaultDrainTimeout    = time.Second
	DefaultHeartbeatPeriod = 30 * time.Second
)

// Writer is the narrow interface a subscriber socket must satisfy. Write
// returns ErrWouldBlock when the underlying buffer is full so the registry
// can arm a drain timer instead of blocking the event loop.
type Writer interface {
	Write(frame []byte) error
	Close() error
}

// ErrWouldBlock signals backpressure from a Writer implementation.
var ErrWouldBlock = wouldBlockError{}

type wouldBlockError struct{}

func (wouldBlockError) Error() string { return "subscription: write would block" }

type subscriberState struct {
	socket        Writer
	account       string
	patterns      map[string]struct{}
	pendingWrites int
	drainTimer    *time.Timer
}

// Registry is the subscription registry (C3).
type Registry struct {
	mu            sync.Mutex
	subs          map[Writer]*subscriberState
	drainTimeout  time.Duration
	heartbeatStop chan struct{}
	heartbeatOn   bool
}

func New() *Registry {
	return &Registry{
		subs:         make(map[Writer]*subscriberState),
		drainTimeout: DefaultDrainTimeout,
	}
}

// Subscribe merges patterns into an existing subscription or creates one.
// Starts the heartbeat loop if this is the first subscriber.
func (r *Registry) Subscribe(socket Writer, account string, patterns []string) {
	r.mu.Lock()
	st, ok := r.subs[socket]
	if !ok {
		st = &subscriberState{socket: socket, account: account, patterns: make(map[string]struct{})}
		r.subs[socket] = st
	}
	for _, p := range patterns {
		st.patterns[p] = struct{}{}
	}
	startHeartbeat := len(r.subs) == 1 && !r.heartbeatOn
	if startHeartbeat {
		r.heartbeatOn = true
	}
	r.mu.Unlock()

	if startHeartbeat {
		r.startHeartbeat(DefaultHeartbeatPeriod)
	}
}

// Unsubscribe removes listed patterns (or all, if patterns is nil/empty).
// Removes the subscription entirely once empty, stopping the heartbeat if
// the registry becomes empty.
func (r *Registry) Unsubscribe(socket Writer, patterns []string) {
	r.mu.Lock()
	st, ok := r.subs[socket]
	if !ok {
		r.mu.Unlock()
		return
	}
	if len(patterns) == 0 {
		delete(r.subs, socket)
	} else {
		for _, p := range patterns {
			delete(st.patterns, p)
		}
		if len(st.patterns) == 0 {
			delete(r.subs, socket)
		}
	}
	empty := len(r.subs) == 0
	if empty {
		r.heartbeatOn = false
	}
	r.mu.Unlock()

	if empty && r.heartbeatStop != nil {
		close(r.heartbeatStop)
		r.heartbeatStop = nil
	}
}

// RemoveSocket forgets a socket entirely (called on connection close).
func (r *Registry) RemoveSocket(socket Writer) {
	r.Unsubscribe(socket, nil)
}

// matches reports whether pattern p matches event type t: exact, "*", or
// "prefix*" where t has that prefix.
func matches(p, t string) bool {
	if p == "*" || p == t {
		return true
	}
	if strings.HasSuffix(p, "*") && strings.HasPrefix(t, strings.TrimSuffix(p, "*")) {
		return true
	}
	return false
}

type streamFrame struct {
	Type  string      `json:"type"`
	Event types.Event `json:"event"`
}

// Broadcast encodes one frame and fans it out to every subscription whose
// patterns match the event type, honoring backpressure and size limits.
func (r *Registry) Broadcast(evt types.Event) {
	frame := streamFrame{Type: "stream_event", Event: evt}
	data, err := json.Marshal(frame)
	if err != nil {
		obs.Warnf("subscription: failed to marshal event %s: %v", evt.Type, err)
		return
	}
	data = append(data, '\n')
	if len(data) > framing.MaxStreamChunkBytes {
		obs.Warnf("subscription: dropping oversize stream frame for %s", evt.Type)
		return
	}

	r.mu.Lock()
	targets := make([]*subscriberState, 0, len(r.subs))
	for _, st := range r.subs {
		if subscriptionMatches(st, string(evt.Type)) {
			targets = append(targets, st)
		}
	}
	r.mu.Unlock()

	var toRemove []Writer
	for _, st := range targets {
		if !r.writeOne(st, data) {
			toRemove = append(toRemove, st.socket)
		}
	}
	for _, s := range toRemove {
		r.RemoveSocket(s)
	}
}

func subscriptionMatches(st *subscriberState, eventType string) bool {
	for p := range st.patterns {
		if matches(p, eventType) {
			return true
		}
	}
	return false
}

// writeOne attempts one write, returns false if the socket should be
// removed (closed, or drain timed out).
func (r *Registry) writeOne(st *subscriberState, data []byte) bool {
	r.mu.Lock()
	if st.pendingWrites >= MaxPendingWrites {
		r.mu.Unlock()
		obs.Warnf("subscription: dropping event for %s, pendingWrites at cap", st.account)
		return true
	}
	st.pendingWrites++
	r.mu.Unlock()

	err := st.socket.Write(data)
	if err == nil {
		r.mu.Lock()
		st.pendingWrites--
		r.mu.Unlock()
		return true
	}
	if err != ErrWouldBlock {
		return false
	}

	// Arm a drain timer. The Writer is expected to retry the write
	// internally and eventually succeed (draining pendingWrites itself via
	// a future successful write) or the timer fires first and the socket
	// is torn down. We keep the broadcaster non-blocking: the timer runs
	// on its own goroutine.
	timer := time.AfterFunc(r.drainTimeout, func() {
		r.mu.Lock()
		_, stillSubscribed := r.subs[st.socket]
		r.mu.Unlock()
		if stillSubscribed {
			obs.Warnf("subscription: drain timeout for %s, destroying socket", st.account)
			st.socket.Close()
			r.RemoveSocket(st.socket)
		}
	})
	r.mu.Lock()
	st.drainTimer = timer
	r.mu.Unlock()
	return true
}

func (r *Registry) startHeartbeat(period time.Duration) {
	stop := make(chan struct{})
	r.mu.Lock()
	r.heartbeatStop = stop
	r.mu.Unlock()

	go func() {
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				r.sendHeartbeat()
			}
		}
	}()
}

func (r *Registry) sendHeartbeat() {
	data := []byte(`{"type":"heartbeat"}` + "\n")
	r.mu.Lock()
	targets := make([]Writer, 0, len(r.subs))
	for s := range r.subs {
		targets = append(targets, s)
	}
	r.mu.Unlock()

	var toRemove []Writer
	for _, s := range targets {
		if err := s.Write(data); err != nil {
			toRemove = append(toRemove, s)
		}
	}
	for _, s := range toRemove {
		r.RemoveSocket(s)
	}
}

// Destroy clears all state and timers; idempotent.
func (r *Registry) Destroy() {
	r.mu.Lock()
	r.subs = make(map[Writer]*subscriberState)
	stop := r.heartbeatStop
	r.heartbeatStop = nil
	r.heartbeatOn = false
	r.mu.Unlock()
	if stop != nil {
		close(stop)
	}
}
