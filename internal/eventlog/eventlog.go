// Package eventlog implements the durable append-only NDJSON event log
// (C12): rotation, pruning, and query, plus wiring as a wildcard bus handler.
package eventlog

import (
	"bufio"
	"encoding/json"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/agenthub/hub/internal/eventbus"
	"github.com/agenthub/hub/internal/obs"
	"github.com/agenthub/hub/internal/types"
)

const (
	DefaultMaxBytes = 100 << 20 // 100 MiB
	DefaultMaxAge   = 7 * 24 * time.Hour
)

// Log is the durable NDJSON event log at Path.
type Log struct {
	mu       sync.Mutex
	path     string
	maxBytes int64
	maxAge   time.Duration
}

func New(path string) *Log {
	return &Log{path: path, maxBytes: DefaultMaxBytes, maxAge: DefaultMaxAge}
}

func (l *Log) SetMaxBytes(n int64)        { l.maxBytes = n }
func (l *Log) SetMaxAge(d time.Duration) { l.maxAge = d }

// Append writes one event as a line, rotating first if the file has grown
// past maxBytes.
func (l *Log) Append(evt types.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if info, err := os.Stat(l.path); err == nil && info.Size() > l.maxBytes {
		if err := os.Rename(l.path, l.path+".old"); err != nil {
			obs.Warnf("eventlog: rotate failed: %v", err)
		}
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = f.Write(data)
	return err
}

// Query reads all lines, skipping malformed ones, and returns up to Limit
// most-recent matches (tail semantics).
type Query struct {
	Type  types.EventType
	Since time.Time
	Limit int
}

func (l *Log) Query(q Query) ([]types.Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}

	var all []types.Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for scanner.Scan() {
		var e types.Event
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		if q.Type != "" && !typeMatches(q.Type, e.Type) {
			continue
		}
		if !q.Since.IsZero() && e.Timestamp.Before(q.Since) {
			continue
		}
		all = append(all, e)
	}

	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

func typeMatches(pattern types.EventType, t types.EventType) bool {
	p := string(pattern)
	if strings.HasSuffix(p, "*") {
		return strings.HasPrefix(string(t), strings.TrimSuffix(p, "*"))
	}
	return pattern == t
}

// Prune drops entries older than maxAge by rewriting the file.
func (l *Log) Prune() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	events, err := l.readAllLocked()
	if err != nil {
		return err
	}
	cutoff := time.Now().Add(-l.maxAge)
	kept := events[:0]
	for _, e := range events {
		if e.Timestamp.After(cutoff) {
			kept = append(kept, e)
		}
	}
	return l.rewriteLocked(kept)
}

func (l *Log) readAllLocked() ([]types.Event, error) {
	f, err := os.Open(l.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var all []types.Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for scanner.Scan() {
		var e types.Event
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		all = append(all, e)
	}
	return all, nil
}

func (l *Log) rewriteLocked(events []types.Event) error {
	f, err := os.Create(l.path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	for _, e := range events {
		data, err := json.Marshal(e)
		if err != nil {
			continue
		}
		w.Write(data)
		w.WriteByte('\n')
	}
	return w.Flush()
}

// Subscribe wires the log as a wildcard handler on bus, auto-appending
// every emitted event.
func (l *Log) Subscribe(bus *eventbus.Bus) {
	bus.On("*", func(e types.Event) {
		if err := l.Append(e); err != nil {
			obs.Warnf("eventlog: append failed: %v", err)
		}
	})
}
