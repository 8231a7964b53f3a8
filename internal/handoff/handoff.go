// Package handoff stores handoff records: a delegator's structured ask to a
// delegatee for one task. Acceptance (C9) reads the most recent record per
// task to drive its verification pipeline.
package handoff

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agenthub/hub/internal/types"
)

// Store keeps every handoff record per task, most recent last.
type Store struct {
	mu      sync.Mutex
	byTask  map[string][]types.HandoffRecord
}

func New() *Store {
	return &Store{byTask: make(map[string][]types.HandoffRecord)}
}

// Create records a new handoff for taskID and returns it.
func (s *Store) Create(taskID, from, to, content, context string) types.HandoffRecord {
	rec := types.HandoffRecord{
		ID:        uuid.NewString(),
		From:      from,
		To:        to,
		Content:   content,
		Context:   context,
		Timestamp: time.Now().UTC(),
	}
	s.mu.Lock()
	s.byTask[taskID] = append(s.byTask[taskID], rec)
	s.mu.Unlock()
	return rec
}

// MostRecent implements acceptance.HandoffLookup.
func (s *Store) MostRecent(taskID string) (types.HandoffRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := s.byTask[taskID]
	if len(records) == 0 {
		return types.HandoffRecord{}, false
	}
	return records[len(records)-1], true
}

// All returns every handoff recorded for a task, oldest first.
func (s *Store) All(taskID string) []types.HandoffRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.HandoffRecord, len(s.byTask[taskID]))
	copy(out, s.byTask[taskID])
	return out
}
