// Package trust implements the trust store (C5): per-agent trust score
// updates from task outcomes.
package trust

import (
	"sync"

	"github.com/agenthub/hub/internal/types"
)

const (
	baselineScore = 50.0
	minScore      = 0.0
	maxScore      = 100.0

	// Deltas: completion moves the score up by a small bounded amount;
	// failure/rejection move it down by a larger one, so repeated failures
	// erode trust faster than successes rebuild it. This schedule is a
	// deliberate choice (the source spec leaves the exact numbers open);
	// kept as named constants so a deployment can retune without touching
	// call sites.
	completedDelta = 2.0
	failedDelta    = -4.0
	rejectedDelta  = -3.0
)

// Store owns trust records, one per agent, guarded by a single mutex since
// it is a single-threaded-writer-per-store component per the concurrency
// model.
type Store struct {
	mu      sync.Mutex
	records map[string]*types.TrustRecord
}

func New() *Store {
	return &Store{records: make(map[string]*types.TrustRecord)}
}

// Outcome is returned to the caller so it can decide whether to emit
// TRUST_UPDATE (only when the score actually changed).
type Outcome struct {
	Record  types.TrustRecord
	Delta   float64
	Changed bool
}

// RecordOutcome updates counters and the score for agent, creating a
// baseline record (score 50) if the agent is unknown.
func (s *Store) RecordOutcome(agent string, outcome types.TrustOutcome) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[agent]
	if !ok {
		rec = &types.TrustRecord{Agent: agent, TrustScore: baselineScore}
		s.records[agent] = rec
	}

	var delta float64
	switch outcome {
	case types.OutcomeCompleted:
		delta = completedDelta
		rec.CompletedCount++
	case types.OutcomeFailed:
		delta = failedDelta
		rec.FailedCount++
	case types.OutcomeRejected:
		delta = rejectedDelta
		rec.FailedCount++
	}

	before := rec.TrustScore
	rec.TrustScore = clamp(rec.TrustScore+delta, minScore, maxScore)
	changed := rec.TrustScore != before

	return Outcome{Record: *rec, Delta: rec.TrustScore - before, Changed: changed}
}

// Get returns the record for agent, if any.
func (s *Store) Get(agent string) (types.TrustRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[agent]
	if !ok {
		return types.TrustRecord{}, false
	}
	return *rec, true
}

// GetAll returns every known trust record.
func (s *Store) GetAll() []types.TrustRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.TrustRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, *r)
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
