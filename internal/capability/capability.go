// Package capability holds the daemon's in-memory registry of account
// capability profiles and workload snapshots, feeding the routing package's
// scoring functions.
package capability

import (
	"sync"

	"github.com/agenthub/hub/internal/types"
)

// Store owns capability records and workload snapshots, one per account.
type Store struct {
	mu        sync.Mutex
	records   map[string]*types.CapabilityRecord
	workloads map[string]types.WorkloadSnapshot
}

func New() *Store {
	return &Store{
		records:   make(map[string]*types.CapabilityRecord),
		workloads: make(map[string]types.WorkloadSnapshot),
	}
}

// Upsert registers or replaces an account's capability profile.
func (s *Store) Upsert(rec types.CapabilityRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.AccountName] = &rec
}

// SetWorkload records the current workload snapshot for an account.
func (s *Store) SetWorkload(w types.WorkloadSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workloads[w.AccountName] = w
}

// All returns every known capability record.
func (s *Store) All() []types.CapabilityRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.CapabilityRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, *r)
	}
	return out
}

// Workloads returns a snapshot map suitable for routing.RankOptions.
func (s *Store) Workloads() map[string]types.WorkloadSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]types.WorkloadSnapshot, len(s.workloads))
	for k, v := range s.workloads {
		out[k] = v
	}
	return out
}
