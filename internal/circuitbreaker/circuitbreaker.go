// Package circuitbreaker implements the circuit breaker (C11): quarantines
// agents after repeated failures within a window and excludes them from
// routing until reinstated.
package circuitbreaker

import (
	"sync"
	"time"
)

// Quarantine records why and until-when an agent is excluded from routing.
type Quarantine struct {
	Agent   string
	Until   time.Time
	Reason  string
	Trigger string
}

type failureWindow struct {
	timestamps []time.Time
}

// Breaker tracks failure counts per agent and quarantines on threshold
// breach within a sliding window.
type Breaker struct {
	mu         sync.Mutex
	threshold  int
	window     time.Duration
	quarantine time.Duration
	failures   map[string]*failureWindow
	quarantined map[string]Quarantine
}

func New(threshold int, window, quarantineDuration time.Duration) *Breaker {
	return &Breaker{
		threshold:   threshold,
		window:      window,
		quarantine:  quarantineDuration,
		failures:    make(map[string]*failureWindow),
		quarantined: make(map[string]Quarantine),
	}
}

// RecordFailure notes a failure attributed to agent. If the count within
// the window reaches threshold, it returns (quarantine, true) and the agent
// is added to the quarantine map; otherwise ok is false.
func (b *Breaker) RecordFailure(agent, trigger, reason string) (Quarantine, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	fw, ok := b.failures[agent]
	if !ok {
		fw = &failureWindow{}
		b.failures[agent] = fw
	}
	cutoff := now.Add(-b.window)
	kept := fw.timestamps[:0]
	for _, ts := range fw.timestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	kept = append(kept, now)
	fw.timestamps = kept

	if len(fw.timestamps) < b.threshold {
		return Quarantine{}, false
	}

	q := Quarantine{Agent: agent, Until: now.Add(b.quarantine), Reason: reason, Trigger: trigger}
	b.quarantined[agent] = q
	fw.timestamps = nil
	return q, true
}

// IsQuarantined reports whether agent is currently excluded from routing.
func (b *Breaker) IsQuarantined(agent string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.quarantined[agent]
	if !ok {
		return false
	}
	if time.Now().After(q.Until) {
		delete(b.quarantined, agent)
		return false
	}
	return true
}

// Reinstate clears an agent's quarantine record.
func (b *Breaker) Reinstate(agent string) (Quarantine, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.quarantined[agent]
	if !ok {
		return Quarantine{}, false
	}
	delete(b.quarantined, agent)
	delete(b.failures, agent)
	return q, true
}

// QuarantinedAgents returns the set of agents currently excluded.
func (b *Breaker) QuarantinedAgents() map[string]struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now()
	out := make(map[string]struct{})
	for agent, q := range b.quarantined {
		if now.After(q.Until) {
			delete(b.quarantined, agent)
			continue
		}
		out[agent] = struct{}{}
	}
	return out
}
