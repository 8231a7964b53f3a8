// Package sla implements the SLA engine (C7): classic wall-clock staleness
// checks and adaptive resource-signal-driven escalation, whose reassign
// actions are cooldown-gated.
package sla

import (
	"sync"
	"time"

	"github.com/agenthub/hub/internal/types"
)

// Action is the classic staleness action taken on a task.
type Action string

const (
	ActionPing               Action = "ping"
	ActionReassignSuggestion Action = "reassign_suggestion"
	ActionEscalate           Action = "escalate"
)

// ClassicThresholds configures the periodic staleness check.
type ClassicThresholds struct {
	InProgressMaxMs int64
	BlockedMaxMs    int64
	ReviewMaxMs     int64
}

func DefaultClassicThresholds() ClassicThresholds {
	return ClassicThresholds{
		InProgressMaxMs: 30 * 60 * 1000,
		BlockedMaxMs:    15 * 60 * 1000,
		ReviewMaxMs:     20 * 60 * 1000,
	}
}

// CheckClassic evaluates one task against the classic thresholds, given
// "now". Returns "", false if no action applies.
func CheckClassic(t *types.Task, now time.Time, th ClassicThresholds) (Action, bool) {
	staleMs := now.Sub(t.LastStatusChangeAt()).Milliseconds()

	switch {
	case t.Status == types.StatusInProgress && !t.Blocked:
		if staleMs > 2*th.InProgressMaxMs {
			return ActionReassignSuggestion, true
		}
		if staleMs > th.InProgressMaxMs {
			return ActionPing, true
		}
	case t.Status == types.StatusInProgress && t.Blocked:
		if staleMs > th.BlockedMaxMs {
			return ActionEscalate, true
		}
	case t.Status == types.StatusReadyForReview:
		if staleMs > th.ReviewMaxMs {
			return ActionPing, true
		}
	}
	return "", false
}

// --- Adaptive engine ---

// SessionMetrics is supplied by an external SessionMetricsSource for one
// in-progress task's backing agent session.
type SessionMetrics struct {
	TaskID              string
	BurnRate            float64
	AverageBurnRate     float64
	MinutesSinceCheckpoint float64
	ContextSaturation   float64
	SessionPhase        string // "active" | "ended"
	UnresponsiveSinceMs int64
	Criticality         string // low|medium|high|critical
	Reversibility       string // reversible|irreversible
}

// AdaptiveAction is a possible adaptive escalation outcome.
type AdaptiveAction string

const (
	ActionTerminate      AdaptiveAction = "terminate"
	ActionEscalateHuman  AdaptiveAction = "escalate_human"
	ActionAutoReassign   AdaptiveAction = "auto_reassign"
	ActionSuggestReassign AdaptiveAction = "suggest_reassign"
	ActionAdaptivePing   AdaptiveAction = "ping"
)

// Trigger names the resource signal that fired.
type Trigger string

const (
	TriggerTokenBurnRate         Trigger = "token_burn_rate"
	TriggerNoCheckpoint          Trigger = "no_checkpoint"
	TriggerContextSaturation     Trigger = "context_saturation"
	TriggerSessionEndedIncomplete Trigger = "session_ended_incomplete"
)

// AdaptiveThresholds configures adaptive trigger detection.
type AdaptiveThresholds struct {
	BurnRateMultiplier      float64
	NoCheckpointMinutes     float64
	ContextSaturationLimit  float64
	TerminateMultiplier     float64
	CooldownMinutes         float64
}

func DefaultAdaptiveThresholds() AdaptiveThresholds {
	return AdaptiveThresholds{
		BurnRateMultiplier:     2,
		NoCheckpointMinutes:    10,
		ContextSaturationLimit: 0.80,
		TerminateMultiplier:    2,
		CooldownMinutes:        15,
	}
}

// DetectTrigger returns the first matching adaptive trigger for m, if any.
func DetectTrigger(m SessionMetrics, th AdaptiveThresholds) (Trigger, bool) {
	if m.SessionPhase == "ended" {
		return TriggerSessionEndedIncomplete, true
	}
	if m.ContextSaturation > th.ContextSaturationLimit {
		return TriggerContextSaturation, true
	}
	if m.MinutesSinceCheckpoint > th.NoCheckpointMinutes {
		return TriggerNoCheckpoint, true
	}
	if m.AverageBurnRate > 0 && m.BurnRate > th.BurnRateMultiplier*m.AverageBurnRate {
		return TriggerTokenBurnRate, true
	}
	return "", false
}

// DetermineAction implements the §4.7 decision tree given a trigger and
// thresholds. unresponsiveThresholdMs is the base threshold (e.g.
// InProgressMaxMs) the terminate multiplier scales.
func DetermineAction(trigger Trigger, m SessionMetrics, th AdaptiveThresholds, unresponsiveThresholdMs int64) AdaptiveAction {
	if float64(m.UnresponsiveSinceMs) > float64(unresponsiveThresholdMs)*th.TerminateMultiplier {
		return ActionTerminate
	}
	if m.Reversibility == "irreversible" {
		return ActionEscalateHuman
	}
	if trigger == TriggerSessionEndedIncomplete || trigger == TriggerContextSaturation {
		if m.Criticality == "high" || m.Criticality == "critical" {
			return ActionAutoReassign
		}
		return ActionSuggestReassign
	}
	return ActionAdaptivePing
}

// EventForTrigger maps a trigger to the event type emitted alongside it.
func EventForTrigger(t Trigger) types.EventType {
	switch t {
	case TriggerSessionEndedIncomplete:
		return types.EventSLABreach
	case TriggerNoCheckpoint:
		return types.EventSLAWarning
	default:
		return types.EventResourceWarning
	}
}

// Cooldowns tracks the last adaptive-action time per task so that
// auto_reassign/suggest_reassign actions obey the cooldown invariant.
type Cooldowns struct {
	mu      sync.Mutex
	lastAt  map[string]time.Time
	minutes float64
}

func NewCooldowns(minutes float64) *Cooldowns {
	return &Cooldowns{lastAt: make(map[string]time.Time), minutes: minutes}
}

// Allow reports whether a new gated action (auto_reassign/suggest_reassign)
// may fire for taskID at now; if so it records now as the last-action time.
func (c *Cooldowns) Allow(taskID string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if last, ok := c.lastAt[taskID]; ok {
		if now.Sub(last) < time.Duration(c.minutes*float64(time.Minute)) {
			return false
		}
	}
	c.lastAt[taskID] = now
	return true
}

// IsGated reports whether action requires cooldown gating.
func IsGated(a AdaptiveAction) bool {
	return a == ActionAutoReassign || a == ActionSuggestReassign
}
