package taskstore

import (
	"fmt"
	"time"

	"github.com/agenthub/hub/internal/types"
)

// ErrInvalidTransition is returned when a requested transition is not legal
// from the task's current status.
type ErrInvalidTransition struct {
	From types.TaskStatus
	Verb string
}

func (e ErrInvalidTransition) Error() string {
	return fmt.Sprintf("taskstore: cannot %s from status %s", e.Verb, e.From)
}

// Start transitions todo|needs_review -> in_progress.
func Start(t *types.Task, assignee string) error {
	switch t.Status {
	case types.StatusTodo, types.StatusNeedsReview:
		from := t.Status
		t.Status = types.StatusInProgress
		if assignee != "" {
			t.Assignee = assignee
		}
		appendTransition(t, from, t.Status, "")
		return nil
	default:
		return ErrInvalidTransition{From: t.Status, Verb: "start"}
	}
}

// SubmitForReview transitions in_progress -> ready_for_review, optionally
// recording workspace context.
func SubmitForReview(t *types.Task, ws *types.WorkspaceContext) error {
	if t.Status != types.StatusInProgress {
		return ErrInvalidTransition{From: t.Status, Verb: "submit_review"}
	}
	from := t.Status
	t.Status = types.StatusReadyForReview
	if ws != nil {
		t.WorkspaceContext = ws
	}
	appendTransition(t, from, t.Status, "")
	return nil
}

// TransitionResult communicates escalation to the caller so it can emit the
// corresponding bus events.
type TransitionResult struct {
	Escalated bool
}

// Accept transitions ready_for_review|needs_review -> accepted (terminal).
func Accept(t *types.Task) error {
	switch t.Status {
	case types.StatusReadyForReview, types.StatusNeedsReview:
		from := t.Status
		t.Status = types.StatusAccepted
		appendTransition(t, from, t.Status, "")
		t.Events = append(t.Events, types.TaskEvent{Timestamp: now(), Kind: "review_accepted"})
		return nil
	default:
		return ErrInvalidTransition{From: t.Status, Verb: "accept"}
	}
}

// Reject transitions ready_for_review -> in_progress, incrementing
// rejectionCount; when the count reaches RejectionEscalationThreshold the
// task is force-transitioned to needs_review instead and the counter
// freezes for this run.
func Reject(t *types.Task, reason string) (TransitionResult, error) {
	if reason == "" {
		return TransitionResult{}, fmt.Errorf("taskstore: reject requires a non-empty reason")
	}
	if t.Status != types.StatusReadyForReview {
		return TransitionResult{}, ErrInvalidTransition{From: t.Status, Verb: "reject"}
	}

	from := t.Status
	t.RejectionCount++
	t.Events = append(t.Events, types.TaskEvent{Timestamp: now(), Kind: "review_rejected", Reason: reason})

	if t.RejectionCount == RejectionEscalationThreshold {
		t.Status = types.StatusNeedsReview
		appendTransition(t, from, t.Status, reason)
		escReason := fmt.Sprintf("Rejected %d times", t.RejectionCount)
		t.Events = append(t.Events, types.TaskEvent{Timestamp: now(), Kind: "escalated", Reason: escReason})
		return TransitionResult{Escalated: true}, nil
	}

	t.Status = types.StatusInProgress
	appendTransition(t, from, t.Status, reason)
	return TransitionResult{}, nil
}

func appendTransition(t *types.Task, from, to types.TaskStatus, reason string) {
	t.Events = append(t.Events, types.TaskEvent{
		Timestamp: now(),
		Kind:      "status_changed",
		From:      from,
		To:        to,
		Reason:    reason,
	})
}

// now is a var so tests can deterministically stub time.
var now = func() time.Time { return time.Now().UTC() }
