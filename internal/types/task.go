package types

import "time"

// TaskStatus enumerates the six legal states of the task state machine.
type TaskStatus string

const (
	StatusTodo            TaskStatus = "todo"
	StatusInProgress      TaskStatus = "in_progress"
	StatusReadyForReview  TaskStatus = "ready_for_review"
	StatusAccepted        TaskStatus = "accepted"
	StatusRejected        TaskStatus = "rejected"
	StatusNeedsReview     TaskStatus = "needs_review"
)

// WorkspaceContext is recorded when a task is submitted for review.
type WorkspaceContext struct {
	WorkspacePath string `json:"workspacePath"`
	Branch        string `json:"branch"`
	WorkspaceID   string `json:"workspaceId,omitempty"`
}

// TaskEvent is an entry in a task's own audit trail (distinct from bus Events).
type TaskEvent struct {
	Timestamp time.Time  `json:"timestamp"`
	Kind      string     `json:"kind"`
	From      TaskStatus `json:"from,omitempty"`
	To        TaskStatus `json:"to,omitempty"`
	Reason    string     `json:"reason,omitempty"`
}

// Task is one row of the task board.
type Task struct {
	ID               string            `json:"id"`
	Title            string            `json:"title"`
	Status           TaskStatus        `json:"status"`
	Assignee         string            `json:"assignee,omitempty"`
	CreatedAt        time.Time         `json:"createdAt"`
	Events           []TaskEvent       `json:"events"`
	RejectionCount   int               `json:"rejectionCount"`
	Tags             []string          `json:"tags,omitempty"`
	Priority         int               `json:"priority"`
	Blocked          bool              `json:"blocked,omitempty"`
	WorkspaceContext *WorkspaceContext `json:"workspaceContext,omitempty"`
}

// Board is the full task store persisted to tasks.json.
type Board struct {
	Tasks map[string]*Task `json:"tasks"`
}

// LastStatusChangeAt returns the timestamp of the most recent status_changed
// event whose To matches the task's current status, used by the SLA engine
// to compute staleness. Falls back to CreatedAt if no such event exists.
func (t *Task) LastStatusChangeAt() time.Time {
	for i := len(t.Events) - 1; i >= 0; i-- {
		e := t.Events[i]
		if e.Kind == "status_changed" && e.To == t.Status {
			return e.Timestamp
		}
	}
	return t.CreatedAt
}
