package types

import "time"

// OnFailurePolicy controls what the workflow engine does after a step
// exhausts its retries.
type OnFailurePolicy string

const (
	OnFailureNotify OnFailurePolicy = "notify"
	OnFailureRetry  OnFailurePolicy = "retry"
	OnFailureAbort  OnFailurePolicy = "abort"
)

// Condition gates a step behind a boolean expression over prior step results.
type Condition struct {
	When string `json:"when" yaml:"when" toml:"when"`
}

// Handoff is carried by a step definition describing what the assignee owes.
type Handoff struct {
	Goal               string   `json:"goal" yaml:"goal" toml:"goal"`
	AcceptanceCriteria []string `json:"acceptance_criteria,omitempty" yaml:"acceptance_criteria,omitempty" toml:"acceptance_criteria,omitempty"`
	RunCommands        []string `json:"run_commands,omitempty" yaml:"run_commands,omitempty" toml:"run_commands,omitempty"`
	BlockedBy          []string `json:"blocked_by,omitempty" yaml:"blocked_by,omitempty" toml:"blocked_by,omitempty"`

	Complexity               string   `json:"complexity,omitempty" yaml:"complexity,omitempty" toml:"complexity,omitempty"`
	Criticality              string   `json:"criticality,omitempty" yaml:"criticality,omitempty" toml:"criticality,omitempty"`
	Uncertainty              string   `json:"uncertainty,omitempty" yaml:"uncertainty,omitempty" toml:"uncertainty,omitempty"`
	EstimatedDurationMinutes int      `json:"estimated_duration_minutes,omitempty" yaml:"estimated_duration_minutes,omitempty" toml:"estimated_duration_minutes,omitempty"`
	Verifiability            string   `json:"verifiability,omitempty" yaml:"verifiability,omitempty" toml:"verifiability,omitempty"`
	Reversibility            string   `json:"reversibility,omitempty" yaml:"reversibility,omitempty" toml:"reversibility,omitempty"`
	RequiredSkills           []string `json:"required_skills,omitempty" yaml:"required_skills,omitempty" toml:"required_skills,omitempty"`
	AutonomyLevel            string   `json:"autonomy_level,omitempty" yaml:"autonomy_level,omitempty" toml:"autonomy_level,omitempty"`
	MonitoringLevel          string   `json:"monitoring_level,omitempty" yaml:"monitoring_level,omitempty" toml:"monitoring_level,omitempty"`
	VerificationPolicy       string   `json:"verification_policy,omitempty" yaml:"verification_policy,omitempty" toml:"verification_policy,omitempty"`
	ParentHandoffID          string   `json:"parent_handoff_id,omitempty" yaml:"parent_handoff_id,omitempty" toml:"parent_handoff_id,omitempty"`
	DelegationDepth          int      `json:"delegation_depth,omitempty" yaml:"delegation_depth,omitempty" toml:"delegation_depth,omitempty"`
}

// HandoffRecord is a persisted message transferring task ownership.
type HandoffRecord struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Content   string    `json:"content"` // JSON-encoded Handoff
	Context   string    `json:"context,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// StepDef is one node of a workflow DAG.
type StepDef struct {
	ID        string     `json:"id" yaml:"id" toml:"id"`
	Title     string     `json:"title" yaml:"title" toml:"title"`
	Assign    string     `json:"assign" yaml:"assign" toml:"assign"` // literal account name, or "auto"
	Skills    []string   `json:"skills,omitempty" yaml:"skills,omitempty" toml:"skills,omitempty"`
	DependsOn []string   `json:"depends_on,omitempty" yaml:"depends_on,omitempty" toml:"depends_on,omitempty"`
	Condition *Condition `json:"condition,omitempty" yaml:"condition,omitempty" toml:"condition,omitempty"`
	Handoff   Handoff    `json:"handoff" yaml:"handoff" toml:"handoff"`
}

// WorkflowDef is a parsed workflow definition document.
type WorkflowDef struct {
	Name       string          `json:"name" yaml:"name" toml:"name"`
	Version    string          `json:"version" yaml:"version" toml:"version"`
	Steps      []StepDef       `json:"steps" yaml:"steps" toml:"steps"`
	OnFailure  OnFailurePolicy `json:"on_failure" yaml:"on_failure" toml:"on_failure"`
	MaxRetries int             `json:"max_retries" yaml:"max_retries" toml:"max_retries"`
	Retro      bool            `json:"retro" yaml:"retro" toml:"retro"`
}

// WorkflowRunStatus enumerates run-level states.
type WorkflowRunStatus string

const (
	RunStatusRunning         WorkflowRunStatus = "running"
	RunStatusCompleted       WorkflowRunStatus = "completed"
	RunStatusFailed          WorkflowRunStatus = "failed"
	RunStatusCancelled       WorkflowRunStatus = "cancelled"
	RunStatusRetroInProgress WorkflowRunStatus = "retro_in_progress"
)

// WorkflowRun is one execution instance of a WorkflowDef.
type WorkflowRun struct {
	ID             string            `json:"id"`
	WorkflowName   string            `json:"workflow_name"`
	Status         WorkflowRunStatus `json:"status"`
	TriggerContext map[string]interface{} `json:"trigger_context,omitempty"`
	StartedAt      time.Time         `json:"started_at"`
	CompletedAt    *time.Time        `json:"completed_at,omitempty"`
	RetroID        string            `json:"retro_id,omitempty"`
}

// StepRunStatus enumerates step-run states; the terminal set is
// {completed, failed, skipped}.
type StepRunStatus string

const (
	StepPending   StepRunStatus = "pending"
	StepAssigned  StepRunStatus = "assigned"
	StepCompleted StepRunStatus = "completed"
	StepFailed    StepRunStatus = "failed"
	StepSkipped   StepRunStatus = "skipped"
)

func (s StepRunStatus) Terminal() bool {
	return s == StepCompleted || s == StepFailed || s == StepSkipped
}

// StepRun is one execution instance of a StepDef within a WorkflowRun.
type StepRun struct {
	ID          string        `json:"id"`
	RunID       string        `json:"run_id"`
	StepID      string        `json:"step_id"`
	Status      StepRunStatus `json:"status"`
	AssignedTo  string        `json:"assigned_to,omitempty"`
	StartedAt   *time.Time    `json:"started_at,omitempty"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	Attempt     int           `json:"attempt"`
	Result      string        `json:"result,omitempty"`
}
