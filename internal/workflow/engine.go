package workflow

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agenthub/hub/internal/eventbus"
	"github.com/agenthub/hub/internal/types"
)

const maxErrorLen = 300

// Assigner resolves "auto" assignment to a concrete account, via the
// capability router (kept behind an interface so the engine does not
// depend on internal/routing's store wiring directly).
type Assigner interface {
	AutoAssign(skills []string) (accountName string, ok bool)
}

// AuditSink receives step_assigned/step_skipped-style audit entries; the
// daemon wires this to the activity index (internal/activity).
type AuditSink interface {
	Record(runID, stepID, kind, detail string)
}

// Engine owns in-memory workflow runs and step runs for one daemon process.
type Engine struct {
	mu       sync.Mutex
	bus      *eventbus.Bus
	assigner Assigner
	audit    AuditSink

	runs     map[string]*types.WorkflowRun
	defs     map[string]types.WorkflowDef // runID -> def used to start it
	stepRuns map[string][]*types.StepRun  // runID -> step runs
}

func NewEngine(bus *eventbus.Bus, assigner Assigner, audit AuditSink) *Engine {
	return &Engine{
		bus:      bus,
		assigner: assigner,
		audit:    audit,
		runs:     make(map[string]*types.WorkflowRun),
		defs:     make(map[string]types.WorkflowDef),
		stepRuns: make(map[string][]*types.StepRun),
	}
}

func (e *Engine) recordAudit(runID, stepID, kind, detail string) {
	if e.audit != nil {
		e.audit.Record(runID, stepID, kind, detail)
	}
}

// TriggerWorkflow validates the DAG, creates a running run row with one
// pending step run per step, emits WORKFLOW_STARTED, and schedules ready
// steps.
func (e *Engine) TriggerWorkflow(def types.WorkflowDef, triggerContext map[string]interface{}) (*types.WorkflowRun, error) {
	if err := ValidateDAG(def); err != nil {
		return nil, err
	}

	run := &types.WorkflowRun{
		ID:             uuid.NewString(),
		WorkflowName:   def.Name,
		Status:         types.RunStatusRunning,
		TriggerContext: triggerContext,
		StartedAt:      time.Now().UTC(),
	}

	stepRuns := make([]*types.StepRun, 0, len(def.Steps))
	for _, s := range def.Steps {
		stepRuns = append(stepRuns, &types.StepRun{
			ID:      uuid.NewString(),
			RunID:   run.ID,
			StepID:  s.ID,
			Status:  types.StepPending,
			Attempt: 1,
		})
	}

	e.mu.Lock()
	e.runs[run.ID] = run
	e.defs[run.ID] = def
	e.stepRuns[run.ID] = stepRuns
	e.mu.Unlock()

	e.recordAudit(run.ID, "", "workflow_started", def.Name)
	e.bus.Emit(types.Event{Type: types.EventWorkflowStarted, Data: map[string]interface{}{"runId": run.ID, "workflow": def.Name}})

	e.ScheduleReady(run.ID)
	return run, nil
}

func (e *Engine) stepDef(def types.WorkflowDef, id string) (types.StepDef, bool) {
	for _, s := range def.Steps {
		if s.ID == id {
			return s, true
		}
	}
	return types.StepDef{}, false
}

func (e *Engine) findStepRun(runID, stepID string) *types.StepRun {
	for _, sr := range e.stepRuns[runID] {
		if sr.StepID == stepID {
			return sr
		}
	}
	return nil
}

// ScheduleReady assigns or skips every pending step whose dependencies are
// satisfied. It runs a second pass so that a step newly unblocked by a
// skip within this call is scheduled in the same invocation (idempotent —
// a call with nothing new to do is a no-op).
func (e *Engine) ScheduleReady(runID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	def, ok := e.defs[runID]
	if !ok {
		return
	}
	run := e.runs[runID]
	if run == nil || run.Status != types.RunStatusRunning {
		return
	}

	for {
		progressed := e.scheduleOnePass(runID, def)
		if !progressed {
			break
		}
	}

	e.maybeCompleteLocked(runID, def)
}

func (e *Engine) completedIDs(runID string) map[string]struct{} {
	completed := make(map[string]struct{})
	for _, sr := range e.stepRuns[runID] {
		if sr.Status.Terminal() {
			completed[sr.StepID] = struct{}{}
		}
	}
	return completed
}

func (e *Engine) scheduleOnePass(runID string, def types.WorkflowDef) bool {
	progressed := false
	completed := e.completedIDs(runID)

	for _, sr := range e.stepRuns[runID] {
		if sr.Status != types.StepPending {
			continue
		}
		step, ok := e.stepDef(def, sr.StepID)
		if !ok {
			continue
		}
		if !subsetOf(step.DependsOn, completed) {
			continue
		}

		if step.Condition != nil && step.Condition.When != "" {
			ok, err := Eval(step.Condition.When, e.evalContext(runID, def))
			if err == nil && !ok {
				e.skipStep(sr, "condition_not_met")
				e.recordAudit(runID, step.ID, "step_skipped", "condition_not_met")
				progressed = true
				completed[sr.StepID] = struct{}{}
				continue
			}
		}

		e.assignStep(runID, sr, step)
		progressed = true
	}
	return progressed
}

func (e *Engine) evalContext(runID string, def types.WorkflowDef) EvalContext {
	steps := make(map[string]StepContext)
	for _, sr := range e.stepRuns[runID] {
		var durMs int64
		if sr.StartedAt != nil && sr.CompletedAt != nil {
			durMs = sr.CompletedAt.Sub(*sr.StartedAt).Milliseconds()
		}
		steps[sr.StepID] = StepContext{Result: sr.Result, DurationMs: durMs, Assignee: sr.AssignedTo}
	}
	run := e.runs[runID]
	var trigger map[string]interface{}
	if run != nil {
		trigger = run.TriggerContext
	}
	return EvalContext{Steps: steps, Trigger: trigger}
}

func subsetOf(deps []string, completed map[string]struct{}) bool {
	for _, d := range deps {
		if _, ok := completed[d]; !ok {
			return false
		}
	}
	return true
}

func (e *Engine) skipStep(sr *types.StepRun, result string) {
	now := time.Now().UTC()
	sr.Status = types.StepSkipped
	sr.Result = result
	sr.CompletedAt = &now
}

func (e *Engine) assignStep(runID string, sr *types.StepRun, step types.StepDef) {
	assignee := step.Assign
	if assignee == "auto" {
		if e.assigner != nil {
			if a, ok := e.assigner.AutoAssign(step.Skills); ok {
				assignee = a
			} else {
				assignee = ""
			}
		} else {
			assignee = ""
		}
	}
	now := time.Now().UTC()
	sr.Status = types.StepAssigned
	sr.AssignedTo = assignee
	sr.StartedAt = &now

	e.recordAudit(runID, step.ID, "step_assigned", assignee)
	e.bus.Emit(types.Event{Type: types.EventWorkflowStepStarted, Data: map[string]interface{}{
		"runId": runID, "stepId": step.ID, "assignedTo": assignee,
	}})
}

func (e *Engine) maybeCompleteLocked(runID string, def types.WorkflowDef) {
	run := e.runs[runID]
	if run == nil || run.Status != types.RunStatusRunning {
		return
	}
	for _, sr := range e.stepRuns[runID] {
		if !sr.Status.Terminal() {
			return
		}
	}

	now := time.Now().UTC()
	run.CompletedAt = &now
	if def.Retro && e.hasParticipant(runID) {
		run.Status = types.RunStatusRetroInProgress
	} else {
		run.Status = types.RunStatusCompleted
	}
	e.bus.Emit(types.Event{Type: types.EventWorkflowCompleted, Data: map[string]interface{}{"runId": runID, "status": string(run.Status)}})
}

func (e *Engine) hasParticipant(runID string) bool {
	for _, sr := range e.stepRuns[runID] {
		if sr.AssignedTo != "" {
			return true
		}
	}
	return false
}

// OnStepCompleted marks a step run completed, emits WORKFLOW_STEP_COMPLETED
// with its duration, then reschedules.
func (e *Engine) OnStepCompleted(runID, stepID string, result string) {
	e.mu.Lock()
	sr := e.findStepRun(runID, stepID)
	if sr == nil {
		e.mu.Unlock()
		return
	}
	now := time.Now().UTC()
	sr.Status = types.StepCompleted
	sr.Result = result
	sr.CompletedAt = &now
	var durMs int64
	if sr.StartedAt != nil {
		durMs = now.Sub(*sr.StartedAt).Milliseconds()
	}
	e.mu.Unlock()

	e.bus.Emit(types.Event{Type: types.EventWorkflowStepDone, Data: map[string]interface{}{
		"runId": runID, "stepId": stepID, "durationMs": durMs,
	}})
	e.ScheduleReady(runID)
}

// OnStepFailed implements the retry/abort/notify policy of §4.8.
func (e *Engine) OnStepFailed(runID, stepID string, stepErr error) {
	e.mu.Lock()
	def, ok := e.defs[runID]
	sr := e.findStepRun(runID, stepID)
	if !ok || sr == nil {
		e.mu.Unlock()
		return
	}
	maxRetries := def.MaxRetries
	willRetry := sr.Attempt <= maxRetries
	attempt := sr.Attempt

	errMsg := stepErr.Error()
	if len(errMsg) > maxErrorLen {
		errMsg = errMsg[:maxErrorLen]
	}
	e.mu.Unlock()

	e.bus.Emit(types.Event{Type: types.EventWorkflowStepFailed, Data: map[string]interface{}{
		"runId": runID, "stepId": stepID, "error": errMsg, "attempt": attempt, "willRetry": willRetry,
	}})

	e.mu.Lock()
	if willRetry {
		sr.Status = types.StepPending
		sr.Attempt++
		sr.StartedAt = nil
		sr.CompletedAt = nil
		sr.AssignedTo = ""
		e.mu.Unlock()
		e.ScheduleReady(runID)
		return
	}

	sr.Status = types.StepFailed
	if def.OnFailure == types.OnFailureAbort {
		for _, other := range e.stepRuns[runID] {
			if !other.Status.Terminal() {
				e.skipStep(other, "aborted_due_to_failure")
			}
		}
		run := e.runs[runID]
		run.Status = types.RunStatusFailed
		now := time.Now().UTC()
		run.CompletedAt = &now
		e.mu.Unlock()
		e.bus.Emit(types.Event{Type: types.EventWorkflowCompleted, Data: map[string]interface{}{"runId": runID, "status": "failed"}})
		return
	}
	e.mu.Unlock()
	e.ScheduleReady(runID)
}

// CancelWorkflow marks every non-terminal step run skipped ("cancelled"),
// sets the run cancelled, and emits WORKFLOW_CANCELLED.
func (e *Engine) CancelWorkflow(runID string) error {
	e.mu.Lock()
	run, ok := e.runs[runID]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("workflow: unknown run %q", runID)
	}
	for _, sr := range e.stepRuns[runID] {
		if !sr.Status.Terminal() {
			e.skipStep(sr, "cancelled")
		}
	}
	run.Status = types.RunStatusCancelled
	now := time.Now().UTC()
	run.CompletedAt = &now
	e.mu.Unlock()

	e.bus.Emit(types.Event{Type: types.EventWorkflowCancelled, Data: map[string]interface{}{"runId": runID}})
	return nil
}

// Run returns a copy of the run row, if known.
func (e *Engine) Run(runID string) (types.WorkflowRun, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.runs[runID]
	if !ok {
		return types.WorkflowRun{}, false
	}
	return *r, true
}

// StepRuns returns a copy of all step runs for a run.
func (e *Engine) StepRuns(runID string) []types.StepRun {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]types.StepRun, 0, len(e.stepRuns[runID]))
	for _, sr := range e.stepRuns[runID] {
		out = append(out, *sr)
	}
	return out
}
