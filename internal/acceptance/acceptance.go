// Package acceptance implements the auto-acceptance pipeline (C9): on
// ready_for_review, runs external verification commands and mutates the
// board, tracing each command execution with OpenTelemetry.
package acceptance

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/agenthub/hub/internal/eventbus"
	"github.com/agenthub/hub/internal/obs"
	"github.com/agenthub/hub/internal/taskstore"
	"github.com/agenthub/hub/internal/trust"
	"github.com/agenthub/hub/internal/types"
)

var tracer = otel.Tracer("github.com/agenthub/hub/internal/acceptance")

// HandoffLookup finds the most recent handoff record for a task. The lookup
// is keyed by task id alone; workspace and branch are not consulted.
type HandoffLookup interface {
	MostRecent(taskID string) (types.HandoffRecord, bool)
}

// FrictionVerdict is returned by the cognitive-friction gate.
type FrictionVerdict struct {
	Blocked bool
	Reason  string
	Level   string
}

// FrictionGate is the external cognitive-friction heuristic collaborator.
type FrictionGate interface {
	Evaluate(payload types.Handoff) FrictionVerdict
}

// CommandRunner executes one shell command in a workspace directory,
// forwarding stdout/stderr lines for streaming callers.
type CommandRunner interface {
	Run(ctx context.Context, workDir, command string, onLine func(stream, line string)) error
}

// execRunner is the default CommandRunner backed by os/exec.
type execRunner struct{}

func (execRunner) Run(ctx context.Context, workDir, command string, onLine func(stream, line string)) error {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = workDir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if onLine != nil {
		for _, line := range splitLines(stdout.String()) {
			onLine("stdout", line)
		}
		for _, line := range splitLines(stderr.String()) {
			onLine("stderr", line)
		}
	}
	return err
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			if i > start {
				lines = append(lines, s[start:i])
			}
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}

func DefaultCommandRunner() CommandRunner { return execRunner{} }

// Receipt is emitted with TASK_VERIFIED once verification completes.
type Receipt struct {
	TaskID          string    `json:"taskId"`
	Delegator       string    `json:"delegator"`
	Delegatee       string    `json:"delegatee"`
	SpecPayloadHash string    `json:"specPayloadHash"`
	Verdict         string    `json:"verdict"`
	Method          string    `json:"method"`
	Timestamp       time.Time `json:"timestamp"`
}

// Runner drives the acceptance pipeline for one task.
type Runner struct {
	Bus      *eventbus.Bus
	Tasks    *taskstore.Store
	Trust    *trust.Store
	Handoffs HandoffLookup
	Gate     FrictionGate // nil disables the cognitive-friction check
	Commands CommandRunner
}

// AcceptanceReply is what the RPC handler sends back immediately.
type AcceptanceReply struct {
	Acceptance string `json:"acceptance"` // "running" | "blocked"
	Reason     string `json:"reason,omitempty"`
	Level      string `json:"level,omitempty"`
}

// Begin evaluates the cognitive-friction gate (if enabled) and returns the
// immediate reply. If acceptance is "running", the caller should invoke
// RunAsync in a goroutine to perform the actual verification.
func (r *Runner) Begin(taskID string) (AcceptanceReply, *types.HandoffRecord, types.Handoff) {
	hr, ok := r.Handoffs.MostRecent(taskID)
	if !ok {
		return AcceptanceReply{Acceptance: "blocked", Reason: "no handoff record found"}, nil, types.Handoff{}
	}

	var payload types.Handoff
	if err := json.Unmarshal([]byte(hr.Content), &payload); err != nil {
		return AcceptanceReply{Acceptance: "blocked", Reason: "malformed handoff payload"}, &hr, payload
	}

	if r.Gate != nil {
		verdict := r.Gate.Evaluate(payload)
		if verdict.Blocked {
			r.Bus.Emit(types.Event{Type: types.EventProgressUpdate, TaskID: taskID, Data: map[string]interface{}{
				"activity": "cognitive_friction_triggered", "reason": verdict.Reason, "level": verdict.Level,
			}})
			return AcceptanceReply{Acceptance: "blocked", Reason: verdict.Reason, Level: verdict.Level}, &hr, payload
		}
	}

	return AcceptanceReply{Acceptance: "running"}, &hr, payload
}

// RunAsync executes the acceptance suite and mutates the board; it never
// propagates an error into the RPC layer — all outcomes surface via events.
func (r *Runner) RunAsync(ctx context.Context, taskID string, hr types.HandoffRecord, payload types.Handoff) {
	workDir := ""
	if board, loadErr := r.Tasks.Load(); loadErr == nil {
		if t, ok := board.Tasks[taskID]; ok && t.WorkspaceContext != nil {
			workDir = t.WorkspaceContext.WorkspacePath
		}
	}
	passed, err := r.runCommands(ctx, taskID, workDir, payload.RunCommands)
	if err != nil {
		obs.Warnf("acceptance: command execution error for task %s: %v", taskID, err)
	}

	board, loadErr := r.Tasks.Load()
	if loadErr != nil {
		obs.Warnf("acceptance: failed to load board for task %s: %v", taskID, loadErr)
		return
	}
	task, ok := board.Tasks[taskID]
	if !ok {
		obs.Warnf("acceptance: task %s vanished from board", taskID)
		return
	}

	var transitionErr error
	if passed {
		transitionErr = taskstore.Accept(task)
	} else {
		summary := "acceptance suite failed"
		if err != nil {
			summary = err.Error()
		}
		_, transitionErr = taskstore.Reject(task, summary)
	}
	if transitionErr != nil {
		obs.Warnf("acceptance: board transition failed for task %s: %v", taskID, transitionErr)
		return
	}
	if saveErr := r.Tasks.Save(board); saveErr != nil {
		obs.Warnf("acceptance: failed to save board for task %s: %v", taskID, saveErr)
		return
	}

	verdict := "failed"
	if passed {
		verdict = "passed"
	}
	receipt := Receipt{
		TaskID:          taskID,
		Delegator:       hr.From,
		Delegatee:       hr.To,
		SpecPayloadHash: hashPayload(hr.Content),
		Verdict:         verdict,
		Method:          "auto-acceptance",
		Timestamp:       time.Now().UTC(),
	}
	r.Bus.Emit(types.Event{Type: types.EventTaskVerified, TaskID: taskID, Data: map[string]interface{}{
		"receipt": receipt, "passed": passed,
	}})

	outcome := types.OutcomeCompleted
	if !passed {
		outcome = types.OutcomeFailed
	}
	if r.Trust != nil {
		result := r.Trust.RecordOutcome(hr.To, outcome)
		if result.Changed {
			r.Bus.Emit(types.Event{Type: types.EventTrustUpdate, Data: map[string]interface{}{
				"agent": hr.To, "delta": result.Delta, "reason": verdict,
			}})
		}
	}
}

func (r *Runner) runCommands(ctx context.Context, taskID, workDir string, commands []string) (bool, error) {
	ctx, span := tracer.Start(ctx, "acceptance.run_commands")
	defer span.End()
	span.SetAttributes(attribute.String("task_id", taskID), attribute.Int("command_count", len(commands)))

	for _, cmd := range commands {
		_, cmdSpan := tracer.Start(ctx, "acceptance.run_command")
		cmdSpan.SetAttributes(attribute.String("command", cmd))

		var stdout, stderr bytes.Buffer
		err := r.Commands.Run(ctx, workDir, cmd, func(stream, line string) {
			if stream == "stdout" {
				stdout.WriteString(line + "\n")
			} else {
				stderr.WriteString(line + "\n")
			}
			r.Bus.Emit(types.Event{Type: types.EventTDDTestOutput, TaskID: taskID, Data: map[string]interface{}{
				"stream": stream, "line": line,
			}})
		})
		addCommandOutputEvents(cmdSpan, &stdout, &stderr)
		if err != nil {
			cmdSpan.RecordError(err)
			cmdSpan.End()
			return false, fmt.Errorf("command %q failed: %w", cmd, err)
		}
		cmdSpan.End()
	}
	return true, nil
}

// addCommandOutputEvents records captured stdout/stderr as span events,
// mirroring the teacher's hook-execution tracing pattern.
func addCommandOutputEvents(span trace.Span, stdout, stderr *bytes.Buffer) {
	if n := stdout.Len(); n > 0 {
		span.AddEvent("acceptance.stdout", trace.WithAttributes(attribute.Int("bytes", n)))
	}
	if n := stderr.Len(); n > 0 {
		span.AddEvent("acceptance.stderr", trace.WithAttributes(attribute.Int("bytes", n)))
	}
}

func hashPayload(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
