package acceptance

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agenthub/hub/internal/eventbus"
	"github.com/agenthub/hub/internal/taskstore"
	"github.com/agenthub/hub/internal/trust"
	"github.com/agenthub/hub/internal/types"
)

type fakeHandoffs struct {
	record types.HandoffRecord
	ok     bool
}

func (f fakeHandoffs) MostRecent(taskID string) (types.HandoffRecord, bool) { return f.record, f.ok }

type fakeGate struct{ verdict FrictionVerdict }

func (f fakeGate) Evaluate(types.Handoff) FrictionVerdict { return f.verdict }

type scriptedRunner struct {
	fail bool
}

func (r scriptedRunner) Run(ctx context.Context, workDir, command string, onLine func(stream, line string)) error {
	if onLine != nil {
		onLine("stdout", "ok: "+command)
	}
	if r.fail {
		return context.DeadlineExceeded
	}
	return nil
}

func newStore(t *testing.T, assignee string) *taskstore.Store {
	dir := t.TempDir()
	st := taskstore.New(filepath.Join(dir, "board.json"))
	board := &types.Board{Tasks: map[string]*types.Task{
		"t1": {ID: "t1", Status: types.StatusReadyForReview, Assignee: assignee},
	}}
	require.NoError(t, st.Save(board))
	return st
}

func handoffFor(assignee string, commands []string) types.HandoffRecord {
	payload := types.Handoff{RunCommands: commands}
	content, _ := json.Marshal(payload)
	return types.HandoffRecord{From: "orchestrator", To: assignee, Content: string(content)}
}

func TestBeginBlocksWithNoHandoff(t *testing.T) {
	r := &Runner{Bus: eventbus.New(), Handoffs: fakeHandoffs{ok: false}}
	reply, _, _ := r.Begin("t1")
	require.Equal(t, "blocked", reply.Acceptance)
}

func TestBeginBlocksOnFrictionGate(t *testing.T) {
	hr := handoffFor("alice", []string{"true"})
	r := &Runner{
		Bus:      eventbus.New(),
		Handoffs: fakeHandoffs{record: hr, ok: true},
		Gate:     fakeGate{verdict: FrictionVerdict{Blocked: true, Reason: "too risky", Level: "high"}},
	}
	reply, _, _ := r.Begin("t1")
	require.Equal(t, "blocked", reply.Acceptance)
	require.Equal(t, "too risky", reply.Reason)
}

func TestBeginRunningWhenGatePasses(t *testing.T) {
	hr := handoffFor("alice", []string{"true"})
	r := &Runner{
		Bus:      eventbus.New(),
		Handoffs: fakeHandoffs{record: hr, ok: true},
		Gate:     fakeGate{verdict: FrictionVerdict{Blocked: false}},
	}
	reply, _, _ := r.Begin("t1")
	require.Equal(t, "running", reply.Acceptance)
}

func TestRunAsyncAcceptsOnSuccess(t *testing.T) {
	store := newStore(t, "alice")
	hr := handoffFor("alice", []string{"echo hi"})
	var payload types.Handoff
	require.NoError(t, json.Unmarshal([]byte(hr.Content), &payload))

	bus := eventbus.New()
	var verifiedEvt types.Event
	bus.On(types.EventTaskVerified, func(e types.Event) { verifiedEvt = e })

	r := &Runner{Bus: bus, Tasks: store, Trust: trust.New(), Commands: scriptedRunner{}}
	r.RunAsync(context.Background(), "t1", hr, payload)

	board, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, types.StatusAccepted, board.Tasks["t1"].Status)
	require.Equal(t, true, verifiedEvt.Data["passed"])
}

func TestRunAsyncRejectsOnFailure(t *testing.T) {
	store := newStore(t, "alice")
	hr := handoffFor("alice", []string{"false"})
	var payload types.Handoff
	require.NoError(t, json.Unmarshal([]byte(hr.Content), &payload))

	bus := eventbus.New()
	r := &Runner{Bus: bus, Tasks: store, Trust: trust.New(), Commands: scriptedRunner{fail: true}}
	r.RunAsync(context.Background(), "t1", hr, payload)

	board, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, types.StatusInProgress, board.Tasks["t1"].Status)
	require.Equal(t, 1, board.Tasks["t1"].RejectionCount)
}

func TestDefaultCommandRunnerExecutesShell(t *testing.T) {
	dir := t.TempDir()
	var lines []string
	err := DefaultCommandRunner().Run(context.Background(), dir, "echo hello", func(stream, line string) {
		lines = append(lines, stream+":"+line)
	})
	require.NoError(t, err)
	require.Contains(t, lines, "stdout:hello")
	_ = os.Getenv("PATH")
}
