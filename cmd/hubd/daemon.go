package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/agenthub/hub/internal/acceptance"
	"github.com/agenthub/hub/internal/activity"
	"github.com/agenthub/hub/internal/capability"
	"github.com/agenthub/hub/internal/circuitbreaker"
	"github.com/agenthub/hub/internal/cognitivefriction"
	"github.com/agenthub/hub/internal/config"
	"github.com/agenthub/hub/internal/eventbus"
	"github.com/agenthub/hub/internal/eventlog"
	"github.com/agenthub/hub/internal/handoff"
	"github.com/agenthub/hub/internal/knowledge"
	"github.com/agenthub/hub/internal/obs"
	"github.com/agenthub/hub/internal/routing"
	"github.com/agenthub/hub/internal/rpc"
	"github.com/agenthub/hub/internal/sla"
	"github.com/agenthub/hub/internal/subscription"
	"github.com/agenthub/hub/internal/taskstore"
	"github.com/agenthub/hub/internal/trust"
	"github.com/agenthub/hub/internal/types"
	"github.com/agenthub/hub/internal/workflow"
	"github.com/agenthub/hub/internal/workspace"
)

// capabilityAssigner bridges the capability store and router into
// workflow.Assigner so "auto" workflow steps resolve to a concrete account.
type capabilityAssigner struct {
	caps *capability.Store
}

func (a capabilityAssigner) AutoAssign(skills []string) (string, bool) {
	ranked := routing.Rank(a.caps.All(), skills, routing.RankOptions{Workload: a.caps.Workloads()})
	if len(ranked) == 0 {
		return "", false
	}
	return ranked[0].AccountName, true
}

// activityAuditSink adapts the activity index into workflow.AuditSink by
// synthesizing a types.Event per audit entry so it flows through the same
// query surface as every other daemon event.
type activityAuditSink struct {
	bus *eventbus.Bus
}

func (s activityAuditSink) Record(runID, stepID, kind, detail string) {
	s.bus.Emit(types.Event{
		ID:        uuid.NewString(),
		Type:      types.EventType("workflow_" + kind),
		Timestamp: time.Now().UTC(),
		TaskID:    stepID,
		Data:      map[string]interface{}{"runId": runID, "stepId": stepID, "detail": detail},
	})
}

// daemon bundles every wired component for one running hubd process.
type daemon struct {
	cfg    *config.Loader
	bus    *eventbus.Bus
	tasks  *taskstore.Store
	trust  *trust.Store
	caps   *capability.Store
	flows  *workflow.Engine
	accept *acceptance.Runner
	hoff   *handoff.Store
	know   *knowledge.Store
	act    *activity.Index
	ws     *workspace.Manager
	subs   *subscription.Registry
	mail   *rpc.Mailbox
	brk    *circuitbreaker.Breaker
	log    *eventlog.Log
	server *rpc.Server

	stopWatch   func()
	stopTicker  chan struct{}
	stopMetrics func(context.Context) error
}

func newDaemon(hubDir string) (*daemon, error) {
	if err := os.MkdirAll(hubDir, 0o700); err != nil {
		return nil, fmt.Errorf("hubd: create hub dir: %w", err)
	}

	loader, err := config.NewLoader(hubDir)
	if err != nil {
		return nil, err
	}
	cfg := loader.Current()
	feat := cfg.Features

	if err := os.MkdirAll(cfg.TokensDir, 0o700); err != nil {
		return nil, fmt.Errorf("hubd: create tokens dir: %w", err)
	}

	d := &daemon{cfg: loader}
	d.bus = eventbus.New()

	taskstore.SetRejectionEscalationThreshold(cfg.RejectionEscalationThreshold)
	d.tasks = taskstore.New(filepath.Join(hubDir, "board.json"))
	if _, err := os.Stat(filepath.Join(hubDir, "board.json")); os.IsNotExist(err) {
		if serr := d.tasks.Save(&types.Board{Tasks: map[string]*types.Task{}}); serr != nil {
			return nil, fmt.Errorf("hubd: seed board: %w", serr)
		}
	}

	d.log = eventlog.New(cfg.EventLogPath)
	d.log.SetMaxBytes(cfg.EventLogMaxMB * 1024 * 1024)
	d.log.SetMaxAge(time.Duration(cfg.EventLogMaxDays) * 24 * time.Hour)
	d.log.Subscribe(d.bus)

	d.act = activity.New()
	d.act.Subscribe(d.bus)

	d.subs = subscription.New()
	d.bus.On("*", func(evt types.Event) { d.subs.Broadcast(evt) })

	d.mail = rpc.NewMailbox()

	if feat.Trust {
		d.trust = trust.New()
	}
	if feat.CircuitBreaker {
		d.brk = circuitbreaker.New(cfg.CircuitFailureThreshold, cfg.CircuitWindow, cfg.CircuitQuarantine)
	}
	if feat.CapabilityRouting {
		d.caps = capability.New()
	}
	if feat.KnowledgeIndex {
		d.know = knowledge.New()
	}

	d.hoff = handoff.New()
	d.ws = workspace.NewManager(cfg.RepoPath, filepath.Join(hubDir, "worktrees"))

	if feat.Workflow {
		var assigner workflow.Assigner
		if d.caps != nil {
			assigner = capabilityAssigner{caps: d.caps}
		}
		d.flows = workflow.NewEngine(d.bus, assigner, activityAuditSink{bus: d.bus})
	}

	if feat.AutoAcceptance {
		runner := &acceptance.Runner{
			Bus:      d.bus,
			Tasks:    d.tasks,
			Trust:    d.trust,
			Handoffs: d.hoff,
			Commands: acceptance.DefaultCommandRunner(),
		}
		if feat.CognitiveFriction {
			runner.Gate = cognitivefriction.New()
		}
		d.accept = runner
	}

	d.server = rpc.NewServer(rpc.Config{
		SocketPath:     cfg.SocketPath,
		PIDPath:        cfg.PIDPath,
		TokensDir:      cfg.TokensDir,
		MaxConns:       cfg.MaxConns,
		RequestTimeout: cfg.RequestTimeout,
	}, rpc.Deps{
		Bus:          d.bus,
		Tasks:        d.tasks,
		Trust:        d.trust,
		Breaker:      d.brk,
		Capabilities: d.caps,
		Workflows:    d.flows,
		Acceptance:   d.accept,
		Handoffs:     d.hoff,
		Knowledge:    d.know,
		Activity:     d.act,
		Workspaces:   d.ws,
		Subs:         d.subs,
		Mail:         d.mail,
		ClassicSLA:   cfg.ClassicSLA,
	})

	return d, nil
}

// Run starts the RPC server, the config watch, and the periodic
// classic-SLA sweep, blocking until ctx is cancelled.
func (d *daemon) Run(ctx context.Context) error {
	stopMetrics, err := obs.StartMetrics(ctx)
	if err != nil {
		obs.Warnf("hubd: metrics exporter disabled: %v", err)
		stopMetrics = func(context.Context) error { return nil }
	}
	d.stopMetrics = stopMetrics

	stop, err := d.cfg.Watch()
	if err != nil {
		obs.Warnf("hubd: config watch disabled: %v", err)
		stop = func() {}
	}
	d.stopWatch = stop

	d.stopTicker = make(chan struct{})
	go d.runClassicSLASweep()

	if d.cfg.Current().Features.Reliability {
		go d.runWatchdog(ctx)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- d.server.Start(ctx) }()

	select {
	case <-ctx.Done():
		return d.Shutdown()
	case err := <-errCh:
		return err
	}
}

// Shutdown stops every background loop and the RPC server.
func (d *daemon) Shutdown() error {
	if d.stopWatch != nil {
		d.stopWatch()
	}
	if d.stopTicker != nil {
		close(d.stopTicker)
	}
	if d.stopMetrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.stopMetrics(ctx); err != nil {
			obs.Warnf("hubd: metrics shutdown: %v", err)
		}
	}
	return d.server.Stop()
}

// runClassicSLASweep periodically evaluates every task against the classic
// (non-adaptive) SLA thresholds and emits the resulting action as an event,
// per the daemon's background ticker contract for C7's staleness check.
func (d *daemon) runClassicSLASweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if !d.cfg.Current().Features.SLAEngine {
				continue
			}
			board, err := d.tasks.Load()
			if err != nil {
				continue
			}
			th := d.cfg.Current().ClassicSLA
			now := time.Now()
			for _, t := range board.Tasks {
				action, triggered := sla.CheckClassic(t, now, th)
				if !triggered {
					continue
				}
				d.bus.Emit(types.Event{
					ID:        uuid.NewString(),
					Type:      types.EventType("sla_" + string(action)),
					Timestamp: now.UTC(),
					TaskID:    t.ID,
					Data:      map[string]interface{}{"action": string(action)},
				})
			}
		case <-d.stopTicker:
			return
		}
	}
}

// runWatchdog periodically dials the daemon's own socket and issues a ping,
// the "self-loop" liveness probe. It never restarts the process itself —
// that responsibility belongs to the process supervisor (systemd, k8s) the
// daemon runs under; the watchdog only surfaces the failure to the log.
func (d *daemon) runWatchdog(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := d.selfPing(); err != nil {
				obs.Warnf("hubd: watchdog self-ping failed: %v", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (d *daemon) selfPing() error {
	cfg := d.cfg.Current()
	client, err := rpc.Dial(cfg.SocketPath, "hubd-watchdog", d.watchdogToken(cfg), 2*time.Second)
	if err != nil {
		return err
	}
	defer client.Close()
	_, err = client.Call(rpc.TypePing, nil)
	return err
}

func (d *daemon) watchdogToken(cfg config.Config) string {
	tokenPath := filepath.Join(cfg.TokensDir, "hubd-watchdog.token")
	data, err := os.ReadFile(tokenPath)
	if err != nil {
		token := uuid.NewString()
		_ = os.WriteFile(tokenPath, []byte(token), 0o600)
		return token
	}
	return string(data)
}
