package rpc

import (
	"context"

	"github.com/agenthub/hub/internal/routing"
	"github.com/agenthub/hub/internal/sla"
	"github.com/agenthub/hub/internal/taskstore"
	"github.com/agenthub/hub/internal/types"
)

func (s *Server) handleHealthCheck() Reply {
	snap := s.Metrics()
	return Reply{Type: "health", Data: toDataMap(map[string]interface{}{
		"status": "healthy",
		"uptime": snap.UptimeSeconds,
		"conns":  snap.ActiveConns,
	})}
}

func (s *Server) handleGetAnalytics() Reply {
	if s.deps.Activity == nil {
		return Reply{Type: TypeError, Error: "analytics unavailable"}
	}
	return Reply{Type: "analytics", Data: toDataMap(s.deps.Activity.Analytics())}
}

// --- messaging ---

func (s *Server) handleSendMessage(st *connState, f Frame) Reply {
	if s.deps.Mail == nil {
		return Reply{Type: TypeError, Error: "messaging unavailable"}
	}
	to := dataString(f.Data, "to")
	body := dataString(f.Data, "body")
	if to == "" {
		return Reply{Type: TypeError, Error: "to is required", Details: ErrKindValidation}
	}
	msg := s.deps.Mail.Send(st.account, to, body)
	return Reply{Type: "message_sent", Data: toDataMap(msg)}
}

func (s *Server) handleCountUnread(st *connState, f Frame) Reply {
	if s.deps.Mail == nil {
		return Reply{Type: TypeError, Error: "messaging unavailable"}
	}
	return Reply{Type: "unread_count", Data: map[string]interface{}{"count": s.deps.Mail.CountUnread(st.account)}}
}

func (s *Server) handleReadMessages(st *connState, f Frame) Reply {
	if s.deps.Mail == nil {
		return Reply{Type: TypeError, Error: "messaging unavailable"}
	}
	limit := 0
	if v, ok := f.Data["limit"].(float64); ok {
		limit = int(v)
	}
	msgs := s.deps.Mail.Read(st.account, limit)
	return Reply{Type: "messages", Data: toDataMap(map[string]interface{}{"messages": msgs})}
}

// --- tasks ---

func (s *Server) handleUpdateTaskStatus(f Frame) Reply {
	taskID := dataString(f.Data, "taskId")
	verb := dataString(f.Data, "verb")
	board, err := s.deps.Tasks.Load()
	if err != nil {
		return Reply{Type: TypeError, Error: err.Error()}
	}
	task, ok := board.Tasks[taskID]
	if !ok {
		return Reply{Type: TypeError, Error: "task not found", Details: ErrKindNotFound}
	}

	var transitionErr error
	var eventType types.EventType
	switch verb {
	case "start":
		transitionErr = taskstore.Start(task, dataString(f.Data, "assignee"))
		eventType = types.EventTaskStarted
	case "submit_review":
		transitionErr = taskstore.SubmitForReview(task, nil)
		eventType = types.EventTaskSubmitted
	case "accept":
		transitionErr = taskstore.Accept(task)
		eventType = types.EventTaskAccepted
	case "reject":
		_, transitionErr = taskstore.Reject(task, dataString(f.Data, "reason"))
		eventType = types.EventTaskRejected
	default:
		return Reply{Type: TypeError, Error: "unknown verb", Details: ErrKindValidation}
	}
	if transitionErr != nil {
		return Reply{Type: TypeError, Error: transitionErr.Error(), Details: ErrKindValidation}
	}
	if err := s.deps.Tasks.Save(board); err != nil {
		return Reply{Type: TypeError, Error: err.Error()}
	}
	if s.deps.Bus != nil {
		s.deps.Bus.Emit(types.Event{Type: eventType, TaskID: taskID, Data: map[string]interface{}{"status": string(task.Status)}})
	}
	return Reply{Type: "task_updated", Data: toDataMap(task)}
}

func (s *Server) handleReportProgress(f Frame) Reply {
	taskID := dataString(f.Data, "taskId")
	if s.deps.Bus != nil {
		s.deps.Bus.Emit(types.Event{Type: types.EventProgressUpdate, TaskID: taskID, Data: f.Data})
	}
	return Reply{Type: "progress_recorded"}
}

func (s *Server) handleAdaptiveSLACheck(f Frame) Reply {
	var metrics sla.SessionMetrics
	metrics.TaskID = dataString(f.Data, "taskId")
	if v, ok := f.Data["burnRate"].(float64); ok {
		metrics.BurnRate = v
	}
	if v, ok := f.Data["averageBurnRate"].(float64); ok {
		metrics.AverageBurnRate = v
	}
	if v, ok := f.Data["minutesSinceCheckpoint"].(float64); ok {
		metrics.MinutesSinceCheckpoint = v
	}
	if v, ok := f.Data["contextSaturation"].(float64); ok {
		metrics.ContextSaturation = v
	}
	if v, ok := f.Data["sessionPhase"].(string); ok {
		metrics.SessionPhase = v
	}
	if v, ok := f.Data["criticality"].(string); ok {
		metrics.Criticality = v
	}
	if v, ok := f.Data["reversibility"].(string); ok {
		metrics.Reversibility = v
	}

	th := sla.DefaultAdaptiveThresholds()
	trigger, triggered := sla.DetectTrigger(metrics, th)
	if !triggered {
		return Reply{Type: "sla_check", Data: map[string]interface{}{"triggered": false}}
	}
	action := sla.DetermineAction(trigger, metrics, th, 0)
	if s.deps.Bus != nil {
		s.deps.Bus.Emit(types.Event{Type: sla.EventForTrigger(trigger), TaskID: metrics.TaskID, Data: map[string]interface{}{
			"trigger": string(trigger), "action": string(action),
		}})
	}
	return Reply{Type: "sla_check", Data: map[string]interface{}{
		"triggered": true, "trigger": string(trigger), "action": string(action),
	}}
}

func (s *Server) handleGetTrust(f Frame) Reply {
	if s.deps.Trust == nil {
		return Reply{Type: TypeError, Error: "trust unavailable"}
	}
	agent := dataString(f.Data, "agent")
	rec, ok := s.deps.Trust.Get(agent)
	if !ok {
		return Reply{Type: TypeError, Error: "unknown agent", Details: ErrKindNotFound}
	}
	return Reply{Type: "trust", Data: toDataMap(rec)}
}

func (s *Server) handleReinstateAgent(f Frame) Reply {
	if s.deps.Breaker == nil {
		return Reply{Type: TypeError, Error: "circuit breaker unavailable"}
	}
	agent := dataString(f.Data, "agent")
	q, wasQuarantined := s.deps.Breaker.Reinstate(agent)
	if s.deps.Bus != nil && wasQuarantined {
		s.deps.Bus.Emit(types.Event{Type: types.EventCircuitBreakerClose, Data: map[string]interface{}{"agent": agent}})
	}
	return Reply{Type: "reinstated", Data: toDataMap(map[string]interface{}{"agent": agent, "wasQuarantined": wasQuarantined, "quarantine": q})}
}

func (s *Server) handleCheckCircuit(f Frame) Reply {
	if s.deps.Breaker == nil {
		return Reply{Type: TypeError, Error: "circuit breaker unavailable"}
	}
	agent := dataString(f.Data, "agent")
	return Reply{Type: "circuit_status", Data: map[string]interface{}{"agent": agent, "quarantined": s.deps.Breaker.IsQuarantined(agent)}}
}

// --- handoff ---

func (s *Server) handleHandoffTask(ctx context.Context, f Frame) Reply {
	if s.deps.Handoffs == nil {
		return Reply{Type: TypeError, Error: "handoff unavailable"}
	}
	taskID := dataString(f.Data, "taskId")
	from := dataString(f.Data, "from")
	to := dataString(f.Data, "to")
	content := dataString(f.Data, "content")
	if taskID == "" || to == "" {
		return Reply{Type: TypeError, Error: "taskId and to are required", Details: ErrKindValidation}
	}
	rec := s.deps.Handoffs.Create(taskID, from, to, content, dataString(f.Data, "context"))
	if s.deps.Bus != nil {
		s.deps.Bus.Emit(types.Event{Type: types.EventDelegationCreated, TaskID: taskID, Data: map[string]interface{}{"from": from, "to": to}})
	}
	return Reply{Type: "handoff_created", Data: toDataMap(rec)}
}

func (s *Server) handleHandoffAccept(ctx context.Context, f Frame) Reply {
	if s.deps.Acceptance == nil {
		return Reply{Type: TypeError, Error: "acceptance unavailable"}
	}
	taskID := dataString(f.Data, "taskId")
	reply, hr, payload := s.deps.Acceptance.Begin(taskID)
	if reply.Acceptance == "running" && hr != nil {
		go s.deps.Acceptance.RunAsync(ctx, taskID, *hr, payload)
	}
	return Reply{Type: "acceptance_" + reply.Acceptance, Data: toDataMap(reply)}
}

// --- workspace ---

func (s *Server) handlePrepareWorktree(ctx context.Context, f Frame) Reply {
	if s.deps.Workspaces == nil {
		return Reply{Type: TypeError, Error: "workspaces unavailable"}
	}
	st, err := s.deps.Workspaces.Prepare(ctx, dataString(f.Data, "branch"))
	if err != nil {
		return Reply{Type: TypeError, Error: err.Error()}
	}
	return Reply{Type: "workspace_prepared", Data: toDataMap(st)}
}

func (s *Server) handleWorkspaceStatus(f Frame) Reply {
	if s.deps.Workspaces == nil {
		return Reply{Type: TypeError, Error: "workspaces unavailable"}
	}
	st := s.deps.Workspaces.StatusOf(dataString(f.Data, "workspaceId"), dataString(f.Data, "branch"))
	return Reply{Type: "workspace_status", Data: toDataMap(st)}
}

func (s *Server) handleCleanupWorkspace(ctx context.Context, f Frame) Reply {
	if s.deps.Workspaces == nil {
		return Reply{Type: TypeError, Error: "workspaces unavailable"}
	}
	if err := s.deps.Workspaces.Cleanup(ctx, dataString(f.Data, "workspaceId")); err != nil {
		return Reply{Type: TypeError, Error: err.Error()}
	}
	return Reply{Type: "workspace_cleaned"}
}

// --- routing ---

func (s *Server) handleSuggestAssignee(f Frame) Reply {
	if s.deps.Capabilities == nil {
		return Reply{Type: TypeError, Error: "routing unavailable"}
	}
	skills := dataStrings(f.Data, "skills")
	ranked := routing.Rank(s.deps.Capabilities.All(), skills, routing.RankOptions{Workload: s.deps.Capabilities.Workloads()})
	return Reply{Type: "suggestion", Data: toDataMap(map[string]interface{}{"ranked": ranked})}
}

// --- knowledge ---

func (s *Server) handleSearchKnowledge(f Frame) Reply {
	if s.deps.Knowledge == nil {
		return Reply{Type: TypeError, Error: "knowledge unavailable"}
	}
	query := dataString(f.Data, "query")
	limit := 0
	if v, ok := f.Data["limit"].(float64); ok {
		limit = int(v)
	}
	notes := s.deps.Knowledge.Search(query, limit)
	return Reply{Type: "knowledge_results", Data: toDataMap(map[string]interface{}{"notes": notes})}
}

func (s *Server) handleIndexNote(st *connState, f Frame) Reply {
	if s.deps.Knowledge == nil {
		return Reply{Type: TypeError, Error: "knowledge unavailable"}
	}
	note := s.deps.Knowledge.Index(st.account, dataString(f.Data, "title"), dataString(f.Data, "content"), dataStrings(f.Data, "tags"))
	return Reply{Type: "note_indexed", Data: toDataMap(note)}
}

// --- streaming ---

func (s *Server) handleSubscribe(w *connWriter, st *connState, f Frame) Reply {
	if s.deps.Subs == nil {
		return Reply{Type: TypeError, Error: "subscriptions unavailable"}
	}
	patterns := dataStrings(f.Data, "patterns")
	s.deps.Subs.Subscribe(w, st.account, patterns)
	return Reply{Type: "subscribed", Data: map[string]interface{}{"patterns": patterns}}
}

func (s *Server) handleUnsubscribe(w *connWriter, f Frame) Reply {
	if s.deps.Subs == nil {
		return Reply{Type: TypeError, Error: "subscriptions unavailable"}
	}
	patterns := dataStrings(f.Data, "patterns")
	s.deps.Subs.Unsubscribe(w, patterns)
	return Reply{Type: "unsubscribed"}
}
