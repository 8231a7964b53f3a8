// Package rpc implements the daemon's Unix-domain-socket RPC server (C10):
// connection lifecycle, auth handshake, typed request dispatch, and the
// hand-rolled latency/slow-query metrics collector.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agenthub/hub/internal/acceptance"
	"github.com/agenthub/hub/internal/activity"
	"github.com/agenthub/hub/internal/capability"
	"github.com/agenthub/hub/internal/circuitbreaker"
	"github.com/agenthub/hub/internal/eventbus"
	"github.com/agenthub/hub/internal/framing"
	"github.com/agenthub/hub/internal/handoff"
	"github.com/agenthub/hub/internal/knowledge"
	"github.com/agenthub/hub/internal/obs"
	"github.com/agenthub/hub/internal/routing"
	"github.com/agenthub/hub/internal/sla"
	"github.com/agenthub/hub/internal/subscription"
	"github.com/agenthub/hub/internal/taskstore"
	"github.com/agenthub/hub/internal/trust"
	"github.com/agenthub/hub/internal/types"
	"github.com/agenthub/hub/internal/workflow"
	"github.com/agenthub/hub/internal/workspace"
)

// Deps bundles every collaborator the dispatcher needs. All fields except
// Bus/Tasks are optional; a nil dependency simply fails requests for its
// handler category with an error reply naming the unavailable category
// rather than panicking.
type Deps struct {
	Bus          *eventbus.Bus
	Tasks        *taskstore.Store
	Trust        *trust.Store
	Breaker      *circuitbreaker.Breaker
	Capabilities *capability.Store
	Workflows    *workflow.Engine
	Acceptance   *acceptance.Runner
	Handoffs     *handoff.Store
	Knowledge    *knowledge.Store
	Activity     *activity.Index
	Workspaces   *workspace.Manager
	Subs         *subscription.Registry
	Mail         *Mailbox
	ClassicSLA   sla.ClassicThresholds
}

// Server is the RPC server (C10).
type Server struct {
	socketPath string
	pidPath    string
	tokens     *TokenStore
	deps       Deps

	mu       sync.RWMutex
	listener net.Listener
	shutdown bool
	stopOnce sync.Once

	metrics        *Metrics
	maxConns       int
	connSemaphore  chan struct{}
	activeConns    int32
	requestTimeout time.Duration
	readyChan      chan struct{}
	startTime      time.Time
}

// Config configures a new Server.
type Config struct {
	SocketPath     string
	PIDPath        string
	TokensDir      string
	MaxConns       int
	RequestTimeout time.Duration
}

func NewServer(cfg Config, deps Deps) *Server {
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = 100
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	return &Server{
		socketPath:     cfg.SocketPath,
		pidPath:        cfg.PIDPath,
		tokens:         NewTokenStore(cfg.TokensDir),
		deps:           deps,
		metrics:        NewMetrics(),
		maxConns:       cfg.MaxConns,
		connSemaphore:  make(chan struct{}, cfg.MaxConns),
		requestTimeout: cfg.RequestTimeout,
		readyChan:      make(chan struct{}),
		startTime:      time.Now(),
	}
}

// Start binds the socket (removing any stale file first), writes the PID
// file, and accepts connections until Stop is called.
func (s *Server) Start(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0o700); err != nil {
		return fmt.Errorf("rpc: create socket dir: %w", err)
	}
	if err := s.removeStaleSocket(); err != nil {
		return err
	}

	listener, err := listenUnix(s.socketPath)
	if err != nil {
		return fmt.Errorf("rpc: listen: %w", err)
	}
	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		listener.Close()
		return fmt.Errorf("rpc: chmod socket: %w", err)
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	if s.pidPath != "" {
		if err := os.WriteFile(s.pidPath, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
			obs.Warnf("rpc: failed to write pid file %s: %v", s.pidPath, err)
		}
	}

	close(s.readyChan)

	for {
		conn, err := listener.Accept()
		if err != nil {
			s.mu.RLock()
			shutdown := s.shutdown
			s.mu.RUnlock()
			if shutdown {
				return nil
			}
			return fmt.Errorf("rpc: accept: %w", err)
		}

		select {
		case s.connSemaphore <- struct{}{}:
			s.metrics.RecordConnection()
			go func(c net.Conn) {
				defer func() { <-s.connSemaphore }()
				atomic.AddInt32(&s.activeConns, 1)
				defer atomic.AddInt32(&s.activeConns, -1)
				s.handleConnection(ctx, c)
			}(conn)
		default:
			s.metrics.RecordRejectedConnection()
			conn.Close()
		}
	}
}

// WaitReady blocks until the listener is accepting connections.
func (s *Server) WaitReady() <-chan struct{} { return s.readyChan }

// Stop closes the listener and removes the socket file. Idempotent.
func (s *Server) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.shutdown = true
		listener := s.listener
		s.listener = nil
		s.mu.Unlock()

		if listener != nil {
			if cerr := listener.Close(); cerr != nil {
				err = cerr
			}
		}
		if rerr := os.Remove(s.socketPath); rerr != nil && !os.IsNotExist(rerr) {
			err = rerr
		}
		if s.pidPath != "" {
			_ = os.Remove(s.pidPath)
		}
	})
	return err
}

// Metrics exposes a point-in-time snapshot for the health/metrics handlers.
func (s *Server) Metrics() Snapshot {
	return s.metrics.Snapshot(int(atomic.LoadInt32(&s.activeConns)))
}

func (s *Server) removeStaleSocket() error {
	if _, err := os.Stat(s.socketPath); err != nil {
		return nil
	}
	conn, err := dialUnix(s.socketPath, 500*time.Millisecond)
	if err == nil {
		conn.Close()
		return fmt.Errorf("rpc: socket %s is in use by another daemon", s.socketPath)
	}
	if rerr := os.Remove(s.socketPath); rerr != nil && !os.IsNotExist(rerr) {
		return fmt.Errorf("rpc: remove stale socket: %w", rerr)
	}
	return nil
}

// connState is the per-connection mini-state the protocol requires.
type connState struct {
	authenticated bool
	account       string
}

// connWriter adapts a net.Conn into subscription.Writer: writes are
// serialized so the request loop and the subscription broadcaster never
// interleave partial frames.
type connWriter struct {
	mu   sync.Mutex
	conn net.Conn
}

func (w *connWriter) Write(frame []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := w.conn.Write(frame)
	return err
}

func (w *connWriter) Close() error { return w.conn.Close() }

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	defer func() {
		if r := recover(); r != nil {
			obs.Warnf("rpc: connection handler panic: %v", r)
		}
	}()

	writer := &connWriter{conn: conn}
	dec := framing.NewDecoder(conn)
	enc := &syncEncoder{enc: framing.NewEncoder(writer)}

	st := &connState{}
	defer func() {
		if s.deps.Subs != nil {
			s.deps.Subs.RemoveSocket(writer)
		}
	}()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(s.requestTimeout))

		var f Frame
		ok, err := dec.Next(&f)
		if err != nil {
			return
		}
		if !ok {
			continue
		}

		if !st.authenticated {
			s.handleAuth(enc, st, f)
			if !st.authenticated {
				return
			}
			continue
		}

		start := time.Now()
		reply := s.dispatch(ctx, writer, st, f)
		s.metrics.RecordRequest(f.Type, time.Since(start))
		if reply.Error != "" {
			s.metrics.RecordError(f.Type)
		}
		reply.RequestID = f.RequestID
		_ = enc.Encode(reply)
	}
}

// syncEncoder serializes Encode calls so the request/response loop and any
// future direct writes never race on the underlying bufio.Writer.
type syncEncoder struct {
	mu  sync.Mutex
	enc *framing.Encoder
}

func (e *syncEncoder) Encode(v interface{}) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enc.Encode(v)
}

func (s *Server) handleAuth(enc *syncEncoder, st *connState, f Frame) {
	if f.Type != TypeAuth {
		_ = enc.Encode(Reply{Type: TypeAuthFail, Error: "first frame must be auth"})
		return
	}
	if s.tokens.Verify(f.Account, f.Token) {
		st.authenticated = true
		st.account = f.Account
		_ = enc.Encode(Reply{Type: TypeAuthOK, RequestID: f.RequestID})
		return
	}
	_ = enc.Encode(Reply{Type: TypeAuthFail, Error: "Invalid token"})
}

func (s *Server) dispatch(ctx context.Context, w *connWriter, st *connState, f Frame) Reply {
	switch f.Type {
	case TypePing:
		return Reply{Type: "pong"}
	case TypeHealthCheck:
		return s.handleHealthCheck()

	case TypeSendMessage:
		return s.handleSendMessage(st, f)
	case TypeCountUnread:
		return s.handleCountUnread(st, f)
	case TypeReadMessages:
		return s.handleReadMessages(st, f)

	case TypeUpdateTaskStatus:
		return s.handleUpdateTaskStatus(f)
	case TypeReportProgress:
		return s.handleReportProgress(f)
	case TypeAdaptiveSLACheck:
		return s.handleAdaptiveSLACheck(f)
	case TypeGetTrust:
		return s.handleGetTrust(f)
	case TypeReinstateAgent:
		return s.handleReinstateAgent(f)
	case TypeCheckCircuit:
		return s.handleCheckCircuit(f)

	case TypeHandoffTask:
		return s.handleHandoffTask(ctx, f)
	case TypeHandoffAccept:
		return s.handleHandoffAccept(ctx, f)

	case TypePrepareWorktree:
		return s.handlePrepareWorktree(ctx, f)
	case TypeWorkspaceStatus:
		return s.handleWorkspaceStatus(f)
	case TypeCleanupWorkspace:
		return s.handleCleanupWorkspace(ctx, f)

	case TypeSuggestAssignee:
		return s.handleSuggestAssignee(f)

	case TypeSearchKnowledge:
		return s.handleSearchKnowledge(f)
	case TypeIndexNote:
		return s.handleIndexNote(st, f)

	case TypeSubscribe:
		return s.handleSubscribe(w, st, f)
	case TypeUnsubscribe:
		return s.handleUnsubscribe(w, f)

	case TypeGetAnalytics:
		return s.handleGetAnalytics()

	default:
		return Reply{Type: TypeError, Error: "unknown type"}
	}
}

func dataString(data map[string]interface{}, key string) string {
	if data == nil {
		return ""
	}
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}

func dataStrings(data map[string]interface{}, key string) []string {
	if data == nil {
		return nil
	}
	raw, ok := data[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func toDataMap(v interface{}) map[string]interface{} {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var m map[string]interface{}
	_ = json.Unmarshal(b, &m)
	return m
}
