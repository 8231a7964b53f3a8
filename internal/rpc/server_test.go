package rpc

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agenthub/hub/internal/eventbus"
	"github.com/agenthub/hub/internal/framing"
	"github.com/agenthub/hub/internal/subscription"
	"github.com/agenthub/hub/internal/taskstore"
	"github.com/agenthub/hub/internal/types"
)

func startTestServer(t *testing.T) (*Server, string, string) {
	dir := t.TempDir()
	socketPath := filepath.Join(dir, "hub.sock")
	tokensDir := filepath.Join(dir, "tokens")
	require.NoError(t, os.MkdirAll(tokensDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(tokensDir, "alice.token"), []byte("secret\n"), 0o644))

	tasks := taskstore.New(filepath.Join(dir, "board.json"))
	require.NoError(t, tasks.Save(&types.Board{Tasks: map[string]*types.Task{
		"t1": {ID: "t1", Status: types.StatusTodo},
	}}))

	srv := NewServer(Config{SocketPath: socketPath, TokensDir: tokensDir}, Deps{
		Bus:   eventbus.New(),
		Tasks: tasks,
		Subs:  subscription.New(),
	})

	go srv.Start(context.Background())
	<-srv.WaitReady()
	t.Cleanup(func() { srv.Stop() })
	return srv, socketPath, "secret"
}

func dialAndAuth(t *testing.T, socketPath, token string) (net.Conn, *framing.Decoder, *framing.Encoder) {
	conn, err := net.DialTimeout("unix", socketPath, time.Second)
	require.NoError(t, err)
	dec := framing.NewDecoder(conn)
	enc := framing.NewEncoder(conn)

	require.NoError(t, enc.Encode(Frame{Type: TypeAuth, Account: "alice", Token: token}))
	var reply Reply
	ok, err := dec.Next(&reply)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, TypeAuthOK, reply.Type)
	return conn, dec, enc
}

func TestAuthSucceedsWithCorrectToken(t *testing.T) {
	_, socketPath, token := startTestServer(t)
	conn, _, _ := dialAndAuth(t, socketPath, token)
	defer conn.Close()
}

func TestAuthFailsWithWrongToken(t *testing.T) {
	_, socketPath, _ := startTestServer(t)
	conn, err := net.DialTimeout("unix", socketPath, time.Second)
	require.NoError(t, err)
	defer conn.Close()

	dec := framing.NewDecoder(conn)
	enc := framing.NewEncoder(conn)
	require.NoError(t, enc.Encode(Frame{Type: TypeAuth, Account: "alice", Token: "wrong"}))

	var reply Reply
	ok, err := dec.Next(&reply)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, TypeAuthFail, reply.Type)
}

func TestPingAfterAuth(t *testing.T) {
	_, socketPath, token := startTestServer(t)
	conn, dec, enc := dialAndAuth(t, socketPath, token)
	defer conn.Close()

	require.NoError(t, enc.Encode(Frame{Type: TypePing, RequestID: "r1"}))
	var reply Reply
	ok, err := dec.Next(&reply)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "pong", reply.Type)
	require.Equal(t, "r1", reply.RequestID)
}

func TestUpdateTaskStatusStart(t *testing.T) {
	_, socketPath, token := startTestServer(t)
	conn, dec, enc := dialAndAuth(t, socketPath, token)
	defer conn.Close()

	require.NoError(t, enc.Encode(Frame{
		Type: TypeUpdateTaskStatus,
		Data: map[string]interface{}{"taskId": "t1", "verb": "start", "assignee": "alice"},
	}))
	var reply Reply
	ok, err := dec.Next(&reply)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "task_updated", reply.Type)
}

func TestUnknownTypeReturnsError(t *testing.T) {
	_, socketPath, token := startTestServer(t)
	conn, dec, enc := dialAndAuth(t, socketPath, token)
	defer conn.Close()

	require.NoError(t, enc.Encode(Frame{Type: "bogus"}))
	var reply Reply
	ok, err := dec.Next(&reply)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, TypeError, reply.Type)
	require.Equal(t, "unknown type", reply.Error)
}
