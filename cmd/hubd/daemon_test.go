package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agenthub/hub/internal/rpc"
)

func TestNewDaemonWiresEveryFeatureByDefault(t *testing.T) {
	dir := t.TempDir()
	d, err := newDaemon(dir)
	require.NoError(t, err)

	require.NotNil(t, d.tasks)
	require.NotNil(t, d.trust)
	require.NotNil(t, d.caps)
	require.NotNil(t, d.flows)
	require.NotNil(t, d.accept)
	require.NotNil(t, d.brk)
	require.NotNil(t, d.know)
	require.Nil(t, d.accept.Gate, "cognitive friction is off by default")
}

func TestDaemonServesPingOverItsSocket(t *testing.T) {
	dir := t.TempDir()
	d, err := newDaemon(dir)
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "tokens"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tokens", "alice.token"), []byte("secret"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()
	<-d.server.WaitReady()

	client, err := rpc.Dial(d.cfg.Current().SocketPath, "alice", "secret", 2*time.Second)
	require.NoError(t, err)
	defer client.Close()

	reply, err := client.Call(rpc.TypePing, nil)
	require.NoError(t, err)
	require.Equal(t, "pong", reply.Type)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("daemon did not shut down after cancellation")
	}
}
