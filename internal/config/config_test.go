package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultUnmarshalsWhenNoFileExists(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLoader(dir)
	require.NoError(t, err)

	cfg := l.Current()
	require.Equal(t, filepath.Join(dir, "hub.sock"), cfg.SocketPath)
	require.True(t, cfg.Features.AutoAcceptance)
	require.False(t, cfg.Features.Reliability)
}

func TestLoaderReadsYamlOverrides(t *testing.T) {
	dir := t.TempDir()
	yaml := "maxConns: 42\nfeatures:\n  reliability: true\n  autoAcceptance: false\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hub.yaml"), []byte(yaml), 0o644))

	l, err := NewLoader(dir)
	require.NoError(t, err)

	cfg := l.Current()
	require.Equal(t, 42, cfg.MaxConns)
	require.True(t, cfg.Features.Reliability)
	require.False(t, cfg.Features.AutoAcceptance)
}

func TestWatchReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hub.yaml")
	require.NoError(t, os.WriteFile(path, []byte("maxConns: 10\n"), 0o644))

	l, err := NewLoader(dir)
	require.NoError(t, err)
	require.Equal(t, 10, l.Current().MaxConns)

	changed := make(chan Config, 1)
	l.OnChange(func(c Config) { changed <- c })

	stop, err := l.Watch()
	require.NoError(t, err)
	defer stop()

	require.NoError(t, os.WriteFile(path, []byte("maxConns: 99\n"), 0o644))

	select {
	case cfg := <-changed:
		require.Equal(t, 99, cfg.MaxConns)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for config reload")
	}
}
