package taskstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agenthub/hub/internal/types"
)

func TestLoadMissingFileReturnsEmptyBoard(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "tasks.json"))
	b, err := s.Load()
	require.NoError(t, err)
	require.Empty(t, b.Tasks)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "tasks.json"))
	b := &types.Board{Tasks: map[string]*types.Task{
		"t1": {ID: "t1", Title: "do the thing", Status: types.StatusTodo},
	}}
	require.NoError(t, s.Save(b))

	loaded, err := s.Load()
	require.NoError(t, err)
	require.Len(t, loaded.Tasks, 1)
	require.Equal(t, "do the thing", loaded.Tasks["t1"].Title)
}
