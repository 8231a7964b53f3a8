// Package taskstore implements the task board (C4): load/save with atomic,
// flock-guarded writes, and the task status state machine with rejection
// escalation.
package taskstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/agenthub/hub/internal/lockfile"
	"github.com/agenthub/hub/internal/types"
)

// RejectionEscalationThreshold is the rejection count at which a task is
// force-transitioned to needs_review. Centralized here per the spec's open
// question (kept configurable via SetRejectionEscalationThreshold for
// tests/deployments that need a different value).
var RejectionEscalationThreshold = 3

func SetRejectionEscalationThreshold(n int) { RejectionEscalationThreshold = n }

// LockTTL bounds how long a busy board lock is treated as live: when the lock
// is held and the lock file was last touched more than LockTTL ago, Save
// waits for it with a blocking acquire instead of failing at once.
const LockTTL = 10 * time.Second

// Store owns the on-disk task board at path and serializes writes with an
// advisory lock on the file <path>.lock.
type Store struct {
	path     string
	lockPath string
}

func New(path string) *Store {
	return &Store{path: path, lockPath: path + ".lock"}
}

// Load reads the board, tolerating a missing file (returns an empty board).
func (s *Store) Load() (*types.Board, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return &types.Board{Tasks: map[string]*types.Task{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("taskstore: read %s: %w", s.path, err)
	}
	var b types.Board
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("taskstore: parse %s: %w", s.path, err)
	}
	if b.Tasks == nil {
		b.Tasks = map[string]*types.Task{}
	}
	return &b, nil
}

// Save writes the board atomically: acquire the lock, write to a temp file
// in the same directory, then rename over the target.
func (s *Store) Save(b *types.Board) error {
	unlock, err := s.acquireLock()
	if err != nil {
		return err
	}
	defer unlock()

	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return fmt.Errorf("taskstore: marshal: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".tasks-*.tmp")
	if err != nil {
		return fmt.Errorf("taskstore: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("taskstore: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("taskstore: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("taskstore: rename: %w", err)
	}
	return nil
}

func (s *Store) acquireLock() (unlock func(), err error) {
	f, err := os.OpenFile(s.lockPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("taskstore: open lock file: %w", err)
	}
	if err := lockfile.FlockExclusiveNonBlocking(f); err != nil {
		if info, statErr := f.Stat(); statErr == nil && time.Since(info.ModTime()) > LockTTL {
			// Stale lock past its TTL: force a blocking acquire, which
			// succeeds once the dead holder's flock is released by the OS.
			if err := lockfile.FlockExclusiveBlocking(f); err != nil {
				f.Close()
				return nil, fmt.Errorf("taskstore: acquire stale lock: %w", err)
			}
		} else {
			f.Close()
			return nil, fmt.Errorf("taskstore: board locked: %w", err)
		}
	}
	now := time.Now()
	os.Chtimes(s.lockPath, now, now)
	return func() {
		lockfile.FlockUnlock(f)
		f.Close()
	}, nil
}
