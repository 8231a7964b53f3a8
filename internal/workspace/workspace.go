// Package workspace manages per-handoff git worktrees so a delegatee can
// work in an isolated checkout without disturbing the primary clone.
package workspace

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
)

const gitRetryMaxElapsed = 5 * time.Second

func newGitRetryBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = gitRetryMaxElapsed
	return bo
}

// isRetryableGitError reports whether err is a transient index-lock
// contention, most often two worktree/handoff operations racing on the same
// repository, rather than a genuine failure worth surfacing immediately.
func isRetryableGitError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "index.lock") || strings.Contains(msg, "unable to create")
}

// Manager creates and tears down git worktrees under a root directory.
type Manager struct {
	repoPath string // path to the primary git checkout
	rootDir  string // parent directory under which worktrees are created
}

func NewManager(repoPath, rootDir string) *Manager {
	return &Manager{repoPath: repoPath, rootDir: rootDir}
}

// Status describes one prepared workspace.
type Status struct {
	WorkspaceID string `json:"workspaceId"`
	Path        string `json:"path"`
	Branch      string `json:"branch"`
	Exists      bool   `json:"exists"`
}

// Prepare creates a new worktree on branch, returning its path and id. If
// branch is empty, a branch name is derived from the workspace id.
func (m *Manager) Prepare(ctx context.Context, branch string) (Status, error) {
	id := uuid.NewString()
	if branch == "" {
		branch = "handoff/" + id
	}
	path := filepath.Join(m.rootDir, id)

	if err := os.MkdirAll(m.rootDir, 0o755); err != nil {
		return Status{}, fmt.Errorf("workspace: create root dir: %w", err)
	}

	if err := m.git(ctx, "worktree", "add", "-b", branch, path); err != nil {
		return Status{}, fmt.Errorf("workspace: create worktree: %w", err)
	}

	return Status{WorkspaceID: id, Path: path, Branch: branch, Exists: true}, nil
}

// StatusOf reports whether the worktree directory for id still exists.
func (m *Manager) StatusOf(workspaceID, branch string) Status {
	path := filepath.Join(m.rootDir, workspaceID)
	_, err := os.Stat(path)
	return Status{WorkspaceID: workspaceID, Path: path, Branch: branch, Exists: err == nil}
}

// Cleanup removes the worktree and prunes its git metadata.
func (m *Manager) Cleanup(ctx context.Context, workspaceID string) error {
	path := filepath.Join(m.rootDir, workspaceID)
	if err := m.git(ctx, "worktree", "remove", "--force", path); err != nil {
		// Fall back to a filesystem remove if git no longer knows about it.
		if rmErr := os.RemoveAll(path); rmErr != nil {
			return fmt.Errorf("workspace: cleanup failed: %w (fallback: %v)", err, rmErr)
		}
	}
	return m.git(ctx, "worktree", "prune")
}

func (m *Manager) git(ctx context.Context, args ...string) error {
	run := func() error {
		cmd := exec.CommandContext(ctx, "git", args...)
		cmd.Dir = m.repoPath
		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("%v: %s", err, stderr.String())
		}
		return nil
	}

	bo := newGitRetryBackoff()
	return backoff.Retry(func() error {
		err := run()
		if err != nil && !isRetryableGitError(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(bo, ctx))
}
