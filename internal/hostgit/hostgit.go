// Package hostgit drives the host's git checkout to give each Task an
// isolated worktree and to pin escalation state to a checkpoint branch.
//
// Commands run through an injectable CommandRunner (ExecRunner by default)
// so tests can substitute a fake git, and worktrees give concurrent
// Coordinator waves their own working directory instead of colliding on one
// checkout.
package hostgit

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// CommandRunner executes one shell command and returns its combined
// output, letting tests substitute a fake git.
type CommandRunner interface {
	Run(ctx context.Context, dir string, name string, args ...string) (string, error)
}

// ExecRunner runs commands via os/exec.
type ExecRunner struct{}

// Run implements CommandRunner.
func (ExecRunner) Run(ctx context.Context, dir string, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if dir != "" {
		cmd.Dir = dir
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("%w: %s", err, string(out))
	}
	return string(out), nil
}

// Host implements coordinator.WorktreeProvider and escalation.Checkpointer
// against a real git checkout.
type Host struct {
	RepoRoot string
	Runner   CommandRunner

	once    sync.Once
	tracked *branchTracker
}

// New creates a Host rooted at repoRoot, using ExecRunner.
func New(repoRoot string) *Host {
	return &Host{RepoRoot: repoRoot, Runner: ExecRunner{}}
}

func (h *Host) runner() CommandRunner {
	if h.Runner != nil {
		return h.Runner
	}
	return ExecRunner{}
}

func (h *Host) worktreeDir(worktreeID string) string {
	return filepath.Join(h.RepoRoot, ".nexus", "worktrees", worktreeID)
}

// WorktreeDir returns the filesystem path Acquire(taskID) will check out
// into, without requiring an active worktree — used by QA stage callbacks
// to find a task's worktree without threading it through every call.
func (h *Host) WorktreeDir(taskID string) string {
	return h.worktreeDir(sanitize(taskID))
}

// Acquire creates a new worktree checked out on a task-scoped branch
// cut from the current HEAD, and returns its filesystem path as the
// worktreeID the Iterator works in.
func (h *Host) Acquire(ctx context.Context, taskID string) (string, error) {
	branch := fmt.Sprintf("nexus/task/%s/%d", sanitize(taskID), time.Now().UnixNano())
	dir := h.worktreeDir(sanitize(taskID))

	if _, err := h.runner().Run(ctx, h.RepoRoot, "git", "worktree", "add", "-b", branch, dir, "HEAD"); err != nil {
		return "", fmt.Errorf("hostgit: create worktree for task %s: %w", taskID, err)
	}
	h.tracker().set(dir, branch)
	return dir, nil
}

// Release removes the worktree at worktreeID, forcing removal of any
// uncommitted changes left behind by an abandoned task.
func (h *Host) Release(ctx context.Context, worktreeID string) error {
	if _, err := h.runner().Run(ctx, h.RepoRoot, "git", "worktree", "remove", "--force", worktreeID); err != nil {
		return fmt.Errorf("hostgit: remove worktree %s: %w", worktreeID, err)
	}
	return nil
}

// CreateCheckpoint tags the repository's current HEAD with a branch named
// after tag under the nexus/escalate/ prefix (a tag that already carries
// the prefix is not prefixed twice; each /-separated segment is
// sanitized), returning the branch name as the checkpoint's opaque id.
func (h *Host) CreateCheckpoint(ctx context.Context, tag string) (string, error) {
	segments := strings.Split(strings.TrimPrefix(tag, "nexus/escalate/"), "/")
	for i, s := range segments {
		segments[i] = sanitize(s)
	}
	branch := "nexus/escalate/" + strings.Join(segments, "/")
	if _, err := h.runner().Run(ctx, h.RepoRoot, "git", "branch", branch); err != nil {
		return "", fmt.Errorf("hostgit: create checkpoint branch %s: %w", branch, err)
	}
	return branch, nil
}

// CheckpointInfo describes one escalation/cleanup checkpoint branch.
type CheckpointInfo struct {
	BranchName string
	CreatedAt  time.Time
}

// ListCheckpoints lists checkpoint branches under the nexus/escalate/
// prefix, for housekeeping to decide what's old enough to prune.
func (h *Host) ListCheckpoints(ctx context.Context) ([]CheckpointInfo, error) {
	out, err := h.runner().Run(ctx, h.RepoRoot, "git", "for-each-ref", "--format=%(refname:short) %(creatordate:iso-strict)", "refs/heads/nexus/escalate/*")
	if err != nil {
		return nil, fmt.Errorf("hostgit: list checkpoint branches: %w", err)
	}
	trimmed := strings.TrimSpace(out)
	if trimmed == "" {
		return nil, nil
	}

	var infos []CheckpointInfo
	for _, line := range strings.Split(trimmed, "\n") {
		fields := strings.SplitN(strings.TrimSpace(line), " ", 2)
		if len(fields) != 2 {
			continue
		}
		createdAt, err := time.Parse(time.RFC3339, fields[1])
		if err != nil {
			createdAt = time.Time{}
		}
		infos = append(infos, CheckpointInfo{BranchName: fields[0], CreatedAt: createdAt})
	}
	return infos, nil
}

// DeleteCheckpoint force-deletes a checkpoint branch.
func (h *Host) DeleteCheckpoint(ctx context.Context, branchName string) error {
	if _, err := h.runner().Run(ctx, h.RepoRoot, "git", "branch", "-D", branchName); err != nil {
		return fmt.Errorf("hostgit: delete checkpoint branch %s: %w", branchName, err)
	}
	return nil
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, s)
}
