package hostgit

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/nexusdev/nexus/internal/iterator"
	"github.com/nexusdev/nexus/internal/models"
)

// branchTracker tracks the task-scoped branch Acquire cut for each worktree
// directory, so Merge/RebaseOntoLatestBase know what to fold back in
// without the caller having to carry the branch name itself.
type branchTracker struct {
	mu    sync.Mutex
	byDir map[string]string
}

func (t *branchTracker) set(dir, branch string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.byDir == nil {
		t.byDir = make(map[string]string)
	}
	t.byDir[dir] = branch
}

func (t *branchTracker) get(dir string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	branch, ok := t.byDir[dir]
	return branch, ok
}

// Merge implements iterator.Merger: it commits whatever the agent left
// uncommitted in the worktree, then merges the task's branch into the
// repository's current branch with --no-ff so the task stays visible as
// one commit in history.
func (h *Host) Merge(ctx context.Context, task models.Task, worktreeID string) error {
	branch, ok := h.tracker().get(worktreeID)
	if !ok {
		return fmt.Errorf("hostgit: no tracked branch for worktree %s", worktreeID)
	}

	if _, err := h.runner().Run(ctx, worktreeID, "git", "add", "-A"); err != nil {
		return fmt.Errorf("hostgit: stage changes for task %s: %w", task.ID, err)
	}
	// A clean worktree (nothing to commit) is not an error: the agent may
	// have left every change already committed.
	_, _ = h.runner().Run(ctx, worktreeID, "git", "commit", "-m", fmt.Sprintf("nexus: %s", task.ID))

	out, err := h.runner().Run(ctx, h.RepoRoot, "git", "merge", "--no-ff", "-m", fmt.Sprintf("merge %s", task.ID), branch)
	if err != nil {
		if strings.Contains(out, "CONFLICT") {
			return fmt.Errorf("%w: %s", iterator.ErrMergeConflict, out)
		}
		return fmt.Errorf("hostgit: merge task %s: %w", task.ID, err)
	}
	return nil
}

// RebaseOntoLatestBase rebases the task's branch onto the repository's
// current HEAD inside its own worktree, so a second Merge attempt only
// has to resolve genuinely new upstream changes.
func (h *Host) RebaseOntoLatestBase(ctx context.Context, task models.Task, worktreeID string) error {
	if _, err := h.runner().Run(ctx, h.RepoRoot, "git", "merge", "--abort"); err != nil {
		// Nothing to abort is fine; any other failure surfaces below via rebase.
		_ = err
	}
	base, err := h.runner().Run(ctx, h.RepoRoot, "git", "rev-parse", "HEAD")
	if err != nil {
		return fmt.Errorf("hostgit: resolve latest base for task %s: %w", task.ID, err)
	}
	if _, err := h.runner().Run(ctx, worktreeID, "git", "rebase", strings.TrimSpace(base)); err != nil {
		return fmt.Errorf("hostgit: rebase task %s onto latest base: %w", task.ID, err)
	}
	return nil
}

func (h *Host) tracker() *branchTracker {
	h.once.Do(func() { h.tracked = &branchTracker{} })
	return h.tracked
}
