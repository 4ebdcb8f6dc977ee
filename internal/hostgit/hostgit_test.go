package hostgit

import (
	"context"
	"strings"
	"testing"
)

type fakeRunner struct {
	calls [][]string
	out   string
	err   error
}

func (f *fakeRunner) Run(ctx context.Context, dir string, name string, args ...string) (string, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	return f.out, f.err
}

func TestAcquireCreatesWorktreeBranch(t *testing.T) {
	runner := &fakeRunner{}
	h := &Host{RepoRoot: "/repo", Runner: runner}

	dir, err := h.Acquire(context.Background(), "F001-A")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if !strings.Contains(dir, "F001-A") {
		t.Fatalf("worktree dir %q should contain sanitized task id", dir)
	}
	if len(runner.calls) != 1 || runner.calls[0][0] != "git" || runner.calls[0][1] != "worktree" {
		t.Fatalf("unexpected calls: %v", runner.calls)
	}
}

func TestReleaseRemovesWorktree(t *testing.T) {
	runner := &fakeRunner{}
	h := &Host{RepoRoot: "/repo", Runner: runner}

	if err := h.Release(context.Background(), "/repo/.nexus/worktrees/F001-A"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if len(runner.calls) != 1 || runner.calls[0][2] != "remove" {
		t.Fatalf("unexpected calls: %v", runner.calls)
	}
}

func TestCreateCheckpointReturnsBranchName(t *testing.T) {
	runner := &fakeRunner{}
	h := &Host{RepoRoot: "/repo", Runner: runner}

	branch, err := h.CreateCheckpoint(context.Background(), "F001-A/escalated")
	if err != nil {
		t.Fatalf("CreateCheckpoint: %v", err)
	}
	if !strings.HasPrefix(branch, "nexus/escalate/") {
		t.Fatalf("branch %q should have nexus/escalate/ prefix", branch)
	}
}

func TestListCheckpointsParsesForEachRef(t *testing.T) {
	runner := &fakeRunner{out: "nexus/escalate/F001-A 2026-01-01T00:00:00+00:00\nnexus/escalate/F002-B 2026-01-02T00:00:00+00:00\n"}
	h := &Host{RepoRoot: "/repo", Runner: runner}

	infos, err := h.ListCheckpoints(context.Background())
	if err != nil {
		t.Fatalf("ListCheckpoints: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("expected 2 checkpoints, got %d", len(infos))
	}
	if infos[0].BranchName != "nexus/escalate/F001-A" {
		t.Fatalf("unexpected branch name: %s", infos[0].BranchName)
	}
}

func TestSanitizeReplacesUnsafeCharacters(t *testing.T) {
	got := sanitize("F001/A escalated!")
	if strings.ContainsAny(got, "/ !") {
		t.Fatalf("sanitize left unsafe characters: %q", got)
	}
}
