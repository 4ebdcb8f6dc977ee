package agentrun

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nexusdev/nexus/internal/iterator"
	"github.com/nexusdev/nexus/internal/models"
)

// MaxContextBytes bounds how much of a requested file is handed back to
// the agent, so one oversized file can't blow the prompt budget.
const MaxContextBytes = 32 * 1024

// RepoContextProvider answers a Coding stage's request-context tool call by
// reading one or more repository-relative file paths from Root, which is
// the checkout the plan was read from rather than any one task's worktree:
// files a task wants to see for context (not edit) generally predate the
// task and haven't diverged yet.
type RepoContextProvider struct {
	Root string
}

// NewRepoContextProvider creates a RepoContextProvider rooted at root.
func NewRepoContextProvider(root string) *RepoContextProvider {
	return &RepoContextProvider{Root: root}
}

// Provide implements iterator.ContextProvider. request is a comma- or
// newline-separated list of repository-relative paths.
func (p *RepoContextProvider) Provide(ctx context.Context, task models.Task, request string) (string, error) {
	paths := splitRequest(request)
	if len(paths) == 0 {
		return "", fmt.Errorf("agentrun: empty context request for task %s", task.ID)
	}

	var sb strings.Builder
	for _, rel := range paths {
		clean := filepath.Clean(rel)
		if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
			fmt.Fprintf(&sb, "### %s\nrejected: path escapes repository root\n\n", rel)
			continue
		}
		full := filepath.Join(p.Root, clean)
		data, err := os.ReadFile(full)
		if err != nil {
			fmt.Fprintf(&sb, "### %s\nerror reading file: %v\n\n", rel, err)
			continue
		}
		if len(data) > MaxContextBytes {
			data = data[:MaxContextBytes]
		}
		fmt.Fprintf(&sb, "### %s\n```\n%s\n```\n\n", rel, string(data))
	}
	return sb.String(), nil
}

func splitRequest(request string) []string {
	fields := strings.FieldsFunc(request, func(r rune) bool {
		return r == ',' || r == '\n'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if t := strings.TrimSpace(f); t != "" {
			out = append(out, t)
		}
	}
	return out
}

var _ iterator.ContextProvider = (*RepoContextProvider)(nil)
