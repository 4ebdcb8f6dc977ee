package agentrun

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nexusdev/nexus/internal/claude"
	"github.com/nexusdev/nexus/internal/iterator"
	"github.com/nexusdev/nexus/internal/models"
)

const reviewResultSchema = `{
  "type": "object",
  "properties": {
    "verdict": {"type": "string", "enum": ["Approve", "RequestChanges", "Reject"]},
    "summary": {"type": "string"},
    "diagnostics": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "file": {"type": "string"},
          "line": {"type": "integer"},
          "message": {"type": "string"}
        },
        "required": ["message"]
      }
    }
  },
  "required": ["verdict", "summary"]
}`

type reviewResultWire struct {
	Verdict     string `json:"verdict"`
	Summary     string `json:"summary"`
	Diagnostics []struct {
		File    string `json:"file"`
		Line    int    `json:"line"`
		Message string `json:"message"`
	} `json:"diagnostics"`
}

// ClaudeReviewer drives the Review stage by asking Claude to judge the
// files a Coding stage touched against the task's acceptance criterion,
// using the same invoke-then-parse plumbing as ClaudeAgentRunner.
type ClaudeReviewer struct {
	Invoker *claude.Invoker
	DirFor  func(task models.Task) string
}

// NewClaudeReviewer wraps inv; dirFor resolves a task to the worktree the
// review prompt should be read relative to.
func NewClaudeReviewer(inv *claude.Invoker, dirFor func(task models.Task) string) *ClaudeReviewer {
	return &ClaudeReviewer{Invoker: inv, DirFor: dirFor}
}

// Review implements the iterator.QAPipeline.Review stage signature.
func (r *ClaudeReviewer) Review(ctx context.Context, task models.Task, filesTouched []string) (models.StageResult, iterator.ReviewVerdict, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Review task %s: %s\n\n", task.ID, task.Name)
	if task.AcceptanceCriterion != "" {
		fmt.Fprintf(&sb, "Acceptance criterion: %s\n\n", task.AcceptanceCriterion)
	}
	fmt.Fprintf(&sb, "Files touched this iteration: %s\n\n", strings.Join(filesTouched, ", "))
	sb.WriteString("Respond with JSON matching the provided schema: verdict (Approve/RequestChanges/Reject), summary, and optionally diagnostics.\n")

	req := claude.Request{
		Prompt: sb.String(),
		Schema: reviewResultSchema,
		Dir:    r.DirFor(task),
	}
	resp, err := r.Invoker.Invoke(ctx, req)
	if err != nil {
		return models.StageResult{}, "", fmt.Errorf("agentrun: invoke claude for review: %w", err)
	}

	content, _, err := claude.ParseResponse(resp.RawOutput)
	if err != nil {
		return models.StageResult{}, "", fmt.Errorf("agentrun: parse review response: %w", err)
	}

	var wire reviewResultWire
	if err := json.Unmarshal([]byte(content), &wire); err != nil {
		return models.StageResult{}, "", fmt.Errorf("agentrun: unmarshal review result: %w", err)
	}

	diags := make([]models.Diagnostic, 0, len(wire.Diagnostics))
	for _, d := range wire.Diagnostics {
		diags = append(diags, models.Diagnostic{File: d.File, Line: d.Line, Message: d.Message, Code: string(models.StageReview)})
	}

	verdict := iterator.ReviewVerdict(wire.Verdict)
	result := models.StageResult{
		Stage:       models.StageReview,
		Passed:      verdict == iterator.VerdictApprove,
		Summary:     wire.Summary,
		Diagnostics: diags,
	}
	return result, verdict, nil
}
