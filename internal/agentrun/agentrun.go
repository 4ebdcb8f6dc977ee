// Package agentrun adapts the Claude CLI invocation stack
// (internal/claude) to the iterator.AgentRunner interface that drives
// every Coding stage.
package agentrun

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nexusdev/nexus/internal/claude"
	"github.com/nexusdev/nexus/internal/iterator"
)

// agentResultSchema constrains Claude's structured output to exactly the
// fields AgentResult needs, the same --json-schema enforcement pattern
// internal/claude.Invoker was built for.
const agentResultSchema = `{
  "type": "object",
  "properties": {
    "files_touched": {"type": "array", "items": {"type": "string"}},
    "session_resume": {"type": "string"},
    "requested_context": {"type": "string"},
    "requested_replan": {"type": "boolean"}
  },
  "required": ["files_touched"]
}`

type agentResultWire struct {
	FilesTouched     []string `json:"files_touched"`
	SessionResume    string   `json:"session_resume"`
	RequestedContext string   `json:"requested_context"`
	RequestedReplan  bool     `json:"requested_replan"`
}

// ClaudeAgentRunner drives a Task's Coding stage by invoking the Claude
// CLI once per call, resuming the prior session when the iterator
// supplies one.
type ClaudeAgentRunner struct {
	Invoker     *claude.Invoker
	BypassPerms bool
}

// NewClaudeAgentRunner wraps inv, defaulting BypassPerms to true since
// Nexus runs agents non-interactively inside an isolated worktree.
func NewClaudeAgentRunner(inv *claude.Invoker) *ClaudeAgentRunner {
	return &ClaudeAgentRunner{Invoker: inv, BypassPerms: true}
}

func (r *ClaudeAgentRunner) RunAgent(ctx context.Context, agentCtx iterator.AgentContext) (iterator.AgentResult, error) {
	req := claude.Request{
		Prompt:      buildPrompt(agentCtx),
		Schema:      agentResultSchema,
		ResumeID:    agentCtx.SessionResume,
		BypassPerms: r.BypassPerms,
		Dir:         agentCtx.WorktreeDir,
	}

	resp, err := r.Invoker.Invoke(ctx, req)
	if err != nil {
		return iterator.AgentResult{}, fmt.Errorf("agentrun: invoke claude: %w", err)
	}

	content, sessionID, err := claude.ParseResponse(resp.RawOutput)
	if err != nil {
		return iterator.AgentResult{}, fmt.Errorf("agentrun: parse claude response: %w", err)
	}
	if content == "" {
		return iterator.AgentResult{}, fmt.Errorf("agentrun: empty response from claude for task %s", agentCtx.Task.ID)
	}

	var wire agentResultWire
	if err := json.Unmarshal([]byte(content), &wire); err != nil {
		return iterator.AgentResult{}, fmt.Errorf("agentrun: unmarshal agent result: %w", err)
	}

	resume := wire.SessionResume
	if resume == "" {
		resume = sessionID
	}

	return iterator.AgentResult{
		FilesTouched:     wire.FilesTouched,
		SessionResume:    resume,
		RequestedContext: wire.RequestedContext,
		RequestedReplan:  wire.RequestedReplan,
	}, nil
}

// buildPrompt renders the task, its accumulated diagnostics, the open
// tool set, and any context the host supplied in answer to a prior
// request-context call, into the single prompt Claude CLI receives.
func buildPrompt(agentCtx iterator.AgentContext) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# Task %s: %s\n\n", agentCtx.Task.ID, agentCtx.Task.Name)
	if agentCtx.Task.Description != "" {
		sb.WriteString(agentCtx.Task.Description)
		sb.WriteString("\n\n")
	}
	if agentCtx.Task.AcceptanceCriterion != "" {
		fmt.Fprintf(&sb, "## Acceptance criterion\n%s\n\n", agentCtx.Task.AcceptanceCriterion)
	}
	if len(agentCtx.Task.Files) > 0 {
		sb.WriteString("## Target files\n")
		for _, f := range agentCtx.Task.Files {
			fmt.Fprintf(&sb, "- %s\n", f)
		}
		sb.WriteString("\n")
	}
	if len(agentCtx.Diagnostics) > 0 {
		sb.WriteString("## Outstanding diagnostics\n")
		for _, d := range agentCtx.Diagnostics {
			fmt.Fprintf(&sb, "- [%s] %s:%d %s\n", d.Code, d.File, d.Line, d.Message)
		}
		sb.WriteString("\n")
	}
	if agentCtx.ExtraContext != "" {
		fmt.Fprintf(&sb, "## Additional context\n%s\n\n", agentCtx.ExtraContext)
	}
	if len(agentCtx.Tools) > 0 {
		fmt.Fprintf(&sb, "## Available tools\n%s\n\n", strings.Join(agentCtx.Tools, ", "))
	}
	sb.WriteString("Respond with JSON matching the provided schema: files_touched, and optionally session_resume, requested_context, requested_replan.\n")

	return sb.String()
}
