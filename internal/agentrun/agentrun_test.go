package agentrun

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/nexusdev/nexus/internal/claude"
	"github.com/nexusdev/nexus/internal/iterator"
	"github.com/nexusdev/nexus/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mockClaudePath(t *testing.T, output string) string {
	t.Helper()
	dir := t.TempDir()
	script := filepath.Join(dir, "mock-claude")
	content := fmt.Sprintf("#!/bin/sh\necho '%s'\nexit 0\n", output)
	require.NoError(t, os.WriteFile(script, []byte(content), 0o755))
	return script
}

func TestRunAgent_ParsesStructuredOutputIntoAgentResult(t *testing.T) {
	path := mockClaudePath(t, `{"structured_output":{"files_touched":["a.go","b.go"],"session_resume":"sess-1"},"session_id":"sess-1"}`)
	r := NewClaudeAgentRunner(&claude.Invoker{ClaudePath: path})

	result, err := r.RunAgent(context.Background(), iterator.AgentContext{
		Task:  models.Task{ID: "T1", Name: "Add health check"},
		Tools: iterator.DefaultTools,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.go", "b.go"}, result.FilesTouched)
	assert.Equal(t, "sess-1", result.SessionResume)
}

func TestRunAgent_FallsBackToSessionIDWhenResumeOmitted(t *testing.T) {
	path := mockClaudePath(t, `{"structured_output":{"files_touched":["a.go"]},"session_id":"sess-2"}`)
	r := NewClaudeAgentRunner(&claude.Invoker{ClaudePath: path})

	result, err := r.RunAgent(context.Background(), iterator.AgentContext{Task: models.Task{ID: "T1"}})
	require.NoError(t, err)
	assert.Equal(t, "sess-2", result.SessionResume)
}

func TestRunAgent_EmptyResponseIsAnError(t *testing.T) {
	path := mockClaudePath(t, "")
	r := NewClaudeAgentRunner(&claude.Invoker{ClaudePath: path})

	_, err := r.RunAgent(context.Background(), iterator.AgentContext{Task: models.Task{ID: "T1"}})
	assert.Error(t, err)
}

func TestBuildPrompt_IncludesDiagnosticsAndExtraContext(t *testing.T) {
	prompt := buildPrompt(iterator.AgentContext{
		Task: models.Task{ID: "T1", Name: "Fix it", AcceptanceCriterion: "passes ci"},
		Diagnostics: []models.Diagnostic{
			{Code: "E001", File: "a.go", Line: 10, Message: "undefined symbol"},
		},
		ExtraContext: "the build uses go 1.25",
		Tools:        []string{"read-file"},
	})
	assert.Contains(t, prompt, "Task T1: Fix it")
	assert.Contains(t, prompt, "passes ci")
	assert.Contains(t, prompt, "E001")
	assert.Contains(t, prompt, "the build uses go 1.25")
	assert.Contains(t, prompt, "read-file")
}
