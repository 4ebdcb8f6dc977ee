package planio

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestYAMLDecomposer_ParsesTasksAndFrontmatterSettings(t *testing.T) {
	src := `
plan_id: demo
default_agent: claude
escalation_channels: [console, slack]
tasks:
  - id: T1
    name: Add health check
    description: Expose a liveness endpoint.
    estimate_minutes: 10
    files: [cmd/health.go]
  - id: T2
    name: Wire metrics
    depends_on: [T1]
    estimate_minutes: 15
`
	d := NewYAMLDecomposer()
	ps, err := d.Decompose(strings.NewReader(src))
	require.NoError(t, err)

	assert.Equal(t, "demo", ps.Plan.PlanID)
	assert.Equal(t, "claude", ps.DefaultAgent)
	assert.Equal(t, []string{"console", "slack"}, ps.EscalationChannels)
	require.Len(t, ps.Plan.Tasks, 2)
	assert.Equal(t, "T1", ps.Plan.Tasks[0].ID)
	assert.Equal(t, "Expose a liveness endpoint.", ps.Plan.Tasks[0].Description)
	assert.Equal(t, []string{"T1"}, ps.Plan.Tasks[1].DependsOn)
}

func TestYAMLDecomposer_RejectsMissingPlanID(t *testing.T) {
	d := NewYAMLDecomposer()
	_, err := d.Decompose(strings.NewReader("tasks: []\n"))
	assert.Error(t, err)
}

func TestMarkdownDecomposer_ParsesFrontmatterAndTaskSections(t *testing.T) {
	src := "---\n" +
		"plan_id: demo\n" +
		"default_agent: claude\n" +
		"escalation_channels: [console]\n" +
		"---\n\n" +
		"## Task T1: Add health check\n\n" +
		"Expose a liveness endpoint.\n\n" +
		"```yaml\n" +
		"estimate_minutes: 10\n" +
		"files: [cmd/health.go]\n" +
		"```\n\n" +
		"## Task T2: Wire metrics\n\n" +
		"Add a /metrics route.\n\n" +
		"```yaml\n" +
		"depends_on: [T1]\n" +
		"estimate_minutes: 15\n" +
		"```\n"

	d := NewMarkdownDecomposer()
	ps, err := d.Decompose(strings.NewReader(src))
	require.NoError(t, err)

	assert.Equal(t, "demo", ps.Plan.PlanID)
	assert.Equal(t, "claude", ps.DefaultAgent)
	require.Len(t, ps.Plan.Tasks, 2)

	t1 := ps.Plan.Tasks[0]
	assert.Equal(t, "T1", t1.ID)
	assert.Equal(t, "Add health check", t1.Name)
	assert.Equal(t, "Expose a liveness endpoint.", t1.Description)
	assert.Equal(t, 10, t1.TimeEstimateMinutes)
	assert.Equal(t, []string{"cmd/health.go"}, t1.Files)

	t2 := ps.Plan.Tasks[1]
	assert.Equal(t, []string{"T1"}, t2.DependsOn)
	assert.Equal(t, 15, t2.TimeEstimateMinutes)
}

func TestMarkdownDecomposer_NoFrontmatterStillParsesTasks(t *testing.T) {
	src := "## Task T1: Solo task\n\nDo the thing.\n"
	d := NewMarkdownDecomposer()
	ps, err := d.Decompose(strings.NewReader(src))
	require.NoError(t, err)
	require.Len(t, ps.Plan.Tasks, 1)
	assert.Equal(t, "Do the thing.", ps.Plan.Tasks[0].Description)
}

func TestDetectFormat(t *testing.T) {
	assert.Equal(t, FormatMarkdown, DetectFormat("plan.md"))
	assert.Equal(t, FormatYAML, DetectFormat("plan.yaml"))
	assert.Equal(t, FormatUnknown, DetectFormat("plan.txt"))
}
