package escalation

import (
	"context"
	"testing"

	"github.com/nexusdev/nexus/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCheckpointer struct{ created []string }

func (f *fakeCheckpointer) CreateCheckpoint(ctx context.Context, tag string) (string, error) {
	f.created = append(f.created, tag)
	return tag, nil
}

type fakeNotifier struct{ notified int }

func (f *fakeNotifier) Notify(ctx context.Context, channel string, pkg models.EscalationPackage) error {
	f.notified++
	return nil
}

func TestEscalate_CreatesCheckpointAndNotifies(t *testing.T) {
	cp := &fakeCheckpointer{}
	n := &fakeNotifier{}
	h := NewHandler(cp, map[string]Notifier{"console": n}, []string{"console"})

	task := models.Task{ID: "T1", Name: "x"}
	run := models.TaskRun{TaskID: "T1"}
	pkg, err := h.Escalate(context.Background(), task, run, "cap breach")
	require.NoError(t, err)
	assert.NotEmpty(t, pkg.CheckpointID)
	assert.Contains(t, pkg.CheckpointID, "nexus/escalate/T1/")
	assert.Equal(t, 1, n.notified)
	assert.Contains(t, pkg.HumanReport, "cap breach")
}

func TestEscalate_ReEscalateMergesIntoExistingPackage(t *testing.T) {
	cp := &fakeCheckpointer{}
	h := NewHandler(cp, nil, nil)
	task := models.Task{ID: "T1", Name: "x"}

	first, err := h.Escalate(context.Background(), task, models.TaskRun{TaskID: "T1"}, "first reason")
	require.NoError(t, err)

	second, err := h.Escalate(context.Background(), task, models.TaskRun{TaskID: "T1", Iteration: 5}, "second reason")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, cp.created, 1)
	assert.Contains(t, second.HumanReport, "second reason")
}

func TestResumeAndAwaitDecision(t *testing.T) {
	h := NewHandler(&fakeCheckpointer{}, nil, nil)
	task := models.Task{ID: "T1", Name: "x"}
	pkg, err := h.Escalate(context.Background(), task, models.TaskRun{TaskID: "T1"}, "reason")
	require.NoError(t, err)

	go func() {
		_ = h.Resume(task.ID, pkg.ID, models.Decision{Kind: models.DecisionResume})
	}()

	decision, err := h.AwaitDecision(context.Background(), pkg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DecisionResume, decision.Kind)
}

func TestRenderHTML(t *testing.T) {
	html, err := RenderHTML("# Title\n\nbody")
	require.NoError(t, err)
	assert.Contains(t, html, "<h1>Title</h1>")
}
