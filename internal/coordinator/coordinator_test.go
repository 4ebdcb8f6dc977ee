package coordinator

import (
	"context"
	"testing"

	"github.com/nexusdev/nexus/internal/iterator"
	"github.com/nexusdev/nexus/internal/models"
	"github.com/nexusdev/nexus/internal/resolver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAgent struct{}

func (fakeAgent) RunAgent(ctx context.Context, agentCtx iterator.AgentContext) (iterator.AgentResult, error) {
	return iterator.AgentResult{FilesTouched: agentCtx.Task.Files}, nil
}

type fakeMerger struct{}

func (fakeMerger) Merge(ctx context.Context, task models.Task, worktreeID string) error { return nil }
func (fakeMerger) RebaseOntoLatestBase(ctx context.Context, task models.Task, worktreeID string) error {
	return nil
}

type fakePersist struct{ writes int }

func (f *fakePersist) WriteCheckpoint(ctx context.Context, cp models.Checkpoint) error {
	f.writes++
	return nil
}

func alwaysPass(ctx context.Context, task models.Task, files []string) (models.StageResult, error) {
	return models.StageResult{Passed: true}, nil
}

func approveReview(ctx context.Context, task models.Task, files []string) (models.StageResult, iterator.ReviewVerdict, error) {
	return models.StageResult{Passed: true}, iterator.VerdictApprove, nil
}

func TestCoordinator_RunsPlanToCompletion(t *testing.T) {
	plan := &models.Plan{
		PlanID: "p1",
		Tasks: []models.Task{
			{ID: "T1", Name: "a", TimeEstimateMinutes: 5, Status: models.StatusPending},
			{ID: "T2", Name: "b", TimeEstimateMinutes: 5, Status: models.StatusPending, DependsOn: []string{"T1"}},
		},
	}

	it := &iterator.Iterator{
		Agent: fakeAgent{},
		QA:    iterator.QAPipeline{Build: alwaysPass, Lint: alwaysPass, Test: alwaysPass, Review: approveReview},
		Merger: fakeMerger{},
	}
	persist := &fakePersist{}
	c := New(it, nil, persist, nil)

	result, err := c.Run(context.Background(), plan)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.Completed)
	assert.Greater(t, persist.writes, 0)
}

func TestCascadeAbandoned_PropagatesToDependents(t *testing.T) {
	plan := &models.Plan{
		PlanID: "p1",
		Tasks: []models.Task{
			{ID: "T1", Status: models.StatusAbandoned},
			{ID: "T2", Status: models.StatusPending, DependsOn: []string{"T1"}},
			{ID: "T3", Status: models.StatusPending, DependsOn: []string{"T2"}},
		},
	}
	next := cascadeAbandoned(plan)
	for _, task := range next.Tasks {
		assert.Equal(t, models.StatusAbandoned, task.Status)
	}
}

func TestCoordinator_UsesDefaultResolverConcurrency(t *testing.T) {
	it := &iterator.Iterator{Agent: fakeAgent{}, Merger: fakeMerger{}}
	c := New(it, nil, nil, nil)
	assert.Equal(t, resolver.DefaultMaxConcurrency, c.Resolver.MaxConcurrency)
}
