package resolver

import (
	"testing"

	"github.com/nexusdev/nexus/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_FirstWaveHasNoDependencies(t *testing.T) {
	plan := &models.Plan{
		PlanID: "p1",
		Tasks: []models.Task{
			{ID: "T1", Name: "a", TimeEstimateMinutes: 5, Status: models.StatusPending},
			{ID: "T2", Name: "b", TimeEstimateMinutes: 5, Status: models.StatusPending, DependsOn: []string{"T1"}},
		},
	}
	r := New()
	wave, err := r.Resolve(plan)
	require.NoError(t, err)
	assert.Equal(t, []string{"T1"}, wave.TaskIDs)
}

func TestResolve_WaveAdvancesOnceDependencyCompletes(t *testing.T) {
	plan := &models.Plan{
		PlanID: "p1",
		Tasks: []models.Task{
			{ID: "T1", Name: "a", TimeEstimateMinutes: 5, Status: models.StatusCompleted},
			{ID: "T2", Name: "b", TimeEstimateMinutes: 5, Status: models.StatusPending, DependsOn: []string{"T1"}},
		},
	}
	r := New()
	wave, err := r.Resolve(plan)
	require.NoError(t, err)
	assert.Equal(t, []string{"T2"}, wave.TaskIDs)
}

func TestResolve_IndependentTasksShareAWave(t *testing.T) {
	plan := &models.Plan{
		PlanID: "p1",
		Tasks: []models.Task{
			{ID: "T1", Name: "a", TimeEstimateMinutes: 5, Status: models.StatusPending},
			{ID: "T2", Name: "b", TimeEstimateMinutes: 5, Status: models.StatusPending},
		},
	}
	r := New()
	wave, err := r.Resolve(plan)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"T1", "T2"}, wave.TaskIDs)
	require.NoError(t, ValidateWaveIndependence(wave, plan))
}

func TestResolve_RejectsCyclicPlan(t *testing.T) {
	plan := &models.Plan{
		PlanID: "p1",
		Tasks: []models.Task{
			{ID: "T1", Name: "a", TimeEstimateMinutes: 5, DependsOn: []string{"T2"}},
			{ID: "T2", Name: "b", TimeEstimateMinutes: 5, DependsOn: []string{"T1"}},
		},
	}
	_, err := New().Resolve(plan)
	require.Error(t, err)
}

func TestValidateWaveIndependence_DetectsViolation(t *testing.T) {
	plan := &models.Plan{
		PlanID: "p1",
		Tasks: []models.Task{
			{ID: "T1", Name: "a"},
			{ID: "T2", Name: "b", DependsOn: []string{"T1"}},
		},
	}
	wave := models.Wave{Name: "bad", TaskIDs: []string{"T1", "T2"}}
	err := ValidateWaveIndependence(wave, plan)
	require.Error(t, err)
}
