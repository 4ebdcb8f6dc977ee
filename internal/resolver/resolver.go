// Package resolver implements dependency resolution: resolve(plan) ->
// Wave[], a topological ordering grouping independent Ready tasks.
//
// Grounded on the executor.BuildDependencyGraph/CalculateWaves
// (Kahn's algorithm), generalized from a flat completed/pending task list
// onto Nexus's full Status enum: only Ready tasks populate waves, and a
// task is Ready only once every dependency is Completed.
package resolver

import (
	"fmt"
	"sort"

	"github.com/nexusdev/nexus/internal/models"
)

// DefaultMaxConcurrency mirrors the executor.DefaultMaxConcurrency.
const DefaultMaxConcurrency = 4

// Resolver computes topologically-sorted waves of Ready tasks from a Plan.
type Resolver struct {
	MaxConcurrency int
}

// New creates a Resolver with the default concurrency limit (4).
func New() *Resolver {
	return &Resolver{MaxConcurrency: DefaultMaxConcurrency}
}

// Resolve computes the next wave of Ready tasks: tasks whose DependsOn are
// all Completed, and which are not already terminal/suspended/running.
// Unlike CalculateWaves (which groups the *entire* plan into a full wave
// schedule up front), Resolve recomputes a single next wave on demand: a
// wave is derived, never persisted, and recomputed after any plan
// mutation.
func (r *Resolver) Resolve(plan *models.Plan) (models.Wave, error) {
	if plan == nil {
		return models.Wave{}, fmt.Errorf("resolver: plan is nil")
	}
	if err := plan.Validate(); err != nil {
		return models.Wave{}, fmt.Errorf("resolver: %w", err)
	}

	statusByID := make(map[string]models.Status, len(plan.Tasks))
	for _, t := range plan.Tasks {
		statusByID[t.ID] = t.Status
	}

	var readyIDs []string
	for _, t := range plan.Tasks {
		if t.Status != models.StatusPending && t.Status != models.StatusReady {
			continue
		}
		ready := true
		for _, dep := range t.DependsOn {
			if statusByID[dep] != models.StatusCompleted {
				ready = false
				break
			}
		}
		if ready {
			readyIDs = append(readyIDs, t.ID)
		}
	}

	sort.Strings(readyIDs)

	maxConcurrency := r.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = DefaultMaxConcurrency
	}

	return models.Wave{
		Name:           fmt.Sprintf("wave-v%d", plan.Version),
		TaskIDs:        readyIDs,
		MaxConcurrency: maxConcurrency,
	}, nil
}

// ValidateWaveIndependence checks that no wave contains two tasks with a
// dependsOn edge between them.
func ValidateWaveIndependence(wave models.Wave, plan *models.Plan) error {
	inWave := make(map[string]bool, len(wave.TaskIDs))
	for _, id := range wave.TaskIDs {
		inWave[id] = true
	}
	for _, id := range wave.TaskIDs {
		task, ok := plan.TaskByID(id)
		if !ok {
			continue
		}
		for _, dep := range task.DependsOn {
			if inWave[dep] {
				return fmt.Errorf("wave %s: tasks %s and %s share a dependsOn edge", wave.Name, id, dep)
			}
		}
	}
	return nil
}
