// Package coordinator implements the top-level run loop: run a Plan to
// completion by repeatedly resolving the next wave, checkpointing, and
// dispatching iterators within a concurrency bound. Run does not call the
// Replanner: no replan decision is observed or applied between waves.
//
// Dispatch within a wave uses sourcegraph/conc's structured pool rather
// than a hand-rolled semaphore and sync.WaitGroup.
package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/nexusdev/nexus/internal/escalation"
	"github.com/nexusdev/nexus/internal/iterator"
	"github.com/nexusdev/nexus/internal/models"
	"github.com/nexusdev/nexus/internal/replan"
	"github.com/nexusdev/nexus/internal/resolver"
)

// DefaultMaxConcurrency is the Coordinator's default wave concurrency.
const DefaultMaxConcurrency = 4

// ReplanTickInterval is a Replanner observation cadence; Run does not use it.
const ReplanTickInterval = 5 * time.Second

// WorktreeProvider scopes an iterator run to an isolated worktree.
type WorktreeProvider interface {
	Acquire(ctx context.Context, taskID string) (string, error)
	Release(ctx context.Context, worktreeID string) error
}

// PersistenceGateway persists checkpoints between waves.
type PersistenceGateway interface {
	WriteCheckpoint(ctx context.Context, cp models.Checkpoint) error
}

// HumanChannel waits for a human's decision on an escalation package.
// The Coordinator holds no HumanChannel and never calls one.
type HumanChannel interface {
	AwaitDecision(ctx context.Context, pkgID string) (models.Decision, error)
}

// CascadeAbandon controls Open Question (b): whether a dependent of an
// Abandoned task is itself marked Abandoned (true, default) or keeps its
// current status (false), in which case the resolver never schedules it
// because its dependency is not Completed. See DESIGN.md.
type Config struct {
	MaxConcurrency  int
	CascadeAbandon  bool
	EstimateForNew  func(models.Task) int // TimeEstimator hook; Run does not call it
}

// DefaultConfig returns the Coordinator's baked-in defaults.
func DefaultConfig() Config {
	return Config{MaxConcurrency: DefaultMaxConcurrency, CascadeAbandon: true}
}

// Coordinator drives a Plan from its initial state to a terminal outcome.
type Coordinator struct {
	Resolver   *resolver.Resolver
	Iterator   *iterator.Iterator
	Worktrees  WorktreeProvider
	Persist    PersistenceGateway
	Escalation *escalation.Handler
	Planner    *replan.Planner
	Config     Config
}

// New constructs a Coordinator with the package's default resolver
// concurrency and config.
func New(it *iterator.Iterator, worktrees WorktreeProvider, persist PersistenceGateway, esc *escalation.Handler) *Coordinator {
	cfg := DefaultConfig()
	return &Coordinator{
		Resolver:   &resolver.Resolver{MaxConcurrency: cfg.MaxConcurrency},
		Iterator:   it,
		Worktrees:  worktrees,
		Persist:    persist,
		Escalation: esc,
		Planner:    replan.NewPlanner(),
		Config:     cfg,
	}
}

// Run executes the top-level loop until the plan has no non-terminal
// tasks or the resolver finds no task ready to run, returning the final
// outcome.
func (c *Coordinator) Run(ctx context.Context, plan *models.Plan) (*models.ExecutionResult, error) {
	start := time.Now()
	current := plan

	for current.NonTerminalCount() > 0 {
		wave, err := c.Resolver.Resolve(current)
		if err != nil {
			return nil, fmt.Errorf("coordinator: resolve wave: %w", err)
		}
		if len(wave.TaskIDs) == 0 {
			// Nothing is Ready, but something is non-terminal: everything
			// left is Blocked or Escalated awaiting a human decision.
			break
		}

		if err := c.checkpoint(ctx, current); err != nil {
			return nil, fmt.Errorf("coordinator: pre-wave checkpoint: %w", err)
		}

		current = c.dispatchWave(ctx, current, wave)

		if err := c.checkpoint(ctx, current); err != nil {
			return nil, fmt.Errorf("coordinator: post-wave checkpoint: %w", err)
		}
	}

	result := models.NewExecutionResult(current, time.Since(start))
	return result, nil
}

// dispatchWave runs every task in wave concurrently, bounded by
// Config.MaxConcurrency, each through the Iterator in its own worktree,
// applying the settled statuses (and cascade-on-Abandon policy) to a new
// plan version.
func (c *Coordinator) dispatchWave(ctx context.Context, plan *models.Plan, wave models.Wave) *models.Plan {
	maxConcurrency := c.Config.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = DefaultMaxConcurrency
	}

	type outcome struct {
		taskID string
		status models.Status
	}
	results := make(chan outcome, len(wave.TaskIDs))

	p := pool.New().WithMaxGoroutines(maxConcurrency)
	for _, taskID := range wave.TaskIDs {
		taskID := taskID
		task, ok := plan.TaskByID(taskID)
		if !ok {
			continue
		}
		p.Go(func() {
			status := c.runOne(ctx, task)
			results <- outcome{taskID: taskID, status: status}
		})
	}
	p.Wait()
	close(results)

	statusByID := make(map[string]models.Status, len(wave.TaskIDs))
	for o := range results {
		statusByID[o.taskID] = o.status
	}

	tasks := make([]models.Task, len(plan.Tasks))
	for i, t := range plan.Tasks {
		if s, ok := statusByID[t.ID]; ok {
			t.Status = s
		}
		tasks[i] = t
	}
	next := plan.WithTasks(tasks)

	if c.Config.CascadeAbandon {
		next = cascadeAbandoned(next)
	}
	return next
}

// runOne drives a single task through the iterator, scoping it to its own
// worktree, and returns its settled status. Escalation is handled by the
// Iterator's own EscalationSink wiring; runOne only reports the resulting
// status back to the wave.
func (c *Coordinator) runOne(ctx context.Context, task models.Task) models.Status {
	worktreeID := task.ID
	if c.Worktrees != nil {
		id, err := c.Worktrees.Acquire(ctx, task.ID)
		if err != nil {
			return models.StatusEscalated
		}
		worktreeID = id
		defer c.Worktrees.Release(ctx, worktreeID)
	}

	outcome, err := c.Iterator.Run(ctx, task, worktreeID)
	if err != nil {
		return models.StatusAbandoned
	}
	return outcome.FinalStatus
}

func (c *Coordinator) checkpoint(ctx context.Context, plan *models.Plan) error {
	if c.Persist == nil {
		return nil
	}
	statuses := make(map[string]models.Status, len(plan.Tasks))
	for _, t := range plan.Tasks {
		statuses[t.ID] = t.Status
	}
	cp := models.Checkpoint{
		CreatedAt:    time.Now(),
		PlanSnapshot: plan,
		TaskStatuses: statuses,
	}
	return c.Persist.WriteCheckpoint(ctx, cp)
}

// cascadeAbandoned marks any task depending (directly or transitively) on
// an Abandoned task as Abandoned too, implementing Open Question (b)'s
// default policy.
func cascadeAbandoned(plan *models.Plan) *models.Plan {
	abandoned := make(map[string]bool)
	for _, t := range plan.Tasks {
		if t.Status == models.StatusAbandoned {
			abandoned[t.ID] = true
		}
	}

	changed := true
	for changed {
		changed = false
		for _, t := range plan.Tasks {
			if abandoned[t.ID] {
				continue
			}
			for _, dep := range t.DependsOn {
				if abandoned[dep] {
					abandoned[t.ID] = true
					changed = true
					break
				}
			}
		}
	}

	tasks := make([]models.Task, len(plan.Tasks))
	for i, t := range plan.Tasks {
		if abandoned[t.ID] && t.Status != models.StatusAbandoned {
			t.Status = models.StatusAbandoned
		}
		tasks[i] = t
	}
	return &models.Plan{PlanID: plan.PlanID, Version: plan.Version, Tasks: tasks}
}
