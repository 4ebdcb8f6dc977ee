package replan

import (
	"fmt"
	"time"

	"github.com/nexusdev/nexus/internal/models"
)

// Planner collapses replan signals into decisions (Escalate > Split >
// ReEstimate priority, Reroute capped at 2) and applies them as atomic
// plan mutations.
//
// Grounded on the executor.QualityController decision loop
// (ShouldRetry / MaxRetries gating in internal/executor/qc.go), generalized
// from a single retry counter into a five-signal, multi-action policy.
type Planner struct {
	pending map[string][]models.ReplanSignal // taskID -> signals observed this cycle
}

// NewPlanner constructs an empty Planner.
func NewPlanner() *Planner {
	return &Planner{pending: make(map[string][]models.ReplanSignal)}
}

// Observe records the latest metrics for a task/run, invokes the five
// evaluators in fixed order, and enqueues the first-matching signal.
func (p *Planner) Observe(task models.Task, run models.TaskRun, plan *models.Plan, now time.Time) {
	sig := Evaluate(task, run, plan, now)
	if sig == nil {
		return
	}
	p.pending[task.ID] = append(p.pending[task.ID], *sig)
}

// Decide collapses pending signals into at most one ReplanDecision per
// task, per the priority policy: Escalate wins over everything; Split
// wins over ReEstimate; Reroute caps at 2 uses per task (the third
// RepeatedFailure signal for that task escalates instead).
func (p *Planner) Decide(rerouteCounts map[string]int) []models.ReplanDecision {
	var decisions []models.ReplanDecision
	for taskID, signals := range p.pending {
		if len(signals) == 0 {
			continue
		}
		decisions = append(decisions, p.collapse(taskID, signals, rerouteCounts[taskID]))
	}
	p.pending = make(map[string][]models.ReplanSignal)
	return decisions
}

func (p *Planner) collapse(taskID string, signals []models.ReplanSignal, rerouteCount int) models.ReplanDecision {
	action := pickAction(signals, rerouteCount)
	return models.ReplanDecision{
		TaskID:    taskID,
		Action:    action,
		Rationale: rationale(action, signals),
		Signals:   signals,
	}
}

// pickAction applies the priority policy across every signal observed for
// a task this cycle: Escalate > Split > Reroute > ReEstimate.
func pickAction(signals []models.ReplanSignal, rerouteCount int) models.Action {
	hasSplit, hasReroute, hasReEstimate := false, false, false
	for _, s := range signals {
		switch s.SuggestedAction {
		case models.ActionEscalate:
			return models.ActionEscalate
		case models.ActionSplit:
			hasSplit = true
		case models.ActionReroute:
			hasReroute = true
		case models.ActionReEstimate:
			hasReEstimate = true
		}
	}
	if hasSplit {
		return models.ActionSplit
	}
	if hasReroute {
		if rerouteCount >= 2 {
			return models.ActionEscalate
		}
		return models.ActionReroute
	}
	if hasReEstimate {
		return models.ActionReEstimate
	}
	return models.ActionEscalate
}

func rationale(action models.Action, signals []models.ReplanSignal) string {
	if len(signals) == 0 {
		return fmt.Sprintf("%s: no supporting signals", action)
	}
	s := signals[0]
	return fmt.Sprintf("%s chosen from %s signal (observed=%.1f, threshold=%.1f)", action, s.Kind, s.ObservedMetric, s.Threshold)
}

// Apply produces a new Plan version from a decision's mutations, atomically:
// either every mutation lands and the DAG/30-minute invariants still hold,
// or the whole decision is rejected and replaced with an Escalate decision.
func Apply(decision models.ReplanDecision, plan *models.Plan) (*models.Plan, models.ReplanDecision) {
	next := applyMutations(decision, plan)
	if err := next.Validate(); err != nil {
		rejected := models.ReplanDecision{
			TaskID:    decision.TaskID,
			Action:    models.ActionEscalate,
			Rationale: fmt.Sprintf("mutation for %s rejected: %v", decision.Action, err),
			Signals:   decision.Signals,
		}
		return plan, rejected
	}
	return next, decision
}

func applyMutations(decision models.ReplanDecision, plan *models.Plan) *models.Plan {
	tasks := make([]models.Task, len(plan.Tasks))
	for i, t := range plan.Tasks {
		tasks[i] = t.Clone()
	}

	for _, m := range decision.Mutations {
		switch m.Kind {
		case models.MutationAddTasks:
			tasks = append(tasks, m.AddedTasks...)
		case models.MutationRemoveTask:
			tasks = removeTask(tasks, m.TaskID)
		case models.MutationChangeDependsOn:
			tasks = mutateTask(tasks, m.TaskID, func(t *models.Task) {
				t.DependsOn = append([]string(nil), m.NewDependsOn...)
			})
		case models.MutationChangeEstimate:
			tasks = mutateTask(tasks, m.TaskID, func(t *models.Task) {
				t.TimeEstimateMinutes = m.NewEstimate
			})
		}
	}

	return plan.WithTasks(tasks)
}

func removeTask(tasks []models.Task, id string) []models.Task {
	out := make([]models.Task, 0, len(tasks))
	for _, t := range tasks {
		if t.ID != id {
			out = append(out, t)
		}
	}
	return out
}

func mutateTask(tasks []models.Task, id string, fn func(*models.Task)) []models.Task {
	for i := range tasks {
		if tasks[i].ID == id {
			fn(&tasks[i])
		}
	}
	return tasks
}
