// Package replan watches running tasks for signals that a plan needs to
// change and applies the resulting decisions.
//
// Grounded on the executor.QualityController retry/escalation
// heuristics (internal/executor/qc.go's MaxRetries and behavioral-metrics
// gating) generalized into five pure, stateless evaluators plus a
// stateful decision-collapsing planner.
package replan

import (
	"time"

	"github.com/nexusdev/nexus/internal/models"
)

// TimeExceededFactor is the default k in run.elapsedMinutes > estimate*k.
const TimeExceededFactor = 1.5

// IterationSoftLimit is the default soft cap.
const IterationSoftLimit = 10

// ScopeCreepFileDelta and ScopeCreepRatio implement the "≥50% or ≥3 files"
// rule.
const (
	ScopeCreepFileDelta = 3
	ScopeCreepRatio     = 0.5
)

// RepeatedFailureThreshold is the recurrence count that fires RepeatedFailure.
const RepeatedFailureThreshold = 3

// SameStageConsecutiveEscalateThreshold governs IterationExceeded's
// Escalate-vs-ReEstimate branch.
const SameStageConsecutiveEscalateThreshold = 3

// Evaluator is a pure function: evaluate(task, run, plan, now) -> signal|nil.
type Evaluator func(task models.Task, run models.TaskRun, plan *models.Plan, now time.Time) *models.ReplanSignal

// Evaluators lists the five evaluators in their fixed evaluation order;
// Planner.Observe calls them in this order and takes the first
// non-nil signal per task per tick (first-match-wins).
var Evaluators = []Evaluator{
	EvaluateTimeExceeded,
	EvaluateIterationExceeded,
	EvaluateScopeCreep,
	EvaluateRepeatedFailure,
	EvaluateUnexpectedComplexity,
}

// EvaluateTimeExceeded fires when elapsed minutes exceed estimate*k.
func EvaluateTimeExceeded(task models.Task, run models.TaskRun, plan *models.Plan, now time.Time) *models.ReplanSignal {
	elapsed := run.ElapsedMinutes(now)
	threshold := float64(task.TimeEstimateMinutes) * TimeExceededFactor
	if elapsed <= threshold {
		return nil
	}
	return &models.ReplanSignal{
		Kind:            models.SignalTimeExceeded,
		TaskID:          task.ID,
		ObservedMetric:  elapsed,
		Threshold:       threshold,
		SuggestedAction: models.ActionSplit,
	}
}

// EvaluateIterationExceeded fires past the soft cap; it suggests Escalate
// if the same stage has failed >=3 consecutive times, otherwise ReEstimate.
func EvaluateIterationExceeded(task models.Task, run models.TaskRun, plan *models.Plan, now time.Time) *models.ReplanSignal {
	if run.Iteration <= IterationSoftLimit {
		return nil
	}
	action := models.ActionReEstimate
	for _, count := range run.ConsecutiveStageFailures {
		if count >= SameStageConsecutiveEscalateThreshold {
			action = models.ActionEscalate
			break
		}
	}
	return &models.ReplanSignal{
		Kind:            models.SignalIterationExceeded,
		TaskID:          task.ID,
		ObservedMetric:  float64(run.Iteration),
		Threshold:       float64(IterationSoftLimit),
		SuggestedAction: action,
	}
}

// EvaluateScopeCreep fires when actually-touched files exceed the
// declared file set by >=50% or >=3 files.
func EvaluateScopeCreep(task models.Task, run models.TaskRun, plan *models.Plan, now time.Time) *models.ReplanSignal {
	declared := len(task.Files)
	touched := len(run.FilesTouched)
	delta := touched - declared
	if delta <= 0 {
		return nil
	}
	ratioBreach := declared > 0 && float64(delta)/float64(declared) >= ScopeCreepRatio
	countBreach := delta >= ScopeCreepFileDelta
	if !ratioBreach && !countBreach {
		return nil
	}
	return &models.ReplanSignal{
		Kind:            models.SignalScopeCreep,
		TaskID:          task.ID,
		ObservedMetric:  float64(touched),
		Threshold:       float64(declared),
		SuggestedAction: models.ActionSplit,
	}
}

// EvaluateRepeatedFailure fires when the same diagnostic fingerprint
// recurs >=3 times. Suggests Reroute, or Escalate once the task has been
// rerouted twice (Planner.Decide applies the same cap of 2 reroutes).
func EvaluateRepeatedFailure(task models.Task, run models.TaskRun, plan *models.Plan, now time.Time) *models.ReplanSignal {
	fp, count := run.MostRepeatedFingerprint()
	if fp == "" || count < RepeatedFailureThreshold {
		return nil
	}
	action := models.ActionReroute
	if run.RerouteCount >= 2 {
		action = models.ActionEscalate
	}
	return &models.ReplanSignal{
		Kind:            models.SignalRepeatedFailure,
		TaskID:          task.ID,
		ObservedMetric:  float64(count),
		Threshold:       float64(RepeatedFailureThreshold),
		SuggestedAction: action,
	}
}

// EvaluateUnexpectedComplexity fires when the agent requested a replan or
// review reported "scope too large".
func EvaluateUnexpectedComplexity(task models.Task, run models.TaskRun, plan *models.Plan, now time.Time) *models.ReplanSignal {
	if !run.RequestedReplan && !run.ReviewScopeTooLarge {
		return nil
	}
	return &models.ReplanSignal{
		Kind:            models.SignalUnexpectedComplexity,
		TaskID:          task.ID,
		ObservedMetric:  1,
		Threshold:       0,
		SuggestedAction: models.ActionSplit,
	}
}

// Evaluate runs all five evaluators in fixed order and returns the first
// non-nil signal (first-match-wins per task per tick).
func Evaluate(task models.Task, run models.TaskRun, plan *models.Plan, now time.Time) *models.ReplanSignal {
	for _, eval := range Evaluators {
		if sig := eval(task, run, plan, now); sig != nil {
			return sig
		}
	}
	return nil
}
