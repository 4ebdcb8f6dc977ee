// Package iterator implements the per-task state machine that drives one
// Task from Ready to a terminal outcome through a bounded
// build/lint/test/review/merge loop, with a named Fixing* state per stage
// so a failing Build/Lint/Test/Review sends the agent back to Coding with
// the right diagnostics instead of restarting the whole task.
package iterator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/nexusdev/nexus/internal/models"
)

// State is one node of the RalphStyleIterator state machine.
type State string

const (
	StateStarting     State = "Starting"
	StateCoding        State = "Coding"
	StateBuilding      State = "Building"
	StateLinting       State = "Linting"
	StateTesting       State = "Testing"
	StateReviewing     State = "Reviewing"
	StateMerging       State = "Merging"
	StateDone          State = "Done"
	StateFixingBuild   State = "FixingBuild"
	StateFixingLint    State = "FixingLint"
	StateFixingTest    State = "FixingTest"
	StateFixingReview  State = "FixingReview"
	StateEscalated     State = "Escalated"
	StateAbandoned     State = "Abandoned"
)

// Iteration and wall-clock bounds.
const (
	HardIterationCap   = 50
	SoftIterationCap    = 10
	WallClockCapMinutes = 30

	BuildTimeout  = 5 * time.Minute
	LintTimeout   = 2 * time.Minute
	TestTimeout   = 10 * time.Minute
	ReviewTimeout = 5 * time.Minute

	MaxTransientRetries = 3
)

// ReviewVerdict is the outcome of the Review stage.
type ReviewVerdict string

const (
	VerdictApprove       ReviewVerdict = "Approve"
	VerdictRequestChanges ReviewVerdict = "RequestChanges"
	VerdictReject        ReviewVerdict = "Reject"
)

// AgentContext is what the iterator hands the agent each Coding entry:
// the task, accumulated diagnostics, and the open tool set.
type AgentContext struct {
	Task          models.Task
	Diagnostics   []models.Diagnostic
	Tools         []string
	ExtraContext  string // injected when the agent's requestedContext is satisfied
	SessionResume string
	WorktreeDir   string // filesystem path of the task's isolated worktree
}

// DefaultTools is the default tool set an agent is offered.
var DefaultTools = []string{"read-file", "write-file", "run-command", "request-context", "request-replan"}

// AgentResult is what an AgentRunner returns from one Coding step.
type AgentResult struct {
	FilesTouched      []string
	SessionResume     string
	RequestedContext  string // non-empty means the agent wants more context before continuing
	RequestedReplan   bool
}

// AgentRunner is the host capability that actually writes code.
type AgentRunner interface {
	RunAgent(ctx context.Context, agentCtx AgentContext) (AgentResult, error)
}

// ContextProvider resolves an agent's requestedContext string into
// additional context text.
type ContextProvider interface {
	Provide(ctx context.Context, task models.Task, request string) (string, error)
}

// StageFunc is a QA callback; a nil StageFunc is treated as an
// automatic pass.
type StageFunc func(ctx context.Context, task models.Task, filesTouched []string) (models.StageResult, error)

// QAPipeline holds the host-supplied build/lint/test/review callbacks.
type QAPipeline struct {
	Build  StageFunc
	Lint   StageFunc
	Test   StageFunc
	Review func(ctx context.Context, task models.Task, filesTouched []string) (models.StageResult, ReviewVerdict, error)
}

// ErrMergeConflict signals a merge failure due to conflicts, distinct from
// other merge errors.
var ErrMergeConflict = errors.New("iterator: merge conflict")

// Merger is the host's merge primitive.
type Merger interface {
	Merge(ctx context.Context, task models.Task, worktreeID string) error
	RebaseOntoLatestBase(ctx context.Context, task models.Task, worktreeID string) error
}

// EscalationSink receives the reason a task is being escalated.
type EscalationSink interface {
	Escalate(ctx context.Context, task models.Task, run models.TaskRun, reason string) error
}

// IteratorFault is the internal-invariant-violation failure class.
type IteratorFault struct {
	TaskID string
	Reason string
}

func (f *IteratorFault) Error() string {
	return fmt.Sprintf("iterator: internal fault on task %s: %s", f.TaskID, f.Reason)
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// Iterator drives one Task through the state machine.
type Iterator struct {
	Agent       AgentRunner
	ContextProv ContextProvider
	QA          QAPipeline
	Merger      Merger
	Escalation  EscalationSink
	Clock       Clock
}

// Outcome is the terminal result of Run.
type Outcome struct {
	FinalStatus models.Status
	Run         models.TaskRun
	Reason      string
}

// Run drives task through the state machine until a terminal outcome,
// cooperating with the supplied worktree id for merge/checkpoint scoping.
func (it *Iterator) Run(ctx context.Context, task models.Task, worktreeID string) (Outcome, error) {
	run := models.TaskRun{TaskID: task.ID, StartedAt: it.now(), WorktreeID: worktreeID}
	state := StateStarting

	// resumeAfterCoding is the stage to re-enter once Coding completes
	// without a file-hash change: the stage that most recently failed,
	// so earlier stage-green work is not
	// rerun unless the agent touched files outside what already passed.
	resumeAfterCoding := StateBuilding
	for {
		if run.Iteration > HardIterationCap {
			return it.escalate(ctx, task, run, "hard iteration cap breached")
		}
		if run.ElapsedMinutes(it.now()) > WallClockCapMinutes {
			return it.escalate(ctx, task, run, "wall-clock cap breached")
		}

		switch state {
		case StateStarting:
			state = StateCoding

		case StateCoding:
			next, err := it.code(ctx, &run, task, resumeAfterCoding, worktreeID)
			if err != nil {
				var fault *IteratorFault
				if errors.As(err, &fault) {
					run.EndedAt = it.now()
					return Outcome{FinalStatus: models.StatusAbandoned, Run: run, Reason: fault.Error()}, fault
				}
				return it.escalate(ctx, task, run, fmt.Sprintf("agent run failed: %v", err))
			}
			state = next

		case StateBuilding:
			state = it.runStage(ctx, &run, task, models.StageBuild, it.QA.Build, StateLinting, StateFixingBuild)

		case StateFixingBuild:
			run.Iteration++
			resumeAfterCoding = StateBuilding
			state = StateCoding

		case StateLinting:
			state = it.runStage(ctx, &run, task, models.StageLint, it.QA.Lint, StateTesting, StateFixingLint)

		case StateFixingLint:
			run.Iteration++
			resumeAfterCoding = StateLinting
			state = StateCoding

		case StateTesting:
			state = it.runStage(ctx, &run, task, models.StageTest, it.QA.Test, StateReviewing, StateFixingTest)

		case StateFixingTest:
			run.Iteration++
			resumeAfterCoding = StateTesting
			state = StateCoding

		case StateReviewing:
			next, err := it.review(ctx, &run, task)
			if err != nil {
				return it.escalate(ctx, task, run, fmt.Sprintf("review failed: %v", err))
			}
			state = next

		case StateFixingReview:
			run.Iteration++
			resumeAfterCoding = StateReviewing
			state = StateCoding

		case StateMerging:
			if err := it.Merger.Merge(ctx, task, worktreeID); err != nil {
				if errors.Is(err, ErrMergeConflict) {
					if rebaseErr := it.Merger.RebaseOntoLatestBase(ctx, task, worktreeID); rebaseErr == nil {
						if err2 := it.Merger.Merge(ctx, task, worktreeID); err2 == nil {
							state = StateDone
							continue
						}
					}
					return it.escalate(ctx, task, run, "merge conflict persisted after rebase retry")
				}
				return it.escalate(ctx, task, run, fmt.Sprintf("merge failed: %v", err))
			}
			state = StateDone

		case StateDone:
			run.EndedAt = it.now()
			return Outcome{FinalStatus: models.StatusCompleted, Run: run}, nil

		case StateEscalated:
			run.EndedAt = it.now()
			return Outcome{FinalStatus: models.StatusEscalated, Run: run}, nil

		case StateAbandoned:
			run.EndedAt = it.now()
			return Outcome{FinalStatus: models.StatusAbandoned, Run: run}, nil

		default:
			return it.escalate(ctx, task, run, fmt.Sprintf("unknown state %q", state))
		}
	}
}

// code runs one Coding step, resolving any requestedContext re-entrantly
// (same iteration, not a new one). A requestedReplan only sets
// run.RequestedReplan: code returns its next state as usual, Run does not
// stop for it, and no Replanner is signalled; the flag is visible to the
// caller only in the returned Outcome.Run.
func (it *Iterator) code(ctx context.Context, run *models.TaskRun, task models.Task, resumeAt State, worktreeID string) (State, error) {
	agentCtx := AgentContext{
		Task:          task,
		Diagnostics:   lastDiagnostics(*run),
		Tools:         DefaultTools,
		SessionResume: run.SessionResume,
		WorktreeDir:   worktreeID,
	}

	for {
		result, err := it.runAgentWithRetry(ctx, agentCtx)
		if err != nil {
			return "", err
		}
		run.SessionResume = result.SessionResume

		if result.RequestedContext != "" {
			extra, err := it.ContextProv.Provide(ctx, task, result.RequestedContext)
			if err != nil {
				return "", err
			}
			agentCtx.ExtraContext = extra
			continue
		}

		newHash := hashFiles(result.FilesTouched)
		restart := run.FilesHash != "" && newHash != run.FilesHash
		run.FilesHash = newHash
		run.FilesTouched = mergeFiles(run.FilesTouched, result.FilesTouched)

		if result.RequestedReplan {
			run.RequestedReplan = true
		}

		if restart {
			return StateBuilding, nil
		}
		return resumeAt, nil
	}
}

func (it *Iterator) runAgentWithRetry(ctx context.Context, agentCtx AgentContext) (AgentResult, error) {
	var lastErr error
	delay := time.Second
	for attempt := 0; attempt < MaxTransientRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return AgentResult{}, ctx.Err()
			}
			delay *= 2
		}
		result, err := it.Agent.RunAgent(ctx, agentCtx)
		if err == nil {
			return result, nil
		}
		lastErr = err
	}
	return AgentResult{}, fmt.Errorf("iterator: agent run exhausted %d retries: %w", MaxTransientRetries, lastErr)
}

// runStage executes a QA stage callback (a nil callback auto-passes),
// records it, and returns the next state.
func (it *Iterator) runStage(ctx context.Context, run *models.TaskRun, task models.Task, stage models.Stage, fn StageFunc, onPass, onFail State) State {
	var result models.StageResult
	if fn == nil {
		result = models.StageResult{Stage: stage, Passed: true, Summary: "no callback configured; auto-pass"}
	} else {
		stageCtx, cancel := context.WithTimeout(ctx, stageTimeout(stage))
		defer cancel()
		r, err := fn(stageCtx, task, run.FilesTouched)
		if err != nil {
			r = models.StageResult{Stage: stage, Passed: false, Summary: err.Error()}
		}
		result = r
	}
	run.RecordStage(result)
	if result.Passed {
		return onPass
	}
	return onFail
}

func (it *Iterator) review(ctx context.Context, run *models.TaskRun, task models.Task) (State, error) {
	if it.QA.Review == nil {
		run.RecordStage(models.StageResult{Stage: models.StageReview, Passed: true, Summary: "no callback configured; auto-pass"})
		return StateMerging, nil
	}
	reviewCtx, cancel := context.WithTimeout(ctx, ReviewTimeout)
	defer cancel()
	result, verdict, err := it.QA.Review(reviewCtx, task, run.FilesTouched)
	if err != nil {
		return "", err
	}
	run.RecordStage(result)

	switch verdict {
	case VerdictApprove:
		return StateMerging, nil
	case VerdictRequestChanges:
		return StateFixingReview, nil
	case VerdictReject:
		return "", fmt.Errorf("review rejected: %s", result.Summary)
	default:
		return "", fmt.Errorf("unknown review verdict %q", verdict)
	}
}

func (it *Iterator) escalate(ctx context.Context, task models.Task, run models.TaskRun, reason string) (Outcome, error) {
	run.EndedAt = it.now()
	if it.Escalation != nil {
		if err := it.Escalation.Escalate(ctx, task, run, reason); err != nil {
			return Outcome{}, fmt.Errorf("iterator: escalation sink failed: %w", err)
		}
	}
	return Outcome{FinalStatus: models.StatusEscalated, Run: run, Reason: reason}, nil
}

func (it *Iterator) now() time.Time {
	if it.Clock != nil {
		return it.Clock.Now()
	}
	return time.Now()
}

func stageTimeout(stage models.Stage) time.Duration {
	switch stage {
	case models.StageBuild:
		return BuildTimeout
	case models.StageLint:
		return LintTimeout
	case models.StageTest:
		return TestTimeout
	case models.StageReview:
		return ReviewTimeout
	default:
		return BuildTimeout
	}
}

func lastDiagnostics(run models.TaskRun) []models.Diagnostic {
	if len(run.StageHistory) == 0 {
		return nil
	}
	last := run.StageHistory[len(run.StageHistory)-1]
	return last.Diagnostics
}

func hashFiles(files []string) string {
	sorted := append([]string(nil), files...)
	sort.Strings(sorted)
	h := sha256.New()
	for _, f := range sorted {
		h.Write([]byte(f))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func mergeFiles(existing, added []string) []string {
	seen := make(map[string]bool, len(existing))
	out := append([]string(nil), existing...)
	for _, f := range existing {
		seen[f] = true
	}
	for _, f := range added {
		if !seen[f] {
			out = append(out, f)
			seen[f] = true
		}
	}
	return out
}
