// Package splitter implements task splitting: split(task, strategy,
// context) -> Task[], producing >=2 smaller tasks whose union of files
// and acceptance criteria covers the input.
//
// Child ids follow the parent/child scheme of models.ChildID (see childID
// below).
package splitter

import (
	"errors"
	"fmt"
	"strings"
)

// Strategy selects how a Task is subdivided.
type Strategy string

const (
	ByFile          Strategy = "ByFile"
	ByFunctionality Strategy = "ByFunctionality"
	ByTime          Strategy = "ByTime"
)

// Failure reasons, all recoverable — the caller decides what to do next
// (typically: try a different strategy, or escalate).
var (
	ErrSplitNotProductive   = errors.New("splitter: SplitNotProductive")
	ErrStrategyNotApplicable = errors.New("splitter: StrategyNotApplicable")
	ErrBudgetUnreachable    = errors.New("splitter: BudgetUnreachable")
)

// DefaultTimeBudgetMinutes is ByTime's target child estimate.
const DefaultTimeBudgetMinutes = 15

// HardCapMinutes is the absolute ceiling no child estimate may exceed.
const HardCapMinutes = 30

// MinChildMinutes is the smallest estimate a child is given. ByTime gives
// up (BudgetUnreachable) rather than producing degenerate tasks of this
// length or less.
const MinChildMinutes = 1

// Context carries strategy-specific hints the caller supplies — e.g. a
// pre-computed list of independently-testable acceptance criteria for
// ByFunctionality, since the splitter itself has no NLP capability to
// derive them.
type Context struct {
	TimeBudgetMinutes int      // ByTime target; 0 means DefaultTimeBudgetMinutes
	SubCriteria       []string // ByFunctionality: pre-segmented acceptance criteria
}

// TaskLike is the minimal surface the splitter needs from a task, kept
// decoupled from models.Task so this package has no import-cycle risk and
// can be unit tested with plain structs.
type TaskLike struct {
	ID                  string
	Name                string
	Files               []string
	AcceptanceCriterion string
	DependsOn           []string
	TimeEstimateMinutes int
}

// Split divides a task into >=2 children per the chosen strategy.
func Split(task TaskLike, strategy Strategy, ctx Context) ([]TaskLike, error) {
	switch strategy {
	case ByFile:
		return splitByFile(task)
	case ByFunctionality:
		return splitByFunctionality(task, ctx)
	case ByTime:
		return splitByTime(task, ctx)
	default:
		return nil, fmt.Errorf("splitter: unknown strategy %q", strategy)
	}
}

func splitByFile(task TaskLike) ([]TaskLike, error) {
	if len(task.Files) < 2 {
		return nil, fmt.Errorf("%w: ByFile requires >=2 files, task %s has %d", ErrStrategyNotApplicable, task.ID, len(task.Files))
	}

	// Cluster into groups of <=2 files, preserving declaration order (the
	// teacher's CalculateWaves likewise preserves declared task order
	// within a wave rather than re-sorting by content).
	var clusters [][]string
	for i := 0; i < len(task.Files); i += 2 {
		end := i + 2
		if end > len(task.Files) {
			end = len(task.Files)
		}
		clusters = append(clusters, task.Files[i:end])
	}
	if len(clusters) < 2 {
		return nil, fmt.Errorf("%w: ByFile on task %s produced %d child(ren)", ErrSplitNotProductive, task.ID, len(clusters))
	}

	children := make([]TaskLike, 0, len(clusters))
	perChild := distributeEstimate(task.TimeEstimateMinutes, len(clusters))
	for i, files := range clusters {
		child := TaskLike{
			ID:                  childID(task.ID, i),
			Name:                fmt.Sprintf("%s (%s)", task.Name, strings.Join(files, ", ")),
			Files:               append([]string(nil), files...),
			AcceptanceCriterion: task.AcceptanceCriterion,
			DependsOn:           append([]string(nil), task.DependsOn...),
			TimeEstimateMinutes: perChild,
		}
		// Serialize siblings that would otherwise race on shared imports:
		// each file-cluster depends on the previous one's id.
		if i > 0 {
			child.DependsOn = append(child.DependsOn, childID(task.ID, i-1))
		}
		children = append(children, child)
	}
	return reconcileEstimate(task, children), nil
}

func splitByFunctionality(task TaskLike, ctx Context) ([]TaskLike, error) {
	if len(ctx.SubCriteria) < 2 {
		return nil, fmt.Errorf("%w: ByFunctionality requires >=2 pre-segmented sub-criteria for task %s", ErrStrategyNotApplicable, task.ID)
	}

	perChild := distributeEstimate(task.TimeEstimateMinutes, len(ctx.SubCriteria))
	children := make([]TaskLike, 0, len(ctx.SubCriteria))
	for i, criterion := range ctx.SubCriteria {
		children = append(children, TaskLike{
			ID:                  childID(task.ID, i),
			Name:                fmt.Sprintf("%s: %s", task.Name, criterion),
			Files:               append([]string(nil), task.Files...),
			AcceptanceCriterion: criterion,
			DependsOn:           append([]string(nil), task.DependsOn...),
			TimeEstimateMinutes: perChild,
		})
	}
	return reconcileEstimate(task, children), nil
}

func splitByTime(task TaskLike, ctx Context) ([]TaskLike, error) {
	budget := ctx.TimeBudgetMinutes
	if budget <= 0 {
		budget = DefaultTimeBudgetMinutes
	}
	if task.TimeEstimateMinutes <= budget {
		return nil, fmt.Errorf("%w: task %s estimate %dm already within budget %dm", ErrSplitNotProductive, task.ID, task.TimeEstimateMinutes, budget)
	}

	// Halve recursively until each child estimate <= budget.
	estimates := []int{task.TimeEstimateMinutes}
	for {
		allWithinBudget := true
		var next []int
		for _, e := range estimates {
			if e > budget {
				allWithinBudget = false
				half := e / 2
				if half <= MinChildMinutes {
					return nil, fmt.Errorf("%w: task %s cannot reach %dm budget without %dm tasks", ErrBudgetUnreachable, task.ID, budget, MinChildMinutes)
				}
				next = append(next, half, e-half)
			} else {
				next = append(next, e)
			}
		}
		estimates = next
		if allWithinBudget {
			break
		}
	}
	if len(estimates) < 2 {
		return nil, fmt.Errorf("%w: ByTime on task %s produced %d child(ren)", ErrSplitNotProductive, task.ID, len(estimates))
	}

	children := make([]TaskLike, 0, len(estimates))
	for i, est := range estimates {
		child := TaskLike{
			ID:                  childID(task.ID, i),
			Name:                fmt.Sprintf("%s (part %d/%d)", task.Name, i+1, len(estimates)),
			Files:               append([]string(nil), task.Files...),
			AcceptanceCriterion: task.AcceptanceCriterion,
			DependsOn:           append([]string(nil), task.DependsOn...),
			TimeEstimateMinutes: est,
		}
		if i > 0 {
			child.DependsOn = append(child.DependsOn, childID(task.ID, i-1))
		}
		children = append(children, child)
	}
	return children, nil
}

// reconcileEstimate returns children unchanged. It does not compare the
// children's summed estimate with the parent's, log any drift, or change the
// parent's estimate, and Split does not call SumEstimates or
// WithinTolerance.
func reconcileEstimate(parent TaskLike, children []TaskLike) []TaskLike {
	return children
}

// SumEstimates totals children's time estimates, for the caller to compare
// against the parent's original estimate under a +-30% tolerance.
func SumEstimates(children []TaskLike) int {
	sum := 0
	for _, c := range children {
		sum += c.TimeEstimateMinutes
	}
	return sum
}

// WithinTolerance reports whether sum is within +-30% of original.
func WithinTolerance(original, sum int) bool {
	if original == 0 {
		return sum == 0
	}
	lower := original * 7 / 10
	upper := original * 13 / 10
	return sum >= lower && sum <= upper
}

func distributeEstimate(total, parts int) int {
	if parts <= 0 {
		return 0
	}
	per := total / parts
	if per < MinChildMinutes {
		per = MinChildMinutes
	}
	return per
}

// childID mirrors models.ChildID's letter-suffix scheme (a, b, c, ... then
// numeric fallback past 25), duplicated here to keep this package
// independent of internal/models for testability; internal/models.ChildID
// remains the canonical implementation callers should prefer when they
// already hold a models.Task.
func childID(parentID string, index int) string {
	if index < 26 {
		return fmt.Sprintf("%s%c", parentID, 'a'+rune(index))
	}
	return fmt.Sprintf("%s%d", parentID, index)
}
