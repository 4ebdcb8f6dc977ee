package models

import "time"

// Stage identifies one of the QA pipeline stages an iteration passes
// through.
type Stage string

const (
	StageBuild  Stage = "Build"
	StageLint   Stage = "Lint"
	StageTest   Stage = "Test"
	StageReview Stage = "Review"
)

// StageResult is the outcome of one stage during one iteration.
// Diagnostics carry file+line when available.
type StageResult struct {
	Stage       Stage
	Passed      bool
	Summary     string
	Diagnostics []Diagnostic
	DurationMs  int64
}

// Diagnostic is a single structured finding from a stage callback.
type Diagnostic struct {
	File    string
	Line    int
	Message string
	Code    string
}

// Fingerprint is the "same diagnostic" key: (stage, errorCode,
// normalizedMessage, file?).
func (d Diagnostic) Fingerprint(stage Stage) string {
	return string(stage) + "|" + d.Code + "|" + normalizeMessage(d.Message) + "|" + d.File
}

func normalizeMessage(msg string) string {
	// Collapse runs of spaces, tabs and newlines into one space so repeated
	// failures that differ only in whitespace fingerprint identically; line
	// numbers, hex addresses and other text are kept as they are.
	out := make([]rune, 0, len(msg))
	lastSpace := false
	for _, r := range msg {
		if r == ' ' || r == '\t' || r == '\n' {
			if !lastSpace {
				out = append(out, ' ')
			}
			lastSpace = true
			continue
		}
		lastSpace = false
		out = append(out, r)
	}
	return string(out)
}

// TaskRun is one attempt by the Iterator at a Task.
type TaskRun struct {
	TaskID        string
	Iteration     int
	StartedAt     time.Time
	EndedAt       time.Time
	WorktreeID    string
	StageHistory  []StageResult
	ErrorHistory  []string
	FilesTouched  []string
	FilesHash     string // hash of the declared file set after the last Coding step
	SessionResume string // AgentRunner session id, for resuming context

	// consecutiveStageFailures tracks, per stage, how many times in a row
	// the same stage has failed — feeds IterationExceeded's escalate-vs-
	// re-estimate decision.
	ConsecutiveStageFailures map[Stage]int

	// FingerprintCounts tracks repeated diagnostic fingerprints across the
	// whole run, feeding RepeatedFailure.
	FingerprintCounts map[string]int

	RerouteCount int // number of Reroute decisions already applied to this task

	// RequestedReplan and ReviewScopeTooLarge carry the agent/review signals
	// consumed by the UnexpectedComplexity evaluator.
	RequestedReplan    bool
	ReviewScopeTooLarge bool
}

// ElapsedMinutes is the wall-clock time spent on this run so far.
func (r *TaskRun) ElapsedMinutes(now time.Time) float64 {
	end := r.EndedAt
	if end.IsZero() {
		end = now
	}
	return end.Sub(r.StartedAt).Minutes()
}

// RecordStage appends a stage result and updates the derived counters used
// by the trigger evaluators.
func (r *TaskRun) RecordStage(result StageResult) {
	if r.ConsecutiveStageFailures == nil {
		r.ConsecutiveStageFailures = make(map[Stage]int)
	}
	if r.FingerprintCounts == nil {
		r.FingerprintCounts = make(map[string]int)
	}

	r.StageHistory = append(r.StageHistory, result)

	if result.Passed {
		r.ConsecutiveStageFailures[result.Stage] = 0
		return
	}

	r.ConsecutiveStageFailures[result.Stage]++
	for _, d := range result.Diagnostics {
		fp := d.Fingerprint(result.Stage)
		r.FingerprintCounts[fp]++
	}
}

// MostRepeatedFingerprint returns the diagnostic fingerprint with the
// highest recurrence count and that count, or ("", 0) if none recorded.
func (r *TaskRun) MostRepeatedFingerprint() (string, int) {
	var bestFP string
	best := 0
	for fp, n := range r.FingerprintCounts {
		if n > best {
			best = n
			bestFP = fp
		}
	}
	return bestFP, best
}
