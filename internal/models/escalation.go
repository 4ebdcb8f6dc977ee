package models

// EscalationPackage is the artifact a human reviews: a report, diagnostics,
// checkpoint id, and suggested actions.
type EscalationPackage struct {
	ID                  string
	Task                Task
	RunHistory          []TaskRun
	CheckpointID        string
	HumanReport         string // rendered Markdown
	NotificationChannels []string
}

// DecisionKind enumerates the ways a human can resolve an escalation.
type DecisionKind string

const (
	DecisionResume   DecisionKind = "Resume"
	DecisionAbandon  DecisionKind = "Abandon"
	DecisionReassign DecisionKind = "Reassign"
)

// Decision carries the human's chosen outcome, plus a replan strategy when
// Kind is DecisionReassign.
type Decision struct {
	Kind             DecisionKind
	ReassignStrategy string
}
