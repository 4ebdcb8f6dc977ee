package models

// SignalKind enumerates why a ReplanTriggerEvaluator fired.
type SignalKind string

const (
	SignalTimeExceeded        SignalKind = "TimeExceeded"
	SignalIterationExceeded   SignalKind = "IterationExceeded"
	SignalScopeCreep          SignalKind = "ScopeCreep"
	SignalRepeatedFailure     SignalKind = "RepeatedFailure"
	SignalUnexpectedComplexity SignalKind = "UnexpectedComplexity"
)

// Action enumerates the corrective actions a ReplanDecision can choose.
type Action string

const (
	ActionSplit     Action = "Split"
	ActionReEstimate Action = "ReEstimate"
	ActionReroute   Action = "Reroute"
	ActionEscalate  Action = "Escalate"
)

// ReplanSignal is an observation that some threshold was crossed, created
// by a TriggerEvaluator and consumed by the Replanner.
type ReplanSignal struct {
	Kind            SignalKind
	TaskID          string
	ObservedMetric  float64
	Threshold       float64
	SuggestedAction Action
}

// MutationKind enumerates the structural plan edits a ReplanDecision can
// carry.
type MutationKind string

const (
	MutationAddTasks        MutationKind = "AddTasks"
	MutationRemoveTask      MutationKind = "RemoveTask"
	MutationChangeDependsOn MutationKind = "ChangeDependsOn"
	MutationChangeEstimate  MutationKind = "ChangeEstimate"
)

// Mutation is a single structural edit to a Plan.
type Mutation struct {
	Kind          MutationKind
	TaskID        string   // the task being removed/re-estimated/re-wired
	AddedTasks    []Task   // for MutationAddTasks
	NewDependsOn  []string // for MutationChangeDependsOn
	NewEstimate   int      // for MutationChangeEstimate
}

// ReplanDecision is the chosen corrective action and the mutations it
// implies, produced by the DynamicReplanner and applied atomically by the
// Coordinator.
type ReplanDecision struct {
	TaskID    string
	Action    Action
	Rationale string
	Signals   []ReplanSignal
	Mutations []Mutation
}
