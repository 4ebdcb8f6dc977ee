package models

// Wave is a maximal independent set of Ready tasks the Coordinator schedules
// concurrently. Waves are derived, never persisted, and are recomputed after
// every plan mutation.
type Wave struct {
	Name           string
	TaskIDs        []string
	MaxConcurrency int
}
