package models

import "time"

// Checkpoint is a serializable snapshot of plan + task statuses + git refs,
// taken at wave boundaries and on escalation.
type Checkpoint struct {
	ID             string
	CreatedAt      time.Time
	PlanSnapshot   *Plan
	TaskStatuses   map[string]Status
	GitRefs        []string
	IteratorCursor string // opaque resume marker for an in-flight TaskRun, if any
}

// Equal reports whether two checkpoints hold equivalent plan and status
// state: serializing and deserializing a Checkpoint should yield an equal
// plan and equal task-status map.
func (c *Checkpoint) Equal(other *Checkpoint) bool {
	if c == nil || other == nil {
		return c == other
	}
	if c.PlanSnapshot == nil || other.PlanSnapshot == nil {
		if c.PlanSnapshot != other.PlanSnapshot {
			return false
		}
	} else {
		if c.PlanSnapshot.PlanID != other.PlanSnapshot.PlanID {
			return false
		}
		if len(c.PlanSnapshot.Tasks) != len(other.PlanSnapshot.Tasks) {
			return false
		}
		for i, t := range c.PlanSnapshot.Tasks {
			if t.ID != other.PlanSnapshot.Tasks[i].ID {
				return false
			}
		}
	}
	if len(c.TaskStatuses) != len(other.TaskStatuses) {
		return false
	}
	for id, status := range c.TaskStatuses {
		if other.TaskStatuses[id] != status {
			return false
		}
	}
	return true
}
