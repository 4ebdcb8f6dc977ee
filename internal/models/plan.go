package models

import "fmt"

// Plan is an ordered set of Tasks plus a dependency graph. Its identity is
// PlanID; mutation happens only by publishing a new *Plan value under the
// same PlanID (via the Replanner or the Splitter).
type Plan struct {
	PlanID  string
	Version int
	Tasks   []Task
}

// TaskByID returns the task with the given id and whether it was found.
func (p *Plan) TaskByID(id string) (Task, bool) {
	for _, t := range p.Tasks {
		if t.ID == id {
			return t, true
		}
	}
	return Task{}, false
}

// WithTasks returns a new Plan version (Version+1) with Tasks replaced.
// The receiver is never mutated, so callers can keep a reference to the
// prior version.
func (p *Plan) WithTasks(tasks []Task) *Plan {
	return &Plan{
		PlanID:  p.PlanID,
		Version: p.Version + 1,
		Tasks:   tasks,
	}
}

// Validate checks the Plan-level invariants: the dependency graph is a
// DAG, every dependsOn id exists, and every task individually validates
// (including the 30-minute estimate cap).
func (p *Plan) Validate() error {
	seen := make(map[string]bool, len(p.Tasks))
	for _, t := range p.Tasks {
		if seen[t.ID] {
			return fmt.Errorf("plan %s: duplicate task id %q", p.PlanID, t.ID)
		}
		seen[t.ID] = true
		if err := t.Validate(); err != nil {
			return err
		}
	}
	for _, t := range p.Tasks {
		for _, dep := range t.DependsOn {
			if !seen[dep] {
				return fmt.Errorf("plan %s: task %s depends on non-existent task %q", p.PlanID, t.ID, dep)
			}
		}
	}
	if hasCycle(p.Tasks) {
		return fmt.Errorf("plan %s: dependency graph contains a cycle", p.PlanID)
	}
	return nil
}

// hasCycle runs a DFS with white/gray/black coloring over the dependency
// graph.
func hasCycle(tasks []Task) bool {
	const (
		white = 0
		gray  = 1
		black = 2
	)

	adj := make(map[string][]string, len(tasks))
	ids := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		ids[t.ID] = true
	}
	for _, t := range tasks {
		for _, dep := range t.DependsOn {
			if dep == t.ID {
				return true
			}
			if ids[dep] {
				adj[dep] = append(adj[dep], t.ID)
			}
		}
	}

	colors := make(map[string]int, len(tasks))
	var dfs func(string) bool
	dfs = func(node string) bool {
		colors[node] = gray
		for _, next := range adj[node] {
			if colors[next] == gray {
				return true
			}
			if colors[next] == white && dfs(next) {
				return true
			}
		}
		colors[node] = black
		return false
	}

	for _, t := range tasks {
		if colors[t.ID] == white {
			if dfs(t.ID) {
				return true
			}
		}
	}
	return false
}

// NonTerminalCount returns the number of tasks not yet in a terminal
// status, used by the Coordinator to decide when a plan run is finished.
func (p *Plan) NonTerminalCount() int {
	n := 0
	for _, t := range p.Tasks {
		if !t.Status.IsTerminal() {
			n++
		}
	}
	return n
}

// Outcome summarizes whether a fully-settled plan succeeded: success iff
// no task is Abandoned and every task is Completed.
func (p *Plan) Outcome() (success bool, abandoned []string) {
	allCompleted := true
	for _, t := range p.Tasks {
		if t.Status == StatusAbandoned {
			abandoned = append(abandoned, t.ID)
		}
		if t.Status != StatusCompleted {
			allCompleted = false
		}
	}
	return len(abandoned) == 0 && allCompleted, abandoned
}
