package planio

import "github.com/nexusdev/nexus/internal/models"

// PlanSource is a decomposed plan plus the run-level settings a plan file
// may carry in its frontmatter: a default agent and an escalation channel
// list. The commands that decompose a plan use only Plan; DefaultAgent and
// EscalationChannels are not applied to coordinator or escalation
// configuration.
type PlanSource struct {
	Plan             *models.Plan
	DefaultAgent     string
	EscalationChannels []string
}

// taskFields is the structured metadata block a task section/entry
// carries, shared by both the Markdown and YAML decomposers.
type taskFields struct {
	ID                  string         `yaml:"id"`
	Name                string         `yaml:"name"`
	DependsOn           []string       `yaml:"depends_on"`
	Files               []string       `yaml:"files"`
	EstimateMinutes     int            `yaml:"estimate_minutes"`
	Priority            int            `yaml:"priority"`
	AcceptanceCriterion string         `yaml:"acceptance_criterion"`
	WorktreeGroup       string         `yaml:"worktree_group"`
	Metadata            map[string]any `yaml:"metadata"`
}

func (f taskFields) toTask(description string) models.Task {
	return models.Task{
		ID:                  f.ID,
		Name:                f.Name,
		Description:         description,
		Files:               f.Files,
		AcceptanceCriterion: f.AcceptanceCriterion,
		DependsOn:           f.DependsOn,
		TimeEstimateMinutes: f.EstimateMinutes,
		Priority:            f.Priority,
		Status:              models.StatusPending,
		Metadata:            f.Metadata,
		WorktreeGroup:       f.WorktreeGroup,
	}
}
