package planio

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/nexusdev/nexus/internal/models"
)

// YAMLDecomposer reads a plan expressed directly as YAML:
//
//	plan_id: demo
//	default_agent: claude
//	escalation_channels: [console]
//	tasks:
//	  - id: T1
//	    name: Add health check
//	    estimate_minutes: 10
//	    files: [cmd/health.go]
type YAMLDecomposer struct{}

func NewYAMLDecomposer() *YAMLDecomposer { return &YAMLDecomposer{} }

type yamlPlan struct {
	PlanID             string       `yaml:"plan_id"`
	DefaultAgent       string       `yaml:"default_agent"`
	EscalationChannels []string     `yaml:"escalation_channels"`
	Tasks              []yamlTask   `yaml:"tasks"`
}

type yamlTask struct {
	taskFields  `yaml:",inline"`
	Description string `yaml:"description"`
}

func (d *YAMLDecomposer) Decompose(r io.Reader) (*PlanSource, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("planio: read yaml plan: %w", err)
	}

	var wire yamlPlan
	if err := yaml.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("planio: unmarshal yaml plan: %w", err)
	}
	if wire.PlanID == "" {
		return nil, fmt.Errorf("planio: yaml plan is missing plan_id")
	}

	tasks := make([]models.Task, 0, len(wire.Tasks))
	for _, t := range wire.Tasks {
		if t.ID == "" {
			return nil, fmt.Errorf("planio: yaml plan %s has a task with no id", wire.PlanID)
		}
		tasks = append(tasks, t.taskFields.toTask(t.Description))
	}

	return &PlanSource{
		Plan:               &models.Plan{PlanID: wire.PlanID, Version: 1, Tasks: tasks},
		DefaultAgent:       wire.DefaultAgent,
		EscalationChannels: wire.EscalationChannels,
	}, nil
}
