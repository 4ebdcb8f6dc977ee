package humanchannel

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/nexusdev/nexus/internal/models"
)

func TestConsoleNotifyIncludesReportAndResolveHint(t *testing.T) {
	var buf bytes.Buffer
	c := &Console{Out: &buf}

	pkg := models.EscalationPackage{
		ID:           "pkg-1",
		Task:         models.Task{ID: "F001-A"},
		CheckpointID: "nexus/escalate/F001-A",
		HumanReport:  "# Escalation: F001-A\n\nreason: hard cap",
	}
	if err := c.Notify(context.Background(), "console", pkg); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "F001-A") {
		t.Fatalf("output missing task id: %s", out)
	}
	if !strings.Contains(out, "resolve pkg-1") {
		t.Fatalf("output missing resolve hint: %s", out)
	}
}

func TestWrapSplitsLongLines(t *testing.T) {
	line := strings.Repeat("word ", 30)
	wrapped := wrap(line, 20)
	for _, l := range strings.Split(wrapped, "\n") {
		if len(l) > 20 {
			t.Fatalf("line exceeds width: %q", l)
		}
	}
}

func TestPromptAskResume(t *testing.T) {
	in := strings.NewReader("resume\n")
	var out bytes.Buffer
	p := &Prompt{In: in, Out: &out}

	d, err := p.Ask(models.EscalationPackage{ID: "pkg-1", Task: models.Task{ID: "F001-A"}})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if d.Kind != models.DecisionResume {
		t.Fatalf("Kind = %v, want DecisionResume", d.Kind)
	}
}

func TestPromptAskReassignReadsStrategy(t *testing.T) {
	in := strings.NewReader("reassign\nByFile\n")
	var out bytes.Buffer
	p := &Prompt{In: in, Out: &out}

	d, err := p.Ask(models.EscalationPackage{ID: "pkg-1", Task: models.Task{ID: "F001-A"}})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if d.Kind != models.DecisionReassign || d.ReassignStrategy != "ByFile" {
		t.Fatalf("unexpected decision: %+v", d)
	}
}

func TestPromptAskUnrecognized(t *testing.T) {
	in := strings.NewReader("yolo\n")
	var out bytes.Buffer
	p := &Prompt{In: in, Out: &out}

	if _, err := p.Ask(models.EscalationPackage{ID: "pkg-1"}); err == nil {
		t.Fatal("expected error for unrecognized decision kind")
	}
}
