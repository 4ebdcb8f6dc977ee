// Package escalation handles tasks a run can't resolve on its own:
// checkpoint + human-readable report + notify/await/resume.
package escalation

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/yuin/goldmark"

	"github.com/nexusdev/nexus/internal/iterator"
	"github.com/nexusdev/nexus/internal/models"
)

// Checkpointer creates the git checkpoint an escalation pins state to.
type Checkpointer interface {
	CreateCheckpoint(ctx context.Context, tag string) (string, error)
}

// Notifier delivers a rendered report to one configured channel (console,
// Slack, email, ...).
type Notifier interface {
	Notify(ctx context.Context, channel string, pkg models.EscalationPackage) error
}

// MaxDiagnosticsInReport bounds "last N diagnostics" in the report.
const MaxDiagnosticsInReport = 10

// Handler implements escalate/awaitDecision/resume and enforces the
// one-open-package-per-task invariant.
type Handler struct {
	Checkpointer Checkpointer
	Notifiers    map[string]Notifier
	Channels     []string

	mu      sync.Mutex
	open    map[string]*models.EscalationPackage // taskID -> open package
	decided map[string]chan models.Decision      // pkgID -> decision channel
	now     func() time.Time
}

// NewHandler constructs a Handler whose clock is time.Now.
func NewHandler(checkpointer Checkpointer, notifiers map[string]Notifier, channels []string) *Handler {
	return &Handler{
		Checkpointer: checkpointer,
		Notifiers:    notifiers,
		Channels:     channels,
		open:         make(map[string]*models.EscalationPackage),
		decided:      make(map[string]chan models.Decision),
		now:          time.Now,
	}
}

// Escalate creates a checkpoint, renders the report, enqueues notifications,
// and returns the EscalationPackage. Escalating an already-escalated task
// merges new context into the existing package rather than opening a
// second one.
func (h *Handler) Escalate(ctx context.Context, task models.Task, run models.TaskRun, reason string) (models.EscalationPackage, error) {
	h.mu.Lock()
	if existing, ok := h.open[task.ID]; ok {
		existing.RunHistory = append(existing.RunHistory, run)
		existing.HumanReport = renderReport(task, existing.RunHistory, reason)
		merged := *existing
		h.mu.Unlock()
		h.notifyAll(ctx, merged)
		return merged, nil
	}
	h.mu.Unlock()

	tag := fmt.Sprintf("nexus/escalate/%s/%d", task.ID, h.now().Unix())
	checkpointID := tag
	if h.Checkpointer != nil {
		id, err := h.Checkpointer.CreateCheckpoint(ctx, tag)
		if err != nil {
			return models.EscalationPackage{}, fmt.Errorf("escalation: checkpoint failed: %w", err)
		}
		checkpointID = id
	}

	pkg := models.EscalationPackage{
		ID:                   uuid.NewString(),
		Task:                 task,
		RunHistory:           []models.TaskRun{run},
		CheckpointID:         checkpointID,
		HumanReport:          renderReport(task, []models.TaskRun{run}, reason),
		NotificationChannels: h.Channels,
	}

	h.mu.Lock()
	h.open[task.ID] = &pkg
	h.decided[pkg.ID] = make(chan models.Decision, 1)
	h.mu.Unlock()

	h.notifyAll(ctx, pkg)
	return pkg, nil
}

// Sink adapts Handler to iterator.EscalationSink, whose single-error
// signature discards the EscalationPackage Escalate otherwise returns —
// callers that want the package itself should call Escalate directly.
type Sink struct {
	Handler *Handler
}

// Escalate implements iterator.EscalationSink.
func (s Sink) Escalate(ctx context.Context, task models.Task, run models.TaskRun, reason string) error {
	_, err := s.Handler.Escalate(ctx, task, run, reason)
	return err
}

var _ iterator.EscalationSink = Sink{}

func (h *Handler) notifyAll(ctx context.Context, pkg models.EscalationPackage) {
	for _, channel := range pkg.NotificationChannels {
		if n, ok := h.Notifiers[channel]; ok {
			_ = n.Notify(ctx, channel, pkg)
		}
	}
}

// AwaitDecision blocks until resume() delivers a decision for pkgID, or ctx
// is cancelled. There is no timeout unless a wall-clock escalation budget
// is configured, which the caller expresses as ctx's deadline.
func (h *Handler) AwaitDecision(ctx context.Context, pkgID string) (models.Decision, error) {
	h.mu.Lock()
	ch, ok := h.decided[pkgID]
	h.mu.Unlock()
	if !ok {
		return models.Decision{}, fmt.Errorf("escalation: no open package %q", pkgID)
	}
	select {
	case d := <-ch:
		return d, nil
	case <-ctx.Done():
		return models.Decision{}, ctx.Err()
	}
}

// TaskIDForPackage returns the task id an open escalation package belongs
// to, so a CLI only needs to prompt for a package id, not both ids.
func (h *Handler) TaskIDForPackage(pkgID string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for taskID, pkg := range h.open {
		if pkg.ID == pkgID {
			return taskID, true
		}
	}
	return "", false
}

// OpenPackages returns every currently open escalation package, for a CLI
// to list what needs a decision.
func (h *Handler) OpenPackages() []models.EscalationPackage {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]models.EscalationPackage, 0, len(h.open))
	for _, pkg := range h.open {
		out = append(out, *pkg)
	}
	return out
}

// Resume applies a human decision to an open package, closing it.
func (h *Handler) Resume(taskID, pkgID string, decision models.Decision) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	pkg, ok := h.open[taskID]
	if !ok || pkg.ID != pkgID {
		return fmt.Errorf("escalation: package %q is not the open package for task %s", pkgID, taskID)
	}
	ch := h.decided[pkgID]
	delete(h.open, taskID)
	delete(h.decided, pkgID)
	ch <- decision
	close(ch)
	return nil
}

// renderReport builds the Markdown report: reason, last N diagnostics,
// suggested next actions, and a log link placeholder.
func renderReport(task models.Task, runs []models.TaskRun, reason string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Escalation: %s\n\n", task.ID)
	fmt.Fprintf(&sb, "**Reason:** %s\n\n", reason)
	fmt.Fprintf(&sb, "**Task:** %s\n\n", task.Name)
	if task.AcceptanceCriterion != "" {
		fmt.Fprintf(&sb, "**Acceptance criterion:** %s\n\n", task.AcceptanceCriterion)
	}

	sb.WriteString("## Recent diagnostics\n\n")
	diags := lastDiagnostics(runs, MaxDiagnosticsInReport)
	if len(diags) == 0 {
		sb.WriteString("_none recorded_\n\n")
	} else {
		for _, d := range diags {
			fmt.Fprintf(&sb, "- `%s` %s:%d %s\n", d.Code, d.File, d.Line, d.Message)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Suggested next actions\n\n")
	sb.WriteString("- Resume: re-enter the iterator with the current worktree state\n")
	sb.WriteString("- Abandon: mark the task abandoned and let dependents react per cascade policy\n")
	sb.WriteString("- Reassign: apply a replan decision chosen by the human\n\n")

	if len(runs) > 0 {
		last := runs[len(runs)-1]
		fmt.Fprintf(&sb, "## Links\n\n- worktree: `%s`\n- iteration: %d\n", last.WorktreeID, last.Iteration)
	}

	return sb.String()
}

func lastDiagnostics(runs []models.TaskRun, n int) []models.Diagnostic {
	var all []models.Diagnostic
	for _, run := range runs {
		for _, stage := range run.StageHistory {
			all = append(all, stage.Diagnostics...)
		}
	}
	if len(all) > n {
		all = all[len(all)-n:]
	}
	return all
}

// RenderHTML converts a Markdown report to HTML via goldmark, for
// notification channels that cannot display raw Markdown (e.g. a web
// dashboard embed).
func RenderHTML(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("escalation: render report to html: %w", err)
	}
	return buf.String(), nil
}
