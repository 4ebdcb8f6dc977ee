// Package humanchannel implements escalation.Notifier and the interactive
// side of resolving an escalation from a terminal: print the rendered
// report, then read a decision back from the operator.
//
// Colored, width-aware line wrapping, built on golang.org/x/term for the
// terminal width instead of a hand-rolled ioctl/env-var guess.
package humanchannel

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/nexusdev/nexus/internal/models"
)

const defaultWidth = 80

// Console renders escalation reports to an io.Writer, word-wrapped to the
// terminal's width when it can be detected.
type Console struct {
	Out io.Writer
}

// NewConsole creates a Console writing to os.Stdout.
func NewConsole() *Console {
	return &Console{Out: os.Stdout}
}

// Notify implements escalation.Notifier by printing pkg's rendered report,
// boxed and colored, to the console.
func (c *Console) Notify(ctx context.Context, channel string, pkg models.EscalationPackage) error {
	w := width(c.Out)
	bold := color.New(color.FgYellow, color.Bold)

	fmt.Fprintln(c.Out, strings.Repeat("=", w))
	bold.Fprintf(c.Out, "ESCALATION: task %s (checkpoint %s)\n", pkg.Task.ID, pkg.CheckpointID)
	fmt.Fprintln(c.Out, strings.Repeat("=", w))
	for _, line := range strings.Split(pkg.HumanReport, "\n") {
		fmt.Fprintln(c.Out, wrap(line, w))
	}
	fmt.Fprintln(c.Out, strings.Repeat("-", w))
	fmt.Fprintf(c.Out, "Resolve by typing: resolve %s <resume|abandon|reassign> [strategy]\n", pkg.ID)
	return nil
}

func width(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok {
		return defaultWidth
	}
	if ww, _, err := term.GetSize(int(f.Fd())); err == nil && ww > 0 {
		return ww
	}
	return defaultWidth
}

// wrap performs simple greedy word-wrapping of line to at most width columns.
func wrap(line string, width int) string {
	if width <= 0 || len(line) <= width {
		return line
	}
	words := strings.Fields(line)
	if len(words) == 0 {
		return line
	}
	var b strings.Builder
	col := 0
	for i, word := range words {
		if col > 0 && col+1+len(word) > width {
			b.WriteByte('\n')
			col = 0
		} else if i > 0 {
			b.WriteByte(' ')
			col++
		}
		b.WriteString(word)
		col += len(word)
	}
	return b.String()
}

// Prompt reads one decision from in, used by an interactive CLI resolve
// command to turn operator input into a models.Decision.
type Prompt struct {
	In  io.Reader
	Out io.Writer
}

// NewPrompt creates a Prompt reading from os.Stdin and writing to os.Stdout.
func NewPrompt() *Prompt {
	return &Prompt{In: os.Stdin, Out: os.Stdout}
}

// Ask prompts the operator for a decision kind and, for Reassign, a
// strategy, returning the assembled models.Decision.
func (p *Prompt) Ask(pkg models.EscalationPackage) (models.Decision, error) {
	scanner := bufio.NewScanner(p.In)
	fmt.Fprintf(p.Out, "Decision for %s [resume/abandon/reassign]: ", pkg.Task.ID)
	if !scanner.Scan() {
		return models.Decision{}, fmt.Errorf("humanchannel: no input for decision on %s", pkg.ID)
	}
	kind := strings.ToLower(strings.TrimSpace(scanner.Text()))

	switch kind {
	case "resume":
		return models.Decision{Kind: models.DecisionResume}, nil
	case "abandon":
		return models.Decision{Kind: models.DecisionAbandon}, nil
	case "reassign":
		fmt.Fprint(p.Out, "Replan strategy [ByFile/ByFunctionality/ByTime]: ")
		if !scanner.Scan() {
			return models.Decision{}, fmt.Errorf("humanchannel: no strategy for reassign on %s", pkg.ID)
		}
		return models.Decision{Kind: models.DecisionReassign, ReassignStrategy: strings.TrimSpace(scanner.Text())}, nil
	default:
		return models.Decision{}, fmt.Errorf("humanchannel: unrecognized decision %q", kind)
	}
}
