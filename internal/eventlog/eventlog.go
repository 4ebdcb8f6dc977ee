// Package eventlog logs Nexus's run-time events to a writer with
// timestamps, level filtering, and color.
package eventlog

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/mattn/go-runewidth"
)

// Kind identifies the category of event the Coordinator/Iterator/Replanner
// emit over the course of a run.
type Kind string

const (
	TaskStarted       Kind = "task_started"
	StageEntered      Kind = "stage_entered"
	StageCompleted    Kind = "stage_completed"
	IterationAdvanced Kind = "iteration_advanced"
	ReplanApplied     Kind = "replan_applied"
	Escalated         Kind = "escalated"
	Resumed           Kind = "resumed"
	TaskCompleted     Kind = "task_completed"
	TaskAbandoned     Kind = "task_abandoned"
	WaveCheckpointed  Kind = "wave_checkpointed"
	PlanCompleted     Kind = "plan_completed"
)

// Event is a single observable occurrence in a Nexus run.
type Event struct {
	Kind      Kind
	TaskID    string
	Stage     string
	Iteration int
	Wave      string
	Message   string
	At        time.Time
}

const (
	levelTrace int = 0
	levelDebug int = 1
	levelInfo  int = 2
	levelWarn  int = 3
	levelError int = 4
)

// Logger writes Nexus events and ad-hoc log lines to an io.Writer.
// Color output is enabled automatically when the writer is a TTY.
type Logger struct {
	writer      io.Writer
	level       string
	mutex       sync.Mutex
	colorOutput bool
}

// New creates a Logger writing to w, filtering below level (trace,
// debug, info, warn, error — invalid or empty defaults to info).
func New(w io.Writer, level string) *Logger {
	return &Logger{
		writer:      w,
		level:       normalizeLevel(level),
		colorOutput: isTerminal(w),
	}
}

func isTerminal(w io.Writer) bool {
	if w == os.Stdout {
		return isatty.IsTerminal(os.Stdout.Fd())
	}
	if w == os.Stderr {
		return isatty.IsTerminal(os.Stderr.Fd())
	}
	return false
}

func normalizeLevel(level string) string {
	l := strings.ToLower(strings.TrimSpace(level))
	switch l {
	case "trace", "debug", "info", "warn", "error":
		return l
	default:
		return "info"
	}
}

func levelToInt(level string) int {
	switch level {
	case "trace":
		return levelTrace
	case "debug":
		return levelDebug
	case "info":
		return levelInfo
	case "warn":
		return levelWarn
	case "error":
		return levelError
	default:
		return levelInfo
	}
}

func (l *Logger) shouldLog(level string) bool {
	return levelToInt(level) >= levelToInt(l.level)
}

func timestamp() string {
	return time.Now().Format("15:04:05")
}

func (l *Logger) Tracef(format string, args ...interface{}) { l.logf("TRACE", format, args...) }
func (l *Logger) Debugf(format string, args ...interface{}) { l.logf("DEBUG", format, args...) }
func (l *Logger) Infof(format string, args ...interface{})  { l.logf("INFO", format, args...) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.logf("WARN", format, args...) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.logf("ERROR", format, args...) }

func (l *Logger) logf(level, format string, args ...interface{}) {
	if l.writer == nil || !l.shouldLog(strings.ToLower(level)) {
		return
	}
	l.mutex.Lock()
	defer l.mutex.Unlock()

	msg := fmt.Sprintf(format, args...)
	ts := timestamp()
	if l.colorOutput {
		fmt.Fprintf(l.writer, "[%s] [%s] %s\n", ts, colorizeLevel(level), msg)
		return
	}
	fmt.Fprintf(l.writer, "[%s] [%s] %s\n", ts, level, msg)
}

func colorizeLevel(level string) string {
	switch level {
	case "TRACE":
		return color.New(color.FgHiBlack).Sprint(level)
	case "DEBUG":
		return color.New(color.FgCyan).Sprint(level)
	case "INFO":
		return color.New(color.FgBlue).Sprint(level)
	case "WARN":
		return color.New(color.FgYellow).Sprint(level)
	case "ERROR":
		return color.New(color.FgRed).Sprint(level)
	default:
		return level
	}
}

// Emit renders a typed Event at the level appropriate to its kind:
// escalations and abandonments at WARN, stage transitions and iteration
// advances at DEBUG, everything else at INFO.
func (l *Logger) Emit(evt Event) {
	if l.writer == nil {
		return
	}
	switch evt.Kind {
	case StageEntered, StageCompleted, IterationAdvanced:
		l.emitAt("debug", evt)
	case Escalated, TaskAbandoned:
		l.emitAt("warn", evt)
	default:
		l.emitAt("info", evt)
	}
}

func (l *Logger) emitAt(level string, evt Event) {
	if !l.shouldLog(level) {
		return
	}
	l.mutex.Lock()
	defer l.mutex.Unlock()

	ts := timestamp()
	line := renderEvent(evt)
	if l.colorOutput {
		line = colorizeEvent(evt, line)
	}
	fmt.Fprintf(l.writer, "[%s] %s\n", ts, line)
}

func renderEvent(evt Event) string {
	switch evt.Kind {
	case TaskStarted:
		return fmt.Sprintf("%s started", truncate(evt.TaskID, 40))
	case StageEntered:
		return fmt.Sprintf("%s entering %s (iteration %d)", truncate(evt.TaskID, 40), evt.Stage, evt.Iteration)
	case StageCompleted:
		return fmt.Sprintf("%s completed %s", truncate(evt.TaskID, 40), evt.Stage)
	case IterationAdvanced:
		return fmt.Sprintf("%s iteration %d", truncate(evt.TaskID, 40), evt.Iteration)
	case ReplanApplied:
		return fmt.Sprintf("%s replanned: %s", truncate(evt.TaskID, 40), evt.Message)
	case Escalated:
		return fmt.Sprintf("%s escalated: %s", truncate(evt.TaskID, 40), evt.Message)
	case Resumed:
		return fmt.Sprintf("%s resumed: %s", truncate(evt.TaskID, 40), evt.Message)
	case TaskCompleted:
		return fmt.Sprintf("%s completed", truncate(evt.TaskID, 40))
	case TaskAbandoned:
		return fmt.Sprintf("%s abandoned: %s", truncate(evt.TaskID, 40), evt.Message)
	case WaveCheckpointed:
		return fmt.Sprintf("checkpointed %s", evt.Wave)
	case PlanCompleted:
		return fmt.Sprintf("plan complete: %s", evt.Message)
	default:
		return evt.Message
	}
}

func colorizeEvent(evt Event, line string) string {
	switch evt.Kind {
	case TaskCompleted, PlanCompleted:
		return color.New(color.FgGreen).Sprint(line)
	case Escalated, TaskAbandoned:
		return color.New(color.FgRed).Sprint(line)
	case ReplanApplied, Resumed:
		return color.New(color.FgYellow).Sprint(line)
	default:
		return line
	}
}

// truncate bounds a string to maxWidth visible columns, accounting for
// wide runes.
func truncate(s string, maxWidth int) string {
	if runewidth.StringWidth(s) <= maxWidth {
		return s
	}
	return runewidth.Truncate(s, maxWidth-1, "…")
}
