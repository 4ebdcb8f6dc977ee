// Package qarunner turns a configured shell command into an
// iterator.StageFunc, running it inside a task's worktree and translating
// its exit status into a models.StageResult.
package qarunner

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/nexusdev/nexus/internal/models"
)

// CommandStage builds a StageFunc that runs command (split on whitespace,
// no shell interpolation) with cwd set to dirFor(task)'s result. The
// Iterator's StageFunc signature carries no worktree path, so the caller
// supplies a callback that derives one deterministically from the task
// (e.g. hostgit.Host.WorktreeDir, keyed by task id).
func CommandStage(stage models.Stage, command string, dirFor func(task models.Task) string) func(ctx context.Context, task models.Task, filesTouched []string) (models.StageResult, error) {
	fields := strings.Fields(command)
	return func(ctx context.Context, task models.Task, filesTouched []string) (models.StageResult, error) {
		if len(fields) == 0 {
			return models.StageResult{Stage: stage, Passed: true, Summary: "no command configured; auto-pass"}, nil
		}
		dir := dirFor(task)
		start := time.Now()

		cmd := exec.CommandContext(ctx, fields[0], fields[1:]...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		elapsed := time.Since(start)

		if err != nil {
			return models.StageResult{
				Stage:       stage,
				Passed:      false,
				Summary:     fmt.Sprintf("%s: %v", command, err),
				Diagnostics: parseDiagnostics(stage, string(out)),
				DurationMs:  elapsed.Milliseconds(),
			}, nil
		}
		return models.StageResult{
			Stage:      stage,
			Passed:     true,
			Summary:    fmt.Sprintf("%s passed", command),
			DurationMs: elapsed.Milliseconds(),
		}, nil
	}
}

// parseDiagnostics extracts "file:line: message" findings, the shape both
// go build and go vet emit, from a failed command's combined output.
func parseDiagnostics(stage models.Stage, output string) []models.Diagnostic {
	var diags []models.Diagnostic
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, ":", 3)
		if len(parts) < 3 {
			diags = append(diags, models.Diagnostic{Message: line, Code: string(stage)})
			continue
		}
		file := parts[0]
		var lineNo int
		fmt.Sscanf(parts[1], "%d", &lineNo)
		diags = append(diags, models.Diagnostic{
			File:    file,
			Line:    lineNo,
			Message: strings.TrimSpace(parts[2]),
			Code:    string(stage),
		})
	}
	return diags
}
