package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nexusdev/nexus/internal/eventlog"
	"github.com/nexusdev/nexus/internal/models"
	"github.com/nexusdev/nexus/internal/planio"
)

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <plan-file>",
		Short: "Run a plan to completion, dispatching coding agents wave by wave.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(cmd.Context(), args[0])
		},
	}
	return cmd
}

func runPlan(ctx context.Context, planPath string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := buildStack(flagRepo, flagConfig, os.Stdout)
	if err != nil {
		return err
	}
	defer st.Close()

	source, err := planio.DecomposeFile(planPath)
	if err != nil {
		return fmt.Errorf("cmd: decompose plan %s: %w", planPath, err)
	}
	if err := source.Plan.Validate(); err != nil {
		return fmt.Errorf("cmd: invalid plan %s: %w", planPath, err)
	}

	st.logger.Infof("plan %s: %d tasks", source.Plan.PlanID, len(source.Plan.Tasks))

	st.scheduler.Start()
	defer st.scheduler.Stop()

	if st.telemetrySrv != nil {
		go func() {
			if err := st.telemetrySrv.Run(ctx); err != nil {
				st.logger.Warnf("telemetry server: %v", err)
			}
		}()
	}

	go resolveLoop(ctx, st, os.Stdin, os.Stdout)

	result, err := st.coordinator.Run(ctx, source.Plan)
	if err != nil {
		return fmt.Errorf("cmd: run plan: %w", err)
	}

	completedEvt := eventlog.Event{Kind: eventlog.PlanCompleted, Message: fmt.Sprintf("%d/%d completed", result.Completed, result.TotalTasks)}
	st.logger.Emit(completedEvt)
	if err := st.bus.Publish(completedEvt); err != nil {
		st.logger.Warnf("publish plan-completed event: %v", err)
	}
	printSummary(os.Stdout, result)
	if !result.Success {
		return fmt.Errorf("cmd: run finished with %d of %d tasks completed", result.Completed, result.TotalTasks)
	}
	return nil
}

// resolveLoop reads "resolve <pkgID> <resume|abandon|reassign> [strategy]"
// lines from in for as long as ctx is alive, the interactive counterpart
// to humanchannel.Console's printed hint: escalation state lives only in
// this process, so a decision has to be typed into the same terminal
// rather than issued as a separate CLI invocation.
func resolveLoop(ctx context.Context, st *stack, in *os.File, out *os.File) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := handleResolveLine(st, line); err != nil {
			fmt.Fprintln(out, err)
		}
	}
}

func handleResolveLine(st *stack, line string) error {
	fields := strings.Fields(line)
	if len(fields) < 3 || fields[0] != "resolve" {
		return fmt.Errorf("cmd: expected \"resolve <pkgID> <resume|abandon|reassign> [strategy]\", got %q", line)
	}
	pkgID, kind := fields[1], strings.ToLower(fields[2])

	taskID, ok := st.escalation.TaskIDForPackage(pkgID)
	if !ok {
		return fmt.Errorf("cmd: no open escalation package %s", pkgID)
	}

	var decision models.Decision
	switch kind {
	case "resume":
		decision = models.Decision{Kind: models.DecisionResume}
	case "abandon":
		decision = models.Decision{Kind: models.DecisionAbandon}
	case "reassign":
		if len(fields) < 4 {
			return fmt.Errorf("cmd: reassign requires a strategy")
		}
		decision = models.Decision{Kind: models.DecisionReassign, ReassignStrategy: fields[3]}
	default:
		return fmt.Errorf("cmd: unrecognized decision %q", kind)
	}

	return st.escalation.Resume(taskID, pkgID, decision)
}

func printSummary(out *os.File, result *models.ExecutionResult) {
	fmt.Fprintf(out, "\n%d/%d tasks completed (%d abandoned, %d escalated) in %s\n",
		result.Completed, result.TotalTasks, result.Abandoned, result.Escalated, result.Duration.Round(1e6))
}
