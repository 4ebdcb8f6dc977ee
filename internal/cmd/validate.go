package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nexusdev/nexus/internal/planio"
)

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <plan-file>",
		Short: "Decompose and validate a plan file without running it.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := planio.DecomposeFile(args[0])
			if err != nil {
				return fmt.Errorf("cmd: decompose plan %s: %w", args[0], err)
			}
			if err := source.Plan.Validate(); err != nil {
				return fmt.Errorf("cmd: invalid plan %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d tasks, version %d — valid\n", source.Plan.PlanID, len(source.Plan.Tasks), source.Plan.Version)
			return nil
		},
	}
}
