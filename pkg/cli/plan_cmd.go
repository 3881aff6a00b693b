package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"scrub/internal/config"
)

func newPlanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Work with plan files",
	}
	cmd.AddCommand(newPlanValidateCmd())
	return cmd
}

func newPlanValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE",
		Short: "Check that a plan file is well-formed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, err := config.LoadPlanFile(args[0])
			if err != nil {
				return err
			}
			color.Green("Plan %q is valid", plan.Name)
			fmt.Fprintf(cmd.OutOrStdout(), "source store: %s\nstores: %d\nrules: %d\n",
				plan.SourceStore, len(plan.Stores), len(plan.Rules))
			return nil
		},
	}
}
