package cli

import (
	"database/sql"
	"fmt"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"scrub/internal/config"
	"scrub/internal/repository"
	"scrub/internal/store"
)

func newViolationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "violations",
		Short: "Inspect and manage stored violations",
	}
	cmd.AddCommand(newViolationsListCmd())
	cmd.AddCommand(newViolationsShowCmd())
	cmd.AddCommand(newViolationsClearCmd())
	return cmd
}

// openMetastore opens the configured metastore with migrations applied.
func openMetastore() (*sql.DB, error) {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, err
	}
	db, err := store.OpenMetastore(cfg.MetaDBPath)
	if err != nil {
		return nil, err
	}
	if err := store.RunMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func newViolationsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Summarize stored violations per rule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := openMetastore()
			if err != nil {
				return err
			}
			defer db.Close() //nolint:errcheck

			counts, err := repository.NewViolationRepo(db).CountByRule(cmd.Context())
			if err != nil {
				return err
			}
			if len(counts) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No violations stored.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RULE\tVIOLATIONS\tCELLS")
			for _, rc := range counts {
				fmt.Fprintf(w, "%s\t%d\t%d\n", rc.RuleID, rc.Violations, rc.Cells)
			}
			return w.Flush()
		},
	}
}

func newViolationsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show RULE",
		Short: "Print every stored violation of one rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openMetastore()
			if err != nil {
				return err
			}
			defer db.Close() //nolint:errcheck

			violations, err := repository.NewViolationRepo(db).ListByRule(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(violations) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No violations stored for rule %s.\n", args[0])
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tCELL\tROW\tVALUE")
			for _, v := range violations {
				for _, cell := range v.Cells {
					fmt.Fprintf(w, "%d\t%s\t%d\t%v\n", v.ID, cell.Column, cell.Tid, cell.Value)
				}
			}
			return w.Flush()
		},
	}
}

func newViolationsClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear RULE",
		Short: "Delete every stored violation of one rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openMetastore()
			if err != nil {
				return err
			}
			defer db.Close() //nolint:errcheck

			if err := repository.NewViolationRepo(db).DeleteByRule(cmd.Context(), args[0]); err != nil {
				return err
			}
			color.Yellow("Cleared violations for rule %s", args[0])
			return nil
		},
	}
}
