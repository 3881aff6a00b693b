package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"scrub/internal/config"
	"scrub/internal/metadata"
	"scrub/internal/store"
)

func newCopyCmd() *cobra.Command {
	var (
		driver string
		dsn    string
	)

	cmd := &cobra.Command{
		Use:   "copy SOURCE TARGET",
		Short: "Snapshot a table into a cleaning copy that carries a row id column",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFromEnv()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			reg, err := store.NewRegistry(store.Config{
				Name:         "source",
				Driver:       driver,
				DSN:          dsn,
				QueryTimeout: cfg.QueryTimeout,
			})
			if err != nil {
				return err
			}
			defer reg.Close() //nolint:errcheck

			src, err := reg.Source("source")
			if err != nil {
				return err
			}

			source, target := args[0], args[1]
			exists, err := metadata.TableExists(cmd.Context(), src, source)
			if err != nil {
				return err
			}
			if !exists {
				return fmt.Errorf("table %q does not exist in the source store", source)
			}

			if err := metadata.CopyTable(cmd.Context(), src, source, target, logger); err != nil {
				return err
			}
			color.Green("Copied %s to %s", source, target)
			return nil
		},
	}

	cmd.Flags().StringVar(&driver, "driver", "sqlite3", "Source store driver (sqlite3 or pgx)")
	cmd.Flags().StringVar(&dsn, "dsn", "", "Source store DSN")
	_ = cmd.MarkFlagRequired("dsn")
	return cmd
}
