package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPlansCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plans",
		Short: "Show the effective plan limits",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := openEnv(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer e.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-10s %-14s %-10s %s\n", "PLAN", "MONTHLY", "WATERMARK", "PRIORITY")
			for _, p := range e.plans.Plans() {
				l, err := e.plans.Lookup(p)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%-10s %-14d %-10t %t\n", p, l.MonthlyLimit, l.WatermarkRequired, l.Priority)
			}
			return nil
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Long:  "Bring the configured database schema up to date. The server does the same on startup.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := openEnv(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.store.Ping(cmd.Context()); err != nil {
				return fmt.Errorf("ping store: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Schema is up to date.")
			return nil
		},
	}
}
