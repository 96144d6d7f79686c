// Package cli implements the pdfgatectl command tree.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/kiranshivaraju/pdfgate/internal/config"
	"github.com/kiranshivaraju/pdfgate/internal/plan"
	"github.com/kiranshivaraju/pdfgate/internal/store"
	"github.com/spf13/cobra"
)

// Execute builds the root command and runs it.
func Execute(version string) error {
	return NewRootCmd(version).Execute()
}

// NewRootCmd returns the full command tree.
func NewRootCmd(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pdfgatectl",
		Short: "Administer pdfgate API keys and usage",
		Long: `pdfgatectl manages the key and usage store behind a pdfgate server.

It reads the same DATABASE_URL and PLAN_<NAME>_MONTHLY_LIMIT settings as the
server, from the environment, a .env file, or the file named by PDFGATE_CONFIG.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newKeyCmd())
	cmd.AddCommand(newUsageCmd())
	cmd.AddCommand(newPlansCmd())
	cmd.AddCommand(newMigrateCmd())

	return cmd
}

// env bundles what every subcommand needs from configuration.
type env struct {
	store  store.Store
	plans  *plan.Registry
	logger *slog.Logger
}

func (e *env) Close() error { return e.store.Close() }

func openEnv(ctx context.Context, errOut io.Writer) (*env, error) {
	cfg, err := config.LoadStorage()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	plans, err := plan.NewRegistry(plan.WithOverrides(cfg.MonthlyLimits))
	if err != nil {
		return nil, fmt.Errorf("build plan registry: %w", err)
	}
	st, err := store.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(errOut, &slog.HandlerOptions{Level: slog.LevelWarn}))
	return &env{store: st, plans: plans, logger: logger}, nil
}
