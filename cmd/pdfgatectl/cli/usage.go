package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/kiranshivaraju/pdfgate/internal/auth"
	"github.com/kiranshivaraju/pdfgate/internal/quota"
	"github.com/kiranshivaraju/pdfgate/internal/store"
	"github.com/kiranshivaraju/pdfgate/pkg/models"
	"github.com/spf13/cobra"
)

func newUsageCmd() *cobra.Command {
	var (
		rawKey string
		ip     string
		month  string
	)

	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Show metered usage for a key or client IP",
		Example: `  pdfgatectl usage --key epf_...
  pdfgatectl usage --ip 203.0.113.9 --month 2026-09`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (rawKey == "") == (ip == "") {
				return errors.New("exactly one of --key or --ip is required")
			}
			if month == "" {
				month = quota.MonthKey(time.Now())
			} else if _, err := time.Parse("2006-01", month); err != nil {
				return fmt.Errorf("--month must be YYYY-MM, got %q", month)
			}

			e, err := openEnv(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer e.Close()

			p := models.Principal{Kind: models.PrincipalAnonymous, Identity: ip, Plan: models.PlanFree}
			label := "ip " + ip
			if rawKey != "" {
				hash := auth.HashKey(rawKey)
				key, err := e.store.GetActiveAPIKeyByHash(cmd.Context(), hash)
				if errors.Is(err, store.ErrNotFound) {
					return errors.New("no active API key matches --key")
				}
				if err != nil {
					return err
				}
				p = models.Principal{Kind: models.PrincipalKeyed, Identity: hash, Plan: key.Plan, KeyPrefix: key.KeyPrefix}
				label = "key " + key.KeyPrefix
			}

			limits, err := e.plans.Lookup(p.Plan)
			if err != nil {
				return err
			}
			used, err := e.store.CountUsage(cmd.Context(), p, month)
			if err != nil {
				return fmt.Errorf("count usage: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s) in %s: %d of %d requests used\n", label, p.Plan, month, used, limits.MonthlyLimit)
			return nil
		},
	}

	cmd.Flags().StringVar(&rawKey, "key", "", "Raw API key")
	cmd.Flags().StringVar(&ip, "ip", "", "Client IP of anonymous callers")
	cmd.Flags().StringVar(&month, "month", "", "Calendar month as YYYY-MM (default: current UTC month)")

	return cmd
}
