package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kiranshivaraju/pdfgate/internal/account"
	"github.com/kiranshivaraju/pdfgate/internal/quota"
	"github.com/kiranshivaraju/pdfgate/internal/store"
	"github.com/kiranshivaraju/pdfgate/pkg/models"
	"github.com/spf13/cobra"
)

func newKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "key",
		Aliases: []string{"apikey"},
		Short:   "Manage API keys",
		Long:    "Create, list, and revoke the API keys that select a caller's plan.",
	}

	cmd.AddCommand(newKeyCreateCmd())
	cmd.AddCommand(newKeyListCmd())
	cmd.AddCommand(newKeyRevokeCmd())

	return cmd
}

// ---------- key create ----------

func newKeyCreateCmd() *cobra.Command {
	var (
		planName string
		email    string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new API key",
		Long:  "Issue an active API key on a plan. The raw key is shown once and cannot be retrieved again.",
		Example: `  pdfgatectl key create --plan pro --email ops@example.com
  pdfgatectl key create`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := models.ParsePlan(planName)
			if err != nil {
				return err
			}

			e, err := openEnv(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer e.Close()

			svc := account.NewService(e.store, quota.NewEnforcer(e.store, e.plans), e.plans, e.logger)
			issued, err := svc.IssueKey(cmd.Context(), p, email, "")
			if err != nil {
				return fmt.Errorf("create api key: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "API key created:")
			fmt.Fprintln(out)
			fmt.Fprintf(out, "  Key:    %s\n", issued.APIKey)
			fmt.Fprintf(out, "  Plan:   %s\n", issued.Plan)
			fmt.Fprintf(out, "  Limit:  %d requests/month\n", issued.MonthlyLimit)
			if email != "" {
				fmt.Fprintf(out, "  Email:  %s\n", email)
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, "  Save this key now. It cannot be retrieved again.")
			return nil
		},
	}

	cmd.Flags().StringVar(&planName, "plan", string(models.PlanFree), "Plan to issue the key on (free, starter, pro, business)")
	cmd.Flags().StringVar(&email, "email", "", "Owner email, used to match billing events")

	return cmd
}

// ---------- key list ----------

func newKeyListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List all API keys",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := openEnv(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer e.Close()

			keys, err := e.store.ListAPIKeys(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(keys)
			}

			if len(keys) == 0 {
				fmt.Fprintln(out, "No API keys issued. Use 'pdfgatectl key create' to create one.")
				return nil
			}

			fmt.Fprintf(out, "%-16s %-10s %-28s %-8s %s\n", "PREFIX", "PLAN", "EMAIL", "ACTIVE", "CREATED")
			for _, k := range keys {
				owner := "-"
				if k.Email != nil {
					owner = *k.Email
				}
				active := "yes"
				if !k.Active {
					active = "no"
				}
				fmt.Fprintf(out, "%-16s %-10s %-28s %-8s %s\n",
					k.KeyPrefix, k.Plan, owner, active, k.CreatedAt.UTC().Format("2006-01-02"))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

// ---------- key revoke ----------

func newKeyRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <prefix>",
		Short: "Revoke an API key by its prefix",
		Long:  "Deactivate an API key. Requests carrying it are rejected from then on; its usage history is kept.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer e.Close()

			n, err := e.store.DeactivateAPIKeyByPrefix(cmd.Context(), args[0])
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("no active API key found with prefix %q", args[0])
			}
			if err != nil {
				return fmt.Errorf("revoke api key: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Revoked %d API key(s) with prefix %q\n", n, args[0])
			return nil
		},
	}
}
