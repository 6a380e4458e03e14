package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMigrateCmd(get func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			version, err := get().migrate(cmd.Context())
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Schema up to date (version %d)\n", version)
			return nil
		},
	}
}

func newCreditsCmd(get func() *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credits",
		Short: "Inspect and grant workspace credits",
	}
	cmd.AddCommand(
		newCreditsGrantCmd(get),
		newCreditsBalanceCmd(get),
	)
	return cmd
}

func newCreditsGrantCmd(get func() *app) *cobra.Command {
	var workspaceID int32
	var amount int64

	cmd := &cobra.Command{
		Use:   "grant",
		Short: "Add credits to a workspace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if workspaceID <= 0 {
				return fmt.Errorf("--workspace must be a positive workspace ID")
			}
			balance, err := get().ledger.Grant(cmd.Context(), workspaceID, amount)
			if err != nil {
				return fmt.Errorf("grant credits: %w", err)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Workspace %d balance: %d\n", workspaceID, balance)
			return nil
		},
	}
	cmd.Flags().Int32Var(&workspaceID, "workspace", 0, "workspace ID")
	cmd.Flags().Int64Var(&amount, "amount", 0, "credits to add")
	_ = cmd.MarkFlagRequired("workspace")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func newCreditsBalanceCmd(get func() *app) *cobra.Command {
	var workspaceID int32

	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Show a workspace's spendable credits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			balance, err := get().ledger.Balance(cmd.Context(), workspaceID)
			if err != nil {
				return fmt.Errorf("read balance: %w", err)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Workspace %d balance: %d\n", workspaceID, balance)
			return nil
		},
	}
	cmd.Flags().Int32Var(&workspaceID, "workspace", 0, "workspace ID")
	_ = cmd.MarkFlagRequired("workspace")
	return cmd
}

func newSweepCmd(get func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Fail jobs whose provider never reported a result, releasing their credits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			failed := get().sweeper.Sweep(cmd.Context())
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Failed %d stale job(s)\n", failed)
			return nil
		},
	}
}
