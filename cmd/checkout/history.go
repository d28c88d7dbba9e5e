package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/storefront-checkout/internal/cli"
)

func historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List resolved payments, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			store, err := initStorage(cmd.Context(), cfg.Store)
			if err != nil {
				return fmt.Errorf("failed to open store: %w", err)
			}
			defer func() { _ = store.Close() }()

			records, err := store.ListPayments(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return cli.NewPrompter(cmd.InOrStdin(), cmd.OutOrStdout()).ShowHistory(records)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "number of payments to show")
	return cmd
}
