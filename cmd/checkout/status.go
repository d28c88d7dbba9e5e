package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/storefront-checkout/internal/cli"
	"github.com/Veraticus/storefront-checkout/internal/common"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [transaction-id]",
		Short: "Show a transaction, by default the payment in flight, without following it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			var id string
			if len(args) == 1 {
				id = args[0]
			} else {
				pending, ok, err := a.reconciler.PendingID(cmd.Context())
				if err != nil {
					return err
				}
				if !ok {
					_, err := fmt.Fprintln(out, cli.FormatInfo("No payment in flight"))
					return err
				}
				id = pending
			}

			tx, err := a.backend.GetTransaction(cmd.Context(), id)
			if err != nil {
				return common.NewUserError(fmt.Sprintf("Transaction %s could not be read", id), err)
			}
			return cli.NewPrompter(cmd.InOrStdin(), out).ShowTransaction(tx)
		},
	}
}
