package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/storefront-checkout/internal/cli"
)

func forgetCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "forget",
		Short: "Stop tracking the payment in flight",
		Long: `Stop tracking the payment in flight.

The payment itself is not cancelled; it may still be charged. Use this only
when the backend no longer knows the transaction.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
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
			id, ok, err := a.reconciler.PendingID(cmd.Context())
			if err != nil {
				return err
			}
			if !ok {
				_, err := fmt.Fprintln(out, cli.FormatInfo("No payment in flight"))
				return err
			}

			if !yes {
				prompter := cli.NewPrompter(cmd.InOrStdin(), out)
				confirmed, err := prompter.Confirm(cmd.Context(), fmt.Sprintf("Forget payment %s?", id))
				if err != nil {
					return err
				}
				if !confirmed {
					return nil
				}
			}

			a.reconciler.EndTracking()
			_, err = fmt.Fprintln(out, cli.FormatWarning(fmt.Sprintf("Forgot payment %s", id)))
			return err
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}
