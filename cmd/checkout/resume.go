package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/storefront-checkout/internal/cli"
	"github.com/Veraticus/storefront-checkout/internal/model"
)

func resumeCmd() *cobra.Command {
	var plain bool
	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Follow a payment left processing by an earlier run",
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
			ctx := cli.NewInterruptHandler(out).HandleInterrupts(cmd.Context(), func() string {
				if a.flow.Status() == model.StatusPending {
					return a.flow.TransactionID()
				}
				return ""
			})

			resumed, err := a.flow.Resume(ctx)
			if err != nil {
				return err
			}
			if !resumed {
				_, err := fmt.Fprintln(out, cli.FormatInfo("No payment in flight"))
				return err
			}

			return followPayment(ctx, cmd, a, plain, nil)
		},
	}
	cmd.Flags().BoolVar(&plain, "plain", false, "plain output instead of the interactive status view")
	return cmd
}
