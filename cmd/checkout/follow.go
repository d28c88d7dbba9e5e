package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/storefront-checkout/internal/cli"
	"github.com/Veraticus/storefront-checkout/internal/model"
	"github.com/Veraticus/storefront-checkout/internal/tui"
	"github.com/Veraticus/storefront-checkout/internal/tui/themes"
)

// followPayment waits on the tracked payment and acknowledges it once the
// buyer has seen the outcome. Leaving early keeps the payment pending.
func followPayment(ctx context.Context, cmd *cobra.Command, a *app, plain bool, details []string) error {
	out := cmd.OutOrStdout()
	prompter := cli.NewPrompter(cmd.InOrStdin(), out)
	id := a.flow.TransactionID()

	var (
		status       model.Status
		acknowledged bool
	)
	if plain {
		var err error
		status, err = cli.WaitForResolution(ctx, out, a.flow.Updates(), id, a.flow.Status())
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		// An interrupted wait never closes the payment; the next run
		// confirms the outcome with the backend first.
		acknowledged = status.IsTerminal() && ctx.Err() == nil
	} else {
		outcome, err := tui.RunStatusView(ctx, tui.StatusConfig{
			Updates:       a.flow.Updates(),
			Theme:         themes.Default,
			TransactionID: id,
			Status:        a.flow.Status(),
			Details:       details,
		})
		if err != nil {
			return err
		}
		status = a.flow.Status()
		acknowledged = outcome == tui.OutcomeAcknowledged
	}

	if !acknowledged {
		if status.IsTerminal() {
			_, err := fmt.Fprintln(out, cli.FormatInfo(fmt.Sprintf("Payment %s is %s. Run 'checkout resume' to close it", id, status)))
			return err
		}
		return prompter.ShowResult(id, status)
	}

	// The buyer has seen the outcome, so an interrupt landing now does not
	// stop it being recorded.
	record, err := a.flow.Acknowledge(context.WithoutCancel(ctx))
	if err != nil {
		return err
	}
	return prompter.ShowResult(record.TransactionID, record.Status)
}
