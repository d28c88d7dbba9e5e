package cli

import (
	"context"
	"io"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/Veraticus/storefront-checkout/internal/model"
	"github.com/Veraticus/storefront-checkout/internal/reconciler"
)

const spinnerInterval = 100 * time.Millisecond

// WaitForResolution shows a spinner until transactionID reaches a terminal
// status, updates closes, or ctx is done. It returns the last status seen.
func WaitForResolution(ctx context.Context, w io.Writer, updates <-chan reconciler.Update, transactionID string, current model.Status) (model.Status, error) {
	if current.IsTerminal() {
		return current, nil
	}

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(w),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetElapsedTime(true),
		progressbar.OptionSetDescription("[cyan]Waiting for the payment processor...[reset]"),
		progressbar.OptionClearOnFinish(),
	)
	defer func() { _ = bar.Finish() }()

	ticker := time.NewTicker(spinnerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return current, ctx.Err()
		case <-ticker.C:
			_ = bar.Add(1)
		case update, ok := <-updates:
			if !ok {
				return current, nil
			}
			if update.TransactionID != transactionID {
				continue
			}
			current = update.Status
			if current.IsTerminal() {
				return current, nil
			}
		}
	}
}
