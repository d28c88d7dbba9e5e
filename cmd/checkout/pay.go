package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/storefront-checkout/internal/checkout"
	"github.com/Veraticus/storefront-checkout/internal/cli"
	"github.com/Veraticus/storefront-checkout/internal/common"
	"github.com/Veraticus/storefront-checkout/internal/config"
	"github.com/Veraticus/storefront-checkout/internal/model"
)

type payOptions struct {
	productID  string
	email      string
	fullName   string
	phone      string
	address    string
	city       string
	cardNumber string
	cardExpiry string
	cardCVC    string
	cardHolder string
	quantity   int
	yes        bool
	plain      bool
	ephemeral  bool
}

func payCmd() *cobra.Command {
	opts := &payOptions{}
	cmd := &cobra.Command{
		Use:   "pay",
		Short: "Buy a product and pay by card",
		Long: `Buy a product and pay by card.

Anything not given as a flag is asked for. Once the card is submitted the
payment is tracked until it resolves; leaving early keeps it tracked and
'checkout resume' picks it up again.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPay(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.productID, "product", "p", "", "product id (default: checkout.product_id or the first product)")
	cmd.Flags().IntVarP(&opts.quantity, "quantity", "n", 1, "quantity to buy")
	cmd.Flags().StringVar(&opts.email, "email", "", "customer email")
	cmd.Flags().StringVar(&opts.fullName, "name", "", "customer full name")
	cmd.Flags().StringVar(&opts.phone, "phone", "", "customer phone")
	cmd.Flags().StringVar(&opts.address, "address", "", "delivery address")
	cmd.Flags().StringVar(&opts.city, "city", "", "delivery city")
	cmd.Flags().StringVar(&opts.cardNumber, "card-number", "", "card number")
	cmd.Flags().StringVar(&opts.cardExpiry, "card-exp", "", "card expiry (MM/YY)")
	cmd.Flags().StringVar(&opts.cardCVC, "card-cvc", "", "card CVC")
	cmd.Flags().StringVar(&opts.cardHolder, "card-holder", "", "name on the card")
	cmd.Flags().BoolVarP(&opts.yes, "yes", "y", false, "pay without confirming the summary")
	cmd.Flags().BoolVar(&opts.plain, "plain", false, "plain output instead of the interactive status view")
	cmd.Flags().BoolVar(&opts.ephemeral, "ephemeral", false, "keep nothing on disk (a pending payment is lost on exit)")

	return cmd
}

func runPay(cmd *cobra.Command, opts *payOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.ValidatePayment(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if opts.ephemeral {
		cfg.Store.Driver = config.DriverMemory
	}

	out := cmd.OutOrStdout()
	a, err := newApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	interrupts := cli.NewInterruptHandler(out)
	ctx := interrupts.HandleInterrupts(cmd.Context(), func() string {
		if a.flow.Status() == model.StatusPending {
			return a.flow.TransactionID()
		}
		return ""
	})

	prompter := cli.NewPrompter(cmd.InOrStdin(), out)

	product, err := selectProduct(ctx, a, opts.productID)
	if err != nil {
		return err
	}
	if opts.quantity > product.Stock {
		return common.NewUserError(fmt.Sprintf("Only %d of %s in stock", product.Stock, product.Name), common.ErrInvalidConfig)
	}

	order := model.Order{
		ProductID: product.ID,
		UnitPrice: product.Price,
		Quantity:  opts.quantity,
		Customer:  model.Customer{Email: opts.email, FullName: opts.fullName, Phone: opts.phone},
		Delivery:  model.Delivery{Address: opts.address, City: opts.city},
	}
	if _, err := fmt.Fprintln(out, cli.FormatTitle(fmt.Sprintf("Buying %s", product.Name))); err != nil {
		return err
	}
	if err := prompter.CompleteOrder(ctx, &order); err != nil {
		return err
	}

	if _, err := a.flow.Start(ctx, order); err != nil {
		if errors.Is(err, checkout.ErrPaymentInFlight) {
			return common.NewUserError("A payment is still processing. Run 'checkout resume' to follow it", err)
		}
		return err
	}

	card, err := cardFromFlags(opts)
	if err != nil {
		_ = a.flow.Abandon()
		return err
	}
	if err := prompter.CompleteCard(ctx, &card); err != nil {
		_ = a.flow.Abandon()
		return err
	}

	summary, err := a.flow.Summary(card)
	if err != nil {
		return err
	}
	if err := prompter.ShowSummary(summary); err != nil {
		return err
	}
	if !opts.yes {
		ok, confirmErr := prompter.Confirm(ctx, "Pay now?")
		if confirmErr != nil || !ok {
			_ = a.flow.Abandon()
			if confirmErr != nil {
				return confirmErr
			}
			_, err := fmt.Fprintln(out, cli.FormatInfo("Checkout cancelled, nothing was charged"))
			return err
		}
	}

	if err := a.flow.Submit(ctx, card); err != nil {
		// A resolved failure is shown; an interrupted one stays pending.
		if !a.flow.Status().IsTerminal() {
			return err
		}
		if _, writeErr := fmt.Fprintln(out, cli.FormatError(err.Error())); writeErr != nil {
			return writeErr
		}
	}

	details := []string{
		fmt.Sprintf("%s x%d", product.Name, order.Quantity),
		fmt.Sprintf("Total %s", cli.FormatAmount(summary.Quote.Total)),
	}
	return followPayment(ctx, cmd, a, opts.plain, details)
}

func selectProduct(ctx context.Context, a *app, productID string) (*model.Product, error) {
	if productID == "" {
		productID = a.cfg.ProductID
	}
	if productID != "" {
		product, err := a.backend.GetProduct(ctx, productID)
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.NewUserError(fmt.Sprintf("Product %s does not exist", productID), err)
		}
		if err != nil {
			return nil, common.NewUserError("Could not load the product", err)
		}
		return product, nil
	}

	products, err := a.backend.ListProducts(ctx)
	if err != nil {
		return nil, common.NewUserError("Could not load the products", err)
	}
	if len(products) == 0 {
		return nil, common.NewUserError("Nothing is for sale right now", common.ErrNotFound)
	}
	return &products[0], nil
}

func cardFromFlags(opts *payOptions) (model.Card, error) {
	card := model.Card{
		Number: opts.cardNumber,
		CVC:    opts.cardCVC,
		Holder: opts.cardHolder,
	}
	if opts.cardExpiry != "" {
		month, year, err := cli.ParseExpiry(opts.cardExpiry)
		if err != nil {
			return model.Card{}, fmt.Errorf("--card-exp: %w", err)
		}
		card.ExpMonth, card.ExpYear = month, year
	}
	return card, nil
}
