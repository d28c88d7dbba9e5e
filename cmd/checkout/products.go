package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Veraticus/storefront-checkout/internal/backend"
	"github.com/Veraticus/storefront-checkout/internal/cli"
	"github.com/Veraticus/storefront-checkout/internal/common"
)

func productsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "products",
		Short: "List the products for sale",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			client := backend.NewClient(cfg.Backend.URL, cfg.Backend.Timeout, backend.WithLogger(slog.Default()))
			products, err := client.ListProducts(cmd.Context())
			if err != nil {
				return common.NewUserError("Could not load the products", err)
			}

			p := cli.NewPrompter(cmd.InOrStdin(), cmd.OutOrStdout())
			if _, err := fmt.Fprintln(cmd.OutOrStdout(), cli.FormatTitle("Products")); err != nil {
				return err
			}
			return p.ShowProducts(products)
		},
	}
}
