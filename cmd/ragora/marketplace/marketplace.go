// Package marketplacecmder provides the marketplace command for browsing
// knowledge bases published on the Ragora marketplace.
package marketplacecmder

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/ragora/cmd/ragora/cmdutil"
	"github.com/papercomputeco/ragora/pkg/cliui"
	"github.com/papercomputeco/ragora/pkg/config"
	"github.com/papercomputeco/ragora/pkg/ragora"
)

const marketplaceLongDesc string = `Browse the Ragora marketplace.

  ragora marketplace list [--search q] [--category c]    List products
  ragora marketplace get <id-or-slug>                   Show one product`

const marketplaceShortDesc string = "Browse the marketplace"

func NewMarketplaceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "marketplace",
		Aliases: []string{"market"},
		Short:   marketplaceShortDesc,
		Long:    marketplaceLongDesc,
	}

	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newGetCmd())

	return cmd
}

func newListCmd() *cobra.Command {
	var (
		opts   ragora.MarketplaceListOptions
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List marketplace products",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := cmdutil.Client(cmd)
			if err != nil {
				return err
			}

			page, err := client.ListMarketplace(cmd.Context(), opts)
			if err != nil {
				return fmt.Errorf("listing marketplace: %w", err)
			}

			if asJSON {
				return cmdutil.PrintJSON(cmd.OutOrStdout(), page)
			}

			out := cliui.NewOutput(cmd.OutOrStdout())
			if len(page.Data) == 0 {
				out.Println("No products found.")
				return nil
			}
			for _, p := range page.Data {
				out.Printf("  %s  %s  %s  %s\n",
					cliui.IDStyle.Render(p.Slug),
					cliui.NameStyle.Render(p.Title),
					cliui.ValueStyle.Render(price(p.PriceUSD)),
					cliui.DimStyle.Render("by "+p.Seller.Name),
				)
			}
			return nil
		},
	}

	cmdutil.AddFlags(cmd, config.ClientFlags)
	cmd.Flags().StringVarP(&opts.Search, "search", "s", "", "Full-text filter")
	cmd.Flags().StringVar(&opts.Category, "category", "", "Only list this category")
	cmd.Flags().StringVar(&opts.Sort, "sort", "", "Sort order, e.g. popular, newest, price")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "Maximum number of products to list")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "Number of products to skip")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw JSON response")

	return cmd
}

func newGetCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "get <id-or-slug>",
		Short: "Show a marketplace product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := cmdutil.Client(cmd)
			if err != nil {
				return err
			}

			p, err := client.GetMarketplaceProduct(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("getting product: %w", err)
			}

			if asJSON {
				return cmdutil.PrintJSON(cmd.OutOrStdout(), p)
			}

			out := cliui.NewOutput(cmd.OutOrStdout())
			out.Printf("\n  %s  %s\n", cliui.NameStyle.Render(p.Title), cliui.ValueStyle.Render(price(p.PriceUSD)))
			out.Printf("  %s %s\n", cliui.KeyStyle.Render("ID:"), cliui.IDStyle.Render(p.ID))
			if p.Category != "" {
				out.Printf("  %s %s\n", cliui.KeyStyle.Render("Category:"), p.Category)
			}
			if len(p.Tags) > 0 {
				out.Printf("  %s %s\n", cliui.KeyStyle.Render("Tags:"), strings.Join(p.Tags, ", "))
			}
			out.Printf("  %s %.1f (%d reviews), %d documents\n\n",
				cliui.KeyStyle.Render("Rating:"), p.Rating, p.ReviewCount, p.DocumentCount)
			if p.Description != "" {
				out.Markdown(p.Description)
			}
			return nil
		},
	}

	cmdutil.AddFlags(cmd, config.ClientFlags)
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw JSON response")

	return cmd
}

func price(usd float64) string {
	if usd == 0 {
		return "free"
	}
	return fmt.Sprintf("$%.2f", usd)
}
