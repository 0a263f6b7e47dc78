// Package creditscmder provides the credits command showing the prepaid
// balance of the account behind the API key.
package creditscmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/ragora/cmd/ragora/cmdutil"
	"github.com/papercomputeco/ragora/pkg/cliui"
	"github.com/papercomputeco/ragora/pkg/config"
)

const creditsLongDesc string = `Show the credit balance of your Ragora account.

Searches, chat completions and ingestion are paid from prepaid credits.
Requests fail with 402 Payment Required once the balance runs out.`

const creditsShortDesc string = "Show your credit balance"

func NewCreditsCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:     "credits",
		Aliases: []string{"balance"},
		Short:   creditsShortDesc,
		Long:    creditsLongDesc,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := cmdutil.Client(cmd)
			if err != nil {
				return err
			}

			balance, err := client.GetBalance(cmd.Context())
			if err != nil {
				return fmt.Errorf("getting balance: %w", err)
			}

			if asJSON {
				return cmdutil.PrintJSON(cmd.OutOrStdout(), balance)
			}

			out := cliui.NewOutput(cmd.OutOrStdout())
			out.Printf("  %s %s\n",
				cliui.KeyStyle.Render("Balance:"),
				cliui.ValueStyle.Render(fmt.Sprintf("%.2f %s", balance.BalanceUSD, balance.Currency)),
			)
			if balance.LifetimeUsedUSD > 0 {
				out.Printf("  %s %s\n",
					cliui.KeyStyle.Render("Used:"),
					cliui.DimStyle.Render(fmt.Sprintf("%.2f %s", balance.LifetimeUsedUSD, balance.Currency)),
				)
			}
			return nil
		},
	}

	cmdutil.AddFlags(cmd, config.ClientFlags)
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw JSON response")

	return cmd
}
