// Package searchcmder provides the search command for semantic search over
// Ragora collections.
package searchcmder

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	apisearch "github.com/papercomputeco/ragora/api/search"
	"github.com/papercomputeco/ragora/cmd/ragora/cmdutil"
	"github.com/papercomputeco/ragora/pkg/cliui"
	"github.com/papercomputeco/ragora/pkg/config"
)

type searchCommander struct {
	topK      int
	threshold float64
	quiet     bool
	asJSON    bool

	v *viper.Viper
}

const searchLongDesc string = `Search your Ragora collections.

Runs a vector search and prints the most relevant chunks, best first.
Collections default to chat.collections from the config.

Use --quiet to print only chunk IDs, one per line, for piping into other
commands. Use --json for the full results.

Examples:
  ragora search "how do refunds work"
  ragora search "rate limits" --collection col_123 --top 10
  ragora search "rate limits" --threshold 0.75 --quiet`

const searchShortDesc string = "Search your collections"

func NewSearchCmd() *cobra.Command {
	cmder := &searchCommander{}

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: searchShortDesc,
		Long:  searchLongDesc,
		Args:  cobra.MinimumNArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.v, err = cmdutil.LoadViper(cmd, config.ClientFlags, config.ChatFlags)
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd, strings.Join(args, " "))
		},
	}

	cmdutil.AddFlags(cmd, config.ClientFlags)
	config.AddStringSliceFlag(cmd, config.ChatFlags, config.FlagCollections, new([]string))
	cmd.Flags().IntVarP(&cmder.topK, "top", "k", 5, "Number of results to return")
	cmd.Flags().Float64Var(&cmder.threshold, "threshold", 0, "Minimum similarity score")
	cmd.Flags().BoolVarP(&cmder.quiet, "quiet", "q", false, "Print only result IDs, one per line")
	cmd.Flags().BoolVar(&cmder.asJSON, "json", false, "Print results as JSON")

	return cmd
}

func (c *searchCommander) run(cmd *cobra.Command, query string) error {
	log := cmdutil.Logger(cmd)

	client, err := cmdutil.NewClient(c.v, log)
	if err != nil {
		return err
	}

	output, err := apisearch.Search(cmd.Context(), apisearch.SearchInput{
		Query:     query,
		TopK:      c.topK,
		Threshold: c.threshold,
	}, config.List(c.v, "chat.collections"), client, log)
	if err != nil {
		return err
	}

	if c.asJSON {
		return cmdutil.PrintJSON(cmd.OutOrStdout(), output)
	}

	out := cliui.NewOutput(cmd.OutOrStdout())

	if output.Count == 0 {
		if !c.quiet {
			out.Println("No results found.")
		}
		return nil
	}

	if c.quiet {
		for _, result := range output.Results {
			out.Println(result.ID)
		}
		return nil
	}

	out.Printf("\n%s %s\n\n",
		cliui.HeaderStyle.Render("Search Results for:"),
		cliui.IDStyle.Render(fmt.Sprintf("%q", output.Query)),
	)

	for i, result := range output.Results {
		printResult(out, i+1, result)
	}

	return nil
}

func printResult(out *cliui.Output, rank int, result apisearch.SearchResult) {
	out.Printf("  %s  %s  %s\n",
		cliui.RankStyle.Render(fmt.Sprintf("#%d", rank)),
		cliui.ScoreStyle.Render(fmt.Sprintf("score: %.4f", result.Score)),
		cliui.IDStyle.Render(result.ID),
	)

	if result.Source != "" {
		out.Printf("  %s\n", cliui.DimStyle.Render(result.Source))
	}
	out.Printf("  %s\n\n", cliui.PreviewStyle.Render(cliui.Preview(result.Preview, out.Width()-2)))
}
