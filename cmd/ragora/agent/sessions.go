package agentcmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/ragora/cmd/ragora/cmdutil"
	"github.com/papercomputeco/ragora/pkg/cliui"
	"github.com/papercomputeco/ragora/pkg/config"
	"github.com/papercomputeco/ragora/pkg/ragora"
)

const sessionsLongDesc string = `List the sessions the API holds for an agent.

With --delete, the given session is removed instead.

Examples:
  ragora agent sessions agt_123
  ragora agent sessions agt_123 --delete sess_456`

func newSessionsCmd() *cobra.Command {
	var (
		limit    int
		asJSON   bool
		toDelete string
	)

	cmd := &cobra.Command{
		Use:   "sessions <agent-id>",
		Short: "List an agent's sessions",
		Long:  sessionsLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := cmdutil.Client(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			agentID := args[0]

			if toDelete != "" {
				if err := client.DeleteAgentSession(ctx, agentID, toDelete); err != nil {
					return fmt.Errorf("deleting session: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "  %s Deleted session %s\n", cliui.SuccessMark, toDelete)
				return nil
			}

			page, err := client.ListAgentSessions(ctx, agentID, ragora.ListOptions{Limit: limit})
			if err != nil {
				return fmt.Errorf("listing sessions: %w", err)
			}

			if asJSON {
				return cmdutil.PrintJSON(cmd.OutOrStdout(), page)
			}

			out := cliui.NewOutput(cmd.OutOrStdout())
			if len(page.Data) == 0 {
				out.Println("No sessions found.")
				return nil
			}
			for _, s := range page.Data {
				title := s.Title
				if title == "" {
					title = "(untitled)"
				}
				out.Printf("  %s  %s  %s\n",
					cliui.IDStyle.Render(s.ID),
					cliui.PreviewStyle.Render(cliui.Preview(title, 50)),
					cliui.DimStyle.Render(fmt.Sprintf("%d messages", s.MessageCount)),
				)
			}
			return nil
		},
	}

	cmdutil.AddFlags(cmd, config.ClientFlags)
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of sessions to list")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw JSON response")
	cmd.Flags().StringVar(&toDelete, "delete", "", "Delete this session instead of listing")

	return cmd
}
