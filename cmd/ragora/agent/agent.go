// Package agentcmder provides the agent command for working with Ragora
// agents and their sessions.
package agentcmder

import (
	"fmt"

	"github.com/spf13/cobra"

	chatcmder "github.com/papercomputeco/ragora/cmd/ragora/chat"
	"github.com/papercomputeco/ragora/cmd/ragora/cmdutil"
	"github.com/papercomputeco/ragora/pkg/cliui"
	"github.com/papercomputeco/ragora/pkg/config"
	"github.com/papercomputeco/ragora/pkg/ragora"
	"github.com/papercomputeco/ragora/pkg/utils"
)

const agentLongDesc string = `Work with Ragora agents.

Agents are assistants with their own model, system prompt and collections.
Conversations with an agent are held in sessions the API keeps.

  ragora agent list                       List agents
  ragora agent create <name>              Create an agent
  ragora agent delete <agent-id>          Delete an agent
  ragora agent chat <agent-id>            Chat with an agent
  ragora agent sessions <agent-id>        List an agent's sessions`

const agentShortDesc string = "Work with Ragora agents"

func NewAgentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: agentShortDesc,
		Long:  agentLongDesc,
	}

	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newCreateCmd())
	cmd.AddCommand(newDeleteCmd())
	cmd.AddCommand(newSessionsCmd())
	cmd.AddCommand(chatcmder.NewAgentChatCmd())

	return cmd
}

func newListCmd() *cobra.Command {
	var (
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List agents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := cmdutil.Client(cmd)
			if err != nil {
				return err
			}

			page, err := client.ListAgents(cmd.Context(), ragora.ListOptions{Limit: limit})
			if err != nil {
				return fmt.Errorf("listing agents: %w", err)
			}

			if asJSON {
				return cmdutil.PrintJSON(cmd.OutOrStdout(), page)
			}

			out := cliui.NewOutput(cmd.OutOrStdout())
			if len(page.Data) == 0 {
				out.Println("No agents found.")
				return nil
			}
			for _, a := range page.Data {
				out.Printf("  %s  %s", cliui.IDStyle.Render(a.ID), cliui.NameStyle.Render(a.Name))
				if a.Model != "" {
					out.Printf("  %s", cliui.DimStyle.Render(a.Model))
				}
				out.Println("")
				if a.Description != "" {
					out.Printf("    %s\n", cliui.PreviewStyle.Render(cliui.Preview(a.Description, out.Width()-4)))
				}
			}
			return nil
		},
	}

	cmdutil.AddFlags(cmd, config.ClientFlags)
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of agents to list")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw JSON response")

	return cmd
}

func newCreateCmd() *cobra.Command {
	req := ragora.CreateAgentRequest{}

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create an agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := cmdutil.Client(cmd)
			if err != nil {
				return err
			}

			req.Name = args[0]
			req.CollectionIDs = utils.SplitCSV(req.CollectionIDs...)

			agent, err := client.CreateAgent(cmd.Context(), req)
			if err != nil {
				return fmt.Errorf("creating agent: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "  %s Created agent %s (%s)\n",
				cliui.SuccessMark, agent.Name, cliui.IDStyle.Render(agent.ID))
			return nil
		},
	}

	cmdutil.AddFlags(cmd, config.ClientFlags)
	cmd.Flags().StringVar(&req.Description, "description", "", "Agent description")
	cmd.Flags().StringVar(&req.SystemPrompt, "system-prompt", "", "System prompt the agent answers with")
	cmd.Flags().StringVarP(&req.Model, "model", "m", "", "Model the agent answers with")
	cmd.Flags().StringSliceVarP(&req.CollectionIDs, "collection", "c", nil, "Collection IDs the agent searches")

	return cmd
}

func newDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <agent-id>",
		Short: "Delete an agent and its sessions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := cmdutil.Client(cmd)
			if err != nil {
				return err
			}

			if err := client.DeleteAgent(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("deleting agent: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "  %s Deleted agent %s\n", cliui.SuccessMark, args[0])
			return nil
		},
	}

	cmdutil.AddFlags(cmd, config.ClientFlags)

	return cmd
}
