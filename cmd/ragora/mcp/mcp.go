// Package mcpcmder provides the mcp command, which serves the ragora MCP
// tools over stdio for editors and agents that launch MCP servers locally.
package mcpcmder

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/ragora/cmd/ragora/cmdutil"
	"github.com/papercomputeco/ragora/pkg/config"
	"github.com/papercomputeco/ragora/pkg/logger"
)

const mcpLongDesc string = `Serve the ragora MCP tools over stdio.

Tools:
  search             Search collections for relevant chunks
  ask                Answer a question grounded on collections
  list_collections   List the collections the API key can see

Logs go to stderr so stdout stays reserved for the protocol. Point your MCP
client at this command, for example:

  {"command": "ragora", "args": ["mcp", "--collection", "col_123"]}`

const mcpShortDesc string = "Serve MCP tools over stdio"

func NewMCPCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: mcpShortDesc,
		Long:  mcpLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := cmdutil.LoadViper(cmd, config.ClientFlags, config.ChatFlags)
			if err != nil {
				return err
			}

			debug, _ := cmd.Flags().GetBool("debug")
			log := logger.New(logger.WithDebug(debug), logger.WithWriter(cmd.ErrOrStderr()))

			client, err := cmdutil.NewClient(v, log)
			if err != nil {
				return err
			}

			server, err := cmdutil.NewMCPServer(client, v, log)
			if err != nil {
				return err
			}

			log.Debug("serving MCP over stdio", "base_url", client.BaseURL())
			if err := server.RunStdio(cmd.Context()); err != nil && !errors.Is(err, cmd.Context().Err()) {
				return fmt.Errorf("serving MCP: %w", err)
			}
			return nil
		},
	}

	cmdutil.AddFlags(cmd, config.ClientFlags)
	cmdutil.AddFlags(cmd, config.ChatFlags)

	return cmd
}
