// Package ragoracmder
package ragoracmder

import (
	"errors"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	agentcmder "github.com/papercomputeco/ragora/cmd/ragora/agent"
	chatcmder "github.com/papercomputeco/ragora/cmd/ragora/chat"
	collectionscmder "github.com/papercomputeco/ragora/cmd/ragora/collections"
	configcmder "github.com/papercomputeco/ragora/cmd/ragora/config"
	creditscmder "github.com/papercomputeco/ragora/cmd/ragora/credits"
	documentscmder "github.com/papercomputeco/ragora/cmd/ragora/documents"
	marketplacecmder "github.com/papercomputeco/ragora/cmd/ragora/marketplace"
	mcpcmder "github.com/papercomputeco/ragora/cmd/ragora/mcp"
	searchcmder "github.com/papercomputeco/ragora/cmd/ragora/search"
	servecmder "github.com/papercomputeco/ragora/cmd/ragora/serve"
	versioncmder "github.com/papercomputeco/ragora/cmd/ragora/version"
)

const ragoraLongDesc string = `Ragora answers questions grounded on your document collections.

Chat and search:
  ragora chat                  Streaming chat over your collections
  ragora search <query>        Search collections
  ragora agent chat <id>       Chat with an agent

Manage content:
  ragora collections           Create, list and delete collections
  ragora documents             Upload, watch and track documents
  ragora marketplace           Browse public knowledge products
  ragora credits               Show your credit balance

Run services:
  ragora serve                 Run the relay and the API server
  ragora mcp                   Serve MCP tools over stdio

Configuration is read from .ragora/config.toml, RAGORA_* environment
variables and a .env file in the working directory.`

const ragoraShortDesc string = "Ragora - grounded answers from your documents"

func NewRagoraCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "ragora",
		Short:         ragoraShortDesc,
		Long:          ragoraLongDesc,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			// Existing environment variables win over .env entries.
			if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to .ragora/ config directory")

	// Add subcommands
	cmd.AddCommand(chatcmder.NewChatCmd())
	cmd.AddCommand(searchcmder.NewSearchCmd())
	cmd.AddCommand(agentcmder.NewAgentCmd())
	cmd.AddCommand(collectionscmder.NewCollectionsCmd())
	cmd.AddCommand(documentscmder.NewDocumentsCmd())
	cmd.AddCommand(marketplacecmder.NewMarketplaceCmd())
	cmd.AddCommand(creditscmder.NewCreditsCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(mcpcmder.NewMCPCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
