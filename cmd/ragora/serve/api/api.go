// Package apicmder provides the API server command.
package apicmder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papercomputeco/ragora/api"
	"github.com/papercomputeco/ragora/api/search"
	"github.com/papercomputeco/ragora/cmd/ragora/cmdutil"
	"github.com/papercomputeco/ragora/pkg/config"
)

type apiCommander struct {
	v      *viper.Viper
	logger *slog.Logger
}

const apiLongDesc string = `Run the API server.

The API server browses the sessions recorded in the local session store.
With an API key configured it also searches Ragora collections and serves
the ragora MCP tools over streamable HTTP.

Endpoints:
  GET    /v1/sessions        List recorded sessions
  GET    /v1/sessions/:id    A session with its turns
  DELETE /v1/sessions/:id    Delete a session
  GET    /v1/search          Search collections (?query=&top_k=)
  POST   /mcp                MCP streamable HTTP`

const apiShortDesc string = "Run the Ragora API server"

func NewAPICmd() *cobra.Command {
	cmder := &apiCommander{}

	cmd := &cobra.Command{
		Use:   "api",
		Short: apiShortDesc,
		Long:  apiLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.v, err = cmdutil.LoadViper(cmd, config.ClientFlags, config.ChatFlags, config.StorageFlags, config.ServeFlags)
			return err
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmder.logger = cmdutil.ServiceLogger(cmd)
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return cmder.run(ctx, cmdutil.ConfigDir(cmd))
		},
	}

	cmdutil.AddFlags(cmd, config.ClientFlags)
	cmdutil.AddFlags(cmd, config.ChatFlags)
	cmdutil.AddFlags(cmd, config.StorageFlags)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagAPIListen, new(string))

	return cmd
}

func (c *apiCommander) run(ctx context.Context, configDir string) error {
	driver, err := cmdutil.OpenStorage(ctx, c.v, configDir, c.logger)
	if err != nil {
		return err
	}
	defer driver.Close()

	searcher, mcpHandler, err := SearchAndMCP(c.v, c.logger)
	if err != nil {
		return err
	}

	server, err := api.NewServer(api.Config{
		ListenAddr:  c.v.GetString("api.listen"),
		Searcher:    searcher,
		Collections: config.List(c.v, "chat.collections"),
		MCPHandler:  mcpHandler,
	}, driver, c.logger)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Run()
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("API server error: %w", err)
		}
		return nil
	case <-ctx.Done():
		c.logger.Info("shutting down API server")
		return errors.Join(server.Shutdown(), <-errChan)
	}
}

// SearchAndMCP builds the search backend and MCP handler of the API server.
// Without an API key both are nil and the server only browses sessions.
func SearchAndMCP(v *viper.Viper, log *slog.Logger) (search.Searcher, http.Handler, error) {
	client, err := cmdutil.NewClient(v, log)
	if errors.Is(err, cmdutil.ErrNoAPIKey) {
		log.Warn("no API key configured, search and MCP are disabled")
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}

	mcpServer, err := cmdutil.NewMCPServer(client, v, log)
	if err != nil {
		return nil, nil, err
	}
	return client, mcpServer.Handler(), nil
}
