// Package servecmder provides the serve command with subcommands for running services.
package servecmder

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papercomputeco/ragora/api"
	"github.com/papercomputeco/ragora/cmd/ragora/cmdutil"
	apicmder "github.com/papercomputeco/ragora/cmd/ragora/serve/api"
	proxycmder "github.com/papercomputeco/ragora/cmd/ragora/serve/proxy"
	"github.com/papercomputeco/ragora/pkg/config"
	"github.com/papercomputeco/ragora/proxy"
)

type ServeCommander struct {
	v      *viper.Viper
	logger *slog.Logger
}

const serveLongDesc string = `Run Ragora services.

Use subcommands to run individual services or all services together:
  ragora serve          Run both the relay and the API server
  ragora serve proxy    Run just the relay
  ragora serve api      Run just the API server

Both services share one session store, so sessions recorded by the relay
can be browsed through the API server right away.

Examples:
  ragora serve
  ragora serve --listen :9000 --api-listen :9001
  ragora serve --eventstream kafka --kafka-brokers localhost:9092`

const serveShortDesc string = "Run Ragora services"

func NewServeCmd() *cobra.Command {
	cmder := &ServeCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
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
	cmdutil.AddFlags(cmd, config.ServeFlags)

	cmd.AddCommand(apicmder.NewAPICmd())
	cmd.AddCommand(proxycmder.NewProxyCmd())

	return cmd
}

func (c *ServeCommander) run(ctx context.Context, configDir string) error {
	client, err := cmdutil.NewClient(c.v, c.logger)
	if err != nil {
		return err
	}

	// Shared by the relay's recorder pool and the API server.
	driver, err := cmdutil.OpenStorage(ctx, c.v, configDir, c.logger)
	if err != nil {
		return err
	}
	defer driver.Close()

	publisher, err := cmdutil.OpenPublisher(c.v, c.logger)
	if err != nil {
		return err
	}
	defer publisher.Close()

	collections := config.List(c.v, "chat.collections")

	p, err := proxy.New(proxy.Config{
		ListenAddr:  c.v.GetString("proxy.listen"),
		Collections: collections,
		Model:       c.v.GetString("chat.model"),
		Publisher:   publisher,
	}, client, driver, c.logger)
	if err != nil {
		return fmt.Errorf("creating relay: %w", err)
	}
	defer p.Close()

	mcpServer, err := cmdutil.NewMCPServer(client, c.v, c.logger)
	if err != nil {
		return err
	}

	apiServer, err := api.NewServer(api.Config{
		ListenAddr:  c.v.GetString("api.listen"),
		Searcher:    client,
		Collections: collections,
		MCPHandler:  mcpServer.Handler(),
	}, driver, c.logger)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	defer apiServer.Shutdown()

	// Both ports are bound before either server starts.
	relayLn, err := net.Listen("tcp", c.v.GetString("proxy.listen"))
	if err != nil {
		return fmt.Errorf("binding relay: %w", err)
	}
	apiLn, err := net.Listen("tcp", c.v.GetString("api.listen"))
	if err != nil {
		relayLn.Close()
		return fmt.Errorf("binding API server: %w", err)
	}

	// Channel to capture errors from goroutines
	errChan := make(chan error, 2)

	go func() {
		if err := p.RunWithListener(relayLn); err != nil {
			errChan <- fmt.Errorf("relay error: %w", err)
		}
	}()

	go func() {
		if err := apiServer.RunWithListener(apiLn); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		c.logger.Info("shutting down")
		return nil
	}
}
