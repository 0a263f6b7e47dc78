// Package proxycmder provides the relay server command.
package proxycmder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papercomputeco/ragora/cmd/ragora/cmdutil"
	"github.com/papercomputeco/ragora/pkg/config"
	"github.com/papercomputeco/ragora/proxy"
)

type proxyCommander struct {
	v      *viper.Viper
	logger *slog.Logger
}

const proxyLongDesc string = `Run the relay server.

The relay answers chat and agent requests by forwarding them to the Ragora
API, streaming answers back as server-sent events. Every completed turn is
recorded in the session store and, when an event stream is configured,
published as a turn event.

Endpoints:
  POST /v1/chat              Ask and wait for the whole answer
  POST /v1/chat/stream       Ask and stream the answer
  POST /v1/agents/:id/chat   Ask an agent

Send X-Ragora-Session-Id to continue a recorded session.`

const proxyShortDesc string = "Run the Ragora relay server"

func NewProxyCmd() *cobra.Command {
	cmder := &proxyCommander{}

	cmd := &cobra.Command{
		Use:   "proxy",
		Short: proxyShortDesc,
		Long:  proxyLongDesc,
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
	AddRelayFlags(cmd)

	return cmd
}

// AddRelayFlags registers the flags the relay reads beyond client, chat and
// storage: its listen address and the event stream.
func AddRelayFlags(cmd *cobra.Command) {
	for _, key := range []string{config.FlagListen, config.FlagEventStream, config.FlagTopic} {
		config.AddStringFlag(cmd, config.ServeFlags, key, new(string))
	}
	config.AddStringSliceFlag(cmd, config.ServeFlags, config.FlagBrokers, new([]string))
}

func (c *proxyCommander) run(ctx context.Context, configDir string) error {
	client, err := cmdutil.NewClient(c.v, c.logger)
	if err != nil {
		return err
	}

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

	p, err := proxy.New(proxy.Config{
		ListenAddr:  c.v.GetString("proxy.listen"),
		Collections: config.List(c.v, "chat.collections"),
		Model:       c.v.GetString("chat.model"),
		Publisher:   publisher,
	}, client, driver, c.logger)
	if err != nil {
		return fmt.Errorf("creating relay: %w", err)
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- p.Run()
	}()

	select {
	case err := <-errChan:
		closeErr := p.Close()
		if err != nil {
			return fmt.Errorf("relay error: %w", err)
		}
		return closeErr
	case <-ctx.Done():
		c.logger.Info("shutting down relay")
		return errors.Join(p.Close(), <-errChan)
	}
}
