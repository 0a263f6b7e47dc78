// Package configcmder provides the config command for managing persistent
// ragora configuration stored in the .ragora/ directory.
package configcmder

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/ragora/cmd/ragora/cmdutil"
	"github.com/papercomputeco/ragora/pkg/cliui"
	"github.com/papercomputeco/ragora/pkg/config"
)

const configLongDesc string = `Manage persistent ragora configuration.

Configuration is stored as config.toml in the .ragora/ directory and provides
default values for command flags. CLI flags and RAGORA_* environment
variables always take precedence over config file values.

Keys use dotted notation matching the TOML section structure:
  client.base_url, client.api_key, client.timeout,
  chat.model, chat.collections,
  storage.provider, storage.sqlite_path, storage.postgres_dsn,
  proxy.listen, api.listen,
  eventstream.provider, eventstream.brokers, eventstream.topic

Use subcommands to create, get, set, or list configuration values:
  ragora config init                   Write a config.toml from a preset
  ragora config set <key> <value>      Set a configuration value
  ragora config get <key>              Get a configuration value
  ragora config list                   List all configuration values

Examples:
  ragora config init --preset local
  ragora config set chat.collections col_123,col_456
  ragora config get client.base_url
  ragora config list`

const configShortDesc string = "Manage persistent ragora configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}

func validKey(key string) error {
	if config.IsValidConfigKey(key) {
		return nil
	}
	return fmt.Errorf("unknown config key: %q\n\nValid keys: %s",
		key, strings.Join(config.ValidConfigKeys(), ", "))
}

func completeKeys(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return config.ValidConfigKeys(), cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}

func printTarget(w *cliui.Output, target string) {
	if target != "" {
		w.Printf("\n  %s %s\n\n",
			cliui.KeyStyle.Render("Config file:"),
			cliui.DimStyle.Render(target),
		)
		return
	}
	w.Printf("\n  %s\n\n", cliui.DimStyle.Render("No config file found. Using defaults."))
}

// display masks secret values unless reveal is set.
func display(key, value string, reveal bool) string {
	if value == "" || reveal || !config.IsSecretKey(key) {
		return value
	}
	if len(value) <= 8 {
		return "********"
	}
	return value[:4] + "****" + value[len(value)-4:]
}

func configDir(cmd *cobra.Command) string {
	return cmdutil.ConfigDir(cmd)
}
