package configcmder

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/papercomputeco/ragora/pkg/cliui"
	"github.com/papercomputeco/ragora/pkg/config"
	"github.com/papercomputeco/ragora/pkg/dotdir"
)

const initLongDesc string = `Write a config.toml from a preset.

Presets:
  cloud    The hosted Ragora API with a local SQLite session store (default)
  local    A self-hosted API on localhost:8000 publishing turns to local Kafka

With --local the configuration is written to ./.ragora/ so it only applies
in this directory; otherwise to --config-dir or ~/.ragora/.

On a terminal you are asked for your API key unless --api-key is given.

Examples:
  ragora config init
  ragora config init --preset local --local
  ragora config init --api-key rk_live_... --force`

const initShortDesc string = "Create a config file from a preset"

type initOptions struct {
	preset string
	apiKey string
	local  bool
	force  bool
}

func newInitCmd() *cobra.Command {
	opts := &initOptions{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: initShortDesc,
		Long:  initLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.preset, "preset", "p", "cloud", "Preset to start from ("+strings.Join(config.ValidPresetNames(), ", ")+")")
	cmd.Flags().StringVar(&opts.apiKey, "api-key", "", "API key to store")
	cmd.Flags().BoolVar(&opts.local, "local", false, "Write to ./.ragora/ in the current directory")
	cmd.Flags().BoolVarP(&opts.force, "force", "f", false, "Overwrite an existing config.toml")

	_ = cmd.RegisterFlagCompletionFunc("preset", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return config.ValidPresetNames(), cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func runInit(cmd *cobra.Command, opts *initOptions) error {
	cfg, err := config.PresetConfig(opts.preset)
	if err != nil {
		return err
	}

	override := configDir(cmd)
	if opts.local {
		override = ".ragora"
	}
	dir, err := dotdir.NewManager().Ensure(override)
	if err != nil {
		return fmt.Errorf("resolving config dir: %w", err)
	}

	cfger, err := config.NewConfiger(dir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	target := cfger.GetTarget()
	if _, err := os.Stat(target); err == nil && !opts.force {
		return fmt.Errorf("%s already exists, use --force to overwrite", target)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("reading config: %w", err)
	}

	apiKey := strings.TrimSpace(opts.apiKey)
	if apiKey == "" && isTerminal(cmd.InOrStdin()) {
		apiKey, err = cliui.ReadSecret(cmd.OutOrStdout(), "  Ragora API key (leave empty to skip): ")
		if err != nil {
			return err
		}
		apiKey = strings.TrimSpace(apiKey)
	}
	cfg.Client.APIKey = apiKey

	if err := cfger.SaveConfig(cfg); err != nil {
		return err
	}

	w := cliui.NewOutput(cmd.OutOrStdout())
	w.Printf("\n  %s Wrote %s preset to %s\n",
		cliui.SuccessMark,
		cliui.NameStyle.Render(opts.preset),
		cliui.DimStyle.Render(filepath.Clean(target)),
	)
	if apiKey == "" {
		w.Printf("  %s\n", cliui.WarnStyle.Render("No API key stored. Set one with: ragora config set client.api_key <key>"))
	}
	w.Println("")

	return nil
}

func isTerminal(r any) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
