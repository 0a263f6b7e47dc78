// Package cmdutil wires configuration, logging, the Ragora client and the
// local stores for ragora subcommands.
package cmdutil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	apimcp "github.com/papercomputeco/ragora/api/mcp"
	"github.com/papercomputeco/ragora/pkg/config"
	"github.com/papercomputeco/ragora/pkg/dotdir"
	"github.com/papercomputeco/ragora/pkg/eventstream"
	"github.com/papercomputeco/ragora/pkg/eventstream/kafka"
	"github.com/papercomputeco/ragora/pkg/eventstream/nop"
	"github.com/papercomputeco/ragora/pkg/logger"
	"github.com/papercomputeco/ragora/pkg/ragora"
	"github.com/papercomputeco/ragora/pkg/storage"
	"github.com/papercomputeco/ragora/pkg/storage/inmemory"
	"github.com/papercomputeco/ragora/pkg/storage/postgres"
	"github.com/papercomputeco/ragora/pkg/storage/sqlite"
)

// ErrNoAPIKey is returned when no API key was configured anywhere.
var ErrNoAPIKey = errors.New("no Ragora API key: pass --api-key, set RAGORA_API_KEY or run \"ragora config set client.api_key <key>\"")

// ConfigDir returns the --config-dir flag, which is empty when unset.
func ConfigDir(cmd *cobra.Command) string {
	dir, _ := cmd.Flags().GetString("config-dir")
	return dir
}

// LoadViper resolves configuration for cmd and binds the flags of every
// given FlagSet on top of it.
func LoadViper(cmd *cobra.Command, flagSets ...config.FlagSet) (*viper.Viper, error) {
	v, err := config.InitViper(ConfigDir(cmd))
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	for _, fs := range flagSets {
		config.BindRegisteredFlags(v, cmd, fs, fs.Keys())
	}

	return v, nil
}

// Logger returns the pretty CLI logger, at debug level when --debug is set.
func Logger(cmd *cobra.Command) *slog.Logger {
	debug, _ := cmd.Flags().GetBool("debug")
	return logger.New(
		logger.WithDebug(debug),
		logger.WithSource(debug),
		logger.WithPretty(true),
		logger.WithWriter(cmd.ErrOrStderr()),
	)
}

// ServiceLogger is the logger of the relay and API servers: the pretty CLI
// logger on a terminal, JSON lines otherwise.
func ServiceLogger(cmd *cobra.Command) *slog.Logger {
	w := cmd.ErrOrStderr()
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return Logger(cmd)
	}

	debug, _ := cmd.Flags().GetBool("debug")
	return logger.New(
		logger.WithDebug(debug),
		logger.WithSource(debug),
		logger.WithJSON(true),
		logger.WithWriter(w),
	)
}

// NewClient builds a Ragora client from the client.* keys.
func NewClient(v *viper.Viper, log *slog.Logger) (*ragora.Client, error) {
	apiKey := strings.TrimSpace(v.GetString("client.api_key"))
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}

	return ragora.NewClient(apiKey,
		ragora.WithBaseURL(v.GetString("client.base_url")),
		ragora.WithTimeout(config.Timeout(v)),
		ragora.WithLogger(log),
	)
}

// SQLitePath resolves where the SQLite session store lives. In order:
//  1. storage.sqlite_path (flag, RAGORA_STORAGE_SQLITE_PATH or config.toml)
//  2. ragora.sqlite inside the resolved .ragora/ directory, created if needed
func SQLitePath(v *viper.Viper, configDir string) (string, error) {
	if path := strings.TrimSpace(v.GetString("storage.sqlite_path")); path != "" {
		return path, nil
	}

	dir, err := dotdir.NewManager().Ensure(configDir)
	if err != nil {
		return "", fmt.Errorf("resolving session store: %w", err)
	}
	cfger, err := config.NewConfiger(dir)
	if err != nil {
		return "", fmt.Errorf("resolving session store: %w", err)
	}
	return cfger.DefaultSQLitePath(), nil
}

// OpenStorage opens the session store selected by storage.provider.
func OpenStorage(ctx context.Context, v *viper.Viper, configDir string, log *slog.Logger) (storage.Driver, error) {
	switch provider := v.GetString("storage.provider"); provider {
	case "memory":
		log.Debug("using in-memory session store")
		return inmemory.NewDriver(), nil

	case "", "sqlite":
		path, err := SQLitePath(v, configDir)
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating session store directory: %w", err)
		}

		driver, err := sqlite.NewDriver(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("opening SQLite session store: %w", err)
		}
		log.Debug("using SQLite session store", "path", path)
		return driver, nil

	case "postgres":
		dsn := strings.TrimSpace(v.GetString("storage.postgres_dsn"))
		if dsn == "" {
			return nil, errors.New("storage.postgres_dsn is required for the postgres session store")
		}

		driver, err := postgres.NewDriver(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("opening PostgreSQL session store: %w", err)
		}
		log.Debug("using PostgreSQL session store")
		return driver, nil

	default:
		return nil, fmt.Errorf("unknown storage provider: %q (available: memory, sqlite, postgres)", provider)
	}
}

// OpenPublisher builds the turn event publisher selected by
// eventstream.provider.
func OpenPublisher(v *viper.Viper, log *slog.Logger) (eventstream.Publisher, error) {
	switch provider := v.GetString("eventstream.provider"); provider {
	case "", "none":
		return nop.NewPublisher(), nil

	case "kafka":
		pub, err := kafka.NewPublisher(kafka.Config{
			Brokers: config.List(v, "eventstream.brokers"),
			Topic:   v.GetString("eventstream.topic"),
		})
		if err != nil {
			return nil, fmt.Errorf("creating kafka publisher: %w", err)
		}
		log.Info("publishing turn events to kafka",
			"brokers", config.List(v, "eventstream.brokers"),
			"topic", v.GetString("eventstream.topic"),
		)
		return pub, nil

	default:
		return nil, fmt.Errorf("unknown eventstream provider: %q (available: none, kafka)", provider)
	}
}

// NewMCPServer builds the MCP tool server over client, searching the
// chat.collections by default.
func NewMCPServer(client *ragora.Client, v *viper.Viper, log *slog.Logger) (*apimcp.Server, error) {
	server, err := apimcp.NewServer(apimcp.Config{
		Client:      client,
		Collections: config.List(v, "chat.collections"),
		Model:       v.GetString("chat.model"),
		Logger:      log,
	})
	if err != nil {
		return nil, fmt.Errorf("creating MCP server: %w", err)
	}
	return server, nil
}

// AddFlags registers every flag of fs on cmd. Values are read back through
// viper once LoadViper has bound them.
func AddFlags(cmd *cobra.Command, fs config.FlagSet) {
	for key := range fs {
		switch key {
		case config.FlagCollections, config.FlagBrokers:
			config.AddStringSliceFlag(cmd, fs, key, new([]string))
		default:
			config.AddStringFlag(cmd, fs, key, new(string))
		}
	}
}

// Client loads configuration for cmd and builds a Ragora client. cmd must
// have the ClientFlags registered.
func Client(cmd *cobra.Command) (*ragora.Client, error) {
	v, err := LoadViper(cmd, config.ClientFlags)
	if err != nil {
		return nil, err
	}
	return NewClient(v, Logger(cmd))
}

// PrintJSON writes v as indented JSON, for --json output.
func PrintJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
