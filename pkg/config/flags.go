package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag is the single source of truth for a CLI flag.
// Commands reference flags by registry key rather than hard-coding names,
// shorthands, defaults, and descriptions inline. This prevents flag drift
// when the same logical flag appears on multiple commands (e.g., --collection
// on "ragora chat", "ragora search" and "ragora serve").
type Flag struct {
	// Name is the long flag name (e.g. "base-url").
	Name string

	// Shorthand is the one-letter short flag (e.g. "c"). Empty for no shorthand.
	Shorthand string

	// ViperKey is the dotted config key this flag maps to (e.g. "client.base_url").
	ViperKey string

	// Description is the help text shown in --help output.
	Description string
}

// FlagSet is a mapping of flag names to Flag structs that hold their name,
// shorthand, viper key, etc.
type FlagSet map[string]Flag

// Flag registry keys.
// Use these constants when calling AddStringFlag, AddStringSliceFlag,
// and BindRegisteredFlags to avoid typos or drift from one command to another.
const (
	FlagBaseURL     = "base-url"
	FlagAPIKey      = "api-key"
	FlagTimeout     = "timeout"
	FlagModel       = "model"
	FlagCollections = "collections"
	FlagStorage     = "storage"
	FlagSQLite      = "sqlite"
	FlagPostgres    = "postgres"
	FlagListen      = "listen"
	FlagAPIListen   = "api-listen"
	FlagEventStream = "eventstream"
	FlagBrokers     = "kafka-brokers"
	FlagTopic       = "kafka-topic"
)

// ClientFlags are shared by every command that talks to the Ragora API.
var ClientFlags = FlagSet{
	FlagBaseURL: {Name: "base-url", ViperKey: "client.base_url", Description: "Ragora API base URL"},
	FlagAPIKey:  {Name: "api-key", ViperKey: "client.api_key", Description: "Ragora API key (or RAGORA_API_KEY)"},
	FlagTimeout: {Name: "timeout", ViperKey: "client.timeout", Description: "Time to first byte, and idle limit while streaming"},
}

// ChatFlags select the model and collections answers are grounded on.
var ChatFlags = FlagSet{
	FlagModel:       {Name: "model", Shorthand: "m", ViperKey: "chat.model", Description: "Model to answer with"},
	FlagCollections: {Name: "collection", Shorthand: "c", ViperKey: "chat.collections", Description: "Collection IDs to search (repeatable or comma separated)"},
}

// StorageFlags select the local session store.
var StorageFlags = FlagSet{
	FlagStorage:  {Name: "storage", ViperKey: "storage.provider", Description: "Session store: memory, sqlite or postgres"},
	FlagSQLite:   {Name: "sqlite", Shorthand: "s", ViperKey: "storage.sqlite_path", Description: "Path to the SQLite session store"},
	FlagPostgres: {Name: "postgres", ViperKey: "storage.postgres_dsn", Description: "PostgreSQL connection string"},
}

// ServeFlags configure the relay, the API server and the event stream.
var ServeFlags = FlagSet{
	FlagListen:      {Name: "listen", Shorthand: "l", ViperKey: "proxy.listen", Description: "Address for the relay to listen on"},
	FlagAPIListen:   {Name: "api-listen", Shorthand: "a", ViperKey: "api.listen", Description: "Address for the session and MCP API to listen on"},
	FlagEventStream: {Name: "eventstream", ViperKey: "eventstream.provider", Description: "Turn event publisher: none or kafka"},
	FlagBrokers:     {Name: "kafka-brokers", ViperKey: "eventstream.brokers", Description: "Kafka broker addresses"},
	FlagTopic:       {Name: "kafka-topic", ViperKey: "eventstream.topic", Description: "Kafka topic for turn events"},
}

// AddStringFlag registers a string flag on cmd from the given FlagSet.
// The flag's name, shorthand, default, and description all come from the
// FlagSet entry so they cannot drift across commands.
func AddStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaultString(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().StringVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().StringVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddStringSliceFlag registers a repeatable, comma separated flag on cmd
// from the given FlagSet.
func AddStringSliceFlag(cmd *cobra.Command, fs FlagSet, key string, target *[]string) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaultStringSlice(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().StringSliceVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().StringSliceVar(target, def.Name, defaultVal, def.Description)
	}
}

// BindRegisteredFlags binds already-registered flags to viper using definitions
// from the given FlagSet. Call this in PreRunE after InitViper to connect flags
// to the viper precedence chain (flag > env > config file > default).
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, registryKeys []string) {
	for _, registryKey := range registryKeys {
		def, ok := fs[registryKey]
		if !ok {
			continue
		}

		f := cmd.Flags().Lookup(def.Name)
		if f == nil {
			continue
		}

		_ = v.BindPFlag(def.ViperKey, f)
	}
}

// Keys returns the registry keys of fs, for BindRegisteredFlags.
func (fs FlagSet) Keys() []string {
	keys := make([]string, 0, len(fs))
	for k := range fs {
		keys = append(keys, k)
	}
	return keys
}

// defaultString returns the default string value for a viper key from NewDefaultConfig.
func defaultString(viperKey string) string {
	v := viper.New()
	setViperDefaults(v)
	return v.GetString(viperKey)
}

// defaultStringSlice returns the default list value for a viper key from NewDefaultConfig.
func defaultStringSlice(viperKey string) []string {
	v := viper.New()
	setViperDefaults(v)
	return v.GetStringSlice(viperKey)
}
