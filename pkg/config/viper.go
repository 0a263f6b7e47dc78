package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/papercomputeco/ragora/pkg/dotdir"
)

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the RAGORA_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (RAGORA_CLIENT_BASE_URL, RAGORA_PROXY_LISTEN, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
//
// RAGORA_API_KEY and RAGORA_BASE_URL are accepted as short aliases.
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	// 1. Register all defaults from NewDefaultConfig().
	setViperDefaults(v)

	// 2. Config file discovery via dotdir resolution.
	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// 3. Environment variables: RAGORA_CLIENT_API_KEY, RAGORA_STORAGE_SQLITE_PATH, etc.
	v.SetEnvPrefix("RAGORA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("client.api_key", "RAGORA_CLIENT_API_KEY", "RAGORA_API_KEY")
	_ = v.BindEnv("client.base_url", "RAGORA_CLIENT_BASE_URL", "RAGORA_BASE_URL")

	return v, nil
}

// Timeout returns client.timeout as a duration, falling back to the default
// on a malformed value.
func Timeout(v *viper.Viper) time.Duration {
	if d, err := time.ParseDuration(v.GetString("client.timeout")); err == nil {
		return d
	}
	d, _ := time.ParseDuration(defaultTimeout)
	return d
}

// List reads a list key, accepting both TOML arrays and comma separated
// strings from flags or the environment.
func List(v *viper.Viper, key string) []string {
	return SplitList(v.GetStringSlice(key)...)
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	// Client
	v.SetDefault("client.base_url", d.Client.BaseURL)
	v.SetDefault("client.api_key", d.Client.APIKey)
	v.SetDefault("client.timeout", d.Client.Timeout)

	// Chat
	v.SetDefault("chat.model", d.Chat.Model)
	v.SetDefault("chat.collections", d.Chat.Collections)

	// Storage
	v.SetDefault("storage.provider", d.Storage.Provider)
	v.SetDefault("storage.sqlite_path", d.Storage.SQLitePath)
	v.SetDefault("storage.postgres_dsn", d.Storage.PostgresDSN)

	// Proxy
	v.SetDefault("proxy.listen", d.Proxy.Listen)
	v.SetDefault("api.listen", d.API.Listen)

	// Event stream
	v.SetDefault("eventstream.provider", d.EventStream.Provider)
	v.SetDefault("eventstream.brokers", d.EventStream.Brokers)
	v.SetDefault("eventstream.topic", d.EventStream.Topic)
}
