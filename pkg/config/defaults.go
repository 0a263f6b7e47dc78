package config

import "github.com/papercomputeco/ragora/pkg/ragora"

const (
	defaultTimeout = "60s"

	defaultStorageProvider = "sqlite"

	// defaultSQLiteFile is created inside the resolved .ragora/ directory
	// when storage.sqlite_path is unset.
	defaultSQLiteFile = "ragora.sqlite"

	defaultProxyListen = ":8080"
	defaultAPIListen   = ":8081"

	defaultEventStreamProvider = "none"
	defaultEventStreamTopic    = "ragora.turns"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Client: ClientConfig{
			BaseURL: ragora.DefaultBaseURL,
			Timeout: defaultTimeout,
		},
		Storage: StorageConfig{
			Provider: defaultStorageProvider,
		},
		Proxy: ProxyConfig{
			Listen: defaultProxyListen,
		},
		API: APIConfig{
			Listen: defaultAPIListen,
		},
		EventStream: EventStreamConfig{
			Provider: defaultEventStreamProvider,
			Topic:    defaultEventStreamTopic,
		},
	}
}
