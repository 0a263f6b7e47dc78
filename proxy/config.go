package proxy

import (
	"github.com/papercomputeco/ragora/pkg/eventstream"
)

// Config is the relay server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8080")
	ListenAddr string

	// Collections are searched when a chat request names none.
	Collections []string

	// Model is used when a chat request names none.
	Model string

	// Publisher receives an event per recorded turn. Optional.
	Publisher eventstream.Publisher

	// NumWorkers and QueueSize size the recorder pool; zero picks defaults.
	NumWorkers uint
	QueueSize  uint
}
