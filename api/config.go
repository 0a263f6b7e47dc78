package api

import (
	"net/http"

	"github.com/papercomputeco/ragora/api/search"
)

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8081")
	ListenAddr string

	// Searcher backs GET /v1/search. Search answers 503 when it is nil.
	Searcher search.Searcher

	// Collections are searched when a request names none.
	Collections []string

	// MCPHandler is mounted at /mcp when set.
	MCPHandler http.Handler
}
