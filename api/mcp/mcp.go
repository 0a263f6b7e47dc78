// Package mcp provides an MCP (Model Context Protocol) server exposing Ragora
// retrieval to coding agents and other MCP clients.
package mcp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/ragora/api/search"
	"github.com/papercomputeco/ragora/pkg/ragora"
	"github.com/papercomputeco/ragora/pkg/utils"
)

// Client is the subset of *ragora.Client the tools call.
type Client interface {
	search.Searcher
	Chat(ctx context.Context, req ragora.ChatRequest) (*ragora.ChatResponse, error)
	ListCollections(ctx context.Context, opts ragora.ListOptions) (*ragora.Page[ragora.Collection], error)
}

type Config struct {
	// Client answers every tool call.
	Client Client

	// Collections are searched when a tool call names none.
	Collections []string

	// Model is used by the ask tool when set.
	Model string

	// Noop for empty MCP server
	Noop bool

	Logger *slog.Logger
}

type Server struct {
	config    Config
	mcpServer *mcp.Server
	handler   *mcp.StreamableHTTPHandler
}

// NewServer creates a new MCP server with the search, ask and
// list_collections tools.
func NewServer(c Config) (*Server, error) {
	s := &Server{
		config: c,
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "ragora",
			Version: utils.Version,
		},
		&mcp.ServerOptions{},
	)

	if !c.Noop {
		if c.Client == nil {
			return nil, errors.New("ragora client is required")
		}
		if c.Logger == nil {
			return nil, errors.New("logger is required")
		}

		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        searchToolName,
			Description: searchDescription,
		}, s.handleSearch)

		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        askToolName,
			Description: askDescription,
		}, s.handleAsk)

		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        collectionsToolName,
			Description: collectionsDescription,
		}, s.handleListCollections)
	}

	s.mcpServer = mcpServer

	// Create a streamable HTTP net/http handler for stateless operations
	s.handler = mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server {
			return mcpServer
		},
		&mcp.StreamableHTTPOptions{
			Stateless: true,
		},
	)

	return s, nil
}

// Handler returns the HTTP handler for the MCP server.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// MCPServer returns the underlying server, e.g. to connect custom transports.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcpServer
}

// RunStdio serves MCP over stdin/stdout until ctx is done or the client
// disconnects.
func (s *Server) RunStdio(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcp.StdioTransport{})
}

func toolError(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}
