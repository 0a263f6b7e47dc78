package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/ragora/api/search"
)

var (
	searchToolName    = "search"
	searchDescription = "Search Ragora knowledge collections. Returns the most relevant document chunks for the query, ranked by similarity score."
)

// SearchInput represents the input arguments for the search tool.
type SearchInput struct {
	Query         string   `json:"query" jsonschema:"the search query text"`
	CollectionIDs []string `json:"collection_ids,omitempty" jsonschema:"collection IDs to search (defaults to the configured collections)"`
	TopK          int      `json:"top_k,omitempty" jsonschema:"number of results to return (default: 5)"`
}

// handleSearch processes a search request.
func (s *Server) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, search.SearchOutput, error) {
	output, err := search.Search(
		ctx,
		search.SearchInput{
			Query:         input.Query,
			CollectionIDs: input.CollectionIDs,
			TopK:          input.TopK,
		},
		s.config.Collections,
		s.config.Client,
		s.config.Logger,
	)
	if err != nil {
		s.config.Logger.Error("MCP search failed", "error", err)
		return toolError(fmt.Sprintf("Search failed: %v", err)), search.SearchOutput{Results: []search.SearchResult{}}, nil
	}

	s.config.Logger.Debug("MCP search completed",
		"query", input.Query,
		"results", output.Count,
	)

	return nil, *output, nil
}
