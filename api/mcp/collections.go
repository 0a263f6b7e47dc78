package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/ragora/pkg/ragora"
)

var (
	collectionsToolName    = "list_collections"
	collectionsDescription = "List the Ragora collections available to search, with their document counts."
)

// ListCollectionsInput represents the input arguments for list_collections.
type ListCollectionsInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"maximum number of collections to return (default: 50)"`
}

// CollectionSummary describes one collection.
type CollectionSummary struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description,omitempty"`
	DocumentCount int    `json:"document_count"`
}

// ListCollectionsOutput is the list_collections result.
type ListCollectionsOutput struct {
	Collections []CollectionSummary `json:"collections"`
	Total       int                 `json:"total"`
}

func (s *Server) handleListCollections(ctx context.Context, _ *mcp.CallToolRequest, input ListCollectionsInput) (*mcp.CallToolResult, ListCollectionsOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = 50
	}

	page, err := s.config.Client.ListCollections(ctx, ragora.ListOptions{Limit: limit})
	if err != nil {
		return toolError(fmt.Sprintf("Listing collections failed: %v", err)), ListCollectionsOutput{Collections: []CollectionSummary{}}, nil
	}

	out := ListCollectionsOutput{
		Collections: make([]CollectionSummary, 0, len(page.Data)),
		Total:       page.Total,
	}
	for _, c := range page.Data {
		out.Collections = append(out.Collections, CollectionSummary{
			ID:            c.ID,
			Name:          c.Name,
			Description:   c.Description,
			DocumentCount: c.DocumentCount,
		})
	}
	if out.Total == 0 {
		out.Total = len(out.Collections)
	}

	return nil, out, nil
}
