// Package search provides shared search types and logic for retrieval over
// Ragora collections. It is used by both the REST API endpoint and the MCP
// server tool.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/papercomputeco/ragora/pkg/ragora"
	"github.com/papercomputeco/ragora/pkg/record"
	"github.com/papercomputeco/ragora/pkg/utils"
)

const (
	defaultTopK = 5

	// previewLength is the rune length of a result preview.
	previewLength = 200
)

// ErrEmptyQuery is returned for a blank query.
var ErrEmptyQuery = errors.New("query is required")

// Searcher runs a search against the Ragora API. *ragora.Client implements it.
type Searcher interface {
	Search(ctx context.Context, req ragora.SearchRequest) (*ragora.SearchResponse, error)
}

// SearchInput represents the input arguments for a search request.
type SearchInput struct {
	Query         string   `json:"query"`
	CollectionIDs []string `json:"collection_ids,omitempty"`
	TopK          int      `json:"top_k,omitempty"`
	Threshold     float64  `json:"threshold,omitempty"`
}

// SearchResult represents a single search result.
type SearchResult struct {
	ID           string         `json:"id"`
	DocumentID   string         `json:"document_id,omitempty"`
	CollectionID string         `json:"collection_id,omitempty"`
	Score        float64        `json:"score"`
	Source       string         `json:"source,omitempty"`
	Preview      string         `json:"preview"`
	Content      string         `json:"content"`
	Metadata     map[string]any `json:"metadata"`
}

// SearchOutput represents the output of a search operation.
type SearchOutput struct {
	Query   string         `json:"query"`
	Results []SearchResult `json:"results"`
	Count   int            `json:"count"`
}

// Search runs a retrieval query and shapes the ranked chunks for display.
// Collections fall back to defaults when the input names none.
func Search(
	ctx context.Context,
	input SearchInput,
	defaults []string,
	searcher Searcher,
	logger *slog.Logger,
) (*SearchOutput, error) {
	if input.Query == "" {
		return nil, ErrEmptyQuery
	}

	topK := input.TopK
	if topK <= 0 {
		topK = defaultTopK
	}

	collections := input.CollectionIDs
	if len(collections) == 0 {
		collections = defaults
	}

	logger.Debug("search request",
		"query", input.Query,
		"top_k", topK,
		"collections", collections,
	)

	resp, err := searcher.Search(ctx, ragora.SearchRequest{
		Query:         input.Query,
		CollectionIDs: collections,
		TopK:          topK,
		Threshold:     input.Threshold,
	})
	if err != nil {
		return nil, fmt.Errorf("searching collections: %w", err)
	}

	results := make([]SearchResult, 0, len(resp.Results))
	for _, r := range resp.Results {
		results = append(results, BuildSearchResult(r))
	}

	return &SearchOutput{
		Query:   input.Query,
		Results: results,
		Count:   len(results),
	}, nil
}

// BuildSearchResult converts a retrieved chunk into a SearchResult.
func BuildSearchResult(r ragora.SearchResult) SearchResult {
	metadata := r.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	return SearchResult{
		ID:           r.ID,
		DocumentID:   r.DocumentID,
		CollectionID: r.CollectionID,
		Score:        r.Score,
		Source:       SourceName(metadata),
		Preview:      utils.Truncate(utils.SingleLine(r.Content), previewLength),
		Content:      r.Content,
		Metadata:     metadata,
	}
}

// SourceName picks a human readable origin for a chunk from its metadata.
func SourceName(metadata map[string]any) string {
	for _, key := range []string{"title", "filename", "source", "url"} {
		if s := record.String(metadata[key]); s != "" {
			return s
		}
	}
	return ""
}
