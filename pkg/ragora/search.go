package ragora

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/papercomputeco/ragora/pkg/record"
)

// SearchRequest is a semantic search over one or more collections.
type SearchRequest struct {
	Query         string         `json:"query"`
	CollectionIDs []string       `json:"collection_ids,omitempty"`
	TopK          int            `json:"top_k,omitempty"`
	Threshold     float64        `json:"threshold,omitempty"`
	Filters       map[string]any `json:"filters,omitempty"`
}

// SearchResponse holds the ranked results of a search.
type SearchResponse struct {
	Query   string
	Results []SearchResult
	Total   int
}

// Search runs a vector search. Result records are coerced the same way as
// streamed sources, so a malformed entry never fails the whole call.
func (c *Client) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	if req.Query == "" {
		return nil, errors.New("search query is required")
	}

	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/v1/search", nil, req, &raw); err != nil {
		return nil, err
	}

	payload, err := record.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("decoding search response: %w", err)
	}

	results := payload["results"]
	if results == nil {
		results = payload["data"]
	}

	resp := &SearchResponse{
		Query:   req.Query,
		Results: searchResultsFrom(results),
	}
	if q := record.String(payload["query"]); q != "" {
		resp.Query = q
	}
	resp.Total = int(record.Number(payload["total"]))
	if resp.Total == 0 {
		resp.Total = len(resp.Results)
	}

	return resp, nil
}
