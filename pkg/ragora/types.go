package ragora

import (
	"github.com/papercomputeco/ragora/pkg/record"
)

// ListOptions paginates list endpoints.
type ListOptions struct {
	Limit  int
	Offset int
}

// Page is one page of a list endpoint.
type Page[T any] struct {
	Data    []T  `json:"data"`
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
}

// SearchResult is one retrieved chunk of a document.
type SearchResult struct {
	ID           string         `json:"id"`
	Content      string         `json:"content"`
	Score        float64        `json:"score"`
	Metadata     map[string]any `json:"metadata"`
	DocumentID   string         `json:"document_id,omitempty"`
	CollectionID string         `json:"collection_id,omitempty"`
}

// SearchResultFromRecord coerces an untyped record into a SearchResult.
// Score is always a finite number (0 when absent or not numeric), Content
// and ID are always strings and Metadata is never nil.
func SearchResultFromRecord(r map[string]any) SearchResult {
	meta, ok := record.AsRecord(r["metadata"])
	if !ok || meta == nil {
		meta = map[string]any{}
	}

	return SearchResult{
		ID:           record.ID(r["id"]),
		Content:      record.String(r["content"]),
		Score:        record.Number(r["score"]),
		Metadata:     meta,
		DocumentID:   firstString(r, "document_id", "documentId"),
		CollectionID: firstString(r, "collection_id", "collectionId"),
	}
}

// searchResultsFrom coerces every object element of a JSON array, skipping
// anything else. The result is never nil.
func searchResultsFrom(v any) []SearchResult {
	items := record.Records(v)
	out := make([]SearchResult, 0, len(items))
	for _, item := range items {
		out = append(out, SearchResultFromRecord(item))
	}
	return out
}

// sourcesFromPayload extracts the retrieval sources of a chat payload,
// preferring ragora_stats.sources over a top-level sources list.
func sourcesFromPayload(payload map[string]any) []SearchResult {
	if v, ok := record.Path(payload, "ragora_stats", "sources"); ok && v != nil {
		return searchResultsFrom(v)
	}
	return searchResultsFrom(payload["sources"])
}

func firstString(r map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := record.String(r[k]); s != "" {
			return s
		}
	}
	return ""
}
