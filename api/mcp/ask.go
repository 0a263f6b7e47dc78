package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/ragora/api/search"
	"github.com/papercomputeco/ragora/pkg/ragora"
)

var (
	askToolName    = "ask"
	askDescription = "Ask a question answered by Ragora from the documents in the given collections. Returns the answer together with the chunks it was grounded on."
)

// AskInput represents the input arguments for the ask tool.
type AskInput struct {
	Question      string   `json:"question" jsonschema:"the question to answer"`
	CollectionIDs []string `json:"collection_ids,omitempty" jsonschema:"collection IDs to ground the answer on (defaults to the configured collections)"`
}

// AskOutput is the grounded answer.
type AskOutput struct {
	Answer       string                `json:"answer"`
	FinishReason string                `json:"finish_reason,omitempty"`
	Sources      []search.SearchResult `json:"sources"`
}

func (s *Server) handleAsk(ctx context.Context, _ *mcp.CallToolRequest, input AskInput) (*mcp.CallToolResult, AskOutput, error) {
	empty := AskOutput{Sources: []search.SearchResult{}}
	if input.Question == "" {
		return toolError("question is required"), empty, nil
	}

	collections := input.CollectionIDs
	if len(collections) == 0 {
		collections = s.config.Collections
	}

	resp, err := s.config.Client.Chat(ctx, ragora.ChatRequest{
		Messages:      []ragora.Message{{Role: ragora.RoleUser, Content: input.Question}},
		CollectionIDs: collections,
		Model:         s.config.Model,
	})
	if err != nil {
		s.config.Logger.Error("MCP ask failed", "error", err)
		return toolError(fmt.Sprintf("Ask failed: %v", err)), empty, nil
	}

	out := AskOutput{
		Answer:       resp.Content(),
		FinishReason: resp.FinishReason(),
		Sources:      make([]search.SearchResult, 0, len(resp.Sources)),
	}
	for _, src := range resp.Sources {
		out.Sources = append(out.Sources, search.BuildSearchResult(src))
	}

	return nil, out, nil
}
