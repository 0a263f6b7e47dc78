package ragora

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/papercomputeco/ragora/pkg/record"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry of a chat history.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is a retrieval-augmented chat completion request.
type ChatRequest struct {
	Messages      []Message `json:"messages"`
	CollectionIDs []string  `json:"collection_ids,omitempty"`
	Model         string    `json:"model,omitempty"`
	SystemPrompt  string    `json:"system_prompt,omitempty"`
	Temperature   *float64  `json:"temperature,omitempty"`
	MaxTokens     int       `json:"max_tokens,omitempty"`
	TopK          int       `json:"top_k,omitempty"`

	// Stream is set by ChatStream and cleared by Chat.
	Stream bool `json:"stream"`
}

// ChatChoice is one completion alternative.
type ChatChoice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason,omitempty"`
}

// Usage reports token consumption and cost for a completion.
type Usage struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	CostUSD          float64 `json:"cost_usd,omitempty"`
}

// ChatResponse is a complete, non-streamed chat completion.
type ChatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
	Usage   *Usage       `json:"usage,omitempty"`

	// Sources are the retrieved chunks the answer was grounded on.
	Sources []SearchResult `json:"-"`
}

// Content returns the text of the first choice.
func (r *ChatResponse) Content() string {
	if r == nil || len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}

// FinishReason returns the finish reason of the first choice.
func (r *ChatResponse) FinishReason() string {
	if r == nil || len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].FinishReason
}

// Chat requests a complete answer in one response.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("at least one message is required")
	}
	req.Stream = false

	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/v1/chat/completions", nil, req, &raw); err != nil {
		return nil, err
	}

	var resp ChatResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decoding chat response: %w", err)
	}

	payload, err := record.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("decoding chat response: %w", err)
	}
	resp.Sources = sourcesFromPayload(payload)

	return &resp, nil
}

// ChatStream requests a streamed answer. The caller must drain or Close the
// returned stream.
func (c *Client) ChatStream(ctx context.Context, req ChatRequest) (*ChatStream, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("at least one message is required")
	}
	req.Stream = true

	return c.openStream(ctx, "/v1/chat/completions", req)
}
