package ragora

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/papercomputeco/ragora/pkg/record"
)

// Agent is a configured conversational assistant bound to collections.
type Agent struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	SystemPrompt  string    `json:"system_prompt,omitempty"`
	Model         string    `json:"model,omitempty"`
	CollectionIDs []string  `json:"collection_ids,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// CreateAgentRequest is the body of CreateAgent.
type CreateAgentRequest struct {
	Name          string   `json:"name"`
	Description   string   `json:"description,omitempty"`
	SystemPrompt  string   `json:"system_prompt,omitempty"`
	Model         string   `json:"model,omitempty"`
	CollectionIDs []string `json:"collection_ids,omitempty"`
}

// UpdateAgentRequest is the body of UpdateAgent. Nil fields are left
// unchanged.
type UpdateAgentRequest struct {
	Name          *string   `json:"name,omitempty"`
	Description   *string   `json:"description,omitempty"`
	SystemPrompt  *string   `json:"system_prompt,omitempty"`
	Model         *string   `json:"model,omitempty"`
	CollectionIDs *[]string `json:"collection_ids,omitempty"`
}

// AgentChatRequest sends one user message to an agent. An empty SessionID
// starts a new conversation.
type AgentChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
	Stream    bool   `json:"stream"`
}

// AgentChatResponse is a complete agent reply.
type AgentChatResponse struct {
	Message   string
	SessionID string
	Sources   []SearchResult
}

// AgentSession is a conversation held with an agent.
type AgentSession struct {
	ID           string    `json:"id"`
	AgentID      string    `json:"agent_id"`
	Title        string    `json:"title,omitempty"`
	MessageCount int       `json:"message_count"`
	Messages     []Message `json:"messages,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func agentPath(id string) string {
	return "/v1/agents/" + escape(id)
}

// ListAgents returns one page of the caller's agents.
func (c *Client) ListAgents(ctx context.Context, opts ListOptions) (*Page[Agent], error) {
	var page Page[Agent]
	if err := c.do(ctx, http.MethodGet, "/v1/agents", listQuery(opts), nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetAgent fetches an agent by ID.
func (c *Client) GetAgent(ctx context.Context, id string) (*Agent, error) {
	var a Agent
	if err := c.do(ctx, http.MethodGet, agentPath(id), nil, nil, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// CreateAgent creates an agent.
func (c *Client) CreateAgent(ctx context.Context, req CreateAgentRequest) (*Agent, error) {
	if req.Name == "" {
		return nil, errors.New("agent name is required")
	}

	var a Agent
	if err := c.do(ctx, http.MethodPost, "/v1/agents", nil, req, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// UpdateAgent changes an agent's configuration.
func (c *Client) UpdateAgent(ctx context.Context, id string, req UpdateAgentRequest) (*Agent, error) {
	var a Agent
	if err := c.do(ctx, http.MethodPatch, agentPath(id), nil, req, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// DeleteAgent deletes an agent and its sessions.
func (c *Client) DeleteAgent(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, agentPath(id), nil, nil, nil)
}

// AgentChat sends a message and waits for the full reply.
func (c *Client) AgentChat(ctx context.Context, agentID string, req AgentChatRequest) (*AgentChatResponse, error) {
	if req.Message == "" {
		return nil, errors.New("message is required")
	}
	req.Stream = false

	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, agentPath(agentID)+"/chat", nil, req, &raw); err != nil {
		return nil, err
	}

	payload, err := record.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("decoding agent response: %w", err)
	}

	resp := &AgentChatResponse{
		Message:   firstString(payload, "message", "content", "answer"),
		SessionID: record.String(payload["session_id"]),
		Sources:   sourcesFromPayload(payload),
	}
	if resp.SessionID == "" {
		resp.SessionID = req.SessionID
	}

	return resp, nil
}

// AgentChatStream sends a message and streams the reply. The session the
// server assigned is available from ChatStream.SessionID once its metadata
// event has been read.
func (c *Client) AgentChatStream(ctx context.Context, agentID string, req AgentChatRequest) (*ChatStream, error) {
	if req.Message == "" {
		return nil, errors.New("message is required")
	}
	req.Stream = true

	stream, err := c.openStream(ctx, agentPath(agentID)+"/chat", req)
	if err != nil {
		return nil, err
	}
	stream.sessionID = req.SessionID
	return stream, nil
}

// ListAgentSessions returns one page of an agent's sessions.
func (c *Client) ListAgentSessions(ctx context.Context, agentID string, opts ListOptions) (*Page[AgentSession], error) {
	var page Page[AgentSession]
	if err := c.do(ctx, http.MethodGet, agentPath(agentID)+"/sessions", listQuery(opts), nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetAgentSession fetches a session including its messages.
func (c *Client) GetAgentSession(ctx context.Context, agentID, sessionID string) (*AgentSession, error) {
	var s AgentSession
	if err := c.do(ctx, http.MethodGet, agentPath(agentID)+"/sessions/"+escape(sessionID), nil, nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// DeleteAgentSession deletes a session.
func (c *Client) DeleteAgentSession(ctx context.Context, agentID, sessionID string) error {
	return c.do(ctx, http.MethodDelete, agentPath(agentID)+"/sessions/"+escape(sessionID), nil, nil, nil)
}
