package api

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/ragora/pkg/ragora"
	"github.com/papercomputeco/ragora/pkg/storage"
)

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// SessionSummary is one entry of the session list.
type SessionSummary struct {
	ID              string    `json:"id"`
	Kind            string    `json:"kind"`
	AgentID         string    `json:"agent_id,omitempty"`
	RemoteSessionID string    `json:"remote_session_id,omitempty"`
	Title           string    `json:"title,omitempty"`
	Model           string    `json:"model,omitempty"`
	Collections     []string  `json:"collections"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// HistoryMessage is one turn of a session.
type HistoryMessage struct {
	Seq          int                   `json:"seq"`
	Role         string                `json:"role"`
	Content      string                `json:"content"`
	FinishReason string                `json:"finish_reason,omitempty"`
	Sources      []ragora.SearchResult `json:"sources,omitempty"`
	CreatedAt    time.Time             `json:"created_at"`
}

// HistoryResponse contains a session and its turns.
type HistoryResponse struct {
	Session  SessionSummary   `json:"session"`
	Messages []HistoryMessage `json:"messages"`
	Depth    int              `json:"depth"`
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleListSessions returns recorded sessions, newest first.
// Query parameters:
//   - kind (optional): "chat" or "agent"
func (s *Server) handleListSessions(c *fiber.Ctx) error {
	kind := c.Query("kind")
	if kind != "" && kind != storage.KindChat && kind != storage.KindAgent {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "kind must be chat or agent"})
	}

	sessions, err := s.driver.ListSessions(c.Context(), kind)
	if err != nil {
		s.logger.Error("failed to list sessions", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to list sessions"})
	}

	summaries := make([]SessionSummary, 0, len(sessions))
	for _, session := range sessions {
		summaries = append(summaries, summarize(session))
	}

	return c.JSON(map[string]any{
		"count":    len(summaries),
		"sessions": summaries,
	})
}

// handleGetSession returns a session with its full history.
func (s *Server) handleGetSession(c *fiber.Ctx) error {
	id := c.Params("id")

	session, err := s.driver.GetSession(c.Context(), id)
	if storage.IsNotFound(err) {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "session not found"})
	}
	if err != nil {
		s.logger.Error("failed to load session", "session_id", id, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to load session"})
	}

	turns, err := s.driver.Turns(c.Context(), id)
	if err != nil {
		s.logger.Error("failed to load turns", "session_id", id, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to load turns"})
	}

	return c.JSON(buildHistory(session, turns))
}

// handleDeleteSession forgets a session and its turns.
func (s *Server) handleDeleteSession(c *fiber.Ctx) error {
	err := s.driver.DeleteSession(c.Context(), c.Params("id"))
	if storage.IsNotFound(err) {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "session not found"})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to delete session"})
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func summarize(session *storage.Session) SessionSummary {
	collections := session.Collections
	if collections == nil {
		collections = []string{}
	}

	return SessionSummary{
		ID:              session.ID,
		Kind:            session.Kind,
		AgentID:         session.AgentID,
		RemoteSessionID: session.RemoteSessionID,
		Title:           session.Title,
		Model:           session.Model,
		Collections:     collections,
		CreatedAt:       session.CreatedAt,
		UpdatedAt:       session.UpdatedAt,
	}
}

// buildHistory constructs a HistoryResponse for a session.
func buildHistory(session *storage.Session, turns []*storage.Turn) *HistoryResponse {
	messages := make([]HistoryMessage, 0, len(turns))
	for _, t := range turns {
		messages = append(messages, HistoryMessage{
			Seq:          t.Seq,
			Role:         t.Role,
			Content:      t.Content,
			FinishReason: t.FinishReason,
			Sources:      t.Sources,
			CreatedAt:    t.CreatedAt,
		})
	}

	return &HistoryResponse{
		Session:  summarize(session),
		Messages: messages,
		Depth:    len(messages),
	}
}
