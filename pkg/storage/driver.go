// Package storage persists local chat and agent sessions so conversations can
// be listed, replayed and resumed across CLI runs and relay restarts.
package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/ragora/pkg/ragora"
)

// Session kinds.
const (
	KindChat  = "chat"
	KindAgent = "agent"
)

// Session is one local conversation.
type Session struct {
	ID   string
	Kind string

	// AgentID is set for agent sessions.
	AgentID string

	// RemoteSessionID is the session the Ragora API assigned to an agent
	// conversation; chat sessions have none.
	RemoteSessionID string

	Model       string
	Collections []string
	Title       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewSession returns a session with a fresh ID and timestamps.
func NewSession(kind string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:        uuid.NewString(),
		Kind:      kind,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Turn is one message of a session.
type Turn struct {
	SessionID string

	// Seq is assigned by AppendTurns, starting at 1.
	Seq int

	Role         string
	Content      string
	FinishReason string
	Sources      []ragora.SearchResult
	CreatedAt    time.Time
}

// Messages converts turns into a chat history for the next request.
func Messages(turns []*Turn) []ragora.Message {
	out := make([]ragora.Message, 0, len(turns))
	for _, t := range turns {
		out = append(out, ragora.Message{Role: t.Role, Content: t.Content})
	}
	return out
}

// Driver defines the interface for persisting and retrieving sessions in a
// storage backend.
type Driver interface {
	// PutSession inserts or replaces a session. CreatedAt of an existing
	// session is preserved.
	PutSession(ctx context.Context, s *Session) error

	// GetSession retrieves a session by ID.
	GetSession(ctx context.Context, id string) (*Session, error)

	// LatestSession returns the most recently updated session of a kind.
	// A non-empty agentID narrows the search to that agent.
	LatestSession(ctx context.Context, kind, agentID string) (*Session, error)

	// ListSessions returns sessions, most recently updated first. An empty
	// kind lists every session.
	ListSessions(ctx context.Context, kind string) ([]*Session, error)

	// DeleteSession removes a session and its turns.
	DeleteSession(ctx context.Context, id string) error

	// AppendTurns adds turns to existing sessions in order, assigning each
	// its Seq and bumping the session's UpdatedAt. Either every turn is
	// stored or none is.
	AppendTurns(ctx context.Context, turns ...*Turn) error

	// Turns returns a session's turns in order.
	Turns(ctx context.Context, sessionID string) ([]*Turn, error)

	// Close closes the store and releases any resources.
	Close() error
}
