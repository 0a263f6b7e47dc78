package eventstream

import (
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/ragora/pkg/ragora"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeTurnCompleted is emitted after a question and its answer have
	// been recorded.
	EventTypeTurnCompleted = "ragora.turn.completed"
)

// TurnCompletedEvent is a transport-neutral event payload for a completed turn.
type TurnCompletedEvent struct {
	SchemaVersion int             `json:"schema_version"`
	EventType     string          `json:"event_type"`
	EventID       string          `json:"event_id"`
	EmittedAt     time.Time       `json:"emitted_at"`
	Source        EventSource     `json:"source"`
	RequestMeta   TurnRequestMeta `json:"request_meta"`
	Session       SessionMeta     `json:"session"`
	Turn          Turn            `json:"turn"`
}

// EventSource identifies where the turn originated.
type EventSource struct {
	// Service is the emitting component, e.g. "ragora-relay".
	Service string `json:"service"`

	// Endpoint is the Ragora API base URL the turn was answered by.
	Endpoint string `json:"endpoint"`
}

// TurnRequestMeta captures request lifecycle metadata for the event.
type TurnRequestMeta struct {
	Path        string    `json:"path,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	DurationMs  int64     `json:"duration_ms"`
	Streaming   bool      `json:"streaming"`
	HTTPStatus  int       `json:"http_status"`
}

// SessionMeta identifies the local session the turn was appended to.
type SessionMeta struct {
	SessionID       string `json:"session_id"`
	Kind            string `json:"kind"`
	AgentID         string `json:"agent_id,omitempty"`
	RemoteSessionID string `json:"remote_session_id,omitempty"`
	UserSeq         int    `json:"user_seq"`
	AssistantSeq    int    `json:"assistant_seq"`
}

// Turn is the question and the grounded answer.
type Turn struct {
	Model        string                `json:"model,omitempty"`
	Collections  []string              `json:"collections,omitempty"`
	Question     string                `json:"question"`
	Answer       string                `json:"answer"`
	FinishReason string                `json:"finish_reason,omitempty"`
	Sources      []ragora.SearchResult `json:"sources"`
}

// NewTurnCompletedEvent stamps a payload with a fresh event ID and emit time.
func NewTurnCompletedEvent(source EventSource, meta TurnRequestMeta, session SessionMeta, turn Turn) *TurnCompletedEvent {
	if turn.Sources == nil {
		turn.Sources = []ragora.SearchResult{}
	}
	if meta.DurationMs == 0 && !meta.StartedAt.IsZero() && !meta.CompletedAt.IsZero() {
		meta.DurationMs = meta.CompletedAt.Sub(meta.StartedAt).Milliseconds()
	}

	return &TurnCompletedEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeTurnCompleted,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		Source:        source,
		RequestMeta:   meta,
		Session:       session,
		Turn:          turn,
	}
}
