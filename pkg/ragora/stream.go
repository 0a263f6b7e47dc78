package ragora

import (
	"github.com/papercomputeco/ragora/pkg/record"
	"github.com/papercomputeco/ragora/pkg/sse"
)

// Event names Ragora adds to the OpenAI-style chunk stream.
const (
	EventMetadata = "ragora_metadata"
	EventComplete = "ragora_complete"

	// doneSentinel is the payload of the final frame.
	doneSentinel = "[DONE]"
)

// StreamChunk is one unit of incremental chat output.
type StreamChunk struct {
	Content string `json:"content"`

	// FinishReason is empty until the model stops.
	FinishReason string `json:"finish_reason,omitempty"`

	// Sources is never nil.
	Sources []SearchResult `json:"sources"`
}

// frameResult is the outcome of interpreting a single frame.
type frameResult struct {
	chunk StreamChunk
	emit  bool

	// done is set by the [DONE] sentinel.
	done bool

	// sessionID is reported by agent streams in their payloads.
	sessionID string

	// err is a tolerated protocol error: the frame is dropped.
	err error
}

// interpretFrame maps one frame to at most one chunk. Malformed payloads,
// missing fields and unknown event names never fail the stream; they only
// produce no output.
func interpretFrame(f sse.Frame) frameResult {
	data := f.Data()

	if data == doneSentinel {
		return frameResult{done: true}
	}
	if data == "" {
		return frameResult{}
	}

	payload, err := record.Parse([]byte(data))
	if err != nil {
		return frameResult{err: err}
	}

	res := frameResult{
		sessionID: record.String(payload["session_id"]),
	}
	sources := sourcesFromPayload(payload)

	switch f.EventName {
	case EventMetadata, EventComplete:
		if len(sources) > 0 {
			res.chunk = StreamChunk{Sources: sources}
			res.emit = true
		}
		return res
	}

	// Everything else, including unknown event names, is a content delta.
	var content, finishReason string
	if first, ok := record.First(payload["choices"]); ok {
		if choice, ok := record.AsRecord(first); ok {
			delta, _ := record.Path(choice, "delta", "content")
			content = record.String(delta)
			finishReason = record.String(choice["finish_reason"])
		}
	}

	if content == "" && finishReason == "" && len(sources) == 0 {
		return res
	}

	res.chunk = StreamChunk{
		Content:      content,
		FinishReason: finishReason,
		Sources:      sources,
	}
	res.emit = true
	return res
}

// StreamSummary accumulates a stream into the complete answer.
type StreamSummary struct {
	Content      string
	FinishReason string
	Sources      []SearchResult
}

// Add folds chunk into the summary. Sources are de-duplicated by ID.
func (s *StreamSummary) Add(chunk StreamChunk) {
	s.Content += chunk.Content
	if chunk.FinishReason != "" {
		s.FinishReason = chunk.FinishReason
	}

	for _, src := range chunk.Sources {
		if src.ID != "" && s.hasSource(src.ID) {
			continue
		}
		s.Sources = append(s.Sources, src)
	}
}

func (s *StreamSummary) hasSource(id string) bool {
	for _, existing := range s.Sources {
		if existing.ID == id {
			return true
		}
	}
	return false
}
