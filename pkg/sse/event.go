// Package sse provides a minimal, purpose-built SSE (Server-Sent Events)
// decoder for consuming Ragora streaming responses. It is fed raw byte chunks
// as they arrive from an HTTP response body and reconstructs the logical
// frames delimited by blank lines, regardless of where the transport split
// the bytes.
//
// A tiny writer is included for the relay, which re-emits decoded chunks to
// its own downstream clients.
//
// See the SSE specification:
// https://html.spec.whatwg.org/multipage/server-sent-events.html
package sse

import "strings"

// DefaultEventName is the event name of a frame with no "event:" line.
const DefaultEventName = "message"

// Frame is a single reconstructed SSE frame: an event name plus the raw
// values of its "data:" lines in arrival order.
type Frame struct {
	// EventName is the value of the "event:" field, "message" when absent.
	EventName string

	// DataLines holds the text after each "data:" prefix, leading whitespace
	// stripped.
	DataLines []string
}

// Data returns the frame payload: all data lines joined with "\n".
func (f Frame) Data() string {
	return strings.Join(f.DataLines, "\n")
}
