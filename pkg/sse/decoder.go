package sse

import (
	"bytes"
	"strings"
	"unicode"
)

// Decoder turns an unbounded sequence of byte chunks into SSE frames.
//
// ┌──────────────┐    ┌──────────────────┐    ┌─────────┐
// │ []byte chunk │──▶│ Decoder.Feed()   │──▶│ []Frame │
// └──────────────┘    └──────────────────┘    └─────────┘
//
// Lines are split on raw bytes before any text conversion. A '\n' byte never
// occurs inside a multi-byte UTF-8 sequence, so a code point split across two
// chunks stays in the buffer until its line is complete.
//
// A Decoder is not safe for concurrent use; each stream owns exactly one.
type Decoder struct {
	// buf holds the trailing bytes of an incomplete line.
	buf []byte

	eventName string
	dataLines []string

	// touched is set once the pending frame has seen an event or data line.
	touched bool
}

// NewDecoder returns a Decoder ready to accept the first chunk.
func NewDecoder() *Decoder {
	return &Decoder{eventName: DefaultEventName}
}

// Feed appends chunk to the internal buffer and returns every frame
// completed by it, in arrival order. Empty chunks are allowed.
func (d *Decoder) Feed(chunk []byte) []Frame {
	if len(chunk) == 0 {
		return nil
	}
	d.buf = append(d.buf, chunk...)

	var frames []Frame
	for {
		idx := bytes.IndexByte(d.buf, '\n')
		if idx == -1 {
			break
		}

		line := strings.TrimRight(string(d.buf[:idx]), "\r")
		d.buf = d.buf[idx+1:]

		if frame, ok := d.processLine(line); ok {
			frames = append(frames, frame)
		}
	}

	// Drop the consumed prefix so the buffer does not grow without bound.
	if len(d.buf) == 0 {
		d.buf = nil
	} else if cap(d.buf) > 4*len(d.buf) {
		d.buf = append([]byte(nil), d.buf...)
	}

	return frames
}

// Close signals end of stream. Any buffered remainder is handled as one
// closing line and a pending frame is flushed, which covers servers that omit
// the final blank line. The Decoder is reset and may be reused.
func (d *Decoder) Close() []Frame {
	var frames []Frame

	if len(d.buf) > 0 {
		line := strings.TrimRight(string(d.buf), "\r")
		d.buf = nil
		if frame, ok := d.processLine(line); ok {
			frames = append(frames, frame)
		}
	}

	if d.touched {
		frames = append(frames, d.take())
	}

	return frames
}

// processLine applies a single complete line to the pending frame. It returns
// the completed frame when the line is the blank frame terminator.
func (d *Decoder) processLine(line string) (Frame, bool) {
	switch {
	case line == "":
		return d.take(), true

	case strings.HasPrefix(line, "event:"):
		name := strings.TrimSpace(line[len("event:"):])
		if name == "" {
			name = DefaultEventName
		}
		d.eventName = name
		d.touched = true

	case strings.HasPrefix(line, "data:"):
		d.dataLines = append(d.dataLines, strings.TrimLeftFunc(line[len("data:"):], unicode.IsSpace))
		d.touched = true

	default:
		// Comments (":keep-alive"), "id:", "retry:" and unknown fields are
		// not used by Ragora streams.
	}

	return Frame{}, false
}

// take returns the pending frame and resets the frame state.
func (d *Decoder) take() Frame {
	f := Frame{
		EventName: d.eventName,
		DataLines: d.dataLines,
	}
	d.eventName = DefaultEventName
	d.dataLines = nil
	d.touched = false
	return f
}
