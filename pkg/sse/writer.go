package sse

import (
	"io"
	"strings"
)

// WriteFrame encodes a single frame to w. Multi-line payloads are split into
// one "data:" line each so the receiving side rejoins them with "\n". The
// "event:" line is omitted for the default event name.
func WriteFrame(w io.Writer, eventName, data string) error {
	var b strings.Builder

	if eventName != "" && eventName != DefaultEventName {
		b.WriteString("event: ")
		b.WriteString(eventName)
		b.WriteByte('\n')
	}

	for line := range strings.SplitSeq(data, "\n") {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')

	_, err := io.WriteString(w, b.String())
	return err
}
