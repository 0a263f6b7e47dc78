package ragora

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/papercomputeco/ragora/pkg/sse"
)

// readBufferSize is the size of a single transport read.
const readBufferSize = 32 * 1024

// ChatStream is a pull-based cursor over a streamed chat response.
//
//	stream, err := client.ChatStream(ctx, req)
//	if err != nil { ... }
//	defer stream.Close()
//	for stream.Next() {
//		fmt.Print(stream.Current().Content)
//	}
//	if err := stream.Err(); err != nil { ... }
//
// Each call to Next reads from the response body as needed, feeds the SSE
// decoder, interprets every completed frame and queues the resulting chunks,
// which are then handed out one at a time. The response body is closed as
// soon as the stream ends ([DONE], end of body or a transport error) and on
// Close, so abandoning a stream early never leaks the connection as long as
// Close is called.
//
// A ChatStream is not safe for concurrent use.
type ChatStream struct {
	body    io.ReadCloser
	ctx     context.Context
	live    *liveness
	decoder *sse.Decoder
	logger  *slog.Logger

	buf       []byte
	queue     []StreamChunk
	cur       StreamChunk
	sessionID string
	err       error

	finished bool
	released bool
	closeErr error
}

func newChatStream(ctx context.Context, body io.ReadCloser, live *liveness, logger *slog.Logger) *ChatStream {
	return &ChatStream{
		body:    body,
		ctx:     ctx,
		live:    live,
		decoder: sse.NewDecoder(),
		logger:  logger,
		buf:     make([]byte, readBufferSize),
	}
}

// Next advances to the next chunk. It returns false once the stream is
// exhausted or failed; check Err to tell the two apart.
func (s *ChatStream) Next() bool {
	for {
		if len(s.queue) > 0 {
			s.cur = s.queue[0]
			s.queue = s.queue[1:]
			return true
		}
		if s.finished {
			s.release()
			return false
		}
		s.pull()
	}
}

// Current returns the chunk Next advanced to.
func (s *ChatStream) Current() StreamChunk {
	return s.cur
}

// Err returns the transport error that ended the stream, if any. Reaching
// [DONE] or the end of the body is not an error.
func (s *ChatStream) Err() error {
	return s.err
}

// SessionID returns the agent session reported by the server so far, or the
// session the request was sent with.
func (s *ChatStream) SessionID() string {
	return s.sessionID
}

// Close releases the response body. It is safe to call more than once and
// after the stream has ended on its own.
func (s *ChatStream) Close() error {
	s.finished = true
	s.queue = nil
	s.release()
	return s.closeErr
}

// All adapts the stream to a range-over-func iterator. A transport error is
// yielded once as the final element. The stream is closed when the loop
// ends, including on an early break.
func (s *ChatStream) All() iter.Seq2[StreamChunk, error] {
	return func(yield func(StreamChunk, error) bool) {
		defer s.Close()

		for s.Next() {
			if !yield(s.Current(), nil) {
				return
			}
		}
		if err := s.Err(); err != nil {
			yield(StreamChunk{}, err)
		}
	}
}

// Collect drains the stream into a summary and closes it.
func (s *ChatStream) Collect() (*StreamSummary, error) {
	summary := &StreamSummary{}
	for chunk, err := range s.All() {
		if err != nil {
			return summary, err
		}
		summary.Add(chunk)
	}
	return summary, nil
}

// pull performs one transport read and dispatches every frame it completed.
func (s *ChatStream) pull() {
	n, err := s.body.Read(s.buf)
	if n > 0 {
		s.live.touch()
		s.dispatch(s.decoder.Feed(s.buf[:n]))
	}

	switch {
	case s.finished:
		// [DONE] arrived; anything left on the wire is ignored.
	case err == nil:
		return
	case errors.Is(err, io.EOF):
		s.dispatch(s.decoder.Close())
		s.finished = true
	default:
		s.err = s.readError(err)
		s.finished = true
	}

	s.release()
}

// dispatch interprets frames in order, stopping at the [DONE] sentinel.
func (s *ChatStream) dispatch(frames []sse.Frame) {
	for _, f := range frames {
		res := interpretFrame(f)

		if res.err != nil {
			s.logger.Debug("dropping malformed stream frame",
				"event", f.EventName,
				"error", res.err,
			)
		}
		if res.sessionID != "" {
			s.sessionID = res.sessionID
		}
		if res.done {
			s.finished = true
			return
		}
		if res.emit {
			s.queue = append(s.queue, res.chunk)
		}
	}
}

func (s *ChatStream) readError(err error) error {
	if cause := context.Cause(s.ctx); cause != nil {
		return fmt.Errorf("reading stream: %w", cause)
	}
	return fmt.Errorf("reading stream: %w", err)
}

// release closes the body and stops the liveness timer exactly once.
func (s *ChatStream) release() {
	if s.released {
		return
	}
	s.released = true
	s.closeErr = s.body.Close()
	s.live.stop()
}

// liveness cancels a streaming request when the server goes quiet. Before the
// response arrives the cancel cause is ErrTimeout; afterwards every read
// pushes the deadline out again and expiry is reported as ErrStreamIdle.
type liveness struct {
	timeout time.Duration
	timer   *time.Timer
	cancel  context.CancelCauseFunc
	opened  atomic.Bool
}

func startLiveness(ctx context.Context, timeout time.Duration) (context.Context, *liveness) {
	ctx, cancel := context.WithCancelCause(ctx)
	l := &liveness{
		timeout: timeout,
		cancel:  cancel,
	}

	if timeout > 0 {
		l.timer = time.AfterFunc(timeout, func() {
			if l.opened.Load() {
				cancel(ErrStreamIdle)
				return
			}
			cancel(ErrTimeout)
		})
	}

	return ctx, l
}

// open marks the response as received and restarts the deadline.
func (l *liveness) open() {
	l.opened.Store(true)
	l.touch()
}

func (l *liveness) touch() {
	if l.timer != nil {
		l.timer.Reset(l.timeout)
	}
}

func (l *liveness) stop() {
	if l.timer != nil {
		l.timer.Stop()
	}
	l.cancel(nil)
}

// openStream sends a streaming POST and returns the cursor over its body.
// Non-2xx responses are rejected here and never reach the decoder.
func (c *Client) openStream(ctx context.Context, path string, body any) (*ChatStream, error) {
	ctx, live := startLiveness(ctx, c.timeout)

	req, err := c.newRequest(ctx, http.MethodPost, path, nil, body)
	if err != nil {
		live.stop()
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		err = transportError(ctx, req, err)
		live.stop()
		return nil, err
	}

	if err := checkResponse(resp); err != nil {
		resp.Body.Close()
		live.stop()
		return nil, err
	}

	live.open()
	c.logger.Debug("ragora stream opened",
		"path", path,
		"status", resp.StatusCode,
		"content_type", resp.Header.Get("Content-Type"),
	)

	return newChatStream(ctx, resp.Body, live, c.logger), nil
}
