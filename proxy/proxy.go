// Package proxy provides a relay in front of the Ragora API that records every
// answered question in the local session store.
package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/ragora/pkg/eventstream"
	"github.com/papercomputeco/ragora/pkg/ragora"
	"github.com/papercomputeco/ragora/pkg/sse"
	"github.com/papercomputeco/ragora/pkg/storage"
	"github.com/papercomputeco/ragora/proxy/worker"
)

const (
	// SessionHeader carries the local session ID on every chat response.
	SessionHeader = "X-Ragora-Session-Id"

	// ChunkEvent names the SSE frames that carry a StreamChunk.
	ChunkEvent = "chunk"

	// ErrorEvent names the SSE frame sent when a stream fails midway.
	ErrorEvent = "error"

	doneSentinel = "[DONE]"
	serviceName  = "ragora-relay"
)

// Client is the subset of *ragora.Client the relay forwards to.
type Client interface {
	BaseURL() string
	Chat(ctx context.Context, req ragora.ChatRequest) (*ragora.ChatResponse, error)
	ChatStream(ctx context.Context, req ragora.ChatRequest) (*ragora.ChatStream, error)
	AgentChat(ctx context.Context, agentID string, req ragora.AgentChatRequest) (*ragora.AgentChatResponse, error)
	AgentChatStream(ctx context.Context, agentID string, req ragora.AgentChatRequest) (*ragora.ChatStream, error)
}

// ChatRequest is the body of the relay chat endpoints.
type ChatRequest struct {
	// SessionID continues a recorded session. Unknown IDs start a new session
	// under that ID; an empty ID starts a session with a fresh one.
	SessionID string `json:"session_id,omitempty"`

	Message       string   `json:"message"`
	CollectionIDs []string `json:"collection_ids,omitempty"`
	Model         string   `json:"model,omitempty"`
	SystemPrompt  string   `json:"system_prompt,omitempty"`
	TopK          int      `json:"top_k,omitempty"`
	Stream        bool     `json:"stream,omitempty"`
}

// ChatResponse is a complete relayed answer.
type ChatResponse struct {
	SessionID       string                `json:"session_id"`
	RemoteSessionID string                `json:"remote_session_id,omitempty"`
	Content         string                `json:"content"`
	FinishReason    string                `json:"finish_reason,omitempty"`
	Sources         []ragora.SearchResult `json:"sources"`
	Usage           *ragora.Usage         `json:"usage,omitempty"`
}

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// Proxy relays chat requests to Ragora and enqueues every completed turn for
// asynchronous recording via its worker pool.
type Proxy struct {
	config     Config
	client     Client
	driver     storage.Driver
	workerPool *worker.Pool
	logger     *slog.Logger
	server     *fiber.App
}

// New creates a new Proxy.
// The driver is injected to allow sharing with the API server.
func New(config Config, client Client, driver storage.Driver, logger *slog.Logger) (*Proxy, error) {
	if client == nil {
		return nil, errors.New("ragora client is required")
	}
	if driver == nil {
		return nil, errors.New("storage driver is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}

	wp, err := worker.NewPool(&worker.Config{
		Driver:     driver,
		Publisher:  config.Publisher,
		Source:     eventstream.EventSource{Service: serviceName, Endpoint: client.BaseURL()},
		NumWorkers: config.NumWorkers,
		QueueSize:  config.QueueSize,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create worker pool: %w", err)
	}

	app := fiber.New(fiber.Config{
		// Disable startup message for cleaner logs
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,

		// Paths, headers and params outlive the handler in recorder jobs
		// and stream goroutines, so they must not alias fasthttp's buffers.
		Immutable: true,
	})

	p := &Proxy{
		config:     config,
		client:     client,
		driver:     driver,
		workerPool: wp,
		logger:     logger,
		server:     app,
	}

	app.Get("/ping", func(c *fiber.Ctx) error { return c.JSON("pong") })
	app.Post("/v1/chat", p.handleChat)
	app.Post("/v1/chat/stream", p.handleChatStream)
	app.Post("/v1/agents/:id/chat", p.handleAgentChat)

	return p, nil
}

// Run starts the relay on the configured listening address
func (p *Proxy) Run() error {
	p.logger.Info("starting relay",
		"listen", p.config.ListenAddr,
		"upstream", p.client.BaseURL(),
	)

	return p.server.Listen(p.config.ListenAddr)
}

// RunWithListener starts the relay using the provided listener.
func (p *Proxy) RunWithListener(listener net.Listener) error {
	p.logger.Info("starting relay",
		"listen", listener.Addr().String(),
		"upstream", p.client.BaseURL(),
	)

	return p.server.Listener(listener)
}

// Close gracefully shuts down the relay and waits for the worker pool to drain
func (p *Proxy) Close() error {
	err := p.server.Shutdown()
	p.workerPool.Close()
	return err
}

// exchange is one relayed question, carried from request parsing to the
// recorder job.
type exchange struct {
	session   *storage.Session
	history   []ragora.Message
	req       ChatRequest
	path      string
	startedAt time.Time
	streaming bool
}

func (p *Proxy) handleChat(c *fiber.Ctx) error {
	return p.relayChat(c, false)
}

func (p *Proxy) handleChatStream(c *fiber.Ctx) error {
	return p.relayChat(c, true)
}

func (p *Proxy) relayChat(c *fiber.Ctx, forceStream bool) error {
	ex, err := p.begin(c, storage.KindChat, "")
	if err != nil {
		return err
	}
	ex.streaming = ex.streaming || forceStream

	collections := ex.req.CollectionIDs
	if len(collections) == 0 {
		collections = ex.session.Collections
	}
	if len(collections) == 0 {
		collections = p.config.Collections
	}
	ex.session.Collections = collections

	chatReq := ragora.ChatRequest{
		Messages:      append(ex.history, ragora.Message{Role: ragora.RoleUser, Content: ex.req.Message}),
		CollectionIDs: collections,
		Model:         ex.session.Model,
		SystemPrompt:  ex.req.SystemPrompt,
		TopK:          ex.req.TopK,
	}

	if ex.streaming {
		ctx, cancel := context.WithCancel(context.Background())
		stream, err := p.client.ChatStream(ctx, chatReq)
		if err != nil {
			cancel()
			return p.upstreamError(c, err)
		}
		return p.streamResponse(c, ex, stream, cancel)
	}

	resp, err := p.client.Chat(c.UserContext(), chatReq)
	if err != nil {
		return p.upstreamError(c, err)
	}

	out := ChatResponse{
		SessionID:    ex.session.ID,
		Content:      resp.Content(),
		FinishReason: resp.FinishReason(),
		Sources:      resp.Sources,
		Usage:        resp.Usage,
	}
	p.enqueue(ex, out.Content, out.FinishReason, out.Sources)

	return c.JSON(out)
}

func (p *Proxy) handleAgentChat(c *fiber.Ctx) error {
	agentID := c.Params("id")
	ex, err := p.begin(c, storage.KindAgent, agentID)
	if err != nil {
		return err
	}

	agentReq := ragora.AgentChatRequest{
		Message:   ex.req.Message,
		SessionID: ex.session.RemoteSessionID,
	}

	if ex.streaming {
		ctx, cancel := context.WithCancel(context.Background())
		stream, err := p.client.AgentChatStream(ctx, agentID, agentReq)
		if err != nil {
			cancel()
			return p.upstreamError(c, err)
		}
		return p.streamResponse(c, ex, stream, cancel)
	}

	resp, err := p.client.AgentChat(c.UserContext(), agentID, agentReq)
	if err != nil {
		return p.upstreamError(c, err)
	}
	ex.session.RemoteSessionID = resp.SessionID

	out := ChatResponse{
		SessionID:       ex.session.ID,
		RemoteSessionID: resp.SessionID,
		Content:         resp.Message,
		Sources:         resp.Sources,
	}
	p.enqueue(ex, out.Content, "", out.Sources)

	return c.JSON(out)
}

// begin parses the request body and resolves the local session it belongs
// to. Failures are *fiber.Error values rendered by errorHandler.
func (p *Proxy) begin(c *fiber.Ctx, kind, agentID string) (*exchange, error) {
	ex := &exchange{path: c.Path(), startedAt: time.Now().UTC()}

	if err := json.Unmarshal(c.Body(), &ex.req); err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "invalid JSON body")
	}
	if ex.req.Message == "" {
		return nil, fiber.NewError(fiber.StatusBadRequest, "message is required")
	}
	ex.streaming = ex.req.Stream
	if ex.req.SessionID == "" {
		ex.req.SessionID = c.Get(SessionHeader)
	}

	session, history, err := p.resolveSession(c.UserContext(), ex.req.SessionID, kind, agentID)
	if err != nil {
		p.logger.Error("failed to resolve session", "session_id", ex.req.SessionID, "error", err)
		return nil, fiber.NewError(fiber.StatusInternalServerError, "failed to load session")
	}
	if session.Kind != kind || (agentID != "" && session.AgentID != agentID) {
		return nil, fiber.NewError(fiber.StatusConflict, "session belongs to a different conversation")
	}
	if ex.req.Model != "" {
		session.Model = ex.req.Model
	}
	if session.Model == "" {
		session.Model = p.config.Model
	}

	ex.session = session
	ex.history = history
	c.Set(SessionHeader, session.ID)

	p.logger.Debug("relaying question",
		"session_id", session.ID,
		"kind", kind,
		"history", len(history),
		"stream", ex.streaming,
	)

	return ex, nil
}

// resolveSession loads a recorded session with its history, or starts a new
// one. Turns recorded asynchronously for an earlier answer may not be visible
// yet when questions follow each other very quickly.
func (p *Proxy) resolveSession(ctx context.Context, id, kind, agentID string) (*storage.Session, []ragora.Message, error) {
	if id != "" {
		session, err := p.driver.GetSession(ctx, id)
		switch {
		case err == nil:
			turns, err := p.driver.Turns(ctx, id)
			if err != nil {
				return nil, nil, err
			}
			return session, storage.Messages(turns), nil
		case !storage.IsNotFound(err):
			return nil, nil, err
		}
	}

	session := storage.NewSession(kind)
	if id != "" {
		session.ID = id
	}
	session.AgentID = agentID

	return session, nil, nil
}

// streamResponse re-emits the answer as SSE: one "chunk" event per
// StreamChunk, terminated by [DONE], or an "error" event if the upstream
// stream fails.
func (p *Proxy) streamResponse(c *fiber.Ctx, ex *exchange, stream *ragora.ChatStream, cancel context.CancelFunc) error {
	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")

	// io.Pipe gives per-chunk flushing with backpressure: fasthttp writes
	// each chunk to the socket as soon as it is read from the pipe.
	pr, pw := io.Pipe()
	go p.pipeStream(ex, stream, pw, cancel)

	// Unknown size (-1) triggers chunked transfer encoding in fasthttp.
	c.Context().Response.SetBodyStream(pr, -1)

	return nil
}

func (p *Proxy) pipeStream(ex *exchange, stream *ragora.ChatStream, pw *io.PipeWriter, cancel context.CancelFunc) {
	defer cancel()
	defer pw.Close()
	defer stream.Close()

	var summary ragora.StreamSummary
	for chunk, err := range stream.All() {
		if err != nil {
			p.logger.Warn("upstream stream failed", "session_id", ex.session.ID, "error", err)
			payload, _ := json.Marshal(ErrorResponse{Error: err.Error()})
			_ = sse.WriteFrame(pw, ErrorEvent, string(payload))
			return
		}

		summary.Add(chunk)
		payload, err := json.Marshal(chunk)
		if err != nil {
			continue
		}
		if err := sse.WriteFrame(pw, ChunkEvent, string(payload)); err != nil {
			p.logger.Debug("client went away mid-stream", "session_id", ex.session.ID, "error", err)
			return
		}
	}

	if err := sse.WriteFrame(pw, "", doneSentinel); err != nil {
		p.logger.Debug("client went away before [DONE]", "session_id", ex.session.ID, "error", err)
	}

	if remote := stream.SessionID(); remote != "" {
		ex.session.RemoteSessionID = remote
	}
	p.enqueue(ex, summary.Content, summary.FinishReason, summary.Sources)
}

// enqueue hands the completed turn to the recorder pool.
func (p *Proxy) enqueue(ex *exchange, answer, finishReason string, sources []ragora.SearchResult) {
	if sources == nil {
		sources = []ragora.SearchResult{}
	}

	p.workerPool.Enqueue(worker.Job{
		Session:      ex.session,
		Question:     ex.req.Message,
		Answer:       answer,
		FinishReason: finishReason,
		Sources:      sources,
		Path:         ex.path,
		StartedAt:    ex.startedAt,
		CompletedAt:  time.Now().UTC(),
		Streaming:    ex.streaming,
		HTTPStatus:   fiber.StatusOK,
	})
}

// errorHandler renders every error returned by a handler as ErrorResponse.
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	msg := "internal error"

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		msg = fe.Message
	}

	return c.Status(code).JSON(ErrorResponse{Error: msg})
}

// upstreamError writes an error response for a failed Ragora call. Errors
// returned by the API pass through with their status; everything else is a
// bad gateway, or a gateway timeout when the API never answered.
func (p *Proxy) upstreamError(c *fiber.Ctx, err error) error {
	p.logger.Error("upstream request failed", "path", c.Path(), "error", err)

	var apiErr *ragora.Error
	switch {
	case errors.As(err, &apiErr):
		return c.Status(apiErr.StatusCode).JSON(ErrorResponse{Error: apiErr.Message, Code: apiErr.Code})
	case errors.Is(err, ragora.ErrTimeout):
		return c.Status(fiber.StatusGatewayTimeout).JSON(ErrorResponse{Error: "upstream request timed out"})
	default:
		return c.Status(fiber.StatusBadGateway).JSON(ErrorResponse{Error: "upstream request failed"})
	}
}
