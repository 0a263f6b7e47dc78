// Package ragora is a Go client for the Ragora retrieval-augmented generation
// API: collections, document ingestion, vector search, chat completions
// (plain and streaming), the marketplace, credit balances and agents.
//
// Streaming chat responses are exposed as a pull-based *ChatStream that
// decodes the Server-Sent Events body incrementally.
package ragora

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/papercomputeco/ragora/pkg/logger"
	"github.com/papercomputeco/ragora/pkg/utils"
)

const (
	// DefaultBaseURL is the public Ragora API endpoint.
	DefaultBaseURL = "https://api.ragora.app"

	// DefaultTimeout bounds the time to the first response byte. For streams
	// it is also the idle limit between two reads.
	DefaultTimeout = 60 * time.Second

	// maxErrorBody caps how much of an error response body is read.
	maxErrorBody = 64 * 1024
)

// Client talks to the Ragora API. A Client is safe for concurrent use; each
// call owns its own HTTP request.
type Client struct {
	apiKey     string
	baseURL    string
	userAgent  string
	timeout    time.Duration
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a Client authenticated with apiKey.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrMissingAPIKey
	}

	c := &Client{
		apiKey:    apiKey,
		baseURL:   DefaultBaseURL,
		userAgent: utils.UserAgent(),
		timeout:   DefaultTimeout,
		// Deadlines are enforced per call with contexts, never with
		// http.Client.Timeout, which would also cut off long streams.
		httpClient: &http.Client{},
		logger:     logger.Nop(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if _, err := url.Parse(c.baseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", c.baseURL, err)
	}
	c.baseURL = strings.TrimRight(c.baseURL, "/")

	return c, nil
}

// BaseURL returns the API root the client sends requests to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// newRequest builds an authenticated request. A non-nil body is encoded as
// JSON unless it is already an io.Reader.
func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body any) (*http.Request, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var (
		reader      io.Reader
		contentType string
	)
	switch b := body.(type) {
	case nil:
	case io.Reader:
		reader = b
	default:
		payload, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(payload)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	return req, nil
}

// do sends a JSON request and decodes a JSON response into out. A nil out
// discards the response body.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, c.timeout, ErrTimeout)
		defer cancel()
	}

	req, err := c.newRequest(ctx, method, path, query, in)
	if err != nil {
		return err
	}

	return c.send(req, out)
}

// send executes req and decodes the response.
func (c *Client) send(req *http.Request, out any) error {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transportError(req.Context(), req, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("ragora request",
		"method", req.Method,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	if err := checkResponse(resp); err != nil {
		return err
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if cause := context.Cause(req.Context()); cause != nil && errors.Is(cause, ErrTimeout) {
			return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, cause)
		}
		return fmt.Errorf("decoding %s response: %w", req.URL.Path, err)
	}

	return nil
}

// transportError wraps a failed round trip, preferring the cancellation cause
// recorded on ctx (e.g. ErrTimeout) over the generic context error.
func transportError(ctx context.Context, req *http.Request, err error) error {
	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, cause)
	}
	return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
}

// listQuery renders pagination options as query parameters.
func listQuery(opts ListOptions) url.Values {
	q := url.Values{}
	if opts.Limit > 0 {
		q.Set("limit", fmt.Sprint(opts.Limit))
	}
	if opts.Offset > 0 {
		q.Set("offset", fmt.Sprint(opts.Offset))
	}
	return q
}

// escape makes an identifier safe for use as a single path segment.
func escape(id string) string {
	return url.PathEscape(id)
}
