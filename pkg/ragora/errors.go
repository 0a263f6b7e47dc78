package ragora

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/papercomputeco/ragora/pkg/record"
)

var (
	// ErrMissingAPIKey is returned by NewClient for an empty key.
	ErrMissingAPIKey = errors.New("ragora: missing API key")

	// ErrTimeout is the cause recorded when a call exceeds its deadline
	// before a response arrives.
	ErrTimeout = errors.New("ragora: request timed out")

	// ErrStreamIdle is the cause recorded when an open stream receives no
	// bytes for longer than the configured timeout.
	ErrStreamIdle = errors.New("ragora: stream idle timeout")
)

// Error is a non-2xx response from the Ragora API.
type Error struct {
	StatusCode int
	Code       string
	Message    string
	RequestID  string
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "ragora: %d", e.StatusCode)
	if e.Code != "" {
		b.WriteString(" " + e.Code)
	}
	if e.Message != "" {
		b.WriteString(": " + e.Message)
	}
	if e.RequestID != "" {
		b.WriteString(" (request_id=" + e.RequestID + ")")
	}
	return b.String()
}

// Temporary reports whether the request may succeed if sent again later.
func (e *Error) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	return hasStatus(err, http.StatusNotFound)
}

// IsUnauthorized reports whether err is a 401 or 403 from the API.
func IsUnauthorized(err error) bool {
	return hasStatus(err, http.StatusUnauthorized) || hasStatus(err, http.StatusForbidden)
}

// IsRateLimited reports whether err is a 429 from the API.
func IsRateLimited(err error) bool {
	return hasStatus(err, http.StatusTooManyRequests)
}

// IsInsufficientCredits reports whether err is a 402 from the API.
func IsInsufficientCredits(err error) bool {
	return hasStatus(err, http.StatusPaymentRequired)
}

func hasStatus(err error, status int) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}

// checkResponse converts a non-2xx response into an *Error. The body is
// consumed but not closed.
func checkResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	apiErr := &Error{
		StatusCode: resp.StatusCode,
		RequestID:  firstHeader(resp.Header, "X-Request-Id", "Request-Id"),
	}

	apiErr.Code, apiErr.Message = parseErrorBody(body)
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}

	return apiErr
}

// parseErrorBody understands the error envelopes the API has used:
// {"error":{"message","code"}}, {"error":"..."}, {"detail":"..."} and
// {"message":"...","code":"..."}.
func parseErrorBody(body []byte) (code, message string) {
	if !json.Valid(body) {
		return "", ""
	}

	payload, err := record.Parse(body)
	if err != nil {
		return "", ""
	}

	if nested, ok := record.AsRecord(payload["error"]); ok {
		return record.String(nested["code"]), record.String(nested["message"])
	}

	code = record.String(payload["code"])
	for _, key := range []string{"error", "detail", "message"} {
		if msg := record.String(payload[key]); msg != "" {
			return code, msg
		}
	}

	// FastAPI-style validation errors carry a list under "detail".
	if details := record.Records(payload["detail"]); len(details) > 0 {
		return code, record.String(details[0]["msg"])
	}

	return code, ""
}

func firstHeader(h http.Header, keys ...string) string {
	for _, k := range keys {
		if v := h.Get(k); v != "" {
			return v
		}
	}
	return ""
}
