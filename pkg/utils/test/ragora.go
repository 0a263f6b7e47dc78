// Package testutils holds shared fakes for package tests.
package testutils

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// FakeRagora is an in-process stand-in for the Ragora API. It answers the
// endpoints the relay, MCP server and CLI use with canned data and records
// every request it sees.
type FakeRagora struct {
	Server *httptest.Server

	// Deltas are streamed one per SSE frame and joined for non-streamed chat.
	Deltas []string

	// Sources are attached to chat answers and returned from search.
	Sources []map[string]any

	// SessionID is reported by agent chats.
	SessionID string

	mu        sync.Mutex
	requests  []string
	uploads   []string
	bodies    []map[string]any
	failNext  int
	documents map[string]string
}

// NewFakeRagora starts a fake API with a short default answer.
func NewFakeRagora() *FakeRagora {
	f := &FakeRagora{
		Deltas:    []string{"Hello", ", ", "world"},
		Sources:   []map[string]any{{"id": "src_1", "content": "greeting guide", "score": 0.91}},
		SessionID: "sess_fake",
		documents: map[string]string{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/search", f.search)
	mux.HandleFunc("POST /v1/chat/completions", f.chat)
	mux.HandleFunc("POST /v1/agents/{id}/chat", f.agentChat)
	mux.HandleFunc("GET /v1/agents", f.json(`{"data":[{"id":"agt_1","name":"Helper"}],"total":1}`))
	mux.HandleFunc("POST /v1/agents", f.json(`{"id":"agt_2","name":"New Agent"}`))
	mux.HandleFunc("DELETE /v1/agents/{id}", f.noContent)
	mux.HandleFunc("DELETE /v1/agents/{id}/sessions/{sid}", f.noContent)
	mux.HandleFunc("GET /v1/agents/{id}/sessions", f.json(`{"data":[{"id":"sess_fake","agent_id":"agt_1","message_count":2}],"total":1}`))
	mux.HandleFunc("GET /v1/credits/balance", f.json(`{"balance_usd":12.5,"currency":"USD"}`))
	mux.HandleFunc("GET /v1/collections", f.json(`{"data":[{"id":"col_1","name":"Docs","document_count":2}],"total":1}`))
	mux.HandleFunc("POST /v1/collections", f.json(`{"id":"col_2","name":"New"}`))
	mux.HandleFunc("GET /v1/collections/{id}", f.json(`{"id":"col_1","name":"Docs","document_count":2}`))
	mux.HandleFunc("DELETE /v1/collections/{id}", f.noContent)
	mux.HandleFunc("GET /v1/collections/{id}/documents", f.json(`{"data":[{"id":"doc_1","filename":"a.md","status":"completed"}],"total":1}`))
	mux.HandleFunc("POST /v1/documents", f.upload)
	mux.HandleFunc("GET /v1/documents/{id}/status", f.documentStatus)
	mux.HandleFunc("DELETE /v1/documents/{id}", f.noContent)
	mux.HandleFunc("GET /v1/marketplace", f.json(`{"data":[{"id":"prd_1","slug":"go-docs","title":"Go Docs","price_usd":4.5,"seller":{"id":"s1","name":"Gopher"}}],"total":1}`))
	mux.HandleFunc("GET /v1/marketplace/{slug}", f.json(`{"id":"prd_1","slug":"go-docs","title":"Go Docs","price_usd":4.5}`))

	f.Server = httptest.NewServer(f.record(mux))
	return f
}

// URL is the base URL to point a client at.
func (f *FakeRagora) URL() string {
	return f.Server.URL
}

// Close shuts the server down.
func (f *FakeRagora) Close() {
	f.Server.Close()
}

// Answer is the full text the fake chat produces.
func (f *FakeRagora) Answer() string {
	return strings.Join(f.Deltas, "")
}

// FailNext makes the next n requests fail with 500.
func (f *FakeRagora) FailNext(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext = n
}

// Requests returns "METHOD /path" for every request received so far.
func (f *FakeRagora) Requests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

// Uploads returns the filenames of uploaded documents.
func (f *FakeRagora) Uploads() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.uploads...)
}

// LastBody returns the last JSON request body, or nil.
func (f *FakeRagora) LastBody() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.bodies) == 0 {
		return nil
	}
	return f.bodies[len(f.bodies)-1]
}

func (f *FakeRagora) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.requests = append(f.requests, r.Method+" "+r.URL.Path)
		fail := f.failNext > 0
		if fail {
			f.failNext--
		}
		f.mu.Unlock()

		if fail {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":{"message":"injected failure","code":"internal"}}`))
			return
		}

		if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
			body, _ := io.ReadAll(r.Body)
			var m map[string]any
			if json.Unmarshal(body, &m) == nil {
				f.mu.Lock()
				f.bodies = append(f.bodies, m)
				f.mu.Unlock()
			}
			r.Body = io.NopCloser(strings.NewReader(string(body)))
		}

		next.ServeHTTP(w, r)
	})
}

func (f *FakeRagora) json(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}
}

func (f *FakeRagora) noContent(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func (f *FakeRagora) search(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	writeJSON(w, map[string]any{
		"query":   req.Query,
		"results": f.Sources,
		"total":   len(f.Sources),
	})
}

func (f *FakeRagora) chat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Stream bool `json:"stream"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	if req.Stream {
		f.stream(w, "")
		return
	}

	writeJSON(w, map[string]any{
		"id":     "chat_fake",
		"object": "chat.completion",
		"model":  "fake-model",
		"choices": []any{map[string]any{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": f.Answer()},
			"finish_reason": "stop",
		}},
		"usage":        map[string]any{"prompt_tokens": 3, "completion_tokens": 3, "total_tokens": 6},
		"ragora_stats": map[string]any{"sources": f.Sources},
	})
}

func (f *FakeRagora) agentChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id"`
		Stream    bool   `json:"stream"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	session := req.SessionID
	if session == "" {
		session = f.SessionID
	}

	if req.Stream {
		f.stream(w, session)
		return
	}

	writeJSON(w, map[string]any{
		"message":    f.Answer(),
		"session_id": session,
		"sources":    f.Sources,
	})
}

// stream writes the canned answer as an SSE body, one flush per frame.
func (f *FakeRagora) stream(w http.ResponseWriter, sessionID string) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	frame := func(event string, payload any) {
		data, _ := json.Marshal(payload)
		if event != "" {
			fmt.Fprintf(w, "event: %s\n", event)
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		if flusher != nil {
			flusher.Flush()
		}
	}

	meta := map[string]any{"sources": f.Sources}
	if sessionID != "" {
		meta["session_id"] = sessionID
	}
	frame("ragora_metadata", meta)

	for _, d := range f.Deltas {
		frame("", map[string]any{"choices": []any{map[string]any{"delta": map[string]any{"content": d}}}})
	}
	frame("", map[string]any{"choices": []any{map[string]any{"delta": map[string]any{}, "finish_reason": "stop"}}})

	_, _ = io.WriteString(w, "data: [DONE]\n\n")
	if flusher != nil {
		flusher.Flush()
	}
}

func (f *FakeRagora) upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	_, hdr, err := r.FormFile("file")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.uploads = append(f.uploads, hdr.Filename)
	id := fmt.Sprintf("doc_%d", len(f.uploads))
	f.documents[id] = hdr.Filename
	f.mu.Unlock()

	writeJSON(w, map[string]any{
		"id":            id,
		"collection_id": r.FormValue("collection_id"),
		"filename":      hdr.Filename,
		"status":        "pending",
	})
}

func (f *FakeRagora) documentStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"id":          r.PathValue("id"),
		"status":      "completed",
		"progress":    1,
		"chunk_count": 3,
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
