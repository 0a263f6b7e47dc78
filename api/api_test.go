package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/ragora/api/mcp"
	"github.com/papercomputeco/ragora/pkg/logger"
	"github.com/papercomputeco/ragora/pkg/ragora"
	"github.com/papercomputeco/ragora/pkg/storage"
	"github.com/papercomputeco/ragora/pkg/storage/inmemory"
)

// doRequest runs a request through the fiber app and decodes a JSON body
// into out when out is non-nil.
func doRequest(s *Server, method, target string, out any) *http.Response {
	resp, err := s.app.Test(httptest.NewRequest(method, target, nil), -1)
	Expect(err).NotTo(HaveOccurred())
	if out != nil {
		defer resp.Body.Close()
		Expect(json.NewDecoder(resp.Body).Decode(out)).To(Succeed())
	}
	return resp
}

var _ = Describe("Server", func() {
	var (
		server *Server
		driver *inmemory.Driver
		ctx    context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		driver = inmemory.NewDriver()

		var err error
		server, err = NewServer(Config{ListenAddr: ":0"}, driver, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
	})

	It("requires a driver and a logger", func() {
		_, err := NewServer(Config{}, nil, logger.Nop())
		Expect(err).To(MatchError("storage driver is required"))
		_, err = NewServer(Config{}, driver, nil)
		Expect(err).To(MatchError("logger is required"))
	})

	It("answers ping", func() {
		var body string
		resp := doRequest(server, http.MethodGet, "/ping", &body)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(body).To(Equal("pong"))
	})

	Describe("sessions", func() {
		var chat *storage.Session

		BeforeEach(func() {
			chat = storage.NewSession(storage.KindChat)
			chat.Title = "greetings"
			Expect(driver.PutSession(ctx, chat)).To(Succeed())
			Expect(driver.AppendTurns(ctx, &storage.Turn{SessionID: chat.ID, Role: ragora.RoleUser, Content: "hi"})).To(Succeed())
			Expect(driver.AppendTurns(ctx, &storage.Turn{
				SessionID:    chat.ID,
				Role:         ragora.RoleAssistant,
				Content:      "hello",
				FinishReason: "stop",
				Sources:      []ragora.SearchResult{{ID: "c1", Score: 0.5}},
			})).To(Succeed())

			agent := storage.NewSession(storage.KindAgent)
			agent.AgentID = "agt_1"
			Expect(driver.PutSession(ctx, agent)).To(Succeed())
		})

		It("lists every session", func() {
			var body struct {
				Count    int              `json:"count"`
				Sessions []SessionSummary `json:"sessions"`
			}
			resp := doRequest(server, http.MethodGet, "/v1/sessions", &body)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(body.Count).To(Equal(2))
		})

		It("filters by kind", func() {
			var body struct {
				Sessions []SessionSummary `json:"sessions"`
			}
			doRequest(server, http.MethodGet, "/v1/sessions?kind=agent", &body)
			Expect(body.Sessions).To(HaveLen(1))
			Expect(body.Sessions[0].AgentID).To(Equal("agt_1"))
		})

		It("rejects an unknown kind", func() {
			resp := doRequest(server, http.MethodGet, "/v1/sessions?kind=other", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("returns a session history in order", func() {
			var history HistoryResponse
			resp := doRequest(server, http.MethodGet, "/v1/sessions/"+chat.ID, &history)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(history.Session.Title).To(Equal("greetings"))
			Expect(history.Depth).To(Equal(2))
			Expect(history.Messages[0].Role).To(Equal("user"))
			Expect(history.Messages[1].Seq).To(Equal(2))
			Expect(history.Messages[1].Sources).To(HaveLen(1))
		})

		It("returns 404 for unknown sessions", func() {
			resp := doRequest(server, http.MethodGet, "/v1/sessions/nope", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("deletes a session", func() {
			resp := doRequest(server, http.MethodDelete, "/v1/sessions/"+chat.ID, nil)
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))

			_, err := driver.GetSession(ctx, chat.ID)
			Expect(storage.IsNotFound(err)).To(BeTrue())

			resp = doRequest(server, http.MethodDelete, "/v1/sessions/"+chat.ID, nil)
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("MCP mount", func() {
		It("is absent without a handler", func() {
			resp := doRequest(server, http.MethodPost, "/mcp", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("serves the MCP handler when configured", func() {
			mcpServer, err := mcp.NewServer(mcp.Config{Noop: true})
			Expect(err).NotTo(HaveOccurred())

			withMCP, err := NewServer(Config{MCPHandler: mcpServer.Handler()}, driver, logger.Nop())
			Expect(err).NotTo(HaveOccurred())

			init := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18","capabilities":{},"clientInfo":{"name":"t","version":"0"}}}`
			req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(init))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Accept", "application/json, text/event-stream")

			resp, err := withMCP.app.Test(req, -1)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(ContainSubstring(`"serverInfo"`))
			Expect(string(body)).To(ContainSubstring(`"ragora"`))
		})
	})
})
