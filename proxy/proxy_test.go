package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/ragora/pkg/eventstream"
	"github.com/papercomputeco/ragora/pkg/logger"
	"github.com/papercomputeco/ragora/pkg/ragora"
	"github.com/papercomputeco/ragora/pkg/sse"
	"github.com/papercomputeco/ragora/pkg/storage"
	"github.com/papercomputeco/ragora/pkg/storage/inmemory"
	testutils "github.com/papercomputeco/ragora/pkg/utils/test"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []*eventstream.TurnCompletedEvent
}

func (r *recordingPublisher) PublishTurn(_ context.Context, e *eventstream.TurnCompletedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingPublisher) Close() error { return nil }

func (r *recordingPublisher) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// post sends a JSON body through the relay and returns the response with its
// body fully read.
func post(p *Proxy, path string, body any) (*http.Response, string) {
	raw, err := json.Marshal(body)
	Expect(err).NotTo(HaveOccurred())

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(string(raw)))
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.server.Test(req, -1)
	Expect(err).NotTo(HaveOccurred())
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	Expect(err).NotTo(HaveOccurred())
	return resp, string(data)
}

// chunksOf decodes the "chunk" events of a relayed SSE body.
func chunksOf(body string) ([]ragora.StreamChunk, []sse.Frame) {
	d := sse.NewDecoder()
	frames := append(d.Feed([]byte(body)), d.Close()...)

	var chunks []ragora.StreamChunk
	for _, f := range frames {
		if f.EventName != ChunkEvent {
			continue
		}
		var c ragora.StreamChunk
		Expect(json.Unmarshal([]byte(f.Data()), &c)).To(Succeed())
		chunks = append(chunks, c)
	}
	return chunks, frames
}

// slowDriver delays every PutSession so recorder jobs queue up behind the
// requests that produced them.
type slowDriver struct {
	*inmemory.Driver
	delay time.Duration
}

func (s *slowDriver) PutSession(ctx context.Context, session *storage.Session) error {
	time.Sleep(s.delay)
	return s.Driver.PutSession(ctx, session)
}

// newRelay builds a relay with a single recorder worker in front of baseURL.
func newRelay(baseURL string, driver storage.Driver, opts ...ragora.Option) *Proxy {
	client, err := ragora.NewClient("test-key", append([]ragora.Option{ragora.WithBaseURL(baseURL)}, opts...)...)
	Expect(err).NotTo(HaveOccurred())

	relay, err := New(Config{Model: "ragora-default", NumWorkers: 1}, client, driver, logger.Nop())
	Expect(err).NotTo(HaveOccurred())
	return relay
}

var _ = Describe("Relay", func() {
	var (
		p         *Proxy
		fake      *testutils.FakeRagora
		driver    *inmemory.Driver
		publisher *recordingPublisher
		ctx       context.Context
	)

	turnsOf := func(id string) func() int {
		return func() int {
			turns, err := driver.Turns(ctx, id)
			if err != nil {
				return 0
			}
			return len(turns)
		}
	}

	BeforeEach(func() {
		ctx = context.Background()
		fake = testutils.NewFakeRagora()
		driver = inmemory.NewDriver()
		publisher = &recordingPublisher{}

		client, err := ragora.NewClient("test-key", ragora.WithBaseURL(fake.URL()))
		Expect(err).NotTo(HaveOccurred())

		p, err = New(Config{
			ListenAddr:  ":0",
			Collections: []string{"col_1"},
			Model:       "ragora-default",
			Publisher:   publisher,
		}, client, driver, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		p.workerPool.Close()
		fake.Close()
	})

	It("requires its collaborators", func() {
		_, err := New(Config{}, nil, driver, logger.Nop())
		Expect(err).To(MatchError("ragora client is required"))
	})

	Describe("request validation", func() {
		It("rejects invalid JSON", func() {
			req := httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader("{"))
			resp, err := p.server.Test(req, -1)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("rejects an empty message", func() {
			resp, body := post(p, "/v1/chat", ChatRequest{})
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(body).To(ContainSubstring("message is required"))
		})
	})

	Describe("POST /v1/chat", func() {
		It("relays a complete answer and records the turn", func() {
			resp, body := post(p, "/v1/chat", ChatRequest{Message: "say hello"})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var out ChatResponse
			Expect(json.Unmarshal([]byte(body), &out)).To(Succeed())
			Expect(out.Content).To(Equal("Hello, world"))
			Expect(out.FinishReason).To(Equal("stop"))
			Expect(out.Sources).To(HaveLen(1))
			Expect(out.SessionID).NotTo(BeEmpty())
			Expect(resp.Header.Get(SessionHeader)).To(Equal(out.SessionID))

			upstream := fake.LastBody()
			Expect(upstream["collection_ids"]).To(Equal([]any{"col_1"}))
			Expect(upstream["model"]).To(Equal("ragora-default"))

			Eventually(turnsOf(out.SessionID)).Should(Equal(2))
			session, err := driver.GetSession(ctx, out.SessionID)
			Expect(err).NotTo(HaveOccurred())
			Expect(session.Kind).To(Equal(storage.KindChat))
			Expect(session.Title).To(Equal("say hello"))
			Eventually(publisher.count).Should(Equal(1))
		})

		It("replays recorded history when a session continues", func() {
			_, first := post(p, "/v1/chat", ChatRequest{SessionID: "s-1", Message: "first"})
			Expect(first).To(ContainSubstring(`"session_id":"s-1"`))
			Eventually(turnsOf("s-1")).Should(Equal(2))

			post(p, "/v1/chat", ChatRequest{SessionID: "s-1", Message: "second"})
			messages, ok := fake.LastBody()["messages"].([]any)
			Expect(ok).To(BeTrue())
			Expect(messages).To(HaveLen(3))
			Expect(messages[1]).To(HaveKeyWithValue("content", "Hello, world"))
			Expect(messages[2]).To(HaveKeyWithValue("content", "second"))

			Eventually(turnsOf("s-1")).Should(Equal(4))
		})

		It("continues the session named by the session header", func() {
			resp, _ := post(p, "/v1/chat", ChatRequest{Message: "first"})
			id := resp.Header.Get(SessionHeader)
			Expect(id).NotTo(BeEmpty())
			Eventually(turnsOf(id)).Should(Equal(2))

			req := httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(`{"message":"second"}`))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set(SessionHeader, id)
			next, err := p.server.Test(req, -1)
			Expect(err).NotTo(HaveOccurred())
			next.Body.Close()

			Expect(next.Header.Get(SessionHeader)).To(Equal(id))
			Expect(fake.LastBody()["messages"]).To(HaveLen(3))
			Eventually(turnsOf(id)).Should(Equal(4))
		})

		It("passes upstream API errors through with their status", func() {
			fake.FailNext(1)
			resp, body := post(p, "/v1/chat", ChatRequest{Message: "hi"})
			Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))

			var out ErrorResponse
			Expect(json.Unmarshal([]byte(body), &out)).To(Succeed())
			Expect(out.Error).To(Equal("injected failure"))
			Expect(out.Code).To(Equal("internal"))
			Consistently(publisher.count).Should(BeZero())
		})

		It("answers 502 when the API cannot be reached", func() {
			gone := httptest.NewServer(http.NotFoundHandler())
			gone.Close()
			relay := newRelay(gone.URL, driver)
			DeferCleanup(relay.workerPool.Close)

			resp, body := post(relay, "/v1/chat", ChatRequest{Message: "hi"})
			Expect(resp.StatusCode).To(Equal(http.StatusBadGateway))
			Expect(body).To(ContainSubstring("upstream request failed"))
		})

		It("answers 504 when the API never answers", func() {
			release := make(chan struct{})
			slow := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
				select {
				case <-release:
				case <-r.Context().Done():
				}
			}))
			DeferCleanup(slow.Close)
			DeferCleanup(func() { close(release) })

			relay := newRelay(slow.URL, driver, ragora.WithTimeout(100*time.Millisecond))
			DeferCleanup(relay.workerPool.Close)

			resp, _ := post(relay, "/v1/chat", ChatRequest{Message: "hi"})
			Expect(resp.StatusCode).To(Equal(http.StatusGatewayTimeout))
		})

		It("streams when the body asks for it", func() {
			resp, body := post(p, "/v1/chat", ChatRequest{Message: "hi", Stream: true})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(body).To(HaveSuffix("data: [DONE]\n\n"))
		})
	})

	Describe("POST /v1/chat/stream", func() {
		It("re-emits chunks as SSE and records the summary", func() {
			resp, body := post(p, "/v1/chat/stream", ChatRequest{Message: "say hello"})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(HavePrefix("text/event-stream"))
			Expect(body).To(ContainSubstring("event: chunk\n"))
			Expect(body).To(HaveSuffix("data: [DONE]\n\n"))

			chunks, _ := chunksOf(body)
			Expect(chunks).NotTo(BeEmpty())
			Expect(chunks[0].Sources).To(HaveLen(1))

			var text strings.Builder
			for _, c := range chunks {
				text.WriteString(c.Content)
			}
			Expect(text.String()).To(Equal("Hello, world"))
			Expect(chunks[len(chunks)-1].FinishReason).To(Equal("stop"))

			id := resp.Header.Get(SessionHeader)
			Eventually(turnsOf(id)).Should(Equal(2))
			turns, err := driver.Turns(ctx, id)
			Expect(err).NotTo(HaveOccurred())
			Expect(turns[1].Content).To(Equal("Hello, world"))
			Expect(turns[1].FinishReason).To(Equal("stop"))
			Expect(turns[1].Sources).To(HaveLen(1))
		})

		It("answers upstream failures before streaming starts", func() {
			fake.FailNext(1)
			resp, body := post(p, "/v1/chat/stream", ChatRequest{Message: "hi"})
			Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
			Expect(body).To(ContainSubstring("injected failure"))
		})
	})

	Describe("POST /v1/agents/:id/chat", func() {
		It("records the remote session of an agent conversation", func() {
			resp, body := post(p, "/v1/agents/agt_1/chat", ChatRequest{Message: "hi"})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var out ChatResponse
			Expect(json.Unmarshal([]byte(body), &out)).To(Succeed())
			Expect(out.RemoteSessionID).To(Equal("sess_fake"))
			Expect(out.Content).To(Equal("Hello, world"))

			Eventually(turnsOf(out.SessionID)).Should(Equal(2))
			session, err := driver.GetSession(ctx, out.SessionID)
			Expect(err).NotTo(HaveOccurred())
			Expect(session.Kind).To(Equal(storage.KindAgent))
			Expect(session.AgentID).To(Equal("agt_1"))
			Expect(session.RemoteSessionID).To(Equal("sess_fake"))

			post(p, "/v1/agents/agt_1/chat", ChatRequest{SessionID: out.SessionID, Message: "again"})
			Expect(fake.LastBody()["session_id"]).To(Equal("sess_fake"))
		})

		It("takes the remote session from a streamed answer", func() {
			resp, body := post(p, "/v1/agents/agt_1/chat", ChatRequest{Message: "hi", Stream: true})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(body).To(HaveSuffix("data: [DONE]\n\n"))

			id := resp.Header.Get(SessionHeader)
			Eventually(turnsOf(id)).Should(Equal(2))
			session, err := driver.GetSession(ctx, id)
			Expect(err).NotTo(HaveOccurred())
			Expect(session.RemoteSessionID).To(Equal("sess_fake"))
		})

		It("keeps each request's session and agent while recording is backed up", func() {
			slow := &slowDriver{Driver: inmemory.NewDriver(), delay: 20 * time.Millisecond}
			relay := newRelay(fake.URL(), slow)

			agentChat := func(agentID, sessionID string) {
				req := httptest.NewRequest(http.MethodPost, "/v1/agents/"+agentID+"/chat",
					strings.NewReader(`{"message":"hi from `+agentID+`"}`))
				req.Header.Set("Content-Type", "application/json")
				req.Header.Set(SessionHeader, sessionID)
				resp, err := relay.server.Test(req, -1)
				Expect(err).NotTo(HaveOccurred())
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
			}

			for i := range 12 {
				agentChat(fmt.Sprintf("agent%02d", i), fmt.Sprintf("session%02d", i))
			}
			relay.workerPool.Close()

			sessions, err := slow.ListSessions(ctx, storage.KindAgent)
			Expect(err).NotTo(HaveOccurred())
			Expect(sessions).To(HaveLen(12))

			for i := range 12 {
				id := fmt.Sprintf("session%02d", i)
				session, err := slow.GetSession(ctx, id)
				Expect(err).NotTo(HaveOccurred())
				Expect(session.AgentID).To(Equal(fmt.Sprintf("agent%02d", i)))

				turns, err := slow.Turns(ctx, id)
				Expect(err).NotTo(HaveOccurred())
				Expect(turns).To(HaveLen(2))
				Expect(turns[0].Content).To(Equal(fmt.Sprintf("hi from agent%02d", i)))
			}
		})

		It("refuses to continue a chat session as an agent session", func() {
			chat := storage.NewSession(storage.KindChat)
			Expect(driver.PutSession(ctx, chat)).To(Succeed())

			resp, _ := post(p, "/v1/agents/agt_1/chat", ChatRequest{SessionID: chat.ID, Message: "hi"})
			Expect(resp.StatusCode).To(Equal(http.StatusConflict))
		})
	})
})
