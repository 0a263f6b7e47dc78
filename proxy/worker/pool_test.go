package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/ragora/pkg/eventstream"
	"github.com/papercomputeco/ragora/pkg/logger"
	"github.com/papercomputeco/ragora/pkg/ragora"
	"github.com/papercomputeco/ragora/pkg/storage"
	"github.com/papercomputeco/ragora/pkg/storage/inmemory"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []*eventstream.TurnCompletedEvent
	err    error
}

func (r *recordingPublisher) PublishTurn(_ context.Context, event *eventstream.TurnCompletedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, event)
	return nil
}

func (r *recordingPublisher) Close() error { return nil }

func (r *recordingPublisher) Events() []*eventstream.TurnCompletedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*eventstream.TurnCompletedEvent(nil), r.events...)
}

func chatSession(id string) *storage.Session {
	s := storage.NewSession(storage.KindChat)
	s.ID = id
	s.Model = "ragora-default"
	s.Collections = []string{"col_1"}
	return s
}

var _ = Describe("Worker Pool", func() {
	var (
		wp        *Pool
		driver    *inmemory.Driver
		publisher *recordingPublisher
		ctx       context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		driver = inmemory.NewDriver()
		publisher = &recordingPublisher{}

		var err error
		wp, err = NewPool(&Config{
			Driver:    driver,
			Publisher: publisher,
			Source:    eventstream.EventSource{Service: "ragora-relay"},
			Logger:    logger.Nop(),
		})
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		wp.Close()
	})

	It("requires a storage driver", func() {
		_, err := NewPool(&Config{})
		Expect(err).To(HaveOccurred())
	})

	Describe("Enqueue", func() {
		It("returns true when the queue has capacity", func() {
			Expect(wp.Enqueue(Job{Session: chatSession("s1"), Question: "q", Answer: "a"})).To(BeTrue())
		})

		It("rejects jobs without a session", func() {
			Expect(wp.Enqueue(Job{Question: "q"})).To(BeFalse())
		})

		It("rejects jobs after Close", func() {
			wp.Close()
			Expect(wp.Enqueue(Job{Session: chatSession("s1")})).To(BeFalse())
		})

		It("drops jobs when the queue is full", func() {
			blocking := &blockingDriver{Driver: inmemory.NewDriver(), release: make(chan struct{})}
			small, err := NewPool(&Config{Driver: blocking, NumWorkers: 1, QueueSize: 1, Logger: logger.Nop()})
			Expect(err).NotTo(HaveOccurred())

			Expect(small.Enqueue(Job{Session: chatSession("a")})).To(BeTrue())
			Eventually(blocking.Entered).Should(BeTrue())
			Expect(small.Enqueue(Job{Session: chatSession("a")})).To(BeTrue())
			Expect(small.Enqueue(Job{Session: chatSession("a")})).To(BeFalse())

			close(blocking.release)
			small.Close()
		})
	})

	Describe("recording turns", func() {
		It("creates the session and appends the question and answer", func() {
			started := time.Now().UTC().Add(-time.Second)
			wp.Enqueue(Job{
				Session:      chatSession("s1"),
				Question:     "What is Ragora?\nExplain briefly.",
				Answer:       "A retrieval API.",
				FinishReason: "stop",
				Sources:      []ragora.SearchResult{{ID: "c1", Content: "chunk", Score: 0.8}},
				Path:         "/v1/chat/stream",
				StartedAt:    started,
				CompletedAt:  started.Add(time.Second),
				Streaming:    true,
				HTTPStatus:   200,
			})
			wp.Close()

			session, err := driver.GetSession(ctx, "s1")
			Expect(err).NotTo(HaveOccurred())
			Expect(session.Title).To(Equal("What is Ragora? Explain briefly."))
			Expect(session.Collections).To(Equal([]string{"col_1"}))

			turns, err := driver.Turns(ctx, "s1")
			Expect(err).NotTo(HaveOccurred())
			Expect(turns).To(HaveLen(2))
			Expect(turns[0].Role).To(Equal(ragora.RoleUser))
			Expect(turns[1].Role).To(Equal(ragora.RoleAssistant))
			Expect(turns[1].FinishReason).To(Equal("stop"))
			Expect(turns[1].Sources).To(HaveLen(1))
		})

		It("keeps turns of one session in enqueue order", func() {
			for i := range 20 {
				wp.Enqueue(Job{
					Session:  chatSession("ordered"),
					Question: fmt.Sprintf("q%d", i),
					Answer:   fmt.Sprintf("a%d", i),
				})
			}
			wp.Close()

			turns, err := driver.Turns(ctx, "ordered")
			Expect(err).NotTo(HaveOccurred())
			Expect(turns).To(HaveLen(40))
			for i := range 20 {
				Expect(turns[2*i].Content).To(Equal(fmt.Sprintf("q%d", i)))
				Expect(turns[2*i+1].Content).To(Equal(fmt.Sprintf("a%d", i)))
			}
		})

		It("refreshes the remote session id of an existing session", func() {
			agent := storage.NewSession(storage.KindAgent)
			agent.ID = "local"
			agent.AgentID = "agt_1"
			Expect(driver.PutSession(ctx, agent)).To(Succeed())

			next := *agent
			next.RemoteSessionID = "sess_remote"
			wp.Enqueue(Job{Session: &next, Question: "hi", Answer: "hello"})
			wp.Close()

			stored, err := driver.GetSession(ctx, "local")
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.RemoteSessionID).To(Equal("sess_remote"))
		})

		It("writes model and collection overrides back to an existing session", func() {
			Expect(driver.PutSession(ctx, chatSession("s1"))).To(Succeed())

			next := chatSession("s1")
			next.Model = "gpt-4o-mini"
			next.Collections = []string{"col_2", "col_3"}
			wp.Enqueue(Job{Session: next, Question: "hi", Answer: "hello"})
			wp.Close()

			stored, err := driver.GetSession(ctx, "s1")
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Model).To(Equal("gpt-4o-mini"))
			Expect(stored.Collections).To(Equal([]string{"col_2", "col_3"}))
		})

		It("leaves an existing session alone when the job changes nothing", func() {
			stored := chatSession("s1")
			stored.Title = "kept"
			Expect(driver.PutSession(ctx, stored)).To(Succeed())

			same := chatSession("s1")
			same.Model = ""
			same.Collections = nil
			Expect(mergeSession(stored, same)).To(BeFalse())
			Expect(stored.Model).To(Equal("ragora-default"))
			Expect(stored.Collections).To(Equal([]string{"col_1"}))
		})

		It("stores no half turn when the store refuses the exchange", func() {
			failing := &failingDriver{Driver: inmemory.NewDriver()}
			pool, err := NewPool(&Config{Driver: failing, Logger: logger.Nop()})
			Expect(err).NotTo(HaveOccurred())

			pool.Enqueue(Job{Session: chatSession("s1"), Question: "q", Answer: "a"})
			pool.Close()

			turns, err := failing.Turns(ctx, "s1")
			Expect(err).NotTo(HaveOccurred())
			Expect(turns).To(BeEmpty())
		})
	})

	Describe("publishing", func() {
		It("publishes one event per recorded job", func() {
			wp.Enqueue(Job{Session: chatSession("s1"), Question: "q", Answer: "a", FinishReason: "stop"})
			wp.Close()

			events := publisher.Events()
			Expect(events).To(HaveLen(1))
			Expect(events[0].EventType).To(Equal(eventstream.EventTypeTurnCompleted))
			Expect(events[0].Source.Service).To(Equal("ragora-relay"))
			Expect(events[0].Session.SessionID).To(Equal("s1"))
			Expect(events[0].Session.UserSeq).To(Equal(1))
			Expect(events[0].Session.AssistantSeq).To(Equal(2))
			Expect(events[0].Turn.Answer).To(Equal("a"))
			Expect(events[0].Turn.Model).To(Equal("ragora-default"))
		})

		It("still records turns when publishing fails", func() {
			publisher.err = errors.New("broker down")
			wp.Enqueue(Job{Session: chatSession("s1"), Question: "q", Answer: "a"})
			wp.Close()

			turns, err := driver.Turns(ctx, "s1")
			Expect(err).NotTo(HaveOccurred())
			Expect(turns).To(HaveLen(2))
		})

		It("does not publish when storage fails", func() {
			failing := &failingDriver{Driver: inmemory.NewDriver()}
			pool, err := NewPool(&Config{Driver: failing, Publisher: publisher, Logger: logger.Nop()})
			Expect(err).NotTo(HaveOccurred())

			pool.Enqueue(Job{Session: chatSession("s1"), Question: "q", Answer: "a"})
			pool.Close()

			Expect(publisher.Events()).To(BeEmpty())
		})
	})
})

// blockingDriver parks the first GetSession until release is closed.
type blockingDriver struct {
	*inmemory.Driver
	release chan struct{}

	mu      sync.Mutex
	entered bool
}

func (b *blockingDriver) GetSession(ctx context.Context, id string) (*storage.Session, error) {
	b.mu.Lock()
	first := !b.entered
	b.entered = true
	b.mu.Unlock()

	if first {
		<-b.release
	}
	return b.Driver.GetSession(ctx, id)
}

func (b *blockingDriver) Entered() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.entered
}

type failingDriver struct {
	*inmemory.Driver
}

func (f *failingDriver) AppendTurns(context.Context, ...*storage.Turn) error {
	return errors.New("disk full")
}
