// Package storagetest holds the behaviour every storage.Driver must share,
// written as ginkgo specs that each driver's suite runs against itself.
package storagetest

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/ragora/pkg/ragora"
	"github.com/papercomputeco/ragora/pkg/storage"
)

// DriverSpecs registers the shared driver specs. newDriver is called before
// each spec and the driver is closed after it.
func DriverSpecs(newDriver func() storage.Driver) {
	var (
		driver storage.Driver
		ctx    context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		driver = newDriver()
		DeferCleanup(func() {
			Expect(driver.Close()).To(Succeed())
		})
	})

	session := func(kind string, updated time.Time) *storage.Session {
		s := storage.NewSession(kind)
		s.CreatedAt = updated.Add(-time.Minute)
		s.UpdatedAt = updated
		return s
	}

	Describe("sessions", func() {
		It("stores and retrieves a session", func() {
			s := storage.NewSession(storage.KindAgent)
			s.AgentID = "agt_1"
			s.RemoteSessionID = "remote_1"
			s.Model = "m"
			s.Collections = []string{"col_1", "col_2"}
			s.Title = "hello"
			Expect(driver.PutSession(ctx, s)).To(Succeed())

			got, err := driver.GetSession(ctx, s.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Kind).To(Equal(storage.KindAgent))
			Expect(got.AgentID).To(Equal("agt_1"))
			Expect(got.RemoteSessionID).To(Equal("remote_1"))
			Expect(got.Model).To(Equal("m"))
			Expect(got.Collections).To(Equal([]string{"col_1", "col_2"}))
			Expect(got.Title).To(Equal("hello"))
			Expect(got.CreatedAt).To(BeTemporally("~", s.CreatedAt, time.Millisecond))
		})

		It("returns NotFoundError for a missing session", func() {
			_, err := driver.GetSession(ctx, "missing")
			Expect(storage.IsNotFound(err)).To(BeTrue())
			Expect(err).To(MatchError(storage.NotFoundError{ID: "missing"}))
		})

		It("replaces a session but keeps its creation time", func() {
			s := storage.NewSession(storage.KindChat)
			created := s.CreatedAt
			Expect(driver.PutSession(ctx, s)).To(Succeed())

			s.Title = "renamed"
			s.CreatedAt = created.Add(time.Hour)
			s.UpdatedAt = created.Add(2 * time.Hour)
			Expect(driver.PutSession(ctx, s)).To(Succeed())

			got, err := driver.GetSession(ctx, s.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Title).To(Equal("renamed"))
			Expect(got.CreatedAt).To(BeTemporally("~", created, time.Millisecond))
			Expect(got.UpdatedAt).To(BeTemporally("~", created.Add(2*time.Hour), time.Millisecond))
		})

		It("rejects nil", func() {
			Expect(driver.PutSession(ctx, nil)).To(MatchError(storage.ErrNilSession))
			Expect(driver.AppendTurns(ctx, nil)).To(MatchError(storage.ErrNilSession))
		})

		It("lists sessions newest first, filtered by kind", func() {
			base := time.Now().UTC().Truncate(time.Second)
			old := session(storage.KindChat, base.Add(-time.Hour))
			recent := session(storage.KindChat, base)
			agent := session(storage.KindAgent, base.Add(time.Minute))
			for _, s := range []*storage.Session{old, recent, agent} {
				Expect(driver.PutSession(ctx, s)).To(Succeed())
			}

			chats, err := driver.ListSessions(ctx, storage.KindChat)
			Expect(err).NotTo(HaveOccurred())
			Expect(chats).To(HaveLen(2))
			Expect(chats[0].ID).To(Equal(recent.ID))
			Expect(chats[1].ID).To(Equal(old.ID))

			all, err := driver.ListSessions(ctx, "")
			Expect(err).NotTo(HaveOccurred())
			Expect(all).To(HaveLen(3))
			Expect(all[0].ID).To(Equal(agent.ID))
		})

		It("finds the latest session of a kind and agent", func() {
			base := time.Now().UTC().Truncate(time.Second)
			a1 := session(storage.KindAgent, base)
			a1.AgentID = "agt_1"
			a2 := session(storage.KindAgent, base.Add(time.Minute))
			a2.AgentID = "agt_2"
			for _, s := range []*storage.Session{a1, a2} {
				Expect(driver.PutSession(ctx, s)).To(Succeed())
			}

			got, err := driver.LatestSession(ctx, storage.KindAgent, "")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal(a2.ID))

			got, err = driver.LatestSession(ctx, storage.KindAgent, "agt_1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal(a1.ID))

			_, err = driver.LatestSession(ctx, storage.KindChat, "")
			Expect(storage.IsNotFound(err)).To(BeTrue())
		})

		It("deletes a session with its turns", func() {
			s := storage.NewSession(storage.KindChat)
			Expect(driver.PutSession(ctx, s)).To(Succeed())
			Expect(driver.AppendTurns(ctx, &storage.Turn{SessionID: s.ID, Role: ragora.RoleUser, Content: "hi"})).To(Succeed())

			Expect(driver.DeleteSession(ctx, s.ID)).To(Succeed())

			_, err := driver.GetSession(ctx, s.ID)
			Expect(storage.IsNotFound(err)).To(BeTrue())
			_, err = driver.Turns(ctx, s.ID)
			Expect(storage.IsNotFound(err)).To(BeTrue())

			Expect(storage.IsNotFound(driver.DeleteSession(ctx, s.ID))).To(BeTrue())
		})
	})

	Describe("turns", func() {
		var s *storage.Session

		BeforeEach(func() {
			s = session(storage.KindChat, time.Now().UTC().Add(-time.Hour))
			Expect(driver.PutSession(ctx, s)).To(Succeed())
		})

		It("assigns sequence numbers in append order", func() {
			user := &storage.Turn{SessionID: s.ID, Role: ragora.RoleUser, Content: "what is go?"}
			asst := &storage.Turn{
				SessionID:    s.ID,
				Role:         ragora.RoleAssistant,
				Content:      "a language",
				FinishReason: "stop",
				Sources: []ragora.SearchResult{{
					ID: "src_1", Content: "go.dev", Score: 0.9, Metadata: map[string]any{"page": 1.0},
				}},
			}
			Expect(driver.AppendTurns(ctx, user)).To(Succeed())
			Expect(driver.AppendTurns(ctx, asst)).To(Succeed())
			Expect(user.Seq).To(Equal(1))
			Expect(asst.Seq).To(Equal(2))

			turns, err := driver.Turns(ctx, s.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(turns).To(HaveLen(2))
			Expect(turns[0].Content).To(Equal("what is go?"))
			Expect(turns[0].Sources).To(BeEmpty())
			Expect(turns[1].FinishReason).To(Equal("stop"))
			Expect(turns[1].Sources).To(HaveLen(1))
			Expect(turns[1].Sources[0].ID).To(Equal("src_1"))
			Expect(turns[1].Sources[0].Metadata).To(HaveKeyWithValue("page", 1.0))

			Expect(storage.Messages(turns)).To(Equal([]ragora.Message{
				{Role: ragora.RoleUser, Content: "what is go?"},
				{Role: ragora.RoleAssistant, Content: "a language"},
			}))
		})

		It("bumps the session's update time", func() {
			Expect(driver.AppendTurns(ctx, &storage.Turn{SessionID: s.ID, Role: ragora.RoleUser, Content: "hi"})).To(Succeed())

			got, err := driver.GetSession(ctx, s.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.UpdatedAt).To(BeTemporally(">", s.UpdatedAt))
		})

		It("appends several turns at once", func() {
			user := &storage.Turn{SessionID: s.ID, Role: ragora.RoleUser, Content: "q"}
			asst := &storage.Turn{SessionID: s.ID, Role: ragora.RoleAssistant, Content: "a"}
			Expect(driver.AppendTurns(ctx, user, asst)).To(Succeed())
			Expect(user.Seq).To(Equal(1))
			Expect(asst.Seq).To(Equal(2))

			turns, err := driver.Turns(ctx, s.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(storage.Messages(turns)).To(Equal([]ragora.Message{
				{Role: ragora.RoleUser, Content: "q"},
				{Role: ragora.RoleAssistant, Content: "a"},
			}))
		})

		It("stores none of the turns when one of them is refused", func() {
			user := &storage.Turn{SessionID: s.ID, Role: ragora.RoleUser, Content: "q"}
			orphan := &storage.Turn{SessionID: "missing", Role: ragora.RoleAssistant, Content: "a"}
			err := driver.AppendTurns(ctx, user, orphan)
			Expect(storage.IsNotFound(err)).To(BeTrue())
			Expect(user.Seq).To(BeZero())

			turns, err := driver.Turns(ctx, s.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(turns).To(BeEmpty())

			Expect(driver.AppendTurns(ctx, user, nil)).To(MatchError(storage.ErrNilSession))
			turns, err = driver.Turns(ctx, s.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(turns).To(BeEmpty())
		})

		It("refuses turns for unknown sessions", func() {
			err := driver.AppendTurns(ctx, &storage.Turn{SessionID: "missing", Role: ragora.RoleUser})
			Expect(storage.IsNotFound(err)).To(BeTrue())
		})
	})
}
