package chatcmder_test

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	chatcmder "github.com/papercomputeco/ragora/cmd/ragora/chat"
	"github.com/papercomputeco/ragora/pkg/dotdir"
	"github.com/papercomputeco/ragora/pkg/storage"
	"github.com/papercomputeco/ragora/pkg/storage/sqlite"
	testutils "github.com/papercomputeco/ragora/pkg/utils/test"
)

func newRoot(sub *cobra.Command) *cobra.Command {
	root := &cobra.Command{Use: "ragora", SilenceUsage: true, SilenceErrors: true}
	root.PersistentFlags().String("config-dir", "", "")
	root.PersistentFlags().BoolP("debug", "d", false, "")
	root.AddCommand(sub)
	return root
}

var _ = Describe("Chat command", func() {
	var (
		fake      *testutils.FakeRagora
		configDir string
		dbPath    string
		out       *bytes.Buffer
	)

	run := func(sub *cobra.Command, input string, args ...string) error {
		root := newRoot(sub)
		out = &bytes.Buffer{}
		root.SetOut(out)
		root.SetErr(io.Discard)
		root.SetIn(strings.NewReader(input))

		base := []string{
			"--config-dir", configDir,
			"--api-key", "rk_test",
			"--base-url", fake.URL(),
			"--storage", "sqlite",
			"--sqlite", dbPath,
		}
		root.SetArgs(append(args[:1:1], append(base, args[1:]...)...))
		return root.Execute()
	}

	sessions := func(kind string) []*storage.Session {
		driver, err := sqlite.NewDriver(context.Background(), dbPath)
		Expect(err).NotTo(HaveOccurred())
		defer driver.Close()

		list, err := driver.ListSessions(context.Background(), kind)
		Expect(err).NotTo(HaveOccurred())
		return list
	}

	turns := func(id string) []*storage.Turn {
		driver, err := sqlite.NewDriver(context.Background(), dbPath)
		Expect(err).NotTo(HaveOccurred())
		defer driver.Close()

		list, err := driver.Turns(context.Background(), id)
		Expect(err).NotTo(HaveOccurred())
		return list
	}

	BeforeEach(func() {
		fake = testutils.NewFakeRagora()
		configDir = GinkgoT().TempDir()
		dbPath = filepath.Join(configDir, "sessions.sqlite")
	})

	AfterEach(func() {
		fake.Close()
	})

	It("has the expected use strings", func() {
		Expect(chatcmder.NewChatCmd().Use).To(Equal("chat [question]"))
		Expect(chatcmder.NewAgentChatCmd().Use).To(Equal("chat <agent-id> [question]"))
	})

	It("answers a one-shot question and records both turns", func() {
		Expect(run(chatcmder.NewChatCmd(), "", "chat", "What", "is", "ragora?")).To(Succeed())

		Expect(out.String()).To(ContainSubstring("Hello, world"))
		Expect(out.String()).To(ContainSubstring("src_1"))

		list := sessions(storage.KindChat)
		Expect(list).To(HaveLen(1))
		Expect(list[0].Title).To(Equal("What is ragora?"))

		history := turns(list[0].ID)
		Expect(history).To(HaveLen(2))
		Expect(history[0].Content).To(Equal("What is ragora?"))
		Expect(history[1].Content).To(Equal("Hello, world"))
		Expect(history[1].FinishReason).To(Equal("stop"))
		Expect(history[1].Sources).To(HaveLen(1))

		active, err := dotdir.NewManager().LoadActiveSession(configDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(active.SessionID).To(Equal(list[0].ID))
	})

	It("resumes the active session and replays its history", func() {
		Expect(run(chatcmder.NewChatCmd(), "", "chat", "first")).To(Succeed())
		Expect(run(chatcmder.NewChatCmd(), "", "chat", "second")).To(Succeed())

		Expect(fake.LastBody()["messages"]).To(HaveLen(3))

		list := sessions(storage.KindChat)
		Expect(list).To(HaveLen(1))
		Expect(turns(list[0].ID)).To(HaveLen(4))
	})

	It("falls back to the latest stored session without an active one", func() {
		Expect(run(chatcmder.NewChatCmd(), "", "chat", "first")).To(Succeed())
		Expect(dotdir.NewManager().ClearActiveSession(configDir)).To(Succeed())

		Expect(run(chatcmder.NewChatCmd(), "", "chat", "second")).To(Succeed())

		Expect(fake.LastBody()["messages"]).To(HaveLen(3))
		list := sessions(storage.KindChat)
		Expect(list).To(HaveLen(1))
		Expect(turns(list[0].ID)).To(HaveLen(4))
	})

	It("starts over with --new", func() {
		Expect(run(chatcmder.NewChatCmd(), "", "chat", "first")).To(Succeed())
		Expect(run(chatcmder.NewChatCmd(), "", "chat", "--new", "second")).To(Succeed())

		Expect(fake.LastBody()["messages"]).To(HaveLen(1))
		Expect(sessions(storage.KindChat)).To(HaveLen(2))
	})

	It("sends the configured model and collections", func() {
		Expect(run(chatcmder.NewChatCmd(), "", "chat", "--model", "fast", "--collection", "col_1,col_2", "hi")).To(Succeed())

		body := fake.LastBody()
		Expect(body["model"]).To(Equal("fast"))
		Expect(body["collection_ids"]).To(Equal([]any{"col_1", "col_2"}))

		list := sessions(storage.KindChat)
		Expect(list[0].Model).To(Equal("fast"))
		Expect(list[0].Collections).To(Equal([]string{"col_1", "col_2"}))
	})

	It("runs an interactive loop with /new and /exit", func() {
		input := "first question\n/new\nsecond question\n/exit\nnever sent\n"
		Expect(run(chatcmder.NewChatCmd(), input, "chat")).To(Succeed())

		Expect(out.String()).To(ContainSubstring("New conversation"))
		Expect(strings.Count(out.String(), "Hello, world")).To(Equal(2))
		Expect(sessions(storage.KindChat)).To(HaveLen(2))
		Expect(fake.Requests()).To(HaveLen(2))
	})

	It("keeps going after a failed turn", func() {
		fake.FailNext(1)
		Expect(run(chatcmder.NewChatCmd(), "broken\nworking\n", "chat")).To(Succeed())

		Expect(out.String()).To(ContainSubstring("injected failure"))
		list := sessions(storage.KindChat)
		Expect(list).To(HaveLen(1))
		Expect(turns(list[0].ID)[0].Content).To(Equal("working"))
	})

	It("requires an API key", func() {
		root := newRoot(chatcmder.NewChatCmd())
		root.SetOut(io.Discard)
		root.SetErr(io.Discard)
		root.SetArgs([]string{"chat", "--config-dir", configDir, "--storage", "memory", "hi"})
		Expect(os.Unsetenv("RAGORA_API_KEY")).To(Succeed())

		Expect(root.Execute()).To(MatchError(ContainSubstring("no Ragora API key")))
	})

	Describe("agent chat", func() {
		It("keeps the remote session and continues it", func() {
			Expect(run(chatcmder.NewAgentChatCmd(), "", "chat", "agt_1", "hello")).To(Succeed())

			list := sessions(storage.KindAgent)
			Expect(list).To(HaveLen(1))
			Expect(list[0].AgentID).To(Equal("agt_1"))
			Expect(list[0].RemoteSessionID).To(Equal("sess_fake"))

			Expect(run(chatcmder.NewAgentChatCmd(), "", "chat", "agt_1", "again")).To(Succeed())
			Expect(fake.LastBody()["session_id"]).To(Equal("sess_fake"))
			Expect(turns(list[0].ID)).To(HaveLen(4))
		})

		It("falls back to the latest session of the same agent", func() {
			Expect(run(chatcmder.NewAgentChatCmd(), "", "chat", "agt_1", "hello")).To(Succeed())
			Expect(run(chatcmder.NewAgentChatCmd(), "", "chat", "agt_2", "hello")).To(Succeed())

			Expect(run(chatcmder.NewAgentChatCmd(), "", "chat", "agt_1", "again")).To(Succeed())

			Expect(fake.LastBody()["session_id"]).To(Equal("sess_fake"))
			Expect(sessions(storage.KindAgent)).To(HaveLen(2))
		})

		It("does not resume another agent's session", func() {
			Expect(run(chatcmder.NewAgentChatCmd(), "", "chat", "agt_1", "hello")).To(Succeed())
			Expect(run(chatcmder.NewAgentChatCmd(), "", "chat", "agt_2", "hello")).To(Succeed())

			Expect(fake.LastBody()).NotTo(HaveKey("session_id"))
			Expect(sessions(storage.KindAgent)).To(HaveLen(2))
		})
	})
})
