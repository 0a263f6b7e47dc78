package logger_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/ragora/pkg/logger"
	"github.com/papercomputeco/ragora/pkg/ragora"
	testutils "github.com/papercomputeco/ragora/pkg/utils/test"
)

// records decodes the JSON lines a logger wrote.
func records(buf *bytes.Buffer) []map[string]any {
	var out []map[string]any
	scanner := bufio.NewScanner(buf)
	for scanner.Scan() {
		var rec map[string]any
		Expect(json.Unmarshal(scanner.Bytes(), &rec)).To(Succeed())
		out = append(out, rec)
	}
	return out
}

func messages(recs []map[string]any) []any {
	out := make([]any, 0, len(recs))
	for _, r := range recs {
		out = append(out, r["msg"])
	}
	return out
}

var _ = Describe("Logger", func() {
	var (
		ctx  context.Context
		fake *testutils.FakeRagora
		buf  *bytes.Buffer
	)

	BeforeEach(func() {
		ctx = context.Background()
		fake = testutils.NewFakeRagora()
		DeferCleanup(fake.Close)
		buf = &bytes.Buffer{}
	})

	client := func(opts ...logger.Option) *ragora.Client {
		l := logger.New(append([]logger.Option{logger.WithWriter(buf)}, opts...)...)
		c, err := ragora.NewClient("rk_test", ragora.WithBaseURL(fake.URL()), ragora.WithLogger(l))
		Expect(err).NotTo(HaveOccurred())
		return c
	}

	Describe("New", func() {
		It("logs every client request at debug level", func() {
			_, err := client(logger.WithDebug(true), logger.WithJSON(true)).GetBalance(ctx)
			Expect(err).NotTo(HaveOccurred())

			recs := records(buf)
			Expect(recs).To(HaveLen(1))
			Expect(recs[0]["msg"]).To(Equal("ragora request"))
			Expect(recs[0]["level"]).To(Equal("DEBUG"))
			Expect(recs[0]["method"]).To(Equal(http.MethodGet))
			Expect(recs[0]["status"]).To(BeNumerically("==", http.StatusOK))
		})

		It("keeps client requests out of info-level logs", func() {
			_, err := client(logger.WithJSON(true)).GetBalance(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(buf.Len()).To(BeZero())
		})

		It("reports the caller with WithSource", func() {
			_, err := client(logger.WithDebug(true), logger.WithJSON(true), logger.WithSource(true)).GetBalance(ctx)
			Expect(err).NotTo(HaveOccurred())

			recs := records(buf)
			Expect(recs).To(HaveLen(1))
			source, ok := recs[0]["source"].(map[string]any)
			Expect(ok).To(BeTrue())
			Expect(source["file"]).To(HaveSuffix("client.go"))
		})

		It("writes slog text by default", func() {
			_, err := client(logger.WithDebug(true)).GetBalance(ctx)
			Expect(err).NotTo(HaveOccurred())

			Expect(buf.String()).To(ContainSubstring(`msg="ragora request"`))
			Expect(buf.String()).To(ContainSubstring("path=/v1/credits/balance"))
		})

		It("renders the pretty CLI format", func() {
			_, err := client(logger.WithDebug(true), logger.WithPretty(true), logger.WithJSON(true)).GetBalance(ctx)
			Expect(err).NotTo(HaveOccurred())

			Expect(buf.String()).To(ContainSubstring("ragora request"))
			Expect(json.Valid(buf.Bytes())).To(BeFalse())
		})

		It("reports the stream frames the decoder drops", func() {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "text/event-stream")
				fmt.Fprint(w, "data: {not json\n\n")
				fmt.Fprint(w, `data: {"choices":[{"delta":{"content":"hi"},"finish_reason":"stop"}]}`+"\n\n")
				fmt.Fprint(w, "data: [DONE]\n\n")
			}))
			DeferCleanup(srv.Close)

			l := logger.New(logger.WithWriter(buf), logger.WithDebug(true), logger.WithJSON(true))
			c, err := ragora.NewClient("rk_test", ragora.WithBaseURL(srv.URL), ragora.WithLogger(l))
			Expect(err).NotTo(HaveOccurred())

			stream, err := c.ChatStream(ctx, ragora.ChatRequest{
				Messages: []ragora.Message{{Role: ragora.RoleUser, Content: "hello"}},
			})
			Expect(err).NotTo(HaveOccurred())
			defer stream.Close()

			var summary ragora.StreamSummary
			for chunk, err := range stream.All() {
				Expect(err).NotTo(HaveOccurred())
				summary.Add(chunk)
			}
			Expect(summary.Content).To(Equal("hi"))

			Expect(messages(records(buf))).To(ContainElement("dropping malformed stream frame"))
		})
	})

	Describe("Nop", func() {
		It("silences a client at every level", func() {
			c, err := ragora.NewClient("rk_test", ragora.WithBaseURL(fake.URL()), ragora.WithLogger(logger.Nop()))
			Expect(err).NotTo(HaveOccurred())
			_, err = c.GetBalance(ctx)
			Expect(err).NotTo(HaveOccurred())

			h := logger.Nop().Handler()
			for _, level := range []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelError} {
				Expect(h.Enabled(ctx, level)).To(BeFalse())
			}
			Expect(logger.Nop().With("session_id", "s1").WithGroup("turn").Handler().Enabled(ctx, slog.LevelError)).To(BeFalse())
		})
	})
})
