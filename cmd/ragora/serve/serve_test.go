package servecmder_test

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	servecmder "github.com/papercomputeco/ragora/cmd/ragora/serve"
	testutils "github.com/papercomputeco/ragora/pkg/utils/test"
)

// freeAddr reserves a loopback port and releases it for the server.
func freeAddr() string {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	Expect(err).NotTo(HaveOccurred())
	addr := ln.Addr().String()
	Expect(ln.Close()).To(Succeed())
	return addr
}

func newRoot(tmpDir string) *cobra.Command {
	root := &cobra.Command{Use: "ragora", SilenceUsage: true, SilenceErrors: true}
	root.PersistentFlags().String("config-dir", tmpDir, "")
	root.PersistentFlags().Bool("debug", false, "")
	root.AddCommand(servecmder.NewServeCmd())
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	return root
}

func get(url string) (int, string) {
	resp, err := http.Get(url)
	if err != nil {
		return 0, err.Error()
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

var _ = Describe("NewServeCmd", func() {
	It("has api and proxy subcommands", func() {
		cmd := servecmder.NewServeCmd()
		names := []string{}
		for _, sub := range cmd.Commands() {
			names = append(names, sub.Name())
		}
		Expect(names).To(ConsistOf("api", "proxy"))
	})

	It("registers the listen and event stream flags", func() {
		cmd := servecmder.NewServeCmd()
		for _, name := range []string{"listen", "api-listen", "eventstream", "kafka-brokers", "kafka-topic", "storage", "api-key", "collection"} {
			Expect(cmd.Flags().Lookup(name)).NotTo(BeNil(), name)
		}
	})
})

var _ = Describe("serve", func() {
	var (
		fake   *testutils.FakeRagora
		tmpDir string
	)

	BeforeEach(func() {
		fake = testutils.NewFakeRagora()
		DeferCleanup(fake.Close)
		tmpDir = GinkgoT().TempDir()
		GinkgoT().Setenv("RAGORA_API_KEY", "")
	})

	It("requires an API key", func() {
		root := newRoot(tmpDir)
		root.SetArgs([]string{"serve", "--base-url", fake.URL(), "--storage", "memory"})
		Expect(root.Execute()).To(MatchError(ContainSubstring("no Ragora API key")))
	})

	It("rejects an unknown event stream", func() {
		root := newRoot(tmpDir)
		root.SetArgs([]string{"serve", "--api-key", "rk_test", "--base-url", fake.URL(), "--storage", "memory", "--eventstream", "pigeon"})
		Expect(root.Execute()).To(MatchError(ContainSubstring("unknown eventstream provider")))
	})

	It("fails before serving when the API port is taken", func() {
		taken, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(taken.Close)

		root := newRoot(tmpDir)
		root.SetArgs([]string{
			"serve",
			"--api-key", "rk_test",
			"--base-url", fake.URL(),
			"--storage", "memory",
			"--listen", freeAddr(),
			"--api-listen", taken.Addr().String(),
		})
		Expect(root.Execute()).To(MatchError(ContainSubstring("binding API server")))
	})

	It("relays chats and serves the recorded sessions until cancelled", func() {
		relayAddr := freeAddr()
		apiAddr := freeAddr()

		ctx, cancel := context.WithCancel(context.Background())
		DeferCleanup(cancel)

		root := newRoot(tmpDir)
		root.SetArgs([]string{
			"serve",
			"--api-key", "rk_test",
			"--base-url", fake.URL(),
			"--storage", "memory",
			"--listen", relayAddr,
			"--api-listen", apiAddr,
		})

		done := make(chan error, 1)
		go func() {
			done <- root.ExecuteContext(ctx)
		}()

		Eventually(func() int {
			code, _ := get("http://" + relayAddr + "/ping")
			return code
		}).Should(Equal(http.StatusOK))
		Eventually(func() int {
			code, _ := get("http://" + apiAddr + "/ping")
			return code
		}).Should(Equal(http.StatusOK))

		resp, err := http.Post("http://"+relayAddr+"/v1/chat", "application/json", strings.NewReader(`{"message":"Hi there"}`))
		Expect(err).NotTo(HaveOccurred())
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(string(body)).To(ContainSubstring("Hello, world"))

		Eventually(func() int {
			_, body := get("http://" + apiAddr + "/v1/sessions")
			var listed struct {
				Count int `json:"count"`
			}
			if json.Unmarshal([]byte(body), &listed) != nil {
				return -1
			}
			return listed.Count
		}).Should(Equal(1))

		cancel()
		Eventually(done).Should(Receive(BeNil()))
	})
})
