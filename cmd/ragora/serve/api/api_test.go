package apicmder_test

import (
	"context"
	"io"
	"net"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/viper"

	apicmder "github.com/papercomputeco/ragora/cmd/ragora/serve/api"
	"github.com/papercomputeco/ragora/pkg/logger"
)

var _ = Describe("SearchAndMCP", func() {
	It("disables search and MCP without an API key", func() {
		searcher, handler, err := apicmder.SearchAndMCP(viper.New(), logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		Expect(searcher).To(BeNil())
		Expect(handler).To(BeNil())
	})

	It("builds both with an API key", func() {
		v := viper.New()
		v.Set("client.api_key", "rk_test")

		searcher, handler, err := apicmder.SearchAndMCP(v, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		Expect(searcher).NotTo(BeNil())
		Expect(handler).NotTo(BeNil())
	})
})

var _ = Describe("NewAPICmd", func() {
	It("serves recorded sessions without an API key", func() {
		GinkgoT().Setenv("RAGORA_API_KEY", "")
		tmpDir := GinkgoT().TempDir()

		ln, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())
		addr := ln.Addr().String()
		Expect(ln.Close()).To(Succeed())

		ctx, cancel := context.WithCancel(context.Background())
		DeferCleanup(cancel)

		cmd := apicmder.NewAPICmd()
		cmd.PersistentFlags().String("config-dir", tmpDir, "")
		cmd.PersistentFlags().Bool("debug", false, "")
		cmd.SetOut(io.Discard)
		cmd.SetErr(io.Discard)
		cmd.SetArgs([]string{"--storage", "memory", "--api-listen", addr})

		done := make(chan error, 1)
		go func() {
			done <- cmd.ExecuteContext(ctx)
		}()

		status := func(path string) func() int {
			return func() int {
				resp, err := http.Get("http://" + addr + path)
				if err != nil {
					return 0
				}
				resp.Body.Close()
				return resp.StatusCode
			}
		}

		Eventually(status("/v1/sessions")).Should(Equal(http.StatusOK))
		Expect(status("/v1/search?query=hi")()).To(Equal(http.StatusServiceUnavailable))

		cancel()
		Eventually(done).Should(Receive(BeNil()))
	})
})
