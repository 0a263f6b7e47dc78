package api

import (
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	apisearch "github.com/papercomputeco/ragora/api/search"
	"github.com/papercomputeco/ragora/pkg/logger"
	"github.com/papercomputeco/ragora/pkg/ragora"
	"github.com/papercomputeco/ragora/pkg/storage/inmemory"
	testutils "github.com/papercomputeco/ragora/pkg/utils/test"
)

var _ = Describe("handleSearchEndpoint", func() {
	var (
		server *Server
		fake   *testutils.FakeRagora
	)

	BeforeEach(func() {
		fake = testutils.NewFakeRagora()
		client, err := ragora.NewClient("test-key", ragora.WithBaseURL(fake.URL()))
		Expect(err).NotTo(HaveOccurred())

		server, err = NewServer(Config{
			Searcher:    client,
			Collections: []string{"col_default"},
		}, inmemory.NewDriver(), logger.Nop())
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		fake.Close()
	})

	It("returns 503 when search is not configured", func() {
		noSearch, err := NewServer(Config{}, inmemory.NewDriver(), logger.Nop())
		Expect(err).NotTo(HaveOccurred())

		resp := doRequest(noSearch, http.MethodGet, "/v1/search?query=hi", nil)
		Expect(resp.StatusCode).To(Equal(http.StatusServiceUnavailable))
	})

	It("returns 400 when query is missing", func() {
		resp := doRequest(server, http.MethodGet, "/v1/search", nil)
		Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
	})

	It("returns 400 for an invalid top_k", func() {
		resp := doRequest(server, http.MethodGet, "/v1/search?query=hi&top_k=zero", nil)
		Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
	})

	It("searches the default collections", func() {
		var out apisearch.SearchOutput
		resp := doRequest(server, http.MethodGet, "/v1/search?query=greeting&top_k=3", &out)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(out.Count).To(Equal(1))
		Expect(out.Results[0].ID).To(Equal("src_1"))

		body := fake.LastBody()
		Expect(body["collection_ids"]).To(Equal([]any{"col_default"}))
		Expect(body["top_k"]).To(BeNumerically("==", 3))
	})

	It("searches explicit collections", func() {
		doRequest(server, http.MethodGet, "/v1/search?query=greeting&collection=a,b", nil)
		Expect(fake.LastBody()["collection_ids"]).To(Equal([]any{"a", "b"}))
	})

	It("maps upstream failures to 502", func() {
		fake.FailNext(1)
		resp := doRequest(server, http.MethodGet, "/v1/search?query=greeting", nil)
		Expect(resp.StatusCode).To(Equal(http.StatusBadGateway))
	})
})
