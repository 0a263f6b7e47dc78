package marketplacecmder_test

import (
	"bytes"
	"io"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	marketplacecmder "github.com/papercomputeco/ragora/cmd/ragora/marketplace"
	testutils "github.com/papercomputeco/ragora/pkg/utils/test"
)

var _ = Describe("Marketplace command", func() {
	var (
		fake      *testutils.FakeRagora
		configDir string
	)

	execute := func(args ...string) (string, error) {
		cmd := marketplacecmder.NewMarketplaceCmd()
		cmd.PersistentFlags().String("config-dir", "", "")
		out := &bytes.Buffer{}
		cmd.SetOut(out)
		cmd.SetErr(io.Discard)
		cmd.SetArgs(append(args, "--config-dir", configDir, "--api-key", "rk_test", "--base-url", fake.URL()))
		err := cmd.Execute()
		return out.String(), err
	}

	BeforeEach(func() {
		fake = testutils.NewFakeRagora()
		configDir = GinkgoT().TempDir()
	})

	AfterEach(func() {
		fake.Close()
	})

	It("lists products with price and seller", func() {
		out, err := execute("list", "--search", "golang")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("go-docs"))
		Expect(out).To(ContainSubstring("$4.50"))
		Expect(out).To(ContainSubstring("by Gopher"))
	})

	It("shows a product by slug", func() {
		out, err := execute("get", "go-docs")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("Go Docs"))
		Expect(out).To(ContainSubstring("prd_1"))
		Expect(fake.Requests()).To(ContainElement("GET /v1/marketplace/go-docs"))
	})

	It("prints JSON with --json", func() {
		out, err := execute("get", "go-docs", "--json")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring(`"slug": "go-docs"`))
	})
})
