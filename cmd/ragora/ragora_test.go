package ragoracmder_test

import (
	"bytes"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	ragoracmder "github.com/papercomputeco/ragora/cmd/ragora"
	testutils "github.com/papercomputeco/ragora/pkg/utils/test"
)

var _ = Describe("NewRagoraCmd", func() {
	It("registers every command", func() {
		cmd := ragoracmder.NewRagoraCmd()
		names := []string{}
		for _, sub := range cmd.Commands() {
			names = append(names, sub.Name())
		}
		Expect(names).To(ContainElements(
			"chat", "search", "agent", "collections", "documents",
			"marketplace", "credits", "config", "serve", "mcp", "version",
		))
	})

	It("has the global flags", func() {
		cmd := ragoracmder.NewRagoraCmd()
		Expect(cmd.PersistentFlags().Lookup("debug")).NotTo(BeNil())
		Expect(cmd.PersistentFlags().Lookup("config-dir")).NotTo(BeNil())
	})

	It("reads the API key from a .env file", func() {
		fake := testutils.NewFakeRagora()
		DeferCleanup(fake.Close)

		tmpDir := GinkgoT().TempDir()
		Expect(os.WriteFile(filepath.Join(tmpDir, ".env"), []byte("RAGORA_API_KEY=rk_from_dotenv\n"), 0o600)).To(Succeed())

		origDir, err := os.Getwd()
		Expect(err).NotTo(HaveOccurred())
		Expect(os.Chdir(tmpDir)).To(Succeed())
		DeferCleanup(os.Chdir, origDir)

		// godotenv never overrides a variable that is already set.
		GinkgoT().Setenv("RAGORA_API_KEY", "")
		Expect(os.Unsetenv("RAGORA_API_KEY")).To(Succeed())

		cmd := ragoracmder.NewRagoraCmd()
		out := &bytes.Buffer{}
		cmd.SetOut(out)
		cmd.SetArgs([]string{"credits", "--base-url", fake.URL(), "--config-dir", filepath.Join(tmpDir, "cfg")})

		Expect(cmd.Execute()).To(Succeed())
		Expect(out.String()).To(ContainSubstring("12.50"))
	})

	It("runs without a .env file", func() {
		origDir, err := os.Getwd()
		Expect(err).NotTo(HaveOccurred())
		Expect(os.Chdir(GinkgoT().TempDir())).To(Succeed())
		DeferCleanup(os.Chdir, origDir)

		cmd := ragoracmder.NewRagoraCmd()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetArgs([]string{"version"})
		Expect(cmd.Execute()).To(Succeed())
	})
})
