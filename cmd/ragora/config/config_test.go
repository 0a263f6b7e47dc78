package configcmder_test

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	configcmder "github.com/papercomputeco/ragora/cmd/ragora/config"
	"github.com/papercomputeco/ragora/pkg/config"
)

var _ = Describe("NewConfigCmd", func() {
	It("creates a command with the correct use string", func() {
		cmd := configcmder.NewConfigCmd()
		Expect(cmd.Use).To(Equal("config"))
	})

	It("has init, set, get, and list subcommands", func() {
		cmd := configcmder.NewConfigCmd()
		cmds := cmd.Commands()
		subcommands := make([]string, 0, len(cmds))
		for _, sub := range cmds {
			subcommands = append(subcommands, sub.Name())
		}
		Expect(subcommands).To(ContainElements("init", "set", "get", "list"))
	})
})

var _ = Describe("Config command execution", func() {
	var tmpDir string

	execute := func(args ...string) (string, error) {
		cmd := configcmder.NewConfigCmd()
		cmd.PersistentFlags().String("config-dir", "", "")
		out := &bytes.Buffer{}
		cmd.SetOut(out)
		cmd.SetErr(io.Discard)
		cmd.SetIn(strings.NewReader(""))
		cmd.SetArgs(append(args, "--config-dir", tmpDir))
		err := cmd.Execute()
		return out.String(), err
	}

	load := func() *config.Config {
		data, err := os.ReadFile(filepath.Join(tmpDir, "config.toml"))
		Expect(err).NotTo(HaveOccurred())
		cfg, err := config.ParseConfigTOML(data)
		Expect(err).NotTo(HaveOccurred())
		return cfg
	}

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
	})

	Describe("set subcommand", func() {
		It("sets a config value successfully", func() {
			_, err := execute("set", "chat.model", "gpt-4o-mini")
			Expect(err).NotTo(HaveOccurred())

			Expect(load().Chat.Model).To(Equal("gpt-4o-mini"))
		})

		It("splits list values", func() {
			_, err := execute("set", "chat.collections", "col_1, col_2")
			Expect(err).NotTo(HaveOccurred())

			Expect(load().Chat.Collections).To(Equal([]string{"col_1", "col_2"}))
		})

		It("masks the API key in its output", func() {
			out, err := execute("set", "client.api_key", "rk_live_abcdefghijkl")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("rk_l****ijkl"))
			Expect(out).NotTo(ContainSubstring("abcdefgh"))

			Expect(load().Client.APIKey).To(Equal("rk_live_abcdefghijkl"))
		})

		It("rejects unknown keys", func() {
			_, err := execute("set", "invalid_key", "value")
			Expect(err).To(MatchError(ContainSubstring("unknown config key")))
		})

		It("rejects invalid values", func() {
			_, err := execute("set", "storage.provider", "redis")
			Expect(err).To(HaveOccurred())
		})

		It("requires exactly two arguments", func() {
			_, err := execute("set", "chat.model")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("get subcommand", func() {
		It("gets a previously set value", func() {
			_, err := execute("set", "proxy.listen", ":9090")
			Expect(err).NotTo(HaveOccurred())

			out, err := execute("get", "proxy.listen")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring(":9090"))
		})

		It("reports unset values", func() {
			out, err := execute("get", "chat.model")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("<not set>"))
		})

		It("reveals secrets only on request", func() {
			_, err := execute("set", "client.api_key", "rk_live_abcdefghijkl")
			Expect(err).NotTo(HaveOccurred())

			out, err := execute("get", "client.api_key")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).NotTo(ContainSubstring("rk_live_abcdefghijkl"))

			out, err = execute("get", "client.api_key", "--reveal")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("rk_live_abcdefghijkl"))
		})

		It("rejects unknown keys", func() {
			_, err := execute("get", "invalid_key")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("list subcommand", func() {
		It("lists every key with defaults applied", func() {
			out, err := execute("list")
			Expect(err).NotTo(HaveOccurred())

			for _, key := range config.ValidConfigKeys() {
				Expect(out).To(ContainSubstring(key))
			}
			Expect(out).To(ContainSubstring(`"https://api.ragora.app"`))
			Expect(out).To(ContainSubstring("<not set>"))
		})

		It("masks secrets", func() {
			_, err := execute("set", "storage.postgres_dsn", "postgres://user:hunter22@db/ragora")
			Expect(err).NotTo(HaveOccurred())

			out, err := execute("list")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).NotTo(ContainSubstring("hunter22"))
		})
	})

	Describe("init subcommand", func() {
		It("writes the local preset", func() {
			out, err := execute("init", "--preset", "local", "--api-key", "rk_test_key")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("local"))

			cfg := load()
			Expect(cfg.Client.BaseURL).To(Equal("http://localhost:8000"))
			Expect(cfg.Client.APIKey).To(Equal("rk_test_key"))
			Expect(cfg.EventStream.Provider).To(Equal("kafka"))
		})

		It("warns when no API key is stored", func() {
			out, err := execute("init")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("No API key stored"))
		})

		It("refuses to overwrite without --force", func() {
			_, err := execute("init")
			Expect(err).NotTo(HaveOccurred())

			_, err = execute("init", "--preset", "local")
			Expect(err).To(MatchError(ContainSubstring("already exists")))

			_, err = execute("init", "--preset", "local", "--force")
			Expect(err).NotTo(HaveOccurred())
			Expect(load().Client.BaseURL).To(Equal("http://localhost:8000"))
		})

		It("rejects unknown presets", func() {
			_, err := execute("init", "--preset", "mars")
			Expect(err).To(MatchError(ContainSubstring("unknown preset")))
		})

		It("writes to ./.ragora with --local", func() {
			origDir, err := os.Getwd()
			Expect(err).NotTo(HaveOccurred())
			Expect(os.Chdir(tmpDir)).To(Succeed())
			DeferCleanup(os.Chdir, origDir)

			cmd := configcmder.NewConfigCmd()
			cmd.PersistentFlags().String("config-dir", "", "")
			cmd.SetOut(io.Discard)
			cmd.SetIn(strings.NewReader(""))
			cmd.SetArgs([]string{"init", "--local"})
			Expect(cmd.Execute()).To(Succeed())

			_, err = os.Stat(filepath.Join(tmpDir, ".ragora", "config.toml"))
			Expect(err).NotTo(HaveOccurred())
		})
	})
})
