package dotdir_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/ragora/pkg/dotdir"
)

var _ = Describe("dotdir.Manager active session", func() {
	var tmpDir string
	var m *dotdir.Manager

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "dotdir-test-*")
		Expect(err).NotTo(HaveOccurred())
		m = dotdir.NewManager()
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	It("returns nil when no session is active", func() {
		state, err := m.LoadActiveSession(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(state).To(BeNil())
	})

	It("round-trips the active session", func() {
		err := m.SaveActiveSession(&dotdir.ActiveSession{SessionID: "s1", Kind: "agent", AgentID: "agt_1"}, tmpDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(filepath.Join(tmpDir, "active_session.json")).To(BeARegularFile())

		loaded, err := m.LoadActiveSession(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(loaded.SessionID).To(Equal("s1"))
		Expect(loaded.Kind).To(Equal("agent"))
		Expect(loaded.AgentID).To(Equal("agt_1"))
		Expect(loaded.UpdatedAt).NotTo(BeZero())
	})

	It("returns error for invalid JSON", func() {
		Expect(os.WriteFile(filepath.Join(tmpDir, "active_session.json"), []byte("not json"), 0o600)).To(Succeed())

		state, err := m.LoadActiveSession(tmpDir)
		Expect(err).To(HaveOccurred())
		Expect(state).To(BeNil())
	})

	It("rejects a nil session", func() {
		Expect(m.SaveActiveSession(nil, tmpDir)).NotTo(Succeed())
	})

	It("clears the active session", func() {
		Expect(m.SaveActiveSession(&dotdir.ActiveSession{SessionID: "s1", Kind: "chat"}, tmpDir)).To(Succeed())
		Expect(m.ClearActiveSession(tmpDir)).To(Succeed())

		loaded, err := m.LoadActiveSession(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(loaded).To(BeNil())

		Expect(m.ClearActiveSession(tmpDir)).To(Succeed())
	})
})
