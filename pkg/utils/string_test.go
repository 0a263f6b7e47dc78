package utils

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("truncate", func() {
	It("returns the string unchanged when within the limit", func() {
		Expect(Truncate("short", 10)).To(Equal("short"))
	})

	It("returns the string unchanged when exactly at the limit", func() {
		Expect(Truncate("12345", 5)).To(Equal("12345"))
	})

	It("truncates with ellipsis when over the limit", func() {
		result := Truncate("this is a long string", 10)
		Expect(result).To(Equal("this is a ..."))
	})

	It("never splits a multi-byte character", func() {
		Expect(Truncate("日本語のテキスト", 3)).To(Equal("日本語..."))
	})
})

var _ = Describe("single line", func() {
	It("collapses newlines and runs of spaces", func() {
		Expect(SingleLine("  first line\n\nsecond\t line ")).To(Equal("first line second line"))
	})
})

var _ = Describe("csv splitting", func() {
	It("trims, drops blanks and flattens arguments", func() {
		Expect(SplitCSV(" a, b ,,", "c")).To(Equal([]string{"a", "b", "c"}))
		Expect(SplitCSV("")).To(BeEmpty())
	})
})

var _ = Describe("build info", func() {
	It("reports the version in the user agent", func() {
		Expect(UserAgent()).To(Equal("ragora-go/" + Version))
		Expect(BuildInfo()).To(ContainSubstring("Version: " + Version))
	})
})
