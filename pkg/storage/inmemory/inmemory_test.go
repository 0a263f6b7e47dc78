package inmemory_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/ragora/pkg/storage"
	"github.com/papercomputeco/ragora/pkg/storage/inmemory"
	"github.com/papercomputeco/ragora/pkg/storage/storagetest"
)

var _ = Describe("Driver", func() {
	storagetest.DriverSpecs(func() storage.Driver {
		return inmemory.NewDriver()
	})

	It("hands out copies", func() {
		ctx := context.Background()
		d := inmemory.NewDriver()
		s := storage.NewSession(storage.KindChat)
		s.Collections = []string{"a"}
		Expect(d.PutSession(ctx, s)).To(Succeed())

		got, err := d.GetSession(ctx, s.ID)
		Expect(err).NotTo(HaveOccurred())
		got.Collections[0] = "mutated"

		again, err := d.GetSession(ctx, s.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(again.Collections).To(Equal([]string{"a"}))
	})
})
