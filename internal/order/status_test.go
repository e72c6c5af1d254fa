package order_test

import (
	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"

	"github.com/frahmantamala/billpay-relay/internal/order"
)

var _ = ginkgo.Describe("MapStatus", func() {
	ginkgo.DescribeTable("maps gateway codes",
		func(code string, want order.Status) {
			gomega.Expect(order.MapStatus(code)).To(gomega.Equal(want))
		},
		ginkgo.Entry("success", "1", order.StatusPaid),
		ginkgo.Entry("pending", "2", order.StatusPending),
		ginkgo.Entry("failed", "3", order.StatusFailed),
		ginkgo.Entry("empty", "", order.StatusPending),
		ginkgo.Entry("unknown", "7", order.StatusPending),
		ginkgo.Entry("padded", " 1", order.StatusPending),
		ginkgo.Entry("word", "PAID", order.StatusPending),
	)

	ginkgo.It("treats only PAID and FAILED as terminal", func() {
		gomega.Expect(order.StatusPaid.IsTerminal()).To(gomega.BeTrue())
		gomega.Expect(order.StatusFailed.IsTerminal()).To(gomega.BeTrue())
		gomega.Expect(order.StatusPending.IsTerminal()).To(gomega.BeFalse())
		gomega.Expect(order.StatusRegistered.IsTerminal()).To(gomega.BeFalse())
	})
})
