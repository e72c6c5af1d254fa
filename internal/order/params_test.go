package order_test

import (
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"

	"github.com/frahmantamala/billpay-relay/internal/order"
)

var _ = ginkgo.Describe("ParamsFromRequest", func() {
	formRequest := func(method, target, body string) *http.Request {
		req := httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req
	}

	ginkgo.It("reads the gateway form fields", func() {
		req := formRequest(http.MethodPost, "/toyyib/callback", "status_id=1&billcode=bc1&order_id=ORD1&amount=50.00&transaction_id=TX9")
		p, err := order.ParamsFromRequest(req, true)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(p.StatusID).To(gomega.Equal("1"))
		gomega.Expect(p.BillCode).To(gomega.Equal("bc1"))
		gomega.Expect(p.OrderID).To(gomega.Equal("ORD1"))
		gomega.Expect(p.Amount).To(gomega.Equal("50.00"))
		gomega.Expect(p.TransactionID).To(gomega.Equal("TX9"))
	})

	ginkgo.It("lets query values win for the return path", func() {
		req := formRequest(http.MethodPost, "/toyyib/return?status_id=3", "status_id=1&order_id=ORD1")
		p, err := order.ParamsFromRequest(req, false)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(p.StatusID).To(gomega.Equal("3"))
		gomega.Expect(p.OrderID).To(gomega.Equal("ORD1"))
	})

	ginkgo.It("lets body values win for the callback path", func() {
		req := formRequest(http.MethodPost, "/toyyib/callback?status_id=3&order_id=Q", "status_id=1")
		p, err := order.ParamsFromRequest(req, true)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(p.StatusID).To(gomega.Equal("1"))
		gomega.Expect(p.OrderID).To(gomega.Equal("Q"))
	})

	ginkgo.It("accepts JSON bodies with numeric amounts", func() {
		req := httptest.NewRequest(http.MethodPost, "/toyyib/callback", strings.NewReader(`{"order_id":"ORD1","status_id":1,"amount":12.5,"bill_code":"bc2"}`))
		req.Header.Set("Content-Type", "application/json")
		p, err := order.ParamsFromRequest(req, true)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(p.StatusID).To(gomega.Equal("1"))
		gomega.Expect(p.Amount).To(gomega.Equal("12.5"))
		gomega.Expect(p.BillCode).To(gomega.Equal("bc2"))
	})

	ginkgo.It("falls back to the ToyyibPay callback names", func() {
		req := formRequest(http.MethodPost, "/toyyib/callback", "status=3&refno=R1&billcode=bc")
		p, err := order.ParamsFromRequest(req, true)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(p.StatusID).To(gomega.Equal("3"))
		gomega.Expect(p.TransactionID).To(gomega.Equal("R1"))
	})

	ginkgo.It("reports malformed JSON but keeps query values", func() {
		req := httptest.NewRequest(http.MethodPost, "/toyyib/return?order_id=ORD1", strings.NewReader(`{"broken`))
		req.Header.Set("Content-Type", "application/json")
		p, err := order.ParamsFromRequest(req, false)
		gomega.Expect(err).To(gomega.HaveOccurred())
		gomega.Expect(p.OrderID).To(gomega.Equal("ORD1"))
	})

	ginkgo.It("keeps every parameter for auditing", func() {
		req := httptest.NewRequest(http.MethodGet, "/toyyib/return?status_id=1&msg=ok&order_id=A", nil)
		p, err := order.ParamsFromRequest(req, false)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(p.Raw).To(gomega.HaveKeyWithValue("msg", "ok"))
		gomega.Expect(p.SortedRaw()[0]).To(gomega.Equal([2]string{"msg", "ok"}))
	})
})
