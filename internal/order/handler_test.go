package order_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi"
	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"

	"github.com/frahmantamala/billpay-relay/internal/order"
	"github.com/frahmantamala/billpay-relay/internal/transport"
)

var _ = ginkgo.Describe("HTTP handlers", func() {
	var (
		repo   *memoryRepository
		router *chi.Mux
	)

	ginkgo.BeforeEach(func() {
		repo = newMemoryRepository()
		lg := slog.New(slog.NewTextHandler(io.Discard, nil))
		svc := order.NewService(repo, newMemoryCache(), &recordingPublisher{}, order.EngineConfig{TerminalStatuses: true}, lg)

		api := order.NewHandler(svc)
		webhook := order.NewWebhookHandler(transport.NewBaseHandler(lg), svc, order.NewResponder(order.RedirectConfig{Scheme: "myapp"}), time.Second)

		router = chi.NewRouter()
		router.Post("/api/v1/orders", api.PreRegister)
		router.Get("/api/v1/orders/{order_id}", api.GetStatus)
		router.HandleFunc("/toyyib/return", webhook.HandleReturn)
		router.Post("/toyyib/callback", webhook.HandleCallback)
	})

	serve := func(req *http.Request) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	postJSON := func(path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		return serve(req)
	}

	postForm := func(path string, values url.Values) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return serve(req)
	}

	ginkgo.Describe("PreRegister", func() {
		ginkgo.It("returns ok with the order view", func() {
			rec := postJSON("/api/v1/orders", `{"order_id":"ORD1","amount_cents":5000,"payer_name":"Ali"}`)
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))

			var resp order.RegisterResponse
			gomega.Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(gomega.Succeed())
			gomega.Expect(resp.OK).To(gomega.BeTrue())
			gomega.Expect(resp.Order.Status).To(gomega.Equal(order.StatusRegistered))
			gomega.Expect(*resp.Order.Amount).To(gomega.Equal("50.00"))
		})

		ginkgo.It("rejects a missing amount", func() {
			rec := postJSON("/api/v1/orders", `{"order_id":"ORD1"}`)
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusBadRequest))
			gomega.Expect(rec.Body.String()).To(gomega.ContainSubstring("amount_cents is required"))
			gomega.Expect(repo.count()).To(gomega.Equal(0))
		})

		ginkgo.It("rejects malformed JSON", func() {
			rec := postJSON("/api/v1/orders", `{"order_id":`)
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusBadRequest))
		})
	})

	ginkgo.Describe("GetStatus", func() {
		ginkgo.It("returns 404 for unknown orders", func() {
			rec := serve(httptest.NewRequest(http.MethodGet, "/api/v1/orders/nope", nil))
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusNotFound))
			gomega.Expect(rec.Body.String()).To(gomega.ContainSubstring("ORDER_NOT_FOUND"))
		})
	})

	ginkgo.Describe("HandleCallback", func() {
		ginkgo.It("acknowledges with OK and updates the order", func() {
			postJSON("/api/v1/orders", `{"order_id":"ORD1","amount_cents":5000}`)

			rec := postForm("/toyyib/callback", url.Values{"order_id": {"ORD1"}, "status_id": {"1"}, "amount": {"50.00"}})
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
			gomega.Expect(rec.Body.String()).To(gomega.Equal("OK"))

			status := serve(httptest.NewRequest(http.MethodGet, "/api/v1/orders/ORD1", nil))
			var view order.StatusView
			gomega.Expect(json.Unmarshal(status.Body.Bytes(), &view)).To(gomega.Succeed())
			gomega.Expect(view.Status).To(gomega.Equal(order.StatusPaid))
			gomega.Expect(view.Paid).To(gomega.BeTrue())
			gomega.Expect(*view.Amount).To(gomega.Equal("50.00"))
		})

		ginkgo.It("answers FAIL with 500 so the gateway retries", func() {
			repo.failOn["Transact"] = errors.New("db down")
			rec := postForm("/toyyib/callback", url.Values{"order_id": {"ORD1"}, "status_id": {"1"}})
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusInternalServerError))
			gomega.Expect(rec.Body.String()).To(gomega.Equal("FAIL"))
		})

		ginkgo.It("rejects keys wider than the store columns with 400 and no store call", func() {
			rec := postForm("/toyyib/callback", url.Values{"order_id": {strings.Repeat("A", 65)}, "status_id": {"1"}})
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusBadRequest))
			gomega.Expect(rec.Body.String()).To(gomega.Equal("FAIL"))
			gomega.Expect(repo.calls).To(gomega.BeEmpty())

			rec = postForm("/toyyib/callback", url.Values{"billcode": {strings.Repeat("b", 65)}, "status_id": {"1"}})
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusBadRequest))
			gomega.Expect(repo.calls).To(gomega.BeEmpty())
		})
	})

	ginkgo.Describe("HandleReturn", func() {
		ginkgo.It("renders the receipt for query parameters", func() {
			rec := serve(httptest.NewRequest(http.MethodGet, "/toyyib/return?status_id=1&billcode=bc1&order_id=ORD1&amount=50.00", nil))
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
			gomega.Expect(rec.Header().Get("Content-Type")).To(gomega.HavePrefix("text/html"))
			gomega.Expect(rec.Body.String()).To(gomega.ContainSubstring("BERJAYA"))
			gomega.Expect(rec.Body.String()).To(gomega.ContainSubstring("myapp://payment-result?"))
			gomega.Expect(repo.count()).To(gomega.Equal(1))
		})

		ginkgo.It("still renders when the store is down", func() {
			repo.failOn["Transact"] = errors.New("db down")
			req := httptest.NewRequest(http.MethodPost, "/toyyib/return", bytes.NewBufferString("status_id=3&order_id=ORD9"))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			rec := serve(req)

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
			gomega.Expect(rec.Body.String()).To(gomega.ContainSubstring("GAGAL"))
			gomega.Expect(rec.Body.String()).To(gomega.ContainSubstring("ORD9"))
		})

		ginkgo.It("does not create an order from a bare status_id", func() {
			rec := serve(httptest.NewRequest(http.MethodGet, "/toyyib/return?status_id=1", nil))
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
			gomega.Expect(repo.calls).To(gomega.BeEmpty())
			gomega.Expect(repo.count()).To(gomega.Equal(0))
		})

		ginkgo.It("renders a blank receipt without touching the store", func() {
			rec := serve(httptest.NewRequest(http.MethodGet, "/toyyib/return", nil))
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
			gomega.Expect(repo.calls).To(gomega.BeEmpty())
		})
	})
})
