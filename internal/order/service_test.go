package order_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"

	appErrors "github.com/frahmantamala/billpay-relay/internal"
	"github.com/frahmantamala/billpay-relay/internal/core/events"
	"github.com/frahmantamala/billpay-relay/internal/order"
)

var _ = ginkgo.Describe("Service", func() {
	var (
		logs      *bytes.Buffer
		repo      *memoryRepository
		publisher *recordingPublisher
		cache     *memoryCache
		svc       *order.Service
		ctx       context.Context
		now       time.Time
	)

	newService := func(terminal bool) *order.Service {
		return order.NewService(repo, cache, publisher, order.EngineConfig{
			DefaultCurrency:  "MYR",
			TerminalStatuses: terminal,
			CacheTTL:         time.Minute,
		}, slog.New(slog.NewTextHandler(logs, nil))).WithClock(func() time.Time { return now })
	}

	callback := func(values map[string]string) (*order.Order, error) {
		return svc.HandleCallback(ctx, order.ParamsFromValues(values))
	}

	register := func(id string, cents int64) {
		_, err := svc.PreRegister(ctx, order.RegisterRequest{OrderID: id, AmountCents: int64Ptr(cents)})
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
	}

	ginkgo.BeforeEach(func() {
		logs = &bytes.Buffer{}
		repo = newMemoryRepository()
		publisher = &recordingPublisher{}
		cache = newMemoryCache()
		ctx = context.Background()
		now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		svc = newService(true)
	})

	ginkgo.Describe("PreRegister", func() {
		ginkgo.It("creates a REGISTERED order with the default currency", func() {
			o, err := svc.PreRegister(ctx, order.RegisterRequest{OrderID: "ORD1", AmountCents: int64Ptr(5000)})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(o.Status).To(gomega.Equal(order.StatusRegistered))
			gomega.Expect(o.Currency).To(gomega.Equal("MYR"))
			gomega.Expect(*o.AmountCents).To(gomega.Equal(int64(5000)))
		})

		ginkgo.It("keeps one row and takes the latest payer fields", func() {
			_, err := svc.PreRegister(ctx, order.RegisterRequest{OrderID: "ORD1", AmountCents: int64Ptr(5000), PayerName: strPtr("Ali")})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			o, err := svc.PreRegister(ctx, order.RegisterRequest{OrderID: "ORD1", AmountCents: int64Ptr(6000), PayerName: strPtr("Abu"), PayerEmail: strPtr("abu@example.com")})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			gomega.Expect(repo.count()).To(gomega.Equal(1))
			gomega.Expect(*o.PayerName).To(gomega.Equal("Abu"))
			gomega.Expect(*o.PayerEmail).To(gomega.Equal("abu@example.com"))
			gomega.Expect(*o.AmountCents).To(gomega.Equal(int64(6000)))
		})

		ginkgo.It("leaves the status of a paid order untouched", func() {
			register("ORD1", 5000)
			_, err := callback(map[string]string{"order_id": "ORD1", "status_id": "1"})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			o, err := svc.PreRegister(ctx, order.RegisterRequest{OrderID: "ORD1", AmountCents: int64Ptr(5000)})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(o.Status).To(gomega.Equal(order.StatusPaid))
		})

		ginkgo.It("rejects invalid input without touching the store", func() {
			_, err := svc.PreRegister(ctx, order.RegisterRequest{OrderID: "", AmountCents: nil})
			appErr, ok := appErrors.IsAppError(err)
			gomega.Expect(ok).To(gomega.BeTrue())
			gomega.Expect(appErr.Type).To(gomega.Equal(appErrors.ErrorTypeValidation))
			gomega.Expect(repo.calls).To(gomega.BeEmpty())
		})

		ginkgo.It("surfaces store failures as retryable", func() {
			repo.failOn["UpsertPreRegister"] = errors.New("connection reset")
			_, err := svc.PreRegister(ctx, order.RegisterRequest{OrderID: "ORD1", AmountCents: int64Ptr(1)})
			gomega.Expect(appErrors.IsRetryable(err)).To(gomega.BeTrue())
		})
	})

	ginkgo.Describe("status-bearing events", func() {
		ginkgo.It("marks a registered order paid and sets paid_at once", func() {
			register("ORD1", 5000)

			o, err := callback(map[string]string{"order_id": "ORD1", "status_id": "1", "amount": "50.00", "billcode": "bc1"})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(o.Status).To(gomega.Equal(order.StatusPaid))
			gomega.Expect(o.StatusDetail).To(gomega.Equal("PAID"))
			gomega.Expect(o.BillCodeValue()).To(gomega.Equal("bc1"))
			gomega.Expect(*o.PaidAt).To(gomega.Equal(now))

			firstPaidAt := *o.PaidAt
			now = now.Add(time.Hour)
			o, err = callback(map[string]string{"order_id": "ORD1", "status_id": "1", "amount": "50.00"})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(*o.PaidAt).To(gomega.Equal(firstPaidAt))
		})

		ginkgo.It("creates exactly one row for an unknown order, even when re-delivered", func() {
			_, err := callback(map[string]string{"order_id": "NEW1", "status_id": "3", "amount": "250"})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			o, err := callback(map[string]string{"order_id": "NEW1", "status_id": "3", "amount": "250"})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			gomega.Expect(repo.count()).To(gomega.Equal(1))
			gomega.Expect(o.Status).To(gomega.Equal(order.StatusFailed))
			gomega.Expect(*o.AmountCents).To(gomega.Equal(int64(250)))
			gomega.Expect(o.HasAmountMismatch()).To(gomega.BeFalse())
		})

		ginkgo.It("synthesizes a placeholder id when the event has no keys", func() {
			o, err := callback(map[string]string{"status_id": "2"})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(o.OrderID).To(gomega.HavePrefix("AUTO-"))
			gomega.Expect(o.Status).To(gomega.Equal(order.StatusPending))
		})

		ginkgo.It("falls back to the bill code when order_id is unknown", func() {
			_, err := svc.PreRegister(ctx, order.RegisterRequest{OrderID: "ORD1", AmountCents: int64Ptr(1000), BillCode: strPtr("bc9")})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			o, err := callback(map[string]string{"order_id": "OTHER", "billcode": "bc9", "status_id": "1"})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(o.OrderID).To(gomega.Equal("ORD1"))
			gomega.Expect(o.Status).To(gomega.Equal(order.StatusPaid))
			gomega.Expect(repo.count()).To(gomega.Equal(1))
		})

		ginkgo.It("prefers order_id over a bill code that belongs to another order", func() {
			_, err := svc.PreRegister(ctx, order.RegisterRequest{OrderID: "A", AmountCents: int64Ptr(100), BillCode: strPtr("shared")})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			register("B", 200)

			o, err := callback(map[string]string{"order_id": "B", "billcode": "shared", "status_id": "1"})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(o.OrderID).To(gomega.Equal("B"))

			a, err := repo.FindByOrderID(ctx, "A")
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(a.Status).To(gomega.Equal(order.StatusRegistered))
		})

		ginkgo.It("flags but does not overwrite a conflicting amount", func() {
			register("ORD1", 1000)

			o, err := callback(map[string]string{"order_id": "ORD1", "status_id": "1", "amount": "1500"})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(o.StatusDetail).To(gomega.HaveSuffix(order.AmountMismatchSuffix))
			gomega.Expect(o.StatusDetail).To(gomega.Equal("PAID_AMOUNT_MISMATCH"))
			gomega.Expect(*o.AmountCents).To(gomega.Equal(int64(1000)))
			gomega.Expect(o.Status).To(gomega.Equal(order.StatusPaid))
			gomega.Expect(publisher.types()).To(gomega.ContainElement(events.EventTypeOrderAmountMismatch))

			gomega.Expect(logs.String()).To(gomega.MatchRegexp(`level=WARN msg="amount mismatch".*stored_cents=1000 reported_cents=1500`))
		})

		ginkgo.It("does not warn when the reported amount matches", func() {
			register("ORD1", 1000)
			_, err := callback(map[string]string{"order_id": "ORD1", "status_id": "1", "amount": "10.00"})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(logs.String()).NotTo(gomega.ContainSubstring("amount mismatch"))
		})

		ginkgo.It("rejects over-long keys as a non-retryable validation error", func() {
			_, err := callback(map[string]string{"order_id": strings.Repeat("A", 65), "status_id": "1"})
			appErr, ok := appErrors.IsAppError(err)
			gomega.Expect(ok).To(gomega.BeTrue())
			gomega.Expect(appErr.Type).To(gomega.Equal(appErrors.ErrorTypeValidation))
			gomega.Expect(appErrors.IsRetryable(err)).To(gomega.BeFalse())
			gomega.Expect(repo.calls).To(gomega.BeEmpty())
		})

		ginkgo.It("keeps the mismatch flag on later matching events", func() {
			register("ORD1", 1000)
			svc = newService(false)

			_, err := callback(map[string]string{"order_id": "ORD1", "status_id": "2", "amount": "1500"})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			o, err := callback(map[string]string{"order_id": "ORD1", "status_id": "1", "amount": "10.00"})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(o.StatusDetail).To(gomega.Equal("PAID_AMOUNT_MISMATCH"))
		})

		ginkgo.It("fills in an amount when none is stored", func() {
			_, err := callback(map[string]string{"order_id": "ORD1", "status_id": "2"})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			o, err := callback(map[string]string{"order_id": "ORD1", "status_id": "1", "amount": "12.5"})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(*o.AmountCents).To(gomega.Equal(int64(1250)))
			gomega.Expect(o.HasAmountMismatch()).To(gomega.BeFalse())
		})

		ginkgo.It("ignores malformed amounts instead of treating them as zero", func() {
			register("ORD1", 1000)
			o, err := callback(map[string]string{"order_id": "ORD1", "status_id": "1", "amount": "abc"})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(*o.AmountCents).To(gomega.Equal(int64(1000)))
			gomega.Expect(o.HasAmountMismatch()).To(gomega.BeFalse())
		})

		ginkgo.It("degrades unknown status codes to PENDING", func() {
			register("ORD1", 1000)
			o, err := callback(map[string]string{"order_id": "ORD1", "status_id": "99"})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(o.Status).To(gomega.Equal(order.StatusPending))
			gomega.Expect(o.StatusIDValue()).To(gomega.Equal("99"))
		})

		ginkgo.It("retains the event as the raw payload", func() {
			o, err := callback(map[string]string{"order_id": "ORD1", "status_id": "1", "refno": "TX1"})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			var payload map[string]interface{}
			gomega.Expect(json.Unmarshal(o.RawPayload, &payload)).To(gomega.Succeed())
			gomega.Expect(payload["source"]).To(gomega.Equal("callback"))
			gomega.Expect(payload["params"]).To(gomega.HaveKeyWithValue("refno", "TX1"))
			gomega.Expect(*o.TransactionID).To(gomega.Equal("TX1"))
		})

		ginkgo.Context("with terminal statuses enabled", func() {
			ginkgo.It("does not let a late FAILED overwrite PAID", func() {
				register("ORD1", 5000)
				_, err := callback(map[string]string{"order_id": "ORD1", "status_id": "1"})
				gomega.Expect(err).ToNot(gomega.HaveOccurred())

				o, err := callback(map[string]string{"order_id": "ORD1", "status_id": "3", "billcode": "late-bc"})
				gomega.Expect(err).ToNot(gomega.HaveOccurred())
				gomega.Expect(o.Status).To(gomega.Equal(order.StatusPaid))
				gomega.Expect(o.StatusIDValue()).To(gomega.Equal("1"))
				gomega.Expect(o.BillCodeValue()).To(gomega.Equal("late-bc"))
				gomega.Expect(o.PaidAt).ToNot(gomega.BeNil())
			})
		})

		ginkgo.Context("with terminal statuses disabled", func() {
			ginkgo.BeforeEach(func() {
				svc = newService(false)
			})

			ginkgo.It("lets the last event win but keeps paid_at", func() {
				register("ORD1", 5000)
				_, err := callback(map[string]string{"order_id": "ORD1", "status_id": "1"})
				gomega.Expect(err).ToNot(gomega.HaveOccurred())

				o, err := callback(map[string]string{"order_id": "ORD1", "status_id": "3"})
				gomega.Expect(err).ToNot(gomega.HaveOccurred())
				gomega.Expect(o.Status).To(gomega.Equal(order.StatusFailed))
				gomega.Expect(o.PaidAt).ToNot(gomega.BeNil())
			})
		})

		ginkgo.It("publishes paid events only on the transition", func() {
			register("ORD1", 5000)
			for i := 0; i < 3; i++ {
				_, err := callback(map[string]string{"order_id": "ORD1", "status_id": "1"})
				gomega.Expect(err).ToNot(gomega.HaveOccurred())
			}
			gomega.Expect(publisher.types()).To(gomega.Equal([]string{events.EventTypeOrderPaid}))
		})

		ginkgo.It("invalidates the cached status after a merge", func() {
			register("ORD1", 5000)
			_, err := svc.GetStatus(ctx, "ORD1")
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			key := cache.GenerateKey("order_status", "ORD1")
			gomega.Expect(cache.values).To(gomega.HaveKey(key))

			_, err = callback(map[string]string{"order_id": "ORD1", "status_id": "1"})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(cache.values).ToNot(gomega.HaveKey(key))

			view, err := svc.GetStatus(ctx, "ORD1")
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(view.Paid).To(gomega.BeTrue())
		})

		ginkgo.It("returns a retryable store error when the store fails", func() {
			repo.failOn["Resolve"] = errors.New("db down")
			_, err := callback(map[string]string{"order_id": "ORD1", "status_id": "1"})
			gomega.Expect(err).To(gomega.HaveOccurred())
			gomega.Expect(appErrors.IsRetryable(err)).To(gomega.BeTrue())
			gomega.Expect(strings.Contains(err.Error(), "db down")).To(gomega.BeTrue())
		})

		ginkgo.It("uses the same path for return sync and verification", func() {
			register("ORD1", 5000)
			o, err := svc.SyncReturn(ctx, order.ParamsFromValues(map[string]string{"order_id": "ORD1", "status_id": "2"}))
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(o.Status).To(gomega.Equal(order.StatusPending))

			o, err = svc.ApplyVerification(ctx, order.ParamsFromValues(map[string]string{"billcode": "", "order_id": "ORD1", "status_id": "1"}))
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(o.Status).To(gomega.Equal(order.StatusPaid))
		})
	})

	ginkgo.Describe("GetStatus", func() {
		ginkgo.It("renders the amount as a decimal string", func() {
			register("ORD1", 5000)
			view, err := svc.GetStatus(ctx, "ORD1")
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(*view.Amount).To(gomega.Equal("50.00"))
			gomega.Expect(view.Paid).To(gomega.BeFalse())
		})

		ginkgo.It("returns not found for unknown orders", func() {
			_, err := svc.GetStatus(ctx, "missing")
			gomega.Expect(errors.Is(err, appErrors.ErrOrderNotFound)).To(gomega.BeTrue())
		})
	})
})
