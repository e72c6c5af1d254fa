package gateway_test

import (
	"context"
	"io"
	"log/slog"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/billpay-relay/internal/gateway"
)

var _ = Describe("Pool", func() {
	var logger *slog.Logger

	BeforeEach(func() {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	})

	It("processes every submitted job", func() {
		var (
			mu   sync.Mutex
			seen []string
		)
		pool := gateway.NewPool(gateway.PoolConfig{MaxWorkers: 3, JobQueueSize: 10}, func(_ context.Context, job gateway.Job) {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, job.OrderID)
		}, logger)
		pool.Start()
		defer pool.Shutdown()

		for _, id := range []string{"A", "B", "C", "D"} {
			Expect(pool.Submit(gateway.Job{OrderID: id, BillCode: "bc-" + id})).To(Succeed())
		}

		Eventually(func() []string {
			mu.Lock()
			defer mu.Unlock()
			return append([]string(nil), seen...)
		}).Should(ConsistOf("A", "B", "C", "D"))
	})

	It("rejects jobs when the queue is full", func() {
		block := make(chan struct{})
		pool := gateway.NewPool(gateway.PoolConfig{MaxWorkers: 1, JobQueueSize: 1}, func(ctx context.Context, _ gateway.Job) {
			select {
			case <-block:
			case <-ctx.Done():
			}
		}, logger)
		pool.Start()
		defer pool.Shutdown()
		defer close(block)

		// one job in the worker, one held by the dispatcher, one in the queue
		Expect(pool.Submit(gateway.Job{OrderID: "1"})).To(Succeed())
		Eventually(pool.Pending).Should(BeZero())
		Expect(pool.Submit(gateway.Job{OrderID: "2"})).To(Succeed())
		Eventually(pool.Pending).Should(BeZero())
		Expect(pool.Submit(gateway.Job{OrderID: "3"})).To(Succeed())

		Expect(pool.Submit(gateway.Job{OrderID: "4"})).To(MatchError(gateway.ErrQueueFull))
	})

	It("refuses work after shutdown", func() {
		pool := gateway.NewPool(gateway.PoolConfig{}, func(context.Context, gateway.Job) {}, logger)
		pool.Start()
		pool.Shutdown()
		Expect(pool.Submit(gateway.Job{OrderID: "late"})).To(MatchError(context.Canceled))
	})
})
