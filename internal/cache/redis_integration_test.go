//go:build integration

package cache_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/frahmantamala/billpay-relay/internal/cache"
)

var _ = Describe("redis cache", Ordered, func() {
	var (
		container testcontainers.Container
		c         cache.Cache
		ctx       = context.Background()
	)

	BeforeAll(func() {
		var err error
		container, err = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: testcontainers.ContainerRequest{
				Image:        "redis:7-alpine",
				ExposedPorts: []string{"6379/tcp"},
				WaitingFor:   wait.ForLog("Ready to accept connections"),
			},
			Started: true,
		})
		Expect(err).NotTo(HaveOccurred())

		endpoint, err := container.Endpoint(ctx, "")
		Expect(err).NotTo(HaveOccurred())
		c = cache.NewRedisCache(endpoint, "relay-it")
	})

	AfterAll(func() {
		if c != nil {
			_ = c.Close()
		}
		if container != nil {
			_ = container.Terminate(ctx)
		}
	})

	It("round trips and deletes values", func() {
		key := c.GenerateKey("order_status", "ORD1")
		Expect(c.Set(ctx, key, `{"status":"PAID"}`, time.Minute)).To(Succeed())

		val, err := c.Get(ctx, key)
		Expect(err).NotTo(HaveOccurred())
		Expect(val).To(Equal(`{"status":"PAID"}`))

		Expect(c.Delete(ctx, key)).To(Succeed())
		val, err = c.Get(ctx, key)
		Expect(err).NotTo(HaveOccurred())
		Expect(val).To(BeEmpty())
	})
})
