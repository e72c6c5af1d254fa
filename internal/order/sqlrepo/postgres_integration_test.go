//go:build integration

package sqlrepo_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/frahmantamala/billpay-relay/db"
	datamodel "github.com/frahmantamala/billpay-relay/internal/core/datamodel/order"
	"github.com/frahmantamala/billpay-relay/internal/order"
	"github.com/frahmantamala/billpay-relay/internal/order/sqlrepo"
)

var _ = ginkgo.Describe("OrderRepository on postgres", ginkgo.Ordered, func() {
	var (
		ctx       = context.Background()
		container *tcpostgres.PostgresContainer
		gdb       *gorm.DB
		repo      *sqlrepo.OrderRepository
		svc       *order.Service
	)

	ginkgo.BeforeAll(func() {
		var err error
		container, err = tcpostgres.Run(ctx, "postgres:16-alpine",
			tcpostgres.WithDatabase("relay"),
			tcpostgres.WithUsername("relay"),
			tcpostgres.WithPassword("relay"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second)),
		)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())

		dsn, err := container.ConnectionString(ctx, "sslmode=disable")
		gomega.Expect(err).ToNot(gomega.HaveOccurred())

		gdb, err = gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
		gomega.Expect(err).ToNot(gomega.HaveOccurred())

		sqlDB, err := gdb.DB()
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(db.Migrate(ctx, sqlDB, "postgres", false)).To(gomega.Succeed())

		repo = sqlrepo.NewOrderRepository(gdb)
		svc = order.NewService(repo, nil, nil, order.EngineConfig{DefaultCurrency: "MYR", TerminalStatuses: true},
			slog.New(slog.NewTextHandler(io.Discard, nil)))
	})

	ginkgo.AfterAll(func() {
		if gdb != nil {
			if sqlDB, err := gdb.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}
		if container != nil {
			_ = container.Terminate(ctx)
		}
	})

	ginkgo.It("keeps one row when callbacks for an unknown order race", func() {
		var wg sync.WaitGroup
		errs := make(chan error, 8)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := svc.HandleCallback(ctx, order.ParamsFromValues(map[string]string{
					"order_id":  "RACE1",
					"billcode":  "race-bill",
					"status_id": "1",
					"amount":    "10.00",
				}))
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
		}

		var count int64
		gomega.Expect(gdb.Model(&datamodel.Order{}).Where("order_id = ?", "RACE1").Count(&count).Error).To(gomega.Succeed())
		gomega.Expect(count).To(gomega.Equal(int64(1)))

		o, err := repo.FindByOrderID(ctx, "RACE1")
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(o.Status).To(gomega.Equal(order.StatusPaid))
		gomega.Expect(o.PaidAt).ToNot(gomega.BeNil())
		gomega.Expect(*o.AmountCents).To(gomega.Equal(int64(1000)))
	})

	ginkgo.It("upserts pre-registrations and finds stale orders through sqlx", func() {
		bill := "stale-bill"
		_, err := repo.UpsertPreRegister(ctx, &order.Registration{OrderID: "PG1", AmountCents: 100, Currency: "MYR", BillCode: &bill})
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		_, err = repo.UpsertPreRegister(ctx, &order.Registration{OrderID: "PG1", AmountCents: 200, Currency: "MYR"})
		gomega.Expect(err).ToNot(gomega.HaveOccurred())

		o, err := repo.FindByOrderID(ctx, "PG1")
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(*o.AmountCents).To(gomega.Equal(int64(200)))
		gomega.Expect(o.BillCodeValue()).To(gomega.Equal("stale-bill"))

		sqlDB, err := gdb.DB()
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		finder := sqlrepo.NewStaleOrderFinder(sqlx.NewDb(sqlDB, "pgx"))
		stale, err := finder.FindStale(ctx, time.Now().Add(time.Minute), 10)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())

		ids := make([]string, 0, len(stale))
		for _, s := range stale {
			ids = append(ids, s.OrderID)
		}
		gomega.Expect(ids).To(gomega.ContainElement("PG1"))
	})
})
