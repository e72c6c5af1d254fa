// Package reconciliation confirms orders stuck in a non-final state by asking
// the gateway for the bill's transactions.
package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	paymentgatewaytypes "github.com/frahmantamala/billpay-relay/internal/core/datamodel/paymentgateway"
	"github.com/frahmantamala/billpay-relay/internal/gateway"
	"github.com/frahmantamala/billpay-relay/internal/order"
)

type BillLookup interface {
	GetBillTransactions(ctx context.Context, billCode string) ([]paymentgatewaytypes.BillTransaction, error)
}

type Verifier interface {
	ApplyVerification(ctx context.Context, params order.EventParams) (*order.Order, error)
}

// Submitter queues verification jobs.
type Submitter interface {
	Submit(job gateway.Job) error
}

type Config struct {
	StaleAfter    time.Duration
	SweepInterval time.Duration
	BatchSize     int
}

type Sweeper struct {
	finder   order.StaleFinder
	gateway  BillLookup
	verifier Verifier
	queue    Submitter
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time

	inflight sync.Map
}

func NewSweeper(finder order.StaleFinder, lookup BillLookup, verifier Verifier, cfg Config, logger *slog.Logger) *Sweeper {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 15 * time.Minute
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Sweeper{
		finder:   finder,
		gateway:  lookup,
		verifier: verifier,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	s.now = now
	return s
}

// Attach sets the queue that Sweep submits to. Without one, jobs run inline.
func (s *Sweeper) Attach(queue Submitter) {
	s.queue = queue
}

// Run sweeps immediately and then on every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.Info("reconciliation sweeper started",
		"interval", s.cfg.SweepInterval,
		"stale_after", s.cfg.StaleAfter,
		"batch_size", s.cfg.BatchSize)

	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		if _, err := s.Sweep(ctx); err != nil {
			s.logger.Error("reconciliation sweep failed", "error", err)
		}

		select {
		case <-ctx.Done():
			s.logger.Info("reconciliation sweeper stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Sweep finds stale orders and schedules a verification for each one that is
// not already queued. It returns the number of jobs scheduled.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.cfg.StaleAfter)
	stale, err := s.finder.FindStale(ctx, cutoff, s.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	scheduled := 0
	for _, o := range stale {
		job := gateway.Job{OrderID: o.OrderID, BillCode: o.BillCode}
		if _, busy := s.inflight.LoadOrStore(job.OrderID, struct{}{}); busy {
			continue
		}

		if s.queue == nil {
			s.Process(ctx, job)
			scheduled++
			continue
		}

		if err := s.queue.Submit(job); err != nil {
			s.inflight.Delete(job.OrderID)
			if errors.Is(err, gateway.ErrQueueFull) {
				s.logger.Warn("verification queue full, deferring remaining orders", "scheduled", scheduled)
				break
			}
			return scheduled, err
		}
		scheduled++
	}

	if len(stale) > 0 {
		s.logger.Info("reconciliation sweep", "stale", len(stale), "scheduled", scheduled)
	}
	return scheduled, nil
}

// Process is the pool's job handler.
func (s *Sweeper) Process(ctx context.Context, job gateway.Job) {
	defer s.inflight.Delete(job.OrderID)

	lg := s.logger.With("order_id", job.OrderID, "bill_code", job.BillCode)
	updated, err := s.Verify(ctx, job)
	if err != nil {
		lg.Error("order verification failed", "error", err)
		return
	}
	if updated == nil {
		lg.Debug("no gateway transaction yet")
		return
	}
	lg.Info("order verified", "status", updated.Status, "status_detail", updated.StatusDetail)
}

// Verify fetches the bill's transactions and applies the deciding one.
// It returns nil without error when the gateway has nothing to report.
func (s *Sweeper) Verify(ctx context.Context, job gateway.Job) (*order.Order, error) {
	txns, err := s.gateway.GetBillTransactions(ctx, job.BillCode)
	if err != nil {
		return nil, fmt.Errorf("get bill transactions: %w", err)
	}

	txn, ok := paymentgatewaytypes.Latest(txns)
	if !ok {
		return nil, nil
	}

	values := txn.Params(job.BillCode)
	// the stored row is authoritative for which order this bill belongs to
	values["order_id"] = job.OrderID

	return s.verifier.ApplyVerification(ctx, order.ParamsFromValues(values))
}
