package order

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	errors "github.com/frahmantamala/billpay-relay/internal"
	"github.com/frahmantamala/billpay-relay/internal/cache"
	"github.com/frahmantamala/billpay-relay/internal/core/events"
	"github.com/frahmantamala/billpay-relay/internal/money"
	"github.com/frahmantamala/billpay-relay/pkg/logger"
)

const statusCacheOperation = "order_status"

// maxResolveAttempts bounds retries after losing an insert race to a concurrent event.
const maxResolveAttempts = 3

type ServiceAPI interface {
	PreRegister(ctx context.Context, req RegisterRequest) (*Order, error)
	SyncReturn(ctx context.Context, params EventParams) (*Order, error)
	HandleCallback(ctx context.Context, params EventParams) (*Order, error)
	ApplyVerification(ctx context.Context, params EventParams) (*Order, error)
	GetStatus(ctx context.Context, orderID string) (*StatusView, error)
}

type EngineConfig struct {
	DefaultCurrency  string
	TerminalStatuses bool
	CacheTTL         time.Duration
}

type Service struct {
	repo      Repository
	cache     cache.Cache
	publisher events.Publisher
	logger    *slog.Logger
	cfg       EngineConfig
	now       func() time.Time
}

func NewService(repo Repository, c cache.Cache, publisher events.Publisher, cfg EngineConfig, lg *slog.Logger) *Service {
	if lg == nil {
		lg = logger.LoggerWrapper()
	}
	if c == nil {
		c = cache.NewNoop("billpay-relay")
	}
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = "MYR"
	}
	return &Service{
		repo:      repo,
		cache:     c,
		publisher: publisher,
		logger:    lg,
		cfg:       cfg,
		now:       time.Now,
	}
}

// WithClock sets the clock used for paid_at. Store timestamps use the store's own clock.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) PreRegister(ctx context.Context, req RegisterRequest) (*Order, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		s.logger.Warn("pre-registration rejected", "order_id", req.OrderID, "error", err)
		return nil, err
	}

	o, err := s.repo.UpsertPreRegister(ctx, req.ToRegistration(s.cfg.DefaultCurrency))
	if err != nil {
		s.logger.Error("pre-registration store failure", "order_id", req.OrderID, "error", err)
		return nil, errors.NewStoreError("failed to register order", err)
	}

	s.invalidate(ctx, o.OrderID)
	s.logger.Info("order pre-registered",
		"order_id", o.OrderID,
		"amount_cents", req.AmountCents,
		"status", o.Status)
	return o, nil
}

// SyncReturn applies a user redirect. Callers render a page even when this fails.
func (s *Service) SyncReturn(ctx context.Context, params EventParams) (*Order, error) {
	return s.apply(ctx, SourceReturn, params)
}

// HandleCallback applies the gateway's authoritative notification. Errors are retryable.
func (s *Service) HandleCallback(ctx context.Context, params EventParams) (*Order, error) {
	return s.apply(ctx, SourceCallback, params)
}

// ApplyVerification applies a status confirmed by querying the gateway.
func (s *Service) ApplyVerification(ctx context.Context, params EventParams) (*Order, error) {
	return s.apply(ctx, SourceVerify, params)
}

// Replay pushes a synthetic event through the same path as a callback.
func (s *Service) Replay(ctx context.Context, params EventParams) (*Order, error) {
	return s.apply(ctx, SourceReplay, params)
}

// inbound is an event after normalization.
type inbound struct {
	source     Source
	params     EventParams
	status     Status
	amount     *int64
	raw        json.RawMessage
	receivedAt time.Time
}

// outcome describes what a merge did, for logging and events.
type outcome struct {
	resolution      Resolution
	created         bool
	previous        Status
	current         Status
	mismatch        bool
	storedCents     int64
	reportedCents   int64
	terminalIgnored bool
}

func (s *Service) apply(ctx context.Context, source Source, params EventParams) (*Order, error) {
	lg := s.log(ctx).With(
		"source", source,
		"order_id", params.OrderID,
		"bill_code", params.BillCode,
		"status_id", params.StatusID)

	if err := params.Validate(); err != nil {
		lg.Warn("event rejected", "error", err)
		return nil, err
	}
	ev := s.normalize(source, params)

	var (
		result *Order
		out    outcome
	)
	err := s.repo.Transact(ctx, func(tx Repository) error {
		var err error
		result, out, err = s.merge(ctx, tx, ev)
		return err
	})
	if err != nil {
		lg.Error("order reconciliation failed", "error", err)
		return nil, errors.NewStoreError("failed to reconcile order", err)
	}

	lg.Info("order reconciled",
		"resolved_order_id", result.OrderID,
		"resolution", out.resolution.String(),
		"created", out.created,
		"previous_status", out.previous,
		"status", result.Status,
		"status_detail", result.StatusDetail)

	if out.terminalIgnored {
		lg.Info("status change ignored for final order",
			"resolved_order_id", result.OrderID,
			"kept_status", result.Status,
			"reported_status", ev.status)
	}
	if out.mismatch {
		lg.Warn("amount mismatch",
			"resolved_order_id", result.OrderID,
			"stored_cents", out.storedCents,
			"reported_cents", out.reportedCents)
	}

	s.invalidate(ctx, result.OrderID)
	s.publish(ctx, result, out, source)
	return result, nil
}

// log prefers the request-scoped logger so trace ids carry through.
func (s *Service) log(ctx context.Context) *slog.Logger {
	if lg, ok := logger.FromContext(ctx); ok {
		return lg
	}
	return s.logger
}

func (s *Service) normalize(source Source, params EventParams) inbound {
	ev := inbound{
		source:     source,
		params:     params,
		status:     MapStatus(params.StatusID),
		amount:     money.Normalize(params.Amount),
		receivedAt: s.now().UTC(),
	}
	payload := map[string]interface{}{
		"source":      string(source),
		"received_at": ev.receivedAt,
		"params":      params.Raw,
	}
	if raw, err := json.Marshal(payload); err == nil {
		ev.raw = raw
	}
	return ev
}

func (s *Service) merge(ctx context.Context, tx Repository, ev inbound) (*Order, outcome, error) {
	for attempt := 0; attempt < maxResolveAttempts; attempt++ {
		current, resolution, err := tx.Resolve(ctx, ev.params.Keys())
		if err != nil {
			return nil, outcome{}, fmt.Errorf("resolve order: %w", err)
		}

		if resolution == NotFound {
			o := s.orderFromEvent(ev)
			created, err := tx.InsertIfAbsent(ctx, o)
			if err != nil {
				return nil, outcome{}, err
			}
			if !created {
				// A concurrent event inserted the row first; merge into it instead.
				continue
			}
			stored, err := tx.FindByOrderID(ctx, o.OrderID)
			if err != nil {
				return nil, outcome{}, fmt.Errorf("reload order: %w", err)
			}
			return stored, outcome{resolution: NotFound, created: true, current: stored.Status}, nil
		}

		fields, out := s.decide(current, ev)
		out.resolution = resolution
		if _, err := tx.MergeStatusUpdate(ctx, Keys{OrderID: current.OrderID}, fields); err != nil {
			return nil, outcome{}, err
		}
		stored, err := tx.FindByOrderID(ctx, current.OrderID)
		if err != nil {
			return nil, outcome{}, fmt.Errorf("reload order: %w", err)
		}
		out.current = stored.Status
		return stored, out, nil
	}
	return nil, outcome{}, fmt.Errorf("order %q kept changing while resolving", ev.params.OrderID)
}

// decide computes the partial update for an existing order.
func (s *Service) decide(current *Order, ev inbound) (StatusFields, outcome) {
	out := outcome{previous: current.Status}
	fields := StatusFields{RawPayload: ev.raw}

	if ev.params.BillCode != "" {
		fields.BillCode = strPtr(ev.params.BillCode)
	}
	if ev.params.TransactionID != "" {
		fields.TransactionID = strPtr(ev.params.TransactionID)
	}

	if ev.amount != nil {
		stored, confirmed := current.ConfirmedAmount()
		switch {
		case !confirmed:
			fields.AmountCents = ev.amount
		case *ev.amount != 0 && *ev.amount != stored:
			out.mismatch = true
			out.storedCents = stored
			out.reportedCents = *ev.amount
		}
	}

	base := ev.status
	if s.cfg.TerminalStatuses && current.IsTerminal() && ev.status != current.Status {
		out.terminalIgnored = true
		base = current.Status
	} else {
		status := ev.status
		fields.Status = &status
		if ev.params.StatusID != "" {
			fields.StatusID = strPtr(ev.params.StatusID)
		}
		if status == StatusPaid {
			paidAt := ev.receivedAt
			fields.PaidAt = &paidAt
		}
	}

	detail := string(base)
	if out.mismatch || current.HasAmountMismatch() {
		detail += AmountMismatchSuffix
	}
	fields.StatusDetail = &detail

	return fields, out
}

func (s *Service) orderFromEvent(ev inbound) *Order {
	o := &Order{
		OrderID:      ev.params.OrderID,
		AmountCents:  ev.amount,
		Currency:     s.cfg.DefaultCurrency,
		Status:       ev.status,
		StatusDetail: string(ev.status),
		RawPayload:   ev.raw,
	}
	if ev.params.BillCode != "" {
		o.BillCode = strPtr(ev.params.BillCode)
	}
	if ev.params.StatusID != "" {
		o.StatusID = strPtr(ev.params.StatusID)
	}
	if ev.params.TransactionID != "" {
		o.TransactionID = strPtr(ev.params.TransactionID)
	}
	if ev.status == StatusPaid {
		paidAt := ev.receivedAt
		o.PaidAt = &paidAt
	}
	return o
}

func (s *Service) GetStatus(ctx context.Context, orderID string) (*StatusView, error) {
	key := s.cache.GenerateKey(statusCacheOperation, orderID)
	if cached, err := s.cache.Get(ctx, key); err != nil {
		s.logger.Warn("status cache read failed", "order_id", orderID, "error", err)
	} else if cached != "" {
		var view StatusView
		if err := json.Unmarshal([]byte(cached), &view); err == nil {
			return &view, nil
		}
	}

	o, err := s.repo.FindByOrderID(ctx, orderID)
	if err != nil {
		if _, ok := errors.IsAppError(err); ok {
			return nil, err
		}
		s.logger.Error("status lookup failed", "order_id", orderID, "error", err)
		return nil, errors.NewStoreError("failed to load order", err)
	}

	view := NewStatusView(o)
	if b, err := json.Marshal(view); err == nil {
		if err := s.cache.Set(ctx, key, string(b), s.cfg.CacheTTL); err != nil {
			s.logger.Warn("status cache write failed", "order_id", orderID, "error", err)
		}
	}
	return &view, nil
}

func (s *Service) invalidate(ctx context.Context, orderID string) {
	if err := s.cache.Delete(ctx, s.cache.GenerateKey(statusCacheOperation, orderID)); err != nil {
		s.logger.Warn("status cache invalidation failed", "order_id", orderID, "error", err)
	}
}

// publish emits events only on transitions so re-delivered events stay silent.
func (s *Service) publish(ctx context.Context, o *Order, out outcome, source Source) {
	if s.publisher == nil {
		return
	}

	var evts []events.Event
	if out.mismatch {
		evts = append(evts, events.NewAmountMismatchEvent(o.OrderID, out.storedCents, out.reportedCents, string(source)))
	}
	if out.current != out.previous || out.created {
		switch out.current {
		case StatusPaid:
			evts = append(evts, events.NewOrderPaidEvent(o.OrderID, o.BillCodeValue(), o.AmountCents, string(source)))
		case StatusFailed:
			evts = append(evts, events.NewOrderFailedEvent(o.OrderID, o.BillCodeValue(), o.AmountCents, string(source)))
		}
	}

	for _, e := range evts {
		if err := s.publisher.Publish(ctx, e); err != nil {
			s.logger.Error("failed to publish order event", "event_type", e.EventType(), "order_id", o.OrderID, "error", err)
		}
	}
}

func strPtr(s string) *string {
	return &s
}
