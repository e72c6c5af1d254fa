// Package sqlrepo stores orders through gorm. The same code serves the
// postgres, sqlserver and sqlite dialects.
package sqlrepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	appErrors "github.com/frahmantamala/billpay-relay/internal"
	datamodel "github.com/frahmantamala/billpay-relay/internal/core/datamodel/order"
	"github.com/frahmantamala/billpay-relay/internal/order"
)

const placeholderPrefix = "AUTO-"

type OrderRepository struct {
	db    *gorm.DB
	now   func() time.Time
	inTx  bool
	locks bool
}

type Option func(*OrderRepository)

// WithClock overrides the store clock used for created_at, updated_at and placeholder ids.
func WithClock(now func() time.Time) Option {
	return func(r *OrderRepository) {
		r.now = now
	}
}

func NewOrderRepository(db *gorm.DB, opts ...Option) *OrderRepository {
	r := &OrderRepository{
		db:  db,
		now: time.Now,
		// sqlite serializes writers itself and sqlserver takes row locks on UPDATE.
		locks: db.Dialector.Name() == "postgres",
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *OrderRepository) clock() time.Time {
	return r.now().UTC()
}

func (r *OrderRepository) Transact(ctx context.Context, fn func(repo order.Repository) error) error {
	if r.inTx {
		return fn(r)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&OrderRepository{db: tx, now: r.now, inTx: true, locks: r.locks})
	})
}

func (r *OrderRepository) UpsertPreRegister(ctx context.Context, reg *order.Registration) (*order.Order, error) {
	now := r.clock()
	m := &datamodel.Order{
		OrderID:      reg.OrderID,
		BillCode:     reg.BillCode,
		AmountCents:  &reg.AmountCents,
		Currency:     reg.Currency,
		Status:       string(order.StatusRegistered),
		StatusDetail: string(order.StatusRegistered),
		PayerName:    reg.PayerName,
		PayerEmail:   reg.PayerEmail,
		PayerPhone:   reg.PayerPhone,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	columns := []string{"amount_cents", "currency", "payer_name", "payer_email", "payer_phone", "updated_at"}
	if reg.BillCode != nil {
		columns = append(columns, "bill_code")
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_id"}},
			DoUpdates: clause.AssignmentColumns(columns),
		}).
		Create(m).Error
	if err != nil {
		return nil, fmt.Errorf("upsert order %s: %w", reg.OrderID, err)
	}

	return r.FindByOrderID(ctx, reg.OrderID)
}

// Resolve tries order_id first and falls back to the most recently updated row carrying bill_code.
func (r *OrderRepository) Resolve(ctx context.Context, keys order.Keys) (*order.Order, order.Resolution, error) {
	if keys.OrderID != "" {
		m, err := r.take(ctx, r.query(ctx).Where("order_id = ?", keys.OrderID))
		if err != nil {
			return nil, order.NotFound, err
		}
		if m != nil {
			return toDomain(m), order.MatchedByOrderID, nil
		}
	}

	if keys.BillCode != "" {
		m, err := r.take(ctx, r.query(ctx).
			Where("bill_code = ?", keys.BillCode).
			Order("updated_at DESC").
			Order("order_id"))
		if err != nil {
			return nil, order.NotFound, err
		}
		if m != nil {
			return toDomain(m), order.MatchedByBillCode, nil
		}
	}

	return nil, order.NotFound, nil
}

func (r *OrderRepository) query(ctx context.Context) *gorm.DB {
	q := r.db.WithContext(ctx).Model(&datamodel.Order{})
	if r.inTx && r.locks {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return q
}

func (r *OrderRepository) take(ctx context.Context, q *gorm.DB) (*datamodel.Order, error) {
	var m datamodel.Order
	err := q.Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *OrderRepository) MergeStatusUpdate(ctx context.Context, keys order.Keys, fields order.StatusFields) (order.Resolution, error) {
	current, resolution, err := r.Resolve(ctx, keys)
	if err != nil || resolution == order.NotFound {
		return resolution, err
	}

	updates := map[string]interface{}{
		"updated_at": r.clock(),
	}
	if fields.BillCode != nil {
		updates["bill_code"] = *fields.BillCode
	}
	if fields.AmountCents != nil {
		updates["amount_cents"] = *fields.AmountCents
	}
	if fields.StatusID != nil {
		updates["status_id"] = *fields.StatusID
	}
	if fields.Status != nil {
		updates["status"] = string(*fields.Status)
	}
	if fields.StatusDetail != nil {
		updates["status_detail"] = *fields.StatusDetail
	}
	if fields.TransactionID != nil {
		updates["transaction_id"] = *fields.TransactionID
	}
	if fields.RawPayload != nil {
		updates["raw_payload"] = datatypes.JSON(fields.RawPayload)
	}
	if fields.PaidAt != nil {
		updates["paid_at"] = gorm.Expr("COALESCE(paid_at, ?)", fields.PaidAt.UTC())
	}

	err = r.db.WithContext(ctx).
		Model(&datamodel.Order{}).
		Where("order_id = ?", current.OrderID).
		Updates(updates).Error
	if err != nil {
		return order.NotFound, fmt.Errorf("merge order %s: %w", current.OrderID, err)
	}

	return resolution, nil
}

// InsertIfAbsent reports false when a row with the same order_id already exists.
func (r *OrderRepository) InsertIfAbsent(ctx context.Context, o *order.Order) (bool, error) {
	now := r.clock()
	if o.OrderID == "" {
		o.OrderID = r.placeholderID(now)
	}
	o.CreatedAt = now
	o.UpdatedAt = now

	m := toModel(o)
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_id"}},
			DoNothing: true,
		}).
		Create(m)
	if res.Error != nil {
		return false, fmt.Errorf("insert order %s: %w", o.OrderID, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *OrderRepository) placeholderID(now time.Time) string {
	suffix := uuid.NewString()[:8]
	return fmt.Sprintf("%s%d-%s", placeholderPrefix, now.UnixMilli(), suffix)
}

func (r *OrderRepository) FindByOrderID(ctx context.Context, orderID string) (*order.Order, error) {
	var m datamodel.Order
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, appErrors.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return toDomain(&m), nil
}

func toDomain(m *datamodel.Order) *order.Order {
	o := &order.Order{
		OrderID:       m.OrderID,
		BillCode:      m.BillCode,
		AmountCents:   m.AmountCents,
		Currency:      m.Currency,
		StatusID:      m.StatusID,
		Status:        order.Status(m.Status),
		StatusDetail:  m.StatusDetail,
		PayerName:     m.PayerName,
		PayerEmail:    m.PayerEmail,
		PayerPhone:    m.PayerPhone,
		TransactionID: m.TransactionID,
		PaidAt:        m.PaidAt,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
	if len(m.RawPayload) > 0 {
		o.RawPayload = []byte(m.RawPayload)
	}
	return o
}

func toModel(o *order.Order) *datamodel.Order {
	m := &datamodel.Order{
		OrderID:       o.OrderID,
		BillCode:      o.BillCode,
		AmountCents:   o.AmountCents,
		Currency:      o.Currency,
		StatusID:      o.StatusID,
		Status:        string(o.Status),
		StatusDetail:  o.StatusDetail,
		PayerName:     o.PayerName,
		PayerEmail:    o.PayerEmail,
		PayerPhone:    o.PayerPhone,
		TransactionID: o.TransactionID,
		PaidAt:        o.PaidAt,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
	if len(o.RawPayload) > 0 {
		m.RawPayload = datatypes.JSON(o.RawPayload)
	}
	return m
}
