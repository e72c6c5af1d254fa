package order

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

// AmountMismatchSuffix is appended to status_detail once a conflicting amount has been reported.
const AmountMismatchSuffix = "_AMOUNT_MISMATCH"

type Order struct {
	OrderID       string          `json:"order_id"`
	BillCode      *string         `json:"bill_code,omitempty"`
	AmountCents   *int64          `json:"amount_cents,omitempty"`
	Currency      string          `json:"currency"`
	StatusID      *string         `json:"status_id,omitempty"`
	Status        Status          `json:"status"`
	StatusDetail  string          `json:"status_detail"`
	PayerName     *string         `json:"payer_name,omitempty"`
	PayerEmail    *string         `json:"payer_email,omitempty"`
	PayerPhone    *string         `json:"payer_phone,omitempty"`
	TransactionID *string         `json:"transaction_id,omitempty"`
	RawPayload    json.RawMessage `json:"raw_payload,omitempty"`
	PaidAt        *time.Time      `json:"paid_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (o *Order) IsTerminal() bool {
	return o.Status.IsTerminal()
}

// IsPaid double checks paid_at so a PAID row is never reported unpaid.
func (o *Order) IsPaid() bool {
	return o.Status == StatusPaid || o.PaidAt != nil
}

func (o *Order) HasAmountMismatch() bool {
	return strings.HasSuffix(o.StatusDetail, AmountMismatchSuffix)
}

// ConfirmedAmount returns the stored amount when it is known and nonzero.
func (o *Order) ConfirmedAmount() (int64, bool) {
	if o.AmountCents == nil || *o.AmountCents == 0 {
		return 0, false
	}
	return *o.AmountCents, true
}

func (o *Order) BillCodeValue() string {
	if o.BillCode == nil {
		return ""
	}
	return *o.BillCode
}

func (o *Order) StatusIDValue() string {
	if o.StatusID == nil {
		return ""
	}
	return *o.StatusID
}

// Keys identify the target of a status-bearing event. Either may be empty.
type Keys struct {
	OrderID  string
	BillCode string
}

func (k Keys) Empty() bool {
	return k.OrderID == "" && k.BillCode == ""
}

// Resolution reports how an event was matched to a stored order.
type Resolution int

const (
	NotFound Resolution = iota
	MatchedByOrderID
	MatchedByBillCode
)

func (r Resolution) String() string {
	switch r {
	case MatchedByOrderID:
		return "matched_by_order_id"
	case MatchedByBillCode:
		return "matched_by_bill_code"
	default:
		return "not_found"
	}
}

// Registration is an authoritative pre-registration of an order.
type Registration struct {
	OrderID     string
	AmountCents int64
	Currency    string
	BillCode    *string
	PayerName   *string
	PayerEmail  *string
	PayerPhone  *string
}

// StatusFields is a partial update; nil fields are left untouched.
// PaidAt is only applied when the row has no paid_at yet.
type StatusFields struct {
	BillCode      *string
	AmountCents   *int64
	StatusID      *string
	Status        *Status
	StatusDetail  *string
	TransactionID *string
	RawPayload    json.RawMessage
	PaidAt        *time.Time
}

// Repository is the order store. Implementations serialize writes to a row in the database.
type Repository interface {
	// Transact runs fn against a repository bound to one database transaction.
	// Resolve inside fn locks the matched row where the dialect supports it.
	Transact(ctx context.Context, fn func(repo Repository) error) error
	UpsertPreRegister(ctx context.Context, reg *Registration) (*Order, error)
	Resolve(ctx context.Context, keys Keys) (*Order, Resolution, error)
	MergeStatusUpdate(ctx context.Context, keys Keys, fields StatusFields) (Resolution, error)
	InsertIfAbsent(ctx context.Context, o *Order) (bool, error)
	FindByOrderID(ctx context.Context, orderID string) (*Order, error)
}

// StaleOrder is a non-final order whose status should be confirmed with the gateway.
type StaleOrder struct {
	OrderID   string    `db:"order_id"`
	BillCode  string    `db:"bill_code"`
	Status    string    `db:"status"`
	UpdatedAt time.Time `db:"updated_at"`
}

type StaleFinder interface {
	FindStale(ctx context.Context, updatedBefore time.Time, limit int) ([]StaleOrder, error)
}
