package order

import (
	"strings"
	"time"

	"github.com/frahmantamala/billpay-relay/internal/core/common/validation"
	"github.com/frahmantamala/billpay-relay/internal/money"
)

// RegisterRequest is the JSON body of POST /api/v1/orders.
type RegisterRequest struct {
	OrderID     string  `json:"order_id"`
	AmountCents *int64  `json:"amount_cents"`
	Currency    string  `json:"currency,omitempty"`
	PayerName   *string `json:"payer_name,omitempty"`
	PayerEmail  *string `json:"payer_email,omitempty"`
	PayerPhone  *string `json:"payer_phone,omitempty"`
	BillCode    *string `json:"bill_code,omitempty"`
}

func (r *RegisterRequest) Normalize() {
	r.OrderID = strings.TrimSpace(r.OrderID)
	r.Currency = strings.ToUpper(strings.TrimSpace(r.Currency))
	r.PayerName = trimmedOrNil(r.PayerName)
	r.PayerEmail = trimmedOrNil(r.PayerEmail)
	r.PayerPhone = trimmedOrNil(r.PayerPhone)
	r.BillCode = trimmedOrNil(r.BillCode)
}

func (r *RegisterRequest) Validate() error {
	validator := validation.NewValidator()

	validator.Field("order_id", r.OrderID).
		Required().
		MaxLength(validation.MaxOrderIDLength)
	validator.Field("payer_name", r.PayerName).MaxLength(validation.MaxPayerLength)
	validator.Field("payer_email", r.PayerEmail).Email().MaxLength(validation.MaxPayerLength)
	validator.Field("payer_phone", r.PayerPhone).MaxLength(64)
	validator.Field("bill_code", r.BillCode).MaxLength(64)

	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	if appErr := validation.ValidateOrderID(r.OrderID); appErr != nil {
		return appErr
	}
	if appErr := validation.ValidateAmountCents(r.AmountCents); appErr != nil {
		return appErr
	}
	if appErr := validation.ValidateCurrency(r.Currency); appErr != nil {
		return appErr
	}
	return nil
}

func (r *RegisterRequest) ToRegistration(defaultCurrency string) *Registration {
	currency := r.Currency
	if currency == "" {
		currency = defaultCurrency
	}
	return &Registration{
		OrderID:     r.OrderID,
		AmountCents: *r.AmountCents,
		Currency:    currency,
		BillCode:    r.BillCode,
		PayerName:   r.PayerName,
		PayerEmail:  r.PayerEmail,
		PayerPhone:  r.PayerPhone,
	}
}

type RegisterResponse struct {
	OK    bool       `json:"ok"`
	Order StatusView `json:"order"`
}

// StatusView is the status query output.
type StatusView struct {
	OrderID      string     `json:"order_id"`
	BillCode     *string    `json:"bill_code"`
	AmountCents  *int64     `json:"amount_cents"`
	Amount       *string    `json:"amount"`
	Currency     string     `json:"currency"`
	StatusID     *string    `json:"status_id"`
	Status       Status     `json:"status"`
	StatusDetail string     `json:"status_detail"`
	Paid         bool       `json:"paid"`
	PaidAt       *time.Time `json:"paid_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func NewStatusView(o *Order) StatusView {
	v := StatusView{
		OrderID:      o.OrderID,
		BillCode:     o.BillCode,
		AmountCents:  o.AmountCents,
		Currency:     o.Currency,
		StatusID:     o.StatusID,
		Status:       o.Status,
		StatusDetail: o.StatusDetail,
		Paid:         o.IsPaid(),
		PaidAt:       o.PaidAt,
		UpdatedAt:    o.UpdatedAt,
	}
	if o.AmountCents != nil {
		amount := money.FormatCents(*o.AmountCents)
		v.Amount = &amount
	}
	return v
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	if t == "" {
		return nil
	}
	return &t
}
