package order

import (
	"time"

	"gorm.io/datatypes"
)

// Order is the persisted row. The table is keyed by order_id and indexed by bill_code and status.
type Order struct {
	OrderID       string         `gorm:"column:order_id;primaryKey;size:64"`
	BillCode      *string        `gorm:"column:bill_code;size:64;index:idx_orders_bill_code"`
	AmountCents   *int64         `gorm:"column:amount_cents"`
	Currency      string         `gorm:"column:currency;size:3;not null"`
	StatusID      *string        `gorm:"column:status_id;size:16"`
	Status        string         `gorm:"column:status;size:16;not null;index:idx_orders_status"`
	StatusDetail  string         `gorm:"column:status_detail;size:64;not null"`
	PayerName     *string        `gorm:"column:payer_name;size:255"`
	PayerEmail    *string        `gorm:"column:payer_email;size:255"`
	PayerPhone    *string        `gorm:"column:payer_phone;size:64"`
	TransactionID *string        `gorm:"column:transaction_id;size:128"`
	RawPayload    datatypes.JSON `gorm:"column:raw_payload"`
	PaidAt        *time.Time     `gorm:"column:paid_at"`
	CreatedAt     time.Time      `gorm:"column:created_at;not null"`
	UpdatedAt     time.Time      `gorm:"column:updated_at;not null"`
}

func (Order) TableName() string {
	return "orders"
}
