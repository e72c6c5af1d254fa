package sqlrepo

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/frahmantamala/billpay-relay/internal/order"
)

// StaleOrderFinder is the read path used by the verification sweeper. It
// queries through sqlx so the hot write path and the sweep do not share a gorm session.
type StaleOrderFinder struct {
	db *sqlx.DB
}

func NewStaleOrderFinder(db *sqlx.DB) *StaleOrderFinder {
	return &StaleOrderFinder{db: db}
}

const staleOrdersQuery = `
SELECT order_id, bill_code, status, updated_at
FROM orders
WHERE status IN (?, ?)
  AND bill_code IS NOT NULL
  AND bill_code <> ''
  AND updated_at < ?
ORDER BY updated_at ASC`

func (f *StaleOrderFinder) FindStale(ctx context.Context, updatedBefore time.Time, limit int) ([]order.StaleOrder, error) {
	if limit <= 0 {
		limit = 50
	}

	query := staleOrdersQuery
	args := []interface{}{string(order.StatusRegistered), string(order.StatusPending), updatedBefore.UTC()}
	if f.db.DriverName() == "sqlserver" {
		query += " OFFSET 0 ROWS FETCH NEXT ? ROWS ONLY"
	} else {
		query += " LIMIT ?"
	}
	args = append(args, limit)

	var rows []order.StaleOrder
	if err := f.db.SelectContext(ctx, &rows, f.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("find stale orders: %w", err)
	}
	return rows, nil
}

// Ping is used by the readiness probe.
func (f *StaleOrderFinder) Ping(ctx context.Context) error {
	return f.db.PingContext(ctx)
}
