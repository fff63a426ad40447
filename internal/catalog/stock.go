package catalog

import (
	"context"
	"database/sql"

	"github.com/pharmatech-uz/pharmacy-core/internal/domain"
)

// Execer is satisfied by *sql.DB and *sql.Tx so stock movements can join
// the caller's transaction during checkout and cancellation.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// StockLedger is the only code path allowed to mutate product stock.
type StockLedger struct{}

func NewStockLedger() *StockLedger {
	return &StockLedger{}
}

// Decrease decrements stock with a single conditional update. Zero rows
// affected means the product vanished or stock was short at that instant;
// callers cannot distinguish the two and must treat both as insufficient
// stock.
func (l *StockLedger) Decrease(ctx context.Context, q Execer, productID string, quantity int) error {
	result, err := q.ExecContext(ctx, `
		UPDATE products
		SET stock = stock - $2
		WHERE id = $1 AND stock >= $2
	`, productID, quantity)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return domain.ErrInsufficientStock
	}

	return nil
}

// Increase restores stock unconditionally. Compensation path only.
func (l *StockLedger) Increase(ctx context.Context, q Execer, productID string, quantity int) error {
	_, err := q.ExecContext(ctx, `
		UPDATE products
		SET stock = stock + $2
		WHERE id = $1
	`, productID, quantity)
	return err
}
