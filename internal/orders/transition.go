package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/pharmatech-uz/pharmacy-core/internal/domain"
)

// Queryer is satisfied by *sql.DB and *sql.Tx. Transition always runs
// inside the caller's transaction so the status update and its history row
// commit together.
type Queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Transition is the single write path for order status. It locks the order
// row, checks the transition table, updates the status, and appends exactly
// one history row.
func Transition(ctx context.Context, q Queryer, orderID string, to domain.OrderStatus, changedBy *string) error {
	if uuid.Validate(orderID) != nil {
		return domain.ErrOrderNotFound
	}

	var from domain.OrderStatus
	err := q.QueryRowContext(ctx, `
		SELECT status FROM orders WHERE id = $1 FOR UPDATE
	`, orderID).Scan(&from)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrOrderNotFound
	}
	if err != nil {
		return err
	}

	if !domain.CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrIllegalTransition, from, to)
	}

	if _, err := q.ExecContext(ctx, `
		UPDATE orders SET status = $2 WHERE id = $1
	`, orderID, to); err != nil {
		return err
	}

	if _, err := q.ExecContext(ctx, `
		INSERT INTO order_status_history (id, order_id, from_status, to_status, changed_by, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`, uuid.New().String(), orderID, from, to, changedBy); err != nil {
		return err
	}

	return nil
}
