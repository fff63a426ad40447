package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pharmatech-uz/pharmacy-core/internal/catalog"
	"github.com/pharmatech-uz/pharmacy-core/internal/domain"
	"github.com/pharmatech-uz/pharmacy-core/internal/notify"
)

type Service struct {
	db       *sql.DB
	stock    *catalog.StockLedger
	notifier notify.Notifier
	logger   *slog.Logger
}

func NewService(db *sql.DB, stock *catalog.StockLedger, notifier notify.Notifier, logger *slog.Logger) *Service {
	return &Service{
		db:       db,
		stock:    stock,
		notifier: notifier,
		logger:   logger,
	}
}

// Checkout converts the user's cart into an order in a single transaction:
// cart row lock, expiry validation, price freeze, order + item insert,
// conditional stock decrement per item, cart clear. Any failure rolls the
// whole thing back; no partial order is ever observable.
func (s *Service) Checkout(ctx context.Context, userID, deliveryAddress string) (*domain.Order, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var cartID string
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM carts WHERE user_id = $1 FOR UPDATE
	`, userID).Scan(&cartID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrCartEmpty
	}
	if err != nil {
		return nil, err
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT ci.product_id, ci.quantity, p.name, p.price, p.requires_prescription, p.expiry_date
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		WHERE ci.cart_id = $1
	`, cartID)
	if err != nil {
		return nil, err
	}

	type frozenItem struct {
		productID string
		quantity  int
		price     decimal.Decimal
	}

	today := time.Now().UTC().Truncate(24 * time.Hour)
	needsPrescription := false
	total := decimal.Zero
	var frozen []frozenItem

	for rows.Next() {
		var (
			productID, name      string
			quantity             int
			price                decimal.Decimal
			requiresPrescription bool
			expiryDate           *time.Time
		)
		if err := rows.Scan(&productID, &quantity, &name, &price, &requiresPrescription, &expiryDate); err != nil {
			_ = rows.Close()
			return nil, err
		}

		if expiryDate != nil && expiryDate.Before(today) {
			_ = rows.Close()
			return nil, fmt.Errorf("%w: %s", domain.ErrProductExpired, name)
		}

		if requiresPrescription {
			needsPrescription = true
		}

		total = total.Add(price.Mul(decimal.NewFromInt(int64(quantity))))
		frozen = append(frozen, frozenItem{productID: productID, quantity: quantity, price: price})
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	if len(frozen) == 0 {
		return nil, domain.ErrCartEmpty
	}

	status := domain.OrderStatusAwaitingPayment
	if needsPrescription {
		status = domain.OrderStatusAwaitingPrescription
	}

	order := &domain.Order{
		ID:                uuid.New().String(),
		UserID:            userID,
		Status:            status,
		TotalPrice:        total,
		DeliveryAddress:   deliveryAddress,
		NeedsPrescription: needsPrescription,
		CreatedAt:         time.Now().UTC(),
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, status, total_price, delivery_address, needs_prescription, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, order.ID, order.UserID, order.Status, order.TotalPrice, order.DeliveryAddress, order.NeedsPrescription, order.CreatedAt)
	if err != nil {
		return nil, err
	}

	for _, item := range frozen {
		orderItem := domain.OrderItem{
			ID:        uuid.New().String(),
			ProductID: item.productID,
			Quantity:  item.quantity,
			Price:     item.price,
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, product_id, quantity, price)
			VALUES ($1, $2, $3, $4, $5)
		`, orderItem.ID, order.ID, orderItem.ProductID, orderItem.Quantity, orderItem.Price)
		if err != nil {
			return nil, err
		}
		order.Items = append(order.Items, orderItem)
	}

	for _, item := range frozen {
		if err := s.stock.Decrease(ctx, tx, item.productID, item.quantity); err != nil {
			return nil, err
		}
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM cart_items WHERE cart_id = $1
	`, cartID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.notifyAfterCommit(ctx, userID, domain.NotifyOrderCreated, map[string]string{
		"order_id":    order.ID,
		"total_price": order.TotalPrice.String(),
		"status":      string(order.Status),
	})

	s.logger.Info("order created", "order_id", order.ID, "user_id", userID,
		"status", order.Status, "total_price", order.TotalPrice.String())

	return order, nil
}

// Cancel restores stock for every item and moves the order to cancelled.
// Permitted only before payment; refunds are not handled here.
func (s *Service) Cancel(ctx context.Context, orderID string, actor Actor) (*domain.Order, error) {
	if !domain.CanPerform(actor.Role, domain.ActionCancelOrder) {
		return nil, domain.ErrForbidden
	}
	if uuid.Validate(orderID) != nil {
		return nil, domain.ErrOrderNotFound
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var ownerID string
	var status domain.OrderStatus
	err = tx.QueryRowContext(ctx, `
		SELECT user_id, status FROM orders WHERE id = $1 FOR UPDATE
	`, orderID).Scan(&ownerID, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}

	if actor.Role == domain.RoleCustomer && ownerID != actor.UserID {
		return nil, domain.ErrForbidden
	}

	if !domain.CanCancel(status) {
		return nil, fmt.Errorf("%w: cannot cancel from %s", domain.ErrInvalidOrderStatus, status)
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT product_id, quantity FROM order_items WHERE order_id = $1
	`, orderID)
	if err != nil {
		return nil, err
	}

	type restoredItem struct {
		productID string
		quantity  int
	}
	var restored []restoredItem
	for rows.Next() {
		var item restoredItem
		if err := rows.Scan(&item.productID, &item.quantity); err != nil {
			_ = rows.Close()
			return nil, err
		}
		restored = append(restored, item)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	for _, item := range restored {
		if err := s.stock.Increase(ctx, tx, item.productID, item.quantity); err != nil {
			return nil, err
		}
	}

	if err := Transition(ctx, tx, orderID, domain.OrderStatusCancelled, &actor.UserID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.notifyAfterCommit(ctx, ownerID, domain.NotifyOrderCancelled, map[string]string{
		"order_id": orderID,
	})

	s.logger.Info("order cancelled", "order_id", orderID, "actor", actor.UserID)

	return NewOrderRepository(s.db).GetByID(ctx, orderID)
}

// ChangeStatus drives an order through the generic status path. The state
// machine enforces legality; this layer enforces who may do it.
func (s *Service) ChangeStatus(ctx context.Context, orderID string, target domain.OrderStatus, actor Actor) (*domain.Order, error) {
	if !domain.CanPerform(actor.Role, domain.ActionChangeOrderStatus) {
		return nil, domain.ErrForbidden
	}
	if !domain.CanSetStatus(actor.Role, target) {
		return nil, domain.ErrForbidden
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := Transition(ctx, tx, orderID, target, &actor.UserID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	order, err := NewOrderRepository(s.db).GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	s.notifyAfterCommit(ctx, order.UserID, domain.NotifyOrderStatusChanged, map[string]string{
		"order_id": orderID,
		"status":   string(target),
	})

	s.logger.Info("order status changed", "order_id", orderID, "status", target, "actor", actor.UserID)

	return order, nil
}

func (s *Service) AssignCourier(ctx context.Context, orderID, courierID string, actor Actor) error {
	if !domain.CanPerform(actor.Role, domain.ActionAssignCourier) {
		return domain.ErrForbidden
	}
	if uuid.Validate(orderID) != nil {
		return domain.ErrOrderNotFound
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE orders SET courier_id = $2 WHERE id = $1
	`, orderID, courierID)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return domain.ErrOrderNotFound
	}

	s.logger.Info("courier assigned", "order_id", orderID, "courier_id", courierID, "actor", actor.UserID)
	return nil
}

// notifyAfterCommit delivers a notification for an already-committed state
// change. Failures are logged and swallowed: the notification pipeline being
// down must never undo or block order state.
func (s *Service) notifyAfterCommit(ctx context.Context, userID, notificationType string, metadata map[string]string) {
	if err := s.notifier.Notify(ctx, userID, notificationType, metadata, true); err != nil {
		s.logger.Error("failed to publish notification", "error", err, "type", notificationType, "user_id", userID)
	}
}

// Actor identifies who is performing an operation.
type Actor struct {
	UserID string
	Role   domain.Role
}
