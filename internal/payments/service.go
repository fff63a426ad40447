package payments

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pharmatech-uz/pharmacy-core/internal/domain"
	"github.com/pharmatech-uz/pharmacy-core/internal/notify"
	"github.com/pharmatech-uz/pharmacy-core/internal/orders"
)

// Service owns payment state. Every mutation runs in its own transaction
// with the payment row locked first, which is what makes duplicate webhook
// deliveries harmless.
type Service struct {
	db       *sql.DB
	notifier notify.Notifier
	logger   *slog.Logger
}

func NewService(db *sql.DB, notifier notify.Notifier, logger *slog.Logger) *Service {
	return &Service{
		db:       db,
		notifier: notifier,
		logger:   logger,
	}
}

func generatePaymentID() string {
	id := uuid.New()
	return "PAY-" + strings.ToUpper(hex.EncodeToString(id[:8]))
}

// Create makes a pending payment for an order awaiting payment. If a
// successful payment already exists for (order, provider) it is returned
// as-is, protecting against duplicate client requests.
func (s *Service) Create(ctx context.Context, orderID string, provider domain.PaymentProvider, actorUserID string) (*domain.Payment, error) {
	if !domain.ValidProvider(provider) {
		return nil, fmt.Errorf("unknown payment provider %q", provider)
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
	var total decimal.Decimal
	err = tx.QueryRowContext(ctx, `
		SELECT user_id, status, total_price FROM orders WHERE id = $1 FOR UPDATE
	`, orderID).Scan(&ownerID, &status, &total)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}

	if actorUserID != "" && ownerID != actorUserID {
		return nil, domain.ErrOrderNotFound
	}

	if status != domain.OrderStatusAwaitingPayment {
		return nil, fmt.Errorf("%w: order is %s", domain.ErrInvalidOrderState, status)
	}

	existing, err := scanPayment(tx.QueryRowContext(ctx, `
		SELECT `+paymentColumns+` FROM payments
		WHERE order_id = $1 AND provider = $2 AND status = 'success'
	`, orderID, provider))
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		return existing, nil
	}

	payment := &domain.Payment{
		ID:        uuid.New().String(),
		PaymentID: generatePaymentID(),
		OrderID:   orderID,
		UserID:    ownerID,
		Provider:  provider,
		Status:    domain.PaymentStatusPending,
		Amount:    total,
		CreatedAt: time.Now().UTC(),
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO payments (id, payment_id, order_id, user_id, provider, status, amount, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, payment.ID, payment.PaymentID, payment.OrderID, payment.UserID, payment.Provider, payment.Status, payment.Amount, payment.CreatedAt)
	if err != nil {
		return nil, err
	}

	created, _ := json.Marshal(map[string]string{"amount": total.String(), "provider": string(provider)})
	if err := logEvent(ctx, tx, payment.ID, "created", created, nil, ""); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.logger.Info("payment created", "payment_id", payment.PaymentID, "order_id", orderID, "provider", provider, "amount", total.String())

	return payment, nil
}

// Complete marks a payment successful and, when the owning order is still
// awaiting payment, advances it to paid. Calling it again once successful
// is a no-op; gateways retry webhooks and must see the same answer.
func (s *Service) Complete(ctx context.Context, paymentRowID string, providerData json.RawMessage) error {
	var succeeded bool
	var userID, orderID, publicID string

	err := s.withPayment(ctx, paymentRowID, func(tx *sql.Tx, p *domain.Payment) error {
		userID, orderID, publicID = p.UserID, p.OrderID, p.PaymentID

		if p.Status == domain.PaymentStatusSuccess {
			return nil
		}
		if !domain.CanMarkSuccess(p.Status) {
			return fmt.Errorf("%w: %s -> success", domain.ErrIllegalPaymentTransition, p.Status)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE payments
			SET status = 'success', completed_at = NOW(), provider_response = COALESCE($2, provider_response)
			WHERE id = $1
		`, p.ID, nullableJSON(providerData)); err != nil {
			return err
		}

		var orderStatus domain.OrderStatus
		if err := tx.QueryRowContext(ctx, `
			SELECT status FROM orders WHERE id = $1 FOR UPDATE
		`, p.OrderID).Scan(&orderStatus); err != nil {
			return err
		}
		if orderStatus == domain.OrderStatusAwaitingPayment {
			if err := orders.Transition(ctx, tx, p.OrderID, domain.OrderStatusPaid, nil); err != nil {
				return err
			}
		}

		succeeded = true
		return logEvent(ctx, tx, p.ID, "completed", nil, providerData, "")
	})
	if err != nil {
		return err
	}

	if succeeded {
		s.notifyAfterCommit(ctx, userID, domain.NotifyPaymentSuccess, map[string]string{
			"order_id":   orderID,
			"payment_id": publicID,
		})
		s.logger.Info("payment completed", "payment_id", publicID, "order_id", orderID)
	}

	return nil
}

// Fail records a provider-reported failure. Already-failed payments are
// left untouched.
func (s *Service) Fail(ctx context.Context, paymentRowID, errorMessage string, providerData json.RawMessage) error {
	return s.withPayment(ctx, paymentRowID, func(tx *sql.Tx, p *domain.Payment) error {
		if p.Status == domain.PaymentStatusFailed {
			return nil
		}
		if p.Status == domain.PaymentStatusSuccess || p.Status == domain.PaymentStatusRefunded {
			return fmt.Errorf("%w: %s -> failed", domain.ErrIllegalPaymentTransition, p.Status)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE payments
			SET status = 'failed', error_message = $2, provider_response = COALESCE($3, provider_response)
			WHERE id = $1
		`, p.ID, errorMessage, nullableJSON(providerData)); err != nil {
			return err
		}

		return logEvent(ctx, tx, p.ID, "failed", nil, providerData, errorMessage)
	})
}

// Cancel is driven by provider-side cancellation. A settled payment cannot
// be cancelled.
func (s *Service) Cancel(ctx context.Context, paymentRowID string, providerData json.RawMessage) error {
	return s.withPayment(ctx, paymentRowID, func(tx *sql.Tx, p *domain.Payment) error {
		if p.Status == domain.PaymentStatusCancelled {
			return nil
		}
		if !domain.CanMarkCancelled(p.Status) {
			return fmt.Errorf("%w: %s -> cancelled", domain.ErrIllegalPaymentTransition, p.Status)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE payments SET status = 'cancelled', cancelled_at = NOW() WHERE id = $1
		`, p.ID); err != nil {
			return err
		}

		return logEvent(ctx, tx, p.ID, "cancelled", providerData, nil, "")
	})
}

// withPayment runs fn inside a transaction with the payment row locked.
func (s *Service) withPayment(ctx context.Context, paymentRowID string, fn func(tx *sql.Tx, p *domain.Payment) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	p, err := scanPayment(tx.QueryRowContext(ctx, `
		SELECT `+paymentColumns+` FROM payments WHERE id = $1 FOR UPDATE
	`, paymentRowID))
	if err != nil {
		return err
	}
	if p == nil {
		return domain.ErrPaymentNotFound
	}

	if err := fn(tx, p); err != nil {
		return err
	}

	return tx.Commit()
}

func logEvent(ctx context.Context, q orders.Queryer, paymentRowID, eventType string, requestData, responseData json.RawMessage, errorMessage string) error {
	if requestData == nil {
		requestData = json.RawMessage(`{}`)
	}
	if responseData == nil {
		responseData = json.RawMessage(`{}`)
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO payment_logs (id, payment_id, event_type, request_data, response_data, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`, uuid.New().String(), paymentRowID, eventType, []byte(requestData), []byte(responseData), errorMessage)
	return err
}

func nullableJSON(data json.RawMessage) any {
	if data == nil {
		return nil
	}
	return []byte(data)
}

func (s *Service) notifyAfterCommit(ctx context.Context, userID, notificationType string, metadata map[string]string) {
	if err := s.notifier.Notify(ctx, userID, notificationType, metadata, true); err != nil {
		s.logger.Error("failed to publish notification", "error", err, "type", notificationType, "user_id", userID)
	}
}
