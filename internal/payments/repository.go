package payments

import (
	"context"
	"database/sql"

	"github.com/pharmatech-uz/pharmacy-core/internal/domain"
)

const paymentColumns = `
	id, payment_id, order_id, user_id, provider, status, amount,
	click_trans_id, click_paydoc_id, payme_transaction_id, payme_time,
	provider_response, error_message, completed_at, cancelled_at, created_at
`

type PaymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPayment(row rowScanner) (*domain.Payment, error) {
	p := &domain.Payment{}
	err := row.Scan(&p.ID, &p.PaymentID, &p.OrderID, &p.UserID, &p.Provider, &p.Status, &p.Amount,
		&p.ClickTransID, &p.ClickPaydocID, &p.PaymeTransactionID, &p.PaymeTime,
		&p.ProviderResponse, &p.ErrorMessage, &p.CompletedAt, &p.CancelledAt, &p.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}

// GetByPaymentID looks a payment up by its public merchant id (the value
// providers echo back as merchant_trans_id).
func (r *PaymentRepository) GetByPaymentID(ctx context.Context, paymentID string) (*domain.Payment, error) {
	return scanPayment(r.db.QueryRowContext(ctx, `
		SELECT `+paymentColumns+` FROM payments WHERE payment_id = $1
	`, paymentID))
}

// GetByPaymeTransactionID resolves the Payme correlation id.
func (r *PaymentRepository) GetByPaymeTransactionID(ctx context.Context, transactionID string) (*domain.Payment, error) {
	return scanPayment(r.db.QueryRowContext(ctx, `
		SELECT `+paymentColumns+` FROM payments WHERE payme_transaction_id = $1
	`, transactionID))
}

func (r *PaymentRepository) ListByUser(ctx context.Context, userID string) ([]domain.Payment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+paymentColumns+` FROM payments WHERE user_id = $1 ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	payments := []domain.Payment{}
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return payments, nil
}

func (r *PaymentRepository) Logs(ctx context.Context, paymentID string) ([]domain.PaymentLog, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT l.id, l.payment_id, l.event_type, l.request_data, l.response_data, l.error_message, l.created_at
		FROM payment_logs l
		JOIN payments p ON p.id = l.payment_id
		WHERE p.payment_id = $1
		ORDER BY l.created_at
	`, paymentID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	logs := []domain.PaymentLog{}
	for rows.Next() {
		var l domain.PaymentLog
		if err := rows.Scan(&l.ID, &l.PaymentID, &l.EventType, &l.RequestData, &l.ResponseData, &l.ErrorMessage, &l.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return logs, nil
}
