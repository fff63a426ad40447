package payments

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pharmatech-uz/pharmacy-core/internal/domain"
)

// Payme JSON-RPC error codes.
const (
	paymeErrAuth          = -32504
	paymeErrMethod        = -32601
	paymeErrParse         = -32700
	paymeErrOrderNotFound = -31050
	paymeErrAmount        = -31001
	paymeErrOrderState    = -31008
	paymeErrTxNotFound    = -31003
	paymeErrCannotCancel  = -31007
)

// Payme transaction state codes.
const (
	paymeStateCreated   = 1
	paymeStatePerformed = 2
	paymeStateCancelled = -1
)

type PaymeConfig struct {
	SecretKey string
}

type PaymeRequest struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params PaymeParams     `json:"params"`
}

type PaymeParams struct {
	ID      string `json:"id"`
	Amount  int64  `json:"amount"`
	Time    int64  `json:"time"`
	Account struct {
		OrderID string `json:"order_id"`
	} `json:"account"`
}

type PaymeError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

type PaymeResponse struct {
	Result any             `json:"result,omitempty"`
	Error  *PaymeError     `json:"error,omitempty"`
	ID     json.RawMessage `json:"id"`
}

type PaymeAdapter struct {
	cfg    PaymeConfig
	svc    *Service
	repo   *PaymentRepository
	logger *slog.Logger
}

func NewPaymeAdapter(cfg PaymeConfig, svc *Service, repo *PaymentRepository, logger *slog.Logger) *PaymeAdapter {
	return &PaymeAdapter{
		cfg:    cfg,
		svc:    svc,
		repo:   repo,
		logger: logger,
	}
}

// Authorize checks the fixed Basic credentials Payme sends with every
// request. It runs before any method dispatch.
func (a *PaymeAdapter) Authorize(authorizationHeader string) bool {
	const prefix = "Basic "
	if !strings.HasPrefix(authorizationHeader, prefix) {
		return false
	}
	decoded, err := base64.StdEncoding.DecodeString(authorizationHeader[len(prefix):])
	if err != nil {
		return false
	}
	expected := "Paycom:" + a.cfg.SecretKey
	return subtle.ConstantTimeCompare(decoded, []byte(expected)) == 1
}

func (a *PaymeAdapter) Handle(ctx context.Context, req PaymeRequest) PaymeResponse {
	switch req.Method {
	case "CheckPerformTransaction":
		return a.checkPerformTransaction(ctx, req)
	case "CreateTransaction":
		return a.createTransaction(ctx, req)
	case "PerformTransaction":
		return a.performTransaction(ctx, req)
	case "CancelTransaction":
		return a.cancelTransaction(ctx, req)
	case "CheckTransaction":
		return a.checkTransaction(ctx, req)
	default:
		return a.errorResponse(req, paymeErrMethod, "Method not found")
	}
}

// checkPerformTransaction validates order existence, amount, and state
// without side effects.
func (a *PaymeAdapter) checkPerformTransaction(ctx context.Context, req PaymeRequest) PaymeResponse {
	_, status, total, err := a.lookupOrder(ctx, req.Params.Account.OrderID)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			return a.errorResponse(req, paymeErrOrderNotFound, "Order not found")
		}
		a.logger.Error("payme order lookup failed", "error", err)
		return a.errorResponse(req, paymeErrOrderNotFound, "Order not found")
	}

	expected, ok := domain.ToTiyin(total)
	if !ok || req.Params.Amount != expected {
		return a.errorResponse(req, paymeErrAmount, "Incorrect amount")
	}

	if status != domain.OrderStatusAwaitingPayment {
		return a.errorResponse(req, paymeErrOrderState, "Order not ready for payment")
	}

	return a.successResponse(req, map[string]any{"allow": true})
}

// createTransaction is idempotent on the Payme transaction id: a repeated
// call returns the already-created payment instead of opening a second one.
func (a *PaymeAdapter) createTransaction(ctx context.Context, req PaymeRequest) PaymeResponse {
	existing, err := a.repo.GetByPaymeTransactionID(ctx, req.Params.ID)
	if err != nil {
		a.logger.Error("payme transaction lookup failed", "error", err)
		return a.errorResponse(req, paymeErrTxNotFound, "Transaction lookup failed")
	}
	if existing != nil {
		return a.successResponse(req, map[string]any{
			"transaction": existing.ID,
			"state":       paymeStateOf(existing.Status),
			"create_time": existing.CreatedAt.UnixMilli(),
		})
	}

	_, status, total, err := a.lookupOrder(ctx, req.Params.Account.OrderID)
	if err != nil {
		return a.errorResponse(req, paymeErrOrderNotFound, "Order not found")
	}

	expected, ok := domain.ToTiyin(total)
	if !ok || req.Params.Amount != expected {
		return a.errorResponse(req, paymeErrAmount, "Incorrect amount")
	}
	if status != domain.OrderStatusAwaitingPayment {
		return a.errorResponse(req, paymeErrOrderState, "Order not ready for payment")
	}

	payment, err := a.svc.Create(ctx, req.Params.Account.OrderID, domain.ProviderPayme, "")
	if err != nil {
		if errors.Is(err, domain.ErrInvalidOrderState) {
			return a.errorResponse(req, paymeErrOrderState, "Order not ready for payment")
		}
		a.logger.Error("payme create payment failed", "error", err)
		return a.errorResponse(req, paymeErrOrderState, "Unable to create transaction")
	}

	requestData, _ := json.Marshal(req.Params)
	err = a.svc.withPayment(ctx, payment.ID, func(tx *sql.Tx, p *domain.Payment) error {
		if _, err := tx.ExecContext(ctx, `
			UPDATE payments
			SET status = 'processing', payme_transaction_id = $2, payme_time = $3
			WHERE id = $1
		`, p.ID, req.Params.ID, req.Params.Time); err != nil {
			return err
		}
		return logEvent(ctx, tx, p.ID, "payme_create", requestData, nil, "")
	})
	if err != nil {
		a.logger.Error("payme create transaction failed", "error", err)
		return a.errorResponse(req, paymeErrOrderState, "Unable to create transaction")
	}

	return a.successResponse(req, map[string]any{
		"transaction": payment.ID,
		"state":       paymeStateCreated,
		"create_time": payment.CreatedAt.UnixMilli(),
	})
}

func (a *PaymeAdapter) performTransaction(ctx context.Context, req PaymeRequest) PaymeResponse {
	payment, err := a.repo.GetByPaymeTransactionID(ctx, req.Params.ID)
	if err != nil || payment == nil {
		return a.errorResponse(req, paymeErrTxNotFound, "Transaction not found")
	}

	requestData, _ := json.Marshal(req.Params)
	if err := a.svc.Complete(ctx, payment.ID, requestData); err != nil {
		a.logger.Error("payme perform failed", "error", err, "transaction_id", req.Params.ID)
		return a.errorResponse(req, paymeErrCannotCancel, "Unable to perform transaction")
	}

	// Re-read for the authoritative perform time.
	payment, err = a.repo.GetByPaymeTransactionID(ctx, req.Params.ID)
	if err != nil || payment == nil {
		return a.errorResponse(req, paymeErrTxNotFound, "Transaction not found")
	}

	var performTime int64
	if payment.CompletedAt != nil {
		performTime = payment.CompletedAt.UnixMilli()
	}

	return a.successResponse(req, map[string]any{
		"transaction":  payment.ID,
		"state":        paymeStatePerformed,
		"perform_time": performTime,
	})
}

func (a *PaymeAdapter) cancelTransaction(ctx context.Context, req PaymeRequest) PaymeResponse {
	payment, err := a.repo.GetByPaymeTransactionID(ctx, req.Params.ID)
	if err != nil || payment == nil {
		return a.errorResponse(req, paymeErrTxNotFound, "Transaction not found")
	}

	requestData, _ := json.Marshal(req.Params)
	if err := a.svc.Cancel(ctx, payment.ID, requestData); err != nil {
		if errors.Is(err, domain.ErrIllegalPaymentTransition) {
			return a.errorResponse(req, paymeErrCannotCancel, "Transaction already settled")
		}
		a.logger.Error("payme cancel failed", "error", err, "transaction_id", req.Params.ID)
		return a.errorResponse(req, paymeErrCannotCancel, "Unable to cancel transaction")
	}

	payment, err = a.repo.GetByPaymeTransactionID(ctx, req.Params.ID)
	if err != nil || payment == nil {
		return a.errorResponse(req, paymeErrTxNotFound, "Transaction not found")
	}

	var cancelTime int64
	if payment.CancelledAt != nil {
		cancelTime = payment.CancelledAt.UnixMilli()
	}

	return a.successResponse(req, map[string]any{
		"transaction": payment.ID,
		"state":       paymeStateCancelled,
		"cancel_time": cancelTime,
	})
}

// checkTransaction is a pure read.
func (a *PaymeAdapter) checkTransaction(ctx context.Context, req PaymeRequest) PaymeResponse {
	payment, err := a.repo.GetByPaymeTransactionID(ctx, req.Params.ID)
	if err != nil || payment == nil {
		return a.errorResponse(req, paymeErrTxNotFound, "Transaction not found")
	}

	result := map[string]any{
		"transaction": payment.ID,
		"state":       paymeStateOf(payment.Status),
		"create_time": payment.CreatedAt.UnixMilli(),
	}
	if payment.CompletedAt != nil {
		result["perform_time"] = payment.CompletedAt.UnixMilli()
	}
	if payment.CancelledAt != nil {
		result["cancel_time"] = payment.CancelledAt.UnixMilli()
	}

	return a.successResponse(req, result)
}

func (a *PaymeAdapter) lookupOrder(ctx context.Context, orderID string) (userID string, status domain.OrderStatus, total decimal.Decimal, err error) {
	// Payme sends account.order_id verbatim from the payment form; a
	// malformed id is an unknown order, not a server error.
	if uuid.Validate(orderID) != nil {
		return "", "", decimal.Decimal{}, domain.ErrOrderNotFound
	}
	err = a.svc.db.QueryRowContext(ctx, `
		SELECT user_id, status, total_price FROM orders WHERE id = $1
	`, orderID).Scan(&userID, &status, &total)
	if errors.Is(err, sql.ErrNoRows) {
		err = domain.ErrOrderNotFound
	}
	return userID, status, total, err
}

func paymeStateOf(status domain.PaymentStatus) int {
	switch status {
	case domain.PaymentStatusSuccess:
		return paymeStatePerformed
	case domain.PaymentStatusCancelled:
		return paymeStateCancelled
	default:
		return paymeStateCreated
	}
}

func (a *PaymeAdapter) successResponse(req PaymeRequest, result any) PaymeResponse {
	return PaymeResponse{Result: result, ID: req.ID}
}

func (a *PaymeAdapter) errorResponse(req PaymeRequest, code int, message string) PaymeResponse {
	return PaymeResponse{Error: &PaymeError{Code: code, Message: message}, ID: req.ID}
}
