package payments

import (
	"context"
	"crypto/md5"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/pharmatech-uz/pharmacy-core/internal/domain"
)

// Click webhook error codes. Business rejections travel in the response
// body with HTTP 200; Click treats non-200 as infrastructure failure and
// retries aggressively.
const (
	clickSuccess          = 0
	clickErrSignature     = -1
	clickErrAmount        = -2
	clickErrAlreadyPaid   = -4
	clickErrNotFound      = -5
	clickErrTransCanceled = -9
)

type ClickConfig struct {
	ServiceID string
	SecretKey string
}

// ClickRequest carries the form fields Click posts to both webhook steps.
type ClickRequest struct {
	ClickTransID    string
	ServiceID       string
	MerchantTransID string
	Amount          string
	Action          string
	SignTime        string
	SignString      string
	Error           int
	ClickPaydocID   string
}

type ClickResponse struct {
	ClickTransID      string `json:"click_trans_id"`
	MerchantTransID   string `json:"merchant_trans_id"`
	MerchantPrepareID string `json:"merchant_prepare_id,omitempty"`
	MerchantConfirmID string `json:"merchant_confirm_id,omitempty"`
	Error             int    `json:"error"`
	ErrorNote         string `json:"error_note"`
}

type ClickAdapter struct {
	cfg    ClickConfig
	svc    *Service
	repo   *PaymentRepository
	logger *slog.Logger
}

func NewClickAdapter(cfg ClickConfig, svc *Service, repo *PaymentRepository, logger *slog.Logger) *ClickAdapter {
	return &ClickAdapter{
		cfg:    cfg,
		svc:    svc,
		repo:   repo,
		logger: logger,
	}
}

// VerifySignature checks the md5 digest Click computes over the canonical
// concatenation of request fields and the shared secret.
func (a *ClickAdapter) VerifySignature(req ClickRequest) bool {
	data := req.ClickTransID + a.cfg.ServiceID + a.cfg.SecretKey + req.MerchantTransID + req.Amount + req.Action + req.SignTime
	sum := md5.Sum([]byte(data))
	return hex.EncodeToString(sum[:]) == req.SignString
}

// HandlePrepare validates the signature, amount, and order state, then
// moves the payment to processing and records the Click transaction id for
// later correlation.
func (a *ClickAdapter) HandlePrepare(ctx context.Context, req ClickRequest) ClickResponse {
	if !a.VerifySignature(req) {
		return a.prepareResponse(req, clickErrSignature, "Invalid signature")
	}

	payment, err := a.repo.GetByPaymentID(ctx, req.MerchantTransID)
	if err != nil {
		a.logger.Error("click prepare lookup failed", "error", err, "merchant_trans_id", req.MerchantTransID)
		return a.prepareResponse(req, clickErrNotFound, "Payment not found")
	}
	if payment == nil {
		return a.prepareResponse(req, clickErrNotFound, "Payment not found")
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !payment.Amount.Equal(amount) {
		return a.prepareResponse(req, clickErrAmount, "Incorrect amount")
	}

	code := clickSuccess
	note := "Success"

	err = a.svc.withPayment(ctx, payment.ID, func(tx *sql.Tx, p *domain.Payment) error {
		var orderStatus domain.OrderStatus
		if err := tx.QueryRowContext(ctx, `
			SELECT status FROM orders WHERE id = $1
		`, p.OrderID).Scan(&orderStatus); err != nil {
			return err
		}

		requestData, _ := json.Marshal(req)

		switch {
		case orderStatus != domain.OrderStatusAwaitingPayment:
			code, note = clickErrTransCanceled, "Order not ready for payment"
		case p.Status == domain.PaymentStatusSuccess:
			code, note = clickErrAlreadyPaid, "Already paid"
		case p.Status == domain.PaymentStatusPending, p.Status == domain.PaymentStatusProcessing:
			// Re-delivered prepares just refresh the correlation id.
			if _, err := tx.ExecContext(ctx, `
				UPDATE payments SET status = 'processing', click_trans_id = $2 WHERE id = $1
			`, p.ID, req.ClickTransID); err != nil {
				return err
			}
		default:
			code, note = clickErrTransCanceled, "Payment is not payable"
		}

		return logEvent(ctx, tx, p.ID, "click_prepare", requestData, nil, "")
	})
	if err != nil {
		a.logger.Error("click prepare failed", "error", err, "merchant_trans_id", req.MerchantTransID)
		return a.prepareResponse(req, clickErrTransCanceled, "Prepare failed")
	}

	return a.prepareResponse(req, code, note)
}

// HandleComplete settles the payment. A provider-reported error fails the
// payment; error 0 completes it idempotently.
func (a *ClickAdapter) HandleComplete(ctx context.Context, req ClickRequest) ClickResponse {
	if !a.VerifySignature(req) {
		return a.completeResponse(req, clickErrSignature, "Invalid signature")
	}

	payment, err := a.repo.GetByPaymentID(ctx, req.MerchantTransID)
	if err != nil || payment == nil {
		return a.completeResponse(req, clickErrNotFound, "Payment not found")
	}

	requestData, _ := json.Marshal(req)

	if req.Error != 0 {
		if err := a.svc.Fail(ctx, payment.ID, "click error", requestData); err != nil {
			a.logger.Error("click complete fail-path error", "error", err, "merchant_trans_id", req.MerchantTransID)
		}
		return a.completeResponse(req, req.Error, "Payment failed")
	}

	if req.ClickPaydocID != "" {
		if _, err := a.svc.db.ExecContext(ctx, `
			UPDATE payments SET click_paydoc_id = $2 WHERE id = $1
		`, payment.ID, req.ClickPaydocID); err != nil {
			a.logger.Error("failed to store click paydoc id", "error", err)
		}
	}

	if err := a.svc.Complete(ctx, payment.ID, requestData); err != nil {
		a.logger.Error("click complete failed", "error", err, "merchant_trans_id", req.MerchantTransID)
		return a.completeResponse(req, clickErrTransCanceled, "Payment is not payable")
	}

	return a.completeResponse(req, clickSuccess, "Success")
}

func (a *ClickAdapter) prepareResponse(req ClickRequest, code int, note string) ClickResponse {
	return ClickResponse{
		ClickTransID:      req.ClickTransID,
		MerchantTransID:   req.MerchantTransID,
		MerchantPrepareID: req.MerchantTransID,
		Error:             code,
		ErrorNote:         note,
	}
}

func (a *ClickAdapter) completeResponse(req ClickRequest, code int, note string) ClickResponse {
	return ClickResponse{
		ClickTransID:      req.ClickTransID,
		MerchantTransID:   req.MerchantTransID,
		MerchantConfirmID: req.MerchantTransID,
		Error:             code,
		ErrorNote:         note,
	}
}
