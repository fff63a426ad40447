package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusSuccess    PaymentStatus = "success"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusCancelled  PaymentStatus = "cancelled"
	PaymentStatusRefunded   PaymentStatus = "refunded"
)

type PaymentProvider string

const (
	ProviderClick PaymentProvider = "click"
	ProviderPayme PaymentProvider = "payme"
	ProviderCash  PaymentProvider = "cash"
)

func ValidProvider(p PaymentProvider) bool {
	switch p {
	case ProviderClick, ProviderPayme, ProviderCash:
		return true
	}
	return false
}

// CanMarkProcessing: only a fresh pending payment may enter processing.
func CanMarkProcessing(status PaymentStatus) bool {
	return status == PaymentStatusPending
}

// CanMarkSuccess excludes the already-success case; callers treat that as an
// idempotent no-op, not a violation.
func CanMarkSuccess(status PaymentStatus) bool {
	return status == PaymentStatusPending || status == PaymentStatusProcessing
}

// CanMarkCancelled: a settled payment can no longer be cancelled.
func CanMarkCancelled(status PaymentStatus) bool {
	return status != PaymentStatusSuccess && status != PaymentStatusRefunded
}

type Payment struct {
	ID        string          `json:"id"`
	PaymentID string          `json:"payment_id"`
	OrderID   string          `json:"order_id"`
	UserID    string          `json:"user_id"`
	Provider  PaymentProvider `json:"provider"`
	Status    PaymentStatus   `json:"status"`
	Amount    decimal.Decimal `json:"amount"`

	ClickTransID       *string `json:"click_trans_id,omitempty"`
	ClickPaydocID      *string `json:"click_paydoc_id,omitempty"`
	PaymeTransactionID *string `json:"payme_transaction_id,omitempty"`
	PaymeTime          *int64  `json:"payme_time,omitempty"`

	ProviderResponse json.RawMessage `json:"provider_response,omitempty"`
	ErrorMessage     string          `json:"error_message,omitempty"`

	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func (p Payment) IsSuccess() bool {
	return p.Status == PaymentStatusSuccess
}

// AmountInTiyin converts the decimal amount to minor currency units using
// exact integer arithmetic. ok is false when the amount has sub-tiyin
// precision, which a real payment can never carry.
func (p Payment) AmountInTiyin() (int64, bool) {
	return ToTiyin(p.Amount)
}

func ToTiyin(amount decimal.Decimal) (int64, bool) {
	tiyin := amount.Mul(decimal.NewFromInt(100))
	if !tiyin.IsInteger() {
		return 0, false
	}
	return tiyin.IntPart(), true
}

func FromTiyin(tiyin int64) decimal.Decimal {
	return decimal.NewFromInt(tiyin).Div(decimal.NewFromInt(100))
}

// PaymentLog rows are the append-only audit trail of provider interactions.
type PaymentLog struct {
	ID           string          `json:"id"`
	PaymentID    string          `json:"payment_id"`
	EventType    string          `json:"event_type"`
	RequestData  json.RawMessage `json:"request_data,omitempty"`
	ResponseData json.RawMessage `json:"response_data,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}
