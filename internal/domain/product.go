package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID                   string          `json:"id"`
	Name                 string          `json:"name"`
	Price                decimal.Decimal `json:"price"`
	Stock                int             `json:"stock"`
	RequiresPrescription bool            `json:"requires_prescription"`
	Active               bool            `json:"active"`
	ExpiryDate           *time.Time      `json:"expiry_date,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
}

func (p Product) Expired(now time.Time) bool {
	return p.ExpiryDate != nil && p.ExpiryDate.Before(now.Truncate(24*time.Hour))
}
