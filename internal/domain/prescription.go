package domain

import "time"

type PrescriptionStatus string

const (
	PrescriptionStatusPending  PrescriptionStatus = "pending"
	PrescriptionStatusApproved PrescriptionStatus = "approved"
	PrescriptionStatusRejected PrescriptionStatus = "rejected"
)

// MaxPrescriptionImages caps image attachments per prescription.
const MaxPrescriptionImages = 5

type Prescription struct {
	ID              string              `json:"id"`
	OrderID         *string             `json:"order_id,omitempty"`
	UserID          string              `json:"user_id"`
	Status          PrescriptionStatus  `json:"status"`
	ReviewedBy      *string             `json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time          `json:"reviewed_at,omitempty"`
	RejectionReason string              `json:"rejection_reason,omitempty"`
	Images          []PrescriptionImage `json:"images"`
	CreatedAt       time.Time           `json:"created_at"`
}

type PrescriptionImage struct {
	ID        string    `json:"id"`
	ImageURL  string    `json:"image_url"`
	CreatedAt time.Time `json:"created_at"`
}
