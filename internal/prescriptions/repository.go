package prescriptions

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/pharmatech-uz/pharmacy-core/internal/domain"
)

type PrescriptionRepository struct {
	db *sql.DB
}

func NewPrescriptionRepository(db *sql.DB) *PrescriptionRepository {
	return &PrescriptionRepository{db: db}
}

func (r *PrescriptionRepository) GetByID(ctx context.Context, id string) (*domain.Prescription, error) {
	if uuid.Validate(id) != nil {
		return nil, nil
	}

	var p domain.Prescription
	err := r.db.QueryRowContext(ctx, `
		SELECT id, order_id, user_id, status, reviewed_by, reviewed_at, rejection_reason, created_at
		FROM prescriptions
		WHERE id = $1
	`, id).Scan(&p.ID, &p.OrderID, &p.UserID, &p.Status, &p.ReviewedBy, &p.ReviewedAt, &p.RejectionReason, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	images, err := r.images(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	p.Images = images

	return &p, nil
}

func (r *PrescriptionRepository) ListByUser(ctx context.Context, userID string) ([]domain.Prescription, error) {
	return r.list(ctx, `
		SELECT id, order_id, user_id, status, reviewed_by, reviewed_at, rejection_reason, created_at
		FROM prescriptions
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
}

// ListPending returns prescriptions awaiting review, oldest first.
func (r *PrescriptionRepository) ListPending(ctx context.Context) ([]domain.Prescription, error) {
	return r.list(ctx, `
		SELECT id, order_id, user_id, status, reviewed_by, reviewed_at, rejection_reason, created_at
		FROM prescriptions
		WHERE status = $1
		ORDER BY created_at ASC
	`, domain.PrescriptionStatusPending)
}

func (r *PrescriptionRepository) list(ctx context.Context, query string, args ...any) ([]domain.Prescription, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	prescriptions := []domain.Prescription{}
	for rows.Next() {
		var p domain.Prescription
		if err := rows.Scan(&p.ID, &p.OrderID, &p.UserID, &p.Status, &p.ReviewedBy, &p.ReviewedAt, &p.RejectionReason, &p.CreatedAt); err != nil {
			return nil, err
		}
		prescriptions = append(prescriptions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range prescriptions {
		images, err := r.images(ctx, prescriptions[i].ID)
		if err != nil {
			return nil, err
		}
		prescriptions[i].Images = images
	}

	return prescriptions, nil
}

func (r *PrescriptionRepository) images(ctx context.Context, prescriptionID string) ([]domain.PrescriptionImage, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, image_url, created_at
		FROM prescription_images
		WHERE prescription_id = $1
		ORDER BY created_at ASC
	`, prescriptionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	images := []domain.PrescriptionImage{}
	for rows.Next() {
		var img domain.PrescriptionImage
		if err := rows.Scan(&img.ID, &img.ImageURL, &img.CreatedAt); err != nil {
			return nil, err
		}
		images = append(images, img)
	}

	return images, rows.Err()
}
