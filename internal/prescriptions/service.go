package prescriptions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pharmatech-uz/pharmacy-core/internal/domain"
	"github.com/pharmatech-uz/pharmacy-core/internal/notify"
	"github.com/pharmatech-uz/pharmacy-core/internal/orders"
)

// Actor identifies who is acting. Mirrors httpx.Actor so handlers can
// convert directly.
type Actor struct {
	UserID string
	Role   domain.Role
}

type Service struct {
	db       *sql.DB
	repo     *PrescriptionRepository
	notifier notify.Notifier
	logger   *slog.Logger
}

func NewService(db *sql.DB, repo *PrescriptionRepository, notifier notify.Notifier, logger *slog.Logger) *Service {
	return &Service{
		db:       db,
		repo:     repo,
		notifier: notifier,
		logger:   logger,
	}
}

// Create files a prescription with its initial images in one transaction.
// When orderID is set, the order must belong to the actor and must actually
// require a prescription.
func (s *Service) Create(ctx context.Context, actor Actor, orderID *string, imageURLs []string) (*domain.Prescription, error) {
	if len(imageURLs) == 0 {
		return nil, domain.ErrNoImages
	}
	if len(imageURLs) > domain.MaxPrescriptionImages {
		return nil, domain.ErrImageLimit
	}
	for _, u := range imageURLs {
		if strings.TrimSpace(u) == "" {
			return nil, domain.ErrNoImages
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if orderID != nil {
		if uuid.Validate(*orderID) != nil {
			return nil, domain.ErrOrderNotFound
		}
		var ownerID string
		var needsPrescription bool
		err := tx.QueryRowContext(ctx, `
			SELECT user_id, needs_prescription FROM orders WHERE id = $1 FOR UPDATE
		`, *orderID).Scan(&ownerID, &needsPrescription)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrOrderNotFound
		}
		if err != nil {
			return nil, err
		}
		if ownerID != actor.UserID {
			return nil, domain.ErrForbidden
		}
		if !needsPrescription {
			return nil, domain.ErrInvalidOrderState
		}
	}

	p := domain.Prescription{
		ID:        uuid.New().String(),
		OrderID:   orderID,
		UserID:    actor.UserID,
		Status:    domain.PrescriptionStatusPending,
		CreatedAt: time.Now().UTC(),
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO prescriptions (id, order_id, user_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, p.ID, p.OrderID, p.UserID, p.Status, p.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to insert prescription: %w", err)
	}

	for _, u := range imageURLs {
		img := domain.PrescriptionImage{
			ID:        uuid.New().String(),
			ImageURL:  u,
			CreatedAt: time.Now().UTC(),
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO prescription_images (id, prescription_id, image_url, created_at)
			VALUES ($1, $2, $3, $4)
		`, img.ID, p.ID, img.ImageURL, img.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to insert prescription image: %w", err)
		}
		p.Images = append(p.Images, img)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &p, nil
}

// AddImage attaches one more image to a pending prescription. The
// prescription row is locked first so concurrent uploads cannot both pass
// the count check and overshoot the cap.
func (s *Service) AddImage(ctx context.Context, actor Actor, prescriptionID, imageURL string) (*domain.PrescriptionImage, error) {
	if strings.TrimSpace(imageURL) == "" {
		return nil, domain.ErrNoImages
	}
	if uuid.Validate(prescriptionID) != nil {
		return nil, domain.ErrPrescriptionNotFound
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var ownerID string
	var status domain.PrescriptionStatus
	err = tx.QueryRowContext(ctx, `
		SELECT user_id, status FROM prescriptions WHERE id = $1 FOR UPDATE
	`, prescriptionID).Scan(&ownerID, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrPrescriptionNotFound
	}
	if err != nil {
		return nil, err
	}

	if ownerID != actor.UserID && actor.Role != domain.RoleAdmin {
		return nil, domain.ErrForbidden
	}
	if status != domain.PrescriptionStatusPending {
		return nil, domain.ErrNotPending
	}

	var count int
	if err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM prescription_images WHERE prescription_id = $1
	`, prescriptionID).Scan(&count); err != nil {
		return nil, err
	}
	if count >= domain.MaxPrescriptionImages {
		return nil, domain.ErrImageLimit
	}

	img := domain.PrescriptionImage{
		ID:        uuid.New().String(),
		ImageURL:  imageURL,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO prescription_images (id, prescription_id, image_url, created_at)
		VALUES ($1, $2, $3, $4)
	`, img.ID, prescriptionID, img.ImageURL, img.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to insert prescription image: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &img, nil
}

// Approve marks a pending prescription approved and, when it gates an
// order, releases that order into the payment stage.
func (s *Service) Approve(ctx context.Context, actor Actor, prescriptionID string) error {
	return s.review(ctx, actor, prescriptionID, domain.PrescriptionStatusApproved, "")
}

// Reject marks a pending prescription rejected. A reason is mandatory so
// the customer learns what to fix.
func (s *Service) Reject(ctx context.Context, actor Actor, prescriptionID, reason string) error {
	if strings.TrimSpace(reason) == "" {
		return domain.ErrMissingReason
	}
	return s.review(ctx, actor, prescriptionID, domain.PrescriptionStatusRejected, reason)
}

func (s *Service) review(ctx context.Context, actor Actor, prescriptionID string, verdict domain.PrescriptionStatus, reason string) error {
	if !domain.CanPerform(actor.Role, domain.ActionReviewPrescription) {
		return domain.ErrForbidden
	}
	if uuid.Validate(prescriptionID) != nil {
		return domain.ErrPrescriptionNotFound
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var ownerID string
	var orderID *string
	var status domain.PrescriptionStatus
	err = tx.QueryRowContext(ctx, `
		SELECT user_id, order_id, status FROM prescriptions WHERE id = $1 FOR UPDATE
	`, prescriptionID).Scan(&ownerID, &orderID, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrPrescriptionNotFound
	}
	if err != nil {
		return err
	}

	if status != domain.PrescriptionStatusPending {
		return domain.ErrNotPending
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE prescriptions
		SET status = $2, reviewed_by = $3, reviewed_at = NOW(), rejection_reason = $4
		WHERE id = $1
	`, prescriptionID, verdict, actor.UserID, reason); err != nil {
		return fmt.Errorf("failed to update prescription: %w", err)
	}

	// Approval unblocks a gated order. Rejection leaves it parked in
	// awaiting_prescription; the customer can retry with a new prescription
	// or cancel.
	if verdict == domain.PrescriptionStatusApproved && orderID != nil {
		var orderStatus domain.OrderStatus
		err := tx.QueryRowContext(ctx, `
			SELECT status FROM orders WHERE id = $1 FOR UPDATE
		`, *orderID).Scan(&orderStatus)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		if orderStatus == domain.OrderStatusAwaitingPrescription {
			if err := orders.Transition(ctx, tx, *orderID, domain.OrderStatusAwaitingPayment, &actor.UserID); err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	metadata := map[string]string{
		"prescription_id": prescriptionID,
		"verdict":         string(verdict),
	}
	if reason != "" {
		metadata["reason"] = reason
	}
	if err := s.notifier.Notify(ctx, ownerID, domain.NotifyPrescriptionResult, metadata, true); err != nil {
		s.logger.Error("failed to publish prescription notification", "error", err, "prescription_id", prescriptionID)
	}

	return nil
}
