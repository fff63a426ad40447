package prescriptions

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/pharmatech-uz/pharmacy-core/internal/domain"
	"github.com/pharmatech-uz/pharmacy-core/internal/httpx"
)

type Handler struct {
	repo   *PrescriptionRepository
	svc    *Service
	logger *slog.Logger
}

func NewHandler(repo *PrescriptionRepository, svc *Service, logger *slog.Logger) *Handler {
	return &Handler{repo: repo, svc: svc, logger: logger}
}

type createPrescriptionRequest struct {
	OrderID   *string  `json:"order_id"`
	ImageURLs []string `json:"image_urls"`
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.ActorFrom(r)
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "missing actor identity")
		return
	}

	var req createPrescriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p, err := h.svc.Create(r.Context(), Actor(actor), req.OrderID, req.ImageURLs)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, p)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.ActorFrom(r)
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "missing actor identity")
		return
	}

	prescriptions, err := h.repo.ListByUser(r.Context(), actor.UserID)
	if err != nil {
		h.logger.Error("failed to list prescriptions", "error", err, "user_id", actor.UserID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, prescriptions)
}

func (h *Handler) HandleListPending(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.ActorFrom(r)
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "missing actor identity")
		return
	}
	if !domain.CanPerform(actor.Role, domain.ActionReviewPrescription) {
		h.writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	prescriptions, err := h.repo.ListPending(r.Context())
	if err != nil {
		h.logger.Error("failed to list pending prescriptions", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, prescriptions)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.ActorFrom(r)
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "missing actor identity")
		return
	}

	p, err := h.repo.GetByID(r.Context(), r.PathValue("prescriptionId"))
	if err != nil {
		h.logger.Error("failed to get prescription", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if p == nil || !canSeePrescription(actor, p) {
		h.writeError(w, http.StatusNotFound, "prescription not found")
		return
	}

	h.writeJSON(w, http.StatusOK, p)
}

type addImageRequest struct {
	ImageURL string `json:"image_url"`
}

func (h *Handler) HandleAddImage(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.ActorFrom(r)
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "missing actor identity")
		return
	}

	var req addImageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	img, err := h.svc.AddImage(r.Context(), Actor(actor), r.PathValue("prescriptionId"), req.ImageURL)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, img)
}

func (h *Handler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.ActorFrom(r)
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "missing actor identity")
		return
	}

	if err := h.svc.Approve(r.Context(), Actor(actor), r.PathValue("prescriptionId")); err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": string(domain.PrescriptionStatusApproved)})
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) HandleReject(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.ActorFrom(r)
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "missing actor identity")
		return
	}

	var req rejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.svc.Reject(r.Context(), Actor(actor), r.PathValue("prescriptionId"), req.Reason); err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": string(domain.PrescriptionStatusRejected)})
}

func canSeePrescription(actor httpx.Actor, p *domain.Prescription) bool {
	if actor.Role == domain.RoleCustomer {
		return p.UserID == actor.UserID
	}
	return true
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrPrescriptionNotFound), errors.Is(err, domain.ErrOrderNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		h.writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, domain.ErrNoImages), errors.Is(err, domain.ErrMissingReason):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrImageLimit), errors.Is(err, domain.ErrNotPending), errors.Is(err, domain.ErrInvalidOrderState):
		h.writeError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error("prescription operation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
