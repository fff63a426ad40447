package orders

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/pharmatech-uz/pharmacy-core/internal/domain"
	"github.com/pharmatech-uz/pharmacy-core/internal/httpx"
)

type Handler struct {
	repo    *OrderRepository
	service *Service
	logger  *slog.Logger
}

func NewHandler(repo *OrderRepository, service *Service, logger *slog.Logger) *Handler {
	return &Handler{
		repo:    repo,
		service: service,
		logger:  logger,
	}
}

type checkoutRequest struct {
	DeliveryAddress string `json:"delivery_address"`
}

func (h *Handler) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.ActorFrom(r)
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "missing actor identity")
		return
	}
	if !domain.CanPerform(actor.Role, domain.ActionCheckout) {
		h.writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.DeliveryAddress == "" {
		h.writeError(w, http.StatusBadRequest, "missing delivery address")
		return
	}

	order, err := h.service.Checkout(r.Context(), actor.UserID, req.DeliveryAddress)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrCartEmpty):
			h.writeError(w, http.StatusBadRequest, "cart is empty")
		case errors.Is(err, domain.ErrProductExpired):
			h.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, domain.ErrInsufficientStock):
			h.writeError(w, http.StatusConflict, "insufficient stock")
		default:
			h.logger.Error("checkout failed", "error", err, "user_id", actor.UserID)
			h.writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	h.writeJSON(w, http.StatusCreated, order)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.ActorFrom(r)
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "missing actor identity")
		return
	}

	id := r.PathValue("id")
	order, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get order", "error", err, "id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if order == nil || !canSeeOrder(actor, order) {
		h.writeError(w, http.StatusNotFound, "order not found")
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.ActorFrom(r)
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "missing actor identity")
		return
	}

	// Customers see their own orders; staff see everything.
	userFilter := actor.UserID
	if actor.Role != domain.RoleCustomer {
		userFilter = ""
	}

	orders, err := h.repo.List(r.Context(), userFilter)
	if err != nil {
		h.logger.Error("failed to list orders", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, orders)
}

func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.ActorFrom(r)
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "missing actor identity")
		return
	}

	id := r.PathValue("id")
	order, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get order", "error", err, "id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if order == nil || !canSeeOrder(actor, order) {
		h.writeError(w, http.StatusNotFound, "order not found")
		return
	}

	history, err := h.repo.History(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get order history", "error", err, "id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, history)
}

type changeStatusRequest struct {
	Status domain.OrderStatus `json:"status"`
}

func (h *Handler) HandleChangeStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.ActorFrom(r)
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "missing actor identity")
		return
	}

	var req changeStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := h.service.ChangeStatus(r.Context(), r.PathValue("id"), req.Status, Actor(actor))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.ActorFrom(r)
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "missing actor identity")
		return
	}

	order, err := h.service.Cancel(r.Context(), r.PathValue("id"), Actor(actor))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

type assignCourierRequest struct {
	CourierID string `json:"courier_id"`
}

func (h *Handler) HandleAssignCourier(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.ActorFrom(r)
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "missing actor identity")
		return
	}

	var req assignCourierRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CourierID == "" {
		h.writeError(w, http.StatusBadRequest, "missing courier id")
		return
	}

	if err := h.service.AssignCourier(r.Context(), r.PathValue("id"), req.CourierID, Actor(actor)); err != nil {
		h.writeServiceError(w, err)
		return
	}

	order, err := h.repo.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		h.logger.Error("failed to reload order", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

func canSeeOrder(actor httpx.Actor, order *domain.Order) bool {
	if actor.Role != domain.RoleCustomer {
		return true
	}
	return order.UserID == actor.UserID
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrOrderNotFound):
		h.writeError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, domain.ErrForbidden):
		h.writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, domain.ErrIllegalTransition), errors.Is(err, domain.ErrInvalidOrderStatus):
		h.writeError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error("order operation failed", "error", err)
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
