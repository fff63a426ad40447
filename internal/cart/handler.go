package cart

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/pharmatech-uz/pharmacy-core/internal/domain"
	"github.com/pharmatech-uz/pharmacy-core/internal/httpx"
)

type Handler struct {
	repo   *CartRepository
	logger *slog.Logger
}

func NewHandler(repo *CartRepository, logger *slog.Logger) *Handler {
	return &Handler{
		repo:   repo,
		logger: logger,
	}
}

type cartResponse struct {
	*domain.Cart
	TotalPrice string `json:"total_price"`
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.ActorFrom(r)
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "missing actor identity")
		return
	}

	cart, err := h.repo.GetByUser(r.Context(), actor.UserID)
	if err != nil {
		h.logger.Error("failed to get cart", "error", err, "user_id", actor.UserID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, cartResponse{Cart: cart, TotalPrice: cart.TotalPrice().String()})
}

type addItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

func (h *Handler) HandleAddItem(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.ActorFrom(r)
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "missing actor identity")
		return
	}

	var req addItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ProductID == "" {
		h.writeError(w, http.StatusBadRequest, "missing product id")
		return
	}

	if err := h.repo.AddItem(r.Context(), actor.UserID, req.ProductID, req.Quantity); err != nil {
		switch {
		case errors.Is(err, domain.ErrProductNotFound):
			h.writeError(w, http.StatusNotFound, "product not found")
		case errors.Is(err, domain.ErrInvalidQuantity):
			h.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, domain.ErrInsufficientStock):
			h.writeError(w, http.StatusConflict, "insufficient stock")
		default:
			h.logger.Error("failed to add cart item", "error", err, "user_id", actor.UserID)
			h.writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	h.logger.Info("cart item added", "user_id", actor.UserID, "product_id", req.ProductID, "quantity", req.Quantity)
	h.respondWithCart(w, r, actor.UserID, http.StatusCreated)
}

type updateItemRequest struct {
	Quantity int `json:"quantity"`
}

func (h *Handler) HandleUpdateItem(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.ActorFrom(r)
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "missing actor identity")
		return
	}

	itemID := r.PathValue("itemId")
	if itemID == "" {
		h.writeError(w, http.StatusBadRequest, "missing item id")
		return
	}

	var req updateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.repo.UpdateQuantity(r.Context(), actor.UserID, itemID, req.Quantity); err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidQuantity):
			h.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, domain.ErrInsufficientStock):
			h.writeError(w, http.StatusConflict, "insufficient stock or item not found")
		default:
			h.logger.Error("failed to update cart item", "error", err, "item_id", itemID)
			h.writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	h.respondWithCart(w, r, actor.UserID, http.StatusOK)
}

func (h *Handler) HandleRemoveItem(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.ActorFrom(r)
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "missing actor identity")
		return
	}

	itemID := r.PathValue("itemId")
	if itemID == "" {
		h.writeError(w, http.StatusBadRequest, "missing item id")
		return
	}

	if err := h.repo.RemoveItem(r.Context(), actor.UserID, itemID); err != nil {
		if errors.Is(err, domain.ErrProductNotFound) {
			h.writeError(w, http.StatusNotFound, "cart item not found")
			return
		}
		h.logger.Error("failed to remove cart item", "error", err, "item_id", itemID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.respondWithCart(w, r, actor.UserID, http.StatusOK)
}

func (h *Handler) respondWithCart(w http.ResponseWriter, r *http.Request, userID string, status int) {
	cart, err := h.repo.GetByUser(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to reload cart", "error", err, "user_id", userID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	h.writeJSON(w, status, cartResponse{Cart: cart, TotalPrice: cart.TotalPrice().String()})
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
