package payments

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/pharmatech-uz/pharmacy-core/internal/domain"
	"github.com/pharmatech-uz/pharmacy-core/internal/httpx"
)

type Handler struct {
	repo   *PaymentRepository
	svc    *Service
	click  *ClickAdapter
	payme  *PaymeAdapter
	logger *slog.Logger
}

func NewHandler(repo *PaymentRepository, svc *Service, click *ClickAdapter, payme *PaymeAdapter, logger *slog.Logger) *Handler {
	return &Handler{
		repo:   repo,
		svc:    svc,
		click:  click,
		payme:  payme,
		logger: logger,
	}
}

type createPaymentRequest struct {
	OrderID  string                 `json:"order_id"`
	Provider domain.PaymentProvider `json:"provider"`
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.ActorFrom(r)
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "missing actor identity")
		return
	}
	if !domain.CanPerform(actor.Role, domain.ActionCreatePayment) {
		h.writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	var req createPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.OrderID == "" || !domain.ValidProvider(req.Provider) {
		h.writeError(w, http.StatusBadRequest, "order_id and a valid provider are required")
		return
	}

	payment, err := h.svc.Create(r.Context(), req.OrderID, req.Provider, actor.UserID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrOrderNotFound):
			h.writeError(w, http.StatusNotFound, "order not found")
		case errors.Is(err, domain.ErrInvalidOrderState):
			h.writeError(w, http.StatusConflict, err.Error())
		default:
			h.logger.Error("failed to create payment", "error", err, "order_id", req.OrderID)
			h.writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	h.writeJSON(w, http.StatusCreated, payment)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.ActorFrom(r)
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "missing actor identity")
		return
	}

	payments, err := h.repo.ListByUser(r.Context(), actor.UserID)
	if err != nil {
		h.logger.Error("failed to list payments", "error", err, "user_id", actor.UserID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, payments)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.ActorFrom(r)
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "missing actor identity")
		return
	}

	payment, err := h.repo.GetByPaymentID(r.Context(), r.PathValue("paymentId"))
	if err != nil {
		h.logger.Error("failed to get payment", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if payment == nil || (actor.Role == domain.RoleCustomer && payment.UserID != actor.UserID) {
		h.writeError(w, http.StatusNotFound, "payment not found")
		return
	}

	h.writeJSON(w, http.StatusOK, payment)
}

func (h *Handler) HandleLogs(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.ActorFrom(r)
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "missing actor identity")
		return
	}
	if !domain.CanPerform(actor.Role, domain.ActionViewPaymentLogs) {
		h.writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	logs, err := h.repo.Logs(r.Context(), r.PathValue("paymentId"))
	if err != nil {
		h.logger.Error("failed to list payment logs", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, logs)
}

// HandleClickPrepare and HandleClickComplete accept Click's form-encoded
// webhook posts. Business rejections are encoded in the 200 body; only a
// malformed request gets a non-200.
func (h *Handler) HandleClickPrepare(w http.ResponseWriter, r *http.Request) {
	req, err := parseClickRequest(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "malformed request")
		return
	}

	resp := h.click.HandlePrepare(r.Context(), req)
	h.logger.Info("click prepare handled", "merchant_trans_id", req.MerchantTransID, "error_code", resp.Error)
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) HandleClickComplete(w http.ResponseWriter, r *http.Request) {
	req, err := parseClickRequest(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "malformed request")
		return
	}

	resp := h.click.HandleComplete(r.Context(), req)
	h.logger.Info("click complete handled", "merchant_trans_id", req.MerchantTransID, "error_code", resp.Error)
	h.writeJSON(w, http.StatusOK, resp)
}

func parseClickRequest(r *http.Request) (ClickRequest, error) {
	if err := r.ParseForm(); err != nil {
		return ClickRequest{}, err
	}

	req := ClickRequest{
		ClickTransID:    r.PostFormValue("click_trans_id"),
		ServiceID:       r.PostFormValue("service_id"),
		MerchantTransID: r.PostFormValue("merchant_trans_id"),
		Amount:          r.PostFormValue("amount"),
		Action:          r.PostFormValue("action"),
		SignTime:        r.PostFormValue("sign_time"),
		SignString:      r.PostFormValue("sign_string"),
		ClickPaydocID:   r.PostFormValue("click_paydoc_id"),
	}

	if errValue := r.PostFormValue("error"); errValue != "" {
		code, err := strconv.Atoi(errValue)
		if err != nil {
			return ClickRequest{}, err
		}
		req.Error = code
	}

	return req, nil
}

// HandlePayme is the single JSON-RPC endpoint. Authorization is verified
// before any method dispatch.
func (h *Handler) HandlePayme(w http.ResponseWriter, r *http.Request) {
	if !h.payme.Authorize(r.Header.Get("Authorization")) {
		h.writeJSON(w, http.StatusOK, PaymeResponse{
			Error: &PaymeError{Code: paymeErrAuth, Message: "Unauthorized"},
		})
		return
	}

	var req PaymeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusOK, PaymeResponse{
			Error: &PaymeError{Code: paymeErrParse, Message: "Parse error"},
		})
		return
	}

	resp := h.payme.Handle(r.Context(), req)
	h.logger.Info("payme request handled", "method", req.Method, "has_error", resp.Error != nil)
	h.writeJSON(w, http.StatusOK, resp)
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
