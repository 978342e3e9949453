package payment

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/shopspring/decimal"

	"github.com/frahmantamala/content-payments/internal"
	"github.com/frahmantamala/content-payments/internal/transport"
	"github.com/frahmantamala/content-payments/pkg/logger"
)

type IntentFactoryAPI interface {
	CreateSingle(ctx context.Context, userID, itemID int64, opts IntentOptions) (*IntentHandle, error)
	CreateBundle(ctx context.Context, userID int64, itemIDs []int64, discountPercent decimal.Decimal, opts IntentOptions) (*IntentHandle, error)
	CreateSubscription(ctx context.Context, userID int64, subscriptionType SubscriptionType, opts IntentOptions) (*IntentHandle, error)
}

type ConfirmerAPI interface {
	Confirm(ctx context.Context, userID, paymentID int64) (*Record, error)
}

type RefundRetryAPI interface {
	Refund(ctx context.Context, userID, paymentID int64, amount *decimal.Decimal) (*Record, error)
	Retry(ctx context.Context, userID, paymentID int64) (*IntentHandle, error)
}

type ServiceAPI interface {
	GetPayment(ctx context.Context, userID, paymentID int64) (*Record, error)
	ListPayments(ctx context.Context, userID int64, limit, offset int) (*History, error)
}

type Handler struct {
	*transport.BaseHandler
	Factory     IntentFactoryAPI
	Confirmer   ConfirmerAPI
	RefundRetry RefundRetryAPI
	Service     ServiceAPI
}

func NewHandler(factory IntentFactoryAPI, confirmer ConfirmerAPI, refundRetry RefundRetryAPI, service ServiceAPI, logger *slog.Logger) *Handler {
	return &Handler{
		BaseHandler: transport.NewBaseHandler(logger),
		Factory:     factory,
		Confirmer:   confirmer,
		RefundRetry: refundRetry,
		Service:     service,
	}
}

// CreateSingle handles POST /api/v1/payments/single
func (h *Handler) CreateSingle(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var req CreateSingleRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	handle, err := h.Factory.CreateSingle(r.Context(), userID, req.ItemID, IntentOptions{Currency: req.Currency})
	if err != nil {
		h.Logger.Error("CreateSingle: service error", "error", err, "user_id", userID, "item_id", req.ItemID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, handle)
}

// CreateBundle handles POST /api/v1/payments/bundle
func (h *Handler) CreateBundle(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var req CreateBundleRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	handle, err := h.Factory.CreateBundle(r.Context(), userID, req.ItemIDs, req.DiscountPercent, IntentOptions{Currency: req.Currency})
	if err != nil {
		h.Logger.Error("CreateBundle: service error", "error", err, "user_id", userID, "item_ids", req.ItemIDs)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, handle)
}

// CreateSubscription handles POST /api/v1/payments/subscription
func (h *Handler) CreateSubscription(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var req CreateSubscriptionRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	handle, err := h.Factory.CreateSubscription(r.Context(), userID, SubscriptionType(req.SubscriptionType), IntentOptions{Currency: req.Currency})
	if err != nil {
		h.Logger.Error("CreateSubscription: service error", "error", err, "user_id", userID, "subscription_type", req.SubscriptionType)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, handle)
}

// Confirm handles POST /api/v1/payments/{id}/confirm
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	paymentID, ok := h.paymentID(w, r)
	if !ok {
		return
	}

	record, err := h.Confirmer.Confirm(r.Context(), userID, paymentID)
	if err != nil {
		h.Logger.Error("Confirm: service error", "error", err, "user_id", userID, "payment_id", paymentID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, record)
}

// GetPayment handles GET /api/v1/payments/{id}
func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	paymentID, ok := h.paymentID(w, r)
	if !ok {
		return
	}

	record, err := h.Service.GetPayment(r.Context(), userID, paymentID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, record)
}

// ListPayments handles GET /api/v1/payments
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	limit := DefaultHistoryLimit
	offset := 0

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= MaxHistoryLimit {
			limit = l
		}
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}

	history, err := h.Service.ListPayments(r.Context(), userID, limit, offset)
	if err != nil {
		h.Logger.Error("ListPayments: service error", "error", err, "user_id", userID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, history)
}

// Refund handles POST /api/v1/payments/{id}/refund
func (h *Handler) Refund(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	paymentID, ok := h.paymentID(w, r)
	if !ok {
		return
	}

	var req RefundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		h.Logger.Error("Refund: failed to parse request body", "error", err)
		h.HandleError(w, internal.NewValidationError("invalid request body", internal.ErrCodeValidationFailed))
		return
	}
	if err := req.Validate(); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	record, err := h.RefundRetry.Refund(r.Context(), userID, paymentID, req.Amount)
	if err != nil {
		h.Logger.Error("Refund: service error", "error", err, "user_id", userID, "payment_id", paymentID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, record)
}

// Retry handles POST /api/v1/payments/{id}/retry
func (h *Handler) Retry(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	paymentID, ok := h.paymentID(w, r)
	if !ok {
		return
	}

	handle, err := h.RefundRetry.Retry(r.Context(), userID, paymentID)
	if err != nil {
		h.Logger.Error("Retry: service error", "error", err, "user_id", userID, "payment_id", paymentID)
		h.HandleServiceError(w, err)
		return
	}

	h.Logger.Info("Retry: new intent created", "payment_id", paymentID, "new_payment_id", handle.PaymentID, "user_id", userID)
	h.WriteJSON(w, http.StatusCreated, handle)
}

func (h *Handler) requireUser(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID := internal.UserIDFromContext(r.Context())
	if userID == 0 {
		h.Logger.Error("user not found in context", "path", r.URL.Path)
		h.HandleError(w, internal.NewUnauthorizedError("authentication required", internal.ErrCodeAuthRequired))
		return 0, false
	}
	return userID, true
}

func (h *Handler) paymentID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	idStr := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		h.Logger.Error("invalid payment ID", "id", idStr)
		h.HandleError(w, internal.NewValidationError("invalid payment ID", internal.ErrCodeValidationFailed))
		return 0, false
	}
	logger.Annotate(r.Context(), "payment_id", id)
	return id, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.Logger.Error("failed to parse request body", "error", err, "path", r.URL.Path)
		h.HandleError(w, internal.NewValidationError("invalid request body", internal.ErrCodeValidationFailed))
		return false
	}
	return true
}
