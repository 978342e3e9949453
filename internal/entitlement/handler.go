package entitlement

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/frahmantamala/content-payments/internal"
	"github.com/frahmantamala/content-payments/internal/transport"
	"github.com/frahmantamala/content-payments/pkg/logger"
)

type ServiceAPI interface {
	ListLibrary(ctx context.Context, userID int64) ([]*LibraryEntry, error)
	GetSubscription(ctx context.Context, userID int64) (*Subscription, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(svc ServiceAPI) *Handler {
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Service:     svc,
	}
}

// GetLibrary handles GET /library
func (h *Handler) GetLibrary(w http.ResponseWriter, r *http.Request) {
	userID := internal.UserIDFromContext(r.Context())
	if userID == 0 {
		h.HandleError(w, internal.NewUnauthorizedError("authentication required", internal.ErrCodeAuthRequired))
		return
	}

	entries, err := h.Service.ListLibrary(r.Context(), userID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"items": entries,
		"count": len(entries),
	})
}

// GetSubscription handles GET /subscription
func (h *Handler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	userID := internal.UserIDFromContext(r.Context())
	if userID == 0 {
		h.HandleError(w, internal.NewUnauthorizedError("authentication required", internal.ErrCodeAuthRequired))
		return
	}

	sub, err := h.Service.GetSubscription(r.Context(), userID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, sub)
}
