package payment

import (
	"context"
	"io"
	"net/http"

	"github.com/frahmantamala/content-payments/internal"
	"github.com/frahmantamala/content-payments/internal/transport"
)

// SignatureHeader carries the processor's webhook signature.
const SignatureHeader = "Stripe-Signature"

// maxWebhookBody bounds the payload read before signature verification.
const maxWebhookBody = 1 << 16

type ReconcilerAPI interface {
	Handle(ctx context.Context, payload []byte, signature string) error
}

type WebhookHandler struct {
	*transport.BaseHandler
	reconciler ReconcilerAPI
}

func NewWebhookHandler(baseHandler *transport.BaseHandler, reconciler ReconcilerAPI) *WebhookHandler {
	return &WebhookHandler{
		BaseHandler: baseHandler,
		reconciler:  reconciler,
	}
}

type WebhookResponse struct {
	Received bool `json:"received"`
}

// HandleWebhook handles POST /api/v1/payments/webhook. It answers 200 when
// the event was applied or deliberately ignored, 400 on a bad signature and
// 500 when the processor should redeliver.
func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		h.Logger.Error("failed to read webhook body", "error", err)
		h.HandleError(w, internal.NewValidationError("unreadable webhook body", internal.ErrCodeValidationFailed))
		return
	}

	if err := h.reconciler.Handle(r.Context(), payload, r.Header.Get(SignatureHeader)); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, WebhookResponse{Received: true})
}

