package payment

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/frahmantamala/content-payments/internal/core/events"
	"github.com/frahmantamala/content-payments/internal/metrics"
)

// EventHandler records committed payment state changes. It is the place
// notification collaborators hook into.
type EventHandler struct {
	logger *slog.Logger
}

func NewEventHandler(logger *slog.Logger) *EventHandler {
	return &EventHandler{logger: logger}
}

func (h *EventHandler) HandlePaymentEvent(_ context.Context, event events.Event) error {
	paymentEvent, ok := event.(*events.PaymentEvent)
	if !ok {
		h.logger.Error("invalid event type for payment event handler", "event_type", event.EventType())
		return fmt.Errorf("expected PaymentEvent, got %T", event)
	}

	switch paymentEvent.EventType() {
	case events.EventTypePaymentSucceeded:
		metrics.IncPayment(paymentEvent.PaymentType, StatusSucceeded)
		metrics.AddPaymentRevenue(paymentEvent.Currency, paymentEvent.Amount)
	case events.EventTypePaymentFailed:
		metrics.IncPayment(paymentEvent.PaymentType, StatusFailed)
	case events.EventTypePaymentCanceled:
		metrics.IncPayment(paymentEvent.PaymentType, StatusCanceled)
	case events.EventTypePaymentDisputeCreated:
		metrics.IncPayment(paymentEvent.PaymentType, "disputed")
	}

	h.logger.Info("payment event handled",
		"event_type", paymentEvent.EventType(),
		"event_id", paymentEvent.EventID(),
		"payment_id", paymentEvent.PaymentID,
		"user_id", paymentEvent.UserID,
		"external_id", paymentEvent.ExternalID,
		"amount", paymentEvent.Amount.String())

	return nil
}

func (h *EventHandler) RegisterEventHandlers(eventBus *events.EventBus) {
	types := []string{
		events.EventTypePaymentSucceeded,
		events.EventTypePaymentFailed,
		events.EventTypePaymentCanceled,
		events.EventTypePaymentRefunded,
		events.EventTypePaymentDisputeCreated,
	}
	for _, t := range types {
		eventBus.Subscribe(t, h.HandlePaymentEvent)
	}

	h.logger.Info("payment event handlers registered", "handlers", types)
}
