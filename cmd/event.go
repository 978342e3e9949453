package cmd

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/frahmantamala/content-payments/internal/core/events"
	"github.com/frahmantamala/content-payments/internal/payment"
	"github.com/frahmantamala/content-payments/pkg/logger"
)

var eventCmd = &cobra.Command{
	Use:   "event",
	Short: "Event management commands",
	Long:  `Inspect the in-process payment event bus and its handlers`,
}

var publishEventCmd = &cobra.Command{
	Use:   "publish [event-type]",
	Short: "Publish a test payment event",
	Long:  `Publish a payment event through the registered handlers for debugging`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return publishTestEvent(cmd.Context(), args[0])
	},
}

var (
	eventPaymentID int64
	eventAmount    string
)

func publishTestEvent(ctx context.Context, eventType string) error {
	lg := logger.LoggerWrapper()

	amount, err := decimal.NewFromString(eventAmount)
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", eventAmount, err)
	}

	var event *events.PaymentEvent
	externalID := fmt.Sprintf("pi_cli_%d", eventPaymentID)
	switch eventType {
	case events.EventTypePaymentSucceeded:
		event = events.NewPaymentSucceededEvent(eventPaymentID, 0, externalID, string(payment.TypeSingle), amount, "usd")
	case events.EventTypePaymentFailed:
		event = events.NewPaymentFailedEvent(eventPaymentID, 0, externalID, string(payment.TypeSingle), amount, "usd", "cli test")
	case events.EventTypePaymentCanceled:
		event = events.NewPaymentCanceledEvent(eventPaymentID, 0, externalID, string(payment.TypeSingle), amount, "usd")
	case events.EventTypePaymentRefunded:
		event = events.NewPaymentRefundedEvent(eventPaymentID, 0, externalID, string(payment.TypeSingle), amount, "usd")
	case events.EventTypePaymentDisputeCreated:
		event = events.NewPaymentDisputeCreatedEvent(eventPaymentID, 0, externalID, string(payment.TypeSingle), amount, "usd")
	default:
		return fmt.Errorf("unknown payment event type %q", eventType)
	}

	eventBus := events.NewEventBus(lg, 1)
	defer eventBus.Close(ctx)
	payment.NewEventHandler(lg).RegisterEventHandlers(eventBus)

	lg.Info("publishing test event", "event_type", eventType, "event_id", event.EventID())

	if err := eventBus.PublishSync(ctx, event); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	lg.Info("test event published successfully")
	return nil
}

func init() {
	publishEventCmd.Flags().Int64Var(&eventPaymentID, "payment-id", 1, "Payment id carried by the event")
	publishEventCmd.Flags().StringVar(&eventAmount, "amount", "4.99", "Amount carried by the event")

	eventCmd.AddCommand(publishEventCmd)

	rootCmd.AddCommand(eventCmd)
}
