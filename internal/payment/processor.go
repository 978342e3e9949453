package payment

import (
	"context"

	"github.com/frahmantamala/content-payments/internal"
	gatewaytypes "github.com/frahmantamala/content-payments/internal/core/datamodel/paymentgateway"
	"github.com/frahmantamala/content-payments/internal/core/events"
)

// Processor is the outbound payment processor capability.
type Processor interface {
	CreateIntent(ctx context.Context, req gatewaytypes.IntentRequest) (*gatewaytypes.Intent, error)
	RetrieveIntent(ctx context.Context, intentID string) (*gatewaytypes.Intent, error)
	CreateRefund(ctx context.Context, req gatewaytypes.RefundRequest) (*gatewaytypes.Refund, error)
}

// EventVerifier checks a webhook signature and decodes the event.
type EventVerifier interface {
	ParseEvent(payload []byte, signature string) (*gatewaytypes.Event, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

// processorError makes sure callers always see a PROCESSOR_ERROR for a
// failed processor call, whatever the client implementation returned.
func processorError(err error) error {
	if internal.HasType(err, internal.ErrorTypeProcessor) {
		return err
	}
	return internal.NewProcessorError(internal.ErrCodeProcessingError, "payment processor unavailable", err)
}
