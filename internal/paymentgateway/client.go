package paymentgateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/frahmantamala/content-payments/internal"
	gatewaytypes "github.com/frahmantamala/content-payments/internal/core/datamodel/paymentgateway"
)

type Config struct {
	SecretKey        string
	WebhookSecret    string
	WebhookTolerance time.Duration
	RequestTimeout   time.Duration
}

// Client talks to Stripe. It creates and retrieves payment intents, issues
// refunds and verifies webhook payloads.
type Client struct {
	stripe *stripe.Client
	config Config
	logger *slog.Logger
}

func NewClient(config Config, logger *slog.Logger) *Client {
	if config.WebhookTolerance <= 0 {
		config.WebhookTolerance = webhook.DefaultTolerance
	}
	return &Client{
		stripe: stripe.NewClient(config.SecretKey, nil),
		config: config,
		logger: logger,
	}
}

func (c *Client) CreateIntent(ctx context.Context, req gatewaytypes.IntentRequest) (*gatewaytypes.Intent, error) {
	if err := req.Validate(); err != nil {
		return nil, internal.NewValidationError(err.Error(), internal.ErrCodeInvalidAmount)
	}

	amount, err := gatewaytypes.ToMinorUnits(req.Amount, req.Currency)
	if err != nil {
		return nil, internal.NewValidationError(err.Error(), internal.ErrCodeInvalidAmount)
	}

	ctx, cancel := internal.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	params := &stripe.PaymentIntentCreateParams{
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(req.Currency),
		Metadata: req.Metadata,
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	pi, err := c.stripe.V1PaymentIntents.Create(ctx, params)
	if err != nil {
		c.logger.Error("failed to create payment intent",
			"error", err,
			"amount", req.Amount.String(),
			"currency", req.Currency)
		return nil, MapError(err)
	}

	c.logger.Info("payment intent created",
		"intent_id", pi.ID,
		"amount", req.Amount.String(),
		"currency", req.Currency,
		"status", pi.Status)

	return toIntent(pi), nil
}

func (c *Client) RetrieveIntent(ctx context.Context, intentID string) (*gatewaytypes.Intent, error) {
	ctx, cancel := internal.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	params := &stripe.PaymentIntentRetrieveParams{
		Expand: []*string{stripe.String("payment_method")},
	}
	pi, err := c.stripe.V1PaymentIntents.Retrieve(ctx, intentID, params)
	if err != nil {
		c.logger.Error("failed to retrieve payment intent", "error", err, "intent_id", intentID)
		return nil, MapError(err)
	}

	c.logger.Debug("retrieved payment intent", "intent_id", pi.ID, "status", pi.Status)
	return toIntent(pi), nil
}

func (c *Client) CreateRefund(ctx context.Context, req gatewaytypes.RefundRequest) (*gatewaytypes.Refund, error) {
	amount, err := gatewaytypes.ToMinorUnits(req.Amount, req.Currency)
	if err != nil {
		return nil, internal.NewValidationError(err.Error(), internal.ErrCodeInvalidRefundAmount)
	}

	ctx, cancel := internal.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	params := &stripe.RefundCreateParams{
		PaymentIntent: stripe.String(req.IntentID),
		Amount:        stripe.Int64(amount),
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	refund, err := c.stripe.V1Refunds.Create(ctx, params)
	if err != nil {
		c.logger.Error("failed to create refund",
			"error", err,
			"intent_id", req.IntentID,
			"amount", req.Amount.String())
		return nil, MapError(err)
	}

	c.logger.Info("refund created",
		"refund_id", refund.ID,
		"intent_id", req.IntentID,
		"amount", req.Amount.String(),
		"status", refund.Status)

	return &gatewaytypes.Refund{
		ID:       refund.ID,
		IntentID: req.IntentID,
		Amount:   gatewaytypes.FromMinorUnits(refund.Amount, req.Currency),
		Status:   string(refund.Status),
	}, nil
}

// ParseEvent verifies the Stripe-Signature header against the endpoint
// secret and decodes the event. Nothing is decoded before the signature
// has been checked.
func (c *Client) ParseEvent(payload []byte, signature string) (*gatewaytypes.Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, c.config.WebhookSecret, webhook.ConstructEventOptions{
		Tolerance:                c.config.WebhookTolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		c.logger.Warn("stripe webhook verification failed", "error", err)
		return nil, internal.NewWebhookSignatureError(err)
	}

	out := &gatewaytypes.Event{
		ID:   event.ID,
		Type: string(event.Type),
	}
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return out, nil
	}

	switch {
	case isIntentEvent(out.Type):
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("decode payment intent from event %s: %w", event.ID, err)
		}
		out.Intent = toIntent(&pi)
		out.IntentID = pi.ID
	case isDisputeEvent(out.Type):
		var dispute stripe.Dispute
		if err := json.Unmarshal(event.Data.Raw, &dispute); err != nil {
			return nil, fmt.Errorf("decode dispute from event %s: %w", event.ID, err)
		}
		if dispute.PaymentIntent != nil {
			out.IntentID = dispute.PaymentIntent.ID
		}
	}

	return out, nil
}

func isIntentEvent(eventType string) bool {
	return strings.HasPrefix(eventType, "payment_intent.")
}

func isDisputeEvent(eventType string) bool {
	return strings.HasPrefix(eventType, "charge.dispute.")
}

func toIntent(pi *stripe.PaymentIntent) *gatewaytypes.Intent {
	intent := &gatewaytypes.Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       gatewaytypes.IntentStatus(pi.Status),
		Amount:       gatewaytypes.FromMinorUnits(pi.Amount, string(pi.Currency)),
		Currency:     string(pi.Currency),
		Metadata:     pi.Metadata,
	}
	if pi.PaymentMethod != nil {
		intent.PaymentMethodID = pi.PaymentMethod.ID
	}
	if pi.LastPaymentError != nil {
		intent.FailureReason = pi.LastPaymentError.Msg
		if intent.FailureReason == "" {
			intent.FailureReason = string(pi.LastPaymentError.Code)
		}
	}
	return intent
}
