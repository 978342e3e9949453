package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/frahmantamala/content-payments/internal"
	"github.com/frahmantamala/content-payments/internal/core/database"
	paymentDatamodel "github.com/frahmantamala/content-payments/internal/core/datamodel/payment"
	gatewaytypes "github.com/frahmantamala/content-payments/internal/core/datamodel/paymentgateway"
	"github.com/frahmantamala/content-payments/internal/core/events"
	"github.com/frahmantamala/content-payments/internal/metrics"
)

// errNoLocalRecord rolls back the delivery so the event id stays unrecorded
// and a later redelivery can still apply it.
var errNoLocalRecord = errors.New("no local payment record for intent")

// WebhookEventKind is the closed set of processor events the engine reacts
// to. Adding a kind requires adding its handler to the reconciler table.
type WebhookEventKind int

const (
	WebhookEventUnrecognized WebhookEventKind = iota
	WebhookEventSucceeded
	WebhookEventFailed
	WebhookEventCanceled
	WebhookEventDisputeCreated

	webhookEventKindCount
)

var webhookEventKinds = map[string]WebhookEventKind{
	"payment_intent.succeeded":      WebhookEventSucceeded,
	"payment_intent.payment_failed": WebhookEventFailed,
	"payment_intent.canceled":       WebhookEventCanceled,
	"charge.dispute.created":        WebhookEventDisputeCreated,
}

func KindOf(eventType string) WebhookEventKind {
	if kind, ok := webhookEventKinds[eventType]; ok {
		return kind
	}
	return WebhookEventUnrecognized
}

func (k WebhookEventKind) String() string {
	switch k {
	case WebhookEventSucceeded:
		return "succeeded"
	case WebhookEventFailed:
		return "failed"
	case WebhookEventCanceled:
		return "canceled"
	case WebhookEventDisputeCreated:
		return "dispute_created"
	default:
		return "unrecognized"
	}
}

type webhookEventHandler func(ctx context.Context, event *gatewaytypes.Event) ([]events.Event, error)

const defaultFailureReason = "payment failed"

// WebhookReconciler applies verified processor events to payment records.
// Every branch is safe to re-run: transitions are conditional writes and the
// entitlement grant commits with the transition or not at all.
type WebhookReconciler struct {
	repo      RepositoryAPI
	verifier  EventVerifier
	processor Processor
	tx        database.Transactor
	granter   *entitlementGranter
	publisher EventPublisher
	logger    *slog.Logger
	handlers  [webhookEventKindCount]webhookEventHandler
	now       func() time.Time
}

func NewWebhookReconciler(
	repo RepositoryAPI,
	verifier EventVerifier,
	processor Processor,
	tx database.Transactor,
	library LibraryStore,
	subscriptions SubscriptionStore,
	publisher EventPublisher,
	logger *slog.Logger,
) (*WebhookReconciler, error) {
	r := &WebhookReconciler{
		repo:      repo,
		verifier:  verifier,
		processor: processor,
		tx:        tx,
		granter: &entitlementGranter{
			repo:          repo,
			library:       library,
			subscriptions: subscriptions,
			logger:        logger,
		},
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}

	r.handlers = [webhookEventKindCount]webhookEventHandler{
		WebhookEventUnrecognized:   r.handleUnrecognized,
		WebhookEventSucceeded:      r.handleSucceeded,
		WebhookEventFailed:         r.handleFailed,
		WebhookEventCanceled:       r.handleCanceled,
		WebhookEventDisputeCreated: r.handleDisputeCreated,
	}
	for kind, handler := range r.handlers {
		if handler == nil {
			return nil, fmt.Errorf("no webhook handler for event kind %s", WebhookEventKind(kind))
		}
	}

	return r, nil
}

// Handle verifies and applies one webhook delivery. A signature failure is
// returned as WEBHOOK_SIGNATURE_ERROR and nothing is written; any other
// failure is a RECONCILIATION_ERROR so the processor redelivers.
func (r *WebhookReconciler) Handle(ctx context.Context, payload []byte, signature string) error {
	event, err := r.verifier.ParseEvent(payload, signature)
	if err != nil {
		if internal.HasType(err, internal.ErrorTypeWebhookSignature) {
			metrics.IncWebhook(WebhookEventUnrecognized.String(), metrics.WebhookRejected)
			return err
		}
		r.logger.Error("failed to decode verified webhook event", "error", err)
		return internal.NewReconciliationError("failed to decode webhook event", err)
	}

	kind := KindOf(event.Type)
	logger := r.logger.With(
		"event_id", event.ID,
		"event_type", event.Type,
		"kind", kind.String(),
		"external_id", event.IntentID)

	var (
		published []events.Event
		duplicate bool
	)
	err = r.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		if event.ID != "" {
			var fresh bool
			fresh, err = r.repo.RecordWebhookEvent(ctx, event.ID, event.Type, r.now().UTC())
			if err != nil {
				return fmt.Errorf("record webhook event: %w", err)
			}
			if !fresh {
				duplicate = true
				return nil
			}
		}

		published, err = r.handlers[kind](ctx, event)
		return err
	})
	if errors.Is(err, errNoLocalRecord) {
		logger.Warn("no payment record for intent, leaving event unrecorded")
		metrics.IncWebhook(kind.String(), metrics.WebhookUnmatched)
		return nil
	}
	if err != nil {
		logger.Error("failed to reconcile webhook event", "error", err)
		metrics.IncWebhook(kind.String(), metrics.WebhookError)
		return internal.NewReconciliationError("failed to reconcile webhook event", err)
	}

	if duplicate {
		logger.Info("webhook event already processed")
		metrics.IncWebhook(kind.String(), metrics.WebhookDuplicate)
		return nil
	}

	metrics.IncWebhook(kind.String(), metrics.WebhookApplied)
	logger.Info("webhook event reconciled", "state_changes", len(published))
	r.publish(ctx, published)
	return nil
}

// Confirm asks the processor for the current state of a pending payment and
// applies it through the same transitions as the webhook. It covers clients
// that finish checkout before the webhook arrives.
func (r *WebhookReconciler) Confirm(ctx context.Context, userID, paymentID int64) (*Record, error) {
	p, err := loadOwned(ctx, r.repo, userID, paymentID)
	if err != nil {
		return nil, err
	}

	if p.Status == StatusPending {
		intent, err := r.processor.RetrieveIntent(ctx, p.ExternalID)
		if err != nil {
			r.logger.Error("failed to retrieve payment intent", "error", err, "payment_id", p.ID, "external_id", p.ExternalID)
			return nil, processorError(err)
		}

		var published []events.Event
		err = r.tx.WithTx(ctx, func(ctx context.Context) error {
			event, err := r.applyIntent(ctx, p, intent)
			if event != nil {
				published = append(published, event)
			}
			return err
		})
		if err != nil {
			r.logger.Error("failed to confirm payment", "error", err, "payment_id", p.ID)
			return nil, internal.NewInternalError("failed to confirm payment", err)
		}
		r.publish(ctx, published)
	}

	return loadRecord(ctx, r.repo, paymentID)
}

func (r *WebhookReconciler) applyIntent(ctx context.Context, p *paymentDatamodel.Payment, intent *gatewaytypes.Intent) (events.Event, error) {
	switch {
	case intent.Status == gatewaytypes.IntentStatusSucceeded:
		return r.succeed(ctx, p, intent.PaymentMethodID)
	case intent.Status == gatewaytypes.IntentStatusCanceled:
		return r.cancel(ctx, p)
	case intent.Failed():
		return r.fail(ctx, p, intent.FailureReason)
	}
	r.logger.Debug("payment intent still in progress", "payment_id", p.ID, "intent_status", intent.Status)
	return nil, nil
}

func (r *WebhookReconciler) handleSucceeded(ctx context.Context, event *gatewaytypes.Event) ([]events.Event, error) {
	paymentMethodID := ""
	if event.Intent != nil {
		paymentMethodID = event.Intent.PaymentMethodID
	}
	return r.forEachRecord(ctx, event, func(ctx context.Context, p *paymentDatamodel.Payment) (events.Event, error) {
		return r.succeed(ctx, p, paymentMethodID)
	})
}

func (r *WebhookReconciler) handleFailed(ctx context.Context, event *gatewaytypes.Event) ([]events.Event, error) {
	reason := ""
	if event.Intent != nil {
		reason = event.Intent.FailureReason
	}
	return r.forEachRecord(ctx, event, func(ctx context.Context, p *paymentDatamodel.Payment) (events.Event, error) {
		return r.fail(ctx, p, reason)
	})
}

func (r *WebhookReconciler) handleCanceled(ctx context.Context, event *gatewaytypes.Event) ([]events.Event, error) {
	return r.forEachRecord(ctx, event, r.cancel)
}

// handleDisputeCreated only reports the dispute; it never changes state.
func (r *WebhookReconciler) handleDisputeCreated(ctx context.Context, event *gatewaytypes.Event) ([]events.Event, error) {
	return r.forEachRecord(ctx, event, func(_ context.Context, p *paymentDatamodel.Payment) (events.Event, error) {
		r.logger.Warn("dispute opened against payment",
			"payment_id", p.ID,
			"user_id", p.UserID,
			"external_id", p.ExternalID,
			"status", p.Status)
		return events.NewPaymentDisputeCreatedEvent(p.ID, p.UserID, p.ExternalID, p.PaymentType, p.Amount, p.Currency), nil
	})
}

func (r *WebhookReconciler) handleUnrecognized(_ context.Context, event *gatewaytypes.Event) ([]events.Event, error) {
	r.logger.Info("ignoring unrecognized webhook event", "event_id", event.ID, "event_type", event.Type)
	return nil, nil
}

// forEachRecord runs apply on every record of the event's intent. An intent
// without local records fails with errNoLocalRecord.
func (r *WebhookReconciler) forEachRecord(
	ctx context.Context,
	event *gatewaytypes.Event,
	apply func(ctx context.Context, p *paymentDatamodel.Payment) (events.Event, error),
) ([]events.Event, error) {
	if event.IntentID == "" {
		r.logger.Warn("webhook event carries no payment intent", "event_id", event.ID, "event_type", event.Type)
		return nil, nil
	}

	records, err := r.repo.ListByExternalID(ctx, event.IntentID)
	if err != nil {
		return nil, fmt.Errorf("load payments for intent %s: %w", event.IntentID, err)
	}
	if len(records) == 0 {
		return nil, errNoLocalRecord
	}

	var out []events.Event
	for _, p := range records {
		e, err := apply(ctx, p)
		if err != nil {
			return nil, err
		}
		if e != nil {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *WebhookReconciler) succeed(ctx context.Context, p *paymentDatamodel.Payment, paymentMethodID string) (events.Event, error) {
	if p.Status != StatusPending {
		r.skip(p, StatusSucceeded)
		return nil, nil
	}

	paidAt := r.now().UTC()
	var method *string
	if paymentMethodID != "" {
		method = &paymentMethodID
	}

	ok, err := r.repo.MarkSucceeded(ctx, p.ID, paidAt, method)
	if err != nil {
		return nil, fmt.Errorf("mark payment %d succeeded: %w", p.ID, err)
	}
	if !ok {
		r.skip(p, StatusSucceeded)
		return nil, nil
	}

	if err := r.granter.grant(ctx, p, paidAt); err != nil {
		return nil, err
	}

	r.logger.Info("payment succeeded",
		"payment_id", p.ID,
		"user_id", p.UserID,
		"external_id", p.ExternalID,
		"payment_type", p.PaymentType,
		"amount", p.Amount.String())
	return events.NewPaymentSucceededEvent(p.ID, p.UserID, p.ExternalID, p.PaymentType, p.Amount, p.Currency), nil
}

func (r *WebhookReconciler) fail(ctx context.Context, p *paymentDatamodel.Payment, reason string) (events.Event, error) {
	if p.Status != StatusPending {
		r.skip(p, StatusFailed)
		return nil, nil
	}
	if reason == "" {
		reason = defaultFailureReason
	}

	ok, err := r.repo.MarkFailed(ctx, p.ID, reason)
	if err != nil {
		return nil, fmt.Errorf("mark payment %d failed: %w", p.ID, err)
	}
	if !ok {
		r.skip(p, StatusFailed)
		return nil, nil
	}

	r.logger.Info("payment failed", "payment_id", p.ID, "external_id", p.ExternalID, "failure_reason", reason)
	return events.NewPaymentFailedEvent(p.ID, p.UserID, p.ExternalID, p.PaymentType, p.Amount, p.Currency, reason), nil
}

func (r *WebhookReconciler) cancel(ctx context.Context, p *paymentDatamodel.Payment) (events.Event, error) {
	if p.Status != StatusPending {
		r.skip(p, StatusCanceled)
		return nil, nil
	}

	ok, err := r.repo.MarkCanceled(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("mark payment %d canceled: %w", p.ID, err)
	}
	if !ok {
		r.skip(p, StatusCanceled)
		return nil, nil
	}

	r.logger.Info("payment canceled", "payment_id", p.ID, "external_id", p.ExternalID)
	return events.NewPaymentCanceledEvent(p.ID, p.UserID, p.ExternalID, p.PaymentType, p.Amount, p.Currency), nil
}

func (r *WebhookReconciler) skip(p *paymentDatamodel.Payment, target string) {
	r.logger.Info("payment transition skipped",
		"payment_id", p.ID,
		"external_id", p.ExternalID,
		"status", p.Status,
		"target_status", target)
}

// publish runs after commit. Subscribers must not depend on the request
// context staying alive.
func (r *WebhookReconciler) publish(ctx context.Context, published []events.Event) {
	if r.publisher == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for _, e := range published {
		if err := r.publisher.Publish(ctx, e); err != nil {
			r.logger.Error("failed to publish payment event", "error", err, "event_type", e.EventType())
		}
	}
}

// loadOwned returns the record only if it belongs to userID. Records of other
// users are reported as not found.
func loadOwned(ctx context.Context, repo RepositoryAPI, userID, paymentID int64) (*paymentDatamodel.Payment, error) {
	p, err := repo.GetByID(ctx, paymentID)
	if err != nil {
		if internal.HasType(err, internal.ErrorTypeNotFound) {
			return nil, err
		}
		return nil, internal.NewInternalError("failed to load payment", err)
	}
	if p.UserID != userID {
		return nil, internal.ErrPaymentNotFound
	}
	return p, nil
}

func loadRecord(ctx context.Context, repo RepositoryAPI, paymentID int64) (*Record, error) {
	p, err := repo.GetByID(ctx, paymentID)
	if err != nil {
		if internal.HasType(err, internal.ErrorTypeNotFound) {
			return nil, err
		}
		return nil, internal.NewInternalError("failed to load payment", err)
	}

	record := FromDataModel(p)
	if p.PaymentType == TypeBundle {
		items, err := repo.GetBundleItems(ctx, p.ID)
		if err != nil {
			return nil, internal.NewInternalError("failed to load bundle items", err)
		}
		record.Items = FromBundleDataModel(items)
	}
	return record, nil
}
