package payment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/frahmantamala/content-payments/internal"
	"github.com/frahmantamala/content-payments/internal/core/database"
	paymentDatamodel "github.com/frahmantamala/content-payments/internal/core/datamodel/payment"
	gatewaytypes "github.com/frahmantamala/content-payments/internal/core/datamodel/paymentgateway"
	"github.com/frahmantamala/content-payments/internal/core/events"
	"github.com/frahmantamala/content-payments/internal/metrics"
)

const DefaultMaxRetries = 3

// RefundRetryManager refunds succeeded payments and replaces failed ones with
// fresh intents.
type RefundRetryManager struct {
	repo       RepositoryAPI
	processor  Processor
	factory    *IntentFactory
	tx         database.Transactor
	publisher  EventPublisher
	maxRetries int
	logger     *slog.Logger
	now        func() time.Time
}

func NewRefundRetryManager(repo RepositoryAPI, processor Processor, factory *IntentFactory, tx database.Transactor, publisher EventPublisher, maxRetries int, logger *slog.Logger) *RefundRetryManager {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &RefundRetryManager{
		repo:       repo,
		processor:  processor,
		factory:    factory,
		tx:         tx,
		publisher:  publisher,
		maxRetries: maxRetries,
		logger:     logger,
		now:        time.Now,
	}
}

// Refund returns money for a succeeded payment. amount defaults to everything
// not refunded yet.
func (m *RefundRetryManager) Refund(ctx context.Context, userID, paymentID int64, amount *decimal.Decimal) (*Record, error) {
	p, err := loadOwned(ctx, m.repo, userID, paymentID)
	if err != nil {
		return nil, err
	}

	if p.Status != StatusSucceeded {
		return nil, internal.NewInvalidRequestError(
			fmt.Sprintf("payment in status %s cannot be refunded", p.Status),
			internal.ErrCodeInvalidPaymentStatus)
	}

	remaining := p.Amount.Sub(p.RefundAmount)
	refund := remaining
	if amount != nil {
		refund = *amount
	}
	refundMinor, err := gatewaytypes.ToMinorUnits(refund, p.Currency)
	if err != nil || !refund.IsPositive() || refund.GreaterThan(remaining) || !refund.Equal(refund.Round(moneyDecimalPlaces)) {
		return nil, internal.NewInvalidRequestError(
			fmt.Sprintf("refund amount must be greater than 0 and at most %s", remaining.StringFixed(moneyDecimalPlaces)),
			internal.ErrCodeInvalidRefundAmount)
	}

	result, err := m.processor.CreateRefund(ctx, gatewaytypes.RefundRequest{
		IntentID:       p.ExternalID,
		Amount:         refund,
		Currency:       p.Currency,
		IdempotencyKey: refundIdempotencyKey(p.ID, refundMinor),
	})
	if err != nil {
		m.logger.Error("processor refund failed", "error", err, "payment_id", p.ID, "external_id", p.ExternalID)
		return nil, processorError(err)
	}

	refundedAt := m.now().UTC()
	ok, err := m.repo.MarkRefunded(ctx, p.ID, p.RefundAmount.Add(refund), refundedAt, result.ID)
	if err != nil {
		// The money has moved; the refund id in the log is what reconciles it.
		m.logger.Error("failed to record refund",
			"error", err,
			"payment_id", p.ID,
			"processor_refund_id", result.ID,
			"amount", refund.String())
		return nil, internal.NewInternalError("failed to record refund", err)
	}
	if ok {
		metrics.IncPayment(p.PaymentType, StatusRefunded)
		metrics.AddRefund(p.Currency, refund)
		m.logger.Info("payment refunded",
			"payment_id", p.ID,
			"user_id", p.UserID,
			"processor_refund_id", result.ID,
			"amount", refund.String())
		m.publish(ctx, events.NewPaymentRefundedEvent(p.ID, p.UserID, p.ExternalID, p.PaymentType, refund, p.Currency))
	} else {
		m.logger.Warn("payment left succeeded before the refund was recorded", "payment_id", p.ID, "processor_refund_id", result.ID)
	}

	return loadRecord(ctx, m.repo, p.ID)
}

// Retry opens a new intent for a failed payment with the same user, items and
// type. The failed record keeps its amount, status and items; only its retry
// counters move, and they commit together with the new record.
func (m *RefundRetryManager) Retry(ctx context.Context, userID, paymentID int64) (*IntentHandle, error) {
	p, err := loadOwned(ctx, m.repo, userID, paymentID)
	if err != nil {
		return nil, err
	}

	if p.Status != StatusFailed {
		return nil, internal.NewInvalidRequestError(
			fmt.Sprintf("payment in status %s cannot be retried", p.Status),
			internal.ErrCodeInvalidPaymentStatus)
	}
	if p.RetryCount >= m.maxRetries {
		return nil, retryLimitError(m.maxRetries)
	}

	var handle *IntentHandle
	err = m.tx.WithTx(ctx, func(ctx context.Context) error {
		ok, err := m.repo.IncrementRetry(ctx, p.ID, m.now().UTC(), m.maxRetries)
		if err != nil {
			return fmt.Errorf("increment retry count: %w", err)
		}
		if !ok {
			return retryLimitError(m.maxRetries)
		}

		handle, err = m.replace(ctx, p)
		return err
	})
	if err != nil {
		if _, isAppErr := internal.IsAppError(err); isAppErr {
			return nil, err
		}
		m.logger.Error("failed to retry payment", "error", err, "payment_id", p.ID)
		return nil, internal.NewInternalError("failed to retry payment", err)
	}

	metrics.IncRetry()
	m.logger.Info("payment retried",
		"payment_id", p.ID,
		"new_payment_id", handle.PaymentID,
		"external_id", handle.IntentID,
		"retry_count", p.RetryCount+1)
	return handle, nil
}

func (m *RefundRetryManager) replace(ctx context.Context, p *paymentDatamodel.Payment) (*IntentHandle, error) {
	opts := IntentOptions{Currency: p.Currency, RetriedFromID: &p.ID}

	switch p.PaymentType {
	case TypeSingle:
		if p.ItemID == nil {
			return nil, fmt.Errorf("single payment %d has no item", p.ID)
		}
		return m.factory.CreateSingle(ctx, p.UserID, *p.ItemID, opts)

	case TypeBundle:
		items, err := m.repo.GetBundleItems(ctx, p.ID)
		if err != nil {
			return nil, fmt.Errorf("load bundle items: %w", err)
		}
		ids := lo.Map(items, func(it *paymentDatamodel.BundleItem, _ int) int64 { return it.ItemID })
		discount := decimal.Zero
		if p.BundleDiscountPercent != nil {
			discount = *p.BundleDiscountPercent
		}
		return m.factory.CreateBundle(ctx, p.UserID, ids, discount, opts)

	case TypeSubscription:
		if p.SubscriptionType == nil {
			return nil, fmt.Errorf("subscription payment %d has no plan", p.ID)
		}
		return m.factory.CreateSubscription(ctx, p.UserID, SubscriptionType(*p.SubscriptionType), opts)
	}

	return nil, fmt.Errorf("payment %d has unknown type %q", p.ID, p.PaymentType)
}

func (m *RefundRetryManager) publish(ctx context.Context, event events.Event) {
	if m.publisher == nil {
		return
	}
	if err := m.publisher.Publish(context.WithoutCancel(ctx), event); err != nil {
		m.logger.Error("failed to publish payment event", "error", err, "event_type", event.EventType())
	}
}

func retryLimitError(max int) error {
	return internal.NewInvalidRequestError(
		fmt.Sprintf("payment has reached the retry limit of %d", max),
		internal.ErrCodeRetryLimitReached)
}

// refundIdempotencyKey lets a resent request for the same amount reuse the
// processor's refund while a request for a different amount gets its own.
func refundIdempotencyKey(paymentID, amountMinor int64) string {
	return fmt.Sprintf("refund-%d-%d", paymentID, amountMinor)
}
