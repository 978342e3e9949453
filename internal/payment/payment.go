package payment

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	paymentDatamodel "github.com/frahmantamala/content-payments/internal/core/datamodel/payment"
)

const (
	StatusPending   = paymentDatamodel.StatusPending
	StatusSucceeded = paymentDatamodel.StatusSucceeded
	StatusFailed    = paymentDatamodel.StatusFailed
	StatusCanceled  = paymentDatamodel.StatusCanceled
	StatusRefunded  = paymentDatamodel.StatusRefunded
)

const (
	TypeSingle       = paymentDatamodel.TypeSingle
	TypeBundle       = paymentDatamodel.TypeBundle
	TypeSubscription = paymentDatamodel.TypeSubscription
)

type SubscriptionType string

const (
	SubscriptionMonthly SubscriptionType = "monthly"
	SubscriptionYearly  SubscriptionType = "yearly"
)

func (t SubscriptionType) Valid() bool {
	return t == SubscriptionMonthly || t == SubscriptionYearly
}

// ExpiresAt is the end of the period that starts at paidAt, using calendar
// arithmetic (Jan 31 + 1 month normalises the way time.AddDate does).
func (t SubscriptionType) ExpiresAt(paidAt time.Time) time.Time {
	if t == SubscriptionYearly {
		return paidAt.AddDate(1, 0, 0)
	}
	return paidAt.AddDate(0, 1, 0)
}

// Record is one purchase attempt. It is never deleted.
type Record struct {
	ID                    int64             `json:"id"`
	ExternalID            string            `json:"external_id"`
	UserID                int64             `json:"user_id"`
	ItemID                *int64            `json:"item_id,omitempty"`
	Items                 []BundleItem      `json:"items,omitempty"`
	Amount                decimal.Decimal   `json:"amount"`
	Currency              string            `json:"currency"`
	PaymentType           string            `json:"payment_type"`
	SubscriptionType      *SubscriptionType `json:"subscription_type,omitempty"`
	BundleDiscountPercent *decimal.Decimal  `json:"bundle_discount_percent,omitempty"`
	Status                string            `json:"status"`
	PaymentMethodID       *string           `json:"payment_method_id,omitempty"`
	FailureReason         *string           `json:"failure_reason,omitempty"`
	PaidAt                *time.Time        `json:"paid_at,omitempty"`
	RefundAmount          decimal.Decimal   `json:"refund_amount"`
	RefundedAt            *time.Time        `json:"refunded_at,omitempty"`
	ProcessorRefundID     *string           `json:"processor_refund_id,omitempty"`
	RetryCount            int               `json:"retry_count"`
	LastRetryAt           *time.Time        `json:"last_retry_at,omitempty"`
	RetriedFromID         *int64            `json:"retried_from_id,omitempty"`
	CreatedAt             time.Time         `json:"created_at"`
	UpdatedAt             time.Time         `json:"updated_at"`
}

type BundleItem struct {
	ItemID         int64           `json:"item_id"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	AllocatedPrice decimal.Decimal `json:"allocated_price"`
}

func (r *Record) CanRefund() bool {
	return r.Status == StatusSucceeded
}

// RefundableAmount is what is left to refund.
func (r *Record) RefundableAmount() decimal.Decimal {
	return r.Amount.Sub(r.RefundAmount)
}

func (r *Record) CanRetry(maxRetries int) bool {
	return r.Status == StatusFailed && r.RetryCount < maxRetries
}

func FromDataModel(p *paymentDatamodel.Payment) *Record {
	r := &Record{
		ID:                    p.ID,
		ExternalID:            p.ExternalID,
		UserID:                p.UserID,
		ItemID:                p.ItemID,
		Amount:                p.Amount,
		Currency:              p.Currency,
		PaymentType:           p.PaymentType,
		BundleDiscountPercent: p.BundleDiscountPercent,
		Status:                p.Status,
		PaymentMethodID:       p.PaymentMethodID,
		FailureReason:         p.FailureReason,
		PaidAt:                p.PaidAt,
		RefundAmount:          p.RefundAmount,
		RefundedAt:            p.RefundedAt,
		ProcessorRefundID:     p.ProcessorRefundID,
		RetryCount:            p.RetryCount,
		LastRetryAt:           p.LastRetryAt,
		RetriedFromID:         p.RetriedFromID,
		CreatedAt:             p.CreatedAt,
		UpdatedAt:             p.UpdatedAt,
	}
	if p.SubscriptionType != nil {
		t := SubscriptionType(*p.SubscriptionType)
		r.SubscriptionType = &t
	}
	return r
}

func FromBundleDataModel(items []*paymentDatamodel.BundleItem) []BundleItem {
	out := make([]BundleItem, 0, len(items))
	for _, it := range items {
		out = append(out, BundleItem{
			ItemID:         it.ItemID,
			UnitPrice:      it.UnitPrice,
			AllocatedPrice: it.AllocatedPrice,
		})
	}
	return out
}

// RepositoryAPI is the persistence of payment records. Every Mark* method is
// a conditional write guarded by the expected source status; it reports
// false, without error, when the record was not in that status.
type RepositoryAPI interface {
	Create(ctx context.Context, p *paymentDatamodel.Payment) error
	CreateBundleItems(ctx context.Context, items []*paymentDatamodel.BundleItem) error
	GetByID(ctx context.Context, id int64) (*paymentDatamodel.Payment, error)
	ListByExternalID(ctx context.Context, externalID string) ([]*paymentDatamodel.Payment, error)
	GetBundleItems(ctx context.Context, paymentID int64) ([]*paymentDatamodel.BundleItem, error)

	MarkSucceeded(ctx context.Context, id int64, paidAt time.Time, paymentMethodID *string) (bool, error)
	MarkFailed(ctx context.Context, id int64, reason string) (bool, error)
	MarkCanceled(ctx context.Context, id int64) (bool, error)
	MarkRefunded(ctx context.Context, id int64, refundAmount decimal.Decimal, refundedAt time.Time, refundID string) (bool, error)
	IncrementRetry(ctx context.Context, id int64, at time.Time, maxRetries int) (bool, error)

	// RecordWebhookEvent stores the processor event id and reports whether it
	// was seen for the first time.
	RecordWebhookEvent(ctx context.Context, eventID, eventType string, at time.Time) (bool, error)
}

// HistoryReader is the read model behind the payment history endpoint.
type HistoryReader interface {
	ListByUser(ctx context.Context, userID int64, limit, offset int) ([]*paymentDatamodel.Payment, int, error)
}
