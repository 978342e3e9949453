package payment

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const (
	StatusPending   = "pending"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusCanceled  = "canceled"
	StatusRefunded  = "refunded"
)

const (
	TypeSingle       = "single"
	TypeBundle       = "bundle"
	TypeSubscription = "subscription"
)

// Metadata is stored as a JSON object column.
type Metadata map[string]string

func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (m *Metadata) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*m = Metadata{}
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("unsupported metadata type %T", src)
	}
	if len(raw) == 0 {
		*m = Metadata{}
		return nil
	}
	return json.Unmarshal(raw, m)
}

type Payment struct {
	ID                    int64            `gorm:"primaryKey" db:"id"`
	ExternalID            string           `gorm:"column:external_id;not null;uniqueIndex" db:"external_id"`
	UserID                int64            `gorm:"column:user_id;not null;index" db:"user_id"`
	ItemID                *int64           `gorm:"column:item_id" db:"item_id"`
	Amount                decimal.Decimal  `gorm:"column:amount;type:numeric(12,2);not null" db:"amount"`
	Currency              string           `gorm:"column:currency;not null" db:"currency"`
	PaymentType           string           `gorm:"column:payment_type;not null" db:"payment_type"`
	SubscriptionType      *string          `gorm:"column:subscription_type" db:"subscription_type"`
	BundleDiscountPercent *decimal.Decimal `gorm:"column:bundle_discount_percent;type:numeric(5,2)" db:"bundle_discount_percent"`
	Status                string           `gorm:"column:status;not null;default:pending;index" db:"status"`
	PaymentMethodID       *string          `gorm:"column:payment_method_id" db:"payment_method_id"`
	FailureReason         *string          `gorm:"column:failure_reason" db:"failure_reason"`
	PaidAt                *time.Time       `gorm:"column:paid_at" db:"paid_at"`
	RefundAmount          decimal.Decimal  `gorm:"column:refund_amount;type:numeric(12,2);not null;default:0" db:"refund_amount"`
	RefundedAt            *time.Time       `gorm:"column:refunded_at" db:"refunded_at"`
	ProcessorRefundID     *string          `gorm:"column:processor_refund_id" db:"processor_refund_id"`
	RetryCount            int              `gorm:"column:retry_count;not null;default:0" db:"retry_count"`
	LastRetryAt           *time.Time       `gorm:"column:last_retry_at" db:"last_retry_at"`
	RetriedFromID         *int64           `gorm:"column:retried_from_id" db:"retried_from_id"`
	Metadata              Metadata         `gorm:"column:metadata;type:jsonb" db:"metadata"`
	CreatedAt             time.Time        `gorm:"column:created_at;autoCreateTime" db:"created_at"`
	UpdatedAt             time.Time        `gorm:"column:updated_at;autoUpdateTime" db:"updated_at"`
}

func (Payment) TableName() string {
	return "payments"
}

// BundleItem is one catalogue item covered by a bundle payment. The
// allocated prices of a bundle sum to the payment amount.
type BundleItem struct {
	ID             int64           `gorm:"primaryKey"`
	PaymentID      int64           `gorm:"column:payment_id;not null;uniqueIndex:ux_payment_bundle_items_payment_item,priority:1"`
	ItemID         int64           `gorm:"column:item_id;not null;uniqueIndex:ux_payment_bundle_items_payment_item,priority:2"`
	UnitPrice      decimal.Decimal `gorm:"column:unit_price;type:numeric(12,2);not null"`
	AllocatedPrice decimal.Decimal `gorm:"column:allocated_price;type:numeric(12,2);not null"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (BundleItem) TableName() string {
	return "payment_bundle_items"
}

// WebhookEvent records processor events already applied, so a redelivery
// short-circuits before dispatch.
type WebhookEvent struct {
	ID          int64     `gorm:"primaryKey"`
	EventID     string    `gorm:"column:event_id;not null;uniqueIndex"`
	EventType   string    `gorm:"column:event_type;not null"`
	ProcessedAt time.Time `gorm:"column:processed_at;not null"`
}

func (WebhookEvent) TableName() string {
	return "webhook_events"
}
