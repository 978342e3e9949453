package payment

import (
	"github.com/shopspring/decimal"

	errors "github.com/frahmantamala/content-payments/internal"
	"github.com/frahmantamala/content-payments/internal/core/common/validation"
)

// CreateSingleRequest is the body of POST /payments/single
type CreateSingleRequest struct {
	ItemID   int64  `json:"item_id"`
	Currency string `json:"currency,omitempty"`
}

func (r *CreateSingleRequest) Validate() error {
	validator := validation.NewValidator()

	validator.Field("item_id", r.ItemID).Required().MinInt(1, errors.ErrCodeValidationFailed)

	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

// CreateBundleRequest is the body of POST /payments/bundle
type CreateBundleRequest struct {
	ItemIDs         []int64         `json:"item_ids"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	Currency        string          `json:"currency,omitempty"`
}

func (r *CreateBundleRequest) Validate() error {
	validator := validation.NewValidator()

	validator.Field("item_ids", r.ItemIDs).Required()
	validator.Field("discount_percent", r.DiscountPercent).
		DecimalBetween(decimal.Zero, decimal.NewFromInt(MaxBundleDiscount), errors.ErrCodeInvalidDiscount)

	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

// CreateSubscriptionRequest is the body of POST /payments/subscription
type CreateSubscriptionRequest struct {
	SubscriptionType string `json:"subscription_type"`
	Currency         string `json:"currency,omitempty"`
}

func (r *CreateSubscriptionRequest) Validate() error {
	validator := validation.NewValidator()

	validator.Field("subscription_type", r.SubscriptionType).
		Required().
		OneOf(string(SubscriptionMonthly), string(SubscriptionYearly))

	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

// RefundRequest is the optional body of POST /payments/{id}/refund. A missing
// amount refunds what is left.
type RefundRequest struct {
	Amount *decimal.Decimal `json:"amount,omitempty"`
}

func (r *RefundRequest) Validate() error {
	if r.Amount == nil {
		return nil
	}
	validator := validation.NewValidator()

	validator.Field("amount", *r.Amount).PositiveDecimal(errors.ErrCodeInvalidRefundAmount)

	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}
