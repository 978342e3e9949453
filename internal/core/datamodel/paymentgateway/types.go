package paymentgateway

import (
	"errors"

	"github.com/shopspring/decimal"
)

type IntentStatus string

const (
	IntentStatusRequiresPaymentMethod IntentStatus = "requires_payment_method"
	IntentStatusRequiresConfirmation  IntentStatus = "requires_confirmation"
	IntentStatusRequiresAction        IntentStatus = "requires_action"
	IntentStatusProcessing            IntentStatus = "processing"
	IntentStatusSucceeded             IntentStatus = "succeeded"
	IntentStatusCanceled              IntentStatus = "canceled"
)

// IntentRequest asks the processor for a new payment intent.
type IntentRequest struct {
	Amount         decimal.Decimal
	Currency       string
	Metadata       map[string]string
	IdempotencyKey string
}

func (r *IntentRequest) Validate() error {
	if !r.Amount.IsPositive() {
		return errors.New("amount must be greater than 0")
	}
	if r.Currency == "" {
		return errors.New("currency is required")
	}
	if _, err := ToMinorUnits(r.Amount, r.Currency); err != nil {
		return err
	}
	return nil
}

// Intent is the processor's view of a payment intent.
type Intent struct {
	ID              string
	ClientSecret    string
	Status          IntentStatus
	Amount          decimal.Decimal
	Currency        string
	PaymentMethodID string
	FailureReason   string
	Metadata        map[string]string
}

// Failed reports whether the latest confirmation attempt was rejected.
func (i *Intent) Failed() bool {
	return i.Status == IntentStatusRequiresPaymentMethod && i.FailureReason != ""
}

type RefundRequest struct {
	IntentID       string
	Amount         decimal.Decimal
	Currency       string
	IdempotencyKey string
}

type Refund struct {
	ID       string
	IntentID string
	Amount   decimal.Decimal
	Status   string
}

// Event is a verified processor webhook event.
type Event struct {
	ID   string
	Type string
	// IntentID is the payment intent the event concerns, when it has one.
	IntentID string
	// Intent is set for payment_intent.* events.
	Intent *Intent
}
