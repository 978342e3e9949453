package events

import "github.com/shopspring/decimal"

const (
	EventTypePaymentSucceeded      = "payment.succeeded"
	EventTypePaymentFailed         = "payment.failed"
	EventTypePaymentCanceled       = "payment.canceled"
	EventTypePaymentRefunded       = "payment.refunded"
	EventTypePaymentDisputeCreated = "payment.dispute_created"
)

// PaymentEvent describes a state change of one payment record. It is
// published only after the change has been committed.
type PaymentEvent struct {
	BaseEvent
	PaymentID   int64           `json:"payment_id"`
	UserID      int64           `json:"user_id"`
	ExternalID  string          `json:"external_id"`
	PaymentType string          `json:"payment_type"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Reason      string          `json:"reason,omitempty"`
}

func newPaymentEvent(eventType string, paymentID, userID int64, externalID, paymentType string, amount decimal.Decimal, currency, reason string) *PaymentEvent {
	return &PaymentEvent{
		BaseEvent: newBaseEvent(eventType, map[string]interface{}{
			"payment_id":   paymentID,
			"user_id":      userID,
			"external_id":  externalID,
			"payment_type": paymentType,
			"amount":       amount.String(),
			"currency":     currency,
			"reason":       reason,
		}),
		PaymentID:   paymentID,
		UserID:      userID,
		ExternalID:  externalID,
		PaymentType: paymentType,
		Amount:      amount,
		Currency:    currency,
		Reason:      reason,
	}
}

func NewPaymentSucceededEvent(paymentID, userID int64, externalID, paymentType string, amount decimal.Decimal, currency string) *PaymentEvent {
	return newPaymentEvent(EventTypePaymentSucceeded, paymentID, userID, externalID, paymentType, amount, currency, "")
}

func NewPaymentFailedEvent(paymentID, userID int64, externalID, paymentType string, amount decimal.Decimal, currency, failureReason string) *PaymentEvent {
	return newPaymentEvent(EventTypePaymentFailed, paymentID, userID, externalID, paymentType, amount, currency, failureReason)
}

func NewPaymentCanceledEvent(paymentID, userID int64, externalID, paymentType string, amount decimal.Decimal, currency string) *PaymentEvent {
	return newPaymentEvent(EventTypePaymentCanceled, paymentID, userID, externalID, paymentType, amount, currency, "")
}

// NewPaymentRefundedEvent carries the refunded amount, not the original one.
func NewPaymentRefundedEvent(paymentID, userID int64, externalID, paymentType string, refunded decimal.Decimal, currency string) *PaymentEvent {
	return newPaymentEvent(EventTypePaymentRefunded, paymentID, userID, externalID, paymentType, refunded, currency, "")
}

func NewPaymentDisputeCreatedEvent(paymentID, userID int64, externalID, paymentType string, amount decimal.Decimal, currency string) *PaymentEvent {
	return newPaymentEvent(EventTypePaymentDisputeCreated, paymentID, userID, externalID, paymentType, amount, currency, "")
}
