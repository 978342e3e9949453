package paymentgateway

import (
	"errors"
	"net/http"

	"github.com/stripe/stripe-go/v82"

	"github.com/frahmantamala/content-payments/internal"
)

// MapError converts a Stripe API error into a ProcessorError with one of the
// fixed decline codes. Anything unrecognised becomes PAYMENT_FAILED.
func MapError(err error) error {
	if err == nil {
		return nil
	}

	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return internal.NewProcessorError(internal.ErrCodeProcessingError, "payment processor unavailable", err)
	}

	message := stripeErr.Msg
	if message == "" {
		message = "payment processor rejected the request"
	}

	if stripeErr.DeclineCode == stripe.DeclineCodeInsufficientFunds {
		return internal.NewProcessorError(internal.ErrCodeInsufficientFunds, message, err)
	}

	switch stripeErr.Code {
	case stripe.ErrorCodeCardDeclined:
		return internal.NewProcessorError(internal.ErrCodeCardDeclined, message, err)
	case stripe.ErrorCodeExpiredCard:
		return internal.NewProcessorError(internal.ErrCodeExpiredCard, message, err)
	case stripe.ErrorCodeIncorrectCVC:
		return internal.NewProcessorError(internal.ErrCodeIncorrectCVC, message, err)
	case stripe.ErrorCodeProcessingError:
		return internal.NewProcessorError(internal.ErrCodeProcessingError, message, err)
	case stripe.ErrorCodeRateLimit:
		return internal.NewProcessorError(internal.ErrCodeRateLimitExceeded, message, err)
	}

	if stripeErr.HTTPStatusCode == http.StatusTooManyRequests {
		return internal.NewProcessorError(internal.ErrCodeRateLimitExceeded, message, err)
	}

	return internal.NewProcessorError(internal.ErrCodePaymentFailed, message, err)
}
