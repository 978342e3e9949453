package internal

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

type ErrorType string

const (
	ErrorTypeInvalidRequest   ErrorType = "INVALID_REQUEST"
	ErrorTypeNotFound         ErrorType = "NOT_FOUND"
	ErrorTypeUnauthorized     ErrorType = "UNAUTHORIZED"
	ErrorTypeForbidden        ErrorType = "FORBIDDEN"
	ErrorTypeConflict         ErrorType = "CONFLICT"
	ErrorTypeInternal         ErrorType = "INTERNAL_ERROR"
	ErrorTypeProcessor        ErrorType = "PROCESSOR_ERROR"
	ErrorTypeWebhookSignature ErrorType = "WEBHOOK_SIGNATURE_ERROR"
	ErrorTypeReconciliation   ErrorType = "RECONCILIATION_ERROR"
)

type ErrorCode string

const (
	ErrCodeValidationFailed     ErrorCode = "VALIDATION_FAILED"
	ErrCodeInvalidAmount        ErrorCode = "INVALID_AMOUNT"
	ErrCodeItemNotPurchasable   ErrorCode = "ITEM_NOT_PURCHASABLE"
	ErrCodeBundleTooSmall       ErrorCode = "BUNDLE_TOO_SMALL"
	ErrCodeInvalidDiscount      ErrorCode = "INVALID_DISCOUNT"
	ErrCodeInvalidSubscription  ErrorCode = "INVALID_SUBSCRIPTION_TYPE"
	ErrCodeInvalidPaymentStatus ErrorCode = "INVALID_PAYMENT_STATUS"
	ErrCodeInvalidRefundAmount  ErrorCode = "INVALID_REFUND_AMOUNT"
	ErrCodeRetryLimitReached    ErrorCode = "RETRY_LIMIT_REACHED"
	ErrCodeUnsupportedCurrency  ErrorCode = "UNSUPPORTED_CURRENCY"

	ErrCodePaymentNotFound ErrorCode = "PAYMENT_NOT_FOUND"
	ErrCodeUserNotFound    ErrorCode = "USER_NOT_FOUND"

	ErrCodeAuthRequired ErrorCode = "AUTHENTICATION_REQUIRED"
	ErrCodeInvalidToken ErrorCode = "INVALID_TOKEN"
	ErrCodeTokenExpired ErrorCode = "TOKEN_EXPIRED"

	// processor decline codes
	ErrCodeCardDeclined      ErrorCode = "CARD_DECLINED"
	ErrCodeInsufficientFunds ErrorCode = "INSUFFICIENT_FUNDS"
	ErrCodeExpiredCard       ErrorCode = "EXPIRED_CARD"
	ErrCodeIncorrectCVC      ErrorCode = "INCORRECT_CVC"
	ErrCodeProcessingError   ErrorCode = "PROCESSING_ERROR"
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"
	ErrCodePaymentFailed     ErrorCode = "PAYMENT_FAILED"

	ErrCodeInvalidSignature     ErrorCode = "INVALID_SIGNATURE"
	ErrCodeReconciliationFailed ErrorCode = "RECONCILIATION_FAILED"
)

type AppError struct {
	Type       ErrorType   `json:"type"`
	Code       ErrorCode   `json:"code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
	StatusCode int         `json:"-"`
	Cause      error       `json:"-"`
}

func (e *AppError) Error() string {
	if e.Details != nil {
		if validationErrors, ok := e.Details.(ValidationErrors); ok && len(validationErrors.Errors) > 0 {
			return validationErrors.Errors[0].Message
		}
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) GetDetailedMessage() string {
	if e.Details != nil {
		if validationErrors, ok := e.Details.(ValidationErrors); ok {
			if len(validationErrors.Errors) == 1 {
				return validationErrors.Errors[0].Message
			} else if len(validationErrors.Errors) > 1 {
				messages := make([]string, len(validationErrors.Errors))
				for i, err := range validationErrors.Errors {
					messages[i] = err.Message
				}
				return strings.Join(messages, "; ")
			}
		}
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

func (e *AppError) WithDetails(details interface{}) *AppError {
	e.Details = details
	return e
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func NewValidationError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeInvalidRequest,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

// NewInvalidRequestError is the rejection returned when a request can never
// succeed as submitted: unpurchasable items, bad discounts, wrong status.
func NewInvalidRequestError(message string, code ErrorCode) *AppError {
	return NewValidationError(message, code)
}

func NewValidationFieldError(field, message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeInvalidRequest,
		Code:       ErrCodeValidationFailed,
		Message:    "Validation failed",
		StatusCode: http.StatusBadRequest,
		Details: ValidationErrors{
			Errors: []ValidationError{
				{Field: field, Message: message, Code: string(code)},
			},
		},
	}
}

func NewNotFoundError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

func NewUnauthorizedError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeUnauthorized,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

func NewForbiddenError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeForbidden,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusForbidden,
	}
}

func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

func NewConflictError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

// NewProcessorError wraps a failed call to the payment processor.
func NewProcessorError(code ErrorCode, message string, cause error) *AppError {
	status := http.StatusPaymentRequired
	switch code {
	case ErrCodeRateLimitExceeded:
		status = http.StatusTooManyRequests
	case ErrCodeProcessingError:
		status = http.StatusBadGateway
	}
	return &AppError{
		Type:       ErrorTypeProcessor,
		Code:       code,
		Message:    message,
		StatusCode: status,
		Cause:      cause,
	}
}

func NewWebhookSignatureError(cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeWebhookSignature,
		Code:       ErrCodeInvalidSignature,
		Message:    "webhook signature verification failed",
		StatusCode: http.StatusBadRequest,
		Cause:      cause,
	}
}

// NewReconciliationError signals the processor to redeliver the webhook.
func NewReconciliationError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeReconciliation,
		Code:       ErrCodeReconciliationFailed,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

var (
	ErrPaymentNotFound = NewNotFoundError("payment not found", ErrCodePaymentNotFound)

	ErrInvalidToken = NewUnauthorizedError("Invalid token", ErrCodeInvalidToken)
	ErrTokenExpired = NewUnauthorizedError("Token has expired", ErrCodeTokenExpired)
)

// IsAppError unwraps err until it finds an *AppError.
func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasType reports whether err carries an AppError of the given type.
func HasType(err error, t ErrorType) bool {
	appErr, ok := IsAppError(err)
	return ok && appErr.Type == t
}

type Response struct {
	Error *AppError `json:"error"`
}

func (e *AppError) ToHTTPResponse() (int, interface{}) {
	return e.StatusCode, Response{Error: e}
}

func (e *AppError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    ErrorType   `json:"type"`
		Code    ErrorCode   `json:"code"`
		Message string      `json:"message"`
		Details interface{} `json:"details,omitempty"`
	}{
		Type:    e.Type,
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	})
}
