package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorType string

const (
	// Caller-correctable sizing and order-parameter failures.
	ErrInvalidInput     ErrorType = "INVALID_INPUT"
	ErrBelowMinQty      ErrorType = "BELOW_MINIMUM_QUANTITY"
	ErrNotionalTooSmall ErrorType = "NOTIONAL_TOO_SMALL"

	// A fill ID that was already booked.
	ErrDuplicateFill ErrorType = "DUPLICATE_FILL"

	// Persistence backend could not be read or written.
	ErrStateUnavailable ErrorType = "STATE_UNAVAILABLE"

	ErrInvalidRequest ErrorType = "INVALID_REQUEST"
	ErrAuthFailed     ErrorType = "AUTH_FAILED"
	ErrNotFound       ErrorType = "NOT_FOUND"
	ErrRateLimited    ErrorType = "RATE_LIMITED"
	ErrInternal       ErrorType = "INTERNAL_ERROR"
)

// AppError is the standard error struct for the application
type AppError struct {
	Type       ErrorType `json:"code"`
	Message    string    `json:"message"`
	Suggestion string    `json:"suggestion,omitempty"`
	HTTPStatus int       `json:"-"`
	Cause      error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func New(errType ErrorType, msg string, cause error) *AppError {
	return &AppError{
		Type:       errType,
		Message:    msg,
		Cause:      cause,
		HTTPStatus: mapTypeToStatus(errType),
		Suggestion: mapTypeToSuggestion(errType),
	}
}

func InvalidInput(format string, args ...any) *AppError {
	return New(ErrInvalidInput, fmt.Sprintf(format, args...), nil)
}

func BelowMinQty(format string, args ...any) *AppError {
	return New(ErrBelowMinQty, fmt.Sprintf(format, args...), nil)
}

func NotionalTooSmall(format string, args ...any) *AppError {
	return New(ErrNotionalTooSmall, fmt.Sprintf(format, args...), nil)
}

// StateUnavailable wraps a persistence failure. A nil cause yields nil.
func StateUnavailable(op string, cause error) *AppError {
	if cause == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(cause, &appErr) && appErr.Type == ErrStateUnavailable {
		return appErr
	}
	return New(ErrStateUnavailable, "risk state unavailable ("+op+")", cause)
}

func NewInvalidRequest(msg string) *AppError {
	return New(ErrInvalidRequest, msg, nil)
}

func Wrap(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return New(ErrInternal, err.Error(), err)
}

// IsType reports whether any error in err's chain is an AppError of type t.
func IsType(err error, t ErrorType) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Type == t
}

func mapTypeToStatus(t ErrorType) int {
	switch t {
	case ErrInvalidInput, ErrBelowMinQty, ErrNotionalTooSmall:
		return http.StatusUnprocessableEntity
	case ErrInvalidRequest:
		return http.StatusBadRequest
	case ErrDuplicateFill:
		return http.StatusConflict
	case ErrAuthFailed:
		return http.StatusUnauthorized
	case ErrNotFound:
		return http.StatusNotFound
	case ErrRateLimited:
		return http.StatusTooManyRequests
	case ErrStateUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func mapTypeToSuggestion(t ErrorType) string {
	switch t {
	case ErrBelowMinQty:
		return "Increase margin or widen the size budget; the safe size is under the exchange minimum."
	case ErrNotionalTooSmall:
		return "Increase quantity so price x quantity meets the exchange minimum notional."
	case ErrStateUnavailable:
		return "Retry later or halt trading; entries are denied while risk state is unreadable."
	case ErrRateLimited:
		return "Retry the request."
	case ErrAuthFailed:
		return "Check the admin key."
	case ErrDuplicateFill:
		return "The fill was already applied; do not resend it."
	default:
		return ""
	}
}
