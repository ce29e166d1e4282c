package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Standard sentinel errors for common cases.
var (
	ErrNotFound          = errors.New("resource not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInternal          = errors.New("internal error")
	ErrServiceUnavail    = errors.New("service unavailable")
	ErrOrderAPI          = errors.New("order api error")
	ErrPaymentFailed     = errors.New("payment failed")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrPollTimeout       = errors.New("order polling timed out")
	ErrInvalidState      = errors.New("invalid checkout state")
)

// AppError represents a structured application error with HTTP status mapping.
// Upstream carries the status code returned by the order API, or 0 when the
// request never produced a response.
type AppError struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Status   int    `json:"-"`
	Upstream int    `json:"-"`
	Err      error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound creates a 404 error.
func NotFound(resource, id string) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s with id %s not found", resource, id),
		Status:  http.StatusNotFound,
		Err:     ErrNotFound,
	}
}

// InvalidInput creates a 400 error.
func InvalidInput(message string) *AppError {
	return &AppError{
		Code:    "INVALID_INPUT",
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     ErrInvalidInput,
	}
}

// Unauthorized creates a 401 error.
func Unauthorized(message string) *AppError {
	return &AppError{
		Code:    "UNAUTHORIZED",
		Message: message,
		Status:  http.StatusUnauthorized,
		Err:     ErrUnauthorized,
	}
}

// ServiceUnavailable creates a 503 error.
func ServiceUnavailable(message string) *AppError {
	return &AppError{
		Code:    "SERVICE_UNAVAILABLE",
		Message: message,
		Status:  http.StatusServiceUnavailable,
		Err:     ErrServiceUnavail,
	}
}

// Internal creates a 500 error.
func Internal(err error) *AppError {
	return &AppError{
		Code:    "INTERNAL_ERROR",
		Message: "an internal error occurred",
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

// OrderAPI creates a 502 error for a failed call to the order API. upstream is
// the response status, or 0 for transport failures.
func OrderAPI(upstream int, message string) *AppError {
	return &AppError{
		Code:     "ORDER_API_ERROR",
		Message:  message,
		Status:   http.StatusBadGateway,
		Upstream: upstream,
		Err:      ErrOrderAPI,
	}
}

// InsufficientFunds creates a 422 error for a payer that cannot cover the order.
func InsufficientFunds() *AppError {
	return &AppError{
		Code:    "INSUFFICIENT_FUNDS",
		Message: "Insufficient funds",
		Status:  http.StatusUnprocessableEntity,
		Err:     ErrInsufficientFunds,
	}
}

// PollTimeout creates a 504 error for an order that did not settle in time.
func PollTimeout(orderID string, attempts int) *AppError {
	return &AppError{
		Code:    "POLL_TIMEOUT",
		Message: fmt.Sprintf("order %s not settled after %d attempts", orderID, attempts),
		Status:  http.StatusGatewayTimeout,
		Err:     ErrPollTimeout,
	}
}

// InvalidState creates a 409 error for an operation the checkout cannot run in
// its current state.
func InvalidState(message string) *AppError {
	return &AppError{
		Code:    "INVALID_STATE",
		Message: message,
		Status:  http.StatusConflict,
		Err:     ErrInvalidState,
	}
}

// IsRetryable reports whether a failed order API call may succeed when
// repeated: transport failures, 5xx responses and an open circuit.
func IsRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var appErr *AppError
	if errors.As(err, &appErr) && errors.Is(appErr.Err, ErrOrderAPI) {
		return appErr.Upstream == 0 || appErr.Upstream >= 500
	}
	return errors.Is(err, ErrServiceUnavail)
}

// HTTPStatus returns the HTTP status code for the given error.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrOrderAPI):
		return http.StatusBadGateway
	case errors.Is(err, ErrPaymentFailed), errors.Is(err, ErrInsufficientFunds):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrPollTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
