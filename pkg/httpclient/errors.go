package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	apperrors "github.com/utafrali/storefront/pkg/errors"
)

const maxErrorBody = 1 << 20

// ServerError is returned by CircuitBreakerClient for a 5xx response.
type ServerError struct {
	StatusCode int
	Body       []byte
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error %d: %s", e.StatusCode, string(e.Body))
}

// upstreamErrorBody covers the error shapes the order API answers with:
// {"message": "..."}, {"error": "..."} and {"error": {"message": "..."}}.
type upstreamErrorBody struct {
	Message string          `json:"message"`
	Error   json.RawMessage `json:"error"`
}

// MessageFromBody extracts the human-readable message from an error body.
// It returns "" when the body carries none.
func MessageFromBody(body []byte) string {
	var parsed upstreamErrorBody
	if json.Unmarshal(body, &parsed) != nil {
		return ""
	}
	if parsed.Message != "" {
		return parsed.Message
	}
	if len(parsed.Error) == 0 {
		return ""
	}

	var s string
	if json.Unmarshal(parsed.Error, &s) == nil {
		return s
	}
	var nested struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(parsed.Error, &nested) == nil {
		return nested.Message
	}
	return ""
}

// ParseResponseError reads the body of a non-2xx response and translates it
// into an ORDER_API_ERROR carrying the upstream status and message. The body
// is fully consumed and closed.
func ParseResponseError(resp *http.Response, serviceName string) error {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return apperrors.OrderAPI(resp.StatusCode,
			fmt.Sprintf("%s returned status %d", serviceName, resp.StatusCode))
	}
	return statusError(resp.StatusCode, body, serviceName)
}

// NormalizeError converts an error returned by Client.Do or
// CircuitBreakerClient.Do into the AppError taxonomy. Cancellation stays
// detectable with errors.Is(err, context.Canceled).
func NormalizeError(err error, serviceName string) error {
	if err == nil {
		return nil
	}

	var serverErr *ServerError
	switch {
	case errors.As(err, &serverErr):
		return statusError(serverErr.StatusCode, serverErr.Body, serviceName)
	case errors.Is(err, ErrCircuitOpen):
		return apperrors.ServiceUnavailable(serviceName + " temporarily unavailable")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		appErr := apperrors.OrderAPI(0, fmt.Sprintf("%s request aborted", serviceName))
		appErr.Err = fmt.Errorf("%w: %w", apperrors.ErrOrderAPI, err)
		return appErr
	default:
		return apperrors.OrderAPI(0, fmt.Sprintf("%s unreachable: %v", serviceName, err))
	}
}

func statusError(status int, body []byte, serviceName string) error {
	msg := MessageFromBody(body)
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	if msg == "" || strings.HasPrefix(msg, "<") {
		msg = http.StatusText(status)
	}
	return apperrors.OrderAPI(status, fmt.Sprintf("%s: %s", serviceName, msg))
}
