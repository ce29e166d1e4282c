// Package orderapi talks to the remote order API that owns every order the
// storefront creates.
package orderapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/utafrali/storefront/internal/domain"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/httpclient"
	"github.com/utafrali/storefront/pkg/logger"
	"github.com/utafrali/storefront/pkg/tracing"
	"github.com/utafrali/storefront/pkg/validator"
)

const (
	serviceName = "order api"

	stagingBaseURL    = "https://staging.crossmint.com/api/2022-06-09"
	productionBaseURL = "https://www.crossmint.com/api/2022-06-09"
)

// Authorization header schemes for the client secret.
const (
	AuthSchemeRaw    = "raw"
	AuthSchemeBearer = "bearer"
)

// HTTPDoer executes outbound requests. httpclient.Client and
// httpclient.CircuitBreakerClient both satisfy it.
type HTTPDoer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Config holds the order API client settings.
type Config struct {
	APIKey          string
	BaseURL         string
	AuthScheme      string
	PollInterval    time.Duration
	PollTimeout     time.Duration
	PollMaxAttempts int
}

// BaseURLForKey picks the API environment from the key: staging keys contain
// the word "staging".
func BaseURLForKey(apiKey string) string {
	if strings.Contains(apiKey, "staging") {
		return stagingBaseURL
	}
	return productionBaseURL
}

// Client calls the order API. It is safe for concurrent use.
type Client struct {
	httpClient HTTPDoer
	cfg        Config
	logger     *slog.Logger
	tracer     trace.Tracer
}

// New creates an order API client. An empty BaseURL is derived from the key.
func New(httpClient HTTPDoer, cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = BaseURLForKey(cfg.APIKey)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	return &Client{
		httpClient: httpClient,
		cfg:        cfg,
		logger:     logger,
		tracer:     tracing.Tracer("github.com/utafrali/storefront/orderapi"),
	}
}

// BaseURL returns the API root the client talks to.
func (c *Client) BaseURL() string {
	return c.cfg.BaseURL
}

// CreateOrder creates an order. The response always carries a client secret
// and an order id; a success body missing either is reported as a failure.
func (c *Client) CreateOrder(ctx context.Context, input *domain.CreateOrderInput) (*domain.CreateOrderResponse, error) {
	if input == nil {
		return nil, apperrors.InvalidInput("order input is required")
	}
	if err := validator.Validate(input); err != nil {
		return nil, err
	}

	var out domain.CreateOrderResponse
	status, err := c.do(ctx, "create", http.MethodPost, "/orders", "", input.OrderInput(), &out)
	if err != nil {
		return nil, err
	}
	if out.ClientSecret == "" {
		return nil, apperrors.OrderAPI(status, serviceName+": create response missing clientSecret")
	}
	if out.Order.OrderID == "" {
		return nil, apperrors.OrderAPI(status, serviceName+": create response missing orderId")
	}

	c.logger.InfoContext(ctx, "order created",
		slog.String("order_id", out.Order.OrderID),
		slog.String("payment_status", out.Order.Payment.Status),
	)
	return &out, nil
}

// UpdateOrder patches the order with the given partial input and returns the
// order as the API now sees it.
func (c *Client) UpdateOrder(ctx context.Context, orderID, clientSecret string, patch *domain.OrderInput) (*domain.Order, error) {
	if err := requireOrderAuth(orderID, clientSecret); err != nil {
		return nil, err
	}
	if patch == nil {
		return nil, apperrors.InvalidInput("order update is required")
	}

	var out domain.Order
	if _, err := c.do(ctx, "update", http.MethodPatch, "/orders/"+url.PathEscape(orderID), clientSecret, patch, &out); err != nil {
		return nil, err
	}

	c.logger.InfoContext(ctx, "order updated",
		slog.String("order_id", orderID),
		slog.String("payment_method", out.Payment.Method),
		slog.String("payment_status", out.Payment.Status),
	)
	return &out, nil
}

// GetOrder fetches the current state of the order.
func (c *Client) GetOrder(ctx context.Context, orderID, clientSecret string) (*domain.Order, error) {
	if err := requireOrderAuth(orderID, clientSecret); err != nil {
		return nil, err
	}

	var out domain.Order
	if _, err := c.do(ctx, "get", http.MethodGet, "/orders/"+url.PathEscape(orderID), clientSecret, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func requireOrderAuth(orderID, clientSecret string) error {
	if orderID == "" {
		return apperrors.InvalidInput("order id is required")
	}
	if clientSecret == "" {
		return apperrors.Unauthorized("client secret is required")
	}
	return nil
}

// do sends one API call and decodes a 2xx body into out. It returns the
// response status, or 0 when no response was received.
func (c *Client) do(ctx context.Context, op, method, path, clientSecret string, body, out any) (int, error) {
	ctx, span := c.tracer.Start(ctx, "orderapi."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			semconv.HTTPMethod(method),
			attribute.String("order_api.operation", op),
		),
	)
	defer span.End()

	start := time.Now()
	status, err := c.roundTrip(ctx, method, path, clientSecret, body, out)
	requestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	requestsTotal.WithLabelValues(op, outcome(err)).Inc()

	if status > 0 {
		span.SetAttributes(semconv.HTTPStatusCode(status))
	}
	if err != nil {
		tracing.RecordError(span, err)
		logger.WithContext(ctx, c.logger).WarnContext(ctx, "order api call failed",
			slog.String("operation", op),
			slog.Int("status", status),
			slog.String("error", err.Error()),
		)
	}
	return status, err
}

func (c *Client) roundTrip(ctx context.Context, method, path, clientSecret string, body, out any) (int, error) {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, apperrors.Internal(fmt.Errorf("marshal %s request: %w", serviceName, err))
		}
		reader = bytes.NewReader(data)
	}

	var req *http.Request
	var err error
	if reader != nil {
		req, err = http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, nil)
	}
	if err != nil {
		return 0, apperrors.Internal(fmt.Errorf("build %s request: %w", serviceName, err))
	}
	c.setHeaders(ctx, req, clientSecret, reader != nil)

	resp, err := c.httpClient.Do(ctx, req)
	if err != nil {
		return statusOf(err), httpclient.NormalizeError(err, serviceName)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, httpclient.ParseResponseError(resp, serviceName)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, apperrors.OrderAPI(resp.StatusCode,
			fmt.Sprintf("%s: decode response: %v", serviceName, err))
	}
	return resp.StatusCode, nil
}

func (c *Client) setHeaders(ctx context.Context, req *http.Request, clientSecret string, hasBody bool) {
	if hasBody {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-api-key", c.cfg.APIKey)
	if clientSecret != "" {
		if c.cfg.AuthScheme == AuthSchemeBearer {
			req.Header.Set("Authorization", "Bearer "+clientSecret)
		} else {
			req.Header.Set("Authorization", clientSecret)
		}
	}

	correlationID := logger.CorrelationIDFromContext(ctx)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	req.Header.Set("X-Correlation-ID", correlationID)

	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))
}

func statusOf(err error) int {
	var serverErr *httpclient.ServerError
	if errors.As(err, &serverErr) {
		return serverErr.StatusCode
	}
	return 0
}

func outcome(err error) string {
	if err == nil {
		return "success"
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		switch {
		case errors.Is(err, apperrors.ErrServiceUnavail):
			return "circuit_open"
		case appErr.Upstream >= 500:
			return "server_error"
		case appErr.Upstream >= 400:
			return "client_error"
		case appErr.Upstream == 0 && errors.Is(err, apperrors.ErrOrderAPI):
			return "network_error"
		}
	}
	return "error"
}
