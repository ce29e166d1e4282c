package orderapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront/internal/domain"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/httpclient"
	"github.com/utafrali/storefront/pkg/logger"
	"github.com/utafrali/storefront/pkg/validator"
)

const (
	testKey    = "sk_staging_test"
	testSecret = "secret-123"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordedRequest is what the fake order API saw.
type recordedRequest struct {
	Method string
	Path   string
	Header http.Header
	Body   map[string]any
}

type fakeAPI struct {
	mu       sync.Mutex
	requests []recordedRequest
	handler  http.HandlerFunc
	server   *httptest.Server
}

func newFakeAPI(t *testing.T, handler http.HandlerFunc) *fakeAPI {
	t.Helper()
	f := &fakeAPI{handler: handler}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recordedRequest{Method: r.Method, Path: r.URL.Path, Header: r.Header.Clone()}
		if data, _ := io.ReadAll(r.Body); len(data) > 0 {
			_ = json.Unmarshal(data, &rec.Body)
		}
		f.mu.Lock()
		f.requests = append(f.requests, rec)
		f.mu.Unlock()
		f.handler(w, r)
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeAPI) Requests() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedRequest(nil), f.requests...)
}

func (f *fakeAPI) Count() int {
	return len(f.Requests())
}

func newTestClient(baseURL string, retries int) *Client {
	hc := httpclient.New(httpclient.Config{
		Timeout:      5 * time.Second,
		MaxRetries:   retries,
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: 2 * time.Millisecond,
	})
	return New(hc, Config{
		APIKey:       testKey,
		BaseURL:      baseURL,
		PollInterval: 5 * time.Millisecond,
		PollTimeout:  2 * time.Second,
	}, testLogger())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func validCreateInput() *domain.CreateOrderInput {
	return &domain.CreateOrderInput{
		Recipient: domain.RecipientInput{Email: "buyer@crossmint.com"},
		Payment:   domain.PaymentInput{Method: domain.RemoteMethodStripe, Currency: "usd"},
		LineItems: []domain.LineItemInput{{
			CollectionLocator: "crossmint:col-1",
			CallData:          domain.CallData{TotalPrice: "0.53"},
		}},
	}
}

func order(id, phase, status string) domain.Order {
	return domain.Order{OrderID: id, Phase: phase, Payment: domain.Payment{Status: status, Method: domain.RemoteMethodStripe}}
}

func TestBaseURLForKey(t *testing.T) {
	assert.Equal(t, "https://staging.crossmint.com/api/2022-06-09", BaseURLForKey("sk_staging_abc"))
	assert.Equal(t, "https://www.crossmint.com/api/2022-06-09", BaseURLForKey("sk_production_abc"))
}

func TestNew_DerivesBaseURLFromKey(t *testing.T) {
	c := New(nil, Config{APIKey: "ck_staging_1"}, testLogger())
	assert.Equal(t, stagingBaseURL, c.BaseURL())
}

func TestCreateOrder_Success(t *testing.T) {
	api := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, domain.CreateOrderResponse{
			ClientSecret: testSecret,
			Order:        order("ord-1", domain.PhasePayment, domain.PaymentStatusAwaitingPayment),
		})
	})
	c := newTestClient(api.server.URL, 0)

	resp, err := c.CreateOrder(context.Background(), validCreateInput())
	require.NoError(t, err)
	assert.Equal(t, testSecret, resp.ClientSecret)
	assert.Equal(t, "ord-1", resp.Order.OrderID)

	reqs := api.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPost, reqs[0].Method)
	assert.Equal(t, "/orders", reqs[0].Path)
	assert.Equal(t, testKey, reqs[0].Header.Get("x-api-key"))
	assert.Empty(t, reqs[0].Header.Get("Authorization"))
	assert.NotEmpty(t, reqs[0].Header.Get("X-Correlation-ID"))
	assert.Equal(t, "application/json", reqs[0].Header.Get("Content-Type"))

	payment := reqs[0].Body["payment"].(map[string]any)
	assert.Equal(t, "stripe-payment-element", payment["method"])
	assert.Equal(t, "usd", payment["currency"])
	items := reqs[0].Body["lineItems"].([]any)
	item := items[0].(map[string]any)
	assert.Equal(t, "crossmint:col-1", item["collectionLocator"])
	assert.Equal(t, "0.53", item["callData"].(map[string]any)["totalPrice"])
}

func TestCreateOrder_MissingClientSecretIsFailure(t *testing.T) {
	api := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"order": order("ord-1", domain.PhasePayment, "")})
	})
	c := newTestClient(api.server.URL, 0)

	resp, err := c.CreateOrder(context.Background(), validCreateInput())
	assert.Nil(t, resp)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrOrderAPI))
	assert.Contains(t, err.Error(), "clientSecret")
}

func TestCreateOrder_MissingOrderIDIsFailure(t *testing.T) {
	api := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"clientSecret": testSecret, "order": map[string]any{}})
	})
	c := newTestClient(api.server.URL, 0)

	_, err := c.CreateOrder(context.Background(), validCreateInput())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "orderId")
}

func TestCreateOrder_InvalidInputMakesNoCall(t *testing.T) {
	api := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("order API must not be called")
	})
	c := newTestClient(api.server.URL, 0)

	in := validCreateInput()
	in.LineItems[0].CallData.TotalPrice = "-1"
	_, err := c.CreateOrder(context.Background(), in)

	var vErr *validator.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, 0, api.Count())
}

func TestCreateOrder_APIErrorMessageSurfaces(t *testing.T) {
	api := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "collection not found"})
	})
	c := newTestClient(api.server.URL, 2)

	_, err := c.CreateOrder(context.Background(), validCreateInput())
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "ORDER_API_ERROR", appErr.Code)
	assert.Equal(t, http.StatusBadRequest, appErr.Upstream)
	assert.Contains(t, appErr.Message, "collection not found")
	assert.False(t, apperrors.IsRetryable(err))
	assert.Equal(t, 1, api.Count(), "4xx must not be retried")
}

func TestUpdateOrder_SendsRawClientSecret(t *testing.T) {
	api := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, order("ord-1", domain.PhasePayment, domain.PaymentStatusAwaitingPayment))
	})
	c := newTestClient(api.server.URL, 0)

	addr := "0x1111111111111111111111111111111111111111"
	_, err := c.UpdateOrder(context.Background(), "ord-1", testSecret, domain.CryptoUpdate(domain.DefaultPaymentSettings(), addr))
	require.NoError(t, err)

	reqs := api.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPatch, reqs[0].Method)
	assert.Equal(t, "/orders/ord-1", reqs[0].Path)
	assert.Equal(t, testSecret, reqs[0].Header.Get("Authorization"))
	assert.Equal(t, testKey, reqs[0].Header.Get("x-api-key"))
	payment := reqs[0].Body["payment"].(map[string]any)
	assert.Equal(t, "base-sepolia", payment["method"])
	assert.Equal(t, "usdc", payment["currency"])
	assert.Equal(t, addr, payment["payerAddress"])
}

func TestUpdateOrder_BearerScheme(t *testing.T) {
	api := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, order("ord-1", domain.PhasePayment, ""))
	})
	c := newTestClient(api.server.URL, 0)
	c.cfg.AuthScheme = AuthSchemeBearer

	_, err := c.GetOrder(context.Background(), "ord-1", testSecret)
	require.NoError(t, err)
	assert.Equal(t, "Bearer "+testSecret, api.Requests()[0].Header.Get("Authorization"))
}

func TestUpdateOrder_RequiresSecret(t *testing.T) {
	c := newTestClient("http://127.0.0.1:1", 0)
	_, err := c.UpdateOrder(context.Background(), "ord-1", "", &domain.OrderInput{})
	assert.True(t, errors.Is(err, apperrors.ErrUnauthorized))

	_, err = c.GetOrder(context.Background(), "", testSecret)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
}

func TestGetOrder_NotFound(t *testing.T) {
	api := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Order not found"})
	})
	c := newTestClient(api.server.URL, 0)

	before := testutil.ToFloat64(requestsTotal.WithLabelValues("get", "client_error"))
	_, err := c.GetOrder(context.Background(), "missing", testSecret)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, http.StatusNotFound, appErr.Upstream)
	assert.Contains(t, appErr.Message, "Order not found")
	assert.Equal(t, before+1, testutil.ToFloat64(requestsTotal.WithLabelValues("get", "client_error")))
}

func TestGetOrder_UndecodableBody(t *testing.T) {
	api := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("<html>maintenance</html>"))
	})
	c := newTestClient(api.server.URL, 0)

	_, err := c.GetOrder(context.Background(), "ord-1", testSecret)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrOrderAPI))
	assert.Contains(t, err.Error(), "decode response")
}

func TestGetOrder_NetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	c := newTestClient(url, 0)
	_, err := c.GetOrder(context.Background(), "ord-1", testSecret)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 0, appErr.Upstream)
	assert.True(t, apperrors.IsRetryable(err))
}

func TestGetOrder_ServerErrorThroughBreaker(t *testing.T) {
	api := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("<html>down</html>"))
	})
	hc := httpclient.New(httpclient.Config{Timeout: time.Second})
	cb := httpclient.NewCircuitBreakerClient(hc, httpclient.DefaultCircuitBreakerConfig("orderapi-test"), testLogger())
	c := New(cb, Config{APIKey: testKey, BaseURL: api.server.URL}, testLogger())

	_, err := c.GetOrder(context.Background(), "ord-1", testSecret)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, http.StatusServiceUnavailable, appErr.Upstream)
	assert.Contains(t, appErr.Message, "Service Unavailable")
	assert.True(t, apperrors.IsRetryable(err))
}

func TestGetOrder_PropagatesCorrelationID(t *testing.T) {
	api := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, order("ord-1", domain.PhasePayment, ""))
	})
	c := newTestClient(api.server.URL, 0)

	ctx := logger.WithCorrelationID(context.Background(), "corr-42")
	_, err := c.GetOrder(ctx, "ord-1", testSecret)
	require.NoError(t, err)
	assert.Equal(t, "corr-42", api.Requests()[0].Header.Get("X-Correlation-ID"))
}

func TestGetOrder_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	api := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writeJSON(w, http.StatusOK, order("ord-1", domain.PhasePayment, ""))
	})
	c := newTestClient(api.server.URL, 3)

	o, err := c.GetOrder(context.Background(), "ord-1", testSecret)
	require.NoError(t, err)
	assert.Equal(t, "ord-1", o.OrderID)
	assert.Equal(t, int32(3), calls.Load())
}

func TestCreateOrder_NotRepeatedByTransport(t *testing.T) {
	api := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	c := newTestClient(api.server.URL, 3)

	_, err := c.CreateOrder(context.Background(), validCreateInput())
	require.Error(t, err)
	assert.True(t, apperrors.IsRetryable(err))
	assert.Equal(t, 1, api.Count())
}
