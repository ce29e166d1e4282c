package middleware

import (
	"bufio"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func serveWithChi(mw func(http.Handler) http.Handler, handler http.HandlerFunc) *chi.Mux {
	r := chi.NewRouter()
	r.Use(mw)
	r.Get("/api/v1/checkout", handler)
	return r
}

func TestPrometheusMetrics_CountsByRoutePattern(t *testing.T) {
	handler := serveWithChi(PrometheusMetrics("count-svc"), func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	for i := 0; i < 3; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/checkout", nil))
	}

	got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("count-svc", "GET", "/api/v1/checkout", "200"))
	assert.Equal(t, float64(3), got)
}

func TestPrometheusMetrics_DefaultStatusCode(t *testing.T) {
	handler := serveWithChi(PrometheusMetrics("default-svc"), func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/checkout", nil))

	got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("default-svc", "GET", "/api/v1/checkout", "200"))
	assert.Equal(t, float64(1), got)
}

func TestPrometheusMetrics_InFlightGauge(t *testing.T) {
	var seen float64
	handler := serveWithChi(PrometheusMetrics("inflight-svc"), func(w http.ResponseWriter, r *http.Request) {
		seen = testutil.ToFloat64(httpRequestsInFlight.WithLabelValues("inflight-svc"))
	})
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/checkout", nil))

	assert.Equal(t, float64(1), seen)
	assert.Equal(t, float64(0), testutil.ToFloat64(httpRequestsInFlight.WithLabelValues("inflight-svc")))
}

type hijackFlushWriter struct {
	http.ResponseWriter
	flushed  bool
	hijacked bool
}

func (m *hijackFlushWriter) Flush() { m.flushed = true }

func (m *hijackFlushWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	m.hijacked = true
	return nil, nil, nil
}

type minimalResponseWriter struct{ header http.Header }

func (m *minimalResponseWriter) Header() http.Header {
	if m.header == nil {
		m.header = make(http.Header)
	}
	return m.header
}
func (m *minimalResponseWriter) Write(b []byte) (int, error) { return len(b), nil }
func (m *minimalResponseWriter) WriteHeader(int)             {}

func TestStatusRecorder_Delegates(t *testing.T) {
	inner := &hijackFlushWriter{ResponseWriter: httptest.NewRecorder()}
	rec := newStatusRecorder(inner)

	rec.Flush()
	_, _, err := rec.Hijack()
	assert.NoError(t, err)
	assert.True(t, inner.flushed)
	assert.True(t, inner.hijacked)
}

func TestStatusRecorder_HijackUnsupported(t *testing.T) {
	rec := newStatusRecorder(&minimalResponseWriter{})
	rec.Flush()
	_, _, err := rec.Hijack()
	assert.ErrorIs(t, err, http.ErrNotSupported)
}

func TestStatusRecorder_FirstStatusWins(t *testing.T) {
	rec := newStatusRecorder(httptest.NewRecorder())
	rec.WriteHeader(http.StatusAccepted)
	rec.WriteHeader(http.StatusTeapot)
	assert.Equal(t, http.StatusAccepted, rec.statusCode)
	assert.Same(t, rec, newStatusRecorder(rec))
}
