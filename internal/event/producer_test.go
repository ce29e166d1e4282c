package event

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgkafka "github.com/utafrali/storefront/pkg/kafka"
	"github.com/utafrali/storefront/pkg/logger"
)

type memWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (m *memWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.msgs = append(m.msgs, msgs...)
	return nil
}

func (m *memWriter) Close() error { return nil }

func newTestProducer(w *memWriter) *Producer {
	l := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewProducer(pkgkafka.NewProducerWithWriter(w, nil, l), l)
}

func decodeEvent(t *testing.T, raw []byte) pkgkafka.Event {
	t.Helper()
	var event pkgkafka.Event
	require.NoError(t, json.Unmarshal(raw, &event))
	return event
}

func TestPublishCheckoutCompleted(t *testing.T) {
	w := &memWriter{}
	p := newTestProducer(w)

	err := p.PublishCheckoutCompleted(context.Background(), CheckoutCompletedData{
		SessionID:     "sess-1",
		OrderID:       "ord-1",
		Method:        "card",
		PaymentStatus: "completed",
		TotalAmount:   "0.53",
		Currency:      "usd",
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "storefront.checkout.completed", msg.Topic)
	assert.Equal(t, "sess-1", string(msg.Key))

	event := decodeEvent(t, msg.Value)
	assert.Equal(t, TypeCheckoutCompleted, event.EventType)
	assert.Equal(t, AggregateTypeCheckout, event.AggregateType)

	var data CheckoutCompletedData
	require.NoError(t, json.Unmarshal(event.Data, &data))
	assert.Equal(t, "ord-1", data.OrderID)
	assert.Equal(t, "0.53", data.TotalAmount)
}

func TestPublish_MetadataFromContext(t *testing.T) {
	w := &memWriter{}
	p := newTestProducer(w)

	ctx := logger.WithCorrelationID(context.Background(), "corr-1")
	ctx = logger.WithOrderID(ctx, "ord-9")
	ctx = logger.WithGeneration(ctx, 4)
	require.NoError(t, p.PublishCheckoutFailed(ctx, CheckoutFailedData{SessionID: "s", Outcome: "failed"}))

	require.Len(t, w.msgs, 1)
	event := decodeEvent(t, w.msgs[0].Value)
	assert.Equal(t, "corr-1", event.CorrelationID)
	assert.Equal(t, "ord-9", event.Metadata["order_id"])
	assert.Equal(t, "4", event.Metadata["generation"])
}

func TestPublish_Topics(t *testing.T) {
	w := &memWriter{}
	p := newTestProducer(w)
	ctx := context.Background()

	require.NoError(t, p.PublishCheckoutOpened(ctx, CheckoutOpenedData{SessionID: "s"}))
	require.NoError(t, p.PublishPaymentMethodChanged(ctx, PaymentMethodChangedData{SessionID: "s", From: "card", To: "crypto"}))
	require.NoError(t, p.PublishCheckoutFailed(ctx, CheckoutFailedData{SessionID: "s", Outcome: "failed"}))

	require.Len(t, w.msgs, 3)
	assert.Equal(t, "storefront.checkout.opened", w.msgs[0].Topic)
	assert.Equal(t, "storefront.checkout.payment_method_changed", w.msgs[1].Topic)
	assert.Equal(t, "storefront.checkout.failed", w.msgs[2].Topic)
}

func TestPublish_WriterError(t *testing.T) {
	w := &memWriter{err: errors.New("broker down")}
	err := newTestProducer(w).PublishCheckoutOpened(context.Background(), CheckoutOpenedData{SessionID: "s"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checkout.opened")
}

func TestNoop(t *testing.T) {
	var p Publisher = Noop{}
	assert.NoError(t, p.PublishCheckoutOpened(context.Background(), CheckoutOpenedData{}))
	assert.NoError(t, p.PublishCheckoutFailed(context.Background(), CheckoutFailedData{}))
}
