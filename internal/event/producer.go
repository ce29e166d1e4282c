package event

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	pkgkafka "github.com/utafrali/storefront/pkg/kafka"
	"github.com/utafrali/storefront/pkg/logger"
)

// Kafka topics for checkout analytics events.
var (
	TopicCheckoutOpened               = pkgkafka.Topic("checkout", "opened")
	TopicCheckoutPaymentMethodChanged = pkgkafka.Topic("checkout", "payment_method_changed")
	TopicCheckoutCompleted            = pkgkafka.Topic("checkout", "completed")
	TopicCheckoutFailed               = pkgkafka.Topic("checkout", "failed")
)

// Event type constants.
const (
	TypeCheckoutOpened               = "checkout.opened"
	TypeCheckoutPaymentMethodChanged = "checkout.payment_method_changed"
	TypeCheckoutCompleted            = "checkout.completed"
	TypeCheckoutFailed               = "checkout.failed"
)

// Aggregate type constant.
const AggregateTypeCheckout = "checkout"

// Source identifier for events originating from the storefront.
const SourceStorefront = "storefront"

// CheckoutOpenedData is the payload for a checkout.opened event.
type CheckoutOpenedData struct {
	SessionID string `json:"session_id"`
	OrderID   string `json:"order_id"`
	ItemID    string `json:"item_id"`
	Price     string `json:"price"`
	Method    string `json:"payment_method"`
}

// PaymentMethodChangedData is the payload for a
// checkout.payment_method_changed event.
type PaymentMethodChangedData struct {
	SessionID string `json:"session_id"`
	OrderID   string `json:"order_id"`
	From      string `json:"from"`
	To        string `json:"to"`
}

// CheckoutCompletedData is the payload for a checkout.completed event.
type CheckoutCompletedData struct {
	SessionID     string `json:"session_id"`
	OrderID       string `json:"order_id"`
	Method        string `json:"payment_method"`
	PaymentStatus string `json:"payment_status"`
	TotalAmount   string `json:"total_amount"`
	Currency      string `json:"currency"`
}

// CheckoutFailedData is the payload for a checkout.failed event.
type CheckoutFailedData struct {
	SessionID     string `json:"session_id"`
	OrderID       string `json:"order_id,omitempty"`
	Method        string `json:"payment_method"`
	Outcome       string `json:"outcome"`
	FailureReason string `json:"failure_reason"`
}

// Publisher publishes checkout analytics events.
type Publisher interface {
	PublishCheckoutOpened(ctx context.Context, data CheckoutOpenedData) error
	PublishPaymentMethodChanged(ctx context.Context, data PaymentMethodChangedData) error
	PublishCheckoutCompleted(ctx context.Context, data CheckoutCompletedData) error
	PublishCheckoutFailed(ctx context.Context, data CheckoutFailedData) error
}

// Producer publishes checkout events to Kafka.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewProducer creates a new event producer.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishCheckoutOpened publishes a checkout.opened event.
func (p *Producer) PublishCheckoutOpened(ctx context.Context, data CheckoutOpenedData) error {
	return p.publish(ctx, TopicCheckoutOpened, TypeCheckoutOpened, data.SessionID, data)
}

// PublishPaymentMethodChanged publishes a checkout.payment_method_changed event.
func (p *Producer) PublishPaymentMethodChanged(ctx context.Context, data PaymentMethodChangedData) error {
	return p.publish(ctx, TopicCheckoutPaymentMethodChanged, TypeCheckoutPaymentMethodChanged, data.SessionID, data)
}

// PublishCheckoutCompleted publishes a checkout.completed event.
func (p *Producer) PublishCheckoutCompleted(ctx context.Context, data CheckoutCompletedData) error {
	return p.publish(ctx, TopicCheckoutCompleted, TypeCheckoutCompleted, data.SessionID, data)
}

// PublishCheckoutFailed publishes a checkout.failed event.
func (p *Producer) PublishCheckoutFailed(ctx context.Context, data CheckoutFailedData) error {
	return p.publish(ctx, TopicCheckoutFailed, TypeCheckoutFailed, data.SessionID, data)
}

func (p *Producer) publish(ctx context.Context, topic, eventType, sessionID string, data any) error {
	event, err := pkgkafka.NewEvent(ctx, eventType, sessionID, AggregateTypeCheckout, SourceStorefront, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", eventType, err)
	}
	if id := logger.OrderIDFromContext(ctx); id != "" {
		event.WithMetadata("order_id", id)
	}
	if gen, ok := logger.GenerationFromContext(ctx); ok {
		event.WithMetadata("generation", strconv.FormatUint(gen, 10))
	}

	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", eventType, err)
	}

	p.logger.DebugContext(ctx, "published checkout event",
		slog.String("event_type", eventType),
		slog.String("session_id", sessionID),
	)
	return nil
}

// Noop discards every event. It is used when no Kafka brokers are configured.
type Noop struct{}

func (Noop) PublishCheckoutOpened(context.Context, CheckoutOpenedData) error { return nil }

func (Noop) PublishPaymentMethodChanged(context.Context, PaymentMethodChangedData) error {
	return nil
}

func (Noop) PublishCheckoutCompleted(context.Context, CheckoutCompletedData) error { return nil }

func (Noop) PublishCheckoutFailed(context.Context, CheckoutFailedData) error { return nil }

var (
	_ Publisher = (*Producer)(nil)
	_ Publisher = Noop{}
)
