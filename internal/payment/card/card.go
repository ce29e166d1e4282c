// Package card confirms card payments with the Stripe PaymentIntent that the
// order API prepared for the order.
package card

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/payment"
)

// Config holds the card widget settings.
type Config struct {
	// PaymentMethod is the Stripe payment method confirmed against the intent,
	// e.g. pm_card_visa in test mode.
	PaymentMethod string
	ReturnURL     string
	// APIURL overrides the Stripe API root. Empty means api.stripe.com.
	APIURL     string
	HTTPClient *http.Client
}

// Widget confirms the order's PaymentIntent using the publishable key and
// client secret from the order's payment preparation, which is how a hosted
// payment element authenticates.
type Widget struct {
	cfg      Config
	backend  stripe.Backend
	logger   *slog.Logger
	inflight payment.Inflight
}

// New creates a card widget.
func New(cfg Config, logger *slog.Logger) *Widget {
	backendCfg := &stripe.BackendConfig{
		HTTPClient:        cfg.HTTPClient,
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelError},
	}
	if cfg.APIURL != "" {
		backendCfg.URL = stripe.String(cfg.APIURL)
	}
	return &Widget{
		cfg:     cfg,
		backend: stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg),
		logger:  logger,
	}
}

// Method implements payment.Widget.
func (w *Widget) Method() domain.PaymentMethod {
	return domain.PaymentMethodCard
}

// Prepare implements payment.Widget.
func (w *Widget) Prepare(order *domain.Order) error {
	prep := order.Payment.Preparation
	if prep.StripePublishableKey == "" || prep.StripeClientSecret == "" {
		return payment.NewError(domain.PaymentMethodCard, "Card payment is not ready for this order", nil)
	}
	if _, ok := intentID(prep.StripeClientSecret); !ok {
		return payment.NewError(domain.PaymentMethodCard, "Card payment details are invalid", nil)
	}
	return nil
}

// Confirm implements payment.Widget. A succeeded or processing intent counts
// as submitted; settlement is observed by polling the order.
func (w *Widget) Confirm(ctx context.Context, order *domain.Order) error {
	if err := w.Prepare(order); err != nil {
		return err
	}
	ctx, done := w.inflight.Begin(ctx)
	defer done()

	prep := order.Payment.Preparation
	id, _ := intentID(prep.StripeClientSecret)

	params := &stripe.PaymentIntentConfirmParams{}
	params.Context = ctx
	if w.cfg.PaymentMethod != "" {
		params.PaymentMethod = stripe.String(w.cfg.PaymentMethod)
	}
	if w.cfg.ReturnURL != "" {
		params.ReturnURL = stripe.String(w.cfg.ReturnURL)
	}
	params.AddExtra("client_secret", prep.StripeClientSecret)

	client := paymentintent.Client{B: w.backend, Key: prep.StripePublishableKey}
	pi, err := client.Confirm(id, params)
	if err != nil {
		return w.fail(ctx, order, err)
	}

	log := w.logger.With(
		slog.String("order_id", order.OrderID),
		slog.String("payment_intent", pi.ID),
		slog.String("intent_status", string(pi.Status)),
	)
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded, stripe.PaymentIntentStatusProcessing:
		log.InfoContext(ctx, "card payment confirmed")
		return nil
	case stripe.PaymentIntentStatusRequiresAction:
		log.WarnContext(ctx, "card payment needs authentication")
		return payment.NewError(domain.PaymentMethodCard, "Additional authentication required", nil)
	default:
		log.WarnContext(ctx, "card payment not completed")
		return payment.NewError(domain.PaymentMethodCard, "Payment failed", nil)
	}
}

// Cancel implements payment.Widget.
func (w *Widget) Cancel() {
	w.inflight.Cancel()
}

func (w *Widget) fail(ctx context.Context, order *domain.Order, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return payment.Wrap(domain.PaymentMethodCard, ctxErr)
	}

	msg := "Payment failed"
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.Msg != "" {
		msg = stripeErr.Msg
	}
	w.logger.WarnContext(ctx, "card payment rejected",
		slog.String("order_id", order.OrderID),
		slog.String("error", err.Error()),
	)
	return payment.NewError(domain.PaymentMethodCard, msg, err)
}

// intentID extracts the PaymentIntent id from a client secret of the form
// pi_xxx_secret_yyy.
func intentID(clientSecret string) (string, bool) {
	id, _, ok := strings.Cut(clientSecret, "_secret_")
	if !ok || id == "" {
		return "", false
	}
	return id, true
}
