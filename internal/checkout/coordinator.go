// Package checkout drives one buyer's order through creation, payment method
// changes, payment and settlement.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/utafrali/storefront/internal/catalog"
	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/event"
	"github.com/utafrali/storefront/internal/payment"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/logger"
	"github.com/utafrali/storefront/pkg/validator"
)

// ErrStaleResponse is returned when a call completed after a newer call was
// issued or the checkout was closed. Its result was discarded.
var ErrStaleResponse = errors.New("checkout: stale response discarded")

const eventTimeout = 5 * time.Second

// OrderAPI is the part of the order API client the coordinator uses.
type OrderAPI interface {
	CreateOrder(ctx context.Context, input *domain.CreateOrderInput) (*domain.CreateOrderResponse, error)
	UpdateOrder(ctx context.Context, orderID, clientSecret string, patch *domain.OrderInput) (*domain.Order, error)
	PollOrder(ctx context.Context, orderID, clientSecret string) (*domain.Order, error)
}

// Widgets selects the payment widget for a method.
type Widgets interface {
	Get(method domain.PaymentMethod) (payment.Widget, error)
	CancelAll()
}

// Config holds the coordinator settings.
type Config struct {
	CollectionLocator string
	RecipientEmail    string
	Payment           domain.PaymentSettings
	// CreateMaxRetries bounds automatic retries of a failed creation.
	CreateMaxRetries     uint
	CreateInitialBackoff time.Duration
	CreateMaxBackoff     time.Duration
}

// session is the state of one open checkout dialog.
type session struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	item   catalog.Item

	state   State
	outcome Outcome

	order        *domain.Order
	clientSecret string
	sentReceipt  string

	// paidWith is set once a widget submitted payment. From then on the
	// order is only polled, never confirmed again.
	paidWith domain.PaymentMethod

	paymentErr string
	lastErr    error
}

// Coordinator owns the order lifecycle of the checkout dialog. Its methods
// are safe for concurrent use. The mutex is never held across network calls;
// instead every issued call captures a generation number and its response is
// dropped when the generation is no longer current.
type Coordinator struct {
	api     OrderAPI
	widgets Widgets
	events  event.Publisher
	cfg     Config
	logger  *slog.Logger

	mu           sync.Mutex
	gen          uint64
	sess         *session
	selected     domain.PaymentMethod
	wallet       string
	receiptEmail string
}

// New creates a coordinator with card selected and no order.
func New(api OrderAPI, widgets Widgets, events event.Publisher, cfg Config, logger *slog.Logger) *Coordinator {
	if events == nil {
		events = event.Noop{}
	}
	if cfg.Payment == (domain.PaymentSettings{}) {
		cfg.Payment = domain.DefaultPaymentSettings()
	}
	return &Coordinator{
		api:      api,
		widgets:  widgets,
		events:   events,
		cfg:      cfg,
		logger:   logger,
		selected: domain.PaymentMethodCard,
	}
}

// Open starts a checkout for item, discarding any previous one, and creates
// its order. Retryable failures are retried with exponential backoff; when
// creation still fails the checkout stays in StateCreateFailed.
func (c *Coordinator) Open(ctx context.Context, item catalog.Item) error {
	c.mu.Lock()
	c.closeLocked()

	sessCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sess := &session{
		id:     uuid.NewString(),
		ctx:    sessCtx,
		cancel: cancel,
		item:   item,
		state:  StateNoOrder,
	}
	c.sess = sess
	c.mu.Unlock()

	c.logger.InfoContext(ctx, "checkout opened",
		slog.String("session_id", sess.id),
		slog.String("item_id", item.ID),
	)
	return c.create(ctx, sess)
}

// RetryCreate repeats order creation after it failed.
func (c *Coordinator) RetryCreate(ctx context.Context) error {
	c.mu.Lock()
	sess := c.sess
	if sess == nil || sess.state != StateCreateFailed {
		c.mu.Unlock()
		return apperrors.InvalidState("order creation can only be retried after it failed")
	}
	c.mu.Unlock()
	return c.create(ctx, sess)
}

func (c *Coordinator) create(ctx context.Context, sess *session) error {
	c.mu.Lock()
	if c.sess != sess {
		c.mu.Unlock()
		return ErrStaleResponse
	}
	gen := c.issueLocked()
	c.setStateLocked(sess, StateCreatingOrder, OutcomeNone)
	sess.lastErr = nil
	input := c.createInputLocked(sess)
	c.mu.Unlock()

	callCtx, done := c.callContext(ctx, sess, gen)
	defer done()
	log := logger.WithContext(callCtx, c.logger)

	resp, err := c.createWithRetry(callCtx, log, input)

	c.mu.Lock()
	if !c.currentLocked(sess, gen) {
		c.mu.Unlock()
		c.discard(log, "create", err)
		return ErrStaleResponse
	}
	if err != nil {
		sess.lastErr = err
		c.setStateLocked(sess, StateCreateFailed, OutcomeNone)
		c.mu.Unlock()
		log.ErrorContext(callCtx, "order creation failed", slog.String("error", err.Error()))
		return err
	}

	sess.order = &resp.Order
	sess.clientSecret = resp.ClientSecret
	c.setStateLocked(sess, StateOrderReady, OutcomeNone)
	opened := event.CheckoutOpenedData{
		SessionID: sess.id,
		OrderID:   resp.Order.OrderID,
		ItemID:    sess.item.ID,
		Price:     sess.item.Price.String(),
		Method:    c.selected.String(),
	}
	c.mu.Unlock()

	log.InfoContext(callCtx, "checkout order ready", slog.String("order_id", resp.Order.OrderID))
	c.publish(callCtx, func(ctx context.Context) error { return c.events.PublishCheckoutOpened(ctx, opened) })

	// The buyer may have switched method or wallet while the order was being
	// created.
	if err := c.reconcile(ctx); err != nil && !errors.Is(err, ErrStaleResponse) {
		return err
	}
	return nil
}

func (c *Coordinator) createInputLocked(sess *session) *domain.CreateOrderInput {
	return &domain.CreateOrderInput{
		Recipient: domain.RecipientInput{Email: c.cfg.RecipientEmail},
		Payment: domain.PaymentInput{
			Method:   domain.RemoteMethodStripe,
			Currency: c.cfg.Payment.CardCurrency,
		},
		LineItems: []domain.LineItemInput{{
			CollectionLocator: c.cfg.CollectionLocator,
			CallData:          domain.CallData{TotalPrice: sess.item.Price.String()},
		}},
	}
}

func (c *Coordinator) createWithRetry(ctx context.Context, log *slog.Logger, input *domain.CreateOrderInput) (*domain.CreateOrderResponse, error) {
	eb := backoff.NewExponentialBackOff()
	if c.cfg.CreateInitialBackoff > 0 {
		eb.InitialInterval = c.cfg.CreateInitialBackoff
	}
	if c.cfg.CreateMaxBackoff > 0 {
		eb.MaxInterval = c.cfg.CreateMaxBackoff
	}

	op := func() (*domain.CreateOrderResponse, error) {
		resp, err := c.api.CreateOrder(ctx, input)
		if err != nil && !apperrors.IsRetryable(err) {
			return nil, backoff.Permanent(err)
		}
		return resp, err
	}

	resp, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(eb),
		backoff.WithMaxTries(c.cfg.CreateMaxRetries+1),
		backoff.WithNotify(func(err error, wait time.Duration) {
			log.WarnContext(ctx, "order creation failed, retrying",
				slog.String("error", err.Error()),
				slog.Duration("wait", wait),
			)
		}),
	)
	if err != nil {
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			return nil, permanent.Unwrap()
		}
		return nil, err
	}
	return resp, nil
}

// SelectMethod records the buyer's payment method and moves the order onto it
// when it is set up for something else.
func (c *Coordinator) SelectMethod(ctx context.Context, method domain.PaymentMethod) error {
	if _, err := domain.ParsePaymentMethod(string(method)); err != nil {
		return apperrors.InvalidInput(err.Error())
	}

	c.mu.Lock()
	prev := c.selected
	c.selected = method
	sess := c.sess
	var changed *event.PaymentMethodChangedData
	if sess != nil && prev != method {
		sess.paymentErr = ""
		changed = &event.PaymentMethodChangedData{
			SessionID: sess.id,
			From:      prev.String(),
			To:        method.String(),
		}
		if sess.order != nil {
			changed.OrderID = sess.order.OrderID
		}
	}
	c.mu.Unlock()

	if changed != nil {
		c.publish(ctx, func(ctx context.Context) error { return c.events.PublishPaymentMethodChanged(ctx, *changed) })
	}
	return c.reconcile(ctx)
}

// ConnectWallet records the buyer's wallet address. An empty address
// disconnects the wallet.
func (c *Coordinator) ConnectWallet(ctx context.Context, address string) error {
	if address != "" {
		if err := validator.Var(address, "eth_addr"); err != nil {
			return apperrors.InvalidInput("wallet address must be a valid EVM address")
		}
	}

	c.mu.Lock()
	c.wallet = address
	c.mu.Unlock()
	return c.reconcile(ctx)
}

// SetReceiptEmail records where the card receipt goes and sends it to the
// order when card is selected.
func (c *Coordinator) SetReceiptEmail(ctx context.Context, email string) error {
	if email != "" {
		if err := validator.Var(email, "email"); err != nil {
			return apperrors.InvalidInput("receipt email must be a valid email address")
		}
	}

	c.mu.Lock()
	c.receiptEmail = email
	c.mu.Unlock()
	return c.reconcile(ctx)
}

// maxReconcileRounds bounds the updates one change can trigger when the
// selection moves again while an update is in flight.
const maxReconcileRounds = 3

// reconcile brings the order in line with the selected method, wallet and
// receipt email. It makes no call when they already match and one call per
// divergence otherwise. When the order still diverges after
// maxReconcileRounds it returns ErrStaleResponse.
func (c *Coordinator) reconcile(ctx context.Context) error {
	for range maxReconcileRounds {
		applied, err := c.reconcileOnce(ctx)
		if err != nil || !applied {
			return err
		}
	}

	c.mu.Lock()
	sess := c.sess
	pending := sess != nil && sess.order != nil && acceptsChanges(sess.state, sess.outcome)
	if pending {
		patch, _ := c.desiredUpdateLocked(sess)
		pending = patch != nil
	}
	c.mu.Unlock()
	if pending {
		logger.WithContext(ctx, c.logger).WarnContext(ctx, "order still differs from selection after update rounds",
			slog.Int("rounds", maxReconcileRounds),
		)
		return ErrStaleResponse
	}
	return nil
}

// reconcileOnce issues at most one update and reports whether its response
// was applied.
func (c *Coordinator) reconcileOnce(ctx context.Context) (bool, error) {
	c.mu.Lock()
	sess := c.sess
	if sess == nil || sess.order == nil || !acceptsChanges(sess.state, sess.outcome) {
		c.mu.Unlock()
		return false, nil
	}
	patch, receipt := c.desiredUpdateLocked(sess)
	if patch == nil {
		c.mu.Unlock()
		return false, nil
	}
	gen := c.issueLocked()
	c.setStateLocked(sess, StateUpdatingOrder, OutcomeNone)
	orderID, secret := sess.order.OrderID, sess.clientSecret
	c.mu.Unlock()

	callCtx, done := c.callContext(ctx, sess, gen)
	defer done()
	log := logger.WithContext(callCtx, c.logger)

	order, err := c.api.UpdateOrder(callCtx, orderID, secret, patch)

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.currentLocked(sess, gen) {
		c.discard(log, "update", err)
		return false, ErrStaleResponse
	}
	c.setStateLocked(sess, StateOrderReady, OutcomeNone)
	if err != nil {
		sess.lastErr = err
		log.WarnContext(callCtx, "payment method update failed", slog.String("error", err.Error()))
		return false, err
	}
	sess.order = order
	sess.lastErr = nil
	sess.sentReceipt = receipt
	return true, nil
}

// desiredUpdateLocked returns the update the order needs, or nil, along with
// the receipt email the update carries.
func (c *Coordinator) desiredUpdateLocked(sess *session) (*domain.OrderInput, string) {
	order := sess.order
	switch c.selected {
	case domain.PaymentMethodCrypto:
		if c.wallet == "" {
			return nil, sess.sentReceipt
		}
		if order.Payment.Method == c.cfg.Payment.CryptoChain && order.PayerMatches(c.wallet) {
			return nil, sess.sentReceipt
		}
		return domain.CryptoUpdate(c.cfg.Payment, c.wallet), sess.sentReceipt
	default:
		if order.Payment.Method == domain.RemoteMethodStripe && c.receiptEmail == sess.sentReceipt {
			return nil, sess.sentReceipt
		}
		return domain.CardUpdate(c.cfg.Payment, c.cfg.RecipientEmail, c.receiptEmail), c.receiptEmail
	}
}

// Pay submits payment with the selected method's widget and waits for the
// order to settle.
func (c *Coordinator) Pay(ctx context.Context) error {
	c.mu.Lock()
	sess := c.sess
	if sess == nil || sess.order == nil {
		c.mu.Unlock()
		return apperrors.InvalidState("there is no order to pay")
	}
	if !acceptsPayment(sess.state, sess.outcome) {
		c.mu.Unlock()
		return apperrors.InvalidState(fmt.Sprintf("cannot pay while checkout is %s", sess.state))
	}
	method := c.selected
	order := sess.order.Clone()

	if order.HasInsufficientFunds() {
		c.finishLocked(sess, OutcomeInsufficientFunds, method)
		failed := c.failedEventLocked(sess, method)
		c.mu.Unlock()
		c.publish(ctx, func(ctx context.Context) error { return c.events.PublishCheckoutFailed(ctx, failed) })
		return apperrors.InsufficientFunds()
	}
	if c.cfg.Payment.MethodOf(order) != method {
		c.mu.Unlock()
		return apperrors.InvalidState(fmt.Sprintf("order is not set up for %s payment yet", method))
	}

	widget, err := c.widgets.Get(method)
	if err == nil {
		err = widget.Prepare(order)
	}
	if err != nil {
		sess.paymentErr = payment.Message(err)
		c.mu.Unlock()
		return err
	}

	gen := c.issueLocked()
	c.setStateLocked(sess, StateSubmittingPayment, OutcomeNone)
	sess.paymentErr = ""
	c.mu.Unlock()

	callCtx, done := c.callContext(ctx, sess, gen)
	defer done()
	log := logger.WithContext(callCtx, c.logger).With(slog.String("payment_method", method.String()))

	err = widget.Confirm(callCtx, order)

	c.mu.Lock()
	if !c.currentLocked(sess, gen) {
		c.mu.Unlock()
		c.discard(log, "confirm", err)
		return ErrStaleResponse
	}
	if err != nil {
		sess.paymentErr = payment.Message(err)
		c.setStateLocked(sess, StateOrderReady, OutcomeNone)
		c.mu.Unlock()
		log.WarnContext(callCtx, "payment not submitted", slog.String("error", err.Error()))
		return err
	}
	sess.paidWith = method
	c.mu.Unlock()

	log.InfoContext(callCtx, "payment submitted, polling order")
	return c.awaitSettlement(ctx, sess)
}

// RetryPoll polls a submitted payment again after polling failed or timed
// out. It never submits payment.
func (c *Coordinator) RetryPoll(ctx context.Context) error {
	c.mu.Lock()
	sess := c.sess
	if sess == nil || sess.order == nil || sess.paidWith == "" || !acceptsPoll(sess.state, sess.outcome) {
		c.mu.Unlock()
		return apperrors.InvalidState("there is no submitted payment to check")
	}
	c.mu.Unlock()
	return c.awaitSettlement(ctx, sess)
}

// awaitSettlement polls the order of a submitted payment until it settles.
// A poll failure other than a timeout leaves the checkout in
// StatePaymentSubmitted.
func (c *Coordinator) awaitSettlement(ctx context.Context, sess *session) error {
	c.mu.Lock()
	if c.sess != sess {
		c.mu.Unlock()
		return ErrStaleResponse
	}
	gen := c.issueLocked()
	c.setStateLocked(sess, StatePolling, OutcomeNone)
	sess.lastErr = nil
	method := sess.paidWith
	orderID, secret := sess.order.OrderID, sess.clientSecret
	c.mu.Unlock()

	callCtx, done := c.callContext(ctx, sess, gen)
	defer done()
	log := logger.WithContext(callCtx, c.logger).With(slog.String("payment_method", method.String()))

	final, err := c.api.PollOrder(callCtx, orderID, secret)

	c.mu.Lock()
	if !c.currentLocked(sess, gen) {
		c.mu.Unlock()
		c.discard(log, "poll", err)
		return ErrStaleResponse
	}
	if final != nil {
		sess.order = final
	}

	switch {
	case errors.Is(err, apperrors.ErrPollTimeout):
		c.finishLocked(sess, OutcomeTimedOut, method)
	case err != nil:
		// The order may still settle; the buyer sees the last known order.
		sess.lastErr = err
		c.setStateLocked(sess, StatePaymentSubmitted, OutcomeNone)
		c.mu.Unlock()
		log.WarnContext(callCtx, "order polling failed", slog.String("error", err.Error()))
		return err
	default:
		c.finishLocked(sess, outcomeOf(final), method)
	}

	outcome := sess.outcome
	var publishFn func(context.Context) error
	if outcome == OutcomeSuccess {
		total := sess.order.TotalPrice()
		completed := event.CheckoutCompletedData{
			SessionID:     sess.id,
			OrderID:       sess.order.OrderID,
			Method:        method.String(),
			PaymentStatus: sess.order.Payment.Status,
			TotalAmount:   total.Amount.String(),
			Currency:      total.Currency,
		}
		publishFn = func(ctx context.Context) error { return c.events.PublishCheckoutCompleted(ctx, completed) }
	} else {
		failed := c.failedEventLocked(sess, method)
		publishFn = func(ctx context.Context) error { return c.events.PublishCheckoutFailed(ctx, failed) }
	}
	c.mu.Unlock()

	log.InfoContext(callCtx, "checkout finished", slog.String("outcome", string(outcome)))
	c.publish(callCtx, publishFn)
	return err
}

// Close discards the checkout: in-flight calls are cancelled, their responses
// ignored, and the selection returns to card.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Coordinator) closeLocked() {
	if c.sess != nil {
		c.sess.cancel()
		c.logger.Info("checkout closed",
			slog.String("session_id", c.sess.id),
			slog.String("state", string(c.sess.state)),
		)
		transitionsTotal.WithLabelValues(string(StateNoOrder)).Inc()
	}
	if c.widgets != nil {
		c.widgets.CancelAll()
	}
	c.gen++
	c.sess = nil
	c.selected = domain.PaymentMethodCard
	c.receiptEmail = ""
}

// Snapshot returns the current view of the checkout.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		State:          StateNoOrder,
		SelectedMethod: c.selected,
		WalletAddress:  c.wallet,
		ReceiptEmail:   c.receiptEmail,
		Generation:     c.gen,
	}
	sess := c.sess
	if sess == nil {
		return snap
	}

	item := sess.item
	snap.SessionID = sess.id
	snap.State = sess.state
	snap.Outcome = sess.outcome
	snap.Item = &item
	snap.Order = sess.order.Clone()
	snap.PaymentError = sess.paymentErr
	if sess.lastErr != nil {
		snap.Error = payment.Message(sess.lastErr)
	}
	snap.Status = statusOf(sess.state, sess.outcome, sess.order)
	return snap
}

// issueLocked returns the generation of a new call. Any response carrying an
// older generation is stale from now on.
func (c *Coordinator) issueLocked() uint64 {
	c.gen++
	return c.gen
}

func (c *Coordinator) currentLocked(sess *session, gen uint64) bool {
	return c.sess == sess && c.gen == gen
}

func (c *Coordinator) setStateLocked(sess *session, state State, outcome Outcome) {
	sess.state = state
	sess.outcome = outcome
	transitionsTotal.WithLabelValues(string(state)).Inc()
}

func (c *Coordinator) finishLocked(sess *session, outcome Outcome, method domain.PaymentMethod) {
	c.setStateLocked(sess, StateTerminal, outcome)
	outcomesTotal.WithLabelValues(string(outcome), method.String()).Inc()
}

func (c *Coordinator) failedEventLocked(sess *session, method domain.PaymentMethod) event.CheckoutFailedData {
	data := event.CheckoutFailedData{
		SessionID: sess.id,
		Method:    method.String(),
		Outcome:   string(sess.outcome),
	}
	if sess.order != nil {
		data.OrderID = sess.order.OrderID
		data.FailureReason = sess.order.Payment.Status
	}
	return data
}

// callContext derives the context of one coordinator-issued call. It is
// cancelled by Close and by the caller, and carries the caller's correlation
// id together with the call's generation.
func (c *Coordinator) callContext(ctx context.Context, sess *session, gen uint64) (context.Context, func()) {
	callCtx, cancel := context.WithCancel(sess.ctx)
	stop := context.AfterFunc(ctx, cancel)

	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		callCtx = logger.WithCorrelationID(callCtx, id)
	}
	callCtx = logger.WithGeneration(callCtx, gen)
	c.mu.Lock()
	if sess.order != nil {
		callCtx = logger.WithOrderID(callCtx, sess.order.OrderID)
	}
	c.mu.Unlock()

	return callCtx, func() {
		stop()
		cancel()
	}
}

func (c *Coordinator) discard(log *slog.Logger, op string, err error) {
	staleResponsesTotal.WithLabelValues(op).Inc()
	attrs := []any{slog.String("operation", op)}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	log.Info("discarded stale response", attrs...)
}

// publish sends an analytics event. Failures are logged and never affect the
// checkout.
func (c *Coordinator) publish(ctx context.Context, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), eventTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		c.logger.WarnContext(ctx, "failed to publish checkout event", slog.String("error", err.Error()))
	}
}
