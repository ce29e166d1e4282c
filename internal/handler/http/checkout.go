package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/a-h/templ"

	"github.com/utafrali/storefront/internal/catalog"
	"github.com/utafrali/storefront/internal/checkout"
	"github.com/utafrali/storefront/internal/domain"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/httputil"
	"github.com/utafrali/storefront/pkg/logger"
	"github.com/utafrali/storefront/pkg/validator"
)

const maxBodyBytes = 1 << 20

// Checkout is the dialog the shell drives.
type Checkout interface {
	Open(ctx context.Context, item catalog.Item) error
	RetryCreate(ctx context.Context) error
	SelectMethod(ctx context.Context, method domain.PaymentMethod) error
	ConnectWallet(ctx context.Context, address string) error
	SetReceiptEmail(ctx context.Context, email string) error
	Pay(ctx context.Context) error
	RetryPoll(ctx context.Context) error
	Close()
	Snapshot() checkout.Snapshot
}

// Catalog lists the items on sale.
type Catalog interface {
	Lookup(id string) (catalog.Item, error)
	Items() []catalog.Item
}

// CheckoutHandler handles HTTP requests for the storefront and its checkout
// dialog. Opening a checkout and paying run in the background and answer 202;
// the dialog then follows progress through the snapshot.
type CheckoutHandler struct {
	checkout Checkout
	catalog  Catalog
	logger   *slog.Logger

	wg sync.WaitGroup
}

// NewCheckoutHandler creates a new checkout HTTP handler.
func NewCheckoutHandler(co Checkout, cat Catalog, logger *slog.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		checkout: co,
		catalog:  cat,
		logger:   logger,
	}
}

// --- Request DTOs ---

// OpenCheckoutRequest is the JSON request body for opening the dialog.
type OpenCheckoutRequest struct {
	ItemID string `json:"item_id" validate:"required"`
}

// SetPaymentMethodRequest is the JSON request body for selecting a method.
type SetPaymentMethodRequest struct {
	Method string `json:"method" validate:"required,oneof=card crypto"`
}

// ConnectWalletRequest is the JSON request body for connecting a wallet. An
// empty address disconnects it.
type ConnectWalletRequest struct {
	Address string `json:"address" validate:"omitempty,eth_addr"`
}

// SetReceiptEmailRequest is the JSON request body for the card receipt email.
type SetReceiptEmailRequest struct {
	Email string `json:"email" validate:"omitempty,email"`
}

// --- Handlers ---

// Storefront handles GET /
func (h *CheckoutHandler) Storefront(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, StorefrontPage(h.catalog.Items(), h.checkout.Snapshot()))
}

// OpenCheckout handles POST /api/v1/checkout
func (h *CheckoutHandler) OpenCheckout(w http.ResponseWriter, r *http.Request) {
	var req OpenCheckoutRequest
	if !h.decode(w, r, &req) {
		return
	}

	item, err := h.catalog.Lookup(req.ItemID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	h.background(r, "open checkout", func(ctx context.Context) error {
		return h.checkout.Open(ctx, item)
	})
	h.writeSnapshot(w, http.StatusAccepted)
}

// GetCheckout handles GET /api/v1/checkout
func (h *CheckoutHandler) GetCheckout(w http.ResponseWriter, r *http.Request) {
	h.writeSnapshot(w, http.StatusOK)
}

// GetStatus handles GET /api/v1/checkout/status
func (h *CheckoutHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, StatusScreen(h.checkout.Snapshot()))
}

// SetPaymentMethod handles PUT /api/v1/checkout/payment-method
func (h *CheckoutHandler) SetPaymentMethod(w http.ResponseWriter, r *http.Request) {
	var req SetPaymentMethodRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.respond(w, r, h.checkout.SelectMethod(r.Context(), domain.PaymentMethod(req.Method)))
}

// ConnectWallet handles PUT /api/v1/checkout/wallet
func (h *CheckoutHandler) ConnectWallet(w http.ResponseWriter, r *http.Request) {
	var req ConnectWalletRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.respond(w, r, h.checkout.ConnectWallet(r.Context(), req.Address))
}

// SetReceiptEmail handles PUT /api/v1/checkout/receipt-email
func (h *CheckoutHandler) SetReceiptEmail(w http.ResponseWriter, r *http.Request) {
	var req SetReceiptEmailRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.respond(w, r, h.checkout.SetReceiptEmail(r.Context(), req.Email))
}

// Pay handles POST /api/v1/checkout/pay
func (h *CheckoutHandler) Pay(w http.ResponseWriter, r *http.Request) {
	snap := h.checkout.Snapshot()
	if snap.Order == nil {
		httputil.WriteError(w, r, apperrors.InvalidState("there is no order to pay"), h.logger)
		return
	}
	if !canPay(snap) {
		httputil.WriteError(w, r, apperrors.InvalidState("checkout is "+string(snap.State)), h.logger)
		return
	}

	h.background(r, "pay", h.checkout.Pay)
	h.writeSnapshot(w, http.StatusAccepted)
}

// RetryPoll handles POST /api/v1/checkout/poll
func (h *CheckoutHandler) RetryPoll(w http.ResponseWriter, r *http.Request) {
	if !canPoll(h.checkout.Snapshot()) {
		httputil.WriteError(w, r, apperrors.InvalidState("there is no submitted payment to check"), h.logger)
		return
	}

	h.background(r, "poll order", h.checkout.RetryPoll)
	h.writeSnapshot(w, http.StatusAccepted)
}

// RetryCreate handles POST /api/v1/checkout/retry
func (h *CheckoutHandler) RetryCreate(w http.ResponseWriter, r *http.Request) {
	if h.checkout.Snapshot().State != checkout.StateCreateFailed {
		httputil.WriteError(w, r, apperrors.InvalidState("order creation can only be retried after it failed"), h.logger)
		return
	}

	h.background(r, "retry order creation", h.checkout.RetryCreate)
	h.writeSnapshot(w, http.StatusAccepted)
}

// CloseCheckout handles DELETE /api/v1/checkout
func (h *CheckoutHandler) CloseCheckout(w http.ResponseWriter, r *http.Request) {
	h.checkout.Close()
	h.writeSnapshot(w, http.StatusOK)
}

// Wait blocks until background checkout work has returned.
func (h *CheckoutHandler) Wait() {
	h.wg.Wait()
}

// --- Helpers ---

// background runs fn detached from the request, keeping its correlation id
// and logger. A stale response means the dialog moved on and is not an error.
func (h *CheckoutHandler) background(r *http.Request, op string, fn func(context.Context) error) {
	ctx := context.WithoutCancel(r.Context())
	log := logger.WithContext(ctx, h.logger)

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		if err := fn(ctx); err != nil && !errors.Is(err, checkout.ErrStaleResponse) {
			log.WarnContext(ctx, op+" failed", slog.String("error", err.Error()))
		}
	}()
}

// respond writes the snapshot after a synchronous mutation.
func (h *CheckoutHandler) respond(w http.ResponseWriter, r *http.Request, err error) {
	if err != nil && !errors.Is(err, checkout.ErrStaleResponse) {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	h.writeSnapshot(w, http.StatusOK)
}

func (h *CheckoutHandler) writeSnapshot(w http.ResponseWriter, status int) {
	httputil.WriteData(w, status, h.checkout.Snapshot())
}

// decode reads and validates a JSON body. It writes the error response and
// returns false when the body is unusable.
func (h *CheckoutHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	err := validator.DecodeAndValidate(r, dst)
	if err == nil {
		return true
	}
	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		httputil.WriteError(w, r, err, h.logger)
		return false
	}
	httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
		Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
	})
	return false
}

func (h *CheckoutHandler) render(w http.ResponseWriter, r *http.Request, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := c.Render(r.Context(), w); err != nil {
		logger.WithContext(r.Context(), h.logger).ErrorContext(r.Context(), "render page failed",
			slog.String("error", err.Error()))
	}
}
