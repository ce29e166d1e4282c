// Package payment defines the widgets that submit payment for an order, one
// per payment method.
package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/utafrali/storefront/internal/domain"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// UnexpectedErrorMessage is shown when a failure carries no message of its own.
const UnexpectedErrorMessage = "An unexpected error occurred"

// Widget submits payment for an order with one payment method.
type Widget interface {
	// Method is the payment method the widget handles.
	Method() domain.PaymentMethod
	// Prepare checks that the order carries what the widget needs to pay.
	Prepare(order *domain.Order) error
	// Confirm submits the payment. It does not wait for the order to settle.
	Confirm(ctx context.Context, order *domain.Order) error
	// Cancel aborts an in-flight Confirm. It is safe to call at any time.
	Cancel()
}

// Error is a payment failure with a message fit for the buyer. It matches
// apperrors.ErrPaymentFailed.
type Error struct {
	Method  domain.PaymentMethod
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s payment: %s: %v", e.Method, e.Message, e.Err)
	}
	return fmt.Sprintf("%s payment: %s", e.Method, e.Message)
}

func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{apperrors.ErrPaymentFailed, e.Err}
	}
	return []error{apperrors.ErrPaymentFailed}
}

// NewError builds an Error with an explicit message.
func NewError(method domain.PaymentMethod, message string, err error) *Error {
	if message == "" {
		message = UnexpectedErrorMessage
	}
	return &Error{Method: method, Message: message, Err: err}
}

// Wrap converts any failure into an Error, keeping an existing Error as is.
func Wrap(method domain.PaymentMethod, err error) *Error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	if errors.Is(err, context.Canceled) {
		return NewError(method, "Payment cancelled", err)
	}
	return NewError(method, err.Error(), err)
}

// Message returns the buyer-facing text for err.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Message
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return UnexpectedErrorMessage
}

// Registry selects the widget for a payment method.
type Registry struct {
	widgets map[domain.PaymentMethod]Widget
}

// NewRegistry indexes widgets by method. A later widget replaces an earlier
// one for the same method.
func NewRegistry(widgets ...Widget) *Registry {
	r := &Registry{widgets: make(map[domain.PaymentMethod]Widget, len(widgets))}
	for _, w := range widgets {
		r.widgets[w.Method()] = w
	}
	return r
}

// Get returns the widget for method.
func (r *Registry) Get(method domain.PaymentMethod) (Widget, error) {
	w, ok := r.widgets[method]
	if !ok {
		return nil, NewError(method, fmt.Sprintf("%s payments are not available", method), nil)
	}
	return w, nil
}

// CancelAll aborts every in-flight Confirm.
func (r *Registry) CancelAll() {
	for _, w := range r.widgets {
		w.Cancel()
	}
}

// Inflight tracks the cancel function of the running Confirm so a widget can
// implement Cancel.
type Inflight struct {
	mu     sync.Mutex
	cancel context.CancelFunc
	seq    uint64
}

// Begin derives a cancellable context for one Confirm. The returned done
// function must be called when Confirm returns.
func (f *Inflight) Begin(ctx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)

	f.mu.Lock()
	if f.cancel != nil {
		f.cancel()
	}
	f.seq++
	seq := f.seq
	f.cancel = cancel
	f.mu.Unlock()

	return ctx, func() {
		cancel()
		f.mu.Lock()
		if f.seq == seq {
			f.cancel = nil
		}
		f.mu.Unlock()
	}
}

// Cancel aborts the running Confirm, if any.
func (f *Inflight) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
}
