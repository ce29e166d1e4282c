package http

import (
	"context"
	"fmt"
	"io"

	"github.com/a-h/templ"

	"github.com/utafrali/storefront/internal/catalog"
	"github.com/utafrali/storefront/internal/checkout"
	"github.com/utafrali/storefront/internal/domain"
)

// StorefrontPage lists the catalog and embeds the checkout dialog, which
// refreshes itself from the status screen.
func StorefrontPage(items []catalog.Item, snap checkout.Snapshot) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, `<!DOCTYPE html><html lang="en"><head><meta charset="utf-8"><title>Storefront</title></head><body><main><h1>Collectibles</h1><ul class="items">`); err != nil {
			return err
		}
		for _, it := range items {
			if _, err := fmt.Fprintf(w,
				`<li class="item" data-item-id="%s"><img src="%s" alt="%s"><h2>%s</h2><p class="price">$%s</p><button hx-post="/api/v1/checkout" hx-vals='{"item_id":"%s"}' hx-ext="json-enc" hx-swap="none">Buy now</button></li>`,
				templ.EscapeString(it.ID),
				templ.EscapeString(it.Icon),
				templ.EscapeString(it.Name),
				templ.EscapeString(it.Name),
				templ.EscapeString(it.Price.StringFixed(2)),
				templ.EscapeString(it.ID),
			); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(w, `</ul><section id="checkout" hx-get="/api/v1/checkout/status" hx-trigger="load, every 1s">`); err != nil {
			return err
		}
		if err := StatusScreen(snap).Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, `</section></main></body></html>`)
		return err
	})
}

// StatusScreen renders the checkout dialog body for a snapshot.
func StatusScreen(snap checkout.Snapshot) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if snap.Item == nil {
			_, err := io.WriteString(w, `<div class="dialog closed"></div>`)
			return err
		}

		if _, err := fmt.Fprintf(w, `<div class="dialog" data-state="%s"><h2>%s</h2>`,
			templ.EscapeString(string(snap.State)),
			templ.EscapeString(snap.Item.Name),
		); err != nil {
			return err
		}

		if snap.Status != nil {
			if _, err := fmt.Fprintf(w, `<p class="status status-%s" role="status">%s</p>`,
				templ.EscapeString(snap.Status.Kind),
				templ.EscapeString(snap.Status.Message),
			); err != nil {
				return err
			}
		}
		if snap.Error != "" {
			if _, err := fmt.Fprintf(w, `<p class="error">%s</p>`, templ.EscapeString(snap.Error)); err != nil {
				return err
			}
		}
		if snap.PaymentError != "" {
			if _, err := fmt.Fprintf(w, `<p class="payment-error">%s</p>`, templ.EscapeString(snap.PaymentError)); err != nil {
				return err
			}
		}

		if snap.Order != nil {
			if err := methodTabs(snap.SelectedMethod).Render(ctx, w); err != nil {
				return err
			}
			total := snap.Order.TotalPrice()
			if _, err := fmt.Fprintf(w, `<p class="order">Order %s: %s %s</p>`,
				templ.EscapeString(snap.Order.OrderID),
				templ.EscapeString(total.Amount.String()),
				templ.EscapeString(total.Currency),
			); err != nil {
				return err
			}
		}

		if snap.State == checkout.StateCreateFailed {
			if _, err := io.WriteString(w, `<button hx-post="/api/v1/checkout/retry" hx-swap="none">Try again</button>`); err != nil {
				return err
			}
		}
		if canPay(snap) {
			if _, err := io.WriteString(w, `<button hx-post="/api/v1/checkout/pay" hx-swap="none">Pay</button>`); err != nil {
				return err
			}
		}
		if canPoll(snap) {
			if _, err := io.WriteString(w, `<button hx-post="/api/v1/checkout/poll" hx-swap="none">Check status</button>`); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, `<button hx-delete="/api/v1/checkout" hx-swap="none">Close</button></div>`)
		return err
	})
}

func methodTabs(selected domain.PaymentMethod) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, `<div class="methods" role="tablist">`); err != nil {
			return err
		}
		for _, m := range []domain.PaymentMethod{domain.PaymentMethodCard, domain.PaymentMethodCrypto} {
			if _, err := fmt.Fprintf(w,
				`<button role="tab" aria-selected="%t" hx-put="/api/v1/checkout/payment-method" hx-vals='{"method":"%s"}' hx-ext="json-enc" hx-swap="none">%s</button>`,
				m == selected,
				templ.EscapeString(m.String()),
				templ.EscapeString(m.String()),
			); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, `</div>`)
		return err
	})
}

func canPay(snap checkout.Snapshot) bool {
	switch snap.State {
	case checkout.StateOrderReady:
		return true
	case checkout.StateTerminal:
		return snap.Outcome == checkout.OutcomeFailed || snap.Outcome == checkout.OutcomeInsufficientFunds
	}
	return false
}

// canPoll reports whether a submitted payment is waiting to be confirmed.
func canPoll(snap checkout.Snapshot) bool {
	return snap.State == checkout.StatePaymentSubmitted ||
		(snap.State == checkout.StateTerminal && snap.Outcome == checkout.OutcomeTimedOut)
}
