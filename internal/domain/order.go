package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Order phase constants.
const (
	PhaseQuote     = "quote"
	PhasePayment   = "payment"
	PhaseDelivery  = "delivery"
	PhaseCompleted = "completed"
)

// Payment status constants reported by the order API.
const (
	PaymentStatusRequiresQuote              = "requires-quote"
	PaymentStatusRequiresCryptoPayerAddress = "requires-crypto-payer-address"
	PaymentStatusAwaitingPayment            = "awaiting-payment"
	PaymentStatusInsufficientFunds          = "crypto-payer-insufficient-funds"
	PaymentStatusCompleted                  = "completed"
	PaymentStatusSucceeded                  = "succeeded"
	PaymentStatusFailed                     = "failed"
)

// Order is the local copy of a remote order. It is replaced wholesale by
// every create, update and get response.
type Order struct {
	OrderID   string     `json:"orderId"`
	Phase     string     `json:"phase"`
	LineItems []LineItem `json:"lineItems"`
	Quote     Quote      `json:"quote"`
	Payment   Payment    `json:"payment"`
}

// Money is an amount with its currency. Amounts travel as decimal strings.
type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// LineItem is one purchased item on the order.
type LineItem struct {
	CollectionLocator string         `json:"collectionLocator"`
	CallData          CallData       `json:"callData"`
	Metadata          ItemMetadata   `json:"metadata"`
	Quote             LineItemQuote  `json:"quote"`
	Delivery          DeliveryStatus `json:"delivery"`
}

// CallData carries the price the buyer agreed to.
type CallData struct {
	TotalPrice string `json:"totalPrice" validate:"required,price"`
}

// ItemMetadata describes the item as the order API presents it.
type ItemMetadata struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	ImageURL    string `json:"imageUrl"`
}

// LineItemQuote is the per-item price breakdown.
type LineItemQuote struct {
	Status     string  `json:"status"`
	Charges    Charges `json:"charges"`
	TotalPrice Money   `json:"totalPrice"`
}

// Charges splits a line item total into its components.
type Charges struct {
	Unit     Money `json:"unit"`
	SalesTax Money `json:"salesTax"`
	Shipping Money `json:"shipping"`
}

// DeliveryStatus tracks where the minted item goes.
type DeliveryStatus struct {
	Status    string    `json:"status"`
	Recipient Recipient `json:"recipient"`
}

// Recipient identifies who receives the item.
type Recipient struct {
	Locator       string `json:"locator,omitempty"`
	Email         string `json:"email,omitempty"`
	WalletAddress string `json:"walletAddress,omitempty"`
}

// Quote is the order-level quote.
type Quote struct {
	Status     string `json:"status"`
	QuotedAt   string `json:"quotedAt"`
	ExpiresAt  string `json:"expiresAt"`
	TotalPrice Money  `json:"totalPrice"`
}

// Payment is the payment section of an order.
type Payment struct {
	Status      string      `json:"status"`
	Method      string      `json:"method"`
	Currency    string      `json:"currency"`
	Preparation Preparation `json:"preparation"`
}

// Preparation holds what a payment widget needs to submit payment. Card
// orders carry the Stripe fields, crypto orders the serialized transaction.
type Preparation struct {
	Chain                 string `json:"chain,omitempty"`
	PayerAddress          string `json:"payerAddress,omitempty"`
	SerializedTransaction string `json:"serializedTransaction,omitempty"`
	StripePublishableKey  string `json:"stripePublishableKey,omitempty"`
	StripeClientSecret    string `json:"stripeClientSecret,omitempty"`
}

// CreateOrderResponse is returned once by order creation. The client secret
// authorizes every later update and get on the order.
type CreateOrderResponse struct {
	ClientSecret string `json:"clientSecret"`
	Order        Order  `json:"order"`
}

// IsTerminal reports whether polling can stop: the payment failed, the order
// completed, or the crypto payer cannot cover the price.
func (o *Order) IsTerminal() bool {
	switch {
	case o.Payment.Status == PaymentStatusFailed:
		return true
	case o.Phase == PhaseCompleted:
		return true
	case o.Payment.Status == PaymentStatusInsufficientFunds:
		return true
	default:
		return false
	}
}

// Succeeded reports whether the order reached its completed phase without a
// failed payment.
func (o *Order) Succeeded() bool {
	return o.Phase == PhaseCompleted && o.Payment.Status != PaymentStatusFailed
}

// HasInsufficientFunds reports whether the crypto payer was found short.
func (o *Order) HasInsufficientFunds() bool {
	return o.Payment.Status == PaymentStatusInsufficientFunds
}

// TotalPrice returns the order total, falling back to the first line item's
// agreed price before a quote exists.
func (o *Order) TotalPrice() Money {
	if !o.Quote.TotalPrice.Amount.IsZero() {
		return o.Quote.TotalPrice
	}
	if len(o.LineItems) > 0 {
		if d, err := decimal.NewFromString(o.LineItems[0].CallData.TotalPrice); err == nil {
			return Money{Amount: d}
		}
	}
	return Money{}
}

// PayerMatches reports whether the order's crypto payer is address. EVM
// addresses are compared case-insensitively since checksummed and lowercase
// forms name the same account.
func (o *Order) PayerMatches(address string) bool {
	return strings.EqualFold(o.Payment.Preparation.PayerAddress, address)
}

// Clone returns a deep copy safe to hand to callers.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	cpy := *o
	cpy.LineItems = append([]LineItem(nil), o.LineItems...)
	return &cpy
}
