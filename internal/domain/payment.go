package domain

import "fmt"

// PaymentMethod is the buyer's local choice of how to pay.
type PaymentMethod string

const (
	PaymentMethodCard   PaymentMethod = "card"
	PaymentMethodCrypto PaymentMethod = "crypto"
)

// Remote payment method and currency values understood by the order API.
const (
	RemoteMethodStripe    = "stripe-payment-element"
	DefaultCardCurrency   = "usd"
	DefaultCryptoChain    = "base-sepolia"
	DefaultCryptoCurrency = "usdc"
)

// ParsePaymentMethod converts user input into a PaymentMethod.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch PaymentMethod(s) {
	case PaymentMethodCard, PaymentMethodCrypto:
		return PaymentMethod(s), nil
	default:
		return "", fmt.Errorf("unknown payment method %q", s)
	}
}

func (m PaymentMethod) String() string { return string(m) }

// PaymentSettings maps local payment methods onto the remote method and
// currency values of the order API.
type PaymentSettings struct {
	CardCurrency   string
	CryptoChain    string
	CryptoCurrency string
}

// DefaultPaymentSettings returns the test-network settings.
func DefaultPaymentSettings() PaymentSettings {
	return PaymentSettings{
		CardCurrency:   DefaultCardCurrency,
		CryptoChain:    DefaultCryptoChain,
		CryptoCurrency: DefaultCryptoCurrency,
	}
}

// RemoteMethod returns the order API payment.method value for m.
func (s PaymentSettings) RemoteMethod(m PaymentMethod) string {
	if m == PaymentMethodCrypto {
		return s.CryptoChain
	}
	return RemoteMethodStripe
}

// Currency returns the order API payment.currency value for m.
func (s PaymentSettings) Currency(m PaymentMethod) string {
	if m == PaymentMethodCrypto {
		return s.CryptoCurrency
	}
	return s.CardCurrency
}

// MethodOf reports which local method an order is set up for.
func (s PaymentSettings) MethodOf(o *Order) PaymentMethod {
	if o.Payment.Method == RemoteMethodStripe {
		return PaymentMethodCard
	}
	return PaymentMethodCrypto
}
