package domain

// OrderInput is the body of order creation and, partially filled, of order
// updates. Empty sections are omitted on the wire.
type OrderInput struct {
	Recipient *RecipientInput `json:"recipient,omitempty"`
	Payment   *PaymentInput   `json:"payment,omitempty"`
	LineItems []LineItemInput `json:"lineItems,omitempty"`
}

// RecipientInput names who receives the item. Card orders deliver by email,
// crypto orders to the paying wallet.
type RecipientInput struct {
	Email         string `json:"email,omitempty" validate:"omitempty,email"`
	WalletAddress string `json:"walletAddress,omitempty" validate:"omitempty,eth_addr"`
}

// PaymentInput selects the payment method on the remote order.
type PaymentInput struct {
	Method       string `json:"method" validate:"required"`
	Currency     string `json:"currency" validate:"required"`
	ReceiptEmail string `json:"receiptEmail,omitempty" validate:"omitempty,email"`
	PayerAddress string `json:"payerAddress,omitempty" validate:"omitempty,eth_addr"`
}

// LineItemInput is one item to purchase.
type LineItemInput struct {
	CollectionLocator string   `json:"collectionLocator" validate:"required,startswith=crossmint:"`
	CallData          CallData `json:"callData"`
}

// CreateOrderInput is the validated form of a creation request.
type CreateOrderInput struct {
	Recipient RecipientInput  `json:"recipient"`
	Payment   PaymentInput    `json:"payment" validate:"required"`
	LineItems []LineItemInput `json:"lineItems" validate:"required,min=1,dive"`
}

// OrderInput converts the creation request into the wire body. An empty
// recipient is left out.
func (c *CreateOrderInput) OrderInput() *OrderInput {
	payment := c.Payment
	in := &OrderInput{
		Payment:   &payment,
		LineItems: c.LineItems,
	}
	if c.Recipient != (RecipientInput{}) {
		recipient := c.Recipient
		in.Recipient = &recipient
	}
	return in
}

// CardUpdate builds the update that moves an order onto card payment.
func CardUpdate(s PaymentSettings, recipientEmail, receiptEmail string) *OrderInput {
	return &OrderInput{
		Recipient: &RecipientInput{Email: recipientEmail},
		Payment: &PaymentInput{
			Method:       RemoteMethodStripe,
			Currency:     s.CardCurrency,
			ReceiptEmail: receiptEmail,
		},
	}
}

// CryptoUpdate builds the update that moves an order onto crypto payment
// from the given wallet.
func CryptoUpdate(s PaymentSettings, walletAddress string) *OrderInput {
	return &OrderInput{
		Recipient: &RecipientInput{WalletAddress: walletAddress},
		Payment: &PaymentInput{
			Method:       s.CryptoChain,
			Currency:     s.CryptoCurrency,
			PayerAddress: walletAddress,
		},
	}
}
