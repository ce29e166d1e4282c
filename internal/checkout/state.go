package checkout

import (
	"github.com/utafrali/storefront/internal/catalog"
	"github.com/utafrali/storefront/internal/domain"
)

// State is the coordinator's position in the order lifecycle.
type State string

// Checkout state constants.
const (
	StateNoOrder           State = "no_order"
	StateCreatingOrder     State = "creating_order"
	StateCreateFailed      State = "create_failed"
	StateOrderReady        State = "order_ready"
	StateUpdatingOrder     State = "updating_order"
	StateSubmittingPayment State = "submitting_payment"
	StatePolling           State = "polling"
	StatePaymentSubmitted  State = "payment_submitted"
	StateTerminal          State = "terminal"
)

// Outcome qualifies StateTerminal.
type Outcome string

// Terminal outcome constants.
const (
	OutcomeNone              Outcome = ""
	OutcomeSuccess           Outcome = "success"
	OutcomeFailed            Outcome = "failed"
	OutcomeInsufficientFunds Outcome = "insufficient_funds"
	OutcomeTimedOut          Outcome = "timed_out"
)

// Status kinds shown to the buyer.
const (
	StatusLoading = "loading"
	StatusSuccess = "success"
	StatusError   = "error"
)

// Buyer-facing status messages.
const (
	MessageCreatingOrder     = "Creating your order..."
	MessageCreateFailed      = "We couldn't create your order. Please try again."
	MessageProcessing        = "Processing payment..."
	MessageSuccess           = "Payment successful! 🎉"
	MessageFailed            = "Payment failed. Please try again."
	MessageInsufficientFunds = "Insufficient funds."
	MessageTimedOut          = "Your payment is still processing. Check back later."
	MessageUnconfirmed       = "Your payment was submitted but we couldn't confirm it yet. Check its status again."
)

// Status is the line of text the checkout dialog shows.
type Status struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Snapshot is an immutable view of the checkout.
type Snapshot struct {
	SessionID      string               `json:"session_id,omitempty"`
	State          State                `json:"state"`
	Outcome        Outcome              `json:"outcome,omitempty"`
	Item           *catalog.Item        `json:"item,omitempty"`
	SelectedMethod domain.PaymentMethod `json:"selected_method"`
	WalletAddress  string               `json:"wallet_address,omitempty"`
	ReceiptEmail   string               `json:"receipt_email,omitempty"`
	Order          *domain.Order        `json:"order,omitempty"`
	PaymentError   string               `json:"payment_error,omitempty"`
	Error          string               `json:"error,omitempty"`
	Status         *Status              `json:"status,omitempty"`
	Generation     uint64               `json:"generation"`
}

// acceptsChanges reports whether the buyer may still change how the order is
// paid. Failed and insufficient-funds outcomes leave the order open to a
// different method or wallet.
func acceptsChanges(state State, outcome Outcome) bool {
	switch state {
	case StateOrderReady, StateUpdatingOrder:
		return true
	case StateTerminal:
		return outcome == OutcomeFailed || outcome == OutcomeInsufficientFunds
	default:
		return false
	}
}

// acceptsPayment reports whether Pay may run.
func acceptsPayment(state State, outcome Outcome) bool {
	if state == StateOrderReady {
		return true
	}
	return state == StateTerminal && (outcome == OutcomeFailed || outcome == OutcomeInsufficientFunds)
}

// acceptsPoll reports whether RetryPoll may run: the payment was submitted
// but its settlement is not known yet.
func acceptsPoll(state State, outcome Outcome) bool {
	return state == StatePaymentSubmitted || (state == StateTerminal && outcome == OutcomeTimedOut)
}

// outcomeOf derives the terminal outcome of a settled order.
func outcomeOf(o *domain.Order) Outcome {
	switch {
	case o.HasInsufficientFunds():
		return OutcomeInsufficientFunds
	case o.Succeeded():
		return OutcomeSuccess
	default:
		return OutcomeFailed
	}
}

// statusOf mirrors what the dialog shows for a state, outcome and order.
func statusOf(state State, outcome Outcome, order *domain.Order) *Status {
	switch state {
	case StateNoOrder:
		return nil
	case StateCreatingOrder:
		return &Status{Kind: StatusLoading, Message: MessageCreatingOrder}
	case StateCreateFailed:
		return &Status{Kind: StatusError, Message: MessageCreateFailed}
	case StatePaymentSubmitted:
		return &Status{Kind: StatusError, Message: MessageUnconfirmed}
	case StateSubmittingPayment, StatePolling:
		return &Status{Kind: StatusLoading, Message: MessageProcessing}
	case StateTerminal:
		switch outcome {
		case OutcomeSuccess:
			return &Status{Kind: StatusSuccess, Message: MessageSuccess}
		case OutcomeInsufficientFunds:
			return &Status{Kind: StatusError, Message: MessageInsufficientFunds}
		case OutcomeTimedOut:
			return &Status{Kind: StatusError, Message: MessageTimedOut}
		default:
			return &Status{Kind: StatusError, Message: MessageFailed}
		}
	}

	if order == nil {
		return nil
	}
	switch order.Payment.Status {
	case domain.PaymentStatusCompleted:
		return &Status{Kind: StatusSuccess, Message: MessageSuccess}
	case domain.PaymentStatusFailed:
		return &Status{Kind: StatusError, Message: MessageFailed}
	case domain.PaymentStatusInsufficientFunds:
		return &Status{Kind: StatusError, Message: MessageInsufficientFunds}
	}
	return nil
}
