// Package crypto pays for an order by sending the EVM transaction the order
// API serialized into its payment preparation.
package crypto

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/payment"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// Widget sends the order's prepared transaction from the connected wallet.
type Widget struct {
	wallet   Wallet
	logger   *slog.Logger
	inflight payment.Inflight
}

// New creates a crypto widget. A nil wallet means no wallet is connected and
// every Confirm fails.
func New(wallet Wallet, logger *slog.Logger) *Widget {
	return &Widget{wallet: wallet, logger: logger}
}

// Method implements payment.Widget.
func (w *Widget) Method() domain.PaymentMethod {
	return domain.PaymentMethodCrypto
}

// WalletAddress returns the connected wallet's address, or "" without one.
func (w *Widget) WalletAddress() string {
	if w.wallet == nil {
		return ""
	}
	return w.wallet.Address().Hex()
}

// Prepare implements payment.Widget.
func (w *Widget) Prepare(order *domain.Order) error {
	if order.HasInsufficientFunds() {
		return payment.NewError(domain.PaymentMethodCrypto, "Insufficient funds", apperrors.InsufficientFunds())
	}
	if order.Payment.Preparation.SerializedTransaction == "" {
		return payment.NewError(domain.PaymentMethodCrypto, "Crypto payment is not ready for this order", nil)
	}
	if w.wallet == nil {
		return payment.NewError(domain.PaymentMethodCrypto, "Connect a wallet to pay", nil)
	}
	return nil
}

// Confirm implements payment.Widget. It returns once the transaction is
// broadcast.
func (w *Widget) Confirm(ctx context.Context, order *domain.Order) error {
	if err := w.Prepare(order); err != nil {
		return err
	}
	ctx, done := w.inflight.Begin(ctx)
	defer done()

	req, err := ParseTransaction(order.Payment.Preparation.SerializedTransaction)
	if err != nil {
		return payment.NewError(domain.PaymentMethodCrypto, "Invalid payment transaction", err)
	}

	if payer := order.Payment.Preparation.PayerAddress; payer != "" && !strings.EqualFold(payer, w.WalletAddress()) {
		return payment.NewError(domain.PaymentMethodCrypto,
			"The connected wallet is not the payer of this order", nil)
	}

	walletChain, err := w.wallet.ChainID(ctx)
	if err != nil {
		return payment.Wrap(domain.PaymentMethodCrypto, err)
	}
	if req.ChainID != nil && walletChain.Cmp(req.ChainID) != 0 {
		return payment.NewError(domain.PaymentMethodCrypto,
			fmt.Sprintf("Switch your wallet to chain %s", req.ChainID), nil)
	}
	req.ChainID = walletChain

	hash, err := w.wallet.SendTransaction(ctx, *req)
	if err != nil {
		w.logger.WarnContext(ctx, "crypto payment rejected",
			slog.String("order_id", order.OrderID),
			slog.String("error", err.Error()),
		)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return payment.Wrap(domain.PaymentMethodCrypto, ctxErr)
		}
		return payment.Wrap(domain.PaymentMethodCrypto, err)
	}

	w.logger.InfoContext(ctx, "crypto payment sent",
		slog.String("order_id", order.OrderID),
		slog.String("tx_hash", hash.Hex()),
		slog.String("chain_id", walletChain.String()),
	)
	return nil
}

// Cancel implements payment.Widget.
func (w *Widget) Cancel() {
	w.inflight.Cancel()
}
