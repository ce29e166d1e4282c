package orderapi

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/utafrali/storefront/internal/domain"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/logger"
)

// PollOrder fetches the order every PollInterval until it is terminal or a
// fetch fails, and returns the last order seen. Polling stops early when ctx
// is cancelled. Running past PollTimeout or PollMaxAttempts returns the last
// order together with a POLL_TIMEOUT error.
func (c *Client) PollOrder(ctx context.Context, orderID, clientSecret string) (*domain.Order, error) {
	pollCtx := ctx
	if c.cfg.PollTimeout > 0 {
		var cancel context.CancelFunc
		pollCtx, cancel = context.WithTimeout(ctx, c.cfg.PollTimeout)
		defer cancel()
	}

	log := logger.WithContext(ctx, c.logger).With(slog.String("order_id", orderID))
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	var last *domain.Order
	attempts := 0
	for {
		attempts++
		order, err := c.GetOrder(pollCtx, orderID, clientSecret)
		if err != nil {
			if ctx.Err() == nil && pollCtx.Err() != nil {
				return last, c.pollTimedOut(log, orderID, attempts)
			}
			pollAttempts.WithLabelValues(pollResult(err)).Observe(float64(attempts))
			return last, err
		}
		last = order

		if order.IsTerminal() {
			pollAttempts.WithLabelValues("terminal").Observe(float64(attempts))
			log.InfoContext(ctx, "order reached terminal state",
				slog.String("phase", order.Phase),
				slog.String("payment_status", order.Payment.Status),
				slog.Int("attempts", attempts),
			)
			return order, nil
		}
		if c.cfg.PollMaxAttempts > 0 && attempts >= c.cfg.PollMaxAttempts {
			return last, c.pollTimedOut(log, orderID, attempts)
		}

		log.DebugContext(ctx, "order not settled",
			slog.String("phase", order.Phase),
			slog.String("payment_status", order.Payment.Status),
			slog.Int("attempt", attempts),
		)

		select {
		case <-pollCtx.Done():
			if err := ctx.Err(); err != nil {
				pollAttempts.WithLabelValues("cancelled").Observe(float64(attempts))
				return last, err
			}
			return last, c.pollTimedOut(log, orderID, attempts)
		case <-ticker.C:
		}
	}
}

func (c *Client) pollTimedOut(log *slog.Logger, orderID string, attempts int) error {
	pollAttempts.WithLabelValues("timeout").Observe(float64(attempts))
	log.Warn("order polling gave up", slog.Int("attempts", attempts))
	return apperrors.PollTimeout(orderID, attempts)
}

func pollResult(err error) string {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "cancelled"
	}
	return "error"
}
