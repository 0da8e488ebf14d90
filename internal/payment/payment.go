// Package payment authorizes checkout amounts. The default gateway is a
// simulated one; HTTPGateway talks to an external charge endpoint.
package payment

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
)

var (
	ErrDeclined      = errors.New("payment declined")
	ErrTimeout       = errors.New("payment timed out")
	ErrCancelled     = errors.New("payment cancelled")
	ErrUnavailable   = errors.New("payment gateway unavailable")
	ErrInvalidAmount = errors.New("payment amount must be positive")
)

type ChargeRequest struct {
	Reference string
	Amount    decimal.Decimal
}

type Result struct {
	Token       string
	Amount      decimal.Decimal
	ProcessedAt time.Time
}

type Gateway interface {
	Charge(ctx context.Context, req ChargeRequest) (string, error)
	Refund(ctx context.Context, token string) error
}

// contextError maps an expired or cancelled context onto the payment taxonomy.
func contextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Mark(errors.Wrap(err, "payment"), ErrTimeout)
	}
	return errors.Mark(errors.Wrap(err, "payment"), ErrCancelled)
}
