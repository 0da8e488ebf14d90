// Package pickup validates pickup codes presented at the merchant's stand.
package pickup

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/merchpit/internal/domain"
	"github.com/robertarktes/merchpit/internal/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var (
	ErrInvalidCode = errors.New("invalid pickup code")
	ErrAlreadyUsed = errors.New("pickup code already used")
	ErrCooldown    = errors.New("pickup code scanned too recently")
)

type Orders interface {
	FindByPickupCode(ctx context.Context, code string) (domain.Order, error)
	MarkPickedUp(ctx context.Context, id uuid.UUID) (domain.Order, error)
}

// Guard admits the first scan of a code and refuses repeats until ttl elapses.
type Guard interface {
	Acquire(ctx context.Context, code string, ttl time.Duration) (bool, error)
}

type Result struct {
	Order domain.Order
	Items []domain.OrderItem
}

type Verifier struct {
	orders   Orders
	guard    Guard
	cooldown time.Duration
	logger   observability.Logger
}

func NewVerifier(orders Orders, guard Guard, cooldown time.Duration, logger observability.Logger) *Verifier {
	return &Verifier{orders: orders, guard: guard, cooldown: cooldown, logger: logger}
}

// Verify redeems code for merchantID. Codes belonging to another merchant are
// reported as invalid so a scan never reveals another merchant's orders.
func (v *Verifier) Verify(ctx context.Context, merchantID uuid.UUID, code string) (Result, error) {
	ctx, span := otel.Tracer("pickup").Start(ctx, "pickup.Verify")
	defer span.End()
	span.SetAttributes(attribute.String("merchant.id", merchantID.String()))

	res, err := v.verify(ctx, merchantID, strings.TrimSpace(code))
	observability.PickupScans.WithLabelValues(scanResult(err)).Inc()
	if err != nil {
		span.RecordError(err)
	}
	return res, err
}

func (v *Verifier) verify(ctx context.Context, merchantID uuid.UUID, code string) (Result, error) {
	if code == "" {
		return Result{}, ErrInvalidCode
	}

	order, err := v.orders.FindByPickupCode(ctx, code)
	if errors.Is(err, domain.ErrNotFound) {
		return Result{}, ErrInvalidCode
	}
	if err != nil {
		return Result{}, errors.Wrap(err, "find order by pickup code")
	}
	if order.MerchantID != merchantID {
		v.logger.WithField("order_id", order.ID).WithField("merchant_id", merchantID).Warn("pickup code scanned by another merchant")
		return Result{}, ErrInvalidCode
	}
	if order.Status != domain.StatusPendingPickup {
		return Result{}, errors.Wrapf(ErrAlreadyUsed, "order is %s", order.Status)
	}

	updated, err := v.orders.MarkPickedUp(ctx, order.ID)
	if errors.Is(err, domain.ErrInvalidTransition) {
		return Result{}, errors.Wrap(ErrAlreadyUsed, "lost concurrent scan")
	}
	if err != nil {
		return Result{}, errors.Wrap(err, "mark picked up")
	}
	return Result{Order: updated, Items: updated.Items}, nil
}

// Scan is Verify behind a short per-code cooldown, so a camera that keeps
// reading the same symbol produces one redemption attempt.
func (v *Verifier) Scan(ctx context.Context, merchantID uuid.UUID, code string) (Result, error) {
	code = strings.TrimSpace(code)
	if code != "" && v.guard != nil && v.cooldown > 0 {
		ok, err := v.guard.Acquire(ctx, code, v.cooldown)
		if err != nil {
			v.logger.WithError(err).Warn("scan cooldown unavailable")
		} else if !ok {
			observability.PickupScans.WithLabelValues("cooldown").Inc()
			return Result{}, ErrCooldown
		}
	}
	return v.Verify(ctx, merchantID, code)
}

func scanResult(err error) string {
	switch {
	case err == nil:
		return "redeemed"
	case errors.Is(err, ErrInvalidCode):
		return "invalid"
	case errors.Is(err, ErrAlreadyUsed):
		return "already_used"
	default:
		return "error"
	}
}
