// Package checkout turns a cart into a paid, persisted order.
package checkout

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/merchpit/internal/cart"
	"github.com/robertarktes/merchpit/internal/domain"
	"github.com/robertarktes/merchpit/internal/observability"
	"github.com/robertarktes/merchpit/internal/payment"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var ErrEmptyCart = errors.New("cart is empty")

type Payments interface {
	ProcessPayment(ctx context.Context, reference string, amount decimal.Decimal) (payment.Result, error)
	Refund(ctx context.Context, token string) error
}

type Orders interface {
	CreateOrder(ctx context.Context, order domain.Order) (uuid.UUID, error)
}

type Request struct {
	Cart       *cart.Cart
	UserID     uuid.UUID
	MerchantID uuid.UUID
	EventID    *uuid.UUID
}

type Service struct {
	payments Payments
	orders   Orders
	logger   observability.Logger
	now      func() time.Time
}

func NewService(payments Payments, orders Orders, logger observability.Logger) *Service {
	return &Service{payments: payments, orders: orders, logger: logger, now: time.Now}
}

// BuildOrder snapshots the cart into an unsaved order for merchantID. Every
// line must belong to that merchant.
func BuildOrder(c *cart.Cart, userID, merchantID uuid.UUID, eventID *uuid.UUID, now time.Time) (domain.Order, error) {
	if c == nil || c.IsEmpty() {
		return domain.Order{}, ErrEmptyCart
	}
	for _, m := range c.Merchants() {
		if m != merchantID {
			return domain.Order{}, errors.Wrapf(domain.ErrInvalidInput, "cart contains items from merchant %s", m)
		}
	}
	return domain.NewOrder(userID, merchantID, eventID, c.Items(), now)
}

// Checkout charges the cart total and records the order. Nothing is persisted
// when payment fails; a charge for an order that cannot be fulfilled is refunded.
func (s *Service) Checkout(ctx context.Context, req Request) (domain.Order, error) {
	ctx, span := otel.Tracer("checkout").Start(ctx, "checkout.Checkout")
	defer span.End()
	span.SetAttributes(
		attribute.String("user.id", req.UserID.String()),
		attribute.String("merchant.id", req.MerchantID.String()),
	)

	order, err := BuildOrder(req.Cart, req.UserID, req.MerchantID, req.EventID, s.now())
	if err != nil {
		return domain.Order{}, err
	}
	log := s.logger.WithField("user_id", req.UserID).WithField("pickup_code", order.PickupCode)

	paid, err := s.payments.ProcessPayment(ctx, order.PickupCode, order.Amount)
	if err != nil {
		span.RecordError(err)
		return domain.Order{}, errors.Wrap(err, "process payment")
	}
	order.PaymentToken = paid.Token

	id, err := s.orders.CreateOrder(ctx, order)
	if err != nil {
		span.RecordError(err)
		// The request context may already be gone; the refund must still go out.
		if rerr := s.payments.Refund(context.WithoutCancel(ctx), paid.Token); rerr != nil {
			log.WithField("payment_token", paid.Token).WithError(rerr).Error("refund after failed order creation failed")
		} else {
			log.WithField("payment_token", paid.Token).Info("payment refunded after failed order creation")
		}
		if errors.Is(err, domain.ErrSoldOut) {
			return domain.Order{}, err
		}
		return domain.Order{}, errors.Wrap(err, "create order")
	}
	order.ID = id

	req.Cart.Clear()
	log.WithField("order_id", id).Info("order placed")
	return order, nil
}
