package domain

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// NewOrder snapshots items into a pending-pickup order. Nothing is persisted.
func NewOrder(userID, merchantID uuid.UUID, eventID *uuid.UUID, items []OrderItem, now time.Time) (Order, error) {
	if userID == uuid.Nil || merchantID == uuid.Nil {
		return Order{}, errors.Wrap(ErrInvalidInput, "user and merchant are required")
	}
	if len(items) == 0 {
		return Order{}, errors.Wrap(ErrInvalidInput, "order has no items")
	}

	snapshot := make([]OrderItem, len(items))
	amount := decimal.Zero
	for i, item := range items {
		if item.Quantity <= 0 {
			return Order{}, errors.Wrapf(ErrInvalidInput, "item %d has quantity %d", i, item.Quantity)
		}
		snapshot[i] = item
		amount = amount.Add(item.Subtotal())
	}

	var event *uuid.UUID
	if eventID != nil {
		id := *eventID
		event = &id
	}

	return Order{
		UserID:     userID,
		MerchantID: merchantID,
		EventID:    event,
		Items:      snapshot,
		Amount:     amount,
		Status:     StatusPendingPickup,
		PickupCode: NewPickupCode(),
		CreatedAt:  now.UTC(),
		UpdatedAt:  now.UTC(),
	}, nil
}

// NewPickupCode returns an opaque token unrelated to order content.
func NewPickupCode() string {
	return "MP-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
}

// Validate checks an order is ready to be persisted as a new order.
func (o Order) Validate() error {
	if o.UserID == uuid.Nil || o.MerchantID == uuid.Nil {
		return errors.Wrap(ErrInvalidInput, "user and merchant are required")
	}
	if len(o.Items) == 0 {
		return errors.Wrap(ErrInvalidInput, "order has no items")
	}
	if o.Status != StatusPendingPickup {
		return errors.Wrapf(ErrInvalidInput, "new order must be %s, got %s", StatusPendingPickup, o.Status)
	}
	if o.PickupCode == "" {
		return errors.Wrap(ErrInvalidInput, "pickup code is required")
	}
	sum := decimal.Zero
	for _, item := range o.Items {
		if item.Quantity <= 0 || item.Size == "" || item.ProductID == uuid.Nil {
			return errors.Wrap(ErrInvalidInput, "malformed order item")
		}
		sum = sum.Add(item.Subtotal())
	}
	if !sum.Equal(o.Amount) {
		return errors.Wrapf(ErrInvalidInput, "amount %s does not match items total %s", o.Amount, sum)
	}
	return nil
}

func (s OrderStatus) Valid() bool {
	switch s {
	case StatusPendingPickup, StatusPickedUp, StatusCancelled:
		return true
	}
	return false
}

func (s OrderStatus) Terminal() bool {
	return s == StatusPickedUp || s == StatusCancelled
}

// CanTransition reports whether from -> to is a legal lifecycle step.
func CanTransition(from, to OrderStatus) bool {
	return from == StatusPendingPickup && (to == StatusPickedUp || to == StatusCancelled)
}

func ParseStatus(s string) (OrderStatus, error) {
	st := OrderStatus(s)
	if !st.Valid() {
		return "", errors.Wrapf(ErrInvalidInput, "unknown order status %q", s)
	}
	return st, nil
}
