package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	StatusPendingPickup OrderStatus = "pending_pickup"
	StatusPickedUp      OrderStatus = "picked_up"
	StatusCancelled     OrderStatus = "cancelled"
)

type Product struct {
	ID         uuid.UUID
	MerchantID uuid.UUID
	Title      string
	Price      decimal.Decimal
	Sizes      []string
	Inventory  map[string]int
	Active     bool
	EventIDs   []uuid.UUID
	ImageURL   string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Event struct {
	ID             uuid.UUID
	Name           string
	VenueName      string
	VenueAddress   string
	StartsAt       time.Time
	EndsAt         time.Time
	Latitude       float64
	Longitude      float64
	GeofenceRadius float64 // meters, 0 = unbounded
	Active         bool
	MerchantIDs    []uuid.UUID
	ProductIDs     []uuid.UUID
	ImageURL       string
	Description    string
	Capacity       *int
	TicketPrice    *decimal.Decimal
	Category       string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Order struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	MerchantID   uuid.UUID
	EventID      *uuid.UUID
	Items        []OrderItem
	Amount       decimal.Decimal
	Status       OrderStatus
	PickupCode   string
	PaymentToken string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type OrderItem struct {
	ProductID uuid.UUID
	Size      string
	Quantity  int
	Title     string
	Price     decimal.Decimal
}

func (i OrderItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}
