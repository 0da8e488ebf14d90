package http

import (
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/merchpit/internal/catalog"
	"github.com/robertarktes/merchpit/internal/domain"
	"github.com/shopspring/decimal"
)

type productRequest struct {
	Title     string          `json:"title"`
	Price     decimal.Decimal `json:"price"`
	Sizes     []string        `json:"sizes"`
	Inventory map[string]int  `json:"inventory"`
	Active    *bool           `json:"active"`
}

func (req productRequest) toDomain(id uuid.UUID) domain.Product {
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	return domain.Product{
		ID:        id,
		Title:     req.Title,
		Price:     req.Price,
		Sizes:     req.Sizes,
		Inventory: req.Inventory,
		Active:    active,
	}
}

type productResponse struct {
	ID         uuid.UUID       `json:"id"`
	MerchantID uuid.UUID       `json:"merchant_id"`
	Title      string          `json:"title"`
	Price      decimal.Decimal `json:"price"`
	Sizes      []string        `json:"sizes"`
	Inventory  map[string]int  `json:"inventory"`
	Active     bool            `json:"active"`
	EventIDs   []uuid.UUID     `json:"event_ids"`
	ImageURL   string          `json:"image_url,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

func toProductResponse(p domain.Product) productResponse {
	return productResponse{
		ID:         p.ID,
		MerchantID: p.MerchantID,
		Title:      p.Title,
		Price:      p.Price,
		Sizes:      p.Sizes,
		Inventory:  p.Inventory,
		Active:     p.Active,
		EventIDs:   nonNilIDs(p.EventIDs),
		ImageURL:   p.ImageURL,
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
	}
}

type inventoryRequest struct {
	Size     string `json:"size"`
	Quantity int    `json:"quantity"`
}

type eventRequest struct {
	Name           string           `json:"name"`
	VenueName      string           `json:"venue_name"`
	VenueAddress   string           `json:"venue_address"`
	StartsAt       time.Time        `json:"starts_at"`
	EndsAt         time.Time        `json:"ends_at"`
	Latitude       float64          `json:"latitude"`
	Longitude      float64          `json:"longitude"`
	GeofenceRadius float64          `json:"geofence_radius"`
	Active         *bool            `json:"active"`
	MerchantIDs    []uuid.UUID      `json:"merchant_ids"`
	ProductIDs     []uuid.UUID      `json:"product_ids"`
	Description    string           `json:"description"`
	Capacity       *int             `json:"capacity"`
	TicketPrice    *decimal.Decimal `json:"ticket_price"`
	Category       string           `json:"category"`
}

func (req eventRequest) toDomain(id uuid.UUID) domain.Event {
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	return domain.Event{
		ID:             id,
		Name:           req.Name,
		VenueName:      req.VenueName,
		VenueAddress:   req.VenueAddress,
		StartsAt:       req.StartsAt,
		EndsAt:         req.EndsAt,
		Latitude:       req.Latitude,
		Longitude:      req.Longitude,
		GeofenceRadius: req.GeofenceRadius,
		Active:         active,
		MerchantIDs:    req.MerchantIDs,
		ProductIDs:     req.ProductIDs,
		Description:    req.Description,
		Capacity:       req.Capacity,
		TicketPrice:    req.TicketPrice,
		Category:       req.Category,
	}
}

type eventResponse struct {
	ID             uuid.UUID        `json:"id"`
	Name           string           `json:"name"`
	VenueName      string           `json:"venue_name"`
	VenueAddress   string           `json:"venue_address,omitempty"`
	StartsAt       time.Time        `json:"starts_at"`
	EndsAt         time.Time        `json:"ends_at"`
	Latitude       float64          `json:"latitude"`
	Longitude      float64          `json:"longitude"`
	GeofenceRadius float64          `json:"geofence_radius"`
	Active         bool             `json:"active"`
	MerchantIDs    []uuid.UUID      `json:"merchant_ids"`
	ProductIDs     []uuid.UUID      `json:"product_ids"`
	ImageURL       string           `json:"image_url,omitempty"`
	Description    string           `json:"description,omitempty"`
	Capacity       *int             `json:"capacity,omitempty"`
	TicketPrice    *decimal.Decimal `json:"ticket_price,omitempty"`
	Category       string           `json:"category,omitempty"`
	Distance       *float64         `json:"distance_meters,omitempty"`
}

func toEventResponse(e domain.Event) eventResponse {
	return eventResponse{
		ID:             e.ID,
		Name:           e.Name,
		VenueName:      e.VenueName,
		VenueAddress:   e.VenueAddress,
		StartsAt:       e.StartsAt,
		EndsAt:         e.EndsAt,
		Latitude:       e.Latitude,
		Longitude:      e.Longitude,
		GeofenceRadius: e.GeofenceRadius,
		Active:         e.Active,
		MerchantIDs:    nonNilIDs(e.MerchantIDs),
		ProductIDs:     nonNilIDs(e.ProductIDs),
		ImageURL:       e.ImageURL,
		Description:    e.Description,
		Capacity:       e.Capacity,
		TicketPrice:    e.TicketPrice,
		Category:       e.Category,
	}
}

func toNearbyResponse(n catalog.NearbyEvent) eventResponse {
	resp := toEventResponse(n.Event)
	d := n.Distance
	resp.Distance = &d
	return resp
}

type checkoutRequest struct {
	MerchantID uuid.UUID  `json:"merchant_id"`
	EventID    *uuid.UUID `json:"event_id"`
	Items      []struct {
		ProductID uuid.UUID `json:"product_id"`
		Size      string    `json:"size"`
		Quantity  int       `json:"quantity"`
	} `json:"items"`
}

type scanRequest struct {
	Code string `json:"code"`
}

type orderItemResponse struct {
	ProductID uuid.UUID       `json:"product_id"`
	Size      string          `json:"size"`
	Quantity  int             `json:"quantity"`
	Title     string          `json:"title"`
	Price     decimal.Decimal `json:"price"`
}

type orderResponse struct {
	ID         uuid.UUID           `json:"id"`
	UserID     uuid.UUID           `json:"user_id"`
	MerchantID uuid.UUID           `json:"merchant_id"`
	EventID    *uuid.UUID          `json:"event_id,omitempty"`
	Items      []orderItemResponse `json:"items"`
	Amount     decimal.Decimal     `json:"amount"`
	Status     domain.OrderStatus  `json:"status"`
	PickupCode string              `json:"pickup_code,omitempty"`
	CreatedAt  time.Time           `json:"created_at"`
	UpdatedAt  time.Time           `json:"updated_at"`
}

// toOrderResponse hides the pickup code unless the viewer bought the order.
func toOrderResponse(o domain.Order, showCode bool) orderResponse {
	items := make([]orderItemResponse, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, orderItemResponse{
			ProductID: it.ProductID,
			Size:      it.Size,
			Quantity:  it.Quantity,
			Title:     it.Title,
			Price:     it.Price,
		})
	}
	resp := orderResponse{
		ID:         o.ID,
		UserID:     o.UserID,
		MerchantID: o.MerchantID,
		EventID:    o.EventID,
		Items:      items,
		Amount:     o.Amount,
		Status:     o.Status,
		CreatedAt:  o.CreatedAt,
		UpdatedAt:  o.UpdatedAt,
	}
	if showCode {
		resp.PickupCode = o.PickupCode
	}
	return resp
}

func nonNilIDs(ids []uuid.UUID) []uuid.UUID {
	if ids == nil {
		return []uuid.UUID{}
	}
	return ids
}
