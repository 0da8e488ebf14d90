// Package catalog manages what merchants sell and where: products with
// per-size inventory, events with a venue geofence, and their images.
package catalog

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/merchpit/internal/domain"
	"github.com/robertarktes/merchpit/internal/observability"
)

// ProductStore keeps products, inventory and product-event links.
type ProductStore interface {
	CreateProduct(ctx context.Context, p domain.Product) error
	UpdateProduct(ctx context.Context, p domain.Product) error
	GetProduct(ctx context.Context, id uuid.UUID) (domain.Product, error)
	ListProductsByMerchant(ctx context.Context, merchantID uuid.UUID) ([]domain.Product, error)
	ListProductsByEvent(ctx context.Context, eventID uuid.UUID, activeOnly bool) ([]domain.Product, error)
	ProductIDsForEvent(ctx context.Context, eventID uuid.UUID) ([]uuid.UUID, error)
	SetInventory(ctx context.Context, productID uuid.UUID, size string, quantity int) error
	SetProductImage(ctx context.Context, productID uuid.UUID, url string) error
	// LinkEvent makes productIDs exactly the set of owner's products linked
	// to eventID; links to other merchants' products are left alone. A nil
	// owner replaces every link.
	LinkEvent(ctx context.Context, eventID, owner uuid.UUID, productIDs []uuid.UUID) error
	// DetachEvent removes every link to eventID. Detaching twice is not an error.
	DetachEvent(ctx context.Context, eventID uuid.UUID) error
}

// EventStore keeps event documents. Events marked for deletion are invisible
// to GetEvent and every listing.
type EventStore interface {
	CreateEvent(ctx context.Context, e domain.Event) error
	UpdateEvent(ctx context.Context, e domain.Event) error
	GetEvent(ctx context.Context, id uuid.UUID) (domain.Event, error)
	ListActiveEvents(ctx context.Context) ([]domain.Event, error)
	ListEventsByMerchant(ctx context.Context, merchantID uuid.UUID) ([]domain.Event, error)
	ListEventsNear(ctx context.Context, lat, lon, maxDistance float64) ([]NearbyEvent, error)
	SetEventImage(ctx context.Context, id uuid.UUID, url string) error
	// MarkDeleting flags the event and returns it, including when it was
	// already flagged by an earlier attempt.
	MarkDeleting(ctx context.Context, id uuid.UUID) (domain.Event, error)
	DeleteEvent(ctx context.Context, id uuid.UUID) error
}

type BlobStore interface {
	Upload(ctx context.Context, key, contentType string, data []byte) (string, error)
	Delete(ctx context.Context, url string) error
}

type NearbyEvent struct {
	Event    domain.Event
	Distance float64 // meters
}

// Actor is the authenticated caller on whose behalf a change is made.
type Actor struct {
	ID    uuid.UUID
	Admin bool
}

type Service struct {
	products ProductStore
	events   EventStore
	blobs    BlobStore
	logger   observability.Logger
	now      func() time.Time
}

func NewService(products ProductStore, events EventStore, blobs BlobStore, logger observability.Logger) *Service {
	return &Service{products: products, events: events, blobs: blobs, logger: logger, now: time.Now}
}
