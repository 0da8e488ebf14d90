package mongo

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/merchpit/internal/catalog"
	"github.com/robertarktes/merchpit/internal/domain"
	"github.com/robertarktes/merchpit/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type EventRepository struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewEventRepository(db *mongo.Database, logger observability.Logger) *EventRepository {
	return &EventRepository{
		coll:   db.Collection("events"),
		logger: logger,
	}
}

type GeoPoint struct {
	Type        string    `bson:"type"`
	Coordinates []float64 `bson:"coordinates"` // [lon, lat]
}

type EventDoc struct {
	ID               string    `bson:"_id"`
	Name             string    `bson:"name"`
	VenueName        string    `bson:"venue_name"`
	VenueAddress     string    `bson:"venue_address"`
	StartsAt         time.Time `bson:"starts_at"`
	EndsAt           time.Time `bson:"ends_at"`
	Location         GeoPoint  `bson:"location"`
	GeofenceRadius   float64   `bson:"geofence_radius"`
	Active           bool      `bson:"active"`
	MerchantIDs      []string  `bson:"merchant_ids"`
	ImageURL         string    `bson:"image_url"`
	Description      string    `bson:"description"`
	Capacity         *int      `bson:"capacity,omitempty"`
	TicketPriceCents *int64    `bson:"ticket_price_cents,omitempty"`
	Category         string    `bson:"category"`
	Deleting         bool      `bson:"deleting"`
	CreatedAt        time.Time `bson:"created_at"`
	UpdatedAt        time.Time `bson:"updated_at"`
}

type nearbyDoc struct {
	EventDoc `bson:",inline"`
	Distance float64 `bson:"distance"`
}

func (c *EventRepository) EnsureIndexes(ctx context.Context) error {
	_, err := c.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "location", Value: "2dsphere"}}},
		{Keys: bson.D{{Key: "merchant_ids", Value: 1}}},
		{Keys: bson.D{{Key: "active", Value: 1}, {Key: "starts_at", Value: 1}}},
	})
	return err
}

func (c *EventRepository) CreateEvent(ctx context.Context, e domain.Event) error {
	_, err := c.coll.InsertOne(ctx, toDoc(e))
	if mongo.IsDuplicateKeyError(err) {
		return errors.Wrap(domain.ErrConflict, "event exists")
	}
	if err != nil {
		c.logger.WithError(err).Error("failed to create event")
		return err
	}
	return nil
}

func (c *EventRepository) UpdateEvent(ctx context.Context, e domain.Event) error {
	doc := toDoc(e)
	result, err := c.coll.UpdateOne(ctx,
		bson.M{"_id": doc.ID, "deleting": bson.M{"$ne": true}},
		bson.M{"$set": bson.M{
			"name":               doc.Name,
			"venue_name":         doc.VenueName,
			"venue_address":      doc.VenueAddress,
			"starts_at":          doc.StartsAt,
			"ends_at":            doc.EndsAt,
			"location":           doc.Location,
			"geofence_radius":    doc.GeofenceRadius,
			"active":             doc.Active,
			"merchant_ids":       doc.MerchantIDs,
			"description":        doc.Description,
			"capacity":           doc.Capacity,
			"ticket_price_cents": doc.TicketPriceCents,
			"category":           doc.Category,
			"updated_at":         doc.UpdatedAt,
		}},
	)
	if err != nil {
		c.logger.WithError(err).Error("failed to update event")
		return err
	}
	if result.MatchedCount == 0 {
		return errors.Wrapf(domain.ErrNotFound, "event %s", e.ID)
	}
	return nil
}

func (c *EventRepository) GetEvent(ctx context.Context, id uuid.UUID) (domain.Event, error) {
	var doc EventDoc
	err := c.coll.FindOne(ctx, bson.M{"_id": id.String(), "deleting": bson.M{"$ne": true}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Event{}, errors.Wrapf(domain.ErrNotFound, "event %s", id)
	}
	if err != nil {
		c.logger.WithError(err).Error("failed to get event")
		return domain.Event{}, err
	}
	return doc.toDomain()
}

func (c *EventRepository) ListActiveEvents(ctx context.Context) ([]domain.Event, error) {
	return c.find(ctx, bson.M{"active": true, "deleting": bson.M{"$ne": true}})
}

func (c *EventRepository) ListEventsByMerchant(ctx context.Context, merchantID uuid.UUID) ([]domain.Event, error) {
	return c.find(ctx, bson.M{"merchant_ids": merchantID.String(), "deleting": bson.M{"$ne": true}})
}

const nearbyLimit = 100

// ListEventsNear runs $geoNear against the 2dsphere index; results are
// ordered by distance and carry it in meters. Only active events whose own
// geofence covers the point count towards the limit.
func (c *EventRepository) ListEventsNear(ctx context.Context, lat, lon, maxDistance float64) ([]catalog.NearbyEvent, error) {
	cursor, err := c.coll.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$geoNear", Value: bson.M{
			"near":          GeoPoint{Type: "Point", Coordinates: []float64{lon, lat}},
			"distanceField": "distance",
			"maxDistance":   maxDistance,
			"spherical":     true,
			"query":         bson.M{"active": true, "deleting": bson.M{"$ne": true}},
		}}},
		{{Key: "$match", Value: bson.M{"$expr": bson.M{"$or": bson.A{
			bson.M{"$lte": bson.A{"$geofence_radius", 0}},
			bson.M{"$lte": bson.A{"$distance", "$geofence_radius"}},
		}}}}},
		{{Key: "$limit", Value: nearbyLimit}},
	})
	if err != nil {
		return nil, err
	}
	var docs []nearbyDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	out := make([]catalog.NearbyEvent, 0, len(docs))
	for _, d := range docs {
		e, err := d.EventDoc.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, catalog.NearbyEvent{Event: e, Distance: d.Distance})
	}
	return out, nil
}

func (c *EventRepository) SetEventImage(ctx context.Context, id uuid.UUID, url string) error {
	result, err := c.coll.UpdateOne(ctx,
		bson.M{"_id": id.String(), "deleting": bson.M{"$ne": true}},
		bson.M{"$set": bson.M{"image_url": url, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return errors.Wrapf(domain.ErrNotFound, "event %s", id)
	}
	return nil
}

func (c *EventRepository) MarkDeleting(ctx context.Context, id uuid.UUID) (domain.Event, error) {
	var doc EventDoc
	err := c.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": id.String()},
		bson.M{"$set": bson.M{"deleting": true, "updated_at": time.Now().UTC()}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Event{}, errors.Wrapf(domain.ErrNotFound, "event %s", id)
	}
	if err != nil {
		return domain.Event{}, err
	}
	return doc.toDomain()
}

func (c *EventRepository) DeleteEvent(ctx context.Context, id uuid.UUID) error {
	result, err := c.coll.DeleteOne(ctx, bson.M{"_id": id.String()})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return errors.Wrapf(domain.ErrNotFound, "event %s", id)
	}
	return nil
}

func (c *EventRepository) find(ctx context.Context, filter bson.M) ([]domain.Event, error) {
	cursor, err := c.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "starts_at", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var docs []EventDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	events := make([]domain.Event, 0, len(docs))
	for _, d := range docs {
		e, err := d.toDomain()
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, nil
}

func toDoc(e domain.Event) EventDoc {
	merchants := make([]string, len(e.MerchantIDs))
	for i, m := range e.MerchantIDs {
		merchants[i] = m.String()
	}
	var price *int64
	if e.TicketPrice != nil {
		cents := domain.ToCents(*e.TicketPrice)
		price = &cents
	}
	return EventDoc{
		ID:               e.ID.String(),
		Name:             e.Name,
		VenueName:        e.VenueName,
		VenueAddress:     e.VenueAddress,
		StartsAt:         e.StartsAt.UTC(),
		EndsAt:           e.EndsAt.UTC(),
		Location:         GeoPoint{Type: "Point", Coordinates: []float64{e.Longitude, e.Latitude}},
		GeofenceRadius:   e.GeofenceRadius,
		Active:           e.Active,
		MerchantIDs:      merchants,
		ImageURL:         e.ImageURL,
		Description:      e.Description,
		Capacity:         e.Capacity,
		TicketPriceCents: price,
		Category:         e.Category,
		CreatedAt:        e.CreatedAt.UTC(),
		UpdatedAt:        e.UpdatedAt.UTC(),
	}
}

func (d EventDoc) toDomain() (domain.Event, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return domain.Event{}, errors.Wrapf(err, "event id %q", d.ID)
	}
	merchants := make([]uuid.UUID, 0, len(d.MerchantIDs))
	for _, m := range d.MerchantIDs {
		mid, err := uuid.Parse(m)
		if err != nil {
			return domain.Event{}, errors.Wrapf(err, "merchant id %q", m)
		}
		merchants = append(merchants, mid)
	}
	e := domain.Event{
		ID:             id,
		Name:           d.Name,
		VenueName:      d.VenueName,
		VenueAddress:   d.VenueAddress,
		StartsAt:       d.StartsAt,
		EndsAt:         d.EndsAt,
		GeofenceRadius: d.GeofenceRadius,
		Active:         d.Active,
		MerchantIDs:    merchants,
		ImageURL:       d.ImageURL,
		Description:    d.Description,
		Capacity:       d.Capacity,
		Category:       d.Category,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
	if len(d.Location.Coordinates) == 2 {
		e.Longitude, e.Latitude = d.Location.Coordinates[0], d.Location.Coordinates[1]
	}
	if d.TicketPriceCents != nil {
		price := domain.FromCents(*d.TicketPriceCents)
		e.TicketPrice = &price
	}
	return e, nil
}
