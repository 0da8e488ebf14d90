package mongo_test

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	adapter "github.com/robertarktes/merchpit/internal/adapters/mongo"
	"github.com/robertarktes/merchpit/internal/domain"
	"github.com/robertarktes/merchpit/internal/observability"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func startDatabase(t *testing.T) *mongo.Database {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping Mongo container test in short mode")
	}
	ctx := context.Background()

	mongoContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForLog("Waiting for connections"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = mongoContainer.Terminate(ctx) })

	uri, err := mongoContainer.Endpoint(ctx, "mongodb")
	if err != nil {
		t.Fatal(err)
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = client.Disconnect(ctx) })
	return client.Database("merchpit_test")
}

func event(name string, lat, lon, radius float64) domain.Event {
	start := time.Date(2026, 8, 1, 18, 0, 0, 0, time.UTC)
	return domain.Event{
		ID:             uuid.New(),
		Name:           name,
		VenueName:      name + " Arena",
		StartsAt:       start,
		EndsAt:         start.Add(4 * time.Hour),
		Latitude:       lat,
		Longitude:      lon,
		GeofenceRadius: radius,
		Active:         true,
		MerchantIDs:    []uuid.UUID{uuid.New()},
		CreatedAt:      start,
		UpdatedAt:      start,
	}
}

func TestEventRepository_GeoAndDeletingMarker(t *testing.T) {
	db := startDatabase(t)
	ctx := context.Background()
	repo := adapter.NewEventRepository(db, observability.NewLogger("error"))
	if err := repo.EnsureIndexes(ctx); err != nil {
		t.Fatal(err)
	}

	near := event("Near", 52.5200, 13.4050, 1000)
	far := event("Far", 48.8566, 2.3522, 1000)
	inactive := event("Closed", 52.5201, 13.4050, 1000)
	inactive.Active = false
	tight := event("Tight Fence", 52.5205, 13.4050, 20)
	for _, e := range []domain.Event{near, far, inactive, tight} {
		if err := repo.CreateEvent(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	found, err := repo.ListEventsNear(ctx, 52.5210, 13.4050, 10_000)
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 1 || found[0].Event.ID != near.ID {
		t.Fatalf("expected only the near active event inside its geofence, got %+v", found)
	}
	if found[0].Distance < 50 || found[0].Distance > 200 {
		t.Errorf("expected roughly 111m, got %f", found[0].Distance)
	}

	if _, err := repo.MarkDeleting(ctx, near.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.GetEvent(ctx, near.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected flagged event to be hidden, got %v", err)
	}
	active, err := repo.ListActiveEvents(ctx)
	if err != nil || len(active) != 2 {
		t.Errorf("expected two visible active events, got %d (%v)", len(active), err)
	}
	again, err := repo.MarkDeleting(ctx, near.ID)
	if err != nil || again.ID != near.ID {
		t.Errorf("expected marking twice to succeed, got %v", err)
	}

	if err := repo.DeleteEvent(ctx, near.ID); err != nil {
		t.Fatal(err)
	}
	if err := repo.DeleteEvent(ctx, near.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected not found on second delete, got %v", err)
	}
}

func TestAuditLogger_Deduplicates(t *testing.T) {
	db := startDatabase(t)
	ctx := context.Background()
	audit := adapter.NewAuditLogger(db, observability.NewLogger("error"))

	entry := adapter.AuditLog{ID: "order.created:1", Action: "order.created", OrderID: "1", OccurredAt: time.Now().UTC()}
	if err := audit.Record(ctx, entry); err != nil {
		t.Fatal(err)
	}
	if err := audit.Record(ctx, entry); err != nil {
		t.Fatalf("expected redelivery to be absorbed, got %v", err)
	}
	logs, err := audit.ForOrder(ctx, "1")
	if err != nil || len(logs) != 1 {
		t.Errorf("expected one audit entry, got %d (%v)", len(logs), err)
	}
}
