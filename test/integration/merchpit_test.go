package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/robertarktes/merchpit/internal/adapters/crdb"
	mongoadapter "github.com/robertarktes/merchpit/internal/adapters/mongo"
	"github.com/robertarktes/merchpit/internal/adapters/rabbit"
	redisadapter "github.com/robertarktes/merchpit/internal/adapters/redis"
	"github.com/robertarktes/merchpit/internal/catalog"
	"github.com/robertarktes/merchpit/internal/checkout"
	httphandler "github.com/robertarktes/merchpit/internal/http"
	"github.com/robertarktes/merchpit/internal/idempotency"
	"github.com/robertarktes/merchpit/internal/observability"
	"github.com/robertarktes/merchpit/internal/orders"
	"github.com/robertarktes/merchpit/internal/outbox"
	"github.com/robertarktes/merchpit/internal/payment"
	"github.com/robertarktes/merchpit/internal/pickup"
	"github.com/robertarktes/merchpit/internal/rateLimit"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const jwtSecret = "integration-secret"

func startContainer(t *testing.T, req testcontainers.ContainerRequest, port string) string {
	t.Helper()
	ctx := context.Background()
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(ctx) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	mapped, err := c.MappedPort(ctx, nat.Port(port))
	require.NoError(t, err)
	return host + ":" + mapped.Port()
}

type client struct {
	t    *testing.T
	base string
}

func (c client) call(method, path string, user uuid.UUID, role string, body interface{}, out interface{}) int {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, c.base+path, &buf)
	require.NoError(c.t, err)
	token, err := httphandler.IssueToken(jwtSecret, user, role, time.Minute)
	require.NoError(c.t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	if method == http.MethodPost {
		req.Header.Set("Idempotency-Key", uuid.NewString())
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		require.NoError(c.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestIntegration_CheckoutPickupAndEventDeletion(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()

	crdbAddr := startContainer(t, testcontainers.ContainerRequest{
		Image:        "cockroachdb/cockroach:v24.1.1",
		Cmd:          []string{"start-single-node", "--insecure"},
		ExposedPorts: []string{"26257/tcp", "8080/tcp"},
		WaitingFor:   wait.ForHTTP("/health?ready=1").WithPort("8080"),
	}, "26257")
	mongoAddr := startContainer(t, testcontainers.ContainerRequest{
		Image:        "mongo:7",
		ExposedPorts: []string{"27017/tcp"},
		WaitingFor:   wait.ForLog("Waiting for connections"),
	}, "27017")
	redisAddr := startContainer(t, testcontainers.ContainerRequest{
		Image:        "redis:7",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForExec([]string{"redis-cli", "ping"}),
	}, "6379")
	rabbitAddr := startContainer(t, testcontainers.ContainerRequest{
		Image:        "rabbitmq:3.13-management",
		ExposedPorts: []string{"5672/tcp", "15672/tcp"},
		WaitingFor:   wait.ForLog("Server startup complete"),
	}, "5672")

	logger := observability.NewLogger("error")

	pool, err := pgxpool.New(ctx, fmt.Sprintf("postgresql://root@%s/defaultdb?sslmode=disable", crdbAddr))
	require.NoError(t, err)
	defer pool.Close()
	crdbRepo := crdb.NewRepository(pool)
	require.NoError(t, crdbRepo.Migrate(ctx))

	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI("mongodb://"+mongoAddr))
	require.NoError(t, err)
	defer mongoClient.Disconnect(ctx)
	eventRepo := mongoadapter.NewEventRepository(mongoClient.Database("merchpit_it"), logger)
	require.NoError(t, eventRepo.EnsureIndexes(ctx))

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: redisAddr})
	defer redisClient.Close()
	redisCache := redisadapter.NewCache(redisClient, time.Minute)
	idemp := idempotency.NewIdempotency(redisadapter.NewIdempotency(redisClient), time.Hour)

	rabbitConn, err := amqp.Dial("amqp://guest:guest@" + rabbitAddr + "/")
	require.NoError(t, err)
	defer rabbitConn.Close()
	rabbitPub, err := rabbit.NewPublisher(rabbitConn)
	require.NoError(t, err)
	consumer, err := rabbit.NewConsumer(rabbitConn, "merchpit.it", "order.#", 10)
	require.NoError(t, err)
	deliveries, err := consumer.Consume(ctx)
	require.NoError(t, err)

	manager := orders.NewManager(crdbRepo, redisCache, logger)
	processor := payment.NewProcessor(payment.NewStubGateway(5*time.Millisecond, 10*time.Millisecond), time.Second, logger)
	handlers := httphandler.NewHandlers(
		catalog.NewService(crdbRepo, eventRepo, nil, logger),
		manager,
		checkout.NewService(processor, manager, logger),
		pickup.NewVerifier(manager, redisCache, time.Second, logger),
		map[string]httphandler.Pinger{"crdb": crdbRepo.Ping},
		logger,
	)
	srv := httptest.NewServer(httphandler.SetupRouter(handlers, httphandler.RouterConfig{
		JWTSecret:   jwtSecret,
		UserRate:    1000,
		IPRate:      1000,
		RateLimiter: rateLimit.NewRateLimiter(redisClient, logger),
		Idempotency: idemp,
		Logger:      logger,
	}))
	defer srv.Close()
	api := client{t: t, base: srv.URL}

	merchant := uuid.New()
	fan := uuid.New()

	var product struct {
		ID uuid.UUID `json:"id"`
	}
	status := api.call(http.MethodPost, "/v1/products", merchant, httphandler.RoleMerchant, map[string]interface{}{
		"title": "Tour Tee", "price": "20.00", "sizes": []string{"S", "M"}, "inventory": map[string]int{"M": 2},
	}, &product)
	require.Equal(t, http.StatusCreated, status)

	var event struct {
		ID         uuid.UUID   `json:"id"`
		ProductIDs []uuid.UUID `json:"product_ids"`
	}
	status = api.call(http.MethodPost, "/v1/events", merchant, httphandler.RoleMerchant, map[string]interface{}{
		"name": "Arena Night", "venue_name": "Arena",
		"starts_at": time.Now().Add(24 * time.Hour), "ends_at": time.Now().Add(28 * time.Hour),
		"latitude": 52.5200, "longitude": 13.4050, "geofence_radius": 500,
		"product_ids": []uuid.UUID{product.ID},
	}, &event)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, []uuid.UUID{product.ID}, event.ProductIDs)

	var nearby []struct {
		ID uuid.UUID `json:"id"`
	}
	require.Equal(t, http.StatusOK, api.call(http.MethodGet, "/v1/events/nearby?lat=52.5201&lon=13.4051", fan, httphandler.RoleFan, nil, &nearby))
	require.Len(t, nearby, 1)
	assert.Equal(t, event.ID, nearby[0].ID)

	var order struct {
		ID         uuid.UUID       `json:"id"`
		Amount     decimal.Decimal `json:"amount"`
		PickupCode string          `json:"pickup_code"`
		Status     string          `json:"status"`
	}
	status = api.call(http.MethodPost, "/v1/checkout", fan, httphandler.RoleFan, map[string]interface{}{
		"merchant_id": merchant, "event_id": event.ID,
		"items": []map[string]interface{}{{"product_id": product.ID, "size": "M", "quantity": 2}},
	}, &order)
	require.Equal(t, http.StatusCreated, status)
	assert.True(t, decimal.RequireFromString("40.00").Equal(order.Amount))
	assert.Equal(t, "pending_pickup", order.Status)

	status = api.call(http.MethodPost, "/v1/checkout", uuid.New(), httphandler.RoleFan, map[string]interface{}{
		"merchant_id": merchant,
		"items":       []map[string]interface{}{{"product_id": product.ID, "size": "M", "quantity": 1}},
	}, nil)
	assert.Equal(t, http.StatusConflict, status, "stock is exhausted")

	n, err := outbox.NewPublisher(crdbRepo, rabbitPub, logger).PublishBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	select {
	case d := <-deliveries:
		assert.Equal(t, "order.created", d.RoutingKey)
		var evt crdb.OrderEvent
		require.NoError(t, json.Unmarshal(d.Body, &evt))
		assert.Equal(t, order.ID, evt.OrderID)
		require.NoError(t, d.Ack(false))
	case <-time.After(10 * time.Second):
		t.Fatal("order.created was not delivered")
	}

	var picked struct {
		Status string `json:"status"`
	}
	status = api.call(http.MethodPost, "/v1/pickups/scan", merchant, httphandler.RoleMerchant, map[string]string{"code": order.PickupCode}, &picked)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "picked_up", picked.Status)

	status = api.call(http.MethodPost, "/v1/pickups/scan", merchant, httphandler.RoleMerchant, map[string]string{"code": order.PickupCode}, nil)
	assert.Equal(t, http.StatusTooManyRequests, status, "inside the scan cooldown")

	require.Equal(t, http.StatusNoContent, api.call(http.MethodDelete, "/v1/events/"+event.ID.String(), merchant, httphandler.RoleMerchant, nil, nil))
	assert.Equal(t, http.StatusNotFound, api.call(http.MethodGet, "/v1/events/"+event.ID.String(), fan, httphandler.RoleFan, nil, nil))

	var still struct {
		EventIDs []uuid.UUID `json:"event_ids"`
	}
	require.Equal(t, http.StatusOK, api.call(http.MethodGet, "/v1/products/"+product.ID.String(), fan, httphandler.RoleFan, nil, &still))
	assert.Empty(t, still.EventIDs)
}
