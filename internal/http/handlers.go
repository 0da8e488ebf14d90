package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/robertarktes/merchpit/internal/cart"
	"github.com/robertarktes/merchpit/internal/catalog"
	"github.com/robertarktes/merchpit/internal/checkout"
	"github.com/robertarktes/merchpit/internal/domain"
	"github.com/robertarktes/merchpit/internal/observability"
	"github.com/robertarktes/merchpit/internal/pickup"
)

type Catalog interface {
	CreateProduct(ctx context.Context, actor catalog.Actor, p domain.Product) (domain.Product, error)
	UpdateProduct(ctx context.Context, actor catalog.Actor, p domain.Product) (domain.Product, error)
	GetProduct(ctx context.Context, id uuid.UUID) (domain.Product, error)
	ListMerchantProducts(ctx context.Context, merchantID uuid.UUID) ([]domain.Product, error)
	ListEventProducts(ctx context.Context, eventID uuid.UUID) ([]domain.Product, error)
	SetInventory(ctx context.Context, actor catalog.Actor, productID uuid.UUID, size string, quantity int) (domain.Product, error)
	UploadProductImage(ctx context.Context, actor catalog.Actor, productID uuid.UUID, data []byte) (string, error)

	CreateEvent(ctx context.Context, actor catalog.Actor, e domain.Event) (domain.Event, error)
	UpdateEvent(ctx context.Context, actor catalog.Actor, e domain.Event) (domain.Event, error)
	GetEvent(ctx context.Context, id uuid.UUID) (domain.Event, error)
	ListActiveEvents(ctx context.Context) ([]domain.Event, error)
	ListMerchantEvents(ctx context.Context, merchantID uuid.UUID) ([]domain.Event, error)
	ListNearbyEvents(ctx context.Context, lat, lon, searchRadius float64) ([]catalog.NearbyEvent, error)
	DeleteEvent(ctx context.Context, actor catalog.Actor, id uuid.UUID) error
	UploadEventImage(ctx context.Context, actor catalog.Actor, eventID uuid.UUID, data []byte) (string, error)
}

type Orders interface {
	GetOrder(ctx context.Context, id uuid.UUID) (domain.Order, error)
	FetchOrdersForUser(ctx context.Context, userID uuid.UUID) ([]domain.Order, error)
	FetchOrdersForMerchant(ctx context.Context, merchantID uuid.UUID) ([]domain.Order, error)
	Cancel(ctx context.Context, id uuid.UUID) (domain.Order, error)
}

type Checkout interface {
	Checkout(ctx context.Context, req checkout.Request) (domain.Order, error)
}

type Scanner interface {
	Scan(ctx context.Context, merchantID uuid.UUID, code string) (pickup.Result, error)
}

// Pinger reports whether a backing service is reachable.
type Pinger func(ctx context.Context) error

type Handlers struct {
	catalog  Catalog
	orders   Orders
	checkout Checkout
	pickup   Scanner
	pingers  map[string]Pinger
	logger   observability.Logger
}

func NewHandlers(catalog Catalog, orders Orders, checkout Checkout, pickup Scanner, pingers map[string]Pinger, logger observability.Logger) *Handlers {
	return &Handlers{
		catalog:  catalog,
		orders:   orders,
		checkout: checkout,
		pickup:   pickup,
		pingers:  pingers,
		logger:   logger,
	}
}

// Products

func (h *Handlers) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if !h.decode(w, r, &req) {
		return
	}
	p, err := h.catalog.CreateProduct(r.Context(), actorFrom(r), req.toDomain(uuid.Nil))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProductResponse(p))
}

func (h *Handlers) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	p, err := h.catalog.GetProduct(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(p))
}

func (h *Handlers) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req productRequest
	if !h.decode(w, r, &req) {
		return
	}
	p, err := h.catalog.UpdateProduct(r.Context(), actorFrom(r), req.toDomain(id))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(p))
}

func (h *Handlers) SetInventory(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req inventoryRequest
	if !h.decode(w, r, &req) {
		return
	}
	p, err := h.catalog.SetInventory(r.Context(), actorFrom(r), id, req.Size, req.Quantity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(p))
}

func (h *Handlers) UploadProductImage(w http.ResponseWriter, r *http.Request) {
	h.uploadImage(w, r, h.catalog.UploadProductImage)
}

func (h *Handlers) ListMerchantProducts(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	products, err := h.catalog.ListMerchantProducts(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, productList(products))
}

// Events

func (h *Handlers) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if !h.decode(w, r, &req) {
		return
	}
	e, err := h.catalog.CreateEvent(r.Context(), actorFrom(r), req.toDomain(uuid.Nil))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEventResponse(e))
}

func (h *Handlers) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.catalog.ListActiveEvents(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, eventList(events))
}

func (h *Handlers) ListMerchantEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	events, err := h.catalog.ListMerchantEvents(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, eventList(events))
}

func (h *Handlers) ListNearbyEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, err := strconv.ParseFloat(q.Get("lat"), 64)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_input", "invalid lat")
		return
	}
	lon, err := strconv.ParseFloat(q.Get("lon"), 64)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_input", "invalid lon")
		return
	}
	radius := catalog.DefaultSearchRadius
	if raw := q.Get("radius"); raw != "" {
		if radius, err = strconv.ParseFloat(raw, 64); err != nil || radius <= 0 {
			writeJSONError(w, http.StatusBadRequest, "invalid_input", "invalid radius")
			return
		}
	}

	nearby, err := h.catalog.ListNearbyEvents(r.Context(), lat, lon, radius)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]eventResponse, 0, len(nearby))
	for _, n := range nearby {
		out = append(out, toNearbyResponse(n))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) GetEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	e, err := h.catalog.GetEvent(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventResponse(e))
}

func (h *Handlers) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req eventRequest
	if !h.decode(w, r, &req) {
		return
	}
	e, err := h.catalog.UpdateEvent(r.Context(), actorFrom(r), req.toDomain(id))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventResponse(e))
}

func (h *Handlers) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.catalog.DeleteEvent(r.Context(), actorFrom(r), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) UploadEventImage(w http.ResponseWriter, r *http.Request) {
	h.uploadImage(w, r, h.catalog.UploadEventImage)
}

func (h *Handlers) ListEventProducts(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	products, err := h.catalog.ListEventProducts(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, productList(products))
}

// Orders

// Checkout rebuilds the cart server-side from current product data, so the
// client never supplies prices.
func (h *Handlers) Checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if !h.decode(w, r, &req) {
		return
	}
	p, _ := PrincipalFrom(r.Context())

	c := cart.New()
	for _, item := range req.Items {
		product, err := h.catalog.GetProduct(r.Context(), item.ProductID)
		if errors.Is(err, domain.ErrNotFound) {
			err = errors.Wrapf(domain.ErrInvalidInput, "unknown product %s", item.ProductID)
		}
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		if !product.Active {
			h.writeError(w, r, errors.Wrapf(domain.ErrSoldOut, "product %s is not on sale", product.ID))
			return
		}
		if err := c.AddItem(product, item.Size, item.Quantity); err != nil {
			h.writeError(w, r, err)
			return
		}
	}

	order, err := h.checkout.Checkout(r.Context(), checkout.Request{
		Cart:       c,
		UserID:     p.UserID,
		MerchantID: req.MerchantID,
		EventID:    req.EventID,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(order, true))
}

func (h *Handlers) ListOrders(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	orders, err := h.orders.FetchOrdersForUser(r.Context(), p.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orderList(orders, true))
}

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, ok := h.visibleOrder(w, r, true)
	if !ok {
		return
	}
	p, _ := PrincipalFrom(r.Context())
	writeJSON(w, http.StatusOK, toOrderResponse(order, order.UserID == p.UserID))
}

func (h *Handlers) PickupCodeQR(w http.ResponseWriter, r *http.Request) {
	order, ok := h.visibleOrder(w, r, false)
	if !ok {
		return
	}
	png, err := pickup.EncodeQR(order.PickupCode, pickup.DefaultQRSize)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func (h *Handlers) CancelOrder(w http.ResponseWriter, r *http.Request) {
	order, ok := h.visibleOrder(w, r, true)
	if !ok {
		return
	}
	cancelled, err := h.orders.Cancel(r.Context(), order.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	p, _ := PrincipalFrom(r.Context())
	writeJSON(w, http.StatusOK, toOrderResponse(cancelled, cancelled.UserID == p.UserID))
}

func (h *Handlers) ListMerchantOrders(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	p, _ := PrincipalFrom(r.Context())
	if !p.IsAdmin() && p.UserID != id {
		h.writeError(w, r, domain.ErrForbidden)
		return
	}
	orders, err := h.orders.FetchOrdersForMerchant(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orderList(orders, false))
}

func (h *Handlers) ScanPickup(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if !h.decode(w, r, &req) {
		return
	}
	p, _ := PrincipalFrom(r.Context())
	res, err := h.pickup.Scan(r.Context(), p.UserID, req.Code)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := toOrderResponse(res.Order, false)
	writeJSON(w, http.StatusOK, resp)
}

// Health

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(h.pingers))
	status := http.StatusOK
	for name, ping := range h.pingers {
		if err := ping(r.Context()); err != nil {
			requestLogger(r, h.logger).WithError(err).WithField("dependency", name).Warn("readiness check failed")
			checks[name] = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	writeJSON(w, status, checks)
}

// visibleOrder loads the {id} order if the caller may see it: the buyer
// always, and when staff is set also the selling merchant and admins.
func (h *Handlers) visibleOrder(w http.ResponseWriter, r *http.Request, staff bool) (domain.Order, bool) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return domain.Order{}, false
	}
	order, err := h.orders.GetOrder(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return domain.Order{}, false
	}
	p, _ := PrincipalFrom(r.Context())
	allowed := order.UserID == p.UserID ||
		(staff && (p.IsAdmin() || (p.Role == RoleMerchant && order.MerchantID == p.UserID)))
	if !allowed {
		// Not found rather than forbidden, so order IDs cannot be probed.
		h.writeError(w, r, domain.ErrNotFound)
		return domain.Order{}, false
	}
	return order, true
}

func (h *Handlers) uploadImage(w http.ResponseWriter, r *http.Request, upload func(context.Context, catalog.Actor, uuid.UUID, []byte) (string, error)) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, catalog.MaxImageBytes+1))
	if err != nil {
		writeJSONError(w, http.StatusRequestEntityTooLarge, "invalid_input", "image too large")
		return
	}
	url, err := upload(r.Context(), actorFrom(r), id, data)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"image_url": url})
}

func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_input", "malformed request body")
		return false
	}
	return true
}

func (h *Handlers) pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_input", "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

func actorFrom(r *http.Request) catalog.Actor {
	p, _ := PrincipalFrom(r.Context())
	return catalog.Actor{ID: p.UserID, Admin: p.IsAdmin()}
}

func productList(products []domain.Product) []productResponse {
	out := make([]productResponse, 0, len(products))
	for _, p := range products {
		out = append(out, toProductResponse(p))
	}
	return out
}

func eventList(events []domain.Event) []eventResponse {
	out := make([]eventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, toEventResponse(e))
	}
	return out
}

func orderList(orders []domain.Order, showCode bool) []orderResponse {
	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderResponse(o, showCode))
	}
	return out
}
