package catalog_test

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/merchpit/internal/catalog"
	"github.com/robertarktes/merchpit/internal/domain"
)

type memProducts struct {
	mu        sync.Mutex
	products  map[uuid.UUID]domain.Product
	links     map[uuid.UUID]map[uuid.UUID]bool // event -> products
	failLink  error
	failImage error
	detachErr error
}

func newMemProducts() *memProducts {
	return &memProducts{products: map[uuid.UUID]domain.Product{}, links: map[uuid.UUID]map[uuid.UUID]bool{}}
}

func (m *memProducts) CreateProduct(ctx context.Context, p domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[p.ID] = p
	for _, e := range p.EventIDs {
		if m.links[e] == nil {
			m.links[e] = map[uuid.UUID]bool{}
		}
		m.links[e][p.ID] = true
	}
	return nil
}

func (m *memProducts) UpdateProduct(ctx context.Context, p domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[p.ID]; !ok {
		return domain.ErrNotFound
	}
	m.products[p.ID] = p
	return nil
}

func (m *memProducts) GetProduct(ctx context.Context, id uuid.UUID) (domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return domain.Product{}, domain.ErrNotFound
	}
	p.Inventory = copyInventory(p.Inventory)
	p.EventIDs = nil
	for e, ps := range m.links {
		if ps[id] {
			p.EventIDs = append(p.EventIDs, e)
		}
	}
	return p, nil
}

func (m *memProducts) ListProductsByMerchant(ctx context.Context, merchantID uuid.UUID) ([]domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Product
	for _, p := range m.products {
		if p.MerchantID == merchantID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memProducts) ListProductsByEvent(ctx context.Context, eventID uuid.UUID, activeOnly bool) ([]domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Product
	for id := range m.links[eventID] {
		p := m.products[id]
		if activeOnly && !p.Active {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (m *memProducts) ProductIDsForEvent(ctx context.Context, eventID uuid.UUID) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []uuid.UUID
	for id := range m.links[eventID] {
		out = append(out, id)
	}
	return out, nil
}

func (m *memProducts) SetInventory(ctx context.Context, productID uuid.UUID, size string, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.products[productID]
	p.Inventory = copyInventory(p.Inventory)
	p.Inventory[size] = quantity
	m.products[productID] = p
	return nil
}

func (m *memProducts) SetProductImage(ctx context.Context, productID uuid.UUID, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failImage != nil {
		return m.failImage
	}
	p := m.products[productID]
	p.ImageURL = url
	m.products[productID] = p
	return nil
}

func (m *memProducts) LinkEvent(ctx context.Context, eventID, owner uuid.UUID, productIDs []uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failLink != nil {
		return m.failLink
	}
	owned := func(id uuid.UUID) bool {
		p, ok := m.products[id]
		return ok && (owner == uuid.Nil || p.MerchantID == owner)
	}
	set := m.links[eventID]
	if set == nil {
		set = map[uuid.UUID]bool{}
	}
	for id := range set {
		if owned(id) {
			delete(set, id)
		}
	}
	for _, id := range productIDs {
		if owned(id) {
			set[id] = true
		}
	}
	m.links[eventID] = set
	return nil
}

func (m *memProducts) DetachEvent(ctx context.Context, eventID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.detachErr != nil {
		return m.detachErr
	}
	delete(m.links, eventID)
	return nil
}

func (m *memProducts) linked(eventID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.links[eventID])
}

func copyInventory(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

type eventDoc struct {
	event    domain.Event
	deleting bool
}

type memEvents struct {
	mu       sync.Mutex
	docs     map[uuid.UUID]*eventDoc
	near     []catalog.NearbyEvent
	failDrop error
}

func newMemEvents() *memEvents {
	return &memEvents{docs: map[uuid.UUID]*eventDoc{}}
}

func (m *memEvents) CreateEvent(ctx context.Context, e domain.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[e.ID] = &eventDoc{event: e}
	return nil
}

func (m *memEvents) UpdateEvent(ctx context.Context, e domain.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[e.ID]
	if !ok || d.deleting {
		return domain.ErrNotFound
	}
	d.event = e
	return nil
}

func (m *memEvents) GetEvent(ctx context.Context, id uuid.UUID) (domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok || d.deleting {
		return domain.Event{}, domain.ErrNotFound
	}
	return d.event, nil
}

func (m *memEvents) ListActiveEvents(ctx context.Context) ([]domain.Event, error) {
	return m.list(func(e domain.Event) bool { return e.Active }), nil
}

func (m *memEvents) ListEventsByMerchant(ctx context.Context, merchantID uuid.UUID) ([]domain.Event, error) {
	return m.list(func(e domain.Event) bool { return e.HasMerchant(merchantID) }), nil
}

func (m *memEvents) ListEventsNear(ctx context.Context, lat, lon, maxDistance float64) ([]catalog.NearbyEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []catalog.NearbyEvent
	for _, n := range m.near {
		if n.Distance <= maxDistance {
			out = append(out, n)
		}
	}
	return out, nil
}

func (m *memEvents) SetEventImage(ctx context.Context, id uuid.UUID, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[id].event.ImageURL = url
	return nil
}

func (m *memEvents) MarkDeleting(ctx context.Context, id uuid.UUID) (domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return domain.Event{}, domain.ErrNotFound
	}
	d.deleting = true
	return d.event, nil
}

func (m *memEvents) DeleteEvent(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failDrop != nil {
		return m.failDrop
	}
	delete(m.docs, id)
	return nil
}

func (m *memEvents) state(id uuid.UUID) (exists, deleting bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return false, false
	}
	return true, d.deleting
}

func (m *memEvents) list(keep func(domain.Event) bool) []domain.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Event
	for _, d := range m.docs {
		if !d.deleting && keep(d.event) {
			out = append(out, d.event)
		}
	}
	return out
}

type memBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	fail    error
}

func newMemBlobs() *memBlobs {
	return &memBlobs{objects: map[string][]byte{}}
}

func (b *memBlobs) Upload(ctx context.Context, key, contentType string, data []byte) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail != nil {
		return "", b.fail
	}
	url := "https://cdn.test/" + key
	b.objects[url] = data
	return url, nil
}

func (b *memBlobs) Delete(ctx context.Context, url string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.objects[url]; !ok {
		return errors.Newf("no object %s", url)
	}
	delete(b.objects, url)
	return nil
}

func (b *memBlobs) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.objects)
}
