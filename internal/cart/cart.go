// Package cart holds a shopper's in-progress selections for one checkout session.
package cart

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/merchpit/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidQuantity  = errors.New("quantity must be positive")
	ErrUnknownSize      = errors.New("size not offered for product")
	ErrExceedsInventory = errors.New("quantity exceeds available inventory")
	ErrLineNotFound     = errors.New("cart line not found")
)

// Line keeps the product as it was when first selected; the inventory ceiling
// is checked against that snapshot.
type Line struct {
	Product  domain.Product
	Size     string
	Quantity int
}

func (l Line) Subtotal() decimal.Decimal {
	return l.Product.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

func (l Line) Available() int {
	return l.Product.Available(l.Size)
}

type Snapshot struct {
	Lines []Line
	Total decimal.Decimal
}

type Cart struct {
	mu        sync.Mutex
	lines     []Line
	total     decimal.Decimal
	observers map[int]func(Snapshot)
	nextObs   int
}

func New() *Cart {
	return &Cart{total: decimal.Zero, observers: make(map[int]func(Snapshot))}
}

func (c *Cart) AddItem(product domain.Product, size string, quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if !product.HasSize(size) {
		return errors.Wrapf(ErrUnknownSize, "%s/%s", product.ID, size)
	}

	c.mu.Lock()
	idx := c.indexOf(product.ID, size)
	if idx >= 0 {
		line := c.lines[idx]
		if line.Quantity+quantity > line.Available() {
			c.mu.Unlock()
			return errors.Wrapf(ErrExceedsInventory, "%s/%s: have %d, adding %d, available %d",
				product.ID, size, line.Quantity, quantity, line.Available())
		}
		c.lines[idx].Quantity += quantity
	} else {
		if quantity > product.Available(size) {
			c.mu.Unlock()
			return errors.Wrapf(ErrExceedsInventory, "%s/%s: requested %d, available %d",
				product.ID, size, quantity, product.Available(size))
		}
		c.lines = append(c.lines, Line{Product: capture(product), Size: size, Quantity: quantity})
	}
	snap := c.changedLocked()
	c.mu.Unlock()

	c.notify(snap)
	return nil
}

func (c *Cart) UpdateQuantity(index, quantity int) error {
	c.mu.Lock()
	if index < 0 || index >= len(c.lines) {
		c.mu.Unlock()
		return errors.Wrapf(ErrLineNotFound, "index %d", index)
	}
	if quantity <= 0 {
		c.mu.Unlock()
		return ErrInvalidQuantity
	}
	if available := c.lines[index].Available(); quantity > available {
		c.mu.Unlock()
		return errors.Wrapf(ErrExceedsInventory, "requested %d, available %d", quantity, available)
	}
	c.lines[index].Quantity = quantity
	snap := c.changedLocked()
	c.mu.Unlock()

	c.notify(snap)
	return nil
}

func (c *Cart) RemoveItem(index int) error {
	c.mu.Lock()
	if index < 0 || index >= len(c.lines) {
		c.mu.Unlock()
		return errors.Wrapf(ErrLineNotFound, "index %d", index)
	}
	c.lines = append(c.lines[:index], c.lines[index+1:]...)
	snap := c.changedLocked()
	c.mu.Unlock()

	c.notify(snap)
	return nil
}

func (c *Cart) Clear() {
	c.mu.Lock()
	c.lines = nil
	snap := c.changedLocked()
	c.mu.Unlock()

	c.notify(snap)
}

func (c *Cart) Total() decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

func (c *Cart) Lines() []Line {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Line(nil), c.lines...)
}

func (c *Cart) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.lines)
}

func (c *Cart) IsEmpty() bool {
	return c.Len() == 0
}

// Items converts the lines into order items carrying title and price snapshots.
func (c *Cart) Items() []domain.OrderItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	items := make([]domain.OrderItem, len(c.lines))
	for i, l := range c.lines {
		items[i] = domain.OrderItem{
			ProductID: l.Product.ID,
			Size:      l.Size,
			Quantity:  l.Quantity,
			Title:     l.Product.Title,
			Price:     l.Product.Price,
		}
	}
	return items
}

// Merchants lists the distinct merchants in line order.
func (c *Cart) Merchants() []uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []uuid.UUID
	seen := make(map[uuid.UUID]bool)
	for _, l := range c.lines {
		if !seen[l.Product.MerchantID] {
			seen[l.Product.MerchantID] = true
			out = append(out, l.Product.MerchantID)
		}
	}
	return out
}

// Subscribe registers fn to receive a snapshot after every mutation.
// Observers run synchronously on the mutating goroutine, outside the cart lock.
func (c *Cart) Subscribe(fn func(Snapshot)) (cancel func()) {
	c.mu.Lock()
	id := c.nextObs
	c.nextObs++
	c.observers[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.observers, id)
		c.mu.Unlock()
	}
}

func capture(p domain.Product) domain.Product {
	inv := make(map[string]int, len(p.Inventory))
	for k, v := range p.Inventory {
		inv[k] = v
	}
	p.Inventory = inv
	p.Sizes = append([]string(nil), p.Sizes...)
	p.EventIDs = append([]uuid.UUID(nil), p.EventIDs...)
	return p
}

func (c *Cart) indexOf(productID uuid.UUID, size string) int {
	for i, l := range c.lines {
		if l.Product.ID == productID && l.Size == size {
			return i
		}
	}
	return -1
}

func (c *Cart) changedLocked() Snapshot {
	total := decimal.Zero
	for _, l := range c.lines {
		total = total.Add(l.Subtotal())
	}
	c.total = total
	return Snapshot{Lines: append([]Line(nil), c.lines...), Total: total}
}

func (c *Cart) notify(snap Snapshot) {
	c.mu.Lock()
	fns := make([]func(Snapshot), 0, len(c.observers))
	for _, fn := range c.observers {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}
