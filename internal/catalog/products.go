package catalog

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/merchpit/internal/domain"
)

func (s *Service) CreateProduct(ctx context.Context, actor Actor, p domain.Product) (domain.Product, error) {
	p.ID = uuid.New()
	p.MerchantID = actor.ID
	p.Title = strings.TrimSpace(p.Title)
	if p.Inventory == nil {
		p.Inventory = make(map[string]int)
	}
	if err := p.Validate(); err != nil {
		return domain.Product{}, err
	}
	for _, eventID := range p.EventIDs {
		e, err := s.requireEvent(ctx, eventID)
		if err != nil {
			return domain.Product{}, err
		}
		if !e.HasMerchant(actor.ID) && !actor.Admin {
			return domain.Product{}, errors.Wrapf(domain.ErrForbidden, "event %s is not hosted by the merchant", eventID)
		}
	}

	now := s.now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	if err := s.products.CreateProduct(ctx, p); err != nil {
		return domain.Product{}, errors.Wrap(err, "create product")
	}
	return p, nil
}

// UpdateProduct replaces the editable fields of a product the actor owns.
// Inventory is changed through SetInventory only.
func (s *Service) UpdateProduct(ctx context.Context, actor Actor, p domain.Product) (domain.Product, error) {
	current, err := s.ownedProduct(ctx, actor, p.ID)
	if err != nil {
		return domain.Product{}, err
	}

	current.Title = strings.TrimSpace(p.Title)
	current.Price = p.Price
	current.Sizes = p.Sizes
	current.Active = p.Active
	for size := range current.Inventory {
		if !current.HasSize(size) {
			delete(current.Inventory, size)
		}
	}
	if err := current.Validate(); err != nil {
		return domain.Product{}, err
	}
	current.UpdatedAt = s.now().UTC()
	if err := s.products.UpdateProduct(ctx, current); err != nil {
		return domain.Product{}, errors.Wrap(err, "update product")
	}
	return current, nil
}

func (s *Service) GetProduct(ctx context.Context, id uuid.UUID) (domain.Product, error) {
	return s.products.GetProduct(ctx, id)
}

func (s *Service) ListMerchantProducts(ctx context.Context, merchantID uuid.UUID) ([]domain.Product, error) {
	return s.products.ListProductsByMerchant(ctx, merchantID)
}

// ListEventProducts returns the active products linked to an event.
func (s *Service) ListEventProducts(ctx context.Context, eventID uuid.UUID) ([]domain.Product, error) {
	if _, err := s.events.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}
	return s.products.ListProductsByEvent(ctx, eventID, true)
}

func (s *Service) SetInventory(ctx context.Context, actor Actor, productID uuid.UUID, size string, quantity int) (domain.Product, error) {
	p, err := s.ownedProduct(ctx, actor, productID)
	if err != nil {
		return domain.Product{}, err
	}
	if !p.HasSize(size) {
		return domain.Product{}, errors.Wrapf(domain.ErrInvalidInput, "unknown size %q", size)
	}
	if quantity < 0 {
		return domain.Product{}, errors.Wrap(domain.ErrInvalidInput, "quantity must not be negative")
	}
	if err := s.products.SetInventory(ctx, productID, size, quantity); err != nil {
		return domain.Product{}, errors.Wrap(err, "set inventory")
	}
	if p.Inventory == nil {
		p.Inventory = make(map[string]int)
	}
	p.Inventory[size] = quantity
	return p, nil
}

func (s *Service) ownedProduct(ctx context.Context, actor Actor, id uuid.UUID) (domain.Product, error) {
	p, err := s.products.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	if p.MerchantID != actor.ID && !actor.Admin {
		return domain.Product{}, errors.Wrapf(domain.ErrForbidden, "product %s", id)
	}
	return p, nil
}

func (s *Service) requireEvent(ctx context.Context, id uuid.UUID) (domain.Event, error) {
	e, err := s.events.GetEvent(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Event{}, errors.Wrapf(domain.ErrInvalidInput, "unknown event %s", id)
	}
	return e, err
}
