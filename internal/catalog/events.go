package catalog

import (
	"context"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/merchpit/internal/domain"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultSearchRadius = 50_000.0
	hydrateParallelism  = 8
)

// CreateEvent stores the event and links its products. The actor is always
// one of the event's merchants.
func (s *Service) CreateEvent(ctx context.Context, actor Actor, e domain.Event) (domain.Event, error) {
	e.ID = uuid.New()
	e.Name = strings.TrimSpace(e.Name)
	e.VenueName = strings.TrimSpace(e.VenueName)
	if !e.HasMerchant(actor.ID) && !actor.Admin {
		e.MerchantIDs = append(e.MerchantIDs, actor.ID)
	}
	if err := e.Validate(); err != nil {
		return domain.Event{}, err
	}
	if err := s.checkLinkable(ctx, actor, e, nil); err != nil {
		return domain.Event{}, err
	}

	now := s.now().UTC()
	e.CreatedAt, e.UpdatedAt = now, now
	if err := s.events.CreateEvent(ctx, e); err != nil {
		return domain.Event{}, errors.Wrap(err, "create event")
	}
	if err := s.products.LinkEvent(ctx, e.ID, linkOwner(actor), e.ProductIDs); err != nil {
		// Undo the document so a retry does not leave an unlinked twin behind.
		if derr := s.events.DeleteEvent(ctx, e.ID); derr != nil {
			s.logger.WithField("event_id", e.ID).WithError(derr).Error("failed to remove event after link failure")
		}
		return domain.Event{}, errors.Wrap(err, "link event products")
	}
	return e, nil
}

// UpdateEvent replaces the event fields. A nil ProductIDs leaves the product
// links as they are; otherwise it sets which of the actor's own products are
// linked. Other co-hosts' links are never touched.
func (s *Service) UpdateEvent(ctx context.Context, actor Actor, e domain.Event) (domain.Event, error) {
	current, err := s.ownedEvent(ctx, actor, e.ID)
	if err != nil {
		return domain.Event{}, err
	}
	linked, err := s.products.ProductIDsForEvent(ctx, e.ID)
	if err != nil {
		return domain.Event{}, errors.Wrap(err, "event products")
	}

	e.Name = strings.TrimSpace(e.Name)
	e.VenueName = strings.TrimSpace(e.VenueName)
	e.ImageURL = current.ImageURL
	e.CreatedAt = current.CreatedAt
	if len(e.MerchantIDs) == 0 {
		e.MerchantIDs = current.MerchantIDs
	}
	if err := e.Validate(); err != nil {
		return domain.Event{}, err
	}
	relink := e.ProductIDs != nil
	if relink {
		if err := s.checkLinkable(ctx, actor, e, linked); err != nil {
			return domain.Event{}, err
		}
	}

	e.UpdatedAt = s.now().UTC()
	if err := s.events.UpdateEvent(ctx, e); err != nil {
		return domain.Event{}, errors.Wrap(err, "update event")
	}
	if relink {
		if err := s.products.LinkEvent(ctx, e.ID, linkOwner(actor), e.ProductIDs); err != nil {
			return domain.Event{}, errors.Wrap(err, "link event products")
		}
		if linked, err = s.products.ProductIDsForEvent(ctx, e.ID); err != nil {
			return domain.Event{}, errors.Wrap(err, "event products")
		}
	}
	e.ProductIDs = linked
	return e, nil
}

// GetEvent returns the event with ProductIDs filled from the product links.
func (s *Service) GetEvent(ctx context.Context, id uuid.UUID) (domain.Event, error) {
	e, err := s.events.GetEvent(ctx, id)
	if err != nil {
		return domain.Event{}, err
	}
	ids, err := s.products.ProductIDsForEvent(ctx, id)
	if err != nil {
		return domain.Event{}, errors.Wrap(err, "event products")
	}
	e.ProductIDs = ids
	return e, nil
}

func (s *Service) ListActiveEvents(ctx context.Context) ([]domain.Event, error) {
	events, err := s.events.ListActiveEvents(ctx)
	if err != nil {
		return nil, err
	}
	return events, s.hydrate(ctx, events)
}

func (s *Service) ListMerchantEvents(ctx context.Context, merchantID uuid.UUID) ([]domain.Event, error) {
	events, err := s.events.ListEventsByMerchant(ctx, merchantID)
	if err != nil {
		return nil, err
	}
	return events, s.hydrate(ctx, events)
}

// ListNearbyEvents returns active events within searchRadius meters of the
// point whose own geofence covers it, nearest first.
func (s *Service) ListNearbyEvents(ctx context.Context, lat, lon, searchRadius float64) ([]NearbyEvent, error) {
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return nil, errors.Wrapf(domain.ErrInvalidInput, "coordinates %f,%f out of range", lat, lon)
	}
	if searchRadius <= 0 {
		searchRadius = DefaultSearchRadius
	}

	found, err := s.events.ListEventsNear(ctx, lat, lon, searchRadius)
	if err != nil {
		return nil, err
	}
	nearby := found[:0]
	for _, n := range found {
		if !n.Event.Active {
			continue
		}
		if n.Event.GeofenceRadius > 0 && n.Distance > n.Event.GeofenceRadius {
			continue
		}
		nearby = append(nearby, n)
	}
	sort.SliceStable(nearby, func(i, j int) bool { return nearby[i].Distance < nearby[j].Distance })
	return nearby, nil
}

// DeleteEvent removes an event in three resumable steps: flag the document,
// detach it from products, drop the document. Calling it again after a
// failure picks up where the previous attempt stopped.
func (s *Service) DeleteEvent(ctx context.Context, actor Actor, id uuid.UUID) error {
	e, err := s.events.GetEvent(ctx, id)
	resuming := errors.Is(err, domain.ErrNotFound)
	if resuming {
		// Hidden events are either gone or flagged by an earlier attempt.
		e, err = s.events.MarkDeleting(ctx, id)
	}
	if err != nil {
		return err
	}
	if !e.HasMerchant(actor.ID) && !actor.Admin {
		return errors.Wrapf(domain.ErrForbidden, "event %s", id)
	}
	if !resuming {
		if _, err := s.events.MarkDeleting(ctx, id); err != nil {
			return errors.Wrap(err, "mark event deleting")
		}
	}
	log := s.logger.WithField("event_id", id)

	if err := s.products.DetachEvent(ctx, id); err != nil {
		log.WithError(err).Error("event delete stopped after marking; retry resumes")
		return errors.Wrap(err, "detach event from products")
	}
	if err := s.events.DeleteEvent(ctx, id); err != nil && !errors.Is(err, domain.ErrNotFound) {
		log.WithError(err).Error("event delete stopped after detaching; retry resumes")
		return errors.Wrap(err, "delete event document")
	}
	log.Info("event deleted")
	return nil
}

func (s *Service) ownedEvent(ctx context.Context, actor Actor, id uuid.UUID) (domain.Event, error) {
	e, err := s.events.GetEvent(ctx, id)
	if err != nil {
		return domain.Event{}, err
	}
	if !e.HasMerchant(actor.ID) && !actor.Admin {
		return domain.Event{}, errors.Wrapf(domain.ErrForbidden, "event %s", id)
	}
	return e, nil
}

// checkLinkable admits products the actor owns whose merchant hosts e.
// Products already in linked may be listed by any co-host; they stay linked.
func (s *Service) checkLinkable(ctx context.Context, actor Actor, e domain.Event, linked []uuid.UUID) error {
	for _, pid := range e.ProductIDs {
		if containsID(linked, pid) {
			continue
		}
		p, err := s.products.GetProduct(ctx, pid)
		if errors.Is(err, domain.ErrNotFound) {
			return errors.Wrapf(domain.ErrInvalidInput, "unknown product %s", pid)
		}
		if err != nil {
			return err
		}
		if p.MerchantID != actor.ID && !actor.Admin {
			return errors.Wrapf(domain.ErrForbidden, "product %s", pid)
		}
		if !e.HasMerchant(p.MerchantID) {
			return errors.Wrapf(domain.ErrInvalidInput, "product %s belongs to a merchant not hosting the event", pid)
		}
	}
	return nil
}

// linkOwner scopes link replacement to the actor's products. Admins manage
// every link.
func linkOwner(actor Actor) uuid.UUID {
	if actor.Admin {
		return uuid.Nil
	}
	return actor.ID
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func (s *Service) hydrate(ctx context.Context, events []domain.Event) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(hydrateParallelism)
	for i := range events {
		i := i
		g.Go(func() error {
			ids, err := s.products.ProductIDsForEvent(gctx, events[i].ID)
			if err != nil {
				return errors.Wrapf(err, "products for event %s", events[i].ID)
			}
			events[i].ProductIDs = ids
			return nil
		})
	}
	return g.Wait()
}
