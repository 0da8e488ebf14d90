package domain

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

func (e Event) Validate() error {
	if strings.TrimSpace(e.Name) == "" {
		return errors.Wrap(ErrInvalidInput, "event name is required")
	}
	if strings.TrimSpace(e.VenueName) == "" {
		return errors.Wrap(ErrInvalidInput, "venue name is required")
	}
	if !e.EndsAt.After(e.StartsAt) {
		return errors.Wrap(ErrInvalidInput, "event must end after it starts")
	}
	if e.Latitude < -90 || e.Latitude > 90 || e.Longitude < -180 || e.Longitude > 180 {
		return errors.Wrap(ErrInvalidInput, "coordinates out of range")
	}
	if e.GeofenceRadius < 0 {
		return errors.Wrap(ErrInvalidInput, "geofence radius must not be negative")
	}
	if len(e.MerchantIDs) == 0 {
		return errors.Wrap(ErrInvalidInput, "event needs at least one merchant")
	}
	if e.Capacity != nil && *e.Capacity < 0 {
		return errors.Wrap(ErrInvalidInput, "capacity must not be negative")
	}
	return nil
}

func (e Event) HasMerchant(id uuid.UUID) bool {
	for _, m := range e.MerchantIDs {
		if m == id {
			return true
		}
	}
	return false
}
