package domain_test

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/merchpit/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func validProduct() domain.Product {
	return domain.Product{
		ID:         uuid.New(),
		MerchantID: uuid.New(),
		Title:      "Hoodie",
		Price:      decimal.RequireFromString("45.00"),
		Sizes:      []string{"S", "M", "L"},
		Inventory:  map[string]int{"S": 2, "M": 5},
		Active:     true,
	}
}

func TestProductValidate(t *testing.T) {
	assert.NoError(t, validProduct().Validate())

	p := validProduct()
	p.Inventory["XL"] = 1
	assert.True(t, errors.Is(p.Validate(), domain.ErrInvalidInput), "inventory keys must be size labels")

	p = validProduct()
	p.Inventory["S"] = -1
	assert.True(t, errors.Is(p.Validate(), domain.ErrInvalidInput))

	p = validProduct()
	p.Title = "  "
	assert.True(t, errors.Is(p.Validate(), domain.ErrInvalidInput))

	for _, price := range []string{"-1", "0", "0.004", "19.999"} {
		p = validProduct()
		p.Price = decimal.RequireFromString(price)
		assert.True(t, errors.Is(p.Validate(), domain.ErrInvalidInput), "price %s", price)
	}

	p = validProduct()
	p.Price = decimal.RequireFromString("0.01")
	assert.NoError(t, p.Validate())

	p = validProduct()
	p.Sizes = []string{"M", "M"}
	p.Inventory = nil
	assert.True(t, errors.Is(p.Validate(), domain.ErrInvalidInput))
}

func TestProductInventory(t *testing.T) {
	p := validProduct()
	assert.Equal(t, 7, p.TotalInventory())
	assert.Equal(t, 5, p.Available("M"))
	assert.Equal(t, 0, p.Available("L"))
	assert.True(t, p.HasSize("L"))
	assert.False(t, p.HasSize("XL"))
}

func TestEventValidate(t *testing.T) {
	start := time.Date(2026, 7, 4, 18, 0, 0, 0, time.UTC)
	e := domain.Event{
		Name:        "Summer Show",
		VenueName:   "The Hall",
		StartsAt:    start,
		EndsAt:      start.Add(4 * time.Hour),
		Latitude:    40.7,
		Longitude:   -74.0,
		MerchantIDs: []uuid.UUID{uuid.New()},
	}
	assert.NoError(t, e.Validate())

	bad := e
	bad.EndsAt = bad.StartsAt
	assert.True(t, errors.Is(bad.Validate(), domain.ErrInvalidInput), "end must be after start")

	bad = e
	bad.Latitude = 91
	assert.True(t, errors.Is(bad.Validate(), domain.ErrInvalidInput))

	bad = e
	bad.GeofenceRadius = -5
	assert.True(t, errors.Is(bad.Validate(), domain.ErrInvalidInput))

	bad = e
	bad.MerchantIDs = nil
	assert.True(t, errors.Is(bad.Validate(), domain.ErrInvalidInput))

	assert.True(t, e.HasMerchant(e.MerchantIDs[0]))
	assert.False(t, e.HasMerchant(uuid.New()))
}
