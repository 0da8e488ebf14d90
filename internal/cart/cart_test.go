package cart_test

import (
	"math/rand"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/merchpit/internal/cart"
	"github.com/robertarktes/merchpit/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func product(price string, inventory map[string]int) domain.Product {
	sizes := make([]string, 0, len(inventory))
	for s := range inventory {
		sizes = append(sizes, s)
	}
	return domain.Product{
		ID:         uuid.New(),
		MerchantID: uuid.New(),
		Title:      "Tee",
		Price:      decimal.RequireFromString(price),
		Sizes:      sizes,
		Inventory:  inventory,
		Active:     true,
	}
}

func TestAddItem_OversellRejected(t *testing.T) {
	c := cart.New()
	p := product("20.00", map[string]int{"M": 1})

	require.NoError(t, c.AddItem(p, "M", 1))
	err := c.AddItem(p, "M", 1)
	assert.True(t, errors.Is(err, cart.ErrExceedsInventory))

	lines := c.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, 1, lines[0].Quantity)
	assert.True(t, c.Total().Equal(decimal.RequireFromString("20.00")))
}

func TestAddItem_MergesSameProductAndSize(t *testing.T) {
	c := cart.New()
	p := product("12.50", map[string]int{"S": 5, "L": 2})

	require.NoError(t, c.AddItem(p, "S", 2))
	require.NoError(t, c.AddItem(p, "S", 3))
	require.NoError(t, c.AddItem(p, "L", 1))

	lines := c.Lines()
	require.Len(t, lines, 2)
	assert.Equal(t, 5, lines[0].Quantity)
	assert.Equal(t, 1, lines[1].Quantity)
	assert.True(t, c.Total().Equal(decimal.RequireFromString("75.00")), "total %s", c.Total())
}

func TestAddItem_Rejections(t *testing.T) {
	c := cart.New()
	p := product("10", map[string]int{"M": 3})

	assert.True(t, errors.Is(c.AddItem(p, "M", 0), cart.ErrInvalidQuantity))
	assert.True(t, errors.Is(c.AddItem(p, "XXL", 1), cart.ErrUnknownSize))
	assert.True(t, errors.Is(c.AddItem(p, "M", 4), cart.ErrExceedsInventory))
	assert.True(t, c.IsEmpty())
}

func TestAddItem_CeilingUsesCapturedSnapshot(t *testing.T) {
	c := cart.New()
	p := product("10", map[string]int{"M": 2})
	require.NoError(t, c.AddItem(p, "M", 1))

	p.Inventory["M"] = 50
	assert.True(t, errors.Is(c.AddItem(p, "M", 5), cart.ErrExceedsInventory))
	assert.Equal(t, 1, c.Lines()[0].Quantity)
}

func TestUpdateQuantity(t *testing.T) {
	c := cart.New()
	p := product("8.25", map[string]int{"M": 4})
	require.NoError(t, c.AddItem(p, "M", 1))

	require.NoError(t, c.UpdateQuantity(0, 4))
	assert.True(t, c.Total().Equal(decimal.RequireFromString("33.00")))

	assert.True(t, errors.Is(c.UpdateQuantity(0, 5), cart.ErrExceedsInventory))
	assert.True(t, errors.Is(c.UpdateQuantity(0, 0), cart.ErrInvalidQuantity))
	assert.True(t, errors.Is(c.UpdateQuantity(3, 1), cart.ErrLineNotFound))
	assert.Equal(t, 4, c.Lines()[0].Quantity)
}

func TestRemoveAndClear(t *testing.T) {
	c := cart.New()
	a := product("5.00", map[string]int{"OS": 10})
	b := product("3.10", map[string]int{"OS": 10})
	require.NoError(t, c.AddItem(a, "OS", 2))
	require.NoError(t, c.AddItem(b, "OS", 1))

	require.NoError(t, c.RemoveItem(0))
	assert.Equal(t, 1, c.Len())
	assert.True(t, c.Total().Equal(decimal.RequireFromString("3.10")))
	assert.True(t, errors.Is(c.RemoveItem(1), cart.ErrLineNotFound))

	c.Clear()
	assert.True(t, c.IsEmpty())
	assert.True(t, c.Total().IsZero())
}

func TestItemsAndMerchants(t *testing.T) {
	c := cart.New()
	p := product("20.00", map[string]int{"M": 3})
	require.NoError(t, c.AddItem(p, "M", 2))

	items := c.Items()
	require.Len(t, items, 1)
	assert.Equal(t, p.ID, items[0].ProductID)
	assert.Equal(t, "M", items[0].Size)
	assert.Equal(t, 2, items[0].Quantity)
	assert.Equal(t, "Tee", items[0].Title)
	assert.True(t, items[0].Price.Equal(p.Price))
	assert.Equal(t, []uuid.UUID{p.MerchantID}, c.Merchants())
}

func TestSubscribe(t *testing.T) {
	c := cart.New()
	p := product("2.00", map[string]int{"M": 5})

	var totals []string
	cancel := c.Subscribe(func(s cart.Snapshot) {
		totals = append(totals, s.Total.StringFixed(2))
	})
	require.NoError(t, c.AddItem(p, "M", 1))
	require.NoError(t, c.UpdateQuantity(0, 3))
	_ = c.AddItem(p, "M", 10)
	cancel()
	c.Clear()

	assert.Equal(t, []string{"2.00", "6.00"}, totals)
}

// Random walks over the public operations must keep both the ceiling and the
// total invariants.
func TestRandomOperations_Invariants(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	products := []domain.Product{
		product("19.99", map[string]int{"S": 2, "M": 3}),
		product("0.10", map[string]int{"OS": 7}),
		product("5.55", map[string]int{"L": 1}),
	}
	ceiling := map[string]int{}
	for _, p := range products {
		for s, n := range p.Inventory {
			ceiling[p.ID.String()+s] = n
		}
	}

	c := cart.New()
	for i := 0; i < 2000; i++ {
		switch rng.Intn(4) {
		case 0, 1:
			p := products[rng.Intn(len(products))]
			size := p.Sizes[rng.Intn(len(p.Sizes))]
			_ = c.AddItem(p, size, rng.Intn(3)+1)
		case 2:
			if n := c.Len(); n > 0 {
				_ = c.UpdateQuantity(rng.Intn(n), rng.Intn(5))
			}
		case 3:
			if n := c.Len(); n > 0 && rng.Intn(3) == 0 {
				_ = c.RemoveItem(rng.Intn(n))
			}
		}

		want := decimal.Zero
		for _, l := range c.Lines() {
			require.LessOrEqual(t, l.Quantity, ceiling[l.Product.ID.String()+l.Size])
			require.Greater(t, l.Quantity, 0)
			want = want.Add(l.Product.Price.Mul(decimal.NewFromInt(int64(l.Quantity))))
		}
		require.True(t, want.Equal(c.Total()), "step %d: total %s want %s", i, c.Total(), want)
	}
}
