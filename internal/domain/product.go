package domain

import (
	"strings"

	"github.com/cockroachdb/errors"
)

func (p Product) Validate() error {
	if strings.TrimSpace(p.Title) == "" {
		return errors.Wrap(ErrInvalidInput, "title is required")
	}
	if !p.Price.IsPositive() {
		return errors.Wrap(ErrInvalidInput, "price must be positive")
	}
	if !p.Price.Equal(p.Price.Round(2)) {
		return errors.Wrapf(ErrInvalidInput, "price %s has more than two decimal places", p.Price)
	}
	if len(p.Sizes) == 0 {
		return errors.Wrap(ErrInvalidInput, "at least one size is required")
	}
	seen := make(map[string]bool, len(p.Sizes))
	for _, s := range p.Sizes {
		if strings.TrimSpace(s) == "" {
			return errors.Wrap(ErrInvalidInput, "size label must not be empty")
		}
		if seen[s] {
			return errors.Wrapf(ErrInvalidInput, "duplicate size %q", s)
		}
		seen[s] = true
	}
	for size, n := range p.Inventory {
		if !seen[size] {
			return errors.Wrapf(ErrInvalidInput, "inventory for unknown size %q", size)
		}
		if n < 0 {
			return errors.Wrapf(ErrInvalidInput, "negative inventory for size %q", size)
		}
	}
	return nil
}

func (p Product) HasSize(size string) bool {
	for _, s := range p.Sizes {
		if s == size {
			return true
		}
	}
	return false
}

func (p Product) Available(size string) int {
	return p.Inventory[size]
}

func (p Product) TotalInventory() int {
	total := 0
	for _, n := range p.Inventory {
		total += n
	}
	return total
}
