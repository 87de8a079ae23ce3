// Package cart holds the authoritative cart state: line items with their
// discount and tax associations, the order-level selection, and snapshots.
package cart

import (
	"log/slog"
	"slices"
	"sync"

	"square-pos/internal/model"
	"square-pos/internal/pricing"
)

// Store is the cart's line items behind a synchronous mutation API.
//
// Mutations are serialized. After every mutation that changes state,
// subscribers are called with a deep copy of the items, in mutation order.
// Subscribers run under the store lock and must not call back into the Store.
type Store struct {
	mu        sync.Mutex
	items     []model.CartItem
	observers observers[[]model.CartItem]
	logger    *slog.Logger
}

// NewStore creates an empty cart store.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{logger: logger}
}

// Subscribe registers fn to be called after each mutation.
func (s *Store) Subscribe(fn func(items []model.CartItem)) (unsubscribe func()) {
	return s.observers.subscribe(fn)
}

// Items returns a deep copy of the cart's items in insertion order.
func (s *Store) Items() []model.CartItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneItems(s.items)
}

// Item returns a copy of the item with the given id.
func (s *Store) Item(id string) (model.CartItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.indexOf(id); i >= 0 {
		return s.items[i].Clone(), true
	}
	return model.CartItem{}, false
}

// Len returns the number of distinct line items.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Add puts item in the cart. Adding an id that is already present
// increases that line's quantity instead of creating a second line.
func (s *Store) Add(item model.CartItem) {
	qty := max(item.Quantity, 1)

	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.indexOf(item.ID); i >= 0 {
		s.items[i].Quantity += qty
		s.logger.Debug("cart quantity increased", "item_id", item.ID, "quantity", s.items[i].Quantity)
	} else {
		added := item.Clone()
		added.Quantity = qty
		s.items = append(s.items, added)
		s.logger.Debug("cart item added", "item_id", item.ID, "variation_id", item.VariationID)
	}
	s.emit()
}

// Remove deletes the item with the given id.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return model.NewNotFoundError("cart item")
	}
	s.items = slices.Delete(s.items, i, i+1)
	s.emit()
	return nil
}

// UpdateQuantity sets an item's quantity. Zero or less removes the item.
func (s *Store) UpdateQuantity(id string, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return model.NewNotFoundError("cart item")
	}
	if qty <= 0 {
		s.items = slices.Delete(s.items, i, i+1)
	} else {
		s.items[i].Quantity = qty
	}
	s.emit()
	return nil
}

// Clear empties the cart.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.items) == 0 {
		return
	}
	s.items = nil
	s.emit()
}

// Replace swaps in a new item list, e.g. when restoring a snapshot.
func (s *Store) Replace(items []model.CartItem) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = cloneItems(items)
	s.emit()
}

// === Item-level selections ===

// ToggleDiscount applies d to the item, or removes it if a discount with
// the same name is already applied.
func (s *Store) ToggleDiscount(id string, d model.Discount) error {
	return s.update(id, func(item *model.CartItem) {
		if model.HasDiscountNamed(item.AppliedDiscounts, d.Name) {
			item.AppliedDiscounts = slices.DeleteFunc(item.AppliedDiscounts, func(x model.Discount) bool {
				return x.Name == d.Name
			})
			return
		}
		item.AppliedDiscounts = append(item.AppliedDiscounts, d)
	})
}

// ToggleTaxRate applies t to the item, or removes it if the same tax
// (name and numeric percentage) is already applied.
func (s *Store) ToggleTaxRate(id string, t model.TaxRate) error {
	return s.update(id, func(item *model.CartItem) {
		if model.HasTax(item.AppliedTaxRates, t) {
			item.AppliedTaxRates = slices.DeleteFunc(item.AppliedTaxRates, t.SameAs)
			return
		}
		item.AppliedTaxRates = append(item.AppliedTaxRates, t)
	})
}

// ApplyItemDiscount sets the legacy single-slot discount.
func (s *Store) ApplyItemDiscount(id string, d model.Discount) error {
	return s.update(id, func(item *model.CartItem) {
		item.ItemDiscount = &d
	})
}

// RemoveItemDiscount clears the legacy single-slot discount.
func (s *Store) RemoveItemDiscount(id string) error {
	return s.update(id, func(item *model.CartItem) {
		item.ItemDiscount = nil
	})
}

// SetTaxable marks the item taxable under the legacy single-slot rate.
func (s *Store) SetTaxable(id string, taxable bool) error {
	return s.update(id, func(item *model.CartItem) {
		item.IsTaxable = taxable
	})
}

// SetItemTaxRate sets the legacy single-slot tax rate; nil clears it.
func (s *Store) SetItemTaxRate(id string, rate *float64) error {
	return s.update(id, func(item *model.CartItem) {
		if rate == nil {
			item.ItemTaxRate = nil
			return
		}
		r := *rate
		item.ItemTaxRate = &r
	})
}

// === Order-level opt-outs ===

// ExcludeOrderDiscount records (exclude=true) or withdraws the item's
// opt-out from the order-level discount with the given name.
func (s *Store) ExcludeOrderDiscount(id, name string, exclude bool) error {
	return s.update(id, func(item *model.CartItem) {
		has := slices.Contains(item.ExcludedOrderDiscountNames, name)
		switch {
		case exclude && !has:
			item.ExcludedOrderDiscountNames = append(item.ExcludedOrderDiscountNames, name)
		case !exclude && has:
			item.ExcludedOrderDiscountNames = slices.DeleteFunc(item.ExcludedOrderDiscountNames, func(n string) bool {
				return n == name
			})
		}
	})
}

// ExcludeOrderTaxRate records or withdraws the item's opt-out from the
// order-level tax t, matched by name and numeric percentage.
func (s *Store) ExcludeOrderTaxRate(id string, t model.TaxRate, exclude bool) error {
	return s.update(id, func(item *model.CartItem) {
		has := model.HasTax(item.ExcludedOrderTaxRates, t)
		switch {
		case exclude && !has:
			item.ExcludedOrderTaxRates = append(item.ExcludedOrderTaxRates, t)
		case !exclude && has:
			item.ExcludedOrderTaxRates = slices.DeleteFunc(item.ExcludedOrderTaxRates, t.SameAs)
		}
	})
}

// PromoteOrderDiscount applies the order-level discount d at item level to
// every item except exceptID, leaving each item's effective pricing unchanged.
func (s *Store) PromoteOrderDiscount(exceptID string, d model.Discount) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.items {
		if s.items[i].ID == exceptID {
			continue
		}
		s.items[i] = pricing.PromoteDiscount(s.items[i], d)
	}
	s.emit()
}

// PromoteOrderTax is PromoteOrderDiscount for the order-level tax t.
func (s *Store) PromoteOrderTax(exceptID string, t model.TaxRate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.items {
		if s.items[i].ID == exceptID {
			continue
		}
		s.items[i] = pricing.PromoteTax(s.items[i], t)
	}
	s.emit()
}

// update applies fn to the item with the given id and notifies subscribers.
func (s *Store) update(id string, fn func(item *model.CartItem)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return model.NewNotFoundError("cart item")
	}
	fn(&s.items[i])
	s.emit()
	return nil
}

func (s *Store) indexOf(id string) int {
	return slices.IndexFunc(s.items, func(item model.CartItem) bool {
		return item.ID == id
	})
}

// emit must be called with s.mu held.
func (s *Store) emit() {
	s.observers.notify(cloneItems(s.items))
}

func cloneItems(items []model.CartItem) []model.CartItem {
	out := make([]model.CartItem, len(items))
	for i := range items {
		out[i] = items[i].Clone()
	}
	return out
}
