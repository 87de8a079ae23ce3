// Package reconcile computes the mutations that turn the current cart into a
// desired one. Syncing a register's full item list through a diff keeps the
// per-item discount and tax choices of lines that did not change.
package reconcile

import "square-pos/internal/model"

// ItemDiff describes the mutations needed to reconcile cart items.
// Operations should be applied in order: Remove → Update → Add
// to prevent conflicts (e.g., updating a removed item).
type ItemDiff struct {
	ToAdd    []model.CartItem // Items in desired but not current
	ToRemove []string         // IDs in current but not desired
	ToUpdate []QuantityChange // Items in both with different quantities
}

// QuantityChange specifies a quantity change for an existing item.
type QuantityChange struct {
	ID          string
	OldQuantity int // informational
	NewQuantity int
}

// IsEmpty returns true if no item changes are needed.
func (d *ItemDiff) IsEmpty() bool {
	return len(d.ToAdd) == 0 && len(d.ToRemove) == 0 && len(d.ToUpdate) == 0
}

// DiffItems computes the delta between current and desired items.
// Matching is by item ID. A desired quantity of zero or less removes the
// line; when an ID repeats in desired, the last entry wins.
// Results follow the order of their source slice.
func DiffItems(current, desired []model.CartItem) *ItemDiff {
	diff := &ItemDiff{}

	currentQty := make(map[string]int, len(current))
	for _, item := range current {
		currentQty[item.ID] = item.Quantity
	}

	desiredByID := make(map[string]model.CartItem, len(desired))
	order := make([]string, 0, len(desired))
	for _, item := range desired {
		if _, seen := desiredByID[item.ID]; !seen {
			order = append(order, item.ID)
		}
		desiredByID[item.ID] = item
	}

	// Find items to add or update
	for _, id := range order {
		want := desiredByID[id]
		if want.Quantity <= 0 {
			continue
		}
		have, exists := currentQty[id]
		switch {
		case !exists:
			diff.ToAdd = append(diff.ToAdd, want)
		case have != want.Quantity:
			diff.ToUpdate = append(diff.ToUpdate, QuantityChange{
				ID:          id,
				OldQuantity: have,
				NewQuantity: want.Quantity,
			})
		}
	}

	// Find items to remove (in current but not in desired)
	for _, item := range current {
		if want, exists := desiredByID[item.ID]; !exists || want.Quantity <= 0 {
			diff.ToRemove = append(diff.ToRemove, item.ID)
		}
	}

	return diff
}
