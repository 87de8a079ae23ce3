// Package pricing resolves which discounts and taxes apply to each cart item
// and computes the local order estimate from them.
//
// The same resolution feeds both the local estimate and the remote order
// payload, so the displayed total and the submitted order cannot drift.
package pricing

import (
	"slices"

	"square-pos/internal/model"
)

// =============================================================================
// SELECTION RESOLUTION
// =============================================================================
//
// An item's effective set is its item-level selection plus the order-level
// choice, unless the item opted out of that choice or already carries an
// equivalent entry itself. Exclusions only suppress order-level inheritance;
// they never remove an explicitly applied item-level selection.
// =============================================================================

// EffectiveDiscounts returns the discounts item should be priced with.
func EffectiveDiscounts(item *model.CartItem, sel model.Selection) []model.Discount {
	effective := itemDiscounts(item)

	if d := sel.Discount; d != nil && InheritsDiscount(item, d.Name) &&
		!model.HasDiscountNamed(effective, d.Name) {
		effective = append(effective, *d)
	}
	return effective
}

// EffectiveTaxes returns the taxes item should be priced with.
// Taxes are matched by name and numeric percentage.
func EffectiveTaxes(item *model.CartItem, sel model.Selection) []model.TaxRate {
	effective := itemTaxes(item)

	if t := sel.Tax; t != nil && InheritsTax(item, *t) && !model.HasTax(effective, *t) {
		effective = append(effective, *t)
	}
	return effective
}

// InheritsDiscount reports whether item has not opted out of the named order-level discount.
func InheritsDiscount(item *model.CartItem, name string) bool {
	return !slices.Contains(item.ExcludedOrderDiscountNames, name)
}

// InheritsTax reports whether item has not opted out of the order-level tax t.
func InheritsTax(item *model.CartItem, t model.TaxRate) bool {
	return !model.HasTax(item.ExcludedOrderTaxRates, t)
}

// itemDiscounts returns a fresh copy of the item-level discounts.
// The applied list wins; the legacy single slot is only a fallback.
func itemDiscounts(item *model.CartItem) []model.Discount {
	if len(item.AppliedDiscounts) > 0 {
		return slices.Clone(item.AppliedDiscounts)
	}
	if item.ItemDiscount != nil {
		return []model.Discount{*item.ItemDiscount}
	}
	return []model.Discount{}
}

func itemTaxes(item *model.CartItem) []model.TaxRate {
	if len(item.AppliedTaxRates) > 0 {
		return slices.Clone(item.AppliedTaxRates)
	}
	if t, ok := LegacyTax(item); ok {
		return []model.TaxRate{t}
	}
	return []model.TaxRate{}
}

// LegacyTax converts the single-slot item tax rate to a TaxRate.
// The name comes from the item's offered taxes when one has the same
// percentage, else "Tax".
func LegacyTax(item *model.CartItem) (model.TaxRate, bool) {
	if !item.IsTaxable || item.ItemTaxRate == nil {
		return model.TaxRate{}, false
	}

	pct := model.PercentageOf(*item.ItemTaxRate)
	want, ok := pct.Decimal()
	if !ok {
		return model.TaxRate{}, false
	}

	for _, offered := range item.Taxes {
		if got, ok := offered.Percentage.Decimal(); ok && got.Equal(want) {
			return model.TaxRate{ID: offered.ID, Name: offered.Name, Percentage: pct}, true
		}
	}
	return model.TaxRate{Name: "Tax", Percentage: pct}, true
}

// =============================================================================
// PROMOTION
// =============================================================================

// PromoteDiscount makes the order-level discount d explicit on item without
// changing what the item is priced with. Items that excluded d are returned
// unchanged. The applied list is seeded from the legacy slot first so the
// legacy discount is not lost when the list becomes authoritative.
func PromoteDiscount(item model.CartItem, d model.Discount) model.CartItem {
	if !InheritsDiscount(&item, d.Name) {
		return item
	}

	applied := itemDiscounts(&item)
	if !model.HasDiscountNamed(applied, d.Name) {
		applied = append(applied, d)
	}
	item.AppliedDiscounts = applied
	return item
}

// PromoteTax is PromoteDiscount for the order-level tax t.
func PromoteTax(item model.CartItem, t model.TaxRate) model.CartItem {
	if !InheritsTax(&item, t) {
		return item
	}

	applied := itemTaxes(&item)
	if !model.HasTax(applied, t) {
		applied = append(applied, t)
	}
	item.AppliedTaxRates = applied
	return item
}
