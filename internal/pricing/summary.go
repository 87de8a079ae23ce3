package pricing

import (
	"github.com/shopspring/decimal"

	"square-pos/internal/model"
)

// =============================================================================
// LOCAL ORDER SUMMARY
// =============================================================================
//
// Discounts combine in a fixed order per line:
//   1. BOGO: floor(qty/2) free units when qty >= 2
//   2. Percentages, summed, applied to what BOGO left
//   3. Fixed per-unit amounts, summed, times quantity
// Taxes are summed and applied once to the discounted line subtotal;
// they stack additively and never compound.
// =============================================================================

// Summarize computes the local order estimate for items under the
// order-level selection sel. Lines are returned in item order.
func Summarize(items []model.CartItem, sel model.Selection) model.OrderSummary {
	summary := model.OrderSummary{
		Lines: make([]model.LineSummary, 0, len(items)),
	}

	for i := range items {
		line := SummarizeLine(&items[i], sel)
		summary.GrossSubtotal += line.Subtotal
		summary.Subtotal += line.DiscountedSubtotal
		summary.DiscountAmount += line.Discount
		summary.TaxAmount += line.Tax
		summary.Lines = append(summary.Lines, line)
	}

	summary.Total = summary.Subtotal + summary.TaxAmount
	return summary
}

// SummarizeLine prices a single item with its effective discounts and taxes.
func SummarizeLine(item *model.CartItem, sel model.Selection) model.LineSummary {
	price := item.UnitPrice()
	qty := int64(max(item.Quantity, 0))
	subtotal := price * qty

	discounts := EffectiveDiscounts(item, sel)
	taxes := EffectiveTaxes(item, sel)

	line := model.LineSummary{
		ItemID:    item.ID,
		Subtotal:  subtotal,
		Discounts: discounts,
		Taxes:     taxes,
	}

	if hasBOGO(discounts) {
		line.BOGODiscount = BOGOAmount(price, qty)
	}

	if pct := percentTotal(discounts); pct.IsPositive() {
		line.PercentDiscount = model.PercentOf(max(subtotal-line.BOGODiscount, 0), pct)
	}

	if perUnit := fixedTotal(discounts); perUnit.IsPositive() {
		line.FixedDiscount = perUnit.Mul(decimal.NewFromInt(qty)).IntPart()
	}

	// Discount never exceeds what the line costs
	line.Discount = min(line.BOGODiscount+line.PercentDiscount+line.FixedDiscount, subtotal)
	line.Discount = max(line.Discount, 0)
	line.DiscountedSubtotal = subtotal - line.Discount

	if rate := taxTotal(taxes); rate.IsPositive() {
		line.Tax = model.PercentOf(line.DiscountedSubtotal, rate)
	}
	return line
}

// BOGOAmount is the value of the free units: one per pair purchased.
func BOGOAmount(unitPrice, qty int64) int64 {
	if qty < 2 {
		return 0
	}
	return (qty / 2) * unitPrice
}

func hasBOGO(discounts []model.Discount) bool {
	for _, d := range discounts {
		if d.IsBOGO() {
			return true
		}
	}
	return false
}

// percentTotal sums percentage discounts. BOGO entries are priced by the BOGO pass only.
func percentTotal(discounts []model.Discount) decimal.Decimal {
	total := decimal.Zero
	for _, d := range discounts {
		if d.IsBOGO() {
			continue
		}
		if pct, ok := d.Value.Percent(); ok {
			total = total.Add(pct)
		}
	}
	return total
}

// fixedTotal sums per-unit fixed discounts in minor units.
func fixedTotal(discounts []model.Discount) decimal.Decimal {
	total := decimal.Zero
	for _, d := range discounts {
		if d.IsBOGO() || d.Value.IsPercentage() {
			continue
		}
		total = total.Add(d.Value.FixedAmount())
	}
	return total
}

func taxTotal(taxes []model.TaxRate) decimal.Decimal {
	total := decimal.Zero
	for _, t := range taxes {
		if pct, ok := t.Percentage.Decimal(); ok {
			total = total.Add(pct)
		}
	}
	return total
}
