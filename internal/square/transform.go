package square

import (
	"strconv"
	"strings"

	"square-pos/internal/model"
)

// =============================================================================
// SQUARE → MODEL TRANSFORMATION
// =============================================================================

// OrderToPreview converts a priced Square order to the remote result shown
// to the cashier. Returns nil for a nil order.
func OrderToPreview(o *Order) *model.OrderPreview {
	if o == nil {
		return nil
	}

	p := &model.OrderPreview{
		OrderID:       o.ID,
		State:         o.State,
		Total:         AmountOf(o.TotalMoney),
		DiscountTotal: AmountOf(o.TotalDiscountMoney),
		TaxTotal:      AmountOf(o.TotalTaxMoney),
	}
	if o.TotalMoney != nil {
		p.Currency = o.TotalMoney.Currency
	}

	for _, d := range o.Discounts {
		p.Discounts = append(p.Discounts, model.AppliedCharge{
			UID:           d.UID,
			Name:          d.Name,
			Percentage:    d.Percentage,
			AppliedAmount: AmountOf(d.AppliedMoney),
		})
	}
	for _, t := range o.Taxes {
		p.Taxes = append(p.Taxes, model.AppliedCharge{
			UID:           t.UID,
			Name:          t.Name,
			Percentage:    t.Percentage,
			AppliedAmount: AmountOf(t.AppliedMoney),
		})
	}
	for _, li := range o.LineItems {
		p.LineItems = append(p.LineItems, model.PreviewLineItem{
			UID:           li.UID,
			Name:          li.Name,
			Quantity:      li.Quantity,
			GrossSales:    AmountOf(li.GrossSalesMoney),
			DiscountTotal: AmountOf(li.TotalDiscountMoney),
			TaxTotal:      AmountOf(li.TotalTaxMoney),
			Total:         AmountOf(li.TotalMoney),
		})
	}

	return p
}

// TaxesFromCatalog converts catalog TAX objects to tax rates, skipping
// deleted and disabled entries.
func TaxesFromCatalog(objects []CatalogObject) []model.TaxRate {
	taxes := make([]model.TaxRate, 0, len(objects))
	for _, obj := range objects {
		if obj.Type != "TAX" || obj.IsDeleted || obj.TaxData == nil {
			continue
		}
		if obj.TaxData.Enabled != nil && !*obj.TaxData.Enabled {
			continue
		}
		taxes = append(taxes, model.TaxRate{
			ID:         obj.ID,
			Name:       obj.TaxData.Name,
			Percentage: model.Percentage(obj.TaxData.Percentage),
		})
	}
	return taxes
}

// DiscountsFromCatalog converts catalog DISCOUNT objects to discounts.
// Percentage discounts get a "%" suffix ("10" → "10%"); amount discounts
// carry the amount in minor units. Discounts with neither have an empty value.
func DiscountsFromCatalog(objects []CatalogObject) []model.Discount {
	discounts := make([]model.Discount, 0, len(objects))
	for _, obj := range objects {
		if obj.Type != "DISCOUNT" || obj.IsDeleted || obj.DiscountData == nil {
			continue
		}
		data := obj.DiscountData

		var value model.DiscountValue
		switch {
		case strings.TrimSpace(data.Percentage) != "":
			value = model.PercentValue(data.Percentage)
		case data.AmountMoney != nil:
			value = model.DiscountValue(strconv.FormatInt(data.AmountMoney.Amount, 10))
		}

		discounts = append(discounts, model.Discount{
			ID:    obj.ID,
			Name:  data.Name,
			Value: value,
		})
	}
	return discounts
}
