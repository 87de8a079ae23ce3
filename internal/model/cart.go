// Package model defines the cart, pricing and order data structures shared by
// the pricing engine, the cart store and the Square adapter.
package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// === Cart Types ===

// CartItem is one line of the cart as the storefront sees it.
// Price is in minor units; nil means the catalog had no price for the variation.
type CartItem struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Price       *int64 `json:"price"`
	ImageURL    string `json:"image_url,omitempty"`
	Quantity    int    `json:"quantity"`
	Category    string `json:"category,omitempty"`
	VariationID string `json:"variation_id,omitempty"` // Required for order submission
	IsTaxable   bool   `json:"is_taxable,omitempty"`

	// Legacy single-slot selections, used only when the multi-select lists are empty.
	ItemTaxRate  *float64  `json:"item_tax_rate,omitempty"`
	ItemDiscount *Discount `json:"item_discount,omitempty"`

	// Discounts and taxes offered for this item, and the subset currently applied.
	Discounts        []Discount `json:"discounts,omitempty"`
	Taxes            []TaxRate  `json:"taxes,omitempty"`
	AppliedDiscounts []Discount `json:"applied_discounts,omitempty"`
	AppliedTaxRates  []TaxRate  `json:"applied_tax_rates,omitempty"`

	// Per-item opt-outs from the order-level selection.
	ExcludedOrderDiscountNames []string  `json:"excluded_order_discount_names,omitempty"`
	ExcludedOrderTaxRates      []TaxRate `json:"excluded_order_tax_rates,omitempty"`
}

// UnitPrice returns the price in minor units, 0 when unknown.
func (i *CartItem) UnitPrice() int64 {
	if i.Price == nil {
		return 0
	}
	return *i.Price
}

// Clone returns a deep copy so callers can never alias store-owned slices.
func (i CartItem) Clone() CartItem {
	c := i
	if i.Price != nil {
		p := *i.Price
		c.Price = &p
	}
	if i.ItemTaxRate != nil {
		r := *i.ItemTaxRate
		c.ItemTaxRate = &r
	}
	if i.ItemDiscount != nil {
		d := *i.ItemDiscount
		c.ItemDiscount = &d
	}
	c.Discounts = cloneSlice(i.Discounts)
	c.Taxes = cloneSlice(i.Taxes)
	c.AppliedDiscounts = cloneSlice(i.AppliedDiscounts)
	c.AppliedTaxRates = cloneSlice(i.AppliedTaxRates)
	c.ExcludedOrderDiscountNames = cloneSlice(i.ExcludedOrderDiscountNames)
	c.ExcludedOrderTaxRates = cloneSlice(i.ExcludedOrderTaxRates)
	return c
}

func cloneSlice[T any](s []T) []T {
	if s == nil {
		return nil
	}
	return append(make([]T, 0, len(s)), s...)
}

// HasDiscountNamed reports whether name is among the given discounts.
func HasDiscountNamed(discounts []Discount, name string) bool {
	for _, d := range discounts {
		if d.Name == name {
			return true
		}
	}
	return false
}

// HasTax reports whether a tax with the same identity as t is in taxes.
func HasTax(taxes []TaxRate, t TaxRate) bool {
	for _, candidate := range taxes {
		if candidate.SameAs(t) {
			return true
		}
	}
	return false
}

// === Discounts ===

// Discount is a discount definition. Name is unique within a scope.
type Discount struct {
	ID    string        `json:"id,omitempty"`
	Name  string        `json:"name"`
	Value DiscountValue `json:"value"`
}

// bogoPhrase marks a "buy one get one" promotion; matched case-insensitively.
const bogoPhrase = "buy one get one"

// IsBOGO reports whether the discount is a buy-one-get-one promotion.
func (d Discount) IsBOGO() bool {
	return strings.Contains(strings.ToLower(d.Name), bogoPhrase)
}

// DiscountValue is either a percentage ("10%"), a fixed per-unit amount in
// minor units ("250" or 250), or empty. JSON accepts both strings and numbers.
type DiscountValue string

// UnmarshalJSON handles both "string" and numeric formats.
func (v *DiscountValue) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*v = ""
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*v = DiscountValue(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("discount value must be a string or number: %w", err)
	}
	*v = DiscountValue(n.String())
	return nil
}

// IsPercentage reports whether the value is expressed as a percentage.
func (v DiscountValue) IsPercentage() bool {
	return strings.Contains(string(v), "%")
}

// Percent returns the percentage, ok=false for fixed or malformed values.
func (v DiscountValue) Percent() (decimal.Decimal, bool) {
	if !v.IsPercentage() {
		return decimal.Zero, false
	}
	return ParsePercent(string(v))
}

// FixedAmount returns the per-unit amount in minor units for non-percentage
// values. Malformed or percentage values yield 0.
func (v DiscountValue) FixedAmount() decimal.Decimal {
	if v.IsPercentage() {
		return decimal.Zero
	}
	d, ok := ParsePercent(string(v))
	if !ok {
		return decimal.Zero
	}
	return d
}

// PercentValue renders a bare percentage ("10") as a discount value ("10%").
func PercentValue(pct string) DiscountValue {
	return DiscountValue(strings.TrimSuffix(strings.TrimSpace(pct), "%") + "%")
}

// === Taxes ===

// TaxRate is a tax definition. Identity is name plus numeric percentage:
// "10" and 10 are the same tax.
type TaxRate struct {
	ID         string     `json:"id,omitempty"`
	Name       string     `json:"name"`
	Percentage Percentage `json:"percentage"`
}

// Percentage is a tax percentage that may arrive as a JSON string or number.
type Percentage string

// UnmarshalJSON handles both "string" and numeric formats.
func (p *Percentage) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*p = ""
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*p = Percentage(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("percentage must be a string or number: %w", err)
	}
	*p = Percentage(n.String())
	return nil
}

// Decimal parses the percentage strictly; "10%" is accepted, "abc" is not.
func (p Percentage) Decimal() (decimal.Decimal, bool) {
	s := strings.TrimSuffix(strings.TrimSpace(string(p)), "%")
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// PercentageOf converts a float rate (legacy item tax slot) to a Percentage.
func PercentageOf(f float64) Percentage {
	return Percentage(strconv.FormatFloat(f, 'f', -1, 64))
}

// TaxKey is the canonical identity of a tax: name plus normalized percentage.
// Valid is false when the percentage cannot be parsed; invalid keys never match.
type TaxKey struct {
	Name    string
	Percent string
	Valid   bool
}

// Key returns the canonical identity for t.
func (t TaxRate) Key() TaxKey {
	d, ok := t.Percentage.Decimal()
	if !ok {
		return TaxKey{Name: t.Name}
	}
	return TaxKey{Name: t.Name, Percent: d.String(), Valid: true}
}

// SameAs reports whether t and other are the same tax by name and numeric percentage.
func (t TaxRate) SameAs(other TaxRate) bool {
	a, b := t.Key(), other.Key()
	return a.Valid && b.Valid && a == b
}

// === Order-level selection ===

// Selection holds the order-level choices: at most one discount and one tax.
// Nil means nothing is selected for that category.
type Selection struct {
	Discount *Discount `json:"discount,omitempty"`
	Tax      *TaxRate  `json:"tax,omitempty"`
}

// IsEmpty reports whether neither category has a selection.
func (s Selection) IsEmpty() bool {
	return s.Discount == nil && s.Tax == nil
}

// OrderDiscountOption is a configured order-level discount offered to the cashier.
type OrderDiscountOption struct {
	UID        string `json:"uid"`
	Name       string `json:"name"`
	Percentage string `json:"percentage"`
}

// Discount converts the option to the discount it applies to each item.
func (o OrderDiscountOption) Discount() Discount {
	return Discount{ID: o.UID, Name: o.Name, Value: PercentValue(o.Percentage)}
}

// OrderTaxOption is a configured order-level tax offered to the cashier.
type OrderTaxOption struct {
	UID        string `json:"uid"`
	Name       string `json:"name"`
	Percentage string `json:"percentage"`
}

// TaxRate converts the option to the tax it applies to each item.
func (o OrderTaxOption) TaxRate() TaxRate {
	return TaxRate{ID: o.UID, Name: o.Name, Percentage: Percentage(o.Percentage)}
}

// OrderOptions lists the order-level discounts and taxes offered to the cashier.
type OrderOptions struct {
	Discounts []OrderDiscountOption `json:"discounts"`
	Taxes     []OrderTaxOption      `json:"taxes"`
}

// FindDiscount returns the discount option with the given uid.
func (o OrderOptions) FindDiscount(uid string) (OrderDiscountOption, bool) {
	for _, d := range o.Discounts {
		if d.UID == uid {
			return d, true
		}
	}
	return OrderDiscountOption{}, false
}

// FindTax returns the tax option with the given uid.
func (o OrderOptions) FindTax(uid string) (OrderTaxOption, bool) {
	for _, t := range o.Taxes {
		if t.UID == uid {
			return t, true
		}
	}
	return OrderTaxOption{}, false
}
