package model

// === Local Summary ===

// OrderSummary is the locally computed estimate for a cart.
// All amounts are in minor units. Subtotal is the sum of discounted,
// pre-tax line subtotals; Total = Subtotal + TaxAmount.
type OrderSummary struct {
	GrossSubtotal  int64         `json:"gross_subtotal"` // Before any discount
	Subtotal       int64         `json:"subtotal"`
	DiscountAmount int64         `json:"discount_amount"`
	TaxAmount      int64         `json:"tax_amount"`
	Total          int64         `json:"total"`
	Lines          []LineSummary `json:"lines,omitempty"`
}

// LineSummary is the per-item breakdown behind an OrderSummary.
type LineSummary struct {
	ItemID             string `json:"item_id"`
	Subtotal           int64  `json:"subtotal"`
	BOGODiscount       int64  `json:"bogo_discount,omitempty"`
	PercentDiscount    int64  `json:"percent_discount,omitempty"`
	FixedDiscount      int64  `json:"fixed_discount,omitempty"`
	Discount           int64  `json:"discount"`
	DiscountedSubtotal int64  `json:"discounted_subtotal"`
	Tax                int64  `json:"tax"`

	Discounts []Discount `json:"discounts,omitempty"` // Effective set used to price the line
	Taxes     []TaxRate  `json:"taxes,omitempty"`
}

// Total returns the line's contribution to the order total.
func (l LineSummary) Total() int64 {
	return l.DiscountedSubtotal + l.Tax
}

// === Remote Result ===

// OrderPreview is the server-confirmed pricing returned by the commerce API,
// for either a calculation or a created order.
type OrderPreview struct {
	OrderID       string            `json:"order_id,omitempty"`
	State         string            `json:"state,omitempty"`
	Currency      string            `json:"currency,omitempty"`
	Total         int64             `json:"total"`
	DiscountTotal int64             `json:"discount_total"`
	TaxTotal      int64             `json:"tax_total"`
	Discounts     []AppliedCharge   `json:"discounts,omitempty"`
	Taxes         []AppliedCharge   `json:"taxes,omitempty"`
	LineItems     []PreviewLineItem `json:"line_items,omitempty"`
}

// AppliedCharge is a discount or tax definition echoed back by the remote
// API, addressable by the uid the payload assigned it.
type AppliedCharge struct {
	UID           string `json:"uid"`
	Name          string `json:"name"`
	Percentage    string `json:"percentage,omitempty"`
	AppliedAmount int64  `json:"applied_amount"`
}

// PreviewLineItem is a priced line as returned by the remote API.
type PreviewLineItem struct {
	UID           string `json:"uid"`
	Name          string `json:"name,omitempty"`
	Quantity      string `json:"quantity"`
	GrossSales    int64  `json:"gross_sales"`
	DiscountTotal int64  `json:"discount_total"`
	TaxTotal      int64  `json:"tax_total"`
	Total         int64  `json:"total"`
}

// DiscountName resolves a discount uid to its display name.
func (p *OrderPreview) DiscountName(uid string) string {
	for _, d := range p.Discounts {
		if d.UID == uid && d.Name != "" {
			return d.Name
		}
	}
	return "Discount"
}

// TaxName resolves a tax uid to its display name.
func (p *OrderPreview) TaxName(uid string) string {
	for _, t := range p.Taxes {
		if t.UID == uid && t.Name != "" {
			return t.Name
		}
	}
	return "Tax"
}

// Subtotal is the pre-tax amount after discounts.
func (p *OrderPreview) Subtotal() int64 {
	return p.Total - p.TaxTotal
}
