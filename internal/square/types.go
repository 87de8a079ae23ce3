package square

// =============================================================================
// SQUARE API TYPES
// =============================================================================
//
// Request and response shapes for the Orders and Catalog APIs.
// Square reports every money amount in minor units. Quantities and
// percentages travel as decimal strings.
// =============================================================================

// Discount and tax enums used by the payload builder.
const (
	ScopeLineItem = "LINE_ITEM"

	DiscountTypeFixedPercentage = "FIXED_PERCENTAGE"
	DiscountTypeFixedAmount     = "FIXED_AMOUNT"

	TaxTypeAdditive = "ADDITIVE"
)

// === Orders API ===

// CalculateOrderRequest is the body for POST /v2/orders/calculate.
// Calculation is not mutating, so it carries no idempotency key.
type CalculateOrderRequest struct {
	Order *Order `json:"order"`
}

// CreateOrderRequest is the body for POST /v2/orders.
type CreateOrderRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
	Order          *Order `json:"order"`
}

// OrderResponse is returned by both calculate and create.
type OrderResponse struct {
	Order  *Order        `json:"order"`
	Errors []SquareError `json:"errors,omitempty"`
}

// Order is both the request order and the priced order in responses.
// Discounts and Taxes are omitted when empty, never sent as [].
type Order struct {
	ID             string          `json:"id,omitempty"`
	LocationID     string          `json:"location_id"`
	State          string          `json:"state,omitempty"`
	PricingOptions *PricingOptions `json:"pricing_options,omitempty"`
	LineItems      []OrderLineItem `json:"line_items"`
	Discounts      []OrderDiscount `json:"discounts,omitempty"`
	Taxes          []OrderTax      `json:"taxes,omitempty"`

	// Response only
	TotalMoney         *Money `json:"total_money,omitempty"`
	TotalDiscountMoney *Money `json:"total_discount_money,omitempty"`
	TotalTaxMoney      *Money `json:"total_tax_money,omitempty"`
}

// PricingOptions controls Square's automatic promotion handling.
type PricingOptions struct {
	AutoApplyDiscounts bool `json:"auto_apply_discounts"`
	AutoApplyTaxes     bool `json:"auto_apply_taxes"`
}

// OrderLineItem references a catalog variation and its attached charges.
type OrderLineItem struct {
	UID              string            `json:"uid"`
	CatalogObjectID  string            `json:"catalog_object_id,omitempty"`
	Name             string            `json:"name,omitempty"`
	Quantity         string            `json:"quantity"`
	AppliedDiscounts []AppliedDiscount `json:"applied_discounts,omitempty"`
	AppliedTaxes     []AppliedTax      `json:"applied_taxes,omitempty"`

	// Response only
	GrossSalesMoney    *Money `json:"gross_sales_money,omitempty"`
	TotalDiscountMoney *Money `json:"total_discount_money,omitempty"`
	TotalTaxMoney      *Money `json:"total_tax_money,omitempty"`
	TotalMoney         *Money `json:"total_money,omitempty"`
}

// AppliedDiscount attaches an order discount definition to a line item.
// UID identifies the attachment; DiscountUID the definition.
type AppliedDiscount struct {
	UID          string `json:"uid"`
	DiscountUID  string `json:"discount_uid"`
	AppliedMoney *Money `json:"applied_money,omitempty"`
}

// AppliedTax attaches an order tax definition to a line item.
type AppliedTax struct {
	UID          string `json:"uid"`
	TaxUID       string `json:"tax_uid"`
	AppliedMoney *Money `json:"applied_money,omitempty"`
}

// OrderDiscount is a discount definition on the order.
type OrderDiscount struct {
	UID          string `json:"uid"`
	Name         string `json:"name"`
	Type         string `json:"type"`
	Percentage   string `json:"percentage,omitempty"`
	AmountMoney  *Money `json:"amount_money,omitempty"`
	Scope        string `json:"scope"`
	AppliedMoney *Money `json:"applied_money,omitempty"`
}

// OrderTax is a tax definition on the order.
type OrderTax struct {
	UID          string `json:"uid"`
	Name         string `json:"name"`
	Type         string `json:"type"`
	Percentage   string `json:"percentage"`
	Scope        string `json:"scope"`
	AppliedMoney *Money `json:"applied_money,omitempty"`
}

// Money is an amount in minor units of Currency.
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// AmountOf returns m.Amount, or 0 when m is nil.
func AmountOf(m *Money) int64 {
	if m == nil {
		return 0
	}
	return m.Amount
}

// === Catalog API ===

// CatalogListResponse is returned by GET /v2/catalog/list.
type CatalogListResponse struct {
	Objects []CatalogObject `json:"objects"`
	Cursor  string          `json:"cursor,omitempty"`
	Errors  []SquareError   `json:"errors,omitempty"`
}

// CatalogObject is a catalog entry; only the data field matching Type is set.
type CatalogObject struct {
	Type         string           `json:"type"`
	ID           string           `json:"id"`
	IsDeleted    bool             `json:"is_deleted,omitempty"`
	TaxData      *CatalogTax      `json:"tax_data,omitempty"`
	DiscountData *CatalogDiscount `json:"discount_data,omitempty"`
}

type CatalogTax struct {
	Name       string `json:"name"`
	Percentage string `json:"percentage"`
	Enabled    *bool  `json:"enabled,omitempty"`
}

type CatalogDiscount struct {
	Name         string `json:"name"`
	DiscountType string `json:"discount_type"`
	Percentage   string `json:"percentage,omitempty"`
	AmountMoney  *Money `json:"amount_money,omitempty"`
}

// === Errors ===

// SquareError is one entry of the errors array on a failed response.
type SquareError struct {
	Category string `json:"category"`
	Code     string `json:"code"`
	Detail   string `json:"detail,omitempty"`
	Field    string `json:"field,omitempty"`
}

// ErrorResponse is the body of a non-2xx response.
type ErrorResponse struct {
	Errors []SquareError `json:"errors"`
}
