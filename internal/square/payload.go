package square

import (
	"log/slog"
	"strconv"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"square-pos/internal/model"
	"square-pos/internal/pricing"
)

// =============================================================================
// ORDER PAYLOAD BUILDER
// =============================================================================
//
// Every discount and tax, whether chosen per item or for the whole order, is
// sent as a LINE_ITEM-scoped definition and attached to the line items it
// applies to. Per-item opt-out is then expressed purely by omission.
//
// Definitions are registered once and referenced from each line item by a
// fresh attachment uid. Which charges a line gets comes from the pricing
// resolver, the same one behind the local estimate.
//
// Pricing options always disable auto-apply: Square must price exactly what
// was sent and never pick promotions or taxes on its own.
// =============================================================================

// Builder turns a cart into Orders API payloads.
type Builder struct {
	LocationID string
	Currency   string
	Logger     *slog.Logger

	// NewUID generates attachment and definition uids. Defaults to uuid.NewString.
	NewUID func() string
}

// NewBuilder creates a Builder for the given selling location.
func NewBuilder(locationID, currency string, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		LocationID: locationID,
		Currency:   currency,
		Logger:     logger,
		NewUID:     uuid.NewString,
	}
}

// BuildCalculate builds the body for a price calculation.
func (b *Builder) BuildCalculate(items []model.CartItem, sel model.Selection) (*CalculateOrderRequest, error) {
	order, err := b.buildOrder(items, sel)
	if err != nil {
		return nil, err
	}
	return &CalculateOrderRequest{Order: order}, nil
}

// BuildCreate builds the body for order submission. An empty
// idempotencyKey gets a fresh random one; pass the same key when retrying
// the same submission so Square does not create the order twice.
func (b *Builder) BuildCreate(items []model.CartItem, sel model.Selection, idempotencyKey string) (*CreateOrderRequest, error) {
	order, err := b.buildOrder(items, sel)
	if err != nil {
		return nil, err
	}
	if idempotencyKey == "" {
		idempotencyKey = uuid.NewString()
	}
	return &CreateOrderRequest{IdempotencyKey: idempotencyKey, Order: order}, nil
}

func (b *Builder) buildOrder(items []model.CartItem, sel model.Selection) (*Order, error) {
	reg := newRegistry(b.uid, b.Currency)
	lineItems := make([]OrderLineItem, 0, len(items))

	for i := range items {
		item := &items[i]
		if item.VariationID == "" {
			b.Logger.Warn("skipping cart item without catalog variation",
				"item_id", item.ID,
				"item_name", item.Name,
			)
			continue
		}

		line := OrderLineItem{
			UID:             item.ID,
			CatalogObjectID: item.VariationID,
			Quantity:        strconv.Itoa(max(item.Quantity, 1)),
		}

		for _, d := range pricing.EffectiveDiscounts(item, sel) {
			defUID, ok := reg.discount(item, d)
			if !ok {
				b.Logger.Debug("discount has no effect on line", "item_id", item.ID, "discount", d.Name)
				continue
			}
			line.AppliedDiscounts = append(line.AppliedDiscounts, AppliedDiscount{
				UID:         b.uid(),
				DiscountUID: defUID,
			})
		}

		for _, t := range pricing.EffectiveTaxes(item, sel) {
			defUID, ok := reg.tax(t)
			if !ok {
				b.Logger.Warn("skipping tax with malformed percentage",
					"item_id", item.ID,
					"tax", t.Name,
					"percentage", string(t.Percentage),
				)
				continue
			}
			line.AppliedTaxes = append(line.AppliedTaxes, AppliedTax{
				UID:    b.uid(),
				TaxUID: defUID,
			})
		}

		lineItems = append(lineItems, line)
	}

	if len(lineItems) == 0 {
		return nil, model.NewNoPricableItemsError()
	}

	return &Order{
		LocationID: b.LocationID,
		PricingOptions: &PricingOptions{
			AutoApplyDiscounts: false,
			AutoApplyTaxes:     false,
		},
		LineItems: lineItems,
		Discounts: reg.discounts, // nil when empty, so omitted
		Taxes:     reg.taxes,
	}, nil
}

func (b *Builder) uid() string {
	if b.NewUID != nil {
		return b.NewUID()
	}
	return uuid.NewString()
}

// =============================================================================
// DEFINITION REGISTRY
// =============================================================================

// registry deduplicates discount and tax definitions by identity.
type registry struct {
	newUID   func() string
	currency string

	discountUIDs map[string]string
	taxUIDs      map[string]string
	discounts    []OrderDiscount
	taxes        []OrderTax
}

func newRegistry(newUID func() string, currency string) *registry {
	return &registry{
		newUID:       newUID,
		currency:     currency,
		discountUIDs: make(map[string]string),
		taxUIDs:      make(map[string]string),
	}
}

// discount registers d as priced for item and returns its definition uid.
// Percentages become FIXED_PERCENTAGE. Fixed and BOGO discounts become a
// FIXED_AMOUNT for the whole line, keyed by amount so equal amounts share a
// definition. ok is false when d contributes nothing to this line.
func (r *registry) discount(item *model.CartItem, d model.Discount) (uid string, ok bool) {
	var def OrderDiscount
	qty := int64(max(item.Quantity, 1))

	switch {
	case d.IsBOGO():
		amount := pricing.BOGOAmount(item.UnitPrice(), qty)
		if amount <= 0 {
			return "", false
		}
		def = r.fixedAmount(d.Name, amount)

	case d.Value.IsPercentage():
		pct, valid := d.Value.Percent()
		if !valid || !pct.IsPositive() {
			return "", false
		}
		def = OrderDiscount{
			Name:       d.Name,
			Type:       DiscountTypeFixedPercentage,
			Percentage: pct.String(),
			Scope:      ScopeLineItem,
		}

	default:
		perUnit := d.Value.FixedAmount()
		if !perUnit.IsPositive() {
			return "", false
		}
		def = r.fixedAmount(d.Name, perUnit.Mul(decimal.NewFromInt(qty)).IntPart())
	}

	key := discountKey(d, def)
	if uid, exists := r.discountUIDs[key]; exists {
		return uid, true
	}

	def.UID = r.newUID()
	r.discountUIDs[key] = def.UID
	r.discounts = append(r.discounts, def)
	return def.UID, true
}

func (r *registry) fixedAmount(name string, amount int64) OrderDiscount {
	return OrderDiscount{
		Name:        name,
		Type:        DiscountTypeFixedAmount,
		AmountMoney: &Money{Amount: amount, Currency: r.currency},
		Scope:       ScopeLineItem,
	}
}

// tax registers t and returns its definition uid. Taxes with a malformed
// percentage are never sent.
func (r *registry) tax(t model.TaxRate) (uid string, ok bool) {
	key := t.Key()
	if !key.Valid {
		return "", false
	}

	k := key.Name + "\x00" + key.Percent
	if uid, exists := r.taxUIDs[k]; exists {
		return uid, true
	}

	def := OrderTax{
		UID:        r.newUID(),
		Name:       t.Name,
		Type:       TaxTypeAdditive,
		Percentage: key.Percent,
		Scope:      ScopeLineItem,
	}
	r.taxUIDs[k] = def.UID
	r.taxes = append(r.taxes, def)
	return def.UID, true
}

// discountKey identifies a discount definition: its id (or name when it has
// none) plus the priced value.
func discountKey(d model.Discount, def OrderDiscount) string {
	id := d.ID
	if id == "" {
		id = "name:" + d.Name
	}
	if def.AmountMoney != nil {
		return id + "\x00amount:" + strconv.FormatInt(def.AmountMoney.Amount, 10)
	}
	return id + "\x00pct:" + def.Percentage
}
