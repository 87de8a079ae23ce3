// Package adapter defines the interface to the remote commerce platform
// that prices and records orders.
package adapter

import (
	"context"

	"square-pos/internal/model"
)

// OrderService abstracts the commerce platform's order and catalog APIs.
//
// Implementations own the translation from cart to wire payload, so callers
// only deal in cart items and the order-level selection. Every method takes
// the merchant's OAuth access token as an opaque string.
type OrderService interface {
	// CalculateOrder prices the cart without creating an order.
	// Returns model.ErrNoPricableItems when no item references a catalog variation.
	CalculateOrder(ctx context.Context, accessToken string, items []model.CartItem, sel model.Selection) (*model.OrderPreview, error)

	// CreateOrder records the order. Calls sharing an idempotencyKey create
	// at most one order; an empty key gets a fresh one.
	CreateOrder(ctx context.Context, accessToken string, items []model.CartItem, sel model.Selection, idempotencyKey string) (*model.OrderPreview, error)

	// ListTaxes returns the merchant's catalog taxes.
	ListTaxes(ctx context.Context, accessToken string) ([]model.TaxRate, error)

	// ListDiscounts returns the merchant's catalog discounts.
	ListDiscounts(ctx context.Context, accessToken string) ([]model.Discount, error)
}
