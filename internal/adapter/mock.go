package adapter

import (
	"context"

	"square-pos/internal/model"
)

// Mock implements OrderService for testing.
// Each method can be configured via function fields.
type Mock struct {
	CalculateOrderFunc func(ctx context.Context, accessToken string, items []model.CartItem, sel model.Selection) (*model.OrderPreview, error)
	CreateOrderFunc    func(ctx context.Context, accessToken string, items []model.CartItem, sel model.Selection, idempotencyKey string) (*model.OrderPreview, error)
	ListTaxesFunc      func(ctx context.Context, accessToken string) ([]model.TaxRate, error)
	ListDiscountsFunc  func(ctx context.Context, accessToken string) ([]model.Discount, error)
}

// CalculateOrder calls the configured CalculateOrderFunc or returns an error.
func (m *Mock) CalculateOrder(ctx context.Context, accessToken string, items []model.CartItem, sel model.Selection) (*model.OrderPreview, error) {
	if m.CalculateOrderFunc != nil {
		return m.CalculateOrderFunc(ctx, accessToken, items, sel)
	}
	return nil, model.NewInternalError(nil)
}

// CreateOrder calls the configured CreateOrderFunc or returns an error.
func (m *Mock) CreateOrder(ctx context.Context, accessToken string, items []model.CartItem, sel model.Selection, idempotencyKey string) (*model.OrderPreview, error) {
	if m.CreateOrderFunc != nil {
		return m.CreateOrderFunc(ctx, accessToken, items, sel, idempotencyKey)
	}
	return nil, model.NewInternalError(nil)
}

// ListTaxes calls the configured ListTaxesFunc or returns no taxes.
func (m *Mock) ListTaxes(ctx context.Context, accessToken string) ([]model.TaxRate, error) {
	if m.ListTaxesFunc != nil {
		return m.ListTaxesFunc(ctx, accessToken)
	}
	return []model.TaxRate{}, nil
}

// ListDiscounts calls the configured ListDiscountsFunc or returns no discounts.
func (m *Mock) ListDiscounts(ctx context.Context, accessToken string) ([]model.Discount, error) {
	if m.ListDiscountsFunc != nil {
		return m.ListDiscountsFunc(ctx, accessToken)
	}
	return []model.Discount{}, nil
}
