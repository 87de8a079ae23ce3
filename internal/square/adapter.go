package square

import (
	"context"

	"square-pos/internal/adapter"
	"square-pos/internal/model"
)

// Adapter implements adapter.OrderService on top of the Square API.
type Adapter struct {
	client  *Client
	builder *Builder
}

var _ adapter.OrderService = (*Adapter)(nil)

// NewAdapter wires a client and payload builder into an OrderService.
func NewAdapter(client *Client, builder *Builder) *Adapter {
	return &Adapter{client: client, builder: builder}
}

// CalculateOrder builds the calculation payload and prices it remotely.
func (a *Adapter) CalculateOrder(ctx context.Context, accessToken string, items []model.CartItem, sel model.Selection) (*model.OrderPreview, error) {
	req, err := a.builder.BuildCalculate(items, sel)
	if err != nil {
		return nil, err
	}
	order, err := a.client.CalculateOrder(ctx, accessToken, req)
	if err != nil {
		return nil, err
	}
	return OrderToPreview(order), nil
}

// CreateOrder builds the create payload and submits it.
func (a *Adapter) CreateOrder(ctx context.Context, accessToken string, items []model.CartItem, sel model.Selection, idempotencyKey string) (*model.OrderPreview, error) {
	req, err := a.builder.BuildCreate(items, sel, idempotencyKey)
	if err != nil {
		return nil, err
	}
	order, err := a.client.CreateOrder(ctx, accessToken, req)
	if err != nil {
		return nil, err
	}
	return OrderToPreview(order), nil
}

func (a *Adapter) ListTaxes(ctx context.Context, accessToken string) ([]model.TaxRate, error) {
	return a.client.ListTaxes(ctx, accessToken)
}

func (a *Adapter) ListDiscounts(ctx context.Context, accessToken string) ([]model.Discount, error) {
	return a.client.ListDiscounts(ctx, accessToken)
}
