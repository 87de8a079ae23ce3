package square

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"square-pos/internal/model"
)

func TestAdapter_CreateOrder(t *testing.T) {
	var got CreateOrderRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decoding body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"order":{"id":"ORDER-1","location_id":"LOC-1","state":"OPEN",
			"total_money":{"amount":999,"currency":"USD"},
			"total_tax_money":{"amount":99,"currency":"USD"}}}`))
	})
	a := NewAdapter(client, NewBuilder("LOC-1", "USD", nil))

	price := int64(450)
	items := []model.CartItem{{ID: "a", Name: "Latte", Price: &price, Quantity: 2, VariationID: "VAR-A"}}
	sel := model.Selection{Tax: &model.TaxRate{Name: "Trade Tax", Percentage: "11"}}

	preview, err := a.CreateOrder(context.Background(), "tok", items, sel, "key-1")
	if err != nil {
		t.Fatalf("CreateOrder() error = %v", err)
	}
	if got.IdempotencyKey != "key-1" {
		t.Errorf("idempotency_key = %q, want key-1", got.IdempotencyKey)
	}
	if got.Order == nil || len(got.Order.LineItems) != 1 || len(got.Order.Taxes) != 1 {
		t.Errorf("order payload = %+v", got.Order)
	}
	if preview.OrderID != "ORDER-1" || preview.Total != 999 || preview.TaxTotal != 99 {
		t.Errorf("preview = %+v", preview)
	}
}

func TestAdapter_CalculateWithoutVariations(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected when nothing is pricable")
	})
	a := NewAdapter(client, NewBuilder("LOC-1", "USD", nil))

	items := []model.CartItem{{ID: "a", Name: "Custom", Quantity: 1}}
	_, err := a.CalculateOrder(context.Background(), "tok", items, model.Selection{})
	if !errors.Is(err, model.ErrNoPricableItems) {
		t.Errorf("error = %v, want ErrNoPricableItems", err)
	}
}
