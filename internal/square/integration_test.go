//go:build integration

// Integration tests for the Square adapter.
// Run with: go test -tags=integration ./internal/square/... -v
//
// Required environment variables:
//
//	SQUARE_SANDBOX_TOKEN        - Sandbox access token
//	SQUARE_SANDBOX_LOCATION_ID  - Sandbox location ID
//	SQUARE_SANDBOX_VARIATION_ID - Catalog item variation to price
package square

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"square-pos/internal/model"
)

const sandboxBaseURL = "https://connect.squareupsandbox.com"

// testConfig holds integration test configuration loaded from environment.
type testConfig struct {
	Token       string
	LocationID  string
	VariationID string
}

// loadTestConfig loads integration test configuration from environment.
func loadTestConfig(t *testing.T) *testConfig {
	t.Helper()

	cfg := &testConfig{
		Token:       os.Getenv("SQUARE_SANDBOX_TOKEN"),
		LocationID:  os.Getenv("SQUARE_SANDBOX_LOCATION_ID"),
		VariationID: os.Getenv("SQUARE_SANDBOX_VARIATION_ID"),
	}
	if cfg.Token == "" || cfg.LocationID == "" || cfg.VariationID == "" {
		t.Skip("Skipping integration test: SQUARE_SANDBOX_* env vars not set")
	}
	return cfg
}

func newTestAdapter(cfg *testConfig) *Adapter {
	client := NewClient(ClientConfig{BaseURL: sandboxBaseURL}, nil)
	return NewAdapter(client, NewBuilder(cfg.LocationID, "USD", nil))
}

func sandboxCart(cfg *testConfig) []model.CartItem {
	price := int64(450)
	return []model.CartItem{{
		ID:          "latte",
		Name:        "Latte",
		Price:       &price,
		Quantity:    2,
		VariationID: cfg.VariationID,
	}}
}

func TestIntegration_CalculateOrder(t *testing.T) {
	cfg := loadTestConfig(t)
	a := newTestAdapter(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sel := model.Selection{
		Discount: &model.Discount{Name: "Summer Sale: 10% off", Value: "10%"},
		Tax:      &model.TaxRate{Name: "Trade Tax", Percentage: "11"},
	}
	preview, err := a.CalculateOrder(ctx, cfg.Token, sandboxCart(cfg), sel)
	if err != nil {
		t.Fatalf("CalculateOrder failed: %v", err)
	}

	t.Logf("Total: %d, discounts: %d, tax: %d", preview.Total, preview.DiscountTotal, preview.TaxTotal)
	if preview.DiscountTotal <= 0 {
		t.Error("expected the order discount to be applied")
	}
	if preview.TaxTotal <= 0 {
		t.Error("expected the order tax to be applied")
	}
}

func TestIntegration_CreateOrderIdempotent(t *testing.T) {
	cfg := loadTestConfig(t)
	a := newTestAdapter(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	key := uuid.NewString()
	first, err := a.CreateOrder(ctx, cfg.Token, sandboxCart(cfg), model.Selection{}, key)
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}
	second, err := a.CreateOrder(ctx, cfg.Token, sandboxCart(cfg), model.Selection{}, key)
	if err != nil {
		t.Fatalf("CreateOrder retry failed: %v", err)
	}
	if first.OrderID == "" || first.OrderID != second.OrderID {
		t.Errorf("order ids = %q, %q; want the same order", first.OrderID, second.OrderID)
	}
}

func TestIntegration_ListCatalog(t *testing.T) {
	cfg := loadTestConfig(t)
	a := newTestAdapter(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	taxes, err := a.ListTaxes(ctx, cfg.Token)
	if err != nil {
		t.Fatalf("ListTaxes failed: %v", err)
	}
	discounts, err := a.ListDiscounts(ctx, cfg.Token)
	if err != nil {
		t.Fatalf("ListDiscounts failed: %v", err)
	}
	t.Logf("catalog has %d taxes and %d discounts", len(taxes), len(discounts))
}
