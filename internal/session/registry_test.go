package session

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"square-pos/internal/adapter"
	"square-pos/internal/cart"
	"square-pos/internal/model"
)

func TestRegistry_RestoresFromSnapshot(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	snaps := cart.NewRedisSnapshotter(client, 0)
	ctx := context.Background()

	first := newTestRegistry(t, &adapter.Mock{}, snaps)
	s := first.Create()
	addItems(t, s, model.CartItem{ID: "a", Name: "Latte", Price: price(450), Quantity: 2, VariationID: "VAR-A",
		AppliedDiscounts: []model.Discount{summerSale}})
	s.SelectTax(&tradeTax)

	// A second registry stands in for a restarted process.
	second := newTestRegistry(t, &adapter.Mock{}, snaps)
	restored, err := second.Get(ctx, s.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	items := restored.Items()
	if len(items) != 1 || items[0].Quantity != 2 || items[0].VariationID != "VAR-A" {
		t.Fatalf("restored items = %+v", items)
	}
	if len(items[0].AppliedDiscounts) != 0 {
		t.Errorf("applied discounts restored: %+v", items[0].AppliedDiscounts)
	}
	if !restored.Selection().IsEmpty() {
		t.Errorf("selection restored: %+v", restored.Selection())
	}

	again, _ := second.Get(ctx, s.ID)
	if again != restored {
		t.Error("Get() returned a different session for a live cart")
	}
}

func TestRegistry_GetUnknown(t *testing.T) {
	r := newTestRegistry(t, &adapter.Mock{}, nil)

	_, err := r.Get(context.Background(), "nope")
	if !errors.Is(err, model.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestRegistry_SnapshotStoreDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	r := newTestRegistry(t, &adapter.Mock{}, cart.NewRedisSnapshotter(client, 0))
	mr.Close()

	_, err := r.Get(context.Background(), "any")
	if !errors.Is(err, model.ErrUpstreamError) {
		t.Errorf("error = %v, want ErrUpstreamError", err)
	}
}

func TestRegistry_Delete(t *testing.T) {
	snaps := cart.NewMemorySnapshotter()
	r := newTestRegistry(t, &adapter.Mock{}, snaps)
	ctx := context.Background()

	s := r.Create()
	addItems(t, s, model.CartItem{ID: "a", Quantity: 1})
	if r.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", r.Len())
	}

	if err := r.Delete(ctx, s.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d after delete", r.Len())
	}
	if _, err := r.Get(ctx, s.ID); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrNotFound", err)
	}
}
