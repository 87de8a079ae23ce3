// Package session ties one cart to its order-level selection, access token
// and server-side price preview.
//
// Every change to the cart, the selection or the token triggers a new
// preview calculation. Cart mutations made through Update are snapshotted so
// the item list survives a restart; the selection is never persisted.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"square-pos/internal/adapter"
	"square-pos/internal/cart"
	"square-pos/internal/model"
	"square-pos/internal/preview"
	"square-pos/internal/pricing"
	"square-pos/internal/reconcile"
)

// Session is a single shopper's cart.
type Session struct {
	ID string

	store    *cart.Store
	selector *cart.Selector
	preview  *preview.Controller
	orders   adapter.OrderService
	snaps    cart.Snapshotter
	logger   *slog.Logger
	unsub    []func()

	// inputs mirrors the latest state delivered by the store and selector
	// observers. It is never held while calling into the store or selector.
	inputs struct {
		sync.Mutex
		items []model.CartItem
		sel   model.Selection
		token string
	}

	submitMu sync.Mutex
}

func newSession(id string, items []model.CartItem, orders adapter.OrderService, snaps cart.Snapshotter, ctrl *preview.Controller, logger *slog.Logger) *Session {
	s := &Session{
		ID:       id,
		store:    cart.NewStore(logger),
		selector: cart.NewSelector(),
		preview:  ctrl,
		orders:   orders,
		snaps:    snaps,
		logger:   logger.With("cart_id", id),
	}
	if len(items) > 0 {
		s.store.Replace(items)
	}
	s.inputs.items = s.store.Items()

	s.unsub = append(s.unsub,
		s.store.Subscribe(func(items []model.CartItem) {
			s.inputs.Lock()
			defer s.inputs.Unlock()
			s.inputs.items = items
			s.recalculateLocked()
		}),
		s.selector.Subscribe(func(sel model.Selection) {
			s.inputs.Lock()
			defer s.inputs.Unlock()
			s.inputs.sel = sel
			s.recalculateLocked()
		}),
	)
	return s
}

// recalculateLocked starts a preview for the mirrored inputs.
// Caller holds s.inputs.
func (s *Session) recalculateLocked() uint64 {
	return s.preview.Recalculate(s.inputs.token, s.inputs.items, s.inputs.sel)
}

// =============================================================================
// INPUTS
// =============================================================================

// SetAccessToken records the merchant token used for remote calls.
// A change recalculates the preview; clearing it returns the preview to idle.
func (s *Session) SetAccessToken(token string) {
	s.inputs.Lock()
	defer s.inputs.Unlock()

	if s.inputs.token == token {
		return
	}
	s.inputs.token = token
	s.recalculateLocked()
}

func (s *Session) accessToken() string {
	s.inputs.Lock()
	defer s.inputs.Unlock()
	return s.inputs.token
}

// Update applies fn to the cart and snapshots the result when fn succeeds.
func (s *Session) Update(ctx context.Context, fn func(c *cart.Store) error) error {
	if err := fn(s.store); err != nil {
		return err
	}
	s.persist(ctx)
	return nil
}

// SyncItems makes the cart hold exactly desired, keeping the discount and
// tax choices of lines whose id is unchanged.
func (s *Session) SyncItems(ctx context.Context, desired []model.CartItem) (*reconcile.ItemDiff, error) {
	diff := reconcile.DiffItems(s.store.Items(), desired)
	if diff.IsEmpty() {
		return diff, nil
	}

	err := s.Update(ctx, func(c *cart.Store) error {
		for _, id := range diff.ToRemove {
			if err := c.Remove(id); err != nil && !errors.Is(err, model.ErrNotFound) {
				return err
			}
		}
		for _, u := range diff.ToUpdate {
			if err := c.UpdateQuantity(u.ID, u.NewQuantity); err != nil {
				return err
			}
		}
		for _, item := range diff.ToAdd {
			c.Add(item)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debug("cart synced",
		"added", len(diff.ToAdd),
		"removed", len(diff.ToRemove),
		"updated", len(diff.ToUpdate),
	)
	return diff, nil
}

// Items returns a copy of the cart contents.
func (s *Session) Items() []model.CartItem {
	return s.store.Items()
}

// Selection returns the current order-level selection.
func (s *Session) Selection() model.Selection {
	return s.selector.Current()
}

// SelectDiscount sets or clears (nil) the order-level discount.
func (s *Session) SelectDiscount(d *model.Discount) {
	s.selector.SelectDiscount(d)
}

// SelectTax sets or clears (nil) the order-level tax.
func (s *Session) SelectTax(t *model.TaxRate) {
	s.selector.SelectTax(t)
}

// === Order-level opt-outs ===

// ExcludeOrderDiscount records or withdraws item id's opt-out from the
// order-level discount called name.
//
// Excluding the discount that is currently selected converts the selection
// into explicit item-level discounts on every other item and clears it, so
// the remaining items keep their pricing.
func (s *Session) ExcludeOrderDiscount(ctx context.Context, id, name string, exclude bool) error {
	return s.Update(ctx, func(c *cart.Store) error {
		if err := c.ExcludeOrderDiscount(id, name, exclude); err != nil {
			return err
		}
		sel := s.selector.Current()
		if exclude && sel.Discount != nil && sel.Discount.Name == name {
			c.PromoteOrderDiscount(id, *sel.Discount)
			s.selector.SelectDiscount(nil)
			s.logger.Info("order discount promoted to items", "discount", name, "excluded_item", id)
		}
		return nil
	})
}

// ExcludeOrderTaxRate is ExcludeOrderDiscount for the order-level tax t,
// matched by name and numeric percentage.
func (s *Session) ExcludeOrderTaxRate(ctx context.Context, id string, t model.TaxRate, exclude bool) error {
	return s.Update(ctx, func(c *cart.Store) error {
		if err := c.ExcludeOrderTaxRate(id, t, exclude); err != nil {
			return err
		}
		sel := s.selector.Current()
		if exclude && sel.Tax != nil && sel.Tax.SameAs(t) {
			c.PromoteOrderTax(id, *sel.Tax)
			s.selector.SelectTax(nil)
			s.logger.Info("order tax promoted to items", "tax", t.Name, "excluded_item", id)
		}
		return nil
	})
}

// Clear empties the cart and resets the order-level selection.
func (s *Session) Clear(ctx context.Context) {
	s.store.Clear()
	s.selector.Reset()
	s.persist(ctx)
}

// =============================================================================
// PRICING
// =============================================================================

// Summary computes the local estimate for the current cart and selection.
func (s *Session) Summary() model.OrderSummary {
	return pricing.Summarize(s.store.Items(), s.selector.Current())
}

// Preview returns the server-side preview state.
func (s *Session) Preview() preview.State {
	return s.preview.Snapshot()
}

// Recalculate re-issues the preview calculation for the current inputs.
func (s *Session) Recalculate() uint64 {
	s.inputs.Lock()
	defer s.inputs.Unlock()
	return s.recalculateLocked()
}

// AwaitPreview blocks until the preview for seq (or a later one) settles.
func (s *Session) AwaitPreview(ctx context.Context, seq uint64) (preview.State, error) {
	return s.preview.Await(ctx, seq)
}

// =============================================================================
// SUBMISSION
// =============================================================================

// Submit creates the order remotely. Retries must pass the same
// idempotencyKey; an empty key makes this a new submission intent.
//
// On success the cart is cleared, the selection reset and the snapshot
// removed. On failure the cart is left untouched.
func (s *Session) Submit(ctx context.Context, idempotencyKey string) (*model.OrderPreview, error) {
	s.submitMu.Lock()
	defer s.submitMu.Unlock()

	token := s.accessToken()
	if token == "" {
		return nil, model.NewUnauthorizedError("access token required")
	}
	items := s.store.Items()
	if len(items) == 0 {
		return nil, model.NewValidationError("cart", "is empty")
	}

	order, err := s.orders.CreateOrder(ctx, token, items, s.selector.Current(), idempotencyKey)
	if err != nil {
		s.logger.Warn("order submission failed", "error", err)
		return nil, err
	}
	s.logger.Info("order created", "order_id", order.OrderID, "total", order.Total)

	s.store.Clear()
	s.selector.Reset()
	if err := s.snaps.Delete(ctx, s.ID); err != nil {
		s.logger.Warn("deleting cart snapshot", "error", err)
	}
	return order, nil
}

func (s *Session) persist(ctx context.Context) {
	items := s.store.Items()
	var err error
	if len(items) == 0 {
		err = s.snaps.Delete(ctx, s.ID)
	} else {
		err = s.snaps.Save(ctx, s.ID, items)
	}
	if err != nil {
		s.logger.Warn("saving cart snapshot", "error", err)
	}
}

// close detaches observers and stops the preview controller.
func (s *Session) close() {
	for _, fn := range s.unsub {
		fn()
	}
	s.preview.Close()
}
