package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/dunglas/httpsfv"
	"github.com/google/uuid"

	"square-pos/internal/cart"
	"square-pos/internal/model"
	"square-pos/internal/negotiation"
	"square-pos/internal/preview"
	"square-pos/internal/session"
)

// === Request Bodies ===

type syncItemsRequest struct {
	Items []model.CartItem `json:"items"`
}

type quantityRequest struct {
	Quantity *int `json:"quantity"`
}

type discountRequest struct {
	Discount model.Discount `json:"discount"`
}

type taxRequest struct {
	Tax model.TaxRate `json:"tax"`
}

type itemTaxRequest struct {
	Taxable bool     `json:"taxable"`
	Rate    *float64 `json:"rate,omitempty"`
}

type discountExclusionRequest struct {
	Name     string `json:"name"`
	Excluded bool   `json:"excluded"`
}

type taxExclusionRequest struct {
	Tax      model.TaxRate `json:"tax"`
	Excluded bool          `json:"excluded"`
}

// selectionRequest changes the order-level selection. A nil field leaves that
// category alone, an empty uid clears it.
type selectionRequest struct {
	DiscountUID *string `json:"discount_uid,omitempty"`
	TaxUID      *string `json:"tax_uid,omitempty"`
}

// === Session Lookup ===

// loadCart resolves the cart in the path and applies the caller's access token.
// On failure the error response has already been written.
func (h *Handler) loadCart(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	token, ok := bearerToken(r)
	if !ok {
		h.writeError(w, model.NewUnauthorizedError("malformed Authorization header"))
		return nil, false
	}

	s, err := h.sessions.Get(r.Context(), r.PathValue("cart"))
	if err != nil {
		h.writeError(w, err)
		return nil, false
	}
	if token != "" {
		s.SetAccessToken(token)
	}
	return s, true
}

// mutate runs fn against the cart store and responds with the updated cart.
func (h *Handler) mutate(w http.ResponseWriter, r *http.Request, fn func(c *cart.Store) error) {
	s, ok := h.loadCart(w, r)
	if !ok {
		return
	}
	if err := s.Update(r.Context(), fn); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.cartView(s))
}

// === Carts ===

func (h *Handler) handleCreateCart(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r)
	if !ok {
		h.writeError(w, model.NewUnauthorizedError("malformed Authorization header"))
		return
	}
	s := h.sessions.Create()
	if token != "" {
		s.SetAccessToken(token)
	}
	w.Header().Set("Location", "/carts/"+s.ID)
	h.writeJSON(w, http.StatusCreated, h.cartView(s))
}

func (h *Handler) handleGetCart(w http.ResponseWriter, r *http.Request) {
	s, ok := h.loadCart(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, h.cartView(s))
}

func (h *Handler) handleDeleteCart(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Delete(r.Context(), r.PathValue("cart")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// === Items ===

func (h *Handler) handleAddItem(w http.ResponseWriter, r *http.Request) {
	var item model.CartItem
	if err := decodeJSON(r, &item); err != nil {
		h.writeError(w, err)
		return
	}
	if item.ID == "" {
		h.writeError(w, model.NewValidationError("id", "is required"))
		return
	}
	h.mutate(w, r, func(c *cart.Store) error {
		c.Add(item)
		return nil
	})
}

// handleSyncItems replaces the cart contents with the given list.
func (h *Handler) handleSyncItems(w http.ResponseWriter, r *http.Request) {
	var req syncItemsRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	for i, item := range req.Items {
		if item.ID == "" {
			h.writeError(w, model.NewValidationError(fmt.Sprintf("items[%d].id", i), "is required"))
			return
		}
	}

	s, ok := h.loadCart(w, r)
	if !ok {
		return
	}
	if _, err := s.SyncItems(r.Context(), req.Items); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.cartView(s))
}

func (h *Handler) handleClearCart(w http.ResponseWriter, r *http.Request) {
	s, ok := h.loadCart(w, r)
	if !ok {
		return
	}
	s.Clear(r.Context())
	h.writeJSON(w, http.StatusOK, h.cartView(s))
}

func (h *Handler) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("item")
	h.mutate(w, r, func(c *cart.Store) error { return c.Remove(id) })
}

func (h *Handler) handleUpdateQuantity(w http.ResponseWriter, r *http.Request) {
	var req quantityRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if req.Quantity == nil {
		h.writeError(w, model.NewValidationError("quantity", "is required"))
		return
	}
	id := r.PathValue("item")
	h.mutate(w, r, func(c *cart.Store) error { return c.UpdateQuantity(id, *req.Quantity) })
}

func (h *Handler) handleToggleDiscount(w http.ResponseWriter, r *http.Request) {
	var req discountRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if req.Discount.Name == "" {
		h.writeError(w, model.NewValidationError("discount.name", "is required"))
		return
	}
	id := r.PathValue("item")
	h.mutate(w, r, func(c *cart.Store) error { return c.ToggleDiscount(id, req.Discount) })
}

func (h *Handler) handleToggleTax(w http.ResponseWriter, r *http.Request) {
	var req taxRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if _, ok := req.Tax.Percentage.Decimal(); !ok {
		h.writeError(w, model.NewValidationError("tax.percentage", "must be a number"))
		return
	}
	id := r.PathValue("item")
	h.mutate(w, r, func(c *cart.Store) error { return c.ToggleTaxRate(id, req.Tax) })
}

func (h *Handler) handleApplyItemDiscount(w http.ResponseWriter, r *http.Request) {
	var req discountRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	id := r.PathValue("item")
	h.mutate(w, r, func(c *cart.Store) error { return c.ApplyItemDiscount(id, req.Discount) })
}

func (h *Handler) handleRemoveItemDiscount(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("item")
	h.mutate(w, r, func(c *cart.Store) error { return c.RemoveItemDiscount(id) })
}

func (h *Handler) handleSetItemTax(w http.ResponseWriter, r *http.Request) {
	var req itemTaxRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	id := r.PathValue("item")
	h.mutate(w, r, func(c *cart.Store) error {
		if err := c.SetTaxable(id, req.Taxable); err != nil {
			return err
		}
		if req.Rate != nil {
			return c.SetItemTaxRate(id, req.Rate)
		}
		return nil
	})
}

func (h *Handler) handleExcludeDiscount(w http.ResponseWriter, r *http.Request) {
	var req discountExclusionRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if req.Name == "" {
		h.writeError(w, model.NewValidationError("name", "is required"))
		return
	}
	s, ok := h.loadCart(w, r)
	if !ok {
		return
	}
	if err := s.ExcludeOrderDiscount(r.Context(), r.PathValue("item"), req.Name, req.Excluded); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.cartView(s))
}

func (h *Handler) handleExcludeTax(w http.ResponseWriter, r *http.Request) {
	var req taxExclusionRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	s, ok := h.loadCart(w, r)
	if !ok {
		return
	}
	if err := s.ExcludeOrderTaxRate(r.Context(), r.PathValue("item"), req.Tax, req.Excluded); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.cartView(s))
}

// === Selection and Preview ===

func (h *Handler) handleSetSelection(w http.ResponseWriter, r *http.Request) {
	var req selectionRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	s, ok := h.loadCart(w, r)
	if !ok {
		return
	}
	if err := h.applySelection(s, req); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.cartView(s))
}

// applySelection resolves option uids against the configured order options.
// Both uids are validated before either category changes.
func (h *Handler) applySelection(s *session.Session, req selectionRequest) error {
	var discount *model.Discount
	if req.DiscountUID != nil && *req.DiscountUID != "" {
		opt, ok := h.cfg.OrderOptions.FindDiscount(*req.DiscountUID)
		if !ok {
			return model.NewValidationError("discount_uid", "unknown order discount")
		}
		d := opt.Discount()
		discount = &d
	}
	var tax *model.TaxRate
	if req.TaxUID != nil && *req.TaxUID != "" {
		opt, ok := h.cfg.OrderOptions.FindTax(*req.TaxUID)
		if !ok {
			return model.NewValidationError("tax_uid", "unknown order tax")
		}
		t := opt.TaxRate()
		tax = &t
	}

	if req.DiscountUID != nil {
		s.SelectDiscount(discount)
	}
	if req.TaxUID != nil {
		s.SelectTax(tax)
	}
	return nil
}

func (h *Handler) handleGetPreview(w http.ResponseWriter, r *http.Request) {
	s, ok := h.loadCart(w, r)
	if !ok {
		return
	}

	st := s.Preview()
	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait && !st.Settled() {
		st = h.awaitPreview(r.Context(), s, st.Seq)
	}
	h.writeJSON(w, http.StatusOK, h.previewView(st))
}

func (h *Handler) handleRecalculate(w http.ResponseWriter, r *http.Request) {
	s, ok := h.loadCart(w, r)
	if !ok {
		return
	}
	seq := s.Recalculate()
	h.writeJSON(w, http.StatusOK, h.previewView(h.awaitPreview(r.Context(), s, seq)))
}

// awaitPreview waits up to the configured timeout; on timeout the still
// pending state is returned.
func (h *Handler) awaitPreview(ctx context.Context, s *session.Session, seq uint64) preview.State {
	ctx, cancel := context.WithTimeout(ctx, h.cfg.AwaitTimeout)
	defer cancel()

	st, err := s.AwaitPreview(ctx, seq)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		h.logger.Warn("awaiting preview", "cart_id", s.ID, "error", err)
	}
	return st
}

// === Orders ===

func (h *Handler) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	key, err := negotiation.ParseIdempotencyKey(r.Header.Get(negotiation.IdempotencyKeyHeader))
	if err != nil {
		h.writeError(w, model.NewValidationError(negotiation.IdempotencyKeyHeader, "must be a structured field string"))
		return
	}
	if key == "" {
		key = uuid.NewString()
	}

	s, ok := h.loadCart(w, r)
	if !ok {
		return
	}
	start := time.Now()
	order, err := s.Submit(r.Context(), key)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.logger.Info("order submitted",
		"cart_id", s.ID,
		"order_id", order.OrderID,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if echoed, err := httpsfv.Marshal(httpsfv.NewItem(key)); err == nil {
		w.Header().Set(negotiation.IdempotencyKeyHeader, echoed)
	}
	h.writeJSON(w, http.StatusCreated, SubmitView{CartID: s.ID, IdempotencyKey: key, Order: order})
}
