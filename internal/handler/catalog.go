package handler

import (
	"net/http"

	"square-pos/internal/model"
)

// orderOptions returns the configured options with non-nil lists.
func (h *Handler) orderOptions() model.OrderOptions {
	opts := h.cfg.OrderOptions
	if opts.Discounts == nil {
		opts.Discounts = []model.OrderDiscountOption{}
	}
	if opts.Taxes == nil {
		opts.Taxes = []model.OrderTaxOption{}
	}
	return opts
}

func (h *Handler) handleOrderOptions(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.orderOptions())
}

// requireToken returns the caller's access token, writing a 401 when absent.
func (h *Handler) requireToken(w http.ResponseWriter, r *http.Request) (string, bool) {
	token, ok := bearerToken(r)
	if !ok || token == "" {
		h.writeError(w, model.NewUnauthorizedError("access token required"))
		return "", false
	}
	return token, true
}

func (h *Handler) handleCatalogTaxes(w http.ResponseWriter, r *http.Request) {
	token, ok := h.requireToken(w, r)
	if !ok {
		return
	}
	taxes, err := h.orders.ListTaxes(r.Context(), token)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if taxes == nil {
		taxes = []model.TaxRate{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"taxes": taxes})
}

func (h *Handler) handleCatalogDiscounts(w http.ResponseWriter, r *http.Request) {
	token, ok := h.requireToken(w, r)
	if !ok {
		return
	}
	discounts, err := h.orders.ListDiscounts(r.Context(), token)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if discounts == nil {
		discounts = []model.Discount{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"discounts": discounts})
}
