package handler

import (
	"square-pos/internal/model"
	"square-pos/internal/preview"
	"square-pos/internal/session"
)

// CartView is the body returned by the cart endpoints and the get_cart tool.
type CartView struct {
	ID        string             `json:"id"`
	Items     []model.CartItem   `json:"items"`
	Selection model.Selection    `json:"selection"`
	Summary   model.OrderSummary `json:"summary"`
	Preview   PreviewView        `json:"preview"`
}

// PreviewView is the client-facing form of a preview.State.
type PreviewView struct {
	Seq    uint64              `json:"seq"`
	Status string              `json:"status"`
	Order  *model.OrderPreview `json:"order,omitempty"`
	Error  *errorBody          `json:"error,omitempty"`
}

// SubmitView is the body returned after an order is created.
type SubmitView struct {
	CartID         string              `json:"cart_id"`
	IdempotencyKey string              `json:"idempotency_key"`
	Order          *model.OrderPreview `json:"order"`
}

func (h *Handler) cartView(s *session.Session) CartView {
	items := s.Items()
	if items == nil {
		items = []model.CartItem{}
	}
	return CartView{
		ID:        s.ID,
		Items:     items,
		Selection: s.Selection(),
		Summary:   s.Summary(),
		Preview:   h.previewView(s.Preview()),
	}
}

func (h *Handler) previewView(st preview.State) PreviewView {
	v := PreviewView{
		Seq:    st.Seq,
		Status: string(st.Status),
		Order:  st.Preview,
	}
	if st.Err != nil {
		body := newErrorBody(h.toAPIError(st.Err))
		v.Error = &body
	}
	return v
}
