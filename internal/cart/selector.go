package cart

import (
	"sync"

	"square-pos/internal/model"
)

// Selector holds the order-level selection: at most one discount and one
// tax at a time. Selecting replaces any previous choice in that category.
type Selector struct {
	mu        sync.Mutex
	sel       model.Selection
	observers observers[model.Selection]
}

// NewSelector creates a selector with nothing selected.
func NewSelector() *Selector {
	return &Selector{}
}

// Subscribe registers fn to be called after each change.
func (s *Selector) Subscribe(fn func(sel model.Selection)) (unsubscribe func()) {
	return s.observers.subscribe(fn)
}

// Current returns a copy of the selection.
func (s *Selector) Current() model.Selection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copySelection(s.sel)
}

// SelectDiscount makes d the order-level discount. Nil clears it.
func (s *Selector) SelectDiscount(d *model.Discount) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if d == nil && s.sel.Discount == nil {
		return
	}
	if d != nil {
		v := *d
		d = &v
	}
	s.sel.Discount = d
	s.observers.notify(copySelection(s.sel))
}

// SelectTax makes t the order-level tax. Nil clears it.
func (s *Selector) SelectTax(t *model.TaxRate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t == nil && s.sel.Tax == nil {
		return
	}
	if t != nil {
		v := *t
		t = &v
	}
	s.sel.Tax = t
	s.observers.notify(copySelection(s.sel))
}

// Reset clears both categories.
func (s *Selector) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sel.IsEmpty() {
		return
	}
	s.sel = model.Selection{}
	s.observers.notify(model.Selection{})
}

func copySelection(sel model.Selection) model.Selection {
	var out model.Selection
	if sel.Discount != nil {
		d := *sel.Discount
		out.Discount = &d
	}
	if sel.Tax != nil {
		t := *sel.Tax
		out.Tax = &t
	}
	return out
}
