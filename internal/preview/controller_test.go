package preview

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"square-pos/internal/adapter"
	"square-pos/internal/model"
)

var testItems = []model.CartItem{{ID: "a", Quantity: 1, VariationID: "VAR-A"}}

func newTestController(t *testing.T, calc Calculator) *Controller {
	t.Helper()
	c := NewController(calc, time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(c.Close)
	return c
}

func await(t *testing.T, c *Controller, seq uint64) State {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	st, err := c.Await(ctx, seq)
	if err != nil {
		t.Fatalf("Await(%d) error = %v, state = %+v", seq, err, st)
	}
	return st
}

func TestRecalculate_Success(t *testing.T) {
	mock := &adapter.Mock{
		CalculateOrderFunc: func(ctx context.Context, token string, items []model.CartItem, sel model.Selection) (*model.OrderPreview, error) {
			if token != "tok" {
				t.Errorf("token = %q", token)
			}
			return &model.OrderPreview{Total: 2970, TaxTotal: 270}, nil
		},
	}
	c := newTestController(t, mock)

	seq := c.Recalculate("tok", testItems, model.Selection{})
	st := await(t, c, seq)

	if st.Status != StatusSuccess {
		t.Fatalf("Status = %q, want success", st.Status)
	}
	if st.Preview == nil || st.Preview.Total != 2970 {
		t.Errorf("Preview = %+v", st.Preview)
	}
	if st.Err != nil {
		t.Errorf("Err = %v", st.Err)
	}
}

func TestRecalculate_IdleWithoutInputs(t *testing.T) {
	var calls atomic.Int32
	mock := &adapter.Mock{
		CalculateOrderFunc: func(context.Context, string, []model.CartItem, model.Selection) (*model.OrderPreview, error) {
			calls.Add(1)
			return &model.OrderPreview{}, nil
		},
	}
	c := newTestController(t, mock)

	tests := []struct {
		name  string
		token string
		items []model.CartItem
	}{
		{"no token", "", testItems},
		{"empty cart", "tok", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seq := c.Recalculate(tt.token, tt.items, model.Selection{})
			st := c.Snapshot()
			if st.Status != StatusIdle || st.Seq != seq {
				t.Errorf("state = %+v, want idle at seq %d", st, seq)
			}
		})
	}
	if calls.Load() != 0 {
		t.Errorf("calculator called %d times", calls.Load())
	}
}

func TestRecalculate_FailureIsGeneric(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"classified", model.NewUnauthorizedError("expired token"), model.ErrUnauthorized},
		{"unclassified", errors.New("connection reset"), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &adapter.Mock{
				CalculateOrderFunc: func(context.Context, string, []model.CartItem, model.Selection) (*model.OrderPreview, error) {
					return nil, tt.err
				},
			}
			c := newTestController(t, mock)

			st := await(t, c, c.Recalculate("tok", testItems, model.Selection{}))
			if st.Status != StatusFailure {
				t.Fatalf("Status = %q, want failure", st.Status)
			}
			if st.Preview != nil {
				t.Errorf("Preview = %+v, want nil on failure", st.Preview)
			}

			var apiErr *model.APIError
			if !errors.As(st.Err, &apiErr) {
				t.Fatalf("Err = %v, want *model.APIError", st.Err)
			}
			if tt.sentinel != nil && !errors.Is(st.Err, tt.sentinel) {
				t.Errorf("Err = %v, want %v", st.Err, tt.sentinel)
			}
			if tt.sentinel == nil && apiErr.StatusCode != 500 {
				t.Errorf("StatusCode = %d, want 500", apiErr.StatusCode)
			}
		})
	}
}

func TestRecalculate_StaleResultDiscarded(t *testing.T) {
	release := make(chan struct{})
	mock := &adapter.Mock{
		CalculateOrderFunc: func(ctx context.Context, token string, items []model.CartItem, sel model.Selection) (*model.OrderPreview, error) {
			if items[0].Quantity == 1 {
				// First request resolves only after the second has settled.
				<-release
				return &model.OrderPreview{Total: 100}, nil
			}
			return &model.OrderPreview{Total: 200}, nil
		},
	}
	c := newTestController(t, mock)

	first := c.Recalculate("tok", []model.CartItem{{ID: "a", Quantity: 1}}, model.Selection{})
	second := c.Recalculate("tok", []model.CartItem{{ID: "a", Quantity: 2}}, model.Selection{})

	st := await(t, c, second)
	if st.Preview == nil || st.Preview.Total != 200 {
		t.Fatalf("Preview = %+v, want total 200", st.Preview)
	}

	close(release)
	c.wg.Wait()

	st = c.Snapshot()
	if st.Seq != second || st.Preview.Total != 200 {
		t.Errorf("state = %+v after stale result %d arrived, want seq %d total 200", st, first, second)
	}
}

func TestRecalculate_PendingKeepsLastPreview(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	mock := &adapter.Mock{
		CalculateOrderFunc: func(context.Context, string, []model.CartItem, model.Selection) (*model.OrderPreview, error) {
			if calls.Add(1) == 2 {
				<-release
			}
			return &model.OrderPreview{Total: 500}, nil
		},
	}
	c := newTestController(t, mock)

	await(t, c, c.Recalculate("tok", testItems, model.Selection{}))
	c.Recalculate("tok", testItems, model.Selection{})

	st := c.Snapshot()
	if st.Status != StatusPending {
		t.Fatalf("Status = %q, want pending", st.Status)
	}
	if st.Preview == nil || st.Preview.Total != 500 {
		t.Errorf("Preview = %+v, want previous result while pending", st.Preview)
	}
	close(release)
}

func TestRecalculate_IdleSupersedesInFlight(t *testing.T) {
	release := make(chan struct{})
	mock := &adapter.Mock{
		CalculateOrderFunc: func(context.Context, string, []model.CartItem, model.Selection) (*model.OrderPreview, error) {
			<-release
			return &model.OrderPreview{Total: 999}, nil
		},
	}
	c := newTestController(t, mock)

	c.Recalculate("tok", testItems, model.Selection{})
	idle := c.Recalculate("tok", nil, model.Selection{})
	close(release)
	c.wg.Wait()

	st := c.Snapshot()
	if st.Status != StatusIdle || st.Seq != idle || st.Preview != nil {
		t.Errorf("state = %+v, want idle at seq %d", st, idle)
	}
}

func TestAwait_ContextCancelled(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	mock := &adapter.Mock{
		CalculateOrderFunc: func(context.Context, string, []model.CartItem, model.Selection) (*model.OrderPreview, error) {
			<-release
			return &model.OrderPreview{}, nil
		},
	}
	c := NewController(mock, 0, slog.New(slog.NewTextHandler(io.Discard, nil)))

	seq := c.Recalculate("tok", testItems, model.Selection{})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	st, err := c.Await(ctx, seq)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want DeadlineExceeded", err)
	}
	if st.Status != StatusPending {
		t.Errorf("Status = %q, want pending", st.Status)
	}
}

func TestClose_CancelsInFlight(t *testing.T) {
	mock := &adapter.Mock{
		CalculateOrderFunc: func(ctx context.Context, _ string, _ []model.CartItem, _ model.Selection) (*model.OrderPreview, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	c := NewController(mock, 0, slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.Recalculate("tok", testItems, model.Selection{})

	done := make(chan struct{})
	go func() {
		c.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close() did not return")
	}
	if st := c.Snapshot(); st.Status != StatusFailure {
		t.Errorf("Status = %q, want failure after cancellation", st.Status)
	}
}
