// Package preview orchestrates server-side price calculation for a cart.
//
// A Controller moves through idle, pending and then success or failure each
// time the cart or order-level selection changes. Only the most recently
// initiated calculation may settle the state; results of superseded calls are
// dropped when they arrive.
package preview

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"square-pos/internal/model"
)

// Status is the lifecycle position of the preview.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// Calculator prices a cart remotely. adapter.OrderService satisfies it.
type Calculator interface {
	CalculateOrder(ctx context.Context, accessToken string, items []model.CartItem, sel model.Selection) (*model.OrderPreview, error)
}

// State is a point-in-time view of the controller.
//
// Preview carries the latest successful result. It is retained while a newer
// calculation is pending and cleared on idle or failure.
type State struct {
	Seq     uint64
	Status  Status
	Preview *model.OrderPreview
	Err     error
}

// Settled reports whether no calculation is in flight.
func (s State) Settled() bool {
	return s.Status != StatusPending
}

// Controller runs calculations and tracks their outcome.
type Controller struct {
	calc    Calculator
	logger  *slog.Logger
	timeout time.Duration

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	seq     uint64
	state   State
	changed chan struct{}
}

// NewController creates an idle controller. A zero timeout leaves calls
// bounded only by the calculator's own transport deadline.
func NewController(calc Calculator, timeout time.Duration, logger *slog.Logger) *Controller {
	base, cancel := context.WithCancel(context.Background())
	return &Controller{
		calc:    calc,
		logger:  logger,
		timeout: timeout,
		base:    base,
		cancel:  cancel,
		state:   State{Status: StatusIdle},
		changed: make(chan struct{}),
	}
}

// Recalculate starts a calculation for the given inputs and returns its
// sequence number. With no token or no items the controller goes idle
// without calling out; any in-flight result is then discarded.
func (c *Controller) Recalculate(accessToken string, items []model.CartItem, sel model.Selection) uint64 {
	c.mu.Lock()
	c.seq++
	seq := c.seq

	if accessToken == "" || len(items) == 0 {
		c.setLocked(State{Seq: seq, Status: StatusIdle})
		c.mu.Unlock()
		return seq
	}

	c.setLocked(State{Seq: seq, Status: StatusPending, Preview: c.state.Preview})
	c.wg.Add(1)
	c.mu.Unlock()

	go c.run(seq, accessToken, items, sel)
	return seq
}

func (c *Controller) run(seq uint64, accessToken string, items []model.CartItem, sel model.Selection) {
	defer c.wg.Done()

	ctx := c.base
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	preview, err := c.calc.CalculateOrder(ctx, accessToken, items, sel)

	c.mu.Lock()
	defer c.mu.Unlock()

	if seq != c.seq {
		c.logger.Debug("discarding stale preview", "seq", seq, "latest", c.seq)
		return
	}

	if err != nil {
		c.logger.Warn("order preview failed", "seq", seq, "error", err, "duration", time.Since(start))
		c.setLocked(State{Seq: seq, Status: StatusFailure, Err: normalize(err)})
		return
	}

	c.logger.Debug("order preview ready", "seq", seq, "total", preview.Total, "duration", time.Since(start))
	c.setLocked(State{Seq: seq, Status: StatusSuccess, Preview: preview})
}

// normalize keeps classified errors and folds everything else into a
// generic internal error.
func normalize(err error) error {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return model.NewInternalError(err)
}

// setLocked replaces the state and wakes waiters. Caller holds c.mu.
func (c *Controller) setLocked(s State) {
	c.state = s
	close(c.changed)
	c.changed = make(chan struct{})
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Await blocks until the state is settled at or beyond seq. If ctx ends
// first, the current state is returned with ctx's error.
func (c *Controller) Await(ctx context.Context, seq uint64) (State, error) {
	for {
		c.mu.Lock()
		st, ch := c.state, c.changed
		c.mu.Unlock()

		if st.Seq >= seq && st.Settled() {
			return st, nil
		}

		select {
		case <-ch:
		case <-ctx.Done():
			return st, ctx.Err()
		}
	}
}

// Close cancels in-flight calculations and waits for them to return.
func (c *Controller) Close() {
	c.cancel()
	c.wg.Wait()
}
