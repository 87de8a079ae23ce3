package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"square-pos/internal/adapter"
	"square-pos/internal/cart"
	"square-pos/internal/model"
	"square-pos/internal/preview"
)

// Registry owns the live sessions of the process.
type Registry struct {
	orders         adapter.OrderService
	snaps          cart.Snapshotter
	previewTimeout time.Duration
	logger         *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry. previewTimeout bounds each
// background price calculation.
func NewRegistry(orders adapter.OrderService, snaps cart.Snapshotter, previewTimeout time.Duration, logger *slog.Logger) *Registry {
	return &Registry{
		orders:         orders,
		snaps:          snaps,
		previewTimeout: previewTimeout,
		logger:         logger,
		sessions:       make(map[string]*Session),
	}
}

// Create starts a session with a fresh id.
func (r *Registry) Create() *Session {
	id := uuid.NewString()

	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.newSessionLocked(id, nil)
	r.logger.Info("cart session created", "cart_id", id)
	return s
}

// Get returns the session for id, restoring it from its snapshot if it is
// not live. A cart with neither a live session nor a snapshot is not found.
func (r *Registry) Get(ctx context.Context, id string) (*Session, error) {
	r.mu.Lock()
	if s, ok := r.sessions[id]; ok {
		r.mu.Unlock()
		return s, nil
	}
	r.mu.Unlock()

	items, err := r.snaps.Load(ctx, id)
	if errors.Is(err, cart.ErrSnapshotMiss) {
		return nil, model.NewNotFoundError("cart")
	}
	if err != nil {
		r.logger.Warn("loading cart snapshot", "cart_id", id, "error", err)
		return nil, model.NewUpstreamError("cart snapshot", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Another request may have restored it while the snapshot loaded.
	if s, ok := r.sessions[id]; ok {
		return s, nil
	}
	s := r.newSessionLocked(id, items)
	r.logger.Info("cart session restored", "cart_id", id, "items", len(items))
	return s, nil
}

// Delete discards the session and its snapshot.
func (r *Registry) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if ok {
		s.close()
	}
	return r.snaps.Delete(ctx, id)
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close stops every live session. Snapshots are kept.
func (r *Registry) Close() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		s.close()
	}
}

func (r *Registry) newSessionLocked(id string, items []model.CartItem) *Session {
	logger := r.logger.With("cart_id", id)
	ctrl := preview.NewController(r.orders, r.previewTimeout, logger)
	s := newSession(id, items, r.orders, r.snaps, ctrl, r.logger)
	r.sessions[id] = s
	return s
}
