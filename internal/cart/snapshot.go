package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"square-pos/internal/model"
)

// ErrSnapshotMiss is returned by Load when no snapshot exists for a cart.
var ErrSnapshotMiss = errors.New("cart snapshot not found")

// Snapshotter persists a cart's item list between sessions.
type Snapshotter interface {
	Save(ctx context.Context, cartID string, items []model.CartItem) error
	Load(ctx context.Context, cartID string) ([]model.CartItem, error)
	Delete(ctx context.Context, cartID string) error
}

// SnapshotItems returns the persistable form of items: catalog data and
// quantities only. Item-level selections and order-level opt-outs are
// session state and are not persisted.
func SnapshotItems(items []model.CartItem) []model.CartItem {
	out := make([]model.CartItem, len(items))
	for i := range items {
		item := items[i].Clone()
		item.AppliedDiscounts = nil
		item.AppliedTaxRates = nil
		item.ExcludedOrderDiscountNames = nil
		item.ExcludedOrderTaxRates = nil
		item.ItemDiscount = nil
		item.ItemTaxRate = nil
		out[i] = item
	}
	return out
}

// === Redis ===

// DefaultSnapshotTTL bounds how long an abandoned cart is kept.
const DefaultSnapshotTTL = 24 * time.Hour

// RedisSnapshotter stores snapshots as JSON strings with a TTL.
type RedisSnapshotter struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSnapshotter creates a snapshotter. A non-positive ttl uses DefaultSnapshotTTL.
func NewRedisSnapshotter(client *redis.Client, ttl time.Duration) *RedisSnapshotter {
	if ttl <= 0 {
		ttl = DefaultSnapshotTTL
	}
	return &RedisSnapshotter{client: client, ttl: ttl}
}

func (r *RedisSnapshotter) Save(ctx context.Context, cartID string, items []model.CartItem) error {
	data, err := json.Marshal(SnapshotItems(items))
	if err != nil {
		return fmt.Errorf("marshal cart snapshot: %w", err)
	}
	if err := r.client.Set(ctx, snapshotKey(cartID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisSnapshotter) Load(ctx context.Context, cartID string) ([]model.CartItem, error) {
	data, err := r.client.Get(ctx, snapshotKey(cartID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSnapshotMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var items []model.CartItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("unmarshal cart snapshot: %w", err)
	}
	return items, nil
}

func (r *RedisSnapshotter) Delete(ctx context.Context, cartID string) error {
	if err := r.client.Del(ctx, snapshotKey(cartID)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func snapshotKey(cartID string) string {
	return fmt.Sprintf("pos:cart:%s", cartID)
}

// === Memory ===

// MemorySnapshotter keeps snapshots in process. Used when no Redis is configured.
type MemorySnapshotter struct {
	mu    sync.RWMutex
	carts map[string][]byte
}

func NewMemorySnapshotter() *MemorySnapshotter {
	return &MemorySnapshotter{carts: make(map[string][]byte)}
}

func (m *MemorySnapshotter) Save(_ context.Context, cartID string, items []model.CartItem) error {
	data, err := json.Marshal(SnapshotItems(items))
	if err != nil {
		return fmt.Errorf("marshal cart snapshot: %w", err)
	}
	m.mu.Lock()
	m.carts[cartID] = data
	m.mu.Unlock()
	return nil
}

func (m *MemorySnapshotter) Load(_ context.Context, cartID string) ([]model.CartItem, error) {
	m.mu.RLock()
	data, ok := m.carts[cartID]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrSnapshotMiss
	}

	var items []model.CartItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("unmarshal cart snapshot: %w", err)
	}
	return items, nil
}

func (m *MemorySnapshotter) Delete(_ context.Context, cartID string) error {
	m.mu.Lock()
	delete(m.carts, cartID)
	m.mu.Unlock()
	return nil
}
