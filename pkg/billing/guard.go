package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/noomo-ai/noomo-backend/pkg/cache"
)

// EventGuard deduplicates webhook deliveries by event id
type EventGuard interface {
	// CheckAndMark atomically marks the event as seen, returning true when
	// the event was already marked by an earlier delivery
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	// Delete unmarks the event so a retried delivery can be reprocessed
	Delete(ctx context.Context, eventID string) error
}

const (
	eventGuardPrefix = "stripe:event:"
	eventGuardTTL    = 24 * time.Hour
)

// RedisEventGuard backs the dedup guard with Redis SETNX. Stripe retries
// deliveries for up to three days, so marks carry a TTL rather than living
// forever.
type RedisEventGuard struct {
	cache *cache.Client
}

// NewRedisEventGuard creates a Redis-backed event guard
func NewRedisEventGuard(c *cache.Client) *RedisEventGuard {
	return &RedisEventGuard{cache: c}
}

func (g *RedisEventGuard) CheckAndMark(ctx context.Context, eventID string) (bool, error) {
	set, err := g.cache.SetNX(ctx, eventGuardPrefix+eventID, "1", eventGuardTTL)
	if err != nil {
		return false, fmt.Errorf("failed to mark event: %w", err)
	}
	return !set, nil
}

func (g *RedisEventGuard) Delete(ctx context.Context, eventID string) error {
	return g.cache.Delete(ctx, eventGuardPrefix+eventID)
}
