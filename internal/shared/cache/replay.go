package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const replayKeyPrefix = "webhook:seen:"

// ReplayGuard records processed keys in Redis with SETNX.
type ReplayGuard struct {
	client redis.UniversalClient
}

// NewReplayGuard creates a replay guard. It returns nil when client is nil.
func NewReplayGuard(client redis.UniversalClient) *ReplayGuard {
	if client == nil {
		return nil
	}
	return &ReplayGuard{client: client}
}

// FirstSeen reports whether key was not recorded within ttl, recording it.
func (g *ReplayGuard) FirstSeen(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := g.client.SetNX(ctx, replayKeyPrefix+key, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("replay guard: %w", err)
	}
	return ok, nil
}

// Forget removes key so the next delivery with the same body is processed.
func (g *ReplayGuard) Forget(ctx context.Context, key string) error {
	if err := g.client.Del(ctx, replayKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("replay guard: %w", err)
	}
	return nil
}
