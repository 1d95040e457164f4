// Package cache keeps short-lived copies of hot read queries in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/medequip/depot/internal/model"
)

const (
	recentPrefix = "depot:transfers:recent:"
	// recentGenKey holds the current generation. Lists are stored under
	// their generation, so Invalidate only has to bump it.
	recentGenKey = recentPrefix + "gen"
)

// NewRedisClient returns a client for the Redis server at addr.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// RecentTransfers caches the recent-transfers list, one key per generation
// and limit. A list computed before an invalidation is written under the old
// generation and never read again; it expires after ttl.
type RecentTransfers struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRecentTransfers wraps client. Entries expire after ttl.
func NewRecentTransfers(client *redis.Client, ttl time.Duration) *RecentTransfers {
	return &RecentTransfers{client: client, ttl: ttl}
}

// Get returns the cached list for limit and the generation it was looked up
// under. Pass that generation to Set on a miss.
func (c *RecentTransfers) Get(ctx context.Context, limit int) ([]model.Transfer, int64, bool, error) {
	gen, err := c.generation(ctx)
	if err != nil {
		return nil, 0, false, err
	}

	val, err := c.client.Get(ctx, recentKey(gen, limit)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, gen, false, nil
	}
	if err != nil {
		return nil, gen, false, fmt.Errorf("reading recent transfers: %w", err)
	}

	var transfers []model.Transfer
	if err := json.Unmarshal(val, &transfers); err != nil {
		return nil, gen, false, fmt.Errorf("decoding recent transfers: %w", err)
	}
	return transfers, gen, true, nil
}

// Set stores the list for limit under gen.
func (c *RecentTransfers) Set(ctx context.Context, gen int64, limit int, transfers []model.Transfer) error {
	data, err := json.Marshal(transfers)
	if err != nil {
		return fmt.Errorf("encoding recent transfers: %w", err)
	}
	if err := c.client.Set(ctx, recentKey(gen, limit), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("writing recent transfers: %w", err)
	}
	return nil
}

// Invalidate moves to a new generation, hiding every cached list.
func (c *RecentTransfers) Invalidate(ctx context.Context) error {
	if err := c.client.Incr(ctx, recentGenKey).Err(); err != nil {
		return fmt.Errorf("invalidating recent transfers: %w", err)
	}
	return nil
}

func (c *RecentTransfers) generation(ctx context.Context) (int64, error) {
	gen, err := c.client.Get(ctx, recentGenKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading recent transfers generation: %w", err)
	}
	return gen, nil
}

// Ping checks the connection.
func (c *RecentTransfers) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis connection failed: %w", err)
	}
	return nil
}

func recentKey(gen int64, limit int) string {
	return fmt.Sprintf("%s%d:%d", recentPrefix, gen, limit)
}
