package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/avelar/fintrack/internal/domain"
	apperrors "github.com/avelar/fintrack/pkg/errors"
)

const statsKeyPrefix = "stats:"

// DefaultStatsTTL bounds how stale a cached dashboard aggregate can get if an
// invalidation is ever missed.
const DefaultStatsTTL = 5 * time.Minute

// StatsCache implements repository.StatsCache using Redis.
type StatsCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStatsCache creates a new Redis-backed dashboard stats cache.
func NewStatsCache(client *redis.Client, ttl time.Duration) *StatsCache {
	if ttl <= 0 {
		ttl = DefaultStatsTTL
	}
	return &StatsCache{
		client: client,
		ttl:    ttl,
	}
}

// statsKey builds the cache key for a user's aggregate over a date range.
// Keys share the "stats:<userID>:" prefix so InvalidateUser can drop every
// range a user has cached.
func statsKey(userID string, start, end *time.Time) string {
	from, to := "all", "all"
	if start != nil {
		from = start.UTC().Format("2006-01-02")
	}
	if end != nil {
		to = end.UTC().Format("2006-01-02")
	}
	return statsKeyPrefix + userID + ":" + from + ":" + to
}

// Get retrieves cached dashboard stats for the user and date range.
func (c *StatsCache) Get(ctx context.Context, userID string, start, end *time.Time) (*domain.DashboardStats, error) {
	data, err := c.client.Get(ctx, statsKey(userID, start, end)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("redis get stats: %w", err)
	}

	var stats domain.DashboardStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, fmt.Errorf("unmarshal stats: %w", err)
	}

	return &stats, nil
}

// Set caches dashboard stats for the user and date range with the configured TTL.
func (c *StatsCache) Set(ctx context.Context, userID string, start, end *time.Time, stats *domain.DashboardStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}

	if err := c.client.Set(ctx, statsKey(userID, start, end), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set stats: %w", err)
	}

	return nil
}

// InvalidateUser drops every cached range for the user. Uses SCAN rather than
// KEYS so it stays safe against a shared production instance.
func (c *StatsCache) InvalidateUser(ctx context.Context, userID string) error {
	pattern := statsKeyPrefix + userID + ":*"

	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	keys := []string{}
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan stats keys: %w", err)
	}

	if len(keys) == 0 {
		return nil
	}

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del stats keys: %w", err)
	}

	return nil
}
