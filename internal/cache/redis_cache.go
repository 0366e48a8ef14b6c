package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"stokpintar/backend/internal/domain"
)

const dashboardVersionKey = "dashboard:version"

// RedisDashboardCache namespaces entries by a version counter so that
// Invalidate is a single INCR instead of a key scan.
type RedisDashboardCache struct {
	client *redis.Client
}

func NewRedisDashboardCache(client *redis.Client) *RedisDashboardCache {
	return &RedisDashboardCache{client: client}
}

func (c *RedisDashboardCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisDashboardCache) Close() error {
	return c.client.Close()
}

func (c *RedisDashboardCache) Version(ctx context.Context) (int64, error) {
	ver, err := c.client.Get(ctx, dashboardVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return ver, err
}

func versionedKey(version int64, key string) string {
	return fmt.Sprintf("dashboard:%d:%s", version, key)
}

func (c *RedisDashboardCache) Get(ctx context.Context, version int64, key string) (*domain.DashboardAnalytics, bool, error) {
	val, err := c.client.Get(ctx, versionedKey(version, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var resp domain.DashboardAnalytics
	if err := json.Unmarshal(val, &resp); err != nil {
		return nil, false, err
	}
	return &resp, true, nil
}

// Set stores value under version. Entries written for a generation that has
// already been invalidated are unreachable and expire with their TTL.
func (c *RedisDashboardCache) Set(ctx context.Context, version int64, key string, value *domain.DashboardAnalytics, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, versionedKey(version, key), payload, ttl).Err()
}

func (c *RedisDashboardCache) Invalidate(ctx context.Context) error {
	return c.client.Incr(ctx, dashboardVersionKey).Err()
}
