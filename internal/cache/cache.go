package cache

import (
	"context"
	"time"

	"stokpintar/backend/internal/domain"
)

// DashboardCache stores computed dashboards under a generation. Invalidate
// starts a new generation, typically after a sale changes the underlying
// records. Callers read Version once before computing and pass it to both Get
// and Set, so a result computed before an invalidation never lands in the
// newer generation.
type DashboardCache interface {
	Version(ctx context.Context) (int64, error)
	Get(ctx context.Context, version int64, key string) (*domain.DashboardAnalytics, bool, error)
	Set(ctx context.Context, version int64, key string, value *domain.DashboardAnalytics, ttl time.Duration) error
	Invalidate(ctx context.Context) error
}

type NoopDashboardCache struct{}

func (NoopDashboardCache) Version(_ context.Context) (int64, error) {
	return 0, nil
}

func (NoopDashboardCache) Get(_ context.Context, _ int64, _ string) (*domain.DashboardAnalytics, bool, error) {
	return nil, false, nil
}

func (NoopDashboardCache) Set(_ context.Context, _ int64, _ string, _ *domain.DashboardAnalytics, _ time.Duration) error {
	return nil
}

func (NoopDashboardCache) Invalidate(_ context.Context) error {
	return nil
}
