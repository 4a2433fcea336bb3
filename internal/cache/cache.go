package cache

import (
	"context"
	"time"

	"dressify/backend/internal/domain"
)

// StatsCache holds computed sales statistics. Keys are built by the caller
// and should embed the current Generation, so Invalidate retires every
// entry at once without deleting keys.
type StatsCache interface {
	Get(ctx context.Context, key string) (*domain.SalesStats, bool, error)
	Set(ctx context.Context, key string, value *domain.SalesStats, ttl time.Duration) error
	Generation(ctx context.Context) (int64, error)
	Invalidate(ctx context.Context) error
}

type NoopStatsCache struct{}

func (NoopStatsCache) Get(_ context.Context, _ string) (*domain.SalesStats, bool, error) {
	return nil, false, nil
}

func (NoopStatsCache) Set(_ context.Context, _ string, _ *domain.SalesStats, _ time.Duration) error {
	return nil
}

func (NoopStatsCache) Generation(_ context.Context) (int64, error) {
	return 0, nil
}

func (NoopStatsCache) Invalidate(_ context.Context) error {
	return nil
}
