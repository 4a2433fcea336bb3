package report

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dressify/backend/internal/domain"
)

type mapCache struct {
	mu         sync.Mutex
	entries    map[string]domain.SalesStats
	generation int64
	failGen    bool
}

func newMapCache() *mapCache {
	return &mapCache{entries: make(map[string]domain.SalesStats)}
}

func (c *mapCache) Get(_ context.Context, key string) (*domain.SalesStats, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	stats, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	return &stats, true, nil
}

func (c *mapCache) Set(_ context.Context, key string, value *domain.SalesStats, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = *value
	return nil
}

func (c *mapCache) Generation(_ context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failGen {
		return 0, errors.New("redis down")
	}
	return c.generation, nil
}

func (c *mapCache) Invalidate(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	return nil
}

func line(name string, qty int, unit int64) domain.SaleLine {
	return domain.SaleLine{ProductName: name, Quantity: qty, UnitPriceCents: unit, TotalPriceCents: unit * int64(qty)}
}

func sampleSales() []domain.Sale {
	day := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	return []domain.Sale{
		{ID: "s1", SaleType: domain.SaleTypeCash, TotalAmountCents: 240000, PaidAmountCents: 240000, SaleDate: day,
			Items: []domain.SaleLine{line("Lawn Kurta", 3, 80000)}},
		{ID: "s2", SaleType: domain.SaleTypeCredit, TotalAmountCents: 90000, PaidAmountCents: 30000, RemainingAmountCents: 60000, SaleDate: day.Add(time.Hour),
			Items: []domain.SaleLine{line("Chiffon Dupatta", 3, 30000)}},
		{ID: "s3", SaleType: domain.SaleTypeCredit, TotalAmountCents: 35000, RemainingAmountCents: 35000, SaleDate: day.Add(2 * time.Hour),
			Items: []domain.SaleLine{line("Cotton Shalwar", 1, 35000)}},
	}
}

func TestSummarize(t *testing.T) {
	stats := Summarize(sampleSales())

	assert.Equal(t, int64(365000), stats.TotalSalesCents)
	assert.Equal(t, int64(270000), stats.CashReceivedCents)
	assert.Equal(t, int64(95000), stats.CreditGivenCents)
	assert.Equal(t, 3, stats.TotalTransactions)
	assert.Equal(t, 1, stats.CashSales)
	assert.Equal(t, 2, stats.CreditSales)
	assert.Equal(t, int64(121666), stats.AverageSaleCents)

	require.Len(t, stats.TopProducts, 3)
	assert.Equal(t, "Lawn Kurta", stats.TopProducts[0].ProductName, "ties on quantity break by revenue")
	assert.Equal(t, "Chiffon Dupatta", stats.TopProducts[1].ProductName)
}

func TestSummarizeEmpty(t *testing.T) {
	stats := Summarize(nil)
	assert.Zero(t, stats.AverageSaleCents)
	assert.Empty(t, stats.TopProducts)
}

func TestTopProductsLimitsAndGroups(t *testing.T) {
	sales := []domain.Sale{{Items: []domain.SaleLine{
		line("A", 1, 100), line("B", 2, 100), line("C", 3, 100),
		line("D", 4, 100), line("E", 5, 100), line("F", 6, 100), line("A", 10, 100),
	}}}

	top := TopProducts(sales, 5)
	require.Len(t, top, 5)
	assert.Equal(t, "A", top[0].ProductName)
	assert.Equal(t, 11, top[0].Quantity)
	assert.Equal(t, int64(1100), top[0].RevenueCents)
	assert.Equal(t, "C", top[4].ProductName)
}

func TestCustomerSummaryKeepsTenNewest(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sales := make([]domain.Sale, 0, 12)
	for i := 0; i < 12; i++ {
		sales = append(sales, domain.Sale{
			ID:                   string(rune('a' + i)),
			TotalAmountCents:     1000,
			PaidAmountCents:      400,
			RemainingAmountCents: 600,
			SaleDate:             base.AddDate(0, 0, i),
		})
	}

	summary := CustomerSummary(domain.Customer{ID: "cus-1"}, sales)
	assert.Equal(t, int64(12000), summary.TotalPurchasesCents)
	assert.Equal(t, int64(4800), summary.TotalPaidCents)
	assert.Equal(t, int64(7200), summary.OutstandingCents)
	require.Len(t, summary.RecentSales, 10)
	assert.Equal(t, "l", summary.RecentSales[0].ID)
}

func TestInventorySummary(t *testing.T) {
	products := []domain.Product{
		{ID: "p1", Name: "Lawn Kurta", CostCents: 50000, LowStockThreshold: 10,
			Sizes: []domain.SizeBucket{{Size: "M", Quantity: 7}, {Size: "L", Quantity: 1}}},
		{ID: "p2", Name: "Chiffon Dupatta", CostCents: 12000, LowStockThreshold: 10,
			Sizes: []domain.SizeBucket{{Size: "One Size", Quantity: 25}}},
	}

	summary := InventorySummary(products)
	assert.Equal(t, 2, summary.TotalProducts)
	assert.Equal(t, 33, summary.TotalQuantity)
	assert.Equal(t, int64(8*50000+25*12000), summary.TotalValueCents)
	assert.Equal(t, 1, summary.LowStockCount)
	assert.Equal(t, "p1", summary.LowStock[0].ProductID)
}

func TestSalesStatsCachesUntilInvalidated(t *testing.T) {
	c := newMapCache()
	engine := NewEngine(c, time.Minute, nil)
	ctx := context.Background()

	var loads atomic.Int32
	load := func(context.Context) ([]domain.Sale, error) {
		loads.Add(1)
		return sampleSales(), nil
	}

	first, err := engine.SalesStats(ctx, "2026-03-01", "2026-03-31", load)
	require.NoError(t, err)
	second, err := engine.SalesStats(ctx, "2026-03-01", "2026-03-31", load)
	require.NoError(t, err)
	assert.Equal(t, int32(1), loads.Load())
	assert.Equal(t, first.TotalSalesCents, second.TotalSalesCents)
	assert.Equal(t, "2026-03-01", second.From)

	engine.Invalidate(ctx)
	_, err = engine.SalesStats(ctx, "2026-03-01", "2026-03-31", load)
	require.NoError(t, err)
	assert.Equal(t, int32(2), loads.Load())
}

func TestSalesStatsComputesWhenCacheUnavailable(t *testing.T) {
	c := newMapCache()
	c.failGen = true
	engine := NewEngine(c, time.Minute, nil)

	var loads atomic.Int32
	load := func(context.Context) ([]domain.Sale, error) {
		loads.Add(1)
		return sampleSales(), nil
	}
	for i := 0; i < 2; i++ {
		stats, err := engine.SalesStats(context.Background(), "", "", load)
		require.NoError(t, err)
		assert.Equal(t, 3, stats.TotalTransactions)
	}
	assert.Equal(t, int32(2), loads.Load())
}

func TestSalesStatsIgnoresCallerCancellation(t *testing.T) {
	engine := NewEngine(newMapCache(), time.Minute, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stats, err := engine.SalesStats(ctx, "", "", func(loadCtx context.Context) ([]domain.Sale, error) {
		if err := loadCtx.Err(); err != nil {
			return nil, err
		}
		return sampleSales(), nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalTransactions)
}

func TestSalesStatsPropagatesLoadError(t *testing.T) {
	engine := NewEngine(nil, 0, nil)
	boom := errors.New("db down")

	_, err := engine.SalesStats(context.Background(), "", "", func(context.Context) ([]domain.Sale, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestBuildCacheKeyChangesWithGeneration(t *testing.T) {
	assert.NotEqual(t, buildCacheKey(1, "a", "b"), buildCacheKey(2, "a", "b"))
	assert.Equal(t, buildCacheKey(1, "a", "b"), buildCacheKey(1, "a", "b"))
}
