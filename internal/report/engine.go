package report

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"dressify/backend/internal/cache"
	"dressify/backend/internal/domain"
)

const (
	topProductsLimit = 5
	recentSalesLimit = 10
	computeTimeout   = 15 * time.Second
)

// SalesLoader returns every sale inside the requested range.
type SalesLoader func(ctx context.Context) ([]domain.Sale, error)

type Engine struct {
	cache    cache.StatsCache
	cacheTTL time.Duration
	group    singleflight.Group
	logger   *zap.Logger
}

func NewEngine(cacheStore cache.StatsCache, cacheTTL time.Duration, logger *zap.Logger) *Engine {
	if cacheStore == nil {
		cacheStore = cache.NoopStatsCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Engine{
		cache:    cacheStore,
		cacheTTL: cacheTTL,
		logger:   logger,
	}
}

// SalesStats serves stats for the range from cache, or computes them once
// for all concurrent callers asking for the same range.
func (e *Engine) SalesStats(ctx context.Context, from string, to string, load SalesLoader) (*domain.SalesStats, error) {
	generation, err := e.cache.Generation(ctx)
	if err != nil {
		e.logger.Warn("stats cache generation unavailable", zap.Error(err))
		stats, err := e.compute(ctx, from, to, load)
		if err != nil {
			return nil, err
		}
		return &stats, nil
	}

	cacheKey := buildCacheKey(generation, from, to)
	if cached, ok, err := e.cache.Get(ctx, cacheKey); err == nil && ok {
		return cached, nil
	} else if err != nil {
		e.logger.Warn("stats cache read failed", zap.String("key", cacheKey), zap.Error(err))
	}

	// Waiters share this computation, so one caller going away must not fail the rest.
	shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), computeTimeout)
	defer cancel()
	val, err, _ := e.group.Do(cacheKey, func() (any, error) {
		stats, err := e.compute(shared, from, to, load)
		if err != nil {
			return nil, err
		}
		if err := e.cache.Set(shared, cacheKey, &stats, e.cacheTTL); err != nil {
			e.logger.Warn("stats cache write failed", zap.String("key", cacheKey), zap.Error(err))
		}
		return stats, nil
	})
	if err != nil {
		return nil, err
	}
	stats := val.(domain.SalesStats)
	stats.TopProducts = append([]domain.ProductSales(nil), stats.TopProducts...)
	return &stats, nil
}

// Invalidate retires every cached stats entry. Failures are logged; the
// entries still expire after the cache TTL.
func (e *Engine) Invalidate(ctx context.Context) {
	if err := e.cache.Invalidate(ctx); err != nil {
		e.logger.Warn("stats cache invalidation failed", zap.Error(err))
	}
}

func (e *Engine) compute(ctx context.Context, from string, to string, load SalesLoader) (domain.SalesStats, error) {
	sales, err := load(ctx)
	if err != nil {
		return domain.SalesStats{}, err
	}
	stats := Summarize(sales)
	stats.From = from
	stats.To = to
	return stats, nil
}

func Summarize(sales []domain.Sale) domain.SalesStats {
	stats := domain.SalesStats{TotalTransactions: len(sales)}
	for _, sale := range sales {
		stats.TotalSalesCents += sale.TotalAmountCents
		stats.CashReceivedCents += sale.PaidAmountCents
		stats.CreditGivenCents += sale.RemainingAmountCents
		switch sale.SaleType {
		case domain.SaleTypeCash:
			stats.CashSales++
		case domain.SaleTypeCredit:
			stats.CreditSales++
		}
	}
	if len(sales) > 0 {
		stats.AverageSaleCents = stats.TotalSalesCents / int64(len(sales))
	}
	stats.TopProducts = TopProducts(sales, topProductsLimit)
	return stats
}

// TopProducts ranks sold lines by quantity, grouped by product name.
func TopProducts(sales []domain.Sale, limit int) []domain.ProductSales {
	byName := make(map[string]*domain.ProductSales)
	for _, sale := range sales {
		for _, line := range sale.Items {
			entry, ok := byName[line.ProductName]
			if !ok {
				entry = &domain.ProductSales{ProductName: line.ProductName}
				byName[line.ProductName] = entry
			}
			entry.Quantity += line.Quantity
			entry.RevenueCents += line.TotalPriceCents
		}
	}

	ranked := make([]domain.ProductSales, 0, len(byName))
	for _, entry := range byName {
		ranked = append(ranked, *entry)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Quantity != ranked[j].Quantity {
			return ranked[i].Quantity > ranked[j].Quantity
		}
		if ranked[i].RevenueCents != ranked[j].RevenueCents {
			return ranked[i].RevenueCents > ranked[j].RevenueCents
		}
		return ranked[i].ProductName < ranked[j].ProductName
	})
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

func CustomerSummary(customer domain.Customer, sales []domain.Sale) domain.CustomerSummary {
	summary := domain.CustomerSummary{Customer: customer, RecentSales: []domain.Sale{}}
	for _, sale := range sales {
		summary.TotalPurchasesCents += sale.TotalAmountCents
		summary.TotalPaidCents += sale.PaidAmountCents
		summary.OutstandingCents += sale.RemainingAmountCents
	}

	recent := append([]domain.Sale(nil), sales...)
	sort.SliceStable(recent, func(i, j int) bool {
		return recent[i].SaleDate.After(recent[j].SaleDate)
	})
	if len(recent) > recentSalesLimit {
		recent = recent[:recentSalesLimit]
	}
	summary.RecentSales = append(summary.RecentSales, recent...)
	return summary
}

func InventorySummary(products []domain.Product) domain.InventorySummary {
	summary := domain.InventorySummary{
		TotalProducts: len(products),
		LowStock:      []domain.LowStockItem{},
	}
	for _, p := range products {
		qty := p.TotalQuantity()
		summary.TotalQuantity += qty
		summary.TotalValueCents += int64(qty) * p.CostCents
		if p.IsLowStock() {
			summary.LowStock = append(summary.LowStock, domain.LowStockItem{
				ProductID:     p.ID,
				Name:          p.Name,
				TotalQuantity: qty,
				Threshold:     p.LowStockThreshold,
			})
		}
	}
	sort.Slice(summary.LowStock, func(i, j int) bool {
		if summary.LowStock[i].TotalQuantity != summary.LowStock[j].TotalQuantity {
			return summary.LowStock[i].TotalQuantity < summary.LowStock[j].TotalQuantity
		}
		return summary.LowStock[i].Name < summary.LowStock[j].Name
	})
	summary.LowStockCount = len(summary.LowStock)
	return summary
}

func buildCacheKey(generation int64, from string, to string) string {
	parts := []string{
		fmt.Sprintf("g:%d", generation),
		"from:" + from,
		"to:" + to,
	}
	hash := sha1.Sum([]byte(strings.Join(parts, "|")))
	return "dressify:stats:" + hex.EncodeToString(hash[:])
}
