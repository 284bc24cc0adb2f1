package service

import (
	"context"
	"time"

	"storefront-service/internal/models"
	"storefront-service/internal/util"

	"go.uber.org/zap"
)

// ReportingStore is the storage surface the dashboard reads.
// *store.Store satisfies it.
type ReportingStore interface {
	OrdersInRange(ctx context.Context, start, end time.Time, statuses []string) ([]models.Order, error)
	CountOrdersByStatus(ctx context.Context, status string) (int64, error)
	PurchasedQuantities(ctx context.Context, start, end time.Time) (map[string]int64, error)
	GetProductsByIDs(ctx context.Context, ids []string) (map[string]models.Product, error)
	CountLowStockProducts(ctx context.Context, threshold int) (int64, error)
}

// ReportCache is a short-TTL read cache for dashboard queries.
// *redisclient.Client satisfies it.
type ReportCache interface {
	CacheGet(ctx context.Context, key string, out interface{}) (bool, error)
	CacheSet(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// ReportingService computes admin dashboard aggregates over orders
// and products.
type ReportingService struct {
	store             ReportingStore
	cache             ReportCache
	cacheTTL          time.Duration
	lowStockThreshold int
	logger            *zap.Logger
	now               func() time.Time
}

// NewReportingService creates a new reporting service
func NewReportingService(st ReportingStore, cache ReportCache, cacheTTL time.Duration, lowStockThreshold int) *ReportingService {
	return &ReportingService{
		store:             st,
		cache:             cache,
		cacheTTL:          cacheTTL,
		lowStockThreshold: lowStockThreshold,
		logger:            util.GetLogger(),
		now:               time.Now,
	}
}

// OrderAnalytics summarizes order volume and revenue.
type OrderAnalytics struct {
	TotalOrders     int64            `json:"total_orders"`
	Revenue         float64          `json:"revenue"`
	AvgOrderValue   float64          `json:"avg_order_value"`
	StatusBreakdown map[string]int64 `json:"status_breakdown"`
}

// GetOrderAnalytics computes totals over orders created in the range.
// Revenue counts confirmed-or-later orders only.
func (s *ReportingService) GetOrderAnalytics(ctx context.Context, start, end time.Time) (*OrderAnalytics, error) {
	ctx, span := util.StartSpan(ctx, "ReportingService.GetOrderAnalytics")
	defer span.End()

	orders, err := s.store.OrdersInRange(ctx, start, end, nil)
	if err != nil {
		return nil, err
	}

	confirmed := make(map[string]bool, len(models.ConfirmedOrLaterStatuses))
	for _, st := range models.ConfirmedOrLaterStatuses {
		confirmed[st] = true
	}

	result := &OrderAnalytics{StatusBreakdown: make(map[string]int64)}
	var revenueOrders int64
	for _, o := range orders {
		result.TotalOrders++
		result.StatusBreakdown[o.Status]++
		if confirmed[o.Status] {
			result.Revenue += o.Total
			revenueOrders++
		}
	}
	if revenueOrders > 0 {
		result.AvgOrderValue = result.Revenue / float64(revenueOrders)
	}
	return result, nil
}

// RevenuePoint is one calendar bucket of the revenue trend.
type RevenuePoint struct {
	Bucket  string  `json:"bucket"`
	Revenue float64 `json:"revenue"`
	Orders  int64   `json:"orders"`
}

// trendWindowDays maps a period to its default lookback.
func trendWindowDays(period string) int {
	switch period {
	case PeriodWeekly:
		return 12 * 7
	case PeriodMonthly:
		return 365
	default:
		return 30
	}
}

// GetRevenueTrend buckets confirmed-or-later order revenue by period.
func (s *ReportingService) GetRevenueTrend(ctx context.Context, period string) ([]RevenuePoint, error) {
	ctx, span := util.StartSpan(ctx, "ReportingService.GetRevenueTrend")
	defer span.End()

	now := s.now()
	days := trendWindowDays(period)
	start := dayFloor(now).AddDate(0, 0, -(days - 1))

	orders, err := s.store.OrdersInRange(ctx, start, now, models.ConfirmedOrLaterStatuses)
	if err != nil {
		return nil, err
	}

	revenue := make(map[string]float64)
	counts := make(map[string]int64)
	for _, o := range orders {
		key := bucketKey(o.CreatedAt, period)
		revenue[key] += o.Total
		counts[key]++
	}

	keys := bucketKeys(period, days, now)
	points := make([]RevenuePoint, 0, len(keys))
	for _, key := range keys {
		points = append(points, RevenuePoint{
			Bucket:  key,
			Revenue: revenue[key],
			Orders:  counts[key],
		})
	}
	return points, nil
}

// ProfitCostPoint compares revenue with product cost per bucket.
type ProfitCostPoint struct {
	Bucket  string  `json:"bucket"`
	Revenue float64 `json:"revenue"`
	Cost    float64 `json:"cost"`
	Profit  float64 `json:"profit"`
}

// GetProfitCostComparison buckets revenue against catalog cost for
// confirmed-or-later orders. Cost uses the product's current cost
// (item prices are snapshots, costs are not).
func (s *ReportingService) GetProfitCostComparison(ctx context.Context, period string) ([]ProfitCostPoint, error) {
	ctx, span := util.StartSpan(ctx, "ReportingService.GetProfitCostComparison")
	defer span.End()

	now := s.now()
	days := trendWindowDays(period)
	start := dayFloor(now).AddDate(0, 0, -(days - 1))

	orders, err := s.store.OrdersInRange(ctx, start, now, models.ConfirmedOrLaterStatuses)
	if err != nil {
		return nil, err
	}

	idSet := make(map[string]bool)
	for _, o := range orders {
		for _, item := range o.Items {
			idSet[item.ProductID] = true
		}
	}
	ids := make([]string, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}
	products, err := s.store.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	revenue := make(map[string]float64)
	cost := make(map[string]float64)
	for _, o := range orders {
		key := bucketKey(o.CreatedAt, period)
		revenue[key] += o.Total
		for _, item := range o.Items {
			if p, ok := products[item.ProductID]; ok {
				cost[key] += p.Cost * float64(item.Quantity)
			}
		}
	}

	keys := bucketKeys(period, days, now)
	points := make([]ProfitCostPoint, 0, len(keys))
	for _, key := range keys {
		points = append(points, ProfitCostPoint{
			Bucket:  key,
			Revenue: revenue[key],
			Cost:    cost[key],
			Profit:  revenue[key] - cost[key],
		})
	}
	return points, nil
}

// SellingProduct is one row of the quantity ranking.
type SellingProduct struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Quantity  int64  `json:"quantity"`
}

// GetTopSellingProducts ranks products by total quantity sold.
func (s *ReportingService) GetTopSellingProducts(ctx context.Context, limit int) ([]SellingProduct, error) {
	ctx, span := util.StartSpan(ctx, "ReportingService.GetTopSellingProducts")
	defer span.End()

	if limit <= 0 {
		limit = 10
	}

	quantities, err := s.store.PurchasedQuantities(ctx, time.Time{}, s.now())
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(quantities))
	for id := range quantities {
		ids = append(ids, id)
	}
	// Quantity-descending insertion sort, stable for equal counts.
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && quantities[ids[j]] > quantities[ids[j-1]]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
	if len(ids) > limit {
		ids = ids[:limit]
	}

	products, err := s.store.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	result := make([]SellingProduct, 0, len(ids))
	for _, id := range ids {
		row := SellingProduct{ProductID: id, Quantity: quantities[id]}
		if p, ok := products[id]; ok {
			row.Name = p.Name
		}
		result = append(result, row)
	}
	return result, nil
}

// DashboardStats is the admin landing-page snapshot.
type DashboardStats struct {
	RevenueToday     float64 `json:"revenue_today"`
	RevenueThisMonth float64 `json:"revenue_this_month"`
	PendingOrders    int64   `json:"pending_orders"`
	LowStockProducts int64   `json:"low_stock_products"`
}

// GetDashboardStats computes the dashboard snapshot, cached for a
// short TTL.
func (s *ReportingService) GetDashboardStats(ctx context.Context) (*DashboardStats, error) {
	ctx, span := util.StartSpan(ctx, "ReportingService.GetDashboardStats")
	defer span.End()

	if s.cache != nil {
		var cached DashboardStats
		if ok, err := s.cache.CacheGet(ctx, "dashboard_stats", &cached); err == nil && ok {
			util.DashboardCacheHits.WithLabelValues("hit").Inc()
			return &cached, nil
		}
		util.DashboardCacheHits.WithLabelValues("miss").Inc()
	}

	now := s.now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	monthOrders, err := s.store.OrdersInRange(ctx, monthStart, now, models.ConfirmedOrLaterStatuses)
	if err != nil {
		return nil, err
	}

	stats := &DashboardStats{}
	today := dayFloor(now)
	for _, o := range monthOrders {
		stats.RevenueThisMonth += o.Total
		if !o.CreatedAt.Before(today) {
			stats.RevenueToday += o.Total
		}
	}

	stats.PendingOrders = s.GetPendingOrdersCount(ctx)

	lowStock, err := s.store.CountLowStockProducts(ctx, s.lowStockThreshold)
	if err != nil {
		return nil, err
	}
	stats.LowStockProducts = lowStock

	if s.cache != nil {
		if err := s.cache.CacheSet(ctx, "dashboard_stats", stats, s.cacheTTL); err != nil {
			s.logger.Warn("Failed to cache dashboard stats", zap.Error(err))
		}
	}
	return stats, nil
}

// GetPendingOrdersCount returns the number of pending orders. Backend
// failures are masked: the count degrades to 0 instead of propagating.
func (s *ReportingService) GetPendingOrdersCount(ctx context.Context) int64 {
	count, err := s.store.CountOrdersByStatus(ctx, models.OrderStatusPending)
	if err != nil {
		s.logger.Error("Failed to count pending orders", zap.Error(err))
		return 0
	}
	return count
}
