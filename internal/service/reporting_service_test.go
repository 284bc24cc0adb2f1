package service

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"storefront-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeReportingStore is an in-memory ReportingStore.
type fakeReportingStore struct {
	orders       []models.Order
	products     map[string]models.Product
	quantities   map[string]int64
	lowStock     int64
	pendingCount int64
	pendingErr   error
	rangeCalls   int
}

func (f *fakeReportingStore) OrdersInRange(ctx context.Context, start, end time.Time, statuses []string) ([]models.Order, error) {
	f.rangeCalls++
	allowed := map[string]bool{}
	for _, s := range statuses {
		allowed[s] = true
	}
	var out []models.Order
	for _, o := range f.orders {
		if o.CreatedAt.Before(start) || o.CreatedAt.After(end) {
			continue
		}
		if len(statuses) > 0 && !allowed[o.Status] {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

func (f *fakeReportingStore) CountOrdersByStatus(ctx context.Context, status string) (int64, error) {
	if f.pendingErr != nil {
		return 0, f.pendingErr
	}
	return f.pendingCount, nil
}

func (f *fakeReportingStore) PurchasedQuantities(ctx context.Context, start, end time.Time) (map[string]int64, error) {
	return f.quantities, nil
}

func (f *fakeReportingStore) GetProductsByIDs(ctx context.Context, ids []string) (map[string]models.Product, error) {
	out := make(map[string]models.Product)
	for _, id := range ids {
		if p, ok := f.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (f *fakeReportingStore) CountLowStockProducts(ctx context.Context, threshold int) (int64, error) {
	return f.lowStock, nil
}

// fakeCache is an in-memory ReportCache.
type fakeCache struct {
	data map[string][]byte
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: make(map[string][]byte)}
}

func (f *fakeCache) CacheGet(ctx context.Context, key string, out interface{}) (bool, error) {
	raw, ok := f.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, out)
}

func (f *fakeCache) CacheSet(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	f.data[key] = raw
	return nil
}

var reportNow = time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

func reportOrder(status string, total float64, createdAt time.Time, items ...models.OrderItem) models.Order {
	return models.Order{Status: status, Total: total, CreatedAt: createdAt, Items: items}
}

func TestGetOrderAnalytics(t *testing.T) {
	st := &fakeReportingStore{orders: []models.Order{
		reportOrder(models.OrderStatusPending, 100, reportNow.AddDate(0, 0, -1)),
		reportOrder(models.OrderStatusConfirmed, 200, reportNow.AddDate(0, 0, -2)),
		reportOrder(models.OrderStatusDelivered, 400, reportNow.AddDate(0, 0, -3)),
		reportOrder(models.OrderStatusCancelled, 999, reportNow.AddDate(0, 0, -4)),
	}}
	svc := NewReportingService(st, nil, time.Minute, 5)

	analytics, err := svc.GetOrderAnalytics(context.Background(), reportNow.AddDate(0, 0, -30), reportNow)
	require.NoError(t, err)

	assert.Equal(t, int64(4), analytics.TotalOrders)
	assert.Equal(t, 600.0, analytics.Revenue)
	assert.Equal(t, 300.0, analytics.AvgOrderValue)
	assert.Equal(t, int64(1), analytics.StatusBreakdown[models.OrderStatusPending])
	assert.Equal(t, int64(1), analytics.StatusBreakdown[models.OrderStatusCancelled])
}

func TestGetRevenueTrendBuckets(t *testing.T) {
	yesterday := reportNow.AddDate(0, 0, -1)
	st := &fakeReportingStore{orders: []models.Order{
		reportOrder(models.OrderStatusConfirmed, 100, yesterday),
		reportOrder(models.OrderStatusDelivered, 50, yesterday),
		reportOrder(models.OrderStatusShipped, 25, reportNow),
	}}
	svc := NewReportingService(st, nil, time.Minute, 5)
	svc.now = func() time.Time { return reportNow }

	trend, err := svc.GetRevenueTrend(context.Background(), PeriodDaily)
	require.NoError(t, err)
	require.Len(t, trend, 30)

	byBucket := make(map[string]RevenuePoint)
	for _, p := range trend {
		byBucket[p.Bucket] = p
	}
	assert.Equal(t, 150.0, byBucket["2026-08-28"].Revenue)
	assert.Equal(t, int64(2), byBucket["2026-08-28"].Orders)
	assert.Equal(t, 25.0, byBucket["2026-08-29"].Revenue)
	// an empty day still appears with zero revenue
	assert.Equal(t, 0.0, byBucket["2026-08-15"].Revenue)
}

func TestGetProfitCostComparison(t *testing.T) {
	yesterday := reportNow.AddDate(0, 0, -1)
	st := &fakeReportingStore{
		orders: []models.Order{
			reportOrder(models.OrderStatusConfirmed, 300, yesterday,
				models.OrderItem{ProductID: "shirt", Quantity: 2}),
		},
		products: map[string]models.Product{
			"shirt": {ID: "shirt", Name: "Shirt", Cost: 40},
		},
	}
	svc := NewReportingService(st, nil, time.Minute, 5)
	svc.now = func() time.Time { return reportNow }

	comparison, err := svc.GetProfitCostComparison(context.Background(), PeriodDaily)
	require.NoError(t, err)

	byBucket := make(map[string]ProfitCostPoint)
	for _, p := range comparison {
		byBucket[p.Bucket] = p
	}
	day := byBucket["2026-08-28"]
	assert.Equal(t, 300.0, day.Revenue)
	assert.Equal(t, 80.0, day.Cost)
	assert.Equal(t, 220.0, day.Profit)
}

func TestGetTopSellingProducts(t *testing.T) {
	st := &fakeReportingStore{
		quantities: map[string]int64{"shirt": 10, "cap": 25, "mug": 3},
		products: map[string]models.Product{
			"shirt": {ID: "shirt", Name: "Shirt"},
			"cap":   {ID: "cap", Name: "Cap"},
			"mug":   {ID: "mug", Name: "Mug"},
		},
	}
	svc := NewReportingService(st, nil, time.Minute, 5)

	products, err := svc.GetTopSellingProducts(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "cap", products[0].ProductID)
	assert.Equal(t, int64(25), products[0].Quantity)
	assert.Equal(t, "Shirt", products[1].Name)
}

func TestGetDashboardStats(t *testing.T) {
	st := &fakeReportingStore{
		orders: []models.Order{
			reportOrder(models.OrderStatusConfirmed, 100, reportNow.Add(-time.Hour)),
			reportOrder(models.OrderStatusDelivered, 50, reportNow.AddDate(0, 0, -5)),
			reportOrder(models.OrderStatusPending, 999, reportNow.Add(-time.Hour)),
		},
		pendingCount: 3,
		lowStock:     2,
	}
	svc := NewReportingService(st, newFakeCache(), time.Minute, 5)
	svc.now = func() time.Time { return reportNow }

	stats, err := svc.GetDashboardStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 100.0, stats.RevenueToday)
	assert.Equal(t, 150.0, stats.RevenueThisMonth)
	assert.Equal(t, int64(3), stats.PendingOrders)
	assert.Equal(t, int64(2), stats.LowStockProducts)

	// second call is served from cache without another range query
	calls := st.rangeCalls
	cached, err := svc.GetDashboardStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, stats, cached)
	assert.Equal(t, calls, st.rangeCalls)
}

func TestPendingOrdersCountDegradesToZero(t *testing.T) {
	st := &fakeReportingStore{pendingErr: fmt.Errorf("backend down")}
	svc := NewReportingService(st, nil, time.Minute, 5)

	assert.Equal(t, int64(0), svc.GetPendingOrdersCount(context.Background()))
}
