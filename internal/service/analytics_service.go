package service

import (
	"context"
	"fmt"
	"time"

	"storefront-service/internal/models"
	"storefront-service/internal/store"
	"storefront-service/internal/util"

	"go.uber.org/zap"
)

// AnalyticsStore is the storage surface the analytics service reads
// and writes. *store.Store satisfies it.
type AnalyticsStore interface {
	InsertEvent(ctx context.Context, event *models.Event) error
	InsertEvents(ctx context.Context, events []models.Event) error
	EventsInRange(ctx context.Context, start, end time.Time, types ...string) ([]models.Event, error)
	CountEvents(ctx context.Context, eventType string, start, end time.Time) (int64, error)
	DistinctUserIDs(ctx context.Context, start, end time.Time) ([]string, error)
	CountByProduct(ctx context.Context, eventType string, start, end time.Time) (map[string]int64, error)
	TopDimensionValues(ctx context.Context, dimension string, start, end time.Time, limit int64) ([]store.DimensionCount, error)
	SessionCountsByUsers(ctx context.Context, userIDs []string) (map[string]int64, error)
	RecentEventsByUser(ctx context.Context, userID string, limit int64) ([]models.Event, error)

	CountUsers(ctx context.Context) (int64, error)
	CountUsersSince(ctx context.Context, t time.Time) (int64, error)
	SignupsInRange(ctx context.Context, start, end time.Time) ([]time.Time, error)
	SearchUsers(ctx context.Context, query, country string, page, pageSize int64) ([]models.User, int64, error)
	SearchAllUsers(ctx context.Context, query, country string) ([]models.User, error)
	GetUser(ctx context.Context, id string) (*models.User, error)

	OrderTotalsByEmail(ctx context.Context, emails []string) (map[string]store.OrderTotals, error)
	RecentOrdersByEmail(ctx context.Context, email string, limit int64) ([]models.Order, error)
	PurchasedQuantities(ctx context.Context, start, end time.Time) (map[string]int64, error)
	CountOrdersInRange(ctx context.Context, start, end time.Time, statuses []string) (int64, error)

	GetProductsByIDs(ctx context.Context, ids []string) (map[string]models.Product, error)
}

// AnalyticsService computes user-behavior aggregations. Every query
// recomputes from raw rows: Mongo filters and groups, the joins and
// calendar bucketing happen here.
type AnalyticsService struct {
	store        AnalyticsStore
	lookbackDays int
	logger       *zap.Logger
	now          func() time.Time
}

// NewAnalyticsService creates a new analytics service
func NewAnalyticsService(st AnalyticsStore, lookbackDays int) *AnalyticsService {
	if lookbackDays <= 0 {
		lookbackDays = 30
	}
	return &AnalyticsService{
		store:        st,
		lookbackDays: lookbackDays,
		logger:       util.GetLogger(),
		now:          time.Now,
	}
}

// DateRange is an inclusive createdAt window.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// resolveRange fills range defaults: end = now, start = end minus the
// configured lookback.
func (s *AnalyticsService) resolveRange(r DateRange) DateRange {
	if r.End.IsZero() {
		r.End = s.now()
	}
	if r.Start.IsZero() {
		r.Start = r.End.AddDate(0, 0, -s.lookbackDays)
	}
	return r
}

// RecordEvent validates and appends one interaction event.
func (s *AnalyticsService) RecordEvent(ctx context.Context, event *models.Event) error {
	ctx, span := util.StartSpan(ctx, "AnalyticsService.RecordEvent")
	defer span.End()

	if !models.KnownEventTypes[event.EventType] {
		util.EventsRejectedTotal.Inc()
		return fmt.Errorf("unknown event type: %s", event.EventType)
	}

	if err := s.store.InsertEvent(ctx, event); err != nil {
		return err
	}
	util.EventsRecordedTotal.WithLabelValues(event.EventType).Inc()
	return nil
}

// RecordEvents appends a tracker batch, skipping events with unknown
// types rather than failing the whole batch.
func (s *AnalyticsService) RecordEvents(ctx context.Context, events []models.Event) (int, error) {
	ctx, span := util.StartSpan(ctx, "AnalyticsService.RecordEvents")
	defer span.End()

	accepted := events[:0]
	for _, e := range events {
		if !models.KnownEventTypes[e.EventType] {
			util.EventsRejectedTotal.Inc()
			continue
		}
		accepted = append(accepted, e)
	}
	if len(accepted) == 0 {
		return 0, nil
	}

	if err := s.store.InsertEvents(ctx, accepted); err != nil {
		return 0, err
	}
	for _, e := range accepted {
		util.EventsRecordedTotal.WithLabelValues(e.EventType).Inc()
	}
	util.EventBatchesTotal.Inc()
	return len(accepted), nil
}

// Summary is the top-level user analytics snapshot.
type Summary struct {
	TotalUsers             int64 `json:"total_users"`
	NewSignupsThisMonth    int64 `json:"new_signups_this_month"`
	ActiveUsersToday       int64 `json:"active_users_today"`
	ReturningUsersThisWeek int64 `json:"returning_users_this_week"`
}

// GetSummary computes the user analytics summary.
func (s *AnalyticsService) GetSummary(ctx context.Context) (*Summary, error) {
	ctx, span := util.StartSpan(ctx, "AnalyticsService.GetSummary")
	defer span.End()
	defer observeQuery("summary")()

	now := s.now()

	totalUsers, err := s.store.CountUsers(ctx)
	if err != nil {
		return nil, err
	}

	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	newSignups, err := s.store.CountUsersSince(ctx, monthStart)
	if err != nil {
		return nil, err
	}

	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	activeToday, err := s.store.DistinctUserIDs(ctx, dayStart, now)
	if err != nil {
		return nil, err
	}

	// Returning this week: active in the last 7 days and also active
	// in the 30-day window before that.
	weekStart := now.AddDate(0, 0, -7)
	activeThisWeek, err := s.store.DistinctUserIDs(ctx, weekStart, now)
	if err != nil {
		return nil, err
	}
	activeBefore, err := s.store.DistinctUserIDs(ctx, weekStart.AddDate(0, 0, -30), weekStart)
	if err != nil {
		return nil, err
	}

	before := make(map[string]bool, len(activeBefore))
	for _, id := range activeBefore {
		before[id] = true
	}
	var returning int64
	for _, id := range activeThisWeek {
		if before[id] {
			returning++
		}
	}

	return &Summary{
		TotalUsers:             totalUsers,
		NewSignupsThisMonth:    newSignups,
		ActiveUsersToday:       int64(len(activeToday)),
		ReturningUsersThisWeek: returning,
	}, nil
}

// GetActivityTrend buckets user activity by day or ISO week over the
// last `days` days.
func (s *AnalyticsService) GetActivityTrend(ctx context.Context, period string, days int) ([]TrendBucket, error) {
	ctx, span := util.StartSpan(ctx, "AnalyticsService.GetActivityTrend")
	defer span.End()
	defer observeQuery("activity_trend")()

	if period != PeriodDaily && period != PeriodWeekly {
		return nil, fmt.Errorf("unknown trend period: %s", period)
	}
	if days <= 0 {
		days = s.lookbackDays
	}

	now := s.now()
	start := dayFloor(now).AddDate(0, 0, -(days - 1))

	events, err := s.store.EventsInRange(ctx, start, now)
	if err != nil {
		return nil, err
	}
	signups, err := s.store.SignupsInRange(ctx, start, now)
	if err != nil {
		return nil, err
	}

	return buildActivityTrend(events, signups, period, days, now), nil
}

// GetPageVisitTrend buckets page views by day over the last `days` days.
func (s *AnalyticsService) GetPageVisitTrend(ctx context.Context, days int) ([]PageVisitBucket, error) {
	ctx, span := util.StartSpan(ctx, "AnalyticsService.GetPageVisitTrend")
	defer span.End()
	defer observeQuery("page_visit_trend")()

	if days <= 0 {
		days = s.lookbackDays
	}

	now := s.now()
	start := dayFloor(now).AddDate(0, 0, -(days - 1))

	events, err := s.store.EventsInRange(ctx, start, now, models.EventPageView)
	if err != nil {
		return nil, err
	}

	return buildPageVisitTrend(events, days, now), nil
}

// TopProduct is one row of the product engagement ranking.
type TopProduct struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Views     int64  `json:"views"`
	Clicks    int64  `json:"clicks"`
	Purchased int64  `json:"purchased"`
}

// GetTopProducts ranks products by views, then clicks, joining product
// names and in-range purchase quantities.
func (s *AnalyticsService) GetTopProducts(ctx context.Context, limit int, r DateRange) ([]TopProduct, error) {
	ctx, span := util.StartSpan(ctx, "AnalyticsService.GetTopProducts")
	defer span.End()
	defer observeQuery("top_products")()

	if limit <= 0 {
		limit = 10
	}
	r = s.resolveRange(r)

	views, err := s.store.CountByProduct(ctx, models.EventProductView, r.Start, r.End)
	if err != nil {
		return nil, err
	}
	clicks, err := s.store.CountByProduct(ctx, models.EventProductClick, r.Start, r.End)
	if err != nil {
		return nil, err
	}

	ranked := rankProducts(views, clicks, limit)
	if len(ranked) == 0 {
		return []TopProduct{}, nil
	}

	products, err := s.store.GetProductsByIDs(ctx, ranked)
	if err != nil {
		return nil, err
	}
	purchased, err := s.store.PurchasedQuantities(ctx, r.Start, r.End)
	if err != nil {
		return nil, err
	}

	result := make([]TopProduct, 0, len(ranked))
	for _, id := range ranked {
		row := TopProduct{
			ProductID: id,
			Views:     views[id],
			Clicks:    clicks[id],
			Purchased: purchased[id],
		}
		if p, ok := products[id]; ok {
			row.Name = p.Name
		}
		result = append(result, row)
	}
	return result, nil
}

// TrafficOverview holds the top values per traffic dimension.
type TrafficOverview struct {
	Countries []store.DimensionCount `json:"countries"`
	Sources   []store.DimensionCount `json:"sources"`
	Devices   []store.DimensionCount `json:"devices"`
}

// GetTrafficOverview returns the top-10 non-null values per dimension.
func (s *AnalyticsService) GetTrafficOverview(ctx context.Context, r DateRange) (*TrafficOverview, error) {
	ctx, span := util.StartSpan(ctx, "AnalyticsService.GetTrafficOverview")
	defer span.End()
	defer observeQuery("traffic_overview")()

	r = s.resolveRange(r)

	countries, err := s.store.TopDimensionValues(ctx, "country", r.Start, r.End, 10)
	if err != nil {
		return nil, err
	}
	sources, err := s.store.TopDimensionValues(ctx, "source", r.Start, r.End, 10)
	if err != nil {
		return nil, err
	}
	devices, err := s.store.TopDimensionValues(ctx, "device", r.Start, r.End, 10)
	if err != nil {
		return nil, err
	}

	return &TrafficOverview{Countries: countries, Sources: sources, Devices: devices}, nil
}

// FunnelStage is one independently-counted milestone.
type FunnelStage struct {
	Stage string `json:"stage"`
	Count int64  `json:"count"`
}

// GetBehaviorFunnel returns ordered per-stage counts. The stages are
// counted independently: a user who skips a stage still appears in
// later ones.
func (s *AnalyticsService) GetBehaviorFunnel(ctx context.Context, r DateRange) ([]FunnelStage, error) {
	ctx, span := util.StartSpan(ctx, "AnalyticsService.GetBehaviorFunnel")
	defer span.End()
	defer observeQuery("behavior_funnel")()

	r = s.resolveRange(r)

	stages := []string{
		models.EventSessionStart,
		models.EventProductView,
		models.EventAddToCart,
		models.EventCheckoutStart,
	}

	funnel := make([]FunnelStage, 0, len(stages)+1)
	for _, stage := range stages {
		count, err := s.store.CountEvents(ctx, stage, r.Start, r.End)
		if err != nil {
			return nil, err
		}
		funnel = append(funnel, FunnelStage{Stage: stage, Count: count})
	}

	purchases, err := s.store.CountOrdersInRange(ctx, r.Start, r.End, models.ConfirmedOrLaterStatuses)
	if err != nil {
		return nil, err
	}
	funnel = append(funnel, FunnelStage{Stage: "purchase", Count: purchases})

	return funnel, nil
}

// UserListItem is one user row joined with order totals and session
// counts.
type UserListItem struct {
	models.User
	OrderCount    int64   `json:"order_count"`
	TotalSpent    float64 `json:"total_spent"`
	AvgOrderValue float64 `json:"avg_order_value"`
	Sessions      int64   `json:"sessions"`
}

// UserList is one page of the user listing.
type UserList struct {
	Items    []UserListItem `json:"items"`
	Total    int64          `json:"total"`
	Page     int64          `json:"page"`
	PageSize int64          `json:"page_size"`
}

// UserSearchInput filters and paginates the user listing.
type UserSearchInput struct {
	Query    string `json:"query" form:"query"`
	Country  string `json:"country" form:"country"`
	Page     int64  `json:"page" form:"page"`
	PageSize int64  `json:"page_size" form:"page_size"`
}

// ListUsers returns one page of users with order/session rollups.
func (s *AnalyticsService) ListUsers(ctx context.Context, input UserSearchInput) (*UserList, error) {
	ctx, span := util.StartSpan(ctx, "AnalyticsService.ListUsers")
	defer span.End()
	defer observeQuery("list_users")()

	if input.Page < 1 {
		input.Page = 1
	}
	if input.PageSize <= 0 {
		input.PageSize = 25
	}

	users, total, err := s.store.SearchUsers(ctx, input.Query, input.Country, input.Page, input.PageSize)
	if err != nil {
		return nil, err
	}

	items, err := s.joinUserRollups(ctx, users)
	if err != nil {
		return nil, err
	}

	return &UserList{
		Items:    items,
		Total:    total,
		Page:     input.Page,
		PageSize: input.PageSize,
	}, nil
}

// ExportUsers returns every matching user with rollups (no pagination).
func (s *AnalyticsService) ExportUsers(ctx context.Context, input UserSearchInput) ([]UserListItem, error) {
	ctx, span := util.StartSpan(ctx, "AnalyticsService.ExportUsers")
	defer span.End()
	defer observeQuery("export_users")()

	users, err := s.store.SearchAllUsers(ctx, input.Query, input.Country)
	if err != nil {
		return nil, err
	}
	return s.joinUserRollups(ctx, users)
}

// UserDetail is one user with rollups and recent history.
type UserDetail struct {
	UserListItem
	RecentOrders []models.Order `json:"recent_orders"`
	RecentEvents []models.Event `json:"recent_events"`
}

// GetUserDetail returns one user's rollups plus the 10 most recent
// orders and 15 most recent events.
func (s *AnalyticsService) GetUserDetail(ctx context.Context, userID string) (*UserDetail, error) {
	ctx, span := util.StartSpan(ctx, "AnalyticsService.GetUserDetail")
	defer span.End()
	defer observeQuery("user_detail")()

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	items, err := s.joinUserRollups(ctx, []models.User{*user})
	if err != nil {
		return nil, err
	}

	orders, err := s.store.RecentOrdersByEmail(ctx, user.Email, 10)
	if err != nil {
		return nil, err
	}
	events, err := s.store.RecentEventsByUser(ctx, userID, 15)
	if err != nil {
		return nil, err
	}

	return &UserDetail{
		UserListItem: items[0],
		RecentOrders: orders,
		RecentEvents: events,
	}, nil
}

// joinUserRollups joins order totals (keyed by email) and session
// counts (keyed by userId) onto user rows.
func (s *AnalyticsService) joinUserRollups(ctx context.Context, users []models.User) ([]UserListItem, error) {
	emails := make([]string, len(users))
	ids := make([]string, len(users))
	for i, u := range users {
		emails[i] = u.Email
		ids[i] = u.ID
	}

	totals, err := s.store.OrderTotalsByEmail(ctx, emails)
	if err != nil {
		return nil, err
	}
	sessions, err := s.store.SessionCountsByUsers(ctx, ids)
	if err != nil {
		return nil, err
	}

	items := make([]UserListItem, 0, len(users))
	for _, u := range users {
		item := UserListItem{User: u, Sessions: sessions[u.ID]}
		if t, ok := totals[u.Email]; ok {
			item.OrderCount = t.Count
			item.TotalSpent = t.Sum
			if t.Count > 0 {
				item.AvgOrderValue = t.Sum / float64(t.Count)
			}
		}
		items = append(items, item)
	}
	return items, nil
}

func observeQuery(name string) func() {
	start := time.Now()
	return func() {
		util.AnalyticsQueryLatency.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}
}
