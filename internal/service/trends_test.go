package service

import (
	"testing"
	"time"

	"storefront-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var trendNow = time.Date(2026, 8, 29, 15, 0, 0, 0, time.UTC)

func TestBucketKeys(t *testing.T) {
	keys := bucketKeys(PeriodDaily, 14, trendNow)
	require.Len(t, keys, 14)
	assert.Equal(t, "2026-08-16", keys[0])
	assert.Equal(t, "2026-08-29", keys[13])

	// weekly keys are deduplicated across the days of one ISO week
	weekly := bucketKeys(PeriodWeekly, 14, trendNow)
	assert.LessOrEqual(t, len(weekly), 3)
	for i := 1; i < len(weekly); i++ {
		assert.NotEqual(t, weekly[i-1], weekly[i])
	}
}

func TestBucketKeyFormats(t *testing.T) {
	ts := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, "2026-01-02", bucketKey(ts, PeriodDaily))
	assert.Equal(t, "2026-01", bucketKey(ts, PeriodMonthly))
	// Jan 2 2026 falls in ISO week 1 of 2026
	assert.Equal(t, "2026-W01", bucketKey(ts, PeriodWeekly))
}

func TestBuildActivityTrend(t *testing.T) {
	day := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)
	events := []models.Event{
		{EventType: models.EventPageView, UserID: "u1", SessionID: "s1", CreatedAt: day},
		{EventType: models.EventPageView, UserID: "u1", SessionID: "s2", CreatedAt: day.Add(time.Hour)},
		{EventType: models.EventPageView, UserID: "u2", SessionID: "s3", CreatedAt: day},
		{EventType: models.EventPageView, SessionID: "s4", CreatedAt: day}, // anonymous
	}
	signups := []time.Time{day, day.Add(2 * time.Hour)}

	buckets := buildActivityTrend(events, signups, PeriodDaily, 7, trendNow)
	require.Len(t, buckets, 7)

	var target TrendBucket
	for _, b := range buckets {
		if b.Bucket == "2026-08-28" {
			target = b
		}
	}
	assert.Equal(t, int64(2), target.ActiveUsers)
	assert.Equal(t, int64(4), target.Sessions)
	assert.Equal(t, int64(2), target.NewSignups)
}

func TestBuildPageVisitTrendAverageDuration(t *testing.T) {
	day := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)
	events := []models.Event{
		{EventType: models.EventPageView, SessionID: "s1", DurationMs: 4000, CreatedAt: day},
		{EventType: models.EventPageView, SessionID: "s1", DurationMs: 2000, CreatedAt: day},
		{EventType: models.EventPageView, SessionID: "s2", DurationMs: 3000, CreatedAt: day},
	}

	buckets := buildPageVisitTrend(events, 3, trendNow)
	require.Len(t, buckets, 3)

	byDate := make(map[string]PageVisitBucket)
	for _, b := range buckets {
		byDate[b.Date] = b
	}

	busy := byDate["2026-08-28"]
	assert.Equal(t, int64(3), busy.PageViews)
	assert.Equal(t, int64(2), busy.Sessions)
	assert.Equal(t, int64(4500), busy.AverageSessionDuration)

	// a day without sessions reports average 0
	quiet := byDate["2026-08-29"]
	assert.Equal(t, int64(0), quiet.Sessions)
	assert.Equal(t, int64(0), quiet.AverageSessionDuration)
}

func TestRankProducts(t *testing.T) {
	views := map[string]int64{"a": 10, "b": 30, "c": 10, "d": 5}
	clicks := map[string]int64{"a": 8, "c": 2, "e": 50}

	ranked := rankProducts(views, clicks, 3)
	require.Len(t, ranked, 3)
	assert.Equal(t, "b", ranked[0])
	// equal views break ties by clicks
	assert.Equal(t, "a", ranked[1])
	assert.Equal(t, "c", ranked[2])
}

func TestRankProductsIncludesClickOnly(t *testing.T) {
	views := map[string]int64{}
	clicks := map[string]int64{"x": 3}

	ranked := rankProducts(views, clicks, 10)
	assert.Equal(t, []string{"x"}, ranked)
}
