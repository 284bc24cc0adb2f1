package service

import (
	"fmt"
	"time"

	"storefront-service/internal/models"
)

// Trend periods
const (
	PeriodDaily   = "daily"
	PeriodWeekly  = "weekly"
	PeriodMonthly = "monthly"
)

// TrendBucket is one calendar bucket of the activity trend.
type TrendBucket struct {
	Bucket      string `json:"bucket"`
	ActiveUsers int64  `json:"active_users"`
	Sessions    int64  `json:"sessions"`
	NewSignups  int64  `json:"new_signups"`
}

// PageVisitBucket is one day of the page-visit trend.
type PageVisitBucket struct {
	Date                   string `json:"date"`
	PageViews              int64  `json:"page_views"`
	Sessions               int64  `json:"sessions"`
	AverageSessionDuration int64  `json:"average_session_duration"`
}

func dayFloor(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// bucketKey derives the calendar bucket key for a timestamp:
// YYYY-MM-DD for daily and monthly uses YYYY-MM, weekly uses the ISO
// year-week pair.
func bucketKey(t time.Time, period string) string {
	switch period {
	case PeriodWeekly:
		year, week := t.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week)
	case PeriodMonthly:
		return t.Format("2006-01")
	default:
		return t.Format("2006-01-02")
	}
}

// bucketKeys returns the ordered bucket keys covering the last `days`
// days ending at now. Weekly buckets are deduplicated since several
// days share one ISO week.
func bucketKeys(period string, days int, now time.Time) []string {
	keys := make([]string, 0, days)
	seen := make(map[string]bool, days)
	day := dayFloor(now).AddDate(0, 0, -(days - 1))
	for !day.After(now) {
		key := bucketKey(day, period)
		if !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
		day = day.AddDate(0, 0, 1)
	}
	return keys
}

// buildActivityTrend buckets events and signups into calendar buckets
// covering the last `days` days. Per bucket it reports distinct active
// users, distinct sessions and new signups.
func buildActivityTrend(events []models.Event, signups []time.Time, period string, days int, now time.Time) []TrendBucket {
	users := make(map[string]map[string]bool)
	sessions := make(map[string]map[string]bool)
	signupCounts := make(map[string]int64)

	for _, e := range events {
		key := bucketKey(e.CreatedAt, period)
		if e.UserID != "" {
			if users[key] == nil {
				users[key] = make(map[string]bool)
			}
			users[key][e.UserID] = true
		}
		if e.SessionID != "" {
			if sessions[key] == nil {
				sessions[key] = make(map[string]bool)
			}
			sessions[key][e.SessionID] = true
		}
	}
	for _, t := range signups {
		signupCounts[bucketKey(t, period)]++
	}

	keys := bucketKeys(period, days, now)
	buckets := make([]TrendBucket, 0, len(keys))
	for _, key := range keys {
		buckets = append(buckets, TrendBucket{
			Bucket:      key,
			ActiveUsers: int64(len(users[key])),
			Sessions:    int64(len(sessions[key])),
			NewSignups:  signupCounts[key],
		})
	}
	return buckets
}

// buildPageVisitTrend buckets page-view events by day. The average
// session duration is floor(total duration / distinct sessions), and 0
// for a day without sessions.
func buildPageVisitTrend(events []models.Event, days int, now time.Time) []PageVisitBucket {
	views := make(map[string]int64)
	sessions := make(map[string]map[string]bool)
	durations := make(map[string]int64)

	for _, e := range events {
		key := bucketKey(e.CreatedAt, PeriodDaily)
		views[key]++
		durations[key] += e.DurationMs
		if e.SessionID != "" {
			if sessions[key] == nil {
				sessions[key] = make(map[string]bool)
			}
			sessions[key][e.SessionID] = true
		}
	}

	keys := bucketKeys(PeriodDaily, days, now)
	buckets := make([]PageVisitBucket, 0, len(keys))
	for _, key := range keys {
		sessionCount := int64(len(sessions[key]))
		var avg int64
		if sessionCount > 0 {
			avg = durations[key] / sessionCount
		}
		buckets = append(buckets, PageVisitBucket{
			Date:                   key,
			PageViews:              views[key],
			Sessions:               sessionCount,
			AverageSessionDuration: avg,
		})
	}
	return buckets
}

// rankProducts orders product IDs by views descending, breaking ties
// by clicks descending, and returns up to limit IDs.
func rankProducts(views, clicks map[string]int64, limit int) []string {
	ids := make([]string, 0, len(views)+len(clicks))
	seen := make(map[string]bool)
	for id := range views {
		seen[id] = true
		ids = append(ids, id)
	}
	for id := range clicks {
		if !seen[id] {
			ids = append(ids, id)
		}
	}

	// Insertion sort keeps ordering deterministic for equal keys.
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0; j-- {
			a, b := ids[j-1], ids[j]
			if views[b] > views[a] || (views[b] == views[a] && clicks[b] > clicks[a]) {
				ids[j-1], ids[j] = b, a
			} else {
				break
			}
		}
	}

	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids
}
