package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsRecordedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "user_events_recorded_total",
		Help: "Total number of user interaction events recorded",
	}, []string{"event_type"})

	EventBatchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "user_event_batches_total",
		Help: "Total number of tracker event batches ingested",
	})

	EventsRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "user_events_rejected_total",
		Help: "Total number of events rejected at validation",
	})

	OrderStatusTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_status_transitions_total",
		Help: "Total number of order status transitions",
	}, []string{"to_status"})

	StockAdjustmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_adjustments_total",
		Help: "Total number of order stock adjustments",
	}, []string{"direction"})

	PaymentsRecordedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bank_transfer_payments_recorded_total",
		Help: "Total number of bank transfer payments recorded",
	})

	NotificationsPublishedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "order_notifications_published_total",
		Help: "Total number of order notification events published",
	})

	NotificationPublishFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "order_notification_publish_failures_total",
		Help: "Total number of swallowed notification publish failures",
	})

	NotificationsDispatchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_notifications_dispatched_total",
		Help: "Total number of notifications dispatched by the worker",
	}, []string{"status"})

	ReviewsSubmittedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reviews_submitted_total",
		Help: "Total number of product reviews submitted",
	})

	ReviewsModeratedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reviews_moderated_total",
		Help: "Total number of review moderation decisions",
	}, []string{"decision"})

	AnalyticsQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "analytics_query_latency_seconds",
		Help:    "Latency of analytics aggregation queries",
		Buckets: prometheus.DefBuckets,
	}, []string{"query"})

	DashboardCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dashboard_cache_total",
		Help: "Dashboard read cache hits and misses",
	}, []string{"result"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
