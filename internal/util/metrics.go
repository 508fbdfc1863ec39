package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	StorageWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storage_writes_total",
		Help: "Total number of collection writes to the storage backend",
	}, []string{"key"})

	StorageLoadFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storage_load_failures_total",
		Help: "Total number of collection loads that fell back to an empty value",
	}, []string{"key", "reason"})

	ChangeNotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storage_change_notifications_total",
		Help: "Total number of change notifications dispatched to subscribers",
	}, []string{"key", "source"})

	SeedMergeWritesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_seed_merge_writes_total",
		Help: "Total number of seed merges that had to rewrite the catalog",
	})

	OrdersPlacedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_placed_total",
		Help: "Total number of orders placed",
	})

	OrderStatusChangesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_status_changes_total",
		Help: "Total number of order status overwrites",
	}, []string{"status"})

	CartOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_operations_total",
		Help: "Total number of cart mutations",
	}, []string{"op"})

	CartSessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cart_sessions_active",
		Help: "Number of open cart sessions",
	})

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
