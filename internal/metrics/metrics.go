// Package metrics exposes the application's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts API requests by method, route pattern and
	// status class.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "plans_http_requests_total",
		Help: "API requests served, by method, route and status.",
	}, []string{"method", "route", "status"})

	// NotificationsTotal counts dispatched notifications by category.
	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "plans_notifications_total",
		Help: "Notifications dispatched, by category.",
	}, []string{"category"})

	// NotificationFailures counts notification deliveries that were at least
	// partially unsuccessful (store write or push send failed).
	NotificationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "plans_notification_failures_total",
		Help: "Notification dispatches with at least one delivery failure.",
	})

	// SweepResetsTotal counts recurrence resets by kind (item or plan).
	SweepResetsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "plans_sweep_resets_total",
		Help: "Recurrence resets applied, by kind.",
	}, []string{"kind"})
)

// Handler returns the /metrics scrape handler for the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
