// Package metrics exposes Prometheus collectors for the scan pipeline and
// the HTTP layer.
package metrics

import (
	"database/sql"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	scansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linkray_scans_total",
		Help: "Analysis requests by mode, result classification and cache outcome.",
	}, []string{"mode", "result", "cache"})

	modelAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linkray_ai_model_attempts_total",
		Help: "AI backend attempts by model and outcome (ok, error, parse_error).",
	}, []string{"model", "outcome"})

	crawlPages = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "linkray_crawl_pages",
		Help:    "Qualifying pages aggregated per crawl.",
		Buckets: []float64{1, 2, 5, 10, 25, 50, 100},
	})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "linkray_http_request_duration_seconds",
		Help:    "HTTP request duration by path, method and status.",
		Buckets: prometheus.DefBuckets,
	}, []string{"path", "method", "status"})

	dbOpenConns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "linkray_db_open_connections",
		Help: "Open connections in the database pool.",
	})

	dbInUseConns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "linkray_db_in_use_connections",
		Help: "Database pool connections currently in use.",
	})
)

// RecordScan counts one completed analysis request.
func RecordScan(mode, result string, cached bool) {
	scansTotal.WithLabelValues(mode, result, strconv.FormatBool(cached)).Inc()
}

// RecordModelAttempt counts one AI backend attempt.
func RecordModelAttempt(model, outcome string) {
	modelAttempts.WithLabelValues(model, outcome).Inc()
}

// ObserveCrawlPages records how many qualifying pages a crawl aggregated.
func ObserveCrawlPages(n int) {
	crawlPages.Observe(float64(n))
}

// ObserveRequest records one served HTTP request.
func ObserveRequest(path, method string, status int, d time.Duration) {
	requestDuration.WithLabelValues(path, method, strconv.Itoa(status)).Observe(d.Seconds())
}

// UpdateDBStats refreshes the connection pool gauges.
func UpdateDBStats(stats sql.DBStats) {
	dbOpenConns.Set(float64(stats.OpenConnections))
	dbInUseConns.Set(float64(stats.InUse))
}
