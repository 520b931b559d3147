// Package metrics provides Prometheus instrumentation for the order engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// OrdersTotal counts created orders, partitioned by side and resulting
	// status. A REJECTED order is a normal creation, not an error.
	OrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cocos_orders_total",
		Help: "Total number of orders created",
	}, []string{"side", "status"})

	// OrderLatency tracks end-to-end order creation latency, including the
	// per-user lock wait.
	OrderLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cocos_order_latency_seconds",
		Help:    "Order creation latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"side"})

	// CancellationsTotal counts explicit order cancellations.
	CancellationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cocos_cancellations_total",
		Help: "Total number of orders cancelled",
	})

	// ValuationsTotal counts portfolio computations per strategy.
	ValuationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cocos_valuations_total",
		Help: "Total number of portfolio valuations",
	}, []string{"strategy"})

	// SnapshotsWritten counts end-of-day snapshots persisted by the
	// incremental valuation strategy.
	SnapshotsWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cocos_snapshots_written_total",
		Help: "End-of-day portfolio snapshots persisted",
	})

	// InconsistentStates counts valuations that detected ledger corruption.
	InconsistentStates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cocos_inconsistent_states_total",
		Help: "Valuations that found negative cash or a negative position",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cocos_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cocos_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cocos_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
