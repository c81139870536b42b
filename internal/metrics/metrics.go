// Package metrics exposes Prometheus instruments for HTTP traffic, batch progress and provider latency.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every instrument registered by the service.
// Methods are safe on a nil receiver so components can run without metrics.
type Metrics struct {
	gatherer prometheus.Gatherer

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpInFlight        prometheus.Gauge

	batchesSubmitted  prometheus.Counter
	itemsProcessed    *prometheus.CounterVec
	batchesFinished   *prometheus.CounterVec
	batchesRunning    prometheus.Gauge
	gatewayDuration   *prometheus.HistogramVec
	queueJobsRequeued prometheus.Counter
}

// New registers all instruments on reg. Pass prometheus.NewRegistry() in tests.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		gatherer: reg,

		httpRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed",
		}, []string{"method", "route", "status"}),
		httpRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		httpInFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Number of HTTP requests currently being served",
		}),

		batchesSubmitted: f.NewCounter(prometheus.CounterOpts{
			Name: "batches_submitted_total",
			Help: "Batch uploads accepted for processing",
		}),
		itemsProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_items_processed_total",
			Help: "Call items processed, by outcome",
		}, []string{"outcome"}),
		batchesFinished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "batches_finished_total",
			Help: "Batches that reached a terminal status",
		}, []string{"status"}),
		batchesRunning: f.NewGauge(prometheus.GaugeOpts{
			Name: "batches_running",
			Help: "Batches currently being orchestrated by this process",
		}),
		gatewayDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "Voice provider request latencies in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"op", "result"}),
		queueJobsRequeued: f.NewCounter(prometheus.CounterOpts{
			Name: "batch_jobs_requeued_total",
			Help: "Batch jobs re-enqueued by reconciliation",
		}),
	}
}

// Middleware records request count, latency and in-flight requests.
// The matched route template is used as label to keep cardinality low.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		m.httpInFlight.Inc()
		defer m.httpInFlight.Dec()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		labels := prometheus.Labels{
			"method": c.Request.Method,
			"route":  route,
			"status": strconv.Itoa(c.Writer.Status()),
		}
		m.httpRequestsTotal.With(labels).Inc()
		m.httpRequestDuration.With(labels).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the exposition format for this registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ObserveGateway matches telephony.Observer.
func (m *Metrics) ObserveGateway(op string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.gatewayDuration.WithLabelValues(op, result).Observe(elapsed.Seconds())
}

func (m *Metrics) BatchSubmitted() {
	if m == nil {
		return
	}
	m.batchesSubmitted.Inc()
}

// ItemProcessed counts one item outcome ("scheduled" or "failed").
func (m *Metrics) ItemProcessed(outcome string) {
	if m == nil {
		return
	}
	m.itemsProcessed.WithLabelValues(outcome).Inc()
}

func (m *Metrics) BatchFinished(status string) {
	if m == nil {
		return
	}
	m.batchesFinished.WithLabelValues(status).Inc()
}

// BatchRunning adjusts the running gauge by delta (+1 on start, -1 on exit).
func (m *Metrics) BatchRunning(delta int) {
	if m == nil {
		return
	}
	m.batchesRunning.Add(float64(delta))
}

func (m *Metrics) JobRequeued() {
	if m == nil {
		return
	}
	m.queueJobsRequeued.Inc()
}
