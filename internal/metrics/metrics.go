// Package metrics provides Prometheus metrics for the tool server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects tool and brokerage request metrics on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	toolCalls       *prometheus.CounterVec
	toolLatency     *prometheus.HistogramVec
	brokerRequests  *prometheus.CounterVec
	brokerLatency   *prometheus.HistogramVec
	lastTotalProfit prometheus.Gauge
	skippedOrders   prometheus.Counter
}

// New creates a Metrics instance with all collectors registered.
func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		toolCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool invocations by tool and result status.",
		}, []string{"tool", "status"}),
		toolLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_duration_seconds",
			Help:      "Tool invocation latency.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"tool"}),
		brokerRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "requests_total",
			Help:      "Brokerage HTTP attempts by endpoint and status code.",
		}, []string{"endpoint", "code"}),
		brokerLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "request_duration_seconds",
			Help:      "Brokerage HTTP attempt latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		lastTotalProfit: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "last_total_profit",
			Help:      "Total realized profit of the most recent analysis.",
		}),
		skippedOrders: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "skipped_orders_total",
			Help:      "Filled orders excluded from matching because their fields could not be parsed.",
		}),
	}
}

// ObserveTool records one tool invocation.
func (m *Metrics) ObserveTool(tool, status string, elapsed time.Duration) {
	m.toolCalls.WithLabelValues(tool, status).Inc()
	m.toolLatency.WithLabelValues(tool).Observe(elapsed.Seconds())
}

// ObserveBrokerRequest records one brokerage HTTP attempt. A zero status means no response.
func (m *Metrics) ObserveBrokerRequest(endpoint string, status int, elapsed time.Duration) {
	code := "error"
	if status > 0 {
		code = strconv.Itoa(status)
	}
	m.brokerRequests.WithLabelValues(endpoint, code).Inc()
	m.brokerLatency.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

// ObserveAnalysis records the outcome of a profit analysis.
func (m *Metrics) ObserveAnalysis(totalProfit float64, skipped int) {
	m.lastTotalProfit.Set(totalProfit)
	m.skippedOrders.Add(float64(skipped))
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
