// Package metrics provides Prometheus metrics collection for the RAPI client.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector implements client.Recorder and downloader.Recorder.
type Collector struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	retriesTotal    *prometheus.CounterVec
	downloadedBytes prometheus.Counter
	orderItems      *prometheus.CounterVec
}

// NewCollector registers the client metrics with reg. A nil reg uses the
// default registerer.
func NewCollector(reg prometheus.Registerer, namespace string) *Collector {
	if namespace == "" {
		namespace = "rapi"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Collector{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of RAPI requests by method and status code",
			},
			[]string{"method", "code"},
		),

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "RAPI request duration in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"method"},
		),

		retriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retries_total",
				Help:      "Total number of retried RAPI requests by reason",
			},
			[]string{"reason"},
		),

		downloadedBytes: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "downloaded_bytes_total",
				Help:      "Total bytes written by order downloads",
			},
		),

		orderItems: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "order_items_total",
				Help:      "Order items submitted or settled, by status",
			},
			[]string{"status"},
		),
	}
}

// ObserveRequest records one HTTP attempt. code is the status code or
// "error" when no response was received.
func (c *Collector) ObserveRequest(method, code string, d time.Duration) {
	c.requestsTotal.WithLabelValues(method, code).Inc()
	c.requestDuration.WithLabelValues(method).Observe(d.Seconds())
}

// IncRetry counts a retried attempt.
func (c *Collector) IncRetry(reason string) {
	c.retriesTotal.WithLabelValues(reason).Inc()
}

// AddDownloadedBytes adds n to the downloaded byte counter.
func (c *Collector) AddDownloadedBytes(n int64) {
	if n > 0 {
		c.downloadedBytes.Add(float64(n))
	}
}

// IncOrderItems counts order items reaching status.
func (c *Collector) IncOrderItems(status string) {
	c.orderItems.WithLabelValues(status).Inc()
}

// Handler returns the Prometheus HTTP handler for g.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
