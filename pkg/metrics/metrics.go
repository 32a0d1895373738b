// Package metrics provides Prometheus metrics for ledger operations.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Operation names used as the "op" label.
const (
	OpSubmit      = "submit"
	OpSubmitBatch = "submit_batch"
	OpLookup      = "lookup"
)

// Registry holds all birthmark metrics on its own prometheus registry.
type Registry struct {
	reg *prometheus.Registry

	Operations       *prometheus.CounterVec
	OperationSeconds *prometheus.HistogramVec
	BatchSize        prometheus.Histogram
	FingerprintBytes *prometheus.CounterVec
	HTTPRequests     *prometheus.CounterVec
	Webhooks         *prometheus.CounterVec
}

// NewRegistry creates a registry with all collectors registered.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		Operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "birthmark_ledger_operations_total", Help: "Ledger backend operations by outcome"},
			[]string{"backend", "op", "status"},
		),
		OperationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Name: "birthmark_ledger_operation_duration_seconds", Help: "Ledger backend operation latency", Buckets: prometheus.DefBuckets},
			[]string{"backend", "op"},
		),
		BatchSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{Name: "birthmark_ledger_batch_size", Help: "Submissions per batch", Buckets: prometheus.ExponentialBuckets(1, 2, 10)},
		),
		FingerprintBytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "birthmark_fingerprint_bytes_total", Help: "Bytes hashed by algorithm"},
			[]string{"algorithm"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "birthmark_http_requests_total", Help: "Ledger gateway HTTP requests"},
			[]string{"method", "route", "code"},
		),
		Webhooks: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "birthmark_webhook_deliveries_total", Help: "Webhook deliveries by event and outcome"},
			[]string{"event", "status"},
		),
	}
	r.reg.MustRegister(
		r.Operations,
		r.OperationSeconds,
		r.BatchSize,
		r.FingerprintBytes,
		r.HTTPRequests,
		r.Webhooks,
		collectors.NewGoCollector(),
	)
	return r
}

// ObserveOperation records one backend operation. status is "ok", "error"
// or, for lookups, "absent".
func (r *Registry) ObserveOperation(backend, op, status string, d time.Duration) {
	r.Operations.WithLabelValues(backend, op, status).Inc()
	r.OperationSeconds.WithLabelValues(backend, op).Observe(d.Seconds())
}

// ObserveBatch records the size of one batch submission.
func (r *Registry) ObserveBatch(n int) {
	r.BatchSize.Observe(float64(n))
}

// AddFingerprintBytes counts bytes fed to a digest.
func (r *Registry) AddFingerprintBytes(algorithm string, n int64) {
	r.FingerprintBytes.WithLabelValues(algorithm).Add(float64(n))
}

// ObserveHTTP records one served request.
func (r *Registry) ObserveHTTP(method, route, code string) {
	r.HTTPRequests.WithLabelValues(method, route, code).Inc()
}

// ObserveWebhook records one delivery. status is "ok", "error" or
// "dropped".
func (r *Registry) ObserveWebhook(event, status string) {
	r.Webhooks.WithLabelValues(event, status).Inc()
}

// Handler serves the registry in Prometheus text format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// Gatherer exposes the underlying registry for tests and custom exporters.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the process-wide registry.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}
