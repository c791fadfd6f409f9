// Package prom adapts Prometheus collectors to the observability
// MetricFactory interface.
//
// Metric names are sanitized to Prometheus conventions: dots and dashes
// become underscores, so "matrix.run.latency_ms" registers as
// "matrix_run_latency_ms".
package prom

import (
	"errors"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/xraph/matrix/observability"
)

// Ensure Factory implements observability.MetricFactory at compile time.
var _ observability.MetricFactory = (*Factory)(nil)

// Factory creates Prometheus-backed counters and histograms.
type Factory struct {
	registerer prometheus.Registerer
	buckets    []float64
}

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithBuckets sets the histogram buckets. Defaults to prometheus.DefBuckets.
func WithBuckets(buckets []float64) FactoryOption {
	return func(f *Factory) { f.buckets = buckets }
}

// NewFactory creates a Factory registering collectors with the given
// registerer. Pass prometheus.DefaultRegisterer for the process default.
func NewFactory(reg prometheus.Registerer, opts ...FactoryOption) *Factory {
	f := &Factory{
		registerer: reg,
		buckets:    prometheus.DefBuckets,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Counter implements observability.MetricFactory.
func (f *Factory) Counter(name string) observability.Counter {
	c := prometheus.NewCounter(prometheus.CounterOpts{
		Name: sanitize(name),
	})
	if err := f.registerer.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing
			}
		}
	}
	return c
}

// Histogram implements observability.MetricFactory.
func (f *Factory) Histogram(name string) observability.Histogram {
	h := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    sanitize(name),
		Buckets: f.buckets,
	})
	if err := f.registerer.Register(h); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing
			}
		}
	}
	return h
}

// sanitize converts dotted metric names to Prometheus-safe names.
func sanitize(name string) string {
	r := strings.NewReplacer(".", "_", "-", "_")
	return r.Replace(name)
}
