// Package metrics exposes binding and catalog metrics to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/aristath/qpubinder/internal/domain"
	"github.com/aristath/qpubinder/internal/modules/catalog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// Namespace prefixes every metric name
	Namespace = "qpubind"

	OutcomeLabel = "outcome"
	ReasonLabel  = "reason"

	OutcomeSelected = "selected"
	OutcomeNone     = "none"
	OutcomeError    = "error"
)

// Collector owns the metric vectors and the registry they are served from
type Collector struct {
	registry *prometheus.Registry

	bindings        *prometheus.CounterVec
	rejections      *prometheus.CounterVec
	bindingDuration prometheus.Histogram
	catalogVersion  prometheus.Gauge
	catalogQPUs     prometheus.Gauge
}

// New creates a collector with its own registry, including Go runtime and
// process collectors.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		bindings: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "bindings_total",
				Help:      "Binding requests by outcome",
			},
			[]string{OutcomeLabel},
		),
		rejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "rejections_total",
				Help:      "QPUs rejected during binding, by reason",
			},
			[]string{ReasonLabel},
		),
		bindingDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "binding_duration_seconds",
				Help:      "Time spent in a binding request",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 9),
			},
		),
		catalogVersion: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "catalog_version",
				Help:      "Version of the published catalog snapshot",
			},
		),
		catalogQPUs: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "catalog_qpus",
				Help:      "QPUs in the published catalog snapshot",
			},
		),
	}

	c.registry.MustRegister(
		c.bindings,
		c.rejections,
		c.bindingDuration,
		c.catalogVersion,
		c.catalogQPUs,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// ObserveBinding records one binding request
func (c *Collector) ObserveBinding(result *domain.BindingResult, err error, elapsed time.Duration) {
	c.bindingDuration.Observe(elapsed.Seconds())

	switch {
	case err != nil:
		c.bindings.WithLabelValues(OutcomeError).Inc()
		return
	case result.HasSelection():
		c.bindings.WithLabelValues(OutcomeSelected).Inc()
	default:
		c.bindings.WithLabelValues(OutcomeNone).Inc()
	}

	for _, rejection := range result.Rejections {
		c.rejections.WithLabelValues(string(rejection.Code)).Inc()
	}
}

// SnapshotPublished updates the catalog gauges
func (c *Collector) SnapshotPublished(snap *catalog.Snapshot) {
	c.catalogVersion.Set(float64(snap.Version))
	c.catalogQPUs.Set(float64(len(snap.QPUs)))
}

// Registry returns the registry the collector is registered with
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
