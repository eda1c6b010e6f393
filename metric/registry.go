package metric

import (
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/c360/semlink/errors"
)

type metricKey struct {
	service string
	name    string
}

func (k metricKey) String() string { return k.service + "." + k.name }

// MetricsRegistry owns the Prometheus registry for a process: the core access-layer
// metrics, Go runtime and process collectors, and whatever components add by name.
type MetricsRegistry struct {
	prom    *prometheus.Registry
	Metrics *Metrics

	mu    sync.Mutex
	owned map[metricKey]prometheus.Collector
}

// NewMetricsRegistry creates a registry with the core metrics already registered
func NewMetricsRegistry() *MetricsRegistry {
	r := &MetricsRegistry{
		prom:    prometheus.NewRegistry(),
		Metrics: NewMetrics(),
		owned:   make(map[metricKey]prometheus.Collector),
	}
	r.prom.MustRegister(r.Metrics.collectors()...)
	r.prom.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// PrometheusRegistry exposes the underlying registry for scraping
func (r *MetricsRegistry) PrometheusRegistry() *prometheus.Registry {
	return r.prom
}

// CoreMetrics returns the core metrics. Safe on a nil registry.
func (r *MetricsRegistry) CoreMetrics() *Metrics {
	if r == nil {
		return nil
	}
	return r.Metrics
}

// Register adds a collector under service/name. A name can be registered once per
// service; Prometheus descriptor conflicts across services are reported as invalid too.
func (r *MetricsRegistry) Register(service, name string, c prometheus.Collector) error {
	key := metricKey{service: service, name: name}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.owned[key]; ok {
		return errors.WrapInvalid(fmt.Errorf("metric %s already registered", key),
			"MetricsRegistry", "Register", "check duplicate")
	}
	if err := r.prom.Register(c); err != nil {
		var dup prometheus.AlreadyRegisteredError
		if stderrors.As(err, &dup) {
			return errors.WrapInvalid(err, "MetricsRegistry", "Register", "register "+key.String())
		}
		return errors.WrapFatal(err, "MetricsRegistry", "Register", "register "+key.String())
	}
	r.owned[key] = c
	return nil
}

// RegisterCounter registers a counter
func (r *MetricsRegistry) RegisterCounter(service, name string, c prometheus.Counter) error {
	return r.Register(service, name, c)
}

// RegisterGauge registers a gauge
func (r *MetricsRegistry) RegisterGauge(service, name string, g prometheus.Gauge) error {
	return r.Register(service, name, g)
}

// RegisterHistogram registers a histogram
func (r *MetricsRegistry) RegisterHistogram(service, name string, h prometheus.Histogram) error {
	return r.Register(service, name, h)
}

// RegisterHistogramVec registers a labelled histogram
func (r *MetricsRegistry) RegisterHistogramVec(service, name string, h *prometheus.HistogramVec) error {
	return r.Register(service, name, h)
}

// Unregister removes a collector added through Register. It reports whether anything
// was removed.
func (r *MetricsRegistry) Unregister(service, name string) bool {
	key := metricKey{service: service, name: name}

	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.owned[key]
	if !ok || !r.prom.Unregister(c) {
		return false
	}
	delete(r.owned, key)
	return true
}
