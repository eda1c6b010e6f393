package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "semlink"

// Metrics contains the platform metrics shared by the broker manager and resource pools.
// All Record methods are safe to call on a nil *Metrics.
type Metrics struct {
	// Broker metrics
	BrokerState             *prometheus.GaugeVec
	BrokerConnectAttempts   *prometheus.CounterVec
	BrokerConnectTimeouts   *prometheus.CounterVec
	BrokerReconnectsPlanned *prometheus.CounterVec
	MessagesReceived        *prometheus.CounterVec
	MessagesDispatched      *prometheus.CounterVec
	MessagesUnmatched       *prometheus.CounterVec
	MessagesPublished       *prometheus.CounterVec
	HandlerPanics           *prometheus.CounterVec
	DispatchDuration        *prometheus.HistogramVec

	// Pool metrics
	PoolEntries            *prometheus.GaugeVec
	PoolBorrowed           *prometheus.GaugeVec
	PoolAcquireDuration    *prometheus.HistogramVec
	PoolValidationFailures *prometheus.CounterVec
	PoolCreateFailures     *prometheus.CounterVec
	PoolActionErrors       *prometheus.CounterVec

	// Shared
	ErrorsTotal       *prometheus.CounterVec
	HealthCheckStatus *prometheus.GaugeVec
}

// NewMetrics creates a new Metrics instance with all platform metrics
func NewMetrics() *Metrics {
	return &Metrics{
		BrokerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "broker",
				Name:      "state",
				Help:      "Broker connection state (0=disconnected, 1=connecting, 2=connected, 3=closing)",
			},
			[]string{"broker"},
		),

		BrokerConnectAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "broker",
				Name:      "connect_attempts_total",
				Help:      "Total number of connection attempts started",
			},
			[]string{"broker"},
		),

		BrokerConnectTimeouts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "broker",
				Name:      "connect_timeouts_total",
				Help:      "Total number of connection attempts abandoned by the connect timeout",
			},
			[]string{"broker"},
		),

		BrokerReconnectsPlanned: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "broker",
				Name:      "reconnects_scheduled_total",
				Help:      "Total number of reconnection attempts scheduled",
			},
			[]string{"broker"},
		),

		MessagesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "messages",
				Name:      "received_total",
				Help:      "Total number of inbound messages delivered by the transport",
			},
			[]string{"broker"},
		),

		MessagesDispatched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "messages",
				Name:      "dispatched_total",
				Help:      "Total number of handler invocations",
			},
			[]string{"broker"},
		),

		MessagesUnmatched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "messages",
				Name:      "unmatched_total",
				Help:      "Total number of inbound messages with no matching handler",
			},
			[]string{"broker"},
		),

		MessagesPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "messages",
				Name:      "published_total",
				Help:      "Total number of messages published",
			},
			[]string{"broker"},
		),

		HandlerPanics: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "messages",
				Name:      "handler_panics_total",
				Help:      "Total number of recovered handler panics",
			},
			[]string{"broker"},
		),

		DispatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "messages",
				Name:      "dispatch_duration_seconds",
				Help:      "Time spent running all handlers for one inbound message",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"broker"},
		),

		PoolEntries: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "pool",
				Name:      "entries",
				Help:      "Number of live entries in the pool",
			},
			[]string{"pool"},
		),

		PoolBorrowed: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "pool",
				Name:      "borrowed",
				Help:      "Number of entries currently borrowed",
			},
			[]string{"pool"},
		),

		PoolAcquireDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "pool",
				Name:      "acquire_duration_seconds",
				Help:      "Time spent acquiring a healthy entry",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"pool"},
		),

		PoolValidationFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pool",
				Name:      "validation_failures_total",
				Help:      "Total number of entries destroyed after failing validation on borrow",
			},
			[]string{"pool"},
		),

		PoolCreateFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pool",
				Name:      "create_failures_total",
				Help:      "Total number of failed entry creations",
			},
			[]string{"pool"},
		),

		PoolActionErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pool",
				Name:      "action_errors_total",
				Help:      "Total number of actions that returned an error or panicked",
			},
			[]string{"pool"},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "errors",
				Name:      "total",
				Help:      "Total number of errors",
			},
			[]string{"service", "type"},
		),

		HealthCheckStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "health",
				Name:      "status",
				Help:      "Health check status (0=unhealthy, 1=healthy)",
			},
			[]string{"service"},
		),
	}
}

func (c *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.BrokerState,
		c.BrokerConnectAttempts,
		c.BrokerConnectTimeouts,
		c.BrokerReconnectsPlanned,
		c.MessagesReceived,
		c.MessagesDispatched,
		c.MessagesUnmatched,
		c.MessagesPublished,
		c.HandlerPanics,
		c.DispatchDuration,
		c.PoolEntries,
		c.PoolBorrowed,
		c.PoolAcquireDuration,
		c.PoolValidationFailures,
		c.PoolCreateFailures,
		c.PoolActionErrors,
		c.ErrorsTotal,
		c.HealthCheckStatus,
	}
}

// RecordBrokerState updates the broker state gauge
func (c *Metrics) RecordBrokerState(broker string, state int) {
	if c == nil {
		return
	}
	c.BrokerState.WithLabelValues(broker).Set(float64(state))
}

// RecordConnectAttempt increments the connect attempt counter
func (c *Metrics) RecordConnectAttempt(broker string) {
	if c == nil {
		return
	}
	c.BrokerConnectAttempts.WithLabelValues(broker).Inc()
}

// RecordConnectTimeout increments the connect timeout counter
func (c *Metrics) RecordConnectTimeout(broker string) {
	if c == nil {
		return
	}
	c.BrokerConnectTimeouts.WithLabelValues(broker).Inc()
}

// RecordReconnectScheduled increments the scheduled reconnect counter
func (c *Metrics) RecordReconnectScheduled(broker string) {
	if c == nil {
		return
	}
	c.BrokerReconnectsPlanned.WithLabelValues(broker).Inc()
}

// RecordMessageReceived increments received message counter
func (c *Metrics) RecordMessageReceived(broker string) {
	if c == nil {
		return
	}
	c.MessagesReceived.WithLabelValues(broker).Inc()
}

// RecordDispatch records the handler count and duration of one dispatch
func (c *Metrics) RecordDispatch(broker string, handlers int, duration time.Duration) {
	if c == nil {
		return
	}
	if handlers == 0 {
		c.MessagesUnmatched.WithLabelValues(broker).Inc()
		return
	}
	c.MessagesDispatched.WithLabelValues(broker).Add(float64(handlers))
	c.DispatchDuration.WithLabelValues(broker).Observe(duration.Seconds())
}

// RecordMessagePublished increments published message counter
func (c *Metrics) RecordMessagePublished(broker string) {
	if c == nil {
		return
	}
	c.MessagesPublished.WithLabelValues(broker).Inc()
}

// RecordHandlerPanic increments the recovered panic counter
func (c *Metrics) RecordHandlerPanic(broker string) {
	if c == nil {
		return
	}
	c.HandlerPanics.WithLabelValues(broker).Inc()
}

// RecordPoolSize updates pool occupancy gauges
func (c *Metrics) RecordPoolSize(pool string, entries, borrowed int) {
	if c == nil {
		return
	}
	c.PoolEntries.WithLabelValues(pool).Set(float64(entries))
	c.PoolBorrowed.WithLabelValues(pool).Set(float64(borrowed))
}

// RecordAcquireDuration records time spent acquiring a pool entry
func (c *Metrics) RecordAcquireDuration(pool string, duration time.Duration) {
	if c == nil {
		return
	}
	c.PoolAcquireDuration.WithLabelValues(pool).Observe(duration.Seconds())
}

// RecordValidationFailure increments the validation failure counter
func (c *Metrics) RecordValidationFailure(pool string) {
	if c == nil {
		return
	}
	c.PoolValidationFailures.WithLabelValues(pool).Inc()
}

// RecordCreateFailure increments the create failure counter
func (c *Metrics) RecordCreateFailure(pool string) {
	if c == nil {
		return
	}
	c.PoolCreateFailures.WithLabelValues(pool).Inc()
}

// RecordActionError increments the action error counter
func (c *Metrics) RecordActionError(pool string) {
	if c == nil {
		return
	}
	c.PoolActionErrors.WithLabelValues(pool).Inc()
}

// RecordError increments error counter
func (c *Metrics) RecordError(service, errorType string) {
	if c == nil {
		return
	}
	c.ErrorsTotal.WithLabelValues(service, errorType).Inc()
}

// RecordHealthStatus updates health check status
func (c *Metrics) RecordHealthStatus(service string, healthy bool) {
	if c == nil {
		return
	}
	value := 0.0
	if healthy {
		value = 1.0
	}
	c.HealthCheckStatus.WithLabelValues(service).Set(value)
}
