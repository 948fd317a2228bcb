package exchange

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the exchange engine's Prometheus metrics.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	MessagesEnqueuedTotal *prometheus.CounterVec
	EnqueueFailuresTotal  *prometheus.CounterVec
	DeliveriesTotal       *prometheus.CounterVec
	DropsTotal            *prometheus.CounterVec
	PluginErrorsTotal     *prometheus.CounterVec
	BatchSize             *prometheus.HistogramVec
	QueueBytes            prometheus.Gauge
	RoundsTotal           prometheus.Counter
	HandshakesTotal       *prometheus.CounterVec
}

// NewMetrics creates and registers all exchange metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		MessagesEnqueuedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tnch_messages_enqueued_total",
				Help: "Total number of messages accepted into the active queue generation",
			},
			[]string{"category"},
		),
		EnqueueFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tnch_enqueue_failures_total",
				Help: "Total number of messages rejected by queue limits",
			},
			[]string{"category"},
		),
		DeliveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tnch_deliveries_total",
				Help: "Total number of messages handed to a plugin",
			},
			[]string{"side", "category", "path"},
		),
		DropsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tnch_drops_total",
				Help: "Total number of messages not delivered to a plugin",
			},
			[]string{"side", "category", "reason"},
		),
		PluginErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tnch_plugin_errors_total",
				Help: "Total number of non-fatal errors returned by plugin calls",
			},
			[]string{"side", "call"},
		),
		BatchSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tnch_batch_size_messages",
				Help:    "Number of messages in each delivered snapshot",
				Buckets: prometheus.LinearBuckets(0, 2, 8),
			},
			[]string{"side"},
		),
		QueueBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tnch_queue_active_bytes",
				Help: "Payload bytes held by the active queue generation",
			},
		),
		RoundsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tnch_rounds_total",
				Help: "Total number of collector/verifier round trips",
			},
		),
		HandshakesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tnch_handshakes_total",
				Help: "Total number of finished handshakes by resolved connection state",
			},
			[]string{"state"},
		),
	}

	registry.MustRegister(
		m.MessagesEnqueuedTotal,
		m.EnqueueFailuresTotal,
		m.DeliveriesTotal,
		m.DropsTotal,
		m.PluginErrorsTotal,
		m.BatchSize,
		m.QueueBytes,
		m.RoundsTotal,
		m.HandshakesTotal,
	)

	return m
}

func (m *Metrics) enqueued(c Category, activeBytes int) {
	if m == nil {
		return
	}
	m.MessagesEnqueuedTotal.WithLabelValues(c.String()).Inc()
	m.QueueBytes.Set(float64(activeBytes))
}

func (m *Metrics) enqueueFailed(c Category) {
	if m == nil {
		return
	}
	m.EnqueueFailuresTotal.WithLabelValues(c.String()).Inc()
}

func (m *Metrics) queueBytes(n int) {
	if m == nil {
		return
	}
	m.QueueBytes.Set(float64(n))
}

func (m *Metrics) delivered(side string, c Category, p Path) {
	if m == nil {
		return
	}
	m.DeliveriesTotal.WithLabelValues(side, c.String(), p.String()).Inc()
}

func (m *Metrics) dropped(side string, c Category, r DropReason) {
	if m == nil {
		return
	}
	m.DropsTotal.WithLabelValues(side, c.String(), r.String()).Inc()
}

func (m *Metrics) batch(side string, n int) {
	if m == nil {
		return
	}
	m.BatchSize.WithLabelValues(side).Observe(float64(n))
}

// PluginError counts a non-fatal error from the named plugin call
func (m *Metrics) PluginError(side, call string) {
	if m == nil {
		return
	}
	m.PluginErrorsTotal.WithLabelValues(side, call).Inc()
}

// Round counts one collector/verifier round trip
func (m *Metrics) Round() {
	if m == nil {
		return
	}
	m.RoundsTotal.Inc()
}

// Handshake counts a finished handshake by its resolved state name
func (m *Metrics) Handshake(state string) {
	if m == nil {
		return
	}
	m.HandshakesTotal.WithLabelValues(state).Inc()
}
