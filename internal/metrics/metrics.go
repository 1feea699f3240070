package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "marketstream"

// Metrics holds every collector exported by the service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	FramesReceived   *prometheus.CounterVec // by pipeline
	DecodeFaults     *prometheus.CounterVec // by reason
	EventsDispatched *prometheus.CounterVec // by kind
	EventsDropped    *prometheus.CounterVec // by kind
	WriteFaults      *prometheus.CounterVec // by sink
	DeliveryFaults   prometheus.Counter
	Reconnects       *prometheus.CounterVec // by pipeline
	PipelineRestarts *prometheus.CounterVec // by pipeline
	Subscribers      prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FramesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Raw frames read from the upstream stream.",
		}, []string{"pipeline"}),
		DecodeFaults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_faults_total",
			Help:      "Frames dropped because they could not be decoded.",
		}, []string{"reason"}),
		EventsDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dispatched_total",
			Help:      "Normalized events written and broadcast.",
		}, []string{"kind"}),
		EventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Events dropped because the dispatch queue stayed full.",
		}, []string{"kind"}),
		WriteFaults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "write_faults_total",
			Help:      "Failed writes per sink.",
		}, []string{"sink"}),
		DeliveryFaults: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_faults_total",
			Help:      "Failed subscriber deliveries.",
		}),
		Reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_total",
			Help:      "Upstream reconnect attempts.",
		}, []string{"pipeline"}),
		PipelineRestarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_restarts_total",
			Help:      "Pipelines restarted after exhausting their retry budget.",
		}, []string{"pipeline"}),
		Subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subscribers",
			Help:      "Registered subscriber entries across all symbols.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.FramesReceived,
			m.DecodeFaults,
			m.EventsDispatched,
			m.EventsDropped,
			m.WriteFaults,
			m.DeliveryFaults,
			m.Reconnects,
			m.PipelineRestarts,
			m.Subscribers,
		)
	}
	return m
}

func (m *Metrics) FrameReceived(pipeline string) {
	if m == nil {
		return
	}
	m.FramesReceived.WithLabelValues(pipeline).Inc()
}

func (m *Metrics) DecodeFault(reason string) {
	if m == nil {
		return
	}
	m.DecodeFaults.WithLabelValues(reason).Inc()
}

func (m *Metrics) Dispatched(kind string) {
	if m == nil {
		return
	}
	m.EventsDispatched.WithLabelValues(kind).Inc()
}

func (m *Metrics) Dropped(kind string) {
	if m == nil {
		return
	}
	m.EventsDropped.WithLabelValues(kind).Inc()
}

func (m *Metrics) WriteFault(sink string) {
	if m == nil {
		return
	}
	m.WriteFaults.WithLabelValues(sink).Inc()
}

func (m *Metrics) DeliveryFault() {
	if m == nil {
		return
	}
	m.DeliveryFaults.Inc()
}

func (m *Metrics) Reconnect(pipeline string) {
	if m == nil {
		return
	}
	m.Reconnects.WithLabelValues(pipeline).Inc()
}

func (m *Metrics) Restart(pipeline string) {
	if m == nil {
		return
	}
	m.PipelineRestarts.WithLabelValues(pipeline).Inc()
}

func (m *Metrics) SetSubscribers(n int) {
	if m == nil {
		return
	}
	m.Subscribers.Set(float64(n))
}
