package dialog

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/linnemanlabs/firstline/internal/triage"
)

// Metrics holds Prometheus metrics for the dialog subsystem.
type Metrics struct {
	EventsTotal     *prometheus.CounterVec
	EventDuration   *prometheus.HistogramVec
	DetectionsTotal *prometheus.CounterVec
	SummariesTotal  *prometheus.CounterVec
	L3AuthTotal     *prometheus.CounterVec
	FallbacksTotal  *prometheus.CounterVec
	EvictionsTotal  prometheus.Counter
	DeliveriesTotal *prometheus.CounterVec
}

// NewMetrics registers and returns dialog metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "firstline_events_total",
			Help: "Total inbound events by kind.",
		}, []string{"kind"}),
		EventDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "firstline_event_duration_seconds",
			Help:    "Time spent handling an inbound event in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8), // 100us .. ~1.6s
		}, []string{"kind"}),
		DetectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "firstline_detections_total",
			Help: "Free text detections by detected system and symptom.",
		}, []string{"system", "symptom"}),
		SummariesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "firstline_summaries_total",
			Help: "Summary requests by recipient tier, severity and result.",
		}, []string{"tier", "severity", "result"}),
		L3AuthTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "firstline_l3_authorizations_total",
			Help: "L3 authorization attempts by result.",
		}, []string{"result"}),
		FallbacksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "firstline_fallbacks_total",
			Help: "Fallback responses by reason.",
		}, []string{"reason"}),
		EvictionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "firstline_draft_evictions_total",
			Help: "Drafts purged after exceeding the session TTL.",
		}),
		DeliveriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "firstline_deliveries_total",
			Help: "Background summary deliveries by sink and status.",
		}, []string{"sink", "status"}),
	}

	reg.MustRegister(
		m.EventsTotal,
		m.EventDuration,
		m.DetectionsTotal,
		m.SummariesTotal,
		m.L3AuthTotal,
		m.FallbacksTotal,
		m.EvictionsTotal,
		m.DeliveriesTotal,
	)

	return m
}

// Hooks returns Hooks that increment the corresponding metrics.
func (m *Metrics) Hooks() Hooks {
	return Hooks{
		OnEvent: func(kind string, duration float64) {
			m.EventsTotal.WithLabelValues(kind).Inc()
			m.EventDuration.WithLabelValues(kind).Observe(duration)
		},
		OnDetection: func(det triage.Detection) {
			m.DetectionsTotal.WithLabelValues(string(det.System), string(det.Symptom)).Inc()
		},
		OnSummary: func(tier string, sev triage.Severity, sent bool) {
			result := "sent"
			if !sent {
				result = "suppressed"
			}
			m.SummariesTotal.WithLabelValues(tier, string(sev), result).Inc()
		},
		OnL3Auth: func(granted bool) {
			result := "granted"
			if !granted {
				result = "denied"
			}
			m.L3AuthTotal.WithLabelValues(result).Inc()
		},
		OnFallback: func(reason string) {
			m.FallbacksTotal.WithLabelValues(reason).Inc()
		},
		OnDelivery: func(sink string, err error) {
			status := "success"
			if err != nil {
				status = "error"
			}
			m.DeliveriesTotal.WithLabelValues(sink, status).Inc()
		},
	}
}

// ObserveEvictions counts drafts purged by the session store.
func (m *Metrics) ObserveEvictions(n int) {
	m.EvictionsTotal.Add(float64(n))
}
