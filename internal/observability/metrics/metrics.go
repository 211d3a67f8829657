package metrics

import "github.com/prometheus/client_golang/prometheus"

// Lookup outcomes.
const (
	OutcomeSuccess   = "success"
	OutcomeNotFound  = "not_found"
	OutcomeTransient = "transient"
	OutcomeError     = "error"
)

// Reply delivery statuses.
const (
	ReplySent   = "sent"
	ReplyFailed = "failed"
)

// DialogueMetrics exposes counters/histograms for the fare-query dialogue,
// its TDX lookups and LINE reply delivery.
type DialogueMetrics struct {
	messagesTotal    *prometheus.CounterVec
	transitionsTotal *prometheus.CounterVec
	lookupsTotal     *prometheus.CounterVec
	lookupLatency    *prometheus.HistogramVec
	repliesTotal     *prometheus.CounterVec
}

func NewDialogueMetrics(reg prometheus.Registerer) *DialogueMetrics {
	m := &DialogueMetrics{
		messagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "thsr",
			Subsystem: "dialogue",
			Name:      "messages_total",
			Help:      "Inbound text messages by the phase they arrived in",
		}, []string{"phase"}),
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "thsr",
			Subsystem: "dialogue",
			Name:      "transitions_total",
			Help:      "Phase transitions caused by inbound messages",
		}, []string{"from", "to"}),
		lookupsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "thsr",
			Subsystem: "tdx",
			Name:      "lookups_total",
			Help:      "TDX station and fare lookups by outcome",
		}, []string{"operation", "outcome"}),
		lookupLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "thsr",
			Subsystem: "tdx",
			Name:      "lookup_latency_seconds",
			Help:      "Latency of TDX lookups",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		repliesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "thsr",
			Subsystem: "line",
			Name:      "replies_total",
			Help:      "LINE reply API calls by status",
		}, []string{"status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.messagesTotal, m.transitionsTotal, m.lookupsTotal, m.lookupLatency, m.repliesTotal)
	return m
}

func (m *DialogueMetrics) ObserveMessage(phase string) {
	if m == nil {
		return
	}
	m.messagesTotal.WithLabelValues(phase).Inc()
}

func (m *DialogueMetrics) ObserveTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(from, to).Inc()
}

func (m *DialogueMetrics) ObserveLookup(operation, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.lookupsTotal.WithLabelValues(operation, outcome).Inc()
	m.lookupLatency.WithLabelValues(operation).Observe(seconds)
}

func (m *DialogueMetrics) ObserveReply(status string) {
	if m == nil {
		return
	}
	m.repliesTotal.WithLabelValues(status).Inc()
}
