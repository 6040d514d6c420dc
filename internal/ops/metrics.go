package ops

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the process counters. A nil *Metrics is valid and records
// nothing, so components can take one optionally.
type Metrics struct {
	registry *prometheus.Registry

	rootsSeen        prometheus.Counter
	childrenStarted  prometheus.Counter
	childrenFinished prometheus.Counter
	resubscribes     prometheus.Counter
	followUps        *prometheus.CounterVec
	skips            *prometheus.CounterVec
	records          prometheus.Counter
	deliveries       *prometheus.CounterVec
}

// NewMetrics registers the counters on a private registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		rootsSeen: factory.NewCounter(prometheus.CounterOpts{
			Name: "herdwatch_root_notes_total",
			Help: "Root notes accepted from the root subscription",
		}),
		childrenStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "herdwatch_child_subscriptions_started_total",
			Help: "Per-root follow-up subscriptions started",
		}),
		childrenFinished: factory.NewCounter(prometheus.CounterOpts{
			Name: "herdwatch_child_subscriptions_finished_total",
			Help: "Per-root follow-up subscriptions that ended",
		}),
		resubscribes: factory.NewCounter(prometheus.CounterOpts{
			Name: "herdwatch_root_resubscribes_total",
			Help: "Times the root subscription was reopened",
		}),
		followUps: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "herdwatch_follow_ups_total",
			Help: "Follow-up events classified, by kind",
		}, []string{"kind"}),
		skips: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "herdwatch_skips_total",
			Help: "Follow-ups that produced no record, by reason",
		}, []string{"reason"}),
		records: factory.NewCounter(prometheus.CounterOpts{
			Name: "herdwatch_records_total",
			Help: "Attribution records appended to the batch",
		}),
		deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "herdwatch_deliveries_total",
			Help: "Webhook deliveries, by result",
		}, []string{"result"}),
	}
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry, mainly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveRoot counts an accepted root note
func (m *Metrics) ObserveRoot() {
	if m == nil {
		return
	}
	m.rootsSeen.Inc()
}

// ObserveChildStarted counts a follow-up subscription being opened
func (m *Metrics) ObserveChildStarted() {
	if m == nil {
		return
	}
	m.childrenStarted.Inc()
}

// ObserveChildFinished counts a follow-up subscription ending
func (m *Metrics) ObserveChildFinished() {
	if m == nil {
		return
	}
	m.childrenFinished.Inc()
}

// ObserveResubscribe counts a root subscription being reopened
func (m *Metrics) ObserveResubscribe() {
	if m == nil {
		return
	}
	m.resubscribes.Inc()
}

// ObserveFollowUp counts a classified follow-up by event kind
func (m *Metrics) ObserveFollowUp(kind int) {
	if m == nil {
		return
	}
	m.followUps.WithLabelValues(strconv.Itoa(kind)).Inc()
}

// ObserveSkip counts a follow-up the pipeline declined, by reason
func (m *Metrics) ObserveSkip(reason string) {
	if m == nil {
		return
	}
	m.skips.WithLabelValues(reason).Inc()
}

// ObserveRecord counts a record appended to the batch
func (m *Metrics) ObserveRecord() {
	if m == nil {
		return
	}
	m.records.Inc()
}

// ObserveDelivery counts a delivery as ok or failed depending on err
func (m *Metrics) ObserveDelivery(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "failed"
	}
	m.deliveries.WithLabelValues(result).Inc()
}
