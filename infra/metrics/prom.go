package metrics

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/floodrescue/core/metrics"
)

// PromSink records dispatch events in Prometheus metrics.
type PromSink struct {
	dispatches  *prometheus.CounterVec
	notified    prometheus.Histogram
	deliveries  *prometheus.CounterVec
	assignments *prometheus.HistogramVec
	dedup       *prometheus.CounterVec
	transitions *prometheus.CounterVec
}

// NewPromSink registers dispatch metrics on the default Prometheus registerer.
// The Prometheus server should be started separately using StartPromServer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rescue_sink_dispatch_events_total",
			Help: "Dispatch fan-outs by success and priority",
		}, []string{"success", "priority"}),
		notified: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rescue_sink_notified_rescuers",
			Help:    "Rescuers successfully notified per fan-out",
			Buckets: []float64{0, 1, 2, 3, 5, 10, 20},
		}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rescue_sink_deliveries_total",
			Help: "Mission deliveries by outcome",
		}, []string{"delivered"}),
		assignments: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rescue_sink_accept_latency_seconds",
			Help:    "Accept handling latency by outcome",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
		dedup: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rescue_sink_dedup_decisions_total",
			Help: "Duplicate checks by match type and action",
		}, []string{"match_type", "action"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rescue_sink_ticket_transitions_total",
			Help: "Committed ticket status transitions",
		}, []string{"from", "to"}),
	}
	var err error
	if s.dispatches, err = register(reg, s.dispatches); err != nil {
		return nil, err
	}
	if s.notified, err = register(reg, s.notified); err != nil {
		return nil, err
	}
	if s.deliveries, err = register(reg, s.deliveries); err != nil {
		return nil, err
	}
	if s.assignments, err = register(reg, s.assignments); err != nil {
		return nil, err
	}
	if s.dedup, err = register(reg, s.dedup); err != nil {
		return nil, err
	}
	if s.transitions, err = register(reg, s.transitions); err != nil {
		return nil, err
	}
	return s, nil
}

// register returns the already registered collector when an identical one
// exists, so several sinks can share a registry.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordDispatch counts the fan-out and observes the notified count.
func (s *PromSink) RecordDispatch(ev coremetrics.DispatchEvent) error {
	s.dispatches.WithLabelValues(strconv.FormatBool(ev.Success), strconv.Itoa(ev.Priority)).Inc()
	s.notified.Observe(float64(ev.Notified))
	return nil
}

// RecordDelivery counts a delivery outcome.
func (s *PromSink) RecordDelivery(ev coremetrics.DeliveryEvent) error {
	s.deliveries.WithLabelValues(strconv.FormatBool(ev.Delivered)).Inc()
	return nil
}

// RecordAssignment observes accept latency.
func (s *PromSink) RecordAssignment(ev coremetrics.AssignmentEvent) error {
	s.assignments.WithLabelValues(ev.Outcome).Observe(ev.Latency.Seconds())
	return nil
}

// RecordDedup counts a dedup decision.
func (s *PromSink) RecordDedup(ev coremetrics.DedupEvent) error {
	s.dedup.WithLabelValues(ev.MatchType, ev.Action).Inc()
	return nil
}

// RecordStatusChange counts a ticket transition.
func (s *PromSink) RecordStatusChange(ev coremetrics.StatusChangeEvent) error {
	s.transitions.WithLabelValues(ev.From, ev.To).Inc()
	return nil
}
