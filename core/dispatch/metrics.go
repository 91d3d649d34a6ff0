package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	deliveryLatency    *prometheus.HistogramVec
	missionsDelivered  *prometheus.CounterVec
	dispatchesTotal    *prometheus.CounterVec
	acceptAttempts     *prometheus.CounterVec
	candidatesEligible prometheus.Histogram
	followupFailures   prometheus.Counter
)

// newCollectors creates new metric collectors.
func newCollectors() (*prometheus.HistogramVec, *prometheus.CounterVec, *prometheus.CounterVec, *prometheus.CounterVec, prometheus.Histogram, prometheus.Counter) {
	lat := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rescue_delivery_latency_seconds",
			Help:    "Latency of mission deliveries to rescuers",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"result"},
	)
	del := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rescue_missions_delivered_total",
			Help: "Mission deliveries by result",
		},
		[]string{"result"},
	)
	disp := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rescue_dispatches_total",
			Help: "Ticket fan-outs by outcome",
		},
		[]string{"outcome"},
	)
	acc := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rescue_accept_attempts_total",
			Help: "Accept attempts by outcome",
		},
		[]string{"outcome"},
	)
	cand := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rescue_dispatch_candidates",
			Help:    "Eligible rescuers per fan-out",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		},
	)
	fu := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rescue_assignment_followup_failures_total",
			Help: "Rescuer status updates that failed after a committed assignment",
		},
	)
	return lat, del, disp, acc, cand, fu
}

func init() {
	deliveryLatency, missionsDelivered, dispatchesTotal, acceptAttempts, candidatesEligible, followupFailures = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers dispatch metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(deliveryLatency, missionsDelivered, dispatchesTotal, acceptAttempts, candidatesEligible, followupFailures)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	deliveryLatency, missionsDelivered, dispatchesTotal, acceptAttempts, candidatesEligible, followupFailures = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
