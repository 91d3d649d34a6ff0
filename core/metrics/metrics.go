package metrics

import "time"

// DispatchEvent summarizes one fan-out.
type DispatchEvent struct {
	TicketID string
	Priority int
	Eligible int
	Notified int
	Failed   int
	Success  bool
	Duration time.Duration
	Time     time.Time
}

// MetricsSink records dispatch results for observability purposes.
// Implementations and the optional recorders below must be safe for
// concurrent use: the dispatch manager calls them from its delivery
// goroutines and from concurrent accepts.
type MetricsSink interface {
	RecordDispatch(ev DispatchEvent) error
}

// DeliveryEvent is the outcome of delivering a mission to one rescuer.
type DeliveryEvent struct {
	TicketID   string
	RescuerID  string
	Score      float64
	DistanceKm float64
	Delivered  bool
	Error      string
	Latency    time.Duration
	Time       time.Time
}

// DeliveryRecorder records per-rescuer delivery outcomes. RecordDelivery is
// called concurrently, once per delivery goroutine of a fan-out.
type DeliveryRecorder interface {
	RecordDelivery(ev DeliveryEvent) error
}

// Assignment outcomes.
const (
	OutcomeAssigned = "assigned"
	OutcomeRejected = "rejected"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
)

// AssignmentEvent captures one accept attempt.
type AssignmentEvent struct {
	TicketID  string
	RescuerID string
	Outcome   string
	Latency   time.Duration
	Time      time.Time
}

// AssignmentRecorder records accept attempts.
type AssignmentRecorder interface {
	RecordAssignment(ev AssignmentEvent) error
}

// DedupEvent captures one duplicate check.
type DedupEvent struct {
	MatchType string
	Action    string
	Time      time.Time
}

// DedupRecorder records duplicate checks.
type DedupRecorder interface {
	RecordDedup(ev DedupEvent) error
}

// StatusChangeEvent is a committed ticket status transition.
type StatusChangeEvent struct {
	TicketID  string
	From      string
	To        string
	RescuerID string
	Time      time.Time
}

// StatusRecorder records ticket lifecycle transitions.
type StatusRecorder interface {
	RecordStatusChange(ev StatusChangeEvent) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordDispatch(DispatchEvent) error         { return nil }
func (NopSink) RecordDelivery(DeliveryEvent) error         { return nil }
func (NopSink) RecordAssignment(AssignmentEvent) error     { return nil }
func (NopSink) RecordDedup(DedupEvent) error               { return nil }
func (NopSink) RecordStatusChange(StatusChangeEvent) error { return nil }
