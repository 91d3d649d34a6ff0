package metrics

import "errors"

// MultiSink fans events out to multiple sinks. Every sink is called even when
// an earlier one fails; the errors are joined.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordDispatch forwards the event to all sinks.
func (m *MultiSink) RecordDispatch(ev DispatchEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		errs = append(errs, s.RecordDispatch(ev))
	}
	return errors.Join(errs...)
}

// RecordDelivery forwards delivery events to sinks supporting them.
func (m *MultiSink) RecordDelivery(ev DeliveryEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if rec, ok := s.(DeliveryRecorder); ok {
			errs = append(errs, rec.RecordDelivery(ev))
		}
	}
	return errors.Join(errs...)
}

// RecordAssignment forwards accept attempts to sinks supporting them.
func (m *MultiSink) RecordAssignment(ev AssignmentEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if rec, ok := s.(AssignmentRecorder); ok {
			errs = append(errs, rec.RecordAssignment(ev))
		}
	}
	return errors.Join(errs...)
}

// RecordDedup forwards dedup events to sinks supporting them.
func (m *MultiSink) RecordDedup(ev DedupEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if rec, ok := s.(DedupRecorder); ok {
			errs = append(errs, rec.RecordDedup(ev))
		}
	}
	return errors.Join(errs...)
}

// RecordStatusChange forwards lifecycle transitions to sinks supporting them.
func (m *MultiSink) RecordStatusChange(ev StatusChangeEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if rec, ok := s.(StatusRecorder); ok {
			errs = append(errs, rec.RecordStatusChange(ev))
		}
	}
	return errors.Join(errs...)
}
