package metrics

import (
	"errors"
	"testing"
)

// TestMultiSink ensures events are forwarded to all sinks.

type recordSink struct {
	count int
	err   error
}

func (r *recordSink) RecordDispatch(DispatchEvent) error {
	r.count++
	return r.err
}

func (r *recordSink) RecordAssignment(AssignmentEvent) error {
	r.count++
	return r.err
}

type dispatchOnly struct{ count int }

func (d *dispatchOnly) RecordDispatch(DispatchEvent) error {
	d.count++
	return nil
}

func TestMultiSink(t *testing.T) {
	s1 := &recordSink{}
	s2 := &recordSink{}
	m := NewMultiSink(s1, s2)
	if err := m.RecordDispatch(DispatchEvent{}); err != nil {
		t.Fatalf("record dispatch: %v", err)
	}
	if err := m.RecordAssignment(AssignmentEvent{}); err != nil {
		t.Fatalf("record assignment: %v", err)
	}
	if s1.count != 2 || s2.count != 2 {
		t.Fatalf("events not forwarded")
	}
}

func TestMultiSinkSkipsUnsupportedAndJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	failing := &recordSink{err: boom}
	plain := &dispatchOnly{}
	m := NewMultiSink(failing, plain)
	if err := m.RecordDispatch(DispatchEvent{}); !errors.Is(err, boom) {
		t.Fatalf("expected joined error, got %v", err)
	}
	if plain.count != 1 {
		t.Fatalf("second sink not called after first failed")
	}
	if err := m.RecordDelivery(DeliveryEvent{}); err != nil {
		t.Fatalf("unsupported recorders must be skipped: %v", err)
	}
}
