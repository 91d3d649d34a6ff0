package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/floodrescue/core/geo"
	"github.com/kilianp07/floodrescue/core/metrics"
	"github.com/kilianp07/floodrescue/core/model"
	"github.com/kilianp07/floodrescue/core/notify"
	"github.com/kilianp07/floodrescue/core/store"
)

func TestMetricsRegistration(t *testing.T) {
	ResetMetrics(nil)
	t.Cleanup(func() { ResetMetrics(nil) })
	reg := prometheus.NewRegistry()
	MustRegisterMetrics(reg)
	// touch metrics so they are exported
	deliveryLatency.WithLabelValues("delivered").Observe(0.1)
	missionsDelivered.WithLabelValues("delivered").Inc()
	dispatchesTotal.WithLabelValues("notified").Inc()
	acceptAttempts.WithLabelValues("assigned").Inc()
	candidatesEligible.Observe(3)
	followupFailures.Inc()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	names := map[string]bool{}
	for _, mf := range mfs {
		names[*mf.Name] = true
	}
	expected := []string{
		"rescue_delivery_latency_seconds",
		"rescue_missions_delivered_total",
		"rescue_dispatches_total",
		"rescue_accept_attempts_total",
		"rescue_dispatch_candidates",
		"rescue_assignment_followup_failures_total",
	}
	for _, n := range expected {
		if !names[n] {
			t.Errorf("metric %s not registered", n)
		}
	}
}

// captureSink is called from every delivery goroutine of a fan-out.
type captureSink struct {
	mu          sync.Mutex
	dispatches  []metrics.DispatchEvent
	deliveries  []metrics.DeliveryEvent
	assignments []metrics.AssignmentEvent
}

func (c *captureSink) RecordDispatch(ev metrics.DispatchEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dispatches = append(c.dispatches, ev)
	return nil
}

func (c *captureSink) RecordDelivery(ev metrics.DeliveryEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deliveries = append(c.deliveries, ev)
	return nil
}

func (c *captureSink) RecordAssignment(ev metrics.AssignmentEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.assignments = append(c.assignments, ev)
	return nil
}

func (c *captureSink) deliveryCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.deliveries)
}

func TestDispatchManagerMetrics(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	ch := notify.NewRecordingChannel()
	ch.FailFor("r3", errors.New("unreachable"))
	id := seed(t, s, openTicket(hue),
		rescuerAt("r1", hue),
		rescuerAt("r2", geo.Offset(hue, 1, 0)),
		rescuerAt("r3", geo.Offset(hue, 2, 0)),
	)
	m := newTestManager(t, s, ch, Config{})
	reg := prometheus.NewRegistry()
	MustRegisterMetrics(reg)
	sink := &captureSink{}
	m.SetMetricsSink(sink)

	_, err := m.Dispatch(ctx, id)
	require.NoError(t, err)
	_, err = m.Accept(ctx, id, "r2")
	require.NoError(t, err)
	_, err = m.Accept(ctx, id, "r1")
	require.NoError(t, err)
	_, err = m.Accept(ctx, "missing", "r1")
	require.NoError(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(missionsDelivered.WithLabelValues("delivered")))
	assert.Equal(t, 1.0, testutil.ToFloat64(missionsDelivered.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(dispatchesTotal.WithLabelValues("notified")))
	assert.Equal(t, 1.0, testutil.ToFloat64(acceptAttempts.WithLabelValues(metrics.OutcomeAssigned)))
	assert.Equal(t, 1.0, testutil.ToFloat64(acceptAttempts.WithLabelValues(metrics.OutcomeRejected)))
	assert.Equal(t, 1.0, testutil.ToFloat64(acceptAttempts.WithLabelValues(metrics.OutcomeNotFound)))
	assert.Equal(t, 1, testutil.CollectAndCount(candidatesEligible))

	require.Len(t, sink.dispatches, 1)
	ev := sink.dispatches[0]
	assert.Equal(t, id, ev.TicketID)
	assert.Equal(t, 3, ev.Eligible)
	assert.Equal(t, 2, ev.Notified)
	assert.Equal(t, 1, ev.Failed)
	assert.True(t, ev.Success)
	assert.Equal(t, 3, sink.deliveryCount())
	require.Len(t, sink.assignments, 3)
	assert.Equal(t, metrics.OutcomeAssigned, sink.assignments[0].Outcome)
}

func TestDispatchWithoutCandidatesCounted(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	id := seed(t, s, openTicket(hue))
	m := newTestManager(t, s, notify.NewRecordingChannel(), Config{})

	_, err := m.Dispatch(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(dispatchesTotal.WithLabelValues("no_candidates")))
}

func TestDeliveriesRecordedConcurrently(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	var rs []*model.Rescuer
	for i := 0; i < 12; i++ {
		rs = append(rs, rescuerAt(fmt.Sprintf("r%d", i), geo.Offset(hue, float64(i)*0.2, 0)))
	}
	id := seed(t, s, openTicket(hue), rs...)
	m := newTestManager(t, s, notify.NewRecordingChannel(), Config{MaxNotified: 12})
	sink := &captureSink{}
	m.SetMetricsSink(sink)

	res, err := m.Dispatch(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 12, res.NotifiedCount)
	assert.Equal(t, 12, sink.deliveryCount())
}
