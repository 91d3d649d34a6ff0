package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coremetrics "github.com/kilianp07/floodrescue/core/metrics"
)

func TestPromSinkRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)

	require.NoError(t, sink.RecordDispatch(coremetrics.DispatchEvent{TicketID: "t1", Priority: 5, Notified: 2, Success: true}))
	require.NoError(t, sink.RecordDispatch(coremetrics.DispatchEvent{TicketID: "t2", Priority: 5}))
	require.NoError(t, sink.RecordDelivery(coremetrics.DeliveryEvent{Delivered: true}))
	require.NoError(t, sink.RecordDelivery(coremetrics.DeliveryEvent{Delivered: false}))
	require.NoError(t, sink.RecordDelivery(coremetrics.DeliveryEvent{Delivered: true}))
	require.NoError(t, sink.RecordAssignment(coremetrics.AssignmentEvent{Outcome: coremetrics.OutcomeAssigned, Latency: time.Millisecond}))
	require.NoError(t, sink.RecordDedup(coremetrics.DedupEvent{MatchType: "location", Action: "merge"}))
	require.NoError(t, sink.RecordStatusChange(coremetrics.StatusChangeEvent{From: "OPEN", To: "ASSIGNED"}))

	assert.Equal(t, 1.0, testutil.ToFloat64(sink.dispatches.WithLabelValues("true", "5")))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.dispatches.WithLabelValues("false", "5")))
	assert.Equal(t, 2.0, testutil.ToFloat64(sink.deliveries.WithLabelValues("true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.deliveries.WithLabelValues("false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.dedup.WithLabelValues("location", "merge")))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.transitions.WithLabelValues("OPEN", "ASSIGNED")))
	assert.Equal(t, 1, testutil.CollectAndCount(sink.assignments))
}

func TestPromSinkSharesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)
	b, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)

	require.NoError(t, b.RecordDedup(coremetrics.DedupEvent{MatchType: "phone", Action: "skip"}))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.dedup.WithLabelValues("phone", "skip")))
}
