package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coremetrics "github.com/kilianp07/floodrescue/core/metrics"
)

type lineServer struct {
	mu     sync.Mutex
	bodies []string
	srv    *httptest.Server
}

func newLineServer(t *testing.T) *lineServer {
	t.Helper()
	ls := &lineServer{}
	ls.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		ls.mu.Lock()
		ls.bodies = append(ls.bodies, strings.TrimSpace(string(data)))
		ls.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(ls.srv.Close)
	return ls
}

func (ls *lineServer) last(t *testing.T) string {
	t.Helper()
	ls.mu.Lock()
	defer ls.mu.Unlock()
	require.NotEmpty(t, ls.bodies)
	return ls.bodies[len(ls.bodies)-1]
}

func line(p *write.Point) string {
	return strings.TrimSpace(write.PointToLineProtocol(p, time.Nanosecond))
}

func TestInfluxSink_RecordDispatch(t *testing.T) {
	ls := newLineServer(t)
	sink := NewInfluxSink(ls.srv.URL, "token", "org", "bucket")
	defer sink.Close()
	now := time.Now()

	err := sink.RecordDispatch(coremetrics.DispatchEvent{
		TicketID: "t1", Priority: 4, Eligible: 3, Notified: 2, Failed: 1,
		Success: true, Duration: 1500 * time.Microsecond, Time: now,
	})
	require.NoError(t, err)

	want := write.NewPointWithMeasurement("dispatch_event").
		AddTag("ticket_id", "t1").
		AddTag("priority", "4").
		AddTag("success", "true").
		AddTag("component", "dispatch_manager").
		AddField("eligible", 3).
		AddField("notified", 2).
		AddField("failed", 1).
		AddField("duration_ms", 1.5).
		SetTime(now)
	assert.Equal(t, line(want), ls.last(t))
}

func TestInfluxSink_RecordDeliveryWithError(t *testing.T) {
	ls := newLineServer(t)
	sink := NewInfluxSink(ls.srv.URL, "token", "org", "bucket")
	defer sink.Close()
	now := time.Now()

	err := sink.RecordDelivery(coremetrics.DeliveryEvent{
		TicketID: "t1", RescuerID: "r1", Score: 164.5, DistanceKm: 0.25,
		Delivered: false, Error: "timeout", Latency: 2 * time.Millisecond, Time: now,
	})
	require.NoError(t, err)

	want := write.NewPointWithMeasurement("mission_delivery").
		AddTag("ticket_id", "t1").
		AddTag("rescuer_id", "r1").
		AddTag("delivered", "false").
		AddField("score", 164.5).
		AddField("distance_km", 0.25).
		AddField("latency_ms", 2.0).
		AddField("error", "timeout").
		SetTime(now)
	assert.Equal(t, line(want), ls.last(t))
}

func TestInfluxSink_RecordAssignmentAndStatus(t *testing.T) {
	ls := newLineServer(t)
	sink := NewInfluxSink(ls.srv.URL, "token", "org", "bucket")
	defer sink.Close()
	now := time.Now()

	require.NoError(t, sink.RecordAssignment(coremetrics.AssignmentEvent{
		TicketID: "t1", RescuerID: "r2", Outcome: coremetrics.OutcomeAssigned,
		Latency: time.Millisecond, Time: now,
	}))
	want := write.NewPointWithMeasurement("accept_attempt").
		AddTag("ticket_id", "t1").
		AddTag("rescuer_id", "r2").
		AddTag("outcome", "assigned").
		AddField("latency_ms", 1.0).
		SetTime(now)
	assert.Equal(t, line(want), ls.last(t))

	require.NoError(t, sink.RecordStatusChange(coremetrics.StatusChangeEvent{
		TicketID: "t1", From: "OPEN", To: "ASSIGNED", RescuerID: "r2", Time: now,
	}))
	want = write.NewPointWithMeasurement("ticket_status_changed").
		AddTag("ticket_id", "t1").
		AddTag("from", "OPEN").
		AddTag("to", "ASSIGNED").
		AddField("rescuer_id", "r2").
		SetTime(now)
	assert.Equal(t, line(want), ls.last(t))
}

func TestInfluxSink_RecordDedup(t *testing.T) {
	ls := newLineServer(t)
	sink := NewInfluxSink(ls.srv.URL, "token", "org", "bucket")
	defer sink.Close()
	now := time.Now()

	require.NoError(t, sink.RecordDedup(coremetrics.DedupEvent{MatchType: "phone", Action: "skip", Time: now}))
	want := write.NewPointWithMeasurement("dedup_decision").
		AddTag("match_type", "phone").
		AddTag("action", "skip").
		AddField("count", 1).
		SetTime(now)
	assert.Equal(t, line(want), ls.last(t))
}

func TestNewInfluxSinkWithFallback(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			called = true
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}))
	defer srv.Close()

	sink := NewInfluxSinkWithFallback(srv.URL+"/api/v2/write", "tok", "org", "bucket")
	_, isInflux := sink.(*InfluxSink)
	assert.False(t, isInflux, "expected NopSink on failing health check")
	assert.True(t, called, "health endpoint not called")
}
