package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/floodrescue/core/metrics"
	"github.com/kilianp07/floodrescue/infra/logger"
)

// InfluxSink writes dispatch events to an InfluxDB instance using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.MetricsSink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

func (s *InfluxSink) write(p *write.Point) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordDispatch writes one dispatch_event point per fan-out.
func (s *InfluxSink) RecordDispatch(ev coremetrics.DispatchEvent) error {
	p := write.NewPointWithMeasurement("dispatch_event").
		AddTag("ticket_id", ev.TicketID).
		AddTag("priority", strconv.Itoa(ev.Priority)).
		AddTag("success", strconv.FormatBool(ev.Success)).
		AddTag("component", "dispatch_manager").
		AddField("eligible", ev.Eligible).
		AddField("notified", ev.Notified).
		AddField("failed", ev.Failed).
		AddField("duration_ms", round3(ev.Duration.Seconds()*1000)).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordDelivery writes a mission_delivery point.
func (s *InfluxSink) RecordDelivery(ev coremetrics.DeliveryEvent) error {
	p := write.NewPointWithMeasurement("mission_delivery").
		AddTag("ticket_id", ev.TicketID).
		AddTag("rescuer_id", ev.RescuerID).
		AddTag("delivered", strconv.FormatBool(ev.Delivered)).
		AddField("score", round3(ev.Score)).
		AddField("distance_km", round3(ev.DistanceKm)).
		AddField("latency_ms", round3(ev.Latency.Seconds()*1000))
	if ev.Error != "" {
		p = p.AddField("error", ev.Error)
	}
	return s.write(p.SetTime(ev.Time))
}

// RecordAssignment writes an accept_attempt point.
func (s *InfluxSink) RecordAssignment(ev coremetrics.AssignmentEvent) error {
	p := write.NewPointWithMeasurement("accept_attempt").
		AddTag("ticket_id", ev.TicketID).
		AddTag("rescuer_id", ev.RescuerID).
		AddTag("outcome", ev.Outcome).
		AddField("latency_ms", round3(ev.Latency.Seconds()*1000)).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordDedup writes a dedup_decision point.
func (s *InfluxSink) RecordDedup(ev coremetrics.DedupEvent) error {
	p := write.NewPointWithMeasurement("dedup_decision").
		AddTag("match_type", ev.MatchType).
		AddTag("action", ev.Action).
		AddField("count", 1).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordStatusChange writes a ticket_status_changed point.
func (s *InfluxSink) RecordStatusChange(ev coremetrics.StatusChangeEvent) error {
	p := write.NewPointWithMeasurement("ticket_status_changed").
		AddTag("ticket_id", ev.TicketID).
		AddTag("from", ev.From).
		AddTag("to", ev.To).
		AddField("rescuer_id", ev.RescuerID).
		SetTime(ev.Time)
	return s.write(p)
}

// Close flushes and closes the underlying client.
func (s *InfluxSink) Close() {
	s.client.Close()
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
