package metrics

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/floodrescue/core/events"
	coremetrics "github.com/kilianp07/floodrescue/core/metrics"
	"github.com/kilianp07/floodrescue/core/model"
	"github.com/kilianp07/floodrescue/internal/eventbus"
)

type statusSink struct {
	coremetrics.NopSink
	mu     sync.Mutex
	events []coremetrics.StatusChangeEvent
}

func (s *statusSink) RecordStatusChange(ev coremetrics.StatusChangeEvent) error {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
	return nil
}

func (s *statusSink) snapshot() []coremetrics.StatusChangeEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]coremetrics.StatusChangeEvent(nil), s.events...)
}

func TestEventCollectorRecordsTransitions(t *testing.T) {
	bus := eventbus.NewTyped[events.Event]()
	defer bus.Close()
	sink := &statusSink{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	StartEventCollector(ctx, bus, sink)
	// the subscription is registered synchronously
	bus.Publish(events.MissionAccepted{TicketID: "t1", RescuerID: "r1"})
	bus.Publish(events.TicketStatusChanged{
		TicketID: "t1", From: model.TicketOpen, To: model.TicketAssigned, RescuerID: "r1",
	})

	require.Eventually(t, func() bool { return len(sink.snapshot()) == 1 }, time.Second, 10*time.Millisecond)
	got := sink.snapshot()[0]
	assert.Equal(t, "t1", got.TicketID)
	assert.Equal(t, string(model.TicketOpen), got.From)
	assert.Equal(t, string(model.TicketAssigned), got.To)
	assert.Equal(t, "r1", got.RescuerID)
	assert.False(t, got.Time.IsZero())
}

func TestEventCollectorIgnoresSinkWithoutRecorder(t *testing.T) {
	bus := eventbus.NewTyped[events.Event]()
	defer bus.Close()
	StartEventCollector(context.Background(), bus, onlyDispatch{})
	StartEventCollector(context.Background(), nil, &statusSink{})
}

type onlyDispatch struct{}

func (onlyDispatch) RecordDispatch(coremetrics.DispatchEvent) error { return nil }
