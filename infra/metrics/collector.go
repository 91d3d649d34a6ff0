package metrics

import (
	"context"
	"time"

	"github.com/kilianp07/floodrescue/core/events"
	coremetrics "github.com/kilianp07/floodrescue/core/metrics"
	"github.com/kilianp07/floodrescue/internal/eventbus"
)

// StartEventCollector subscribes to the event bus and records lifecycle
// transitions on sinks implementing StatusRecorder. Dispatch and delivery
// outcomes are already recorded by the manager itself.
// It stops when the context is canceled or the bus is closed.
func StartEventCollector(ctx context.Context, bus eventbus.Bus[events.Event], sink coremetrics.MetricsSink) {
	if bus == nil || sink == nil {
		return
	}
	rec, ok := sink.(coremetrics.StatusRecorder)
	if !ok {
		return
	}
	sub := bus.Subscribe()
	go func() {
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				e, ok := ev.(events.TicketStatusChanged)
				if !ok {
					continue
				}
				at := e.At
				if at.IsZero() {
					at = time.Now()
				}
				_ = rec.RecordStatusChange(coremetrics.StatusChangeEvent{
					TicketID:  e.TicketID,
					From:      string(e.From),
					To:        string(e.To),
					RescuerID: e.RescuerID,
					Time:      at,
				})
			}
		}
	}()
}
