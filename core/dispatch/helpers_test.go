package dispatch

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kilianp07/floodrescue/core/events"
	"github.com/kilianp07/floodrescue/core/geo"
	"github.com/kilianp07/floodrescue/core/model"
	"github.com/kilianp07/floodrescue/core/notify"
	"github.com/kilianp07/floodrescue/core/store"
)

var hue = geo.Point{Lat: 16.4637, Lng: 107.5909}

func rescuerAt(id string, p geo.Point) *model.Rescuer {
	return &model.Rescuer{
		ID:              id,
		Name:            "unit " + id,
		Phone:           "090500000" + id[len(id)-1:],
		Status:          model.RescuerOnline,
		Location:        model.RescuerLocation{Lat: p.Lat, Lng: p.Lng},
		VehicleType:     model.VehicleBoat,
		VehicleCapacity: 4,
		Rating:          4,
	}
}

func openTicket(p geo.Point) *model.Ticket {
	return &model.Ticket{
		Priority: 4,
		Location: model.Location{Lat: p.Lat, Lng: p.Lng, Address: "12 Le Loi"},
		Victim:   model.VictimInfo{Phone: "0912345678", PeopleCount: 3},
	}
}

// seed stores the ticket and rescuers and returns the ticket id.
func seed(t *testing.T, s store.Store, tk *model.Ticket, rs ...*model.Rescuer) string {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.CreateTicket(ctx, tk))
	for _, r := range rs {
		require.NoError(t, s.CreateRescuer(ctx, r))
	}
	return tk.ID
}

func newTestManager(t *testing.T, s store.Store, ch notify.Channel, cfg Config) *DispatchManager {
	t.Helper()
	ResetMetrics(nil)
	t.Cleanup(func() { ResetMetrics(nil) })
	m, err := NewDispatchManager(s, ch, cfg, nil)
	require.NoError(t, err)
	return m
}

// plainStore hides the Assigner capability of the wrapped store.
type plainStore struct{ store.Store }

type recordingBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *recordingBus) Publish(e events.Event) {
	b.mu.Lock()
	b.events = append(b.events, e)
	b.mu.Unlock()
}

func (b *recordingBus) all() []events.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]events.Event(nil), b.events...)
}
