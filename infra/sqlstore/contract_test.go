package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/floodrescue/core/geo"
	"github.com/kilianp07/floodrescue/core/model"
	"github.com/kilianp07/floodrescue/core/store"
)

var hue = geo.Point{Lat: 16.4637, Lng: 107.5909}

// steppingClock returns strictly increasing times so creation order is stable.
func steppingClock() func() time.Time {
	var n atomic.Int64
	base := time.Date(2024, 9, 8, 6, 0, 0, 0, time.UTC)
	return func() time.Time { return base.Add(time.Duration(n.Add(1)) * time.Millisecond) }
}

func newTicket(phone string, p geo.Point) *model.Ticket {
	return &model.Ticket{
		Priority: 4,
		Location: model.Location{Lat: p.Lat, Lng: p.Lng, Address: "Phu Vang"},
		Victim:   model.VictimInfo{Phone: phone, PeopleCount: 3, Elderly: true},
	}
}

func newRescuer(id string, p geo.Point, st model.RescuerStatus) *model.Rescuer {
	return &model.Rescuer{
		ID:              id,
		Name:            "team " + id,
		Status:          st,
		Location:        model.RescuerLocation{Lat: p.Lat, Lng: p.Lng},
		VehicleType:     model.VehicleCano,
		VehicleCapacity: 6,
		Rating:          4.5,
	}
}

// runContract exercises the store.Store behaviour shared by every SQL dialect.
func runContract(t *testing.T, open func(t *testing.T) *Store) {
	ctx := context.Background()

	t.Run("create and get ticket", func(t *testing.T) {
		s := open(t)
		tk := newTicket("0912345678", hue)
		require.NoError(t, s.CreateTicket(ctx, tk))
		require.NotEmpty(t, tk.ID)
		assert.Equal(t, model.TicketOpen, tk.Status)
		assert.Equal(t, int64(1), tk.Version)

		got, err := s.GetTicket(ctx, tk.ID)
		require.NoError(t, err)
		assert.Equal(t, tk.Victim, got.Victim)
		assert.Equal(t, tk.Location, got.Location)
		assert.True(t, tk.CreatedAt.Equal(got.CreatedAt))
		assert.Nil(t, got.VerifiedAt)

		err = s.CreateTicket(ctx, &model.Ticket{ID: tk.ID, Priority: 1, Location: tk.Location, Victim: tk.Victim})
		assert.ErrorIs(t, err, store.ErrAlreadyExists)
		_, err = s.GetTicket(ctx, "missing")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("conditional ticket update", func(t *testing.T) {
		s := open(t)
		tk := newTicket("0912345678", hue)
		require.NoError(t, s.CreateTicket(ctx, tk))

		wrong := model.TicketAssigned
		_, err := s.UpdateTicket(ctx, tk.ID, model.TicketUpdate{AppendNote: "x"}, &wrong)
		assert.ErrorIs(t, err, store.ErrConflict)

		isOpen := model.TicketOpen
		r := "r1"
		got, err := s.UpdateTicket(ctx, tk.ID, model.TicketUpdate{
			Status: model.StatusPtr(model.TicketAssigned), AssignedRescuerID: &r,
		}, &isOpen)
		require.NoError(t, err)
		assert.Equal(t, model.TicketAssigned, got.Status)
		assert.Equal(t, int64(2), got.Version)

		_, err = s.UpdateTicket(ctx, tk.ID, model.TicketUpdate{Status: model.StatusPtr(model.TicketAssigned)}, &isOpen)
		assert.ErrorIs(t, err, store.ErrConflict)

		_, err = s.UpdateTicket(ctx, tk.ID, model.TicketUpdate{Status: model.StatusPtr(model.TicketCompleted)}, nil)
		assert.ErrorIs(t, err, model.ErrInvalidTransition)

		_, err = s.UpdateTicket(ctx, "missing", model.TicketUpdate{}, nil)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("lifecycle timestamps persist", func(t *testing.T) {
		s := open(t)
		tk := newTicket("0912345678", hue)
		require.NoError(t, s.CreateTicket(ctx, tk))
		r := "r1"
		steps := []model.TicketUpdate{
			{Status: model.StatusPtr(model.TicketAssigned), AssignedRescuerID: &r},
			{Status: model.StatusPtr(model.TicketInProgress)},
			{Status: model.StatusPtr(model.TicketVerified)},
		}
		for _, u := range steps {
			_, err := s.UpdateTicket(ctx, tk.ID, u, nil)
			require.NoError(t, err)
		}
		got, err := s.GetTicket(ctx, tk.ID)
		require.NoError(t, err)
		require.NotNil(t, got.VerifiedAt)
		assert.Nil(t, got.CompletedAt)
		assert.Equal(t, int64(4), got.Version)
	})

	t.Run("find ticket by phone returns most recent", func(t *testing.T) {
		s := open(t)
		first := newTicket("0912345678", hue)
		require.NoError(t, s.CreateTicket(ctx, first))
		second := newTicket("0912345678", geo.Offset(hue, 1, 0))
		require.NoError(t, s.CreateTicket(ctx, second))

		got, err := s.FindTicketByPhone(ctx, "0912345678")
		require.NoError(t, err)
		assert.Equal(t, second.ID, got.ID)
		_, err = s.FindTicketByPhone(ctx, "0900000000")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("find ticket by phone ignores inactive tickets", func(t *testing.T) {
		s := open(t)
		older := newTicket("0912345678", hue)
		require.NoError(t, s.CreateTicket(ctx, older))
		newer := newTicket("0912345678", geo.Offset(hue, 5, 0))
		require.NoError(t, s.CreateTicket(ctx, newer))

		cancel := model.TicketUpdate{Status: model.StatusPtr(model.TicketCancelled)}
		_, err := s.UpdateTicket(ctx, newer.ID, cancel, nil)
		require.NoError(t, err)
		got, err := s.FindTicketByPhone(ctx, "0912345678")
		require.NoError(t, err)
		assert.Equal(t, older.ID, got.ID)

		_, err = s.UpdateTicket(ctx, older.ID, cancel, nil)
		require.NoError(t, err)
		_, err = s.FindTicketByPhone(ctx, "0912345678")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("tickets in radius nearest first and active only", func(t *testing.T) {
		s := open(t)
		far := newTicket("0911111111", geo.Offset(hue, 0.04, 0))
		near := newTicket("0922222222", geo.Offset(hue, 0.01, 0))
		out := newTicket("0933333333", geo.Offset(hue, 0.2, 0))
		done := newTicket("0944444444", geo.Offset(hue, 0.005, 0))
		for _, tk := range []*model.Ticket{far, near, out, done} {
			require.NoError(t, s.CreateTicket(ctx, tk))
		}
		_, err := s.UpdateTicket(ctx, done.ID, model.TicketUpdate{Status: model.StatusPtr(model.TicketCancelled)}, nil)
		require.NoError(t, err)

		m, err := s.FindTicketsInRadius(ctx, hue.Lat, hue.Lng, 0.05)
		require.NoError(t, err)
		require.Len(t, m, 2)
		assert.Equal(t, near.ID, m[0].Ticket.ID)
		assert.Equal(t, far.ID, m[1].Ticket.ID)
		assert.InDelta(t, 0.01, m[0].DistanceKm, 0.001)

		ok, err := s.HasActiveTicketNearby(ctx, hue.Lat, hue.Lng, 0.05)
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = s.HasActiveTicketNearby(ctx, hue.Lat+1, hue.Lng, 0.05)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("rescuers", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.CreateRescuer(ctx, newRescuer("r1", geo.Offset(hue, 1, 0), model.RescuerOnline)))
		require.NoError(t, s.CreateRescuer(ctx, newRescuer("r2", geo.Offset(hue, 2, 0), model.RescuerOffline)))
		require.NoError(t, s.CreateRescuer(ctx, newRescuer("r3", geo.Offset(hue, 3, 0), model.RescuerIdle)))
		require.NoError(t, s.CreateRescuer(ctx, newRescuer("r4", geo.Offset(hue, 30, 0), model.RescuerOnline)))
		assert.ErrorIs(t, s.CreateRescuer(ctx, newRescuer("r1", hue, model.RescuerOnline)), store.ErrAlreadyExists)

		m, err := s.FindAvailableRescuersInRadius(ctx, hue.Lat, hue.Lng, 10)
		require.NoError(t, err)
		require.Len(t, m, 2)
		assert.Equal(t, "r1", m[0].Rescuer.ID)
		assert.Equal(t, "r3", m[1].Rescuer.ID)

		rating := 9.0
		got, err := s.UpdateRescuer(ctx, "r1", model.RescuerUpdate{Rating: &rating, CompletedMissionsDelta: 2})
		require.NoError(t, err)
		assert.Equal(t, 5.0, got.Rating)
		assert.Equal(t, 2, got.CompletedMissions)

		_, err = s.UpdateRescuer(ctx, "r2", model.RescuerUpdate{Status: model.RescuerStatusPtr(model.RescuerOnMission)}, model.AvailableRescuerStatuses...)
		assert.ErrorIs(t, err, store.ErrConflict)
		_, err = s.GetRescuer(ctx, "missing")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("assign ticket", func(t *testing.T) {
		s := open(t)
		tk := newTicket("0912345678", hue)
		require.NoError(t, s.CreateTicket(ctx, tk))
		require.NoError(t, s.CreateRescuer(ctx, newRescuer("r1", hue, model.RescuerOnline)))
		require.NoError(t, s.CreateRescuer(ctx, newRescuer("r2", hue, model.RescuerOffline)))

		_, err := s.AssignTicket(ctx, tk.ID, "r2")
		assert.ErrorIs(t, err, store.ErrRescuerUnavailable)
		got, err := s.GetTicket(ctx, tk.ID)
		require.NoError(t, err)
		assert.Equal(t, model.TicketOpen, got.Status)

		a, err := s.AssignTicket(ctx, tk.ID, "r1")
		require.NoError(t, err)
		assert.Equal(t, model.TicketAssigned, a.Ticket.Status)
		assert.Equal(t, "r1", a.Ticket.AssignedRescuerID)
		assert.Equal(t, model.RescuerOnMission, a.Rescuer.Status)

		_, err = s.AssignTicket(ctx, tk.ID, "r1")
		assert.ErrorIs(t, err, store.ErrConflict)
		_, err = s.AssignTicket(ctx, "missing", "r1")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("concurrent assign has a single winner", func(t *testing.T) {
		s := open(t)
		tk := newTicket("0912345678", hue)
		require.NoError(t, s.CreateTicket(ctx, tk))
		const n = 8
		for i := 0; i < n; i++ {
			require.NoError(t, s.CreateRescuer(ctx, newRescuer(fmt.Sprintf("r%d", i), hue, model.RescuerOnline)))
		}
		var (
			wg      sync.WaitGroup
			winners atomic.Int32
			others  atomic.Int32
		)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				_, err := s.AssignTicket(ctx, tk.ID, id)
				switch {
				case err == nil:
					winners.Add(1)
				case errors.Is(err, store.ErrConflict):
					others.Add(1)
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}(fmt.Sprintf("r%d", i))
		}
		wg.Wait()
		assert.Equal(t, int32(1), winners.Load())
		assert.Equal(t, int32(n-1), others.Load())

		got, err := s.GetTicket(ctx, tk.ID)
		require.NoError(t, err)
		onMission := 0
		for i := 0; i < n; i++ {
			r, err := s.GetRescuer(ctx, fmt.Sprintf("r%d", i))
			require.NoError(t, err)
			if r.Status == model.RescuerOnMission {
				onMission++
				assert.Equal(t, got.AssignedRescuerID, r.ID)
			}
		}
		assert.Equal(t, 1, onMission)
	})
}
