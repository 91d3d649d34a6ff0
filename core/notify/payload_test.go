package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/floodrescue/core/model"
)

func TestTierFor(t *testing.T) {
	cases := map[int]Tier{5: TierCritical, 4: TierHigh, 3: TierMedium, 2: TierLow, 1: TierLow}
	for p, want := range cases {
		assert.Equal(t, want, TierFor(p), "priority %d", p)
	}
}

func TestBuildPayload(t *testing.T) {
	tk := model.Ticket{
		ID:       "t1",
		Priority: 5,
		Location: model.Location{Lat: 16.46, Lng: 107.59, Address: "12 Le Loi, Hue"},
		Victim:   model.VictimInfo{PeopleCount: 4, Elderly: true, Children: true},
	}
	r := model.Rescuer{ID: "r1"}

	p := BuildPayload(tk, r, 1.23456, nil)
	assert.Equal(t, "t1", p.TicketID)
	assert.Equal(t, "r1", p.RescuerID)
	assert.Equal(t, TierCritical, p.PriorityTier)
	assert.Equal(t, "12 Le Loi, Hue", p.Address)
	assert.Equal(t, 1.23, p.DistanceKm)
	assert.Equal(t, 4, p.PeopleCount)
	assert.Equal(t, []string{"elderly", "children"}, p.SpecialFlags)
	assert.Equal(t, 50.0, p.RewardAmount)

	custom := BuildPayload(tk, r, 1, RewardTable{TierCritical: 99})
	assert.Equal(t, 99.0, custom.RewardAmount)

	assert.Contains(t, p.Text(), "[CRITICAL]")
	assert.Contains(t, p.Text(), "elderly, children")
	assert.Contains(t, p.Text(), "t1")
}

func TestResolvers(t *testing.T) {
	ref, ok := ByID.Resolve(model.Rescuer{ID: "r1", Phone: "0901"})
	assert.True(t, ok)
	assert.Equal(t, "r1", ref)
	ref, ok = ByPhone.Resolve(model.Rescuer{ID: "r1", Phone: "0901"})
	assert.True(t, ok)
	assert.Equal(t, "0901", ref)
	_, ok = ByPhone.Resolve(model.Rescuer{ID: "r1"})
	assert.False(t, ok)
}

func TestRecordingChannel(t *testing.T) {
	c := NewRecordingChannel()
	boom := errors.New("boom")
	c.FailFor("bad", boom)
	require.NoError(t, c.Deliver(context.Background(), "ok", MissionPayload{TicketID: "t"}))
	assert.ErrorIs(t, c.Deliver(context.Background(), "bad", MissionPayload{}), boom)
	d := c.Deliveries()
	require.Len(t, d, 1)
	assert.Equal(t, "ok", d[0].Ref)
	assert.NoError(t, LogChannel{}.Deliver(context.Background(), "x", MissionPayload{}))
}
