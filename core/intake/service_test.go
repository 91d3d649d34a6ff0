package intake

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/floodrescue/core/dedup"
	"github.com/kilianp07/floodrescue/core/dispatch"
	"github.com/kilianp07/floodrescue/core/fault"
	"github.com/kilianp07/floodrescue/core/geo"
	"github.com/kilianp07/floodrescue/core/metrics"
	"github.com/kilianp07/floodrescue/core/model"
	"github.com/kilianp07/floodrescue/core/notify"
	"github.com/kilianp07/floodrescue/core/store"
)

var hue = geo.Point{Lat: 16.4637, Lng: 107.5909}

func newService(t *testing.T, s store.Store) (*Service, *notify.RecordingChannel) {
	t.Helper()
	ch := notify.NewRecordingChannel()
	dispatch.ResetMetrics(nil)
	m, err := dispatch.NewDispatchManager(s, ch, dispatch.Config{}, nil)
	require.NoError(t, err)
	return NewService(s, dedup.NewChecker(s, dedup.Config{}), m, nil), ch
}

func request(phone string, p geo.Point) Request {
	return Request{Phone: phone, Lat: p.Lat, Lng: p.Lng, Address: "Kim Long", PeopleCount: 3, Priority: 5, Source: "hotline"}
}

type dedupSink struct {
	metrics.NopSink
	events []metrics.DedupEvent
}

func (d *dedupSink) RecordDedup(ev metrics.DedupEvent) error {
	d.events = append(d.events, ev)
	return nil
}

func TestSubmitCreatesAndDispatches(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	require.NoError(t, s.CreateRescuer(ctx, &model.Rescuer{
		ID: "r1", Status: model.RescuerIdle, VehicleType: model.VehicleBoat, VehicleCapacity: 6,
		Location: model.RescuerLocation{Lat: hue.Lat, Lng: hue.Lng},
	}))
	svc, ch := newService(t, s)
	sink := &dedupSink{}
	svc.SetMetricsSink(sink)

	out, err := svc.Submit(ctx, request("+84 912 345 678", hue))
	require.NoError(t, err)
	require.NotNil(t, out.Ticket)
	assert.Equal(t, fault.KindNone, out.Kind)
	assert.Equal(t, dedup.ActionCreate, out.Dedup.Action)
	assert.Equal(t, "0912345678", out.Ticket.Victim.Phone)
	assert.Equal(t, model.TicketOpen, out.Ticket.Status)
	require.NotNil(t, out.Dispatch)
	assert.Equal(t, 1, out.Dispatch.NotifiedCount)
	assert.Len(t, ch.Deliveries(), 1)
	require.Len(t, sink.events, 1)
	assert.Equal(t, "create", sink.events[0].Action)

	stored, err := s.GetTicket(ctx, out.Ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, "hotline", stored.Source)
}

func TestSubmitDuplicates(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	svc, _ := newService(t, s)

	first, err := svc.Submit(ctx, request("0912.345.678", hue))
	require.NoError(t, err)
	require.NotNil(t, first.Ticket)
	assert.False(t, first.Dispatch.Success, "no rescuers registered")

	again, err := svc.Submit(ctx, request("84912345678", geo.Offset(hue, 3, 0)))
	require.NoError(t, err)
	assert.Nil(t, again.Ticket)
	assert.Equal(t, fault.KindDuplicateRequest, again.Kind)
	assert.Equal(t, dedup.ActionSkip, again.Dedup.Action)
	assert.Equal(t, "already being handled, ticket "+first.Ticket.ID, again.Message)

	near, err := svc.Submit(ctx, request("0987654321", geo.Offset(hue, 0.03, 0)))
	require.NoError(t, err)
	assert.Equal(t, dedup.ActionMerge, near.Dedup.Action)
	assert.Equal(t, first.Ticket.ID, near.Dedup.ExistingTicketID)
	assert.Nil(t, near.Ticket)

	far, err := svc.Submit(ctx, request("0987654321", geo.Offset(hue, 1, 0)))
	require.NoError(t, err)
	assert.Equal(t, dedup.ActionCreate, far.Dedup.Action)
	require.NotNil(t, far.Ticket)
	assert.NotEqual(t, first.Ticket.ID, far.Ticket.ID)
}

func TestSubmitDefaultsAndValidation(t *testing.T) {
	ctx := context.Background()
	svc := NewService(store.NewMemoryStore(), dedup.NewChecker(store.NewMemoryStore(), dedup.Config{}), nil, nil)

	_, err := svc.Submit(ctx, Request{Phone: "0912345678"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = svc.Submit(ctx, Request{Lat: 91, Lng: 10})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = svc.Submit(ctx, Request{Lat: hue.Lat, Lng: hue.Lng, Priority: 9})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	out, err := svc.Submit(ctx, Request{Lat: hue.Lat, Lng: hue.Lng})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Ticket.Victim.PeopleCount)
	assert.Equal(t, 3, out.Ticket.Priority)
	assert.Nil(t, out.Dispatch)
}

func TestMergeFoldsRequest(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	svc, _ := newService(t, s)

	orig := request("0912345678", hue)
	orig.Priority = 3
	first, err := svc.Submit(ctx, orig)
	require.NoError(t, err)

	extra := request("0987654321", geo.Offset(hue, 0.02, 0))
	extra.PeopleCount = 7
	extra.Priority = 4
	extra.Children = true
	extra.Note = "two toddlers on the roof"
	out, err := svc.Merge(ctx, first.Ticket.ID, extra)
	require.NoError(t, err)
	require.NotNil(t, out.Ticket)
	assert.Equal(t, 7, out.Ticket.Victim.PeopleCount)
	assert.Equal(t, 4, out.Ticket.Priority)
	assert.True(t, out.Ticket.Victim.Children)
	assert.Contains(t, out.Ticket.Victim.Note, "two toddlers on the roof")
	assert.Contains(t, out.Ticket.Victim.Note, "0987654321")
	assert.Equal(t, model.TicketOpen, out.Ticket.Status)

	smaller := request("0987654321", hue)
	smaller.PeopleCount = 1
	out, err = svc.Merge(ctx, first.Ticket.ID, smaller)
	require.NoError(t, err)
	assert.Equal(t, 7, out.Ticket.Victim.PeopleCount)

	out, err = svc.Merge(ctx, "missing", smaller)
	require.NoError(t, err)
	assert.Equal(t, fault.KindNotFound, out.Kind)
}

type failingStore struct{ store.Store }

func (failingStore) FindTicketByPhone(context.Context, string) (*model.Ticket, error) {
	return nil, errors.New("redis: connection pool timeout")
}

func TestSubmitStoreFailureIsInfrastructure(t *testing.T) {
	s := failingStore{store.NewMemoryStore()}
	svc := NewService(s, dedup.NewChecker(s, dedup.Config{}), nil, nil)
	_, err := svc.Submit(context.Background(), request("0912345678", hue))
	assert.ErrorIs(t, err, fault.ErrInfrastructure)
}

func TestConcurrentSubmitsSamePhoneCreateOnce(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	svc, _ := newService(t, s)

	const n = 16
	outs := make([]Outcome, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := svc.Submit(ctx, request("0912345678", geo.Offset(hue, float64(i), 0)))
			assert.NoError(t, err)
			outs[i] = out
		}(i)
	}
	wg.Wait()

	created, skipped := 0, 0
	for _, out := range outs {
		switch {
		case out.Ticket != nil:
			created++
		case out.Dedup.Action == dedup.ActionSkip:
			skipped++
		}
	}
	assert.Equal(t, 1, created)
	assert.Equal(t, n-1, skipped)
	assert.Empty(t, svc.phones.locks)
}

func TestKeyedMutexSerializesPerKey(t *testing.T) {
	var k keyedMutex
	unlockA := k.lock("a")
	unlockB := k.lock("b")

	acquired := make(chan struct{})
	go func() {
		defer close(acquired)
		k.lock("a")()
	}()
	select {
	case <-acquired:
		t.Fatal("second holder of key a did not wait")
	default:
	}
	unlockB()
	unlockA()
	<-acquired
	assert.Empty(t, k.locks)
}
