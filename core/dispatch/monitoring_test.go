package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/floodrescue/core/fault"
	"github.com/kilianp07/floodrescue/core/model"
	coremon "github.com/kilianp07/floodrescue/core/monitoring"
	"github.com/kilianp07/floodrescue/core/notify"
	"github.com/kilianp07/floodrescue/core/store"
)

type recordMonitor struct {
	mu   sync.Mutex
	err  error
	tags map[string]string
}

func (r *recordMonitor) CaptureException(err error, tags map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
	r.tags = tags
}
func (r *recordMonitor) CapturePanic(any)    {}
func (r *recordMonitor) Flush(time.Duration) {}

func TestInfrastructureErrorCaptured(t *testing.T) {
	mon := &recordMonitor{}
	coremon.Init(mon)
	t.Cleanup(func() { coremon.Init(coremon.NopMonitor{}) })

	s := brokenStore{Store: store.NewMemoryStore(), err: errors.New("dial tcp: refused")}
	m := newTestManager(t, s, notify.NewRecordingChannel(), Config{})
	_, err := m.Dispatch(context.Background(), "t1")
	require.Error(t, err)

	require.NotNil(t, mon.err)
	assert.ErrorIs(t, mon.err, fault.ErrInfrastructure)
	assert.Equal(t, "t1", mon.tags["ticket_id"])
	assert.Equal(t, "dispatch get ticket", mon.tags["op"])
}

// stuckRescuerStore fails every rescuer update that expects ON_MISSION.
type stuckRescuerStore struct{ store.Store }

func (s stuckRescuerStore) UpdateRescuer(ctx context.Context, id string, u model.RescuerUpdate, expected ...model.RescuerStatus) (*model.Rescuer, error) {
	if len(expected) == 1 && expected[0] == model.RescuerOnMission {
		return nil, errors.New("write timeout")
	}
	return s.Store.UpdateRescuer(ctx, id, u, expected...)
}

func TestReleaseFailureIsReported(t *testing.T) {
	mon := &recordMonitor{}
	coremon.Init(mon)
	t.Cleanup(func() { coremon.Init(coremon.NopMonitor{}) })

	ctx := context.Background()
	s := stuckRescuerStore{store.NewMemoryStore()}
	id := seed(t, s, openTicket(hue), rescuerAt("r1", hue))
	m := newTestManager(t, s, notify.NewRecordingChannel(), Config{})

	_, err := m.Accept(ctx, id, "r1")
	require.NoError(t, err)
	res, err := m.Cancel(ctx, id, "")
	require.NoError(t, err)
	assert.True(t, res.Success, "cancel commits even when the rescuer follow-up fails")

	require.NotNil(t, mon.err)
	assert.Equal(t, "r1", mon.tags["rescuer_id"])
}
