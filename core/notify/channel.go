package notify

import (
	"context"
	"errors"
	"sync"

	"github.com/kilianp07/floodrescue/core/logger"
	"github.com/kilianp07/floodrescue/core/model"
)

// ErrNoRecipient is returned when a rescuer has no reachable address.
var ErrNoRecipient = errors.New("rescuer has no recipient address")

// Channel delivers mission payloads. A nil error means the channel accepted
// the message for delivery.
type Channel interface {
	Deliver(ctx context.Context, recipientRef string, p MissionPayload) error
}

// RecipientResolver maps a rescuer to the address used by a Channel. ok is
// false when the rescuer cannot be reached.
type RecipientResolver interface {
	Resolve(r model.Rescuer) (ref string, ok bool)
}

// ResolverFunc adapts a function to RecipientResolver.
type ResolverFunc func(r model.Rescuer) (string, bool)

func (f ResolverFunc) Resolve(r model.Rescuer) (string, bool) { return f(r) }

// ByID addresses rescuers by their id.
var ByID = ResolverFunc(func(r model.Rescuer) (string, bool) { return r.ID, r.ID != "" })

// ByPhone addresses rescuers by their phone number.
var ByPhone = ResolverFunc(func(r model.Rescuer) (string, bool) { return r.Phone, r.Phone != "" })

// LogChannel writes payloads to a logger. It is used when no transport is
// configured.
type LogChannel struct {
	Log logger.Logger
}

func (c LogChannel) Deliver(_ context.Context, ref string, p MissionPayload) error {
	logger.OrNop(c.Log).Infof("mission for %s: %s", ref, p.Text())
	return nil
}

// Delivery is one call recorded by RecordingChannel.
type Delivery struct {
	Ref     string
	Payload MissionPayload
}

// RecordingChannel keeps every delivered payload in memory and can be told to
// fail specific recipients.
type RecordingChannel struct {
	mu        sync.Mutex
	delivered []Delivery
	fail      map[string]error
}

// NewRecordingChannel returns an empty RecordingChannel.
func NewRecordingChannel() *RecordingChannel {
	return &RecordingChannel{fail: make(map[string]error)}
}

// FailFor makes deliveries to ref return err.
func (c *RecordingChannel) FailFor(ref string, err error) {
	c.mu.Lock()
	c.fail[ref] = err
	c.mu.Unlock()
}

func (c *RecordingChannel) Deliver(ctx context.Context, ref string, p MissionPayload) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.fail[ref]; err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	c.delivered = append(c.delivered, Delivery{Ref: ref, Payload: p})
	return nil
}

// Deliveries returns a copy of the recorded deliveries.
func (c *RecordingChannel) Deliveries() []Delivery {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Delivery(nil), c.delivered...)
}
