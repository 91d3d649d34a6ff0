// Package simulator emulates rescuer devices on the MQTT transport: they
// receive missions and answer with accept messages.
package simulator

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	coremqtt "github.com/kilianp07/floodrescue/core/mqtt"
)

// Publisher is the subset of paho.Client used to send accepts.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

// AcceptStrategy decides whether and when a device accepts a mission.
type AcceptStrategy interface {
	Accept(ctx context.Context, pub Publisher, rescuerID string, m coremqtt.MissionMessage) bool
}

// AutoAccept accepts every mission after an optional fixed delay.
type AutoAccept struct {
	Delay time.Duration
}

func (a AutoAccept) Accept(ctx context.Context, pub Publisher, rescuerID string, m coremqtt.MissionMessage) bool {
	if !sleep(ctx, a.Delay) {
		return false
	}
	return publishAccept(pub, rescuerID, m) == nil
}

// RandomAccept ignores missions with probability DropRate and waits up to
// MaxDelay before accepting the others.
type RandomAccept struct {
	MaxDelay time.Duration
	DropRate float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomAccept seeds a RandomAccept. A zero seed uses the clock.
func NewRandomAccept(maxDelay time.Duration, dropRate float64, seed int64) *RandomAccept {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &RandomAccept{MaxDelay: maxDelay, DropRate: dropRate, rng: rand.New(rand.NewSource(seed))}
}

func (r *RandomAccept) Accept(ctx context.Context, pub Publisher, rescuerID string, m coremqtt.MissionMessage) bool {
	r.mu.Lock()
	drop := r.DropRate > 0 && r.rng.Float64() < r.DropRate
	var delay time.Duration
	if r.MaxDelay > 0 {
		delay = time.Duration(r.rng.Int63n(int64(r.MaxDelay)))
	}
	r.mu.Unlock()
	if drop || !sleep(ctx, delay) {
		return false
	}
	return publishAccept(pub, rescuerID, m) == nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}

func publishAccept(pub Publisher, rescuerID string, m coremqtt.MissionMessage) error {
	payload, err := json.Marshal(coremqtt.AcceptMessage{
		TicketID:   m.Mission.TicketID,
		RescuerID:  rescuerID,
		DeliveryID: m.DeliveryID,
	})
	if err != nil {
		return err
	}
	token := pub.Publish(coremqtt.AcceptTopic(rescuerID), 1, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return errPublishTimeout
	}
	return token.Error()
}
