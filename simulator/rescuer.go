package simulator

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"

	paho "github.com/eclipse/paho.mqtt.golang"

	coremqtt "github.com/kilianp07/floodrescue/core/mqtt"
	"github.com/kilianp07/floodrescue/infra/logger"
)

var errPublishTimeout = errors.New("publish timeout")

const workers = 4

// Stats counts what a simulated device saw.
type Stats struct {
	Missions int64
	Accepted int64
	Won      int64
	Lost     int64
}

// SimulatedRescuer is one rescuer device connected to the broker.
type SimulatedRescuer struct {
	ID       string
	Broker   string
	Strategy AcceptStrategy

	missions, accepted, won, lost atomic.Int64

	log     logger.Logger
	queue   chan coremqtt.MissionMessage
	connect func(broker, clientID string) (paho.Client, error)
}

// NewSimulatedRescuer creates a device for rescuer id.
func NewSimulatedRescuer(id, broker string, strat AcceptStrategy) *SimulatedRescuer {
	return &SimulatedRescuer{
		ID:       id,
		Broker:   broker,
		Strategy: strat,
		log:      logger.New("simulator"),
		queue:    make(chan coremqtt.MissionMessage, 50),
		connect:  newMQTTClient,
	}
}

// Stats returns a snapshot of the counters.
func (r *SimulatedRescuer) Stats() Stats {
	return Stats{
		Missions: r.missions.Load(),
		Accepted: r.accepted.Load(),
		Won:      r.won.Load(),
		Lost:     r.lost.Load(),
	}
}

// Run connects, subscribes to missions and assignment replies and answers
// missions until ctx is done.
func (r *SimulatedRescuer) Run(ctx context.Context) error {
	cli, err := r.connect(r.Broker, "sim-"+r.ID)
	if err != nil {
		return err
	}
	defer cli.Disconnect(250)

	if token := cli.Subscribe(coremqtt.AssignmentTopic(r.ID), 1, func(_ paho.Client, msg paho.Message) {
		r.onAssignment(msg.Payload())
	}); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	if token := cli.Subscribe(coremqtt.MissionTopic(r.ID), 1, func(_ paho.Client, msg paho.Message) {
		r.onMission(msg.Payload())
	}); token.Wait() && token.Error() != nil {
		return token.Error()
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.work(ctx, cli)
		}()
	}
	<-ctx.Done()
	wg.Wait()
	return nil
}

func (r *SimulatedRescuer) onMission(payload []byte) {
	var m coremqtt.MissionMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		r.log.Errorf("%s: decode mission: %v", r.ID, err)
		return
	}
	r.missions.Add(1)
	select {
	case r.queue <- m:
	default:
		r.log.Warnf("%s: mission queue full, dropping ticket %s", r.ID, m.Mission.TicketID)
	}
}

func (r *SimulatedRescuer) onAssignment(payload []byte) {
	var a coremqtt.AssignmentReply
	if err := json.Unmarshal(payload, &a); err != nil {
		r.log.Errorf("%s: decode assignment: %v", r.ID, err)
		return
	}
	if a.Success {
		r.won.Add(1)
		r.log.Infof("%s: assigned ticket %s", r.ID, a.TicketID)
		return
	}
	r.lost.Add(1)
	r.log.Debugf("%s: lost ticket %s: %s", r.ID, a.TicketID, a.Message)
}

func (r *SimulatedRescuer) work(ctx context.Context, pub Publisher) {
	for {
		select {
		case m := <-r.queue:
			if r.Strategy.Accept(ctx, pub, r.ID, m) {
				r.accepted.Add(1)
			}
		case <-ctx.Done():
			return
		}
	}
}

// RunFleet runs one device per id and blocks until ctx is done.
func RunFleet(ctx context.Context, ids []string, broker string, strat AcceptStrategy) []*SimulatedRescuer {
	devices := make([]*SimulatedRescuer, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		d := NewSimulatedRescuer(id, broker, strat)
		devices[i] = d
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := d.Run(ctx); err != nil {
				d.log.Errorf("%s: device stopped: %v", d.ID, err)
			}
		}()
	}
	wg.Wait()
	return devices
}

func newMQTTClient(broker, clientID string) (paho.Client, error) {
	opts := paho.NewClientOptions().AddBroker(broker).SetClientID(clientID)
	opts.AutoReconnect = true
	cli := paho.NewClient(opts)
	if token := cli.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return cli, nil
}
