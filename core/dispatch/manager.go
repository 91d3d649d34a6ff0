package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/kilianp07/floodrescue/core/dispatch/logging"
	"github.com/kilianp07/floodrescue/core/events"
	"github.com/kilianp07/floodrescue/core/fault"
	"github.com/kilianp07/floodrescue/core/logger"
	"github.com/kilianp07/floodrescue/core/metrics"
	"github.com/kilianp07/floodrescue/core/model"
	"github.com/kilianp07/floodrescue/core/monitoring"
	"github.com/kilianp07/floodrescue/core/notify"
	"github.com/kilianp07/floodrescue/core/store"
	"github.com/kilianp07/floodrescue/internal/eventbus"
)

// DispatchManager turns OPEN tickets into mission offers and resolves the
// accept race. All shared state lives in the Store; the manager itself only
// holds configuration and collaborators.
type DispatchManager struct {
	store    store.Store
	selector *Selector
	channel  notify.Channel
	cfg      Config
	limiter  *rate.Limiter
	logger   logger.Logger
	now      func() time.Time

	mu       sync.RWMutex
	resolver notify.RecipientResolver
	metrics  metrics.MetricsSink
	bus      eventbus.Publisher[events.Event]
	logStore logging.LogStore
}

// NewDispatchManager creates a new manager. Zero values in cfg are replaced
// by defaults.
func NewDispatchManager(s store.Store, ch notify.Channel, cfg Config, log logger.Logger) (*DispatchManager, error) {
	if s == nil || ch == nil {
		return nil, fmt.Errorf("dispatch: nil parameter provided to NewDispatchManager")
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("dispatch: %w", err)
	}
	m := &DispatchManager{
		store:    s,
		selector: NewSelector(s, cfg),
		channel:  ch,
		cfg:      cfg,
		logger:   logger.OrNop(log),
		now:      time.Now,
		resolver: notify.ByID,
		metrics:  metrics.NopSink{},
	}
	if cfg.DeliveryRate > 0 {
		m.limiter = rate.NewLimiter(rate.Limit(cfg.DeliveryRate), cfg.DeliveryBurst)
	}
	return m, nil
}

// SetResolver configures how rescuers are addressed on the channel.
func (m *DispatchManager) SetResolver(r notify.RecipientResolver) {
	if r == nil {
		return
	}
	m.mu.Lock()
	m.resolver = r
	m.mu.Unlock()
}

// SetMetricsSink configures the sink receiving dispatch events.
func (m *DispatchManager) SetMetricsSink(s metrics.MetricsSink) {
	if s == nil {
		s = metrics.NopSink{}
	}
	m.mu.Lock()
	m.metrics = s
	m.mu.Unlock()
}

// SetEventBus configures the bus domain events are published on.
func (m *DispatchManager) SetEventBus(b eventbus.Publisher[events.Event]) {
	m.mu.Lock()
	m.bus = b
	m.mu.Unlock()
}

// SetLogStore configures the store used to persist the dispatch audit log.
func (m *DispatchManager) SetLogStore(s logging.LogStore) {
	m.mu.Lock()
	m.logStore = s
	m.mu.Unlock()
}

// Selector exposes the candidate selector.
func (m *DispatchManager) Selector() *Selector { return m.selector }

// Config returns the effective configuration.
func (m *DispatchManager) Config() Config { return m.cfg }

// Close releases resources held by the manager.
func (m *DispatchManager) Close() error {
	m.mu.Lock()
	s := m.logStore
	m.logStore = nil
	m.mu.Unlock()
	if s != nil {
		return s.Close()
	}
	return nil
}

func (m *DispatchManager) publish(e events.Event) {
	m.mu.RLock()
	b := m.bus
	m.mu.RUnlock()
	if b != nil {
		b.Publish(e)
	}
}

func (m *DispatchManager) sink() metrics.MetricsSink {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.metrics
}

func (m *DispatchManager) appendLog(ctx context.Context, rec logging.LogRecord) {
	m.mu.RLock()
	s := m.logStore
	m.mu.RUnlock()
	if s == nil {
		return
	}
	if err := s.Append(ctx, rec); err != nil {
		m.logger.Errorf("dispatch log append failed: %v", err)
	}
}

// infra wraps, logs and reports a store or channel failure.
func (m *DispatchManager) infra(op string, err error, ticketID string) error {
	wrapped := fault.Infrastructure(op, err)
	m.logger.Errorf("%s for ticket %s: %v", op, ticketID, err)
	monitoring.CaptureException(wrapped, map[string]string{"op": op, "ticket_id": ticketID})
	return wrapped
}

// Dispatch offers an OPEN ticket to every eligible rescuer within the
// broadcast radius. Deliveries run concurrently and independently; the call
// returns once each has completed or hit the delivery timeout. Zero eligible
// rescuers yields Success=false and leaves the ticket OPEN.
func (m *DispatchManager) Dispatch(ctx context.Context, ticketID string) (DispatchResult, error) {
	start := m.now()
	res := DispatchResult{TicketID: ticketID}
	t, err := m.store.GetTicket(ctx, ticketID)
	if errors.Is(err, store.ErrNotFound) {
		res.Message = MsgTicketNotFound
		return res, nil
	}
	if err != nil {
		return res, m.infra("dispatch get ticket", err, ticketID)
	}
	if t.Status != model.TicketOpen {
		res.Message = fmt.Sprintf("ticket is %s, nothing to dispatch", t.Status)
		return res, nil
	}

	cands, err := m.selector.Candidates(ctx, *t, m.cfg.BroadcastRadiusKm)
	if err != nil {
		return res, m.infra("dispatch select rescuers", err, ticketID)
	}
	eligible := len(cands)
	candidatesEligible.Observe(float64(eligible))
	if m.cfg.MaxNotified > 0 && len(cands) > m.cfg.MaxNotified {
		cands = cands[:m.cfg.MaxNotified]
	}

	outcome := "no_candidates"
	if len(cands) == 0 {
		res.Message = fmt.Sprintf("no eligible rescuers within %.1f km, ticket stays open", m.cfg.BroadcastRadiusKm)
		m.logger.Warnf("ticket %s: %s", ticketID, res.Message)
	} else {
		res.Rescuers = m.fanOut(ctx, *t, cands)
		for _, r := range res.Rescuers {
			if r.Delivered {
				res.NotifiedCount++
			}
		}
		res.Success = res.NotifiedCount > 0
		if res.Success {
			outcome = "notified"
			res.Message = fmt.Sprintf("notified %d of %d eligible rescuers", res.NotifiedCount, eligible)
		} else {
			outcome = "undelivered"
			res.Message = fmt.Sprintf("all %d deliveries failed, ticket stays open", len(cands))
		}
		m.logger.Infof("ticket %s: %s", ticketID, res.Message)
	}
	dispatchesTotal.WithLabelValues(outcome).Inc()
	m.recordDispatch(ctx, *t, res, eligible, start)
	return res, nil
}

// fanOut delivers one payload per candidate. Each goroutine writes only its
// own result slot.
func (m *DispatchManager) fanOut(ctx context.Context, t model.Ticket, cands []Candidate) []NotifiedRescuer {
	m.mu.RLock()
	resolver := m.resolver
	m.mu.RUnlock()

	// Deliveries outlive a caller that gives up early; each is bounded by
	// its own timeout instead.
	dctx := context.WithoutCancel(ctx)
	out := make([]NotifiedRescuer, len(cands))
	var wg sync.WaitGroup
	for i, c := range cands {
		out[i] = NotifiedRescuer{
			RescuerID:  c.Rescuer.ID,
			Name:       c.Rescuer.Name,
			DistanceKm: c.DistanceKm,
			Score:      c.Score.Total,
		}
		ref, ok := resolver.Resolve(c.Rescuer)
		if !ok {
			out[i].Error = notify.ErrNoRecipient.Error()
			m.observeDelivery(t.ID, c, notify.ErrNoRecipient, 0)
			continue
		}
		p := notify.BuildPayload(t, c.Rescuer, c.DistanceKm, m.cfg.Rewards)
		wg.Add(1)
		go func(slot *NotifiedRescuer, c Candidate) {
			defer wg.Done()
			begin := time.Now()
			err := m.deliver(dctx, ref, p)
			slot.Delivered = err == nil
			if err != nil {
				slot.Error = err.Error()
				m.logger.Warnf("delivery of ticket %s to rescuer %s failed: %v", t.ID, c.Rescuer.ID, err)
			}
			m.observeDelivery(t.ID, c, err, time.Since(begin))
		}(&out[i], c)
	}
	wg.Wait()
	return out
}

// deliver waits for the rate limiter then calls the channel, giving up after
// the delivery timeout even if the channel ignores its context.
func (m *DispatchManager) deliver(ctx context.Context, ref string, p notify.MissionPayload) error {
	if m.limiter != nil {
		if err := m.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	cctx, cancel := context.WithTimeout(ctx, m.cfg.DeliveryTimeout())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		defer monitoring.Recover()
		done <- m.channel.Deliver(cctx, ref, p)
	}()
	select {
	case err := <-done:
		return err
	case <-cctx.Done():
		return fmt.Errorf("deliver to %s: %w", ref, cctx.Err())
	}
}

func (m *DispatchManager) observeDelivery(ticketID string, c Candidate, err error, d time.Duration) {
	result := "delivered"
	switch {
	case errors.Is(err, notify.ErrNoRecipient):
		result = "unreachable"
	case err != nil:
		result = "failed"
	}
	missionsDelivered.WithLabelValues(result).Inc()
	deliveryLatency.WithLabelValues(result).Observe(d.Seconds())
	ev := metrics.DeliveryEvent{
		TicketID:   ticketID,
		RescuerID:  c.Rescuer.ID,
		Score:      c.Score.Total,
		DistanceKm: c.DistanceKm,
		Delivered:  err == nil,
		Latency:    d,
		Time:       m.now(),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	if rec, ok := m.sink().(metrics.DeliveryRecorder); ok {
		if rerr := rec.RecordDelivery(ev); rerr != nil {
			m.logger.Errorf("delivery metrics error: %v", rerr)
		}
	}
	m.publish(events.MissionDelivered{TicketID: ticketID, RescuerID: c.Rescuer.ID, Delivered: err == nil, Err: err, Latency: d})
}

func (m *DispatchManager) recordDispatch(ctx context.Context, t model.Ticket, res DispatchResult, eligible int, start time.Time) {
	now := m.now()
	ids := make([]string, 0, len(res.Rescuers))
	lr := logging.Result{
		Success:   res.Success,
		Message:   res.Message,
		Notified:  res.NotifiedCount,
		Delivered: make(map[string]bool, len(res.Rescuers)),
		Errors:    make(map[string]string),
		Scores:    make(map[string]float64, len(res.Rescuers)),
		Distances: make(map[string]float64, len(res.Rescuers)),
	}
	for _, r := range res.Rescuers {
		ids = append(ids, r.RescuerID)
		lr.Delivered[r.RescuerID] = r.Delivered
		lr.Scores[r.RescuerID] = r.Score
		lr.Distances[r.RescuerID] = r.DistanceKm
		if r.Error != "" {
			lr.Errors[r.RescuerID] = r.Error
		}
	}
	if err := m.sink().RecordDispatch(metrics.DispatchEvent{
		TicketID: t.ID,
		Priority: t.Priority,
		Eligible: eligible,
		Notified: res.NotifiedCount,
		Failed:   len(res.Rescuers) - res.NotifiedCount,
		Success:  res.Success,
		Duration: now.Sub(start),
		Time:     now,
	}); err != nil {
		m.logger.Errorf("metrics error: %v", err)
	}
	m.publish(events.TicketDispatched{TicketID: t.ID, Eligible: eligible, Notified: res.NotifiedCount, Rescuers: ids, At: now})
	m.appendLog(ctx, logging.LogRecord{
		Timestamp:        now,
		Kind:             logging.KindDispatch,
		TicketID:         t.ID,
		Priority:         t.Priority,
		RescuersSelected: ids,
		Response:         lr,
	})
}

// Accept tries to assign ticketID to rescuerID. Exactly one concurrent
// accept on an OPEN ticket succeeds; the others get KindInvalidState with
// MsgNoLongerAvailable. Only infrastructure failures are returned as errors.
func (m *DispatchManager) Accept(ctx context.Context, ticketID, rescuerID string) (AssignmentResult, error) {
	start := m.now()
	res, err := m.accept(ctx, ticketID, rescuerID)
	m.recordAccept(ctx, ticketID, rescuerID, res, err, start)
	return res, err
}

func (m *DispatchManager) accept(ctx context.Context, ticketID, rescuerID string) (AssignmentResult, error) {
	t, err := m.store.GetTicket(ctx, ticketID)
	if errors.Is(err, store.ErrNotFound) {
		return AssignmentResult{Message: MsgTicketNotFound, Kind: fault.KindNotFound}, nil
	}
	if err != nil {
		return AssignmentResult{Kind: fault.KindInfrastructure}, m.infra("accept get ticket", err, ticketID)
	}
	r, err := m.store.GetRescuer(ctx, rescuerID)
	if errors.Is(err, store.ErrNotFound) {
		return AssignmentResult{Message: MsgRescuerNotFound, Kind: fault.KindNotFound, TicketStatus: t.Status}, nil
	}
	if err != nil {
		return AssignmentResult{Kind: fault.KindInfrastructure}, m.infra("accept get rescuer", err, ticketID)
	}
	if t.Status != model.TicketOpen {
		return rejected(t.Status, r.Status, t.AssignedRescuerID), nil
	}
	if !r.Status.Available() {
		return unavailable(t.Status, r.Status), nil
	}

	if a, ok := m.store.(store.Assigner); ok {
		asg, err := a.AssignTicket(ctx, ticketID, rescuerID)
		if err == nil {
			return assigned(asg.Ticket, asg.Rescuer.Status), nil
		}
		if !errors.Is(err, errors.ErrUnsupported) {
			return m.assignFailed(ctx, err, ticketID, rescuerID)
		}
	}
	return m.assignTwoStep(ctx, *t, *r)
}

// assignTwoStep is used for stores without a transactional Assigner. The
// rescuer is claimed first so it can never hold two missions; the ticket CAS
// then decides the winner and a losing claim is released.
func (m *DispatchManager) assignTwoStep(ctx context.Context, t model.Ticket, r model.Rescuer) (AssignmentResult, error) {
	claimed, err := m.store.UpdateRescuer(ctx, r.ID,
		model.RescuerUpdate{Status: model.RescuerStatusPtr(model.RescuerOnMission)},
		model.AvailableRescuerStatuses...)
	if err != nil {
		return m.assignFailed(ctx, fmt.Errorf("claim rescuer: %w", asRescuerErr(err)), t.ID, r.ID)
	}
	rid := r.ID
	tk, err := m.store.UpdateTicket(ctx, t.ID,
		model.TicketUpdate{Status: model.StatusPtr(model.TicketAssigned), AssignedRescuerID: &rid},
		model.StatusPtr(model.TicketOpen))
	if err != nil {
		m.releaseRescuer(ctx, t.ID, r.ID, r.Status, 0)
		if errors.Is(err, model.ErrInvalidTransition) {
			err = fmt.Errorf("%w: %v", store.ErrConflict, err)
		}
		return m.assignFailed(ctx, err, t.ID, r.ID)
	}
	return assigned(*tk, claimed.Status), nil
}

// asRescuerErr maps a failed rescuer claim onto the Assigner error contract.
func asRescuerErr(err error) error {
	if errors.Is(err, store.ErrConflict) {
		return store.ErrRescuerUnavailable
	}
	return err
}

func (m *DispatchManager) assignFailed(ctx context.Context, err error, ticketID, rescuerID string) (AssignmentResult, error) {
	switch {
	case errors.Is(err, store.ErrRescuerUnavailable):
		var rs model.RescuerStatus
		if r, gerr := m.store.GetRescuer(ctx, rescuerID); gerr == nil {
			rs = r.Status
		}
		var ts model.TicketStatus
		if t, gerr := m.store.GetTicket(ctx, ticketID); gerr == nil {
			ts = t.Status
		}
		return unavailable(ts, rs), nil
	case errors.Is(err, store.ErrConflict):
		res := rejected("", "", "")
		if t, gerr := m.store.GetTicket(ctx, ticketID); gerr == nil {
			res.TicketStatus = t.Status
			res.AssignedTo = t.AssignedRescuerID
		}
		if r, gerr := m.store.GetRescuer(ctx, rescuerID); gerr == nil {
			res.RescuerStatus = r.Status
		}
		return res, nil
	case errors.Is(err, store.ErrNotFound):
		return AssignmentResult{Message: err.Error(), Kind: fault.KindNotFound}, nil
	}
	return AssignmentResult{Kind: fault.KindInfrastructure}, m.infra("accept assign", err, ticketID)
}

// releaseRescuer moves an ON_MISSION rescuer back to status. Failures are
// logged, counted and reported since they leave the rescuer stuck.
func (m *DispatchManager) releaseRescuer(ctx context.Context, ticketID, rescuerID string, status model.RescuerStatus, missions int) {
	if rescuerID == "" {
		return
	}
	_, err := m.store.UpdateRescuer(ctx, rescuerID,
		model.RescuerUpdate{Status: &status, CompletedMissionsDelta: missions},
		model.RescuerOnMission)
	if err == nil {
		return
	}
	followupFailures.Inc()
	m.logger.Errorf("release of rescuer %s after ticket %s failed: %v", rescuerID, ticketID, err)
	if !errors.Is(err, store.ErrConflict) {
		monitoring.CaptureException(fault.Infrastructure("release rescuer", err),
			map[string]string{"ticket_id": ticketID, "rescuer_id": rescuerID})
	}
}

func (m *DispatchManager) recordAccept(ctx context.Context, ticketID, rescuerID string, res AssignmentResult, err error, start time.Time) {
	now := m.now()
	outcome := metrics.OutcomeRejected
	switch {
	case err != nil:
		outcome = metrics.OutcomeError
	case res.Success:
		outcome = metrics.OutcomeAssigned
	case res.Kind == fault.KindNotFound:
		outcome = metrics.OutcomeNotFound
	}
	acceptAttempts.WithLabelValues(outcome).Inc()
	if rec, ok := m.sink().(metrics.AssignmentRecorder); ok {
		if rerr := rec.RecordAssignment(metrics.AssignmentEvent{
			TicketID: ticketID, RescuerID: rescuerID, Outcome: outcome, Latency: now.Sub(start), Time: now,
		}); rerr != nil {
			m.logger.Errorf("assignment metrics error: %v", rerr)
		}
	}
	if err != nil {
		return
	}
	if res.Success {
		m.logger.Infof("ticket %s assigned to rescuer %s", ticketID, rescuerID)
		m.publish(events.MissionAccepted{TicketID: ticketID, RescuerID: rescuerID, At: now})
		m.publish(events.TicketStatusChanged{TicketID: ticketID, From: model.TicketOpen, To: model.TicketAssigned, RescuerID: rescuerID, At: now})
	} else {
		m.logger.Debugw("accept rejected", map[string]any{"ticket_id": ticketID, "rescuer_id": rescuerID, "reason": res.Message})
		m.publish(events.MissionRejected{TicketID: ticketID, RescuerID: rescuerID, Reason: res.Message, CurrentStatus: res.TicketStatus})
	}
	m.appendLog(ctx, logging.LogRecord{
		Timestamp: now,
		Kind:      logging.KindAccept,
		TicketID:  ticketID,
		Response:  logging.Result{Success: res.Success, Message: res.Message, RescuerID: rescuerID},
	})
}

// IsTicketAvailable reports the latest committed state of a ticket.
func (m *DispatchManager) IsTicketAvailable(ctx context.Context, ticketID string) (Availability, error) {
	t, err := m.store.GetTicket(ctx, ticketID)
	if errors.Is(err, store.ErrNotFound) {
		return Availability{Kind: fault.KindNotFound}, nil
	}
	if err != nil {
		return Availability{Kind: fault.KindInfrastructure}, m.infra("availability get ticket", err, ticketID)
	}
	return Availability{
		Available:     t.Status == model.TicketOpen,
		CurrentStatus: t.Status,
		AssignedTo:    t.AssignedRescuerID,
	}, nil
}

// AcceptRequest is an accept signal received from a transport.
type AcceptRequest struct {
	TicketID  string
	RescuerID string
	// Reply, when set, receives the outcome.
	Reply func(AssignmentResult, error)
}

// Run processes accept requests until the context is canceled or the
// channel is closed.
func (m *DispatchManager) Run(ctx context.Context, accepts <-chan AcceptRequest) {
	for {
		select {
		case req, ok := <-accepts:
			if !ok {
				return
			}
			res, err := m.Accept(ctx, req.TicketID, req.RescuerID)
			if req.Reply != nil {
				req.Reply(res, err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func rejected(ts model.TicketStatus, rs model.RescuerStatus, assignedTo string) AssignmentResult {
	return AssignmentResult{
		Message:       MsgNoLongerAvailable,
		Kind:          fault.KindInvalidState,
		TicketStatus:  ts,
		RescuerStatus: rs,
		AssignedTo:    assignedTo,
	}
}

func unavailable(ts model.TicketStatus, rs model.RescuerStatus) AssignmentResult {
	return AssignmentResult{
		Message:       fmt.Sprintf("rescuer is %s and cannot take a mission", rs),
		Kind:          fault.KindInvalidState,
		TicketStatus:  ts,
		RescuerStatus: rs,
	}
}

func assigned(t model.Ticket, rs model.RescuerStatus) AssignmentResult {
	return AssignmentResult{
		Success:       true,
		Message:       MsgAssigned,
		TicketStatus:  t.Status,
		RescuerStatus: rs,
		AssignedTo:    t.AssignedRescuerID,
	}
}
