// Package intake turns an already-extracted rescue request into a ticket:
// duplicate check, persistence and the first dispatch.
package intake

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/floodrescue/core/dedup"
	"github.com/kilianp07/floodrescue/core/dispatch"
	"github.com/kilianp07/floodrescue/core/fault"
	"github.com/kilianp07/floodrescue/core/geo"
	"github.com/kilianp07/floodrescue/core/logger"
	"github.com/kilianp07/floodrescue/core/metrics"
	"github.com/kilianp07/floodrescue/core/model"
	"github.com/kilianp07/floodrescue/core/phone"
	"github.com/kilianp07/floodrescue/core/store"
)

// ErrInvalidRequest is returned for requests that cannot become a ticket.
var ErrInvalidRequest = errors.New("invalid rescue request")

const defaultPriority = 3

// Request is a rescue request as produced by the upstream extraction layer.
type Request struct {
	Phone       string  `json:"phone" yaml:"phone"`
	Lat         float64 `json:"lat" yaml:"lat"`
	Lng         float64 `json:"lng" yaml:"lng"`
	Address     string  `json:"address" yaml:"address"`
	PeopleCount int     `json:"people_count" yaml:"people_count"`
	Priority    int     `json:"priority" yaml:"priority"`
	Note        string  `json:"note" yaml:"note"`
	Elderly     bool    `json:"elderly" yaml:"elderly"`
	Children    bool    `json:"children" yaml:"children"`
	Disabled    bool    `json:"disabled" yaml:"disabled"`
	Source      string  `json:"source" yaml:"source"`
}

// Point returns the request coordinates.
func (r Request) Point() geo.Point { return geo.Point{Lat: r.Lat, Lng: r.Lng} }

func (r *Request) normalize() error {
	if !r.Point().Valid() || (r.Lat == 0 && r.Lng == 0) {
		return fmt.Errorf("%w: coordinates %v,%v", ErrInvalidRequest, r.Lat, r.Lng)
	}
	if r.PeopleCount <= 0 {
		r.PeopleCount = 1
	}
	if r.Priority == 0 {
		r.Priority = defaultPriority
	}
	if r.Priority < model.MinPriority || r.Priority > model.MaxPriority {
		return fmt.Errorf("%w: priority %d", ErrInvalidRequest, r.Priority)
	}
	r.Phone = phone.Normalize(r.Phone)
	r.Note = strings.TrimSpace(r.Note)
	return nil
}

// Outcome is the result of Submit or Merge.
type Outcome struct {
	Ticket   *model.Ticket            `json:"ticket,omitempty"`
	Dedup    dedup.Result             `json:"dedup"`
	Dispatch *dispatch.DispatchResult `json:"dispatch,omitempty"`
	Kind     fault.Kind               `json:"kind,omitempty"`
	Message  string                   `json:"message"`
}

// Dispatcher starts the fan-out for a new ticket.
type Dispatcher interface {
	Dispatch(ctx context.Context, ticketID string) (dispatch.DispatchResult, error)
}

// Service runs the intake flow.
type Service struct {
	store      store.Store
	checker    *dedup.Checker
	dispatcher Dispatcher
	logger     logger.Logger
	metrics    metrics.MetricsSink
	newID      func() string
	phones     keyedMutex
}

// NewService creates an intake service. A nil dispatcher stores tickets
// without dispatching them.
func NewService(s store.Store, checker *dedup.Checker, d Dispatcher, log logger.Logger) *Service {
	return &Service{
		store:      s,
		checker:    checker,
		dispatcher: d,
		logger:     logger.OrNop(log),
		metrics:    metrics.NopSink{},
		newID:      uuid.NewString,
	}
}

// SetMetricsSink configures where dedup decisions are recorded.
func (s *Service) SetMetricsSink(m metrics.MetricsSink) {
	if m != nil {
		s.metrics = m
	}
}

// Submit checks req for duplicates. Unique requests become OPEN tickets and
// are dispatched; a phone match is skipped and a nearby match is returned as
// a merge candidate, both with KindDuplicateRequest.
func (s *Service) Submit(ctx context.Context, req Request) (Outcome, error) {
	if err := req.normalize(); err != nil {
		return Outcome{}, err
	}
	out, t, err := s.checkAndCreate(ctx, req)
	if err != nil || t == nil {
		return out, err
	}

	if s.dispatcher == nil {
		return out, nil
	}
	dr, err := s.dispatcher.Dispatch(ctx, t.ID)
	if err != nil {
		// The ticket is committed; the caller may retry the dispatch alone.
		return out, err
	}
	out.Dispatch = &dr
	return out, nil
}

// checkAndCreate runs the duplicate check and persists a new ticket. Requests
// sharing a phone are serialized so that two concurrent submits cannot both
// pass the phone rule within this process.
func (s *Service) checkAndCreate(ctx context.Context, req Request) (Outcome, *model.Ticket, error) {
	if req.Phone != "" {
		defer s.phones.lock(req.Phone)()
	}
	at := req.Point()
	res, err := s.checker.Check(ctx, req.Phone, &at)
	if err != nil {
		s.logger.Errorf("dedup check failed: %v", err)
		return Outcome{}, nil, err
	}
	s.recordDedup(res)

	out := Outcome{Dedup: res}
	switch res.Action {
	case dedup.ActionSkip:
		out.Kind = fault.KindDuplicateRequest
		out.Message = fmt.Sprintf("already being handled, ticket %s", res.ExistingTicketID)
		s.logger.Infof("request from %s skipped: %s", req.Phone, out.Message)
		return out, nil, nil
	case dedup.ActionMerge:
		out.Kind = fault.KindDuplicateRequest
		out.Message = fmt.Sprintf("possible duplicate of ticket %s (%.0f m away)", res.ExistingTicketID, res.DistanceKm*1000)
		s.logger.Infof("request from %s offered as merge: %s", req.Phone, out.Message)
		return out, nil, nil
	}

	t := &model.Ticket{
		ID:       s.newID(),
		Status:   model.TicketOpen,
		Priority: req.Priority,
		Location: model.Location{Lat: req.Lat, Lng: req.Lng, Address: req.Address},
		Victim: model.VictimInfo{
			Phone:       req.Phone,
			PeopleCount: req.PeopleCount,
			Note:        req.Note,
			Elderly:     req.Elderly,
			Children:    req.Children,
			Disabled:    req.Disabled,
		},
		Source: req.Source,
	}
	if err := t.Validate(); err != nil {
		return Outcome{}, nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if err := s.store.CreateTicket(ctx, t); err != nil {
		return Outcome{}, nil, fault.Infrastructure("intake create ticket", err)
	}
	out.Ticket = t
	out.Message = fmt.Sprintf("ticket %s created", t.ID)
	s.logger.Infof("ticket %s created (priority %d, %d people)", t.ID, t.Priority, t.Victim.PeopleCount)
	return out, t, nil
}

// Merge folds req into an existing active ticket: the larger people count
// and priority win, vulnerable-group flags are OR-ed and the note is
// appended.
func (s *Service) Merge(ctx context.Context, ticketID string, req Request) (Outcome, error) {
	if err := req.normalize(); err != nil {
		return Outcome{}, err
	}
	t, err := s.store.GetTicket(ctx, ticketID)
	if errors.Is(err, store.ErrNotFound) {
		return Outcome{Kind: fault.KindNotFound, Message: "ticket not found"}, nil
	}
	if err != nil {
		return Outcome{}, fault.Infrastructure("intake get ticket", err)
	}
	if !t.Status.Active() {
		return Outcome{Ticket: t, Kind: fault.KindInvalidState, Message: fmt.Sprintf("ticket is %s and cannot be merged", t.Status)}, nil
	}

	var u model.TicketUpdate
	if req.PeopleCount > t.Victim.PeopleCount {
		u.PeopleCount = &req.PeopleCount
	}
	if req.Priority > t.Priority {
		u.Priority = &req.Priority
	}
	yes := true
	if req.Elderly && !t.Victim.Elderly {
		u.Elderly = &yes
	}
	if req.Children && !t.Victim.Children {
		u.Children = &yes
	}
	if req.Disabled && !t.Victim.Disabled {
		u.Disabled = &yes
	}
	if req.Note != "" || req.Phone != t.Victim.Phone {
		u.AppendNote = mergeNote(req)
	}

	cur := t.Status
	merged, err := s.store.UpdateTicket(ctx, ticketID, u, &cur)
	switch {
	case errors.Is(err, store.ErrConflict):
		return Outcome{Ticket: t, Kind: fault.KindInvalidState, Message: "ticket changed concurrently, retry the merge"}, nil
	case err != nil:
		return Outcome{}, fault.Infrastructure("intake merge ticket", err)
	}
	s.logger.Infof("request from %s merged into ticket %s", req.Phone, ticketID)
	return Outcome{
		Ticket:  merged,
		Dedup:   dedup.Result{IsDuplicate: true, ExistingTicketID: ticketID, MatchType: dedup.MatchLocation, Action: dedup.ActionMerge},
		Message: fmt.Sprintf("merged into ticket %s", ticketID),
	}, nil
}

func mergeNote(req Request) string {
	var b strings.Builder
	b.WriteString("merged report")
	if req.Phone != "" {
		b.WriteString(" from ")
		b.WriteString(req.Phone)
	}
	if req.Note != "" {
		b.WriteString(": ")
		b.WriteString(req.Note)
	}
	return b.String()
}

func (s *Service) recordDedup(res dedup.Result) {
	rec, ok := s.metrics.(metrics.DedupRecorder)
	if !ok {
		return
	}
	if err := rec.RecordDedup(metrics.DedupEvent{MatchType: string(res.MatchType), Action: string(res.Action), Time: time.Now()}); err != nil {
		s.logger.Errorf("dedup metrics error: %v", err)
	}
}

// keyedMutex hands out one lock per key and forgets keys nobody holds.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyedLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		if l.refs--; l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
