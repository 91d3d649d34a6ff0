package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/floodrescue/core/geo"
	"github.com/kilianp07/floodrescue/core/model"
)

// MemoryStore keeps tickets and rescuers in process memory. A single mutex
// serializes all writes, which makes every conditional update linearizable.
// It is suitable for a single instance and for tests.
type MemoryStore struct {
	mu           sync.RWMutex
	tickets      map[string]*model.Ticket
	ticketOrder  []string
	rescuers     map[string]*model.Rescuer
	rescuerOrder []string
	byPhone      map[string][]string
	now          func() time.Time
	closed       bool
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tickets:  make(map[string]*model.Ticket),
		rescuers: make(map[string]*model.Rescuer),
		byPhone:  make(map[string][]string),
		now:      time.Now,
	}
}

func (s *MemoryStore) checkOpen() error {
	if s.closed {
		return fmt.Errorf("memory store closed")
	}
	return nil
}

// CreateTicket stores t, assigning an id when empty.
func (s *MemoryStore) CreateTicket(ctx context.Context, t *model.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if _, ok := s.tickets[t.ID]; ok {
		return fmt.Errorf("ticket %s: %w", t.ID, ErrAlreadyExists)
	}
	if t.Status == "" {
		t.Status = model.TicketOpen
	}
	if err := t.Validate(); err != nil {
		return err
	}
	now := s.now()
	t.CreatedAt, t.UpdatedAt = now, now
	t.Version = 1
	cp := *t
	s.tickets[t.ID] = &cp
	s.ticketOrder = append(s.ticketOrder, t.ID)
	if t.Victim.Phone != "" {
		s.byPhone[t.Victim.Phone] = append(s.byPhone[t.Victim.Phone], t.ID)
	}
	return nil
}

// GetTicket returns a copy of the ticket.
func (s *MemoryStore) GetTicket(ctx context.Context, id string) (*model.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	t, ok := s.tickets[id]
	if !ok {
		return nil, fmt.Errorf("ticket %s: %w", id, ErrNotFound)
	}
	cp := *t
	return &cp, nil
}

// UpdateTicket applies u under the store lock.
func (s *MemoryStore) UpdateTicket(ctx context.Context, id string, u model.TicketUpdate, expected *model.TicketStatus) (*model.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	t, ok := s.tickets[id]
	if !ok {
		return nil, fmt.Errorf("ticket %s: %w", id, ErrNotFound)
	}
	if expected != nil && t.Status != *expected {
		return nil, fmt.Errorf("ticket %s is %s, expected %s: %w", id, t.Status, *expected, ErrConflict)
	}
	if err := t.Apply(u, s.now()); err != nil {
		return nil, err
	}
	cp := *t
	return &cp, nil
}

// FindTicketByPhone returns the most recently created active ticket for phone.
func (s *MemoryStore) FindTicketByPhone(ctx context.Context, phone string) (*model.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	ids := s.byPhone[phone]
	for i := len(ids) - 1; i >= 0; i-- {
		if t := s.tickets[ids[i]]; t.Status.Active() {
			cp := *t
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("phone %s: %w", phone, ErrNotFound)
}

// HasActiveTicketNearby reports whether an active ticket lies within radiusKm.
func (s *MemoryStore) HasActiveTicketNearby(ctx context.Context, lat, lng, radiusKm float64) (bool, error) {
	m, err := s.FindTicketsInRadius(ctx, lat, lng, radiusKm)
	if err != nil {
		return false, err
	}
	return len(m) > 0, nil
}

// FindTicketsInRadius returns active tickets within radiusKm, nearest first.
func (s *MemoryStore) FindTicketsInRadius(ctx context.Context, lat, lng, radiusKm float64) ([]TicketMatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	center := geo.Point{Lat: lat, Lng: lng}
	var res []TicketMatch
	for _, id := range s.ticketOrder {
		t := s.tickets[id]
		if !t.Status.Active() {
			continue
		}
		if d := geo.Distance(center, t.Location.Point()); d <= radiusKm {
			res = append(res, TicketMatch{Ticket: *t, DistanceKm: d})
		}
	}
	SortTicketMatches(res)
	return res, nil
}

// CreateRescuer stores r, assigning an id when empty.
func (s *MemoryStore) CreateRescuer(ctx context.Context, r *model.Rescuer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if _, ok := s.rescuers[r.ID]; ok {
		return fmt.Errorf("rescuer %s: %w", r.ID, ErrAlreadyExists)
	}
	if r.Status == "" {
		r.Status = model.RescuerOffline
	}
	if err := r.Validate(); err != nil {
		return err
	}
	now := s.now()
	r.CreatedAt, r.UpdatedAt = now, now
	if r.Location.LastUpdated.IsZero() {
		r.Location.LastUpdated = now
	}
	cp := *r
	s.rescuers[r.ID] = &cp
	s.rescuerOrder = append(s.rescuerOrder, r.ID)
	return nil
}

// GetRescuer returns a copy of the rescuer.
func (s *MemoryStore) GetRescuer(ctx context.Context, id string) (*model.Rescuer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	r, ok := s.rescuers[id]
	if !ok {
		return nil, fmt.Errorf("rescuer %s: %w", id, ErrNotFound)
	}
	cp := *r
	return &cp, nil
}

// UpdateRescuer applies u under the store lock.
func (s *MemoryStore) UpdateRescuer(ctx context.Context, id string, u model.RescuerUpdate, expected ...model.RescuerStatus) (*model.Rescuer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	r, ok := s.rescuers[id]
	if !ok {
		return nil, fmt.Errorf("rescuer %s: %w", id, ErrNotFound)
	}
	if len(expected) > 0 && !statusIn(r.Status, expected) {
		return nil, fmt.Errorf("rescuer %s is %s: %w", id, r.Status, ErrConflict)
	}
	if err := r.Apply(u, s.now()); err != nil {
		return nil, err
	}
	cp := *r
	return &cp, nil
}

// FindAvailableRescuersInRadius returns ONLINE/IDLE rescuers in insertion order.
func (s *MemoryStore) FindAvailableRescuersInRadius(ctx context.Context, lat, lng, radiusKm float64) ([]RescuerMatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	center := geo.Point{Lat: lat, Lng: lng}
	var res []RescuerMatch
	for _, id := range s.rescuerOrder {
		r := s.rescuers[id]
		if !r.Status.Available() {
			continue
		}
		if d := geo.Distance(center, r.Location.Point()); d <= radiusKm {
			res = append(res, RescuerMatch{Rescuer: *r, DistanceKm: d})
		}
	}
	return res, nil
}

// AssignTicket commits both sides of an assignment atomically.
func (s *MemoryStore) AssignTicket(ctx context.Context, ticketID, rescuerID string) (*Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	t, ok := s.tickets[ticketID]
	if !ok {
		return nil, fmt.Errorf("ticket %s: %w", ticketID, ErrNotFound)
	}
	r, ok := s.rescuers[rescuerID]
	if !ok {
		return nil, fmt.Errorf("rescuer %s: %w", rescuerID, ErrNotFound)
	}
	if t.Status != model.TicketOpen {
		return nil, fmt.Errorf("ticket %s is %s: %w", ticketID, t.Status, ErrConflict)
	}
	if !r.Status.Available() {
		return nil, fmt.Errorf("rescuer %s is %s: %w", rescuerID, r.Status, ErrRescuerUnavailable)
	}
	now := s.now()
	nt, nr := *t, *r
	if err := nt.Apply(model.TicketUpdate{Status: model.StatusPtr(model.TicketAssigned), AssignedRescuerID: &rescuerID}, now); err != nil {
		return nil, err
	}
	if err := nr.Apply(model.RescuerUpdate{Status: model.RescuerStatusPtr(model.RescuerOnMission)}, now); err != nil {
		return nil, err
	}
	*t, *r = nt, nr
	return &Assignment{Ticket: nt, Rescuer: nr}, nil
}

// Close marks the store closed; later calls fail.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
