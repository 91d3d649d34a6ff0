package store

import (
	"context"
	"errors"
	"sync"

	"github.com/kilianp07/floodrescue/core/logger"
	"github.com/kilianp07/floodrescue/core/model"
)

// PhoneIndex caches canonical phone -> most recent ticket id.
type PhoneIndex interface {
	Lookup(ctx context.Context, phone string) (ticketID string, ok bool, err error)
	Remember(ctx context.Context, phone, ticketID string) error
}

// IndexedStore decorates a Store with an external phone index. The index only
// accelerates hits on active tickets; misses, stale entries and index errors
// fall back to the inner store, which stays authoritative.
type IndexedStore struct {
	Store
	index PhoneIndex
	log   logger.Logger
}

// NewIndexedStore wraps inner with idx.
func NewIndexedStore(inner Store, idx PhoneIndex, log logger.Logger) *IndexedStore {
	if log == nil {
		log = logger.NopLogger{}
	}
	return &IndexedStore{Store: inner, index: idx, log: log}
}

// Unwrap returns the decorated store.
func (s *IndexedStore) Unwrap() Store { return s.Store }

// CreateTicket persists t then records its phone in the index.
func (s *IndexedStore) CreateTicket(ctx context.Context, t *model.Ticket) error {
	if err := s.Store.CreateTicket(ctx, t); err != nil {
		return err
	}
	s.remember(ctx, t.Victim.Phone, t.ID)
	return nil
}

// UpdateTicket delegates then points the index at the ticket when the update
// left it active, so a reopened ticket is found again.
func (s *IndexedStore) UpdateTicket(ctx context.Context, id string, u model.TicketUpdate, expected *model.TicketStatus) (*model.Ticket, error) {
	t, err := s.Store.UpdateTicket(ctx, id, u, expected)
	if err != nil {
		return nil, err
	}
	if u.Status != nil && t.Status.Active() {
		s.remember(ctx, t.Victim.Phone, t.ID)
	}
	return t, nil
}

// FindTicketByPhone consults the index first.
func (s *IndexedStore) FindTicketByPhone(ctx context.Context, phone string) (*model.Ticket, error) {
	id, ok, err := s.index.Lookup(ctx, phone)
	if err != nil {
		s.log.Warnf("phone index lookup failed, using store: %v", err)
	}
	if err == nil && ok {
		t, gerr := s.Store.GetTicket(ctx, id)
		switch {
		case gerr == nil && t.Status.Active() && t.Victim.Phone == phone:
			return t, nil
		case gerr != nil && !errors.Is(gerr, ErrNotFound):
			return nil, gerr
		}
	}
	t, err := s.Store.FindTicketByPhone(ctx, phone)
	if err != nil {
		return nil, err
	}
	s.remember(ctx, phone, t.ID)
	return t, nil
}

// AssignTicket delegates to the inner store when it is an Assigner.
func (s *IndexedStore) AssignTicket(ctx context.Context, ticketID, rescuerID string) (*Assignment, error) {
	a, ok := s.Store.(Assigner)
	if !ok {
		return nil, errors.ErrUnsupported
	}
	return a.AssignTicket(ctx, ticketID, rescuerID)
}

func (s *IndexedStore) remember(ctx context.Context, phone, id string) {
	if phone == "" {
		return
	}
	if err := s.index.Remember(ctx, phone, id); err != nil {
		s.log.Warnf("phone index update for ticket %s failed: %v", id, err)
	}
}

// MapPhoneIndex is an in-process PhoneIndex.
type MapPhoneIndex struct {
	mu sync.Mutex
	m  map[string]string
}

// NewMapPhoneIndex returns an empty index.
func NewMapPhoneIndex() *MapPhoneIndex {
	return &MapPhoneIndex{m: make(map[string]string)}
}

func (i *MapPhoneIndex) Lookup(ctx context.Context, phone string) (string, bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	id, ok := i.m[phone]
	return id, ok, nil
}

func (i *MapPhoneIndex) Remember(ctx context.Context, phone, ticketID string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.m[phone] = ticketID
	return nil
}
