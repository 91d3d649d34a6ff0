// Package store defines the persistence contract consumed by the dispatch
// core. Every backend must implement ticket status changes as a conditional
// write keyed by ticket id: when an expected status is supplied the update
// only commits if the stored status still equals it.
package store

import (
	"context"
	"errors"
	"sort"

	"github.com/kilianp07/floodrescue/core/model"
)

var (
	// ErrNotFound is returned for unknown ticket or rescuer ids.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a conditional write lost against a
	// concurrent writer (the stored status no longer matches).
	ErrConflict = errors.New("conditional update conflict")
	// ErrAlreadyExists is returned when creating a record with a taken id.
	ErrAlreadyExists = errors.New("already exists")
	// ErrRescuerUnavailable is returned by AssignTicket when the rescuer is
	// not ONLINE or IDLE.
	ErrRescuerUnavailable = errors.New("rescuer unavailable")
)

// TicketMatch is an active ticket found near a coordinate.
type TicketMatch struct {
	Ticket     model.Ticket
	DistanceKm float64
}

// RescuerMatch is an available rescuer found near a coordinate.
type RescuerMatch struct {
	Rescuer    model.Rescuer
	DistanceKm float64
}

// Store is the persistence contract of the dispatch core.
type Store interface {
	CreateTicket(ctx context.Context, t *model.Ticket) error
	GetTicket(ctx context.Context, id string) (*model.Ticket, error)
	// UpdateTicket applies u. When expected is non-nil the write commits only
	// if the stored status equals *expected, otherwise ErrConflict.
	UpdateTicket(ctx context.Context, id string, u model.TicketUpdate, expected *model.TicketStatus) (*model.Ticket, error)
	// FindTicketByPhone returns the most recent active ticket for a canonical
	// phone, or ErrNotFound when every ticket for it is terminal or cancelled.
	FindTicketByPhone(ctx context.Context, phone string) (*model.Ticket, error)
	HasActiveTicketNearby(ctx context.Context, lat, lng, radiusKm float64) (bool, error)
	// FindTicketsInRadius returns active tickets nearest first. Exact ties keep
	// the order in which the backend found them.
	FindTicketsInRadius(ctx context.Context, lat, lng, radiusKm float64) ([]TicketMatch, error)

	CreateRescuer(ctx context.Context, r *model.Rescuer) error
	GetRescuer(ctx context.Context, id string) (*model.Rescuer, error)
	// UpdateRescuer applies u. When expected statuses are given the write
	// commits only if the stored status is one of them, otherwise ErrConflict.
	UpdateRescuer(ctx context.Context, id string, u model.RescuerUpdate, expected ...model.RescuerStatus) (*model.Rescuer, error)
	// FindAvailableRescuersInRadius returns ONLINE/IDLE rescuers within
	// radiusKm in the backend's stable iteration order.
	FindAvailableRescuersInRadius(ctx context.Context, lat, lng, radiusKm float64) ([]RescuerMatch, error)

	Close() error
}

// Assignment is the committed outcome of AssignTicket.
type Assignment struct {
	Ticket  model.Ticket
	Rescuer model.Rescuer
}

// Assigner is implemented by backends able to commit the OPEN->ASSIGNED
// ticket transition and the rescuer's move to ON_MISSION in one unit of work.
// It returns ErrConflict when the ticket is no longer OPEN and
// ErrRescuerUnavailable when the rescuer cannot take a mission. Decorators
// whose inner store lacks the capability return errors.ErrUnsupported.
type Assigner interface {
	AssignTicket(ctx context.Context, ticketID, rescuerID string) (*Assignment, error)
}

// SortTicketMatches orders matches nearest first, keeping the input order for
// equal distances.
func SortTicketMatches(m []TicketMatch) {
	sort.SliceStable(m, func(i, j int) bool { return m[i].DistanceKm < m[j].DistanceKm })
}

func statusIn(s model.RescuerStatus, set []model.RescuerStatus) bool {
	for _, x := range set {
		if s == x {
			return true
		}
	}
	return false
}
