package events

import (
	"time"

	"github.com/kilianp07/floodrescue/core/model"
)

// Event is implemented by every dispatch event.
type Event interface {
	// Ticket returns the id of the ticket the event is about.
	Ticket() string
}

// TicketDispatched is published once per Dispatch call.
type TicketDispatched struct {
	TicketID string
	Eligible int
	Notified int
	Rescuers []string
	At       time.Time
}

// MissionDelivered is published for each delivery attempt.
type MissionDelivered struct {
	TicketID  string
	RescuerID string
	Delivered bool
	Err       error
	Latency   time.Duration
}

// MissionAccepted is published when an accept commits.
type MissionAccepted struct {
	TicketID  string
	RescuerID string
	At        time.Time
}

// MissionRejected is published when an accept does not commit.
type MissionRejected struct {
	TicketID      string
	RescuerID     string
	Reason        string
	CurrentStatus model.TicketStatus
}

// TicketStatusChanged is published after every committed transition.
type TicketStatusChanged struct {
	TicketID  string
	From      model.TicketStatus
	To        model.TicketStatus
	RescuerID string
	At        time.Time
}

func (e TicketDispatched) Ticket() string    { return e.TicketID }
func (e MissionDelivered) Ticket() string    { return e.TicketID }
func (e MissionAccepted) Ticket() string     { return e.TicketID }
func (e MissionRejected) Ticket() string     { return e.TicketID }
func (e TicketStatusChanged) Ticket() string { return e.TicketID }
