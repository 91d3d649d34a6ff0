package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kilianp07/floodrescue/core/geo"
)

// TicketStatus is the lifecycle state of a rescue request.
type TicketStatus string

const (
	TicketOpen       TicketStatus = "OPEN"
	TicketAssigned   TicketStatus = "ASSIGNED"
	TicketInProgress TicketStatus = "IN_PROGRESS"
	TicketVerified   TicketStatus = "VERIFIED"
	TicketCompleted  TicketStatus = "COMPLETED"
	TicketCancelled  TicketStatus = "CANCELLED"
)

// ActiveTicketStatuses lists the statuses considered by duplicate detection.
var ActiveTicketStatuses = []TicketStatus{TicketOpen, TicketAssigned, TicketInProgress}

// Valid reports whether s is a known status.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketOpen, TicketAssigned, TicketInProgress, TicketVerified, TicketCompleted, TicketCancelled:
		return true
	}
	return false
}

// Active reports whether the ticket still needs or receives help.
func (s TicketStatus) Active() bool {
	return s == TicketOpen || s == TicketAssigned || s == TicketInProgress
}

// Terminal reports whether no forward transition exists. CANCELLED can only
// be reopened.
func (s TicketStatus) Terminal() bool {
	return s == TicketCompleted || s == TicketCancelled
}

// RequiresRescuer reports whether a ticket in this status must carry an
// assigned rescuer.
func (s TicketStatus) RequiresRescuer() bool {
	switch s {
	case TicketAssigned, TicketInProgress, TicketVerified, TicketCompleted:
		return true
	}
	return false
}

var nextStatus = map[TicketStatus]TicketStatus{
	TicketOpen:       TicketAssigned,
	TicketAssigned:   TicketInProgress,
	TicketInProgress: TicketVerified,
	TicketVerified:   TicketCompleted,
}

// CanTransition reports whether a ticket may move from one status to another.
func CanTransition(from, to TicketStatus) bool {
	if from == to {
		return false
	}
	if to == TicketCancelled {
		return !from.Terminal()
	}
	if from == TicketCancelled {
		return to == TicketOpen
	}
	return nextStatus[from] == to
}

// ErrInvalidTransition is returned when an update violates the ticket lifecycle.
var ErrInvalidTransition = errors.New("invalid ticket status transition")

// Location is where the victims are.
type Location struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Address string  `json:"address"`
}

// Point returns the coordinate part of the location.
func (l Location) Point() geo.Point { return geo.Point{Lat: l.Lat, Lng: l.Lng} }

// VictimInfo describes the people waiting for rescue.
type VictimInfo struct {
	Phone       string `json:"phone"` // canonical form, see phone.Normalize
	PeopleCount int    `json:"people_count"`
	Note        string `json:"note,omitempty"`
	Elderly     bool   `json:"elderly"`
	Children    bool   `json:"children"`
	Disabled    bool   `json:"disabled"`
}

// Ticket is a rescue request.
type Ticket struct {
	ID                string       `json:"id"`
	Status            TicketStatus `json:"status"`
	Priority          int          `json:"priority"` // 1 (low) .. 5 (critical)
	Location          Location     `json:"location"`
	Victim            VictimInfo   `json:"victim"`
	Source            string       `json:"source,omitempty"`
	AssignedRescuerID string       `json:"assigned_rescuer_id,omitempty"`
	Version           int64        `json:"version"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
	VerifiedAt        *time.Time   `json:"verified_at,omitempty"`
	CompletedAt       *time.Time   `json:"completed_at,omitempty"`
}

const (
	MinPriority = 1
	MaxPriority = 5
)

// Validate checks field ranges and the assignment invariant.
func (t Ticket) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("ticket id is required")
	}
	if !t.Status.Valid() {
		return fmt.Errorf("unknown ticket status %q", t.Status)
	}
	if t.Priority < MinPriority || t.Priority > MaxPriority {
		return fmt.Errorf("priority must be within [%d,%d], got %d", MinPriority, MaxPriority, t.Priority)
	}
	if t.Victim.PeopleCount < 1 {
		return fmt.Errorf("people_count must be at least 1")
	}
	if !t.Location.Point().Valid() {
		return fmt.Errorf("invalid coordinates %v,%v", t.Location.Lat, t.Location.Lng)
	}
	if t.Status.RequiresRescuer() != (t.AssignedRescuerID != "") {
		return fmt.Errorf("ticket %s in status %s: assigned rescuer mismatch", t.ID, t.Status)
	}
	return nil
}

// SpecialFlags lists the vulnerable groups flagged on the ticket.
func (t Ticket) SpecialFlags() []string {
	var flags []string
	if t.Victim.Elderly {
		flags = append(flags, "elderly")
	}
	if t.Victim.Children {
		flags = append(flags, "children")
	}
	if t.Victim.Disabled {
		flags = append(flags, "disabled")
	}
	return flags
}

// TicketUpdate is a partial update. Nil fields are left untouched; an empty
// AssignedRescuerID clears the assignment.
type TicketUpdate struct {
	Status            *TicketStatus
	AssignedRescuerID *string
	Priority          *int
	PeopleCount       *int
	AppendNote        string
	Elderly           *bool
	Children          *bool
	Disabled          *bool
}

// Apply mutates t according to u. Status changes must follow CanTransition
// and timestamps for VERIFIED/COMPLETED are stamped with now. The resulting
// ticket is validated; on error t is left unchanged.
func (t *Ticket) Apply(u TicketUpdate, now time.Time) error {
	next := *t
	if u.Status != nil && *u.Status != t.Status {
		if !CanTransition(t.Status, *u.Status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, *u.Status)
		}
		next.Status = *u.Status
		switch next.Status {
		case TicketVerified:
			ts := now
			next.VerifiedAt = &ts
		case TicketCompleted:
			ts := now
			next.CompletedAt = &ts
		}
	}
	if u.AssignedRescuerID != nil {
		next.AssignedRescuerID = *u.AssignedRescuerID
	}
	if u.Priority != nil {
		next.Priority = *u.Priority
	}
	if u.PeopleCount != nil {
		next.Victim.PeopleCount = *u.PeopleCount
	}
	if note := strings.TrimSpace(u.AppendNote); note != "" {
		if next.Victim.Note == "" {
			next.Victim.Note = note
		} else {
			next.Victim.Note += "\n" + note
		}
	}
	if u.Elderly != nil {
		next.Victim.Elderly = *u.Elderly
	}
	if u.Children != nil {
		next.Victim.Children = *u.Children
	}
	if u.Disabled != nil {
		next.Victim.Disabled = *u.Disabled
	}
	if err := next.Validate(); err != nil {
		return err
	}
	next.Version = t.Version + 1
	next.UpdatedAt = now
	*t = next
	return nil
}

// StatusPtr is a convenience for building updates.
func StatusPtr(s TicketStatus) *TicketStatus { return &s }
