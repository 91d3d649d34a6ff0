package dispatch

import (
	"github.com/kilianp07/floodrescue/core/fault"
	"github.com/kilianp07/floodrescue/core/model"
)

// User-facing messages.
const (
	MsgNoLongerAvailable = "mission no longer available"
	MsgTicketNotFound    = "ticket not found"
	MsgRescuerNotFound   = "rescuer not found"
	MsgAssigned          = "mission assigned"
)

// NotifiedRescuer is the per-rescuer part of a DispatchResult.
type NotifiedRescuer struct {
	RescuerID  string  `json:"rescuer_id"`
	Name       string  `json:"name,omitempty"`
	DistanceKm float64 `json:"distance_km"`
	Score      float64 `json:"score"`
	Delivered  bool    `json:"delivered"`
	Error      string  `json:"error,omitempty"`
}

// DispatchResult reports a fan-out.
type DispatchResult struct {
	TicketID      string            `json:"ticket_id"`
	Success       bool              `json:"success"`
	NotifiedCount int               `json:"notified_count"`
	Rescuers      []NotifiedRescuer `json:"rescuers"`
	Message       string            `json:"message"`
}

// AssignmentResult reports an accept attempt. Kind is KindNone on success.
type AssignmentResult struct {
	Success       bool                `json:"success"`
	Message       string              `json:"message"`
	Kind          fault.Kind          `json:"kind,omitempty"`
	TicketStatus  model.TicketStatus  `json:"ticket_status,omitempty"`
	RescuerStatus model.RescuerStatus `json:"rescuer_status,omitempty"`
	AssignedTo    string              `json:"assigned_to,omitempty"`
}

// Availability reports whether a ticket can still be accepted.
type Availability struct {
	Available     bool               `json:"available"`
	CurrentStatus model.TicketStatus `json:"current_status,omitempty"`
	AssignedTo    string             `json:"assigned_to,omitempty"`
	Kind          fault.Kind         `json:"kind,omitempty"`
}

// TransitionResult reports a lifecycle operation.
type TransitionResult struct {
	Success   bool               `json:"success"`
	Message   string             `json:"message"`
	Kind      fault.Kind         `json:"kind,omitempty"`
	From      model.TicketStatus `json:"from,omitempty"`
	To        model.TicketStatus `json:"to,omitempty"`
	RescuerID string             `json:"rescuer_id,omitempty"`
}
