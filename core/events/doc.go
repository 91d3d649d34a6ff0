// Package events defines the dispatch related events emitted on the event bus.
//
// Available event types:
//   - TicketDispatched: fan-out finished for a ticket
//   - MissionDelivered: delivery outcome for one rescuer
//   - MissionAccepted: a rescuer won the ticket
//   - MissionRejected: an accept attempt lost or was refused
//   - TicketStatusChanged: any committed ticket status transition
package events
