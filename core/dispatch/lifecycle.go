package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kilianp07/floodrescue/core/events"
	"github.com/kilianp07/floodrescue/core/fault"
	"github.com/kilianp07/floodrescue/core/model"
	"github.com/kilianp07/floodrescue/core/store"
)

// Start moves an ASSIGNED ticket to IN_PROGRESS.
func (m *DispatchManager) Start(ctx context.Context, ticketID string) (TransitionResult, error) {
	return m.transition(ctx, ticketID, model.TicketInProgress, model.TicketUpdate{}, nil)
}

// Verify moves an IN_PROGRESS ticket to VERIFIED.
func (m *DispatchManager) Verify(ctx context.Context, ticketID string) (TransitionResult, error) {
	return m.transition(ctx, ticketID, model.TicketVerified, model.TicketUpdate{}, nil)
}

// Complete closes a VERIFIED ticket. The rescuer goes back to IDLE with one
// more completed mission.
func (m *DispatchManager) Complete(ctx context.Context, ticketID string) (TransitionResult, error) {
	return m.transition(ctx, ticketID, model.TicketCompleted, model.TicketUpdate{}, func(ctx context.Context, prev model.Ticket) {
		m.releaseRescuer(ctx, prev.ID, prev.AssignedRescuerID, model.RescuerIdle, 1)
	})
}

// Cancel cancels any non-terminal ticket and frees its rescuer.
func (m *DispatchManager) Cancel(ctx context.Context, ticketID, reason string) (TransitionResult, error) {
	none := ""
	u := model.TicketUpdate{AssignedRescuerID: &none}
	if reason = strings.TrimSpace(reason); reason != "" {
		u.AppendNote = "cancelled: " + reason
	}
	return m.transition(ctx, ticketID, model.TicketCancelled, u, func(ctx context.Context, prev model.Ticket) {
		m.releaseRescuer(ctx, prev.ID, prev.AssignedRescuerID, model.RescuerIdle, 0)
	})
}

// Reopen puts a CANCELLED ticket back to OPEN so it can be dispatched again.
func (m *DispatchManager) Reopen(ctx context.Context, ticketID string) (TransitionResult, error) {
	return m.transition(ctx, ticketID, model.TicketOpen, model.TicketUpdate{}, nil)
}

func (m *DispatchManager) transition(ctx context.Context, ticketID string, to model.TicketStatus, u model.TicketUpdate, after func(context.Context, model.Ticket)) (TransitionResult, error) {
	res := TransitionResult{To: to}
	t, err := m.store.GetTicket(ctx, ticketID)
	if errors.Is(err, store.ErrNotFound) {
		res.Kind, res.Message = fault.KindNotFound, MsgTicketNotFound
		return res, nil
	}
	if err != nil {
		res.Kind = fault.KindInfrastructure
		return res, m.infra("transition get ticket", err, ticketID)
	}
	res.From = t.Status
	res.RescuerID = t.AssignedRescuerID
	if !model.CanTransition(t.Status, to) {
		res.Kind = fault.KindInvalidState
		res.Message = fmt.Sprintf("cannot move ticket from %s to %s", t.Status, to)
		return res, nil
	}

	u.Status = &to
	from := t.Status
	if _, err := m.store.UpdateTicket(ctx, ticketID, u, &from); err != nil {
		switch {
		case errors.Is(err, store.ErrConflict), errors.Is(err, model.ErrInvalidTransition):
			res.Kind = fault.KindInvalidState
			res.Message = "ticket changed concurrently"
			if cur, gerr := m.store.GetTicket(ctx, ticketID); gerr == nil {
				res.Message = fmt.Sprintf("ticket is now %s", cur.Status)
			}
			return res, nil
		case errors.Is(err, store.ErrNotFound):
			res.Kind, res.Message = fault.KindNotFound, MsgTicketNotFound
			return res, nil
		}
		res.Kind = fault.KindInfrastructure
		return res, m.infra("transition update ticket", err, ticketID)
	}

	res.Success = true
	res.Message = "ticket " + strings.ToLower(string(to))
	m.logger.Infof("ticket %s: %s -> %s", ticketID, from, to)
	m.publish(events.TicketStatusChanged{TicketID: ticketID, From: from, To: to, RescuerID: t.AssignedRescuerID, At: m.now()})
	if after != nil {
		after(ctx, *t)
	}
	return res, nil
}
