package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kilianp07/floodrescue/core/model"
	"github.com/kilianp07/floodrescue/core/store"
)

// AssignTicket moves the ticket OPEN -> ASSIGNED and the rescuer to
// ON_MISSION inside one transaction. Both rows are written with conditional
// updates; losing either one rolls the whole assignment back.
func (s *Store) AssignTicket(ctx context.Context, ticketID, rescuerID string) (*store.Assignment, error) {
	var out *store.Assignment
	err := retry(func() error {
		return s.withTx(ctx, func(tx *sql.Tx) error {
			t, err := s.getTicket(ctx, tx, ticketID)
			if err != nil {
				return err
			}
			r, err := s.getRescuer(ctx, tx, rescuerID)
			if err != nil {
				return err
			}
			if t.Status != model.TicketOpen {
				return fmt.Errorf("ticket %s is %s: %w", ticketID, t.Status, store.ErrConflict)
			}
			if !r.Status.Available() {
				return fmt.Errorf("rescuer %s is %s: %w", rescuerID, r.Status, store.ErrRescuerUnavailable)
			}
			now := s.now()
			prev := *t
			if err := t.Apply(model.TicketUpdate{
				Status:            model.StatusPtr(model.TicketAssigned),
				AssignedRescuerID: &rescuerID,
			}, now); err != nil {
				return err
			}
			if err := r.Apply(model.RescuerUpdate{Status: model.RescuerStatusPtr(model.RescuerOnMission)}, now); err != nil {
				return err
			}
			if err := s.casTicket(ctx, tx, &prev, t); err != nil {
				return err
			}
			if err := s.casRescuer(ctx, tx, r); err != nil {
				return err
			}
			out = &store.Assignment{Ticket: *t, Rescuer: r.Rescuer}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
