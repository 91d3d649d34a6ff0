package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/kilianp07/floodrescue/core/geo"
	"github.com/kilianp07/floodrescue/core/model"
	"github.com/kilianp07/floodrescue/core/store"
)

const ticketColumns = `id, status, priority, lat, lng, address, phone, people_count, note,
	elderly, children, disabled, source, assigned_rescuer_id, version,
	created_at, updated_at, verified_at, completed_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanTicket(row scanner) (*model.Ticket, error) {
	var (
		t                   model.Ticket
		created, updated    int64
		verified, completed sql.NullInt64
	)
	err := row.Scan(&t.ID, &t.Status, &t.Priority, &t.Location.Lat, &t.Location.Lng,
		&t.Location.Address, &t.Victim.Phone, &t.Victim.PeopleCount, &t.Victim.Note,
		&t.Victim.Elderly, &t.Victim.Children, &t.Victim.Disabled, &t.Source,
		&t.AssignedRescuerID, &t.Version, &created, &updated, &verified, &completed)
	if err != nil {
		return nil, err
	}
	t.CreatedAt = fromNanos(created)
	t.UpdatedAt = fromNanos(updated)
	t.VerifiedAt = fromNullNanos(verified)
	t.CompletedAt = fromNullNanos(completed)
	return &t, nil
}

func (s *Store) getTicket(ctx context.Context, q querier, id string) (*model.Ticket, error) {
	row := q.QueryRowContext(ctx, s.dialect.rebind(`SELECT `+ticketColumns+` FROM tickets WHERE id = ?`), id)
	t, err := scanTicket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ticket %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get ticket %s: %w", id, err)
	}
	return t, nil
}

// CreateTicket inserts t, assigning an id when empty.
func (s *Store) CreateTicket(ctx context.Context, t *model.Ticket) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = model.TicketOpen
	}
	if err := t.Validate(); err != nil {
		return err
	}
	now := s.now()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var one int
		err := tx.QueryRowContext(ctx, s.dialect.rebind(`SELECT 1 FROM tickets WHERE id = ?`), t.ID).Scan(&one)
		if err == nil {
			return fmt.Errorf("ticket %s: %w", t.ID, store.ErrAlreadyExists)
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("create ticket %s: %w", t.ID, err)
		}
		_, err = tx.ExecContext(ctx, s.dialect.rebind(`INSERT INTO tickets (`+ticketColumns+`)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			t.ID, string(t.Status), t.Priority, t.Location.Lat, t.Location.Lng,
			t.Location.Address, t.Victim.Phone, t.Victim.PeopleCount, t.Victim.Note,
			t.Victim.Elderly, t.Victim.Children, t.Victim.Disabled, t.Source,
			t.AssignedRescuerID, int64(1), nanos(now), nanos(now),
			nullNanos(t.VerifiedAt), nullNanos(t.CompletedAt))
		if err != nil {
			return fmt.Errorf("create ticket %s: %w", t.ID, err)
		}
		t.CreatedAt, t.UpdatedAt = now, now
		t.Version = 1
		return nil
	})
}

// GetTicket loads a ticket by id.
func (s *Store) GetTicket(ctx context.Context, id string) (*model.Ticket, error) {
	return s.getTicket(ctx, s.db, id)
}

// UpdateTicket reads the ticket, applies u and writes it back with
// UPDATE ... WHERE id = ? AND status = ? AND version = ?.
func (s *Store) UpdateTicket(ctx context.Context, id string, u model.TicketUpdate, expected *model.TicketStatus) (*model.Ticket, error) {
	var out *model.Ticket
	err := retry(func() error {
		t, err := s.getTicket(ctx, s.db, id)
		if err != nil {
			return err
		}
		if expected != nil && t.Status != *expected {
			return fmt.Errorf("ticket %s is %s, expected %s: %w", id, t.Status, *expected, store.ErrConflict)
		}
		prev := *t
		if err := t.Apply(u, s.now()); err != nil {
			return err
		}
		if err := s.casTicket(ctx, s.db, &prev, t); err != nil {
			return err
		}
		out = t
		return nil
	})
	return out, err
}

func (s *Store) casTicket(ctx context.Context, q querier, prev, next *model.Ticket) error {
	res, err := q.ExecContext(ctx, s.dialect.rebind(`UPDATE tickets SET
	status = ?, priority = ?, people_count = ?, note = ?, elderly = ?, children = ?,
	disabled = ?, assigned_rescuer_id = ?, version = ?, updated_at = ?,
	verified_at = ?, completed_at = ?
	WHERE id = ? AND status = ? AND version = ?`),
		string(next.Status), next.Priority, next.Victim.PeopleCount, next.Victim.Note,
		next.Victim.Elderly, next.Victim.Children, next.Victim.Disabled,
		next.AssignedRescuerID, next.Version, nanos(next.UpdatedAt),
		nullNanos(next.VerifiedAt), nullNanos(next.CompletedAt),
		prev.ID, string(prev.Status), prev.Version)
	if err != nil {
		return fmt.Errorf("update ticket %s: %w", prev.ID, err)
	}
	return affected(res)
}

// FindTicketByPhone returns the most recently created active ticket for phone.
func (s *Store) FindTicketByPhone(ctx context.Context, phone string) (*model.Ticket, error) {
	row := s.db.QueryRowContext(ctx, s.dialect.rebind(`SELECT `+ticketColumns+` FROM tickets
	WHERE phone = ? AND status IN (?, ?, ?) ORDER BY created_at DESC, id DESC LIMIT 1`),
		phone, string(model.TicketOpen), string(model.TicketAssigned), string(model.TicketInProgress))
	t, err := scanTicket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("phone %s: %w", phone, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find ticket by phone: %w", err)
	}
	return t, nil
}

// HasActiveTicketNearby reports whether an active ticket lies within radiusKm.
func (s *Store) HasActiveTicketNearby(ctx context.Context, lat, lng, radiusKm float64) (bool, error) {
	m, err := s.FindTicketsInRadius(ctx, lat, lng, radiusKm)
	if err != nil {
		return false, err
	}
	return len(m) > 0, nil
}

// FindTicketsInRadius prefilters active tickets with a bounding box in SQL and
// keeps those whose haversine distance is within radiusKm, nearest first.
func (s *Store) FindTicketsInRadius(ctx context.Context, lat, lng, radiusKm float64) ([]store.TicketMatch, error) {
	center := geo.Point{Lat: lat, Lng: lng}
	lo, hi := geo.BoundingBox(center, radiusKm)
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(`SELECT `+ticketColumns+` FROM tickets
	WHERE status IN (?, ?, ?) AND lat BETWEEN ? AND ? AND lng BETWEEN ? AND ?
	ORDER BY created_at, id`),
		string(model.TicketOpen), string(model.TicketAssigned), string(model.TicketInProgress),
		lo.Lat, hi.Lat, lo.Lng, hi.Lng)
	if err != nil {
		return nil, fmt.Errorf("find tickets in radius: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var res []store.TicketMatch
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ticket: %w", err)
		}
		if d := geo.Distance(center, t.Location.Point()); d <= radiusKm {
			res = append(res, store.TicketMatch{Ticket: *t, DistanceKm: d})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find tickets in radius: %w", err)
	}
	store.SortTicketMatches(res)
	return res, nil
}
