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

const rescuerColumns = `id, name, phone, status, lat, lng, location_updated_at, vehicle_type,
	vehicle_capacity, wallet_address, rating, completed_missions, rev, created_at, updated_at`

// rescuerRow carries the optimistic revision next to the model.
type rescuerRow struct {
	model.Rescuer
	rev int64
}

func scanRescuer(row scanner) (*rescuerRow, error) {
	var (
		r                       rescuerRow
		locAt, created, updated int64
	)
	err := row.Scan(&r.ID, &r.Name, &r.Phone, &r.Status, &r.Location.Lat, &r.Location.Lng,
		&locAt, &r.VehicleType, &r.VehicleCapacity, &r.WalletAddress, &r.Rating,
		&r.CompletedMissions, &r.rev, &created, &updated)
	if err != nil {
		return nil, err
	}
	r.Location.LastUpdated = fromNanos(locAt)
	r.CreatedAt = fromNanos(created)
	r.UpdatedAt = fromNanos(updated)
	return &r, nil
}

func (s *Store) getRescuer(ctx context.Context, q querier, id string) (*rescuerRow, error) {
	row := q.QueryRowContext(ctx, s.dialect.rebind(`SELECT `+rescuerColumns+` FROM rescuers WHERE id = ?`), id)
	r, err := scanRescuer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("rescuer %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get rescuer %s: %w", id, err)
	}
	return r, nil
}

// CreateRescuer inserts r, assigning an id when empty. Ratings are clamped.
func (s *Store) CreateRescuer(ctx context.Context, r *model.Rescuer) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Status == "" {
		r.Status = model.RescuerOffline
	}
	if err := r.Validate(); err != nil {
		return err
	}
	now := s.now()
	if r.Location.LastUpdated.IsZero() {
		r.Location.LastUpdated = now
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var one int
		err := tx.QueryRowContext(ctx, s.dialect.rebind(`SELECT 1 FROM rescuers WHERE id = ?`), r.ID).Scan(&one)
		if err == nil {
			return fmt.Errorf("rescuer %s: %w", r.ID, store.ErrAlreadyExists)
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("create rescuer %s: %w", r.ID, err)
		}
		_, err = tx.ExecContext(ctx, s.dialect.rebind(`INSERT INTO rescuers (`+rescuerColumns+`)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			r.ID, r.Name, r.Phone, string(r.Status), r.Location.Lat, r.Location.Lng,
			nanos(r.Location.LastUpdated), string(r.VehicleType), r.VehicleCapacity,
			r.WalletAddress, r.Rating, r.CompletedMissions, int64(1), nanos(now), nanos(now))
		if err != nil {
			return fmt.Errorf("create rescuer %s: %w", r.ID, err)
		}
		r.CreatedAt, r.UpdatedAt = now, now
		return nil
	})
}

// GetRescuer loads a rescuer by id.
func (s *Store) GetRescuer(ctx context.Context, id string) (*model.Rescuer, error) {
	r, err := s.getRescuer(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	return &r.Rescuer, nil
}

// UpdateRescuer applies u. When expected statuses are given the stored
// status must be one of them.
func (s *Store) UpdateRescuer(ctx context.Context, id string, u model.RescuerUpdate, expected ...model.RescuerStatus) (*model.Rescuer, error) {
	var out *model.Rescuer
	err := retry(func() error {
		r, err := s.getRescuer(ctx, s.db, id)
		if err != nil {
			return err
		}
		if len(expected) > 0 && !statusIn(r.Status, expected) {
			return fmt.Errorf("rescuer %s is %s: %w", id, r.Status, store.ErrConflict)
		}
		if err := r.Apply(u, s.now()); err != nil {
			return err
		}
		if err := s.casRescuer(ctx, s.db, r); err != nil {
			return err
		}
		out = &r.Rescuer
		return nil
	})
	return out, err
}

func (s *Store) casRescuer(ctx context.Context, q querier, r *rescuerRow) error {
	res, err := q.ExecContext(ctx, s.dialect.rebind(`UPDATE rescuers SET
	status = ?, lat = ?, lng = ?, location_updated_at = ?, rating = ?,
	completed_missions = ?, rev = rev + 1, updated_at = ?
	WHERE id = ? AND rev = ?`),
		string(r.Status), r.Location.Lat, r.Location.Lng, nanos(r.Location.LastUpdated),
		r.Rating, r.CompletedMissions, nanos(r.UpdatedAt), r.ID, r.rev)
	if err != nil {
		return fmt.Errorf("update rescuer %s: %w", r.ID, err)
	}
	return affected(res)
}

// FindAvailableRescuersInRadius returns ONLINE/IDLE rescuers within radiusKm
// in creation order.
func (s *Store) FindAvailableRescuersInRadius(ctx context.Context, lat, lng, radiusKm float64) ([]store.RescuerMatch, error) {
	center := geo.Point{Lat: lat, Lng: lng}
	lo, hi := geo.BoundingBox(center, radiusKm)
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(`SELECT `+rescuerColumns+` FROM rescuers
	WHERE status IN (?, ?) AND lat BETWEEN ? AND ? AND lng BETWEEN ? AND ?
	ORDER BY created_at, id`),
		string(model.RescuerOnline), string(model.RescuerIdle),
		lo.Lat, hi.Lat, lo.Lng, hi.Lng)
	if err != nil {
		return nil, fmt.Errorf("find rescuers in radius: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var res []store.RescuerMatch
	for rows.Next() {
		r, err := scanRescuer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rescuer: %w", err)
		}
		if d := geo.Distance(center, r.Location.Point()); d <= radiusKm {
			res = append(res, store.RescuerMatch{Rescuer: r.Rescuer, DistanceKm: d})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find rescuers in radius: %w", err)
	}
	return res, nil
}

func statusIn(s model.RescuerStatus, set []model.RescuerStatus) bool {
	for _, x := range set {
		if s == x {
			return true
		}
	}
	return false
}
