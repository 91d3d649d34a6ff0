// Package dedup decides whether an incoming rescue request refers to a
// situation that is already tracked.
package dedup

import (
	"context"
	"errors"

	"github.com/kilianp07/floodrescue/core/fault"
	"github.com/kilianp07/floodrescue/core/geo"
	"github.com/kilianp07/floodrescue/core/phone"
	"github.com/kilianp07/floodrescue/core/store"
)

// DefaultRadiusKm is the location match radius (50 m).
const DefaultRadiusKm = 0.05

// MatchType tells which rule produced a duplicate.
type MatchType string

const (
	MatchNone     MatchType = "none"
	MatchPhone    MatchType = "phone"
	MatchLocation MatchType = "location"
)

// Action is what the caller should do with the request.
type Action string

const (
	ActionCreate Action = "create"
	ActionSkip   Action = "skip"
	ActionMerge  Action = "merge"
)

// Result is the outcome of Check.
type Result struct {
	IsDuplicate      bool      `json:"is_duplicate"`
	ExistingTicketID string    `json:"existing_ticket_id,omitempty"`
	MatchType        MatchType `json:"match_type"`
	Action           Action    `json:"action"`
	DistanceKm       float64   `json:"distance_km,omitempty"`
}

// Config holds the dedup settings.
type Config struct {
	RadiusKm float64 `json:"radius_km"`
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.RadiusKm <= 0 {
		c.RadiusKm = DefaultRadiusKm
	}
}

// Checker runs the phone then location rules against a Store.
type Checker struct {
	store    store.Store
	radiusKm float64
}

// NewChecker returns a Checker using cfg.
func NewChecker(s store.Store, cfg Config) *Checker {
	cfg.SetDefaults()
	return &Checker{store: s, radiusKm: cfg.RadiusKm}
}

// Check applies the rules in order: an active ticket with the same phone is a
// skip, an active ticket within the radius is a merge with the nearest one,
// anything else is a create. Store failures are returned as infrastructure
// errors and never read as "no duplicate".
func (c *Checker) Check(ctx context.Context, rawPhone string, at *geo.Point) (Result, error) {
	if p := phone.Normalize(rawPhone); p != "" {
		t, err := c.store.FindTicketByPhone(ctx, p)
		switch {
		case err == nil:
			if t.Status.Active() {
				return Result{IsDuplicate: true, ExistingTicketID: t.ID, MatchType: MatchPhone, Action: ActionSkip}, nil
			}
		case errors.Is(err, store.ErrNotFound):
		default:
			return Result{}, fault.Infrastructure("dedup phone lookup", err)
		}
	}
	if at != nil {
		matches, err := c.store.FindTicketsInRadius(ctx, at.Lat, at.Lng, c.radiusKm)
		if err != nil {
			return Result{}, fault.Infrastructure("dedup location lookup", err)
		}
		if len(matches) > 0 {
			m := matches[0]
			return Result{
				IsDuplicate:      true,
				ExistingTicketID: m.Ticket.ID,
				MatchType:        MatchLocation,
				Action:           ActionMerge,
				DistanceKm:       m.DistanceKm,
			}, nil
		}
	}
	return Result{MatchType: MatchNone, Action: ActionCreate}, nil
}
