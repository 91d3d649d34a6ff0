package dispatch

import (
	"context"
	"sort"

	"github.com/kilianp07/floodrescue/core/geo"
	"github.com/kilianp07/floodrescue/core/model"
	"github.com/kilianp07/floodrescue/core/store"
)

// Candidate is an eligible rescuer with its score for one ticket.
type Candidate struct {
	Rescuer    model.Rescuer
	DistanceKm float64
	Score      ScoreBreakdown
}

// Rank filters matches to eligible rescuers within radiusKm of t and orders
// them by total score descending, then distance ascending, then input order.
func Rank(t model.Ticket, matches []store.RescuerMatch, radiusKm float64, w Weights) []Candidate {
	at := t.Location.Point()
	out := make([]Candidate, 0, len(matches))
	for _, m := range matches {
		if !m.Rescuer.Status.Available() {
			continue
		}
		d := geo.Distance(at, m.Rescuer.Location.Point())
		if d > radiusKm {
			continue
		}
		out = append(out, Candidate{
			Rescuer:    m.Rescuer,
			DistanceKm: d,
			Score:      w.Score(m.Rescuer, d, t.Victim.PeopleCount),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score.Total != out[j].Score.Total {
			return out[i].Score.Total > out[j].Score.Total
		}
		return out[i].DistanceKm < out[j].DistanceKm
	})
	return out
}

// Selector ranks rescuers from a Store.
type Selector struct {
	store       store.Store
	weights     Weights
	bestMatchKm float64
}

// NewSelector returns a Selector using the weights and best-match radius of cfg.
func NewSelector(s store.Store, cfg Config) *Selector {
	cfg.SetDefaults()
	return &Selector{store: s, weights: cfg.Weights, bestMatchKm: cfg.BestMatchRadiusKm}
}

// Candidates returns the ranked eligible rescuers within radiusKm of t. An
// empty result is not an error.
func (s *Selector) Candidates(ctx context.Context, t model.Ticket, radiusKm float64) ([]Candidate, error) {
	matches, err := s.store.FindAvailableRescuersInRadius(ctx, t.Location.Lat, t.Location.Lng, radiusKm)
	if err != nil {
		return nil, err
	}
	return Rank(t, matches, radiusKm, s.weights), nil
}

// BestMatch returns the top candidate within the best-match radius, or nil.
func (s *Selector) BestMatch(ctx context.Context, t model.Ticket) (*Candidate, error) {
	c, err := s.Candidates(ctx, t, s.bestMatchKm)
	if err != nil || len(c) == 0 {
		return nil, err
	}
	return &c[0], nil
}
