package dispatch

import (
	"math"

	"github.com/kilianp07/floodrescue/core/model"
)

// ScoreBreakdown lists the additive terms of a rescuer score.
type ScoreBreakdown struct {
	Distance   float64 `json:"distance"`
	Vehicle    float64 `json:"vehicle"`
	Capacity   float64 `json:"capacity"`
	Rating     float64 `json:"rating"`
	Experience float64 `json:"experience"`
	Total      float64 `json:"total"`
}

// Score rates rescuer r for a ticket with peopleCount victims at distanceKm.
// The distance term decreases linearly to zero; all other factors being
// equal a closer rescuer never scores lower.
func (w Weights) Score(r model.Rescuer, distanceKm float64, peopleCount int) ScoreBreakdown {
	var s ScoreBreakdown
	s.Distance = math.Max(0, w.DistanceBase-distanceKm*w.DistancePerKm)
	s.Vehicle = w.Vehicle[r.VehicleType]
	if r.VehicleCapacity >= peopleCount {
		s.Capacity = w.Capacity
	}
	s.Rating = model.ClampRating(r.Rating) * w.RatingFactor
	s.Experience = math.Min(float64(r.CompletedMissions), w.ExperienceCap)
	s.Total = s.Distance + s.Vehicle + s.Capacity + s.Rating + s.Experience
	return s
}
