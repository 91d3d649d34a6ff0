package model

import (
	"fmt"
	"math"
	"time"

	"github.com/kilianp07/floodrescue/core/geo"
)

// RescuerStatus is the presence state of a rescue unit.
type RescuerStatus string

const (
	RescuerOffline   RescuerStatus = "OFFLINE"
	RescuerOnline    RescuerStatus = "ONLINE"
	RescuerIdle      RescuerStatus = "IDLE"
	RescuerOnMission RescuerStatus = "ON_MISSION"
	RescuerBusy      RescuerStatus = "BUSY"
)

// AvailableRescuerStatuses are the statuses eligible for dispatch.
var AvailableRescuerStatuses = []RescuerStatus{RescuerOnline, RescuerIdle}

// Valid reports whether s is a known status.
func (s RescuerStatus) Valid() bool {
	switch s {
	case RescuerOffline, RescuerOnline, RescuerIdle, RescuerOnMission, RescuerBusy:
		return true
	}
	return false
}

// Available reports whether a rescuer in this status may receive missions.
func (s RescuerStatus) Available() bool {
	return s == RescuerOnline || s == RescuerIdle
}

// VehicleType identifies the kind of boat a rescuer operates.
type VehicleType string

const (
	VehicleBoat  VehicleType = "boat"
	VehicleCano  VehicleType = "cano"
	VehicleKayak VehicleType = "kayak"
)

// RescuerLocation is the last reported position of a rescuer.
type RescuerLocation struct {
	Lat         float64   `json:"lat"`
	Lng         float64   `json:"lng"`
	LastUpdated time.Time `json:"last_updated"`
}

// Point returns the coordinate part of the location.
func (l RescuerLocation) Point() geo.Point { return geo.Point{Lat: l.Lat, Lng: l.Lng} }

const (
	MinRating = 0.0
	MaxRating = 5.0
)

// Rescuer is a volunteer rescue unit.
type Rescuer struct {
	ID                string          `json:"id"`
	Name              string          `json:"name"`
	Phone             string          `json:"phone"`
	Status            RescuerStatus   `json:"status"`
	Location          RescuerLocation `json:"location"`
	VehicleType       VehicleType     `json:"vehicle_type"`
	VehicleCapacity   int             `json:"vehicle_capacity"`
	WalletAddress     string          `json:"wallet_address,omitempty"`
	Rating            float64         `json:"rating"`
	CompletedMissions int             `json:"completed_missions"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// ClampRating bounds r into [MinRating, MaxRating]. NaN maps to MinRating.
func ClampRating(r float64) float64 {
	if math.IsNaN(r) {
		return MinRating
	}
	return math.Max(MinRating, math.Min(MaxRating, r))
}

// Validate checks field ranges. Ratings are clamped rather than rejected.
func (r *Rescuer) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("rescuer id is required")
	}
	if !r.Status.Valid() {
		return fmt.Errorf("unknown rescuer status %q", r.Status)
	}
	if r.VehicleCapacity < 1 {
		return fmt.Errorf("vehicle_capacity must be at least 1")
	}
	if r.CompletedMissions < 0 {
		return fmt.Errorf("completed_missions must not be negative")
	}
	if !r.Location.Point().Valid() {
		return fmt.Errorf("invalid coordinates %v,%v", r.Location.Lat, r.Location.Lng)
	}
	r.Rating = ClampRating(r.Rating)
	return nil
}

// RescuerUpdate is a partial rescuer update.
type RescuerUpdate struct {
	Status                 *RescuerStatus
	Location               *geo.Point
	Rating                 *float64
	CompletedMissionsDelta int
}

// Apply mutates r according to u.
func (r *Rescuer) Apply(u RescuerUpdate, now time.Time) error {
	next := *r
	if u.Status != nil {
		next.Status = *u.Status
	}
	if u.Location != nil {
		next.Location = RescuerLocation{Lat: u.Location.Lat, Lng: u.Location.Lng, LastUpdated: now}
	}
	if u.Rating != nil {
		next.Rating = *u.Rating
	}
	next.CompletedMissions += u.CompletedMissionsDelta
	if err := next.Validate(); err != nil {
		return err
	}
	next.UpdatedAt = now
	*r = next
	return nil
}

// RescuerStatusPtr is a convenience for building updates.
func RescuerStatusPtr(s RescuerStatus) *RescuerStatus { return &s }
