package dispatch

import (
	"fmt"
	"time"

	"github.com/kilianp07/floodrescue/core/model"
	"github.com/kilianp07/floodrescue/core/notify"
)

const (
	DefaultBestMatchRadiusKm = 5.0
	DefaultBroadcastRadiusKm = 10.0
	DefaultDeliveryTimeout   = 5 * time.Second
)

// Config defines dispatch-related settings. The radii are independent from
// the dedup radius.
type Config struct {
	BestMatchRadiusKm      float64 `json:"best_match_radius_km"`
	BroadcastRadiusKm      float64 `json:"broadcast_radius_km"`
	DeliveryTimeoutSeconds float64 `json:"delivery_timeout_seconds"`

	// MaxNotified caps the fan-out to the best N candidates; 0 notifies all.
	MaxNotified int `json:"max_notified"`

	// DeliveryRate limits deliveries per second across a fan-out; 0 disables.
	DeliveryRate  float64 `json:"delivery_rate"`
	DeliveryBurst int     `json:"delivery_burst"`

	Weights Weights            `json:"weights"`
	Rewards notify.RewardTable `json:"rewards"`
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.BestMatchRadiusKm <= 0 {
		c.BestMatchRadiusKm = DefaultBestMatchRadiusKm
	}
	if c.BroadcastRadiusKm <= 0 {
		c.BroadcastRadiusKm = DefaultBroadcastRadiusKm
	}
	if c.DeliveryTimeoutSeconds <= 0 {
		c.DeliveryTimeoutSeconds = DefaultDeliveryTimeout.Seconds()
	}
	if c.DeliveryRate > 0 && c.DeliveryBurst <= 0 {
		c.DeliveryBurst = 1
	}
	c.Weights.SetDefaults()
	if len(c.Rewards) == 0 {
		c.Rewards = notify.DefaultRewards()
	}
}

// Validate checks ranges.
func (c Config) Validate() error {
	if c.BestMatchRadiusKm < 0 || c.BroadcastRadiusKm < 0 {
		return fmt.Errorf("dispatch radii must not be negative")
	}
	if c.MaxNotified < 0 {
		return fmt.Errorf("max_notified must not be negative")
	}
	if c.DeliveryRate < 0 {
		return fmt.Errorf("delivery_rate must not be negative")
	}
	return c.Weights.Validate()
}

// DeliveryTimeout returns the per-delivery deadline.
func (c Config) DeliveryTimeout() time.Duration {
	return time.Duration(c.DeliveryTimeoutSeconds * float64(time.Second))
}

// Weights parameterizes the additive rescuer score.
type Weights struct {
	DistanceBase  float64                       `json:"distance_base"`
	DistancePerKm float64                       `json:"distance_per_km"`
	Vehicle       map[model.VehicleType]float64 `json:"vehicle"`
	Capacity      float64                       `json:"capacity"`
	RatingFactor  float64                       `json:"rating_factor"`
	ExperienceCap float64                       `json:"experience_cap"`
}

// DefaultWeights returns the stock scoring weights.
func DefaultWeights() Weights {
	return Weights{
		DistanceBase:  100,
		DistancePerKm: 20,
		Vehicle:       map[model.VehicleType]float64{model.VehicleCano: 30, model.VehicleBoat: 20},
		Capacity:      20,
		RatingFactor:  5,
		ExperienceCap: 20,
	}
}

// SetDefaults replaces an entirely empty weight set with DefaultWeights.
// Partially filled sets are kept as given so a factor can be disabled.
func (w *Weights) SetDefaults() {
	if w.DistanceBase == 0 && w.DistancePerKm == 0 && w.Vehicle == nil &&
		w.Capacity == 0 && w.RatingFactor == 0 && w.ExperienceCap == 0 {
		*w = DefaultWeights()
	}
}

// Validate rejects weights that would break the ranking order.
func (w Weights) Validate() error {
	if w.DistancePerKm < 0 {
		return fmt.Errorf("distance_per_km must not be negative")
	}
	if w.DistanceBase < 0 || w.Capacity < 0 || w.RatingFactor < 0 || w.ExperienceCap < 0 {
		return fmt.Errorf("score weights must not be negative")
	}
	for vt, v := range w.Vehicle {
		if v < 0 {
			return fmt.Errorf("vehicle weight for %s must not be negative", vt)
		}
	}
	return nil
}
