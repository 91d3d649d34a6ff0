// Package notify builds mission notifications and defines the delivery
// boundary used by the dispatch core.
package notify

import (
	"fmt"
	"math"
	"strings"

	"github.com/kilianp07/floodrescue/core/model"
)

// Tier is the urgency bucket shown to rescuers.
type Tier string

const (
	TierCritical Tier = "CRITICAL"
	TierHigh     Tier = "HIGH"
	TierMedium   Tier = "MEDIUM"
	TierLow      Tier = "LOW"
)

// TierFor maps a 1..5 priority to its tier, 5 being most urgent.
func TierFor(priority int) Tier {
	switch {
	case priority >= 5:
		return TierCritical
	case priority == 4:
		return TierHigh
	case priority == 3:
		return TierMedium
	default:
		return TierLow
	}
}

// RewardTable gives the reward amount announced per tier.
type RewardTable map[Tier]float64

// DefaultRewards is used when no table is configured.
func DefaultRewards() RewardTable {
	return RewardTable{TierCritical: 50, TierHigh: 30, TierMedium: 20, TierLow: 10}
}

// Amount returns the reward for tier, zero when unknown.
func (r RewardTable) Amount(t Tier) float64 { return r[t] }

// MissionPayload is the structured mission offer sent to one rescuer.
type MissionPayload struct {
	TicketID     string   `json:"ticket_id"`
	PriorityTier Tier     `json:"priority_tier"`
	Address      string   `json:"address"`
	Lat          float64  `json:"lat"`
	Lng          float64  `json:"lng"`
	DistanceKm   float64  `json:"distance_km"`
	PeopleCount  int      `json:"people_count"`
	SpecialFlags []string `json:"special_flags,omitempty"`
	RewardAmount float64  `json:"reward_amount"`
	RescuerID    string   `json:"rescuer_id"`
}

// BuildPayload formats the offer of ticket t to rescuer r. Distance is
// rounded to 10 m. A nil reward table falls back to DefaultRewards.
func BuildPayload(t model.Ticket, r model.Rescuer, distanceKm float64, rewards RewardTable) MissionPayload {
	if rewards == nil {
		rewards = DefaultRewards()
	}
	tier := TierFor(t.Priority)
	return MissionPayload{
		TicketID:     t.ID,
		PriorityTier: tier,
		Address:      t.Location.Address,
		Lat:          t.Location.Lat,
		Lng:          t.Location.Lng,
		DistanceKm:   math.Round(distanceKm*100) / 100,
		PeopleCount:  t.Victim.PeopleCount,
		SpecialFlags: t.SpecialFlags(),
		RewardAmount: rewards.Amount(tier),
		RescuerID:    r.ID,
	}
}

// Text renders the payload as a short human message for chat-like channels.
func (p MissionPayload) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] Rescue needed: %d people", p.PriorityTier, p.PeopleCount)
	if len(p.SpecialFlags) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(p.SpecialFlags, ", "))
	}
	fmt.Fprintf(&b, "\nAddress: %s\nDistance: %.2f km\nReward: %.0f", p.Address, p.DistanceKm, p.RewardAmount)
	fmt.Fprintf(&b, "\nAccept ticket %s", p.TicketID)
	return b.String()
}
