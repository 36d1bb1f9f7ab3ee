package shipping

import "math"

// Tier charges Fee for any distance up to and including MaxKm.
type Tier struct {
	MaxKm float64
	Fee   int64
}

// Tiers is an ascending list of distance bands with a flat fee beyond the last one.
type Tiers struct {
	Steps  []Tier
	Beyond int64
}

// DefaultTiers returns the inner-city fee schedule.
func DefaultTiers() Tiers {
	return Tiers{
		Steps: []Tier{
			{MaxKm: 3, Fee: 15000},
			{MaxKm: 7, Fee: 25000},
		},
		Beyond: 35000,
	}
}

// FeeFor maps a distance in kilometres to a fee. Tier bounds are inclusive.
func (t Tiers) FeeFor(distanceKm float64) int64 {
	if math.IsNaN(distanceKm) || distanceKm < 0 {
		distanceKm = 0
	}
	for _, step := range t.Steps {
		if distanceKm <= step.MaxKm {
			return step.Fee
		}
	}
	return t.Beyond
}

// FeeFor applies the default schedule.
func FeeFor(distanceKm float64) int64 {
	return DefaultTiers().FeeFor(distanceKm)
}
