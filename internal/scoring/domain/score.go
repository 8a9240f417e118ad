package domain

import (
	"math"
	"strconv"
)

// Score is a derived ICE score. It is only ever persisted through the task
// title prefix and the priority tier.
type Score float64

// DeriveScore computes (impact * confidence * ease) / 10. The product is
// taken in float64 so large metric values cannot wrap around.
func DeriveScore(impact, confidence, ease int) Score {
	return Score(float64(impact) * float64(confidence) * float64(ease) / 10)
}

// IsValid reports whether the score is finite and non-zero.
func (s Score) IsValid() bool {
	f := float64(s)
	return f != 0 && !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Equal reports numeric equality. Derived scores are multiples of 0.1 and
// survive the one-decimal encoding unchanged, so no tolerance is applied.
func (s Score) Equal(other Score) bool {
	return s == other
}

// String formats the score with one decimal place.
func (s Score) String() string {
	return strconv.FormatFloat(float64(s), 'f', 1, 64)
}

// PriorityTier is the 1-4 priority written back to the task service, where
// 4 is the most urgent.
type PriorityTier int

const (
	PriorityTierLow PriorityTier = iota + 1
	PriorityTierMediumLow
	PriorityTierMediumHigh
	PriorityTierHigh
)

// Tier thresholds, inclusive on the lower bound.
const (
	thresholdHigh       = 70
	thresholdMediumHigh = 50
	thresholdMediumLow  = 30
)

var priorityTierNames = map[PriorityTier]string{
	PriorityTierLow:        "low",
	PriorityTierMediumLow:  "medium-low",
	PriorityTierMediumHigh: "medium-high",
	PriorityTierHigh:       "high",
}

// PriorityTierFor maps a score onto a priority tier.
func PriorityTierFor(score Score) PriorityTier {
	switch {
	case score >= thresholdHigh:
		return PriorityTierHigh
	case score >= thresholdMediumHigh:
		return PriorityTierMediumHigh
	case score >= thresholdMediumLow:
		return PriorityTierMediumLow
	default:
		return PriorityTierLow
	}
}

// String returns the tier name.
func (p PriorityTier) String() string {
	if name, ok := priorityTierNames[p]; ok {
		return name
	}
	return "unknown"
}

// IsValid returns true if the tier is one of the four known values.
func (p PriorityTier) IsValid() bool {
	_, ok := priorityTierNames[p]
	return ok
}
