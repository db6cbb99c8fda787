package navigation

import (
	rc "robot_control"
)

// ----------- Range rule constants -----------
const (
	MinForwardRange  = 25.0  // cm, hard stop at or below
	FreeForwardRange = 100.0 // cm, no limit at or above
	MinPowerLevel    = 0.15  // lowest level kept while still moving
)

// RangeRules limits forward power by the distance to the nearest obstacle ahead.
type RangeRules struct {
	MinForwardRange  float64
	FreeForwardRange float64
	MinPowerLevel    float64
}

// NewRangeRules returns rules with the default thresholds.
func NewRangeRules() RangeRules {
	return RangeRules{
		MinForwardRange:  MinForwardRange,
		FreeForwardRange: FreeForwardRange,
		MinPowerLevel:    MinPowerLevel,
	}
}

// IsForward reports whether angle points into the forward cone [0,45] or [315,360].
func IsForward(angle float64) bool {
	return (angle >= 0 && angle <= 45) || (angle >= 315 && angle <= 360)
}

// AdjustPower returns the power to actually apply given the operator's
// request, the power currently in effect and the forward range in cm.
// The returned angle is always previous.Angle.
func (r RangeRules) AdjustPower(requested, previous rc.Power, forwardRange float64) rc.Power {
	out := rc.Power{Level: 0, Angle: previous.Angle}
	if previous.IsStop() {
		return out
	}
	if !IsForward(previous.Angle) {
		out.Level = previous.Level
		return out
	}

	switch {
	case forwardRange <= r.MinForwardRange:
		out.Level = 0
	case forwardRange >= r.FreeForwardRange:
		out.Level = requested.Level
	default:
		maxLevel := 1.0 - r.MinForwardRange/forwardRange
		out.Level = previous.Level
		if out.Level > maxLevel {
			out.Level = maxLevel
		}
		if out.Level < r.MinPowerLevel {
			out.Level = r.MinPowerLevel
		}
	}
	return out
}
