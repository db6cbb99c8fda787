package observer

import (
	"math"
	"time"

	rc "robot_control"
	"robot_control/internal/logger"
)

// Physical limits of the ultrasonic sensors.
const (
	MinRange               = 17.0  // cm
	MaxRange               = 768.0 // cm
	RangeAchievedTolerance = 1.0   // cm
)

// Range watches one named range sensor until it reads the target distance.
type Range struct {
	progress
	target float64
	sensor string
}

// NewRange builds an observer for nav.Range on nav.Sensor. Targets outside
// the sensor limits are clamped.
func NewRange(nav rc.Nav, start time.Time, log *logger.Logger) *Range {
	target := ClampRange(nav.Range)
	if target != nav.Range && log != nil {
		log.Infow("range_target_clamped", "requested", nav.Range, "clamped", target, "sensor", nav.Sensor)
	}
	return &Range{progress: newProgress(start, log), target: target, sensor: nav.Sensor}
}

// ClampRange limits a target distance to [MinRange, MaxRange].
func ClampRange(r float64) float64 {
	return math.Min(math.Max(r, MinRange), MaxRange)
}

func (r *Range) Name() string { return "range" }

func (r *Range) State() State { return r.state }

func (r *Range) Target() float64 { return r.target }

func (r *Range) Update(msg rc.Message) (rc.ObservationResult, bool) {
	sample, ok := msg.(rc.RangeSample)
	if !ok || r.state != Watching {
		return rc.ObservationResult{}, false
	}
	current, ok := sample.Ranges[r.sensor]
	if !ok {
		return rc.ObservationResult{}, false
	}
	r.advance(sample.Timestamp)

	switch {
	case math.Abs(current-r.target) <= RangeAchievedTolerance:
		return r.finish(r.Name(), Observed, current), true
	case current < r.target-RangeAchievedTolerance || current > MaxRange:
		return r.finish(r.Name(), Missed, current), true
	}
	return rc.ObservationResult{}, false
}
