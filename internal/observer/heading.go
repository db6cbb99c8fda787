package observer

import (
	"math"
	"time"

	rc "robot_control"
	"robot_control/internal/logger"
	"robot_control/internal/navigation"
)

const (
	HeadingAchievedTolerance = 3.0  // degrees
	HeadingMissedTolerance   = 20.0 // degrees of overshoot growth
	initialHeadingDistance   = -900.0
)

// Heading watches the compass heading until it is within tolerance of the
// target. It misses when the remaining distance jumps by more than the
// missed tolerance between samples, which happens once the robot overshoots.
type Heading struct {
	progress
	target    float64
	prevd     float64
	direction float64
}

func NewHeading(target float64, start time.Time, log *logger.Logger) *Heading {
	return &Heading{progress: newProgress(start, log), target: target, prevd: initialHeadingDistance}
}

func (h *Heading) Name() string { return "heading" }

func (h *Heading) State() State { return h.state }

// Direction is the spin direction chosen on the last sample.
func (h *Heading) Direction() float64 { return h.direction }

func (h *Heading) Update(msg rc.Message) (rc.ObservationResult, bool) {
	sample, ok := msg.(rc.MpuSample)
	if !ok || h.state != Watching {
		return rc.ObservationResult{}, false
	}
	h.advance(sample.Time)

	within, missed := h.achieved(sample.Heading)
	switch {
	case within:
		return h.finish(h.Name(), Observed, sample.Heading), true
	case missed:
		return h.finish(h.Name(), Missed, sample.Heading), true
	}
	return rc.ObservationResult{}, false
}

func (h *Heading) achieved(current float64) (within, missed bool) {
	direction, dcw, dccw := navigation.CalcDirection(current, h.target)
	d := dccw
	if direction == navigation.Clockwise {
		d = dcw
	}
	if math.Abs(d) <= HeadingAchievedTolerance {
		within = true
	} else if math.Abs(d) > math.Abs(h.prevd)+HeadingMissedTolerance {
		missed = true
	}
	h.prevd = d
	h.direction = direction
	return within, missed
}
