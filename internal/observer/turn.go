package observer

import (
	"math"
	"time"

	rc "robot_control"
	"robot_control/internal/logger"
)

// Turn integrates the gyro z rate until the absolute target angle is covered.
// It has no Missed condition.
type Turn struct {
	progress
	target     float64
	cumulative float64
	lastSpeed  float64
}

// NewTurn watches for |angle| degrees of rotation starting at start.
func NewTurn(angle float64, start time.Time, log *logger.Logger) *Turn {
	return &Turn{progress: newProgress(start, log), target: angle}
}

func (t *Turn) Name() string { return "turn" }

func (t *Turn) State() State { return t.state }

// Cumulative is the rotation integrated so far in degrees.
func (t *Turn) Cumulative() float64 { return t.cumulative }

func (t *Turn) Update(msg rc.Message) (rc.ObservationResult, bool) {
	sample, ok := msg.(rc.MpuSample)
	if !ok || t.state != Watching {
		return rc.ObservationResult{}, false
	}

	before := t.last
	t.advance(sample.Time)
	dt := sample.Time.Sub(before).Seconds()

	// A zero rate is a squelched reading; hold the previous rate.
	speed := t.lastSpeed
	if sample.Gyro.Z != 0 {
		speed = math.Abs(sample.Gyro.Z)
	}

	t.cumulative += (speed + t.lastSpeed) / 2 * dt
	t.lastSpeed = speed

	if t.cumulative >= math.Abs(t.target) {
		return t.finish(t.Name(), Observed, t.cumulative), true
	}
	return rc.ObservationResult{}, false
}
