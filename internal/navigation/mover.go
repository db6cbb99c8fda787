package navigation

import (
	"math"

	rc "robot_control"
)

// MaxChannelValue is the full-scale motor command for one channel.
const MaxChannelValue = 1000

// Mixer accepts throttle/steering pairs and drives a two-motor base.
type Mixer interface {
	MixMotorCommand(throttle, steering int) rc.MotorCommandResult
}

// Mover translates Power into throttle and steering for tank-style steering.
type Mover struct {
	mixer Mixer
}

func NewMover(m Mixer) *Mover {
	return &Mover{mixer: m}
}

// ThrottleSteering converts p into channel values. Robot angle 0 is forward,
// so the standard angle is 90 - p.Angle. Levels above 1 are clamped.
func ThrottleSteering(p rc.Power) (throttle, steering int) {
	level := p.Level
	if level > 1.0 {
		level = 1.0
	}
	scale := level * MaxChannelValue
	rad := (90 - p.Angle) * math.Pi / 180
	throttle = int(math.Sin(rad) * scale)
	steering = int(math.Cos(rad) * scale)
	return throttle, steering
}

// Move sends p to the mixer.
func (m *Mover) Move(p rc.Power) rc.MotorCommandResult {
	throttle, steering := ThrottleSteering(p)
	return m.mixer.MixMotorCommand(throttle, steering)
}

// Mix combines throttle and steering into the two motor channels, each
// clamped to +/-MaxChannelValue.
func Mix(throttle, steering int) (ch1, ch2 int) {
	return clampChannel(throttle + steering), clampChannel(throttle - steering)
}

func clampChannel(v int) int {
	if v > MaxChannelValue {
		return MaxChannelValue
	}
	if v < -MaxChannelValue {
		return -MaxChannelValue
	}
	return v
}
