// Package driver defines the hardware contracts used by the control loop.
// Implementations live in driver/sim and driver/serial.
package driver

import (
	"errors"

	rc "robot_control"
)

var (
	ErrNotOpen     = errors.New("device not open")
	ErrReadTimeout = errors.New("read timeout")
	ErrMalformed   = errors.New("malformed device reply")
)

// Actuator is the two-channel motor controller.
type Actuator interface {
	MixMotorCommand(throttle, steering int) rc.MotorCommandResult
	CheckController() (rc.Voltages, rc.Amperages, error)
	Close() error
}

// Motion is the inertial sensor. Read never fails: on a bad read it returns
// the last good sample.
type Motion interface {
	Read() rc.MpuSample
	CalibrateMag(samples int, source string) error
	Close() error
}

// HardIronCorrected is a Motion sensor whose magnetometer offsets can be
// read back after calibration and restored on the next start.
type HardIronCorrected interface {
	HardIron() (alpha, beta float64)
	SetHardIron(alpha, beta float64)
}

// Range is the ultrasonic range array. ok is false when no valid reading
// was available.
type Range interface {
	Read() (ok bool, sample rc.RangeSample)
	Close() error
}

// Set is the hardware a robot runs with.
type Set struct {
	Actuator Actuator
	Motion   Motion
	Range    Range
}

// Close releases every device that was opened.
func (s Set) Close() error {
	var errs []error
	if s.Actuator != nil {
		errs = append(errs, s.Actuator.Close())
	}
	if s.Motion != nil {
		errs = append(errs, s.Motion.Close())
	}
	if s.Range != nil {
		errs = append(errs, s.Range.Close())
	}
	return errors.Join(errs...)
}
