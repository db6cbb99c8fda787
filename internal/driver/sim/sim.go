// Package sim provides in-memory hardware for running the robot without a
// motor controller or sensors attached. The simulated base turns and moves
// in response to motor commands.
package sim

import (
	"fmt"
	"math"
	"sync"
	"time"

	rc "robot_control"
	"robot_control/internal/driver"
	"robot_control/internal/navigation"
	"robot_control/internal/observer"
)

// Config tunes the simulated base.
type Config struct {
	StartHeading float64 // degrees
	StartRange   float64 // cm to the obstacle ahead
	TurnRate     float64 // deg/s at full steering
	Speed        float64 // cm/s at full throttle
	Voltage      float64 // main battery volts
	Clock        func() time.Time
}

func (c Config) withDefaults() Config {
	if c.StartRange == 0 {
		c.StartRange = 300
	}
	if c.TurnRate == 0 {
		c.TurnRate = 90
	}
	if c.Speed == 0 {
		c.Speed = 60
	}
	if c.Voltage == 0 {
		c.Voltage = 12.4
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	return c
}

// World is the shared physical state of the simulated robot.
type World struct {
	mu  sync.Mutex
	cfg Config

	throttle, steering int
	heading            float64
	forward            float64
	rate               float64 // deg/s, clockwise positive
	last               time.Time
}

func NewWorld(cfg Config) *World {
	cfg = cfg.withDefaults()
	return &World{
		cfg:     cfg,
		heading: math.Mod(cfg.StartHeading, 360),
		forward: cfg.StartRange,
		last:    cfg.Clock(),
	}
}

// NewSet returns an actuator, motion sensor and range sensor sharing w.
func NewSet(w *World) driver.Set {
	return driver.Set{Actuator: &Controller{world: w}, Motion: &IMU{world: w}, Range: &Sonar{world: w}}
}

// step advances the world to now. Callers hold mu.
func (w *World) step() time.Time {
	now := w.cfg.Clock()
	dt := now.Sub(w.last).Seconds()
	w.last = now
	if dt <= 0 {
		return now
	}
	w.rate = float64(w.steering) / navigation.MaxChannelValue * w.cfg.TurnRate
	w.heading = math.Mod(w.heading+w.rate*dt+360, 360)

	w.forward -= float64(w.throttle) / navigation.MaxChannelValue * w.cfg.Speed * dt
	w.forward = math.Max(observer.MinRange, math.Min(observer.MaxRange, w.forward))
	return now
}

func (w *World) drive(throttle, steering int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.step()
	w.throttle, w.steering = throttle, steering
}

// Heading returns the current simulated heading.
func (w *World) Heading() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.step()
	return w.heading
}

// SetForwardRange places an obstacle at cm.
func (w *World) SetForwardRange(cm float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.step()
	w.forward = cm
}

// Controller is a simulated motor controller that always acknowledges.
type Controller struct {
	world *World
}

func (c *Controller) MixMotorCommand(throttle, steering int) rc.MotorCommandResult {
	ch1, ch2 := navigation.Mix(throttle, steering)
	c.world.drive(throttle, steering)
	return rc.MotorCommandResult{
		Status:  rc.MotorSuccess,
		Command: fmt.Sprintf("!M %d %d", -ch1, ch2),
		Reply:   "+",
		Time:    c.world.cfg.Clock(),
	}
}

func (c *Controller) CheckController() (rc.Voltages, rc.Amperages, error) {
	w := c.world
	w.mu.Lock()
	defer w.mu.Unlock()
	now := w.step()
	ch1, ch2 := navigation.Mix(w.throttle, w.steering)
	v := rc.Voltages{MainBattery: w.cfg.Voltage, Internal: w.cfg.Voltage - 0.3, Vout: 5.11, Time: now}
	a := rc.Amperages{
		Channel1: math.Abs(float64(ch1)) / navigation.MaxChannelValue * 5,
		Channel2: math.Abs(float64(ch2)) / navigation.MaxChannelValue * 5,
		Time:     now,
	}
	return v, a, nil
}

func (c *Controller) Close() error {
	c.world.drive(0, 0)
	return nil
}

// IMU reports the simulated turn rate and heading.
type IMU struct {
	world       *World
	alpha, beta float64
}

func (m *IMU) Read() rc.MpuSample {
	w := m.world
	w.mu.Lock()
	defer w.mu.Unlock()
	now := w.step()
	return rc.MpuSample{
		// clockwise is negative on z
		Gyro:    rc.Vector3{Z: -w.rate},
		Accel:   rc.Vector3{Z: -1},
		Heading: math.Round(w.heading),
		Temp:    35,
		Time:    now,
	}
}

func (m *IMU) CalibrateMag(samples int, source string) error {
	if samples <= 0 && (source == "" || source == "-") {
		return fmt.Errorf("calibrate magnetometer: no samples requested")
	}
	return nil
}

func (m *IMU) HardIron() (alpha, beta float64) { return m.alpha, m.beta }

func (m *IMU) SetHardIron(alpha, beta float64) { m.alpha, m.beta = alpha, beta }

func (m *IMU) Close() error { return nil }

// Sonar reports the distance to the simulated obstacle ahead. The other
// sensors see open space.
type Sonar struct {
	world *World
}

func (s *Sonar) Read() (bool, rc.RangeSample) {
	w := s.world
	w.mu.Lock()
	defer w.mu.Unlock()
	now := w.step()
	return true, rc.RangeSample{
		Ranges: map[string]float64{
			rc.SensorForward: math.Round(w.forward),
			rc.SensorBottom:  9,
			rc.SensorLeft:    observer.MaxRange,
			rc.SensorRight:   observer.MaxRange,
			rc.SensorBack:    observer.MaxRange,
		},
		Timestamp: now,
	}
}

func (s *Sonar) Close() error { return nil }
