package service

import (
	"context"
	"fmt"
	"math"
	"time"

	rc "robot_control"
	"robot_control/internal/driver"
	"robot_control/internal/logger"
	"robot_control/internal/models"
	"robot_control/internal/navigation"
	"robot_control/internal/observer"
	"robot_control/internal/repository"

	"github.com/google/uuid"
)

// ----------- Operations defaults -----------
const (
	DefaultMinLoopTime        = 10 * time.Millisecond
	DefaultControllerInterval = 250 * time.Millisecond
	DefaultVoltageInterval    = 15 * time.Second
	DefaultVoltageNoise       = 0.1  // V
	DefaultVoltageThreshold   = 10.6 // V, alarm below
	DefaultAlarmInterval      = 60 * time.Second
	DefaultAmpsInterval       = time.Second
	DefaultMpuInterval        = 2 * time.Second
	DefaultRangeInterval      = 500 * time.Millisecond
	DefaultHeartbeatPulse     = 2 * time.Second
	DefaultOverrunLimit       = time.Second

	maxMessagesPerLoop = 16
	turnLevel          = 0.20
)

// Telemetry keys broadcast by the manager.
const (
	KeyMPU         = "MPU"
	KeyRanges      = "Ranges"
	KeyAmperages   = "amperages"
	KeyBattery     = "Bat"
	KeyVoltages    = "voltages"
	KeyObservation = "Observation"
	KeyWatchdog    = "Watchdog"
	KeyRangeClamp  = "RangeClamp"
)

// RangeClamp reports a Nav range target moved into the sensor limits.
type RangeClamp struct {
	Sensor    string  `json:"sensor"`
	Requested float64 `json:"requested"`
	Target    float64 `json:"target"`
}

// OpsConfig holds loop timings and safety thresholds. A zero HeartbeatPulse
// disables the motor watchdog.
type OpsConfig struct {
	MinLoopTime        time.Duration
	ControllerInterval time.Duration
	VoltageInterval    time.Duration
	VoltageNoise       float64
	VoltageThreshold   float64
	AlarmInterval      time.Duration
	AmpsInterval       time.Duration
	MpuInterval        time.Duration
	RangeInterval      time.Duration
	HeartbeatPulse     time.Duration
	OverrunLimit       time.Duration
	AutoAdjust         bool
}

func DefaultOpsConfig() OpsConfig {
	return OpsConfig{
		MinLoopTime:        DefaultMinLoopTime,
		ControllerInterval: DefaultControllerInterval,
		VoltageInterval:    DefaultVoltageInterval,
		VoltageNoise:       DefaultVoltageNoise,
		VoltageThreshold:   DefaultVoltageThreshold,
		AlarmInterval:      DefaultAlarmInterval,
		AmpsInterval:       DefaultAmpsInterval,
		MpuInterval:        DefaultMpuInterval,
		RangeInterval:      DefaultRangeInterval,
		HeartbeatPulse:     DefaultHeartbeatPulse,
		OverrunLimit:       DefaultOverrunLimit,
		AutoAdjust:         true,
	}
}

// watchdog cuts motor power when no operator command arrives for a pulse.
type watchdog struct {
	armed        bool
	poweredSince time.Time
	liveness     time.Time
}

func (w *watchdog) arm(now time.Time) {
	if w.armed {
		return
	}
	w.armed = true
	w.poweredSince = now
	if w.liveness.Before(now) {
		w.liveness = now
	}
}

func (w *watchdog) expired(now time.Time, pulse time.Duration) bool {
	return w.armed && pulse > 0 && now.Sub(w.liveness) > pulse
}

type loopStats struct {
	loops        int
	loopTime     time.Duration
	waits        int
	waitTime     time.Duration
	overruns     int
	motorFaults  int
	driverErrors int
}

// OperationsManager owns the motor controller and runs the control loop.
// All of its state is touched only from Run.
type OperationsManager struct {
	cfg    OpsConfig
	act    driver.Actuator
	mover  *navigation.Mover
	rules  navigation.RangeRules
	events repository.EventRepo
	log    *logger.Logger
	now    func() time.Time

	requested    rc.Power
	last         rc.Power
	issued       rc.Power
	forwardRange float64
	heading      float64
	lastVoltage  float64

	lastController time.Time
	lastBattery    time.Time
	lastAmps       time.Time
	lastMpu        time.Time
	lastRange      time.Time
	lastAlarm      time.Time

	dog   watchdog
	stats loopStats
}

func NewOperationsManager(cfg OpsConfig, act driver.Actuator, events repository.EventRepo, log *logger.Logger) *OperationsManager {
	if cfg.MinLoopTime <= 0 {
		cfg.MinLoopTime = DefaultMinLoopTime
	}
	if cfg.OverrunLimit <= 0 {
		cfg.OverrunLimit = DefaultOverrunLimit
	}
	if log == nil {
		log = logger.Nop()
	}
	return &OperationsManager{
		cfg:          cfg,
		act:          act,
		mover:        navigation.NewMover(act),
		rules:        navigation.NewRangeRules(),
		events:       events,
		log:          log,
		now:          time.Now,
		forwardRange: -1,
	}
}

// Run loops until Shutdown arrives or ctx is cancelled. Either way the motors
// are stopped and the controller is closed.
func (m *OperationsManager) Run(ctx context.Context, ep Endpoint) error {
	m.log.Infow("operations_started", "auto_adjust", m.cfg.AutoAdjust, "heartbeat_pulse", m.cfg.HeartbeatPulse)
	timer := time.NewTimer(m.cfg.MinLoopTime)
	defer timer.Stop()

	for {
		start := m.now()
		for i := 0; i < maxMessagesPerLoop; i++ {
			msg, ok := ep.Poll()
			if !ok {
				break
			}
			if _, stop := msg.(rc.Shutdown); stop {
				m.shutdown()
				return nil
			}
			m.dispatch(ctx, ep, msg)
		}

		now := m.now()
		if now.Sub(m.lastController) >= m.cfg.ControllerInterval {
			m.lastController = now
			m.checkController(ctx, ep, now)
		}
		m.adjust()
		m.enforceWatchdog(ctx, ep)

		elapsed := m.now().Sub(start)
		m.stats.loops++
		m.stats.loopTime += elapsed
		if elapsed > m.cfg.OverrunLimit {
			m.stats.overruns++
			m.log.Warnw("loop_overrun", "elapsed", elapsed)
		}

		wait := m.cfg.MinLoopTime - elapsed
		if wait <= 0 {
			if err := ctx.Err(); err != nil {
				m.shutdown()
				return err
			}
			continue
		}
		m.stats.waits++
		m.stats.waitTime += wait
		timer.Reset(wait)
		select {
		case <-ctx.Done():
			m.shutdown()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (m *OperationsManager) dispatch(ctx context.Context, ep Endpoint, msg rc.Message) {
	switch v := msg.(type) {
	case rc.Power:
		m.refresh()
		if !finite(v.Level, v.Angle) {
			m.log.Warnw("invalid_power", "power", v)
			return
		}
		m.setPower(v)
	case rc.Nav:
		m.refresh()
		if !finite(v.Power.Level, v.Power.Angle, v.Range) {
			m.log.Warnw("invalid_nav", "nav", v)
			return
		}
		if target := observer.ClampRange(v.Range); target != v.Range {
			clamp := RangeClamp{Sensor: v.Sensor, Requested: v.Range, Target: target}
			m.appendEvent(ctx, models.EventSafety, "Range target clamped", clamp)
			ep.Send(rc.Telemetry{KeyRangeClamp: clamp})
		}
		m.setPower(v.Power)
		ep.Send(rc.ObserveRange{Nav: v})
	case rc.ObserveTurn, rc.ObserveHeading, rc.CalibrateMagnetometer, rc.ObserveRange:
		m.refresh()
		ep.Send(v)
	case rc.ExecuteTurn:
		m.refresh()
		if !finite(v.Angle) {
			m.log.Warnw("invalid_turn", "angle", v.Angle)
			return
		}
		ep.Send(rc.ObserveTurn{Angle: v.Angle})
		angle := navigation.Clockwise
		if v.Angle < 0 {
			angle = navigation.CounterClockwise
		}
		m.setPower(rc.Power{Level: turnLevel, Angle: angle})
	case rc.ExecuteHeading:
		m.refresh()
		if !(v.Heading >= 0 && v.Heading <= 360) {
			m.log.Warnw("invalid_heading", "heading", v.Heading)
			return
		}
		ep.Send(rc.ObserveHeading{Heading: v.Heading})
		direction, _, _ := navigation.CalcDirection(m.heading, v.Heading)
		m.setPower(rc.Power{Level: turnLevel, Angle: direction})
	case rc.Heartbeat:
		m.refresh()
	case rc.ObservationResult:
		m.setPower(rc.Power{})
		m.appendEvent(ctx, models.EventObservation, fmt.Sprintf("%s %s", v.Observer, v.Outcome), v)
		ep.Send(rc.Telemetry{KeyObservation: v})
	case rc.MpuSample:
		m.heading = v.Heading
		now := m.now()
		if now.Sub(m.lastMpu) >= m.cfg.MpuInterval {
			m.lastMpu = now
			ep.Send(rc.Telemetry{KeyMPU: v})
		}
	case rc.RangeSample:
		m.forwardRange = v.Forward()
		now := m.now()
		if now.Sub(m.lastRange) >= m.cfg.RangeInterval {
			m.lastRange = now
			ep.Send(rc.Telemetry{KeyRanges: v.Ranges})
		}
	case rc.Voltages, rc.Amperages, rc.MotorCommandResult:
		m.log.Debugw("controller_report", "kind", v.Kind(), "report", v)
	default:
		m.log.Debugw("message_ignored", "kind", msg.Kind())
	}
}

// refresh records operator liveness for the watchdog.
// finite reports whether none of vs is NaN or infinite. Such values would
// start a goal no observer can finish.
func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (m *OperationsManager) refresh() {
	m.dog.liveness = m.now()
}

// setPower handles a commanded power. The rules engine only ever sees the
// request here; later range samples are applied by adjust.
func (m *OperationsManager) setPower(p rc.Power) {
	m.requested = p
	m.last = p
	out := p
	if m.cfg.AutoAdjust {
		out = m.rules.AdjustPower(p, p, m.forwardRange)
	}
	m.drive(out)
}

func (m *OperationsManager) adjust() {
	if !m.cfg.AutoAdjust || m.last.IsStop() {
		return
	}
	adjusted := m.rules.AdjustPower(m.requested, m.last, m.forwardRange)
	m.last = adjusted
	if adjusted != m.issued {
		m.log.Debugw("power_adjusted", "requested", m.requested, "applied", adjusted, "forward_range", m.forwardRange)
		m.drive(adjusted)
	}
}

func (m *OperationsManager) drive(p rc.Power) {
	res := m.mover.Move(p)
	m.issued = p
	switch res.Status {
	case rc.MotorFailure, rc.MotorUnacknowledged:
		m.stats.motorFaults++
		m.log.Warnw("motor_command_failed", "status", res.Status, "command", res.Command, "reply", res.Reply)
	case rc.MotorDisabled:
		m.log.Debugw("motor_disabled", "power", p)
	}
	if !p.IsStop() {
		m.dog.arm(m.now())
		return
	}
	m.dog.armed = false
}

func (m *OperationsManager) enforceWatchdog(ctx context.Context, ep Endpoint) {
	now := m.now()
	if !m.dog.expired(now, m.cfg.HeartbeatPulse) {
		return
	}
	info := map[string]any{
		"poweredSince": m.dog.poweredSince.UTC(),
		"lastCommand":  m.dog.liveness.UTC(),
		"pulse":        m.cfg.HeartbeatPulse.Seconds(),
		"time":         now.UTC(),
	}
	m.log.Warnw("watchdog_timeout", "pulse", m.cfg.HeartbeatPulse, "silent_for", now.Sub(m.dog.liveness))
	m.setPower(rc.Power{})
	m.appendEvent(ctx, models.EventSafety, "Motor watchdog cut power", info)
	ep.Send(rc.Telemetry{KeyWatchdog: info})
}

func (m *OperationsManager) checkController(ctx context.Context, ep Endpoint, now time.Time) {
	volts, amps, err := m.act.CheckController()
	if err != nil {
		m.stats.driverErrors++
		m.log.Debugw("controller_check_failed", "err", err)
	}

	if now.Sub(m.lastBattery) >= m.cfg.VoltageInterval && math.Abs(volts.MainBattery-m.lastVoltage) > m.cfg.VoltageNoise {
		m.lastBattery = now
		m.lastVoltage = volts.MainBattery
		ep.Send(rc.Telemetry{KeyBattery: navigation.BatteryLevelFor(volts.MainBattery)})
	}

	if now.Sub(m.lastAmps) >= m.cfg.AmpsInterval {
		m.lastAmps = now
		ep.Send(rc.Telemetry{KeyAmperages: map[string]any{
			"leftMotor":  amps.Channel1,
			"rightMotor": amps.Channel2,
			"time":       amps.Time,
		}})
	}

	if volts.MainBattery > 0 && volts.MainBattery < m.cfg.VoltageThreshold &&
		(m.lastAlarm.IsZero() || now.Sub(m.lastAlarm) >= m.cfg.AlarmInterval) {
		m.lastAlarm = now
		m.log.Warnw("low_voltage", "main_battery", volts.MainBattery, "threshold", m.cfg.VoltageThreshold)
		m.appendEvent(ctx, models.EventAlarm, "Main battery below threshold", volts)
		ep.Send(rc.Telemetry{KeyVoltages: volts})
	}
}

func (m *OperationsManager) appendEvent(ctx context.Context, typ, desc string, meta any) {
	if m.events == nil {
		return
	}
	err := m.events.Append(ctx, models.RobotEvent{
		EventID:     uuid.NewString(),
		OccurredAt:  m.now().UTC(),
		Type:        typ,
		Description: desc,
		Metadata:    meta,
	})
	if err != nil {
		m.log.Errorw("event_append_failed", "type", typ, "err", err)
	}
}

func (m *OperationsManager) shutdown() {
	m.drive(rc.Power{})
	s := m.stats
	var avgLoop, avgWait time.Duration
	if s.loops > 0 {
		avgLoop = s.loopTime / time.Duration(s.loops)
	}
	if s.waits > 0 {
		avgWait = s.waitTime / time.Duration(s.waits)
	}
	m.log.Infow("operations_stopped",
		"loops", s.loops,
		"avg_loop", avgLoop,
		"waits", s.waits,
		"avg_wait", avgWait,
		"overruns", s.overruns,
		"motor_faults", s.motorFaults,
		"driver_errors", s.driverErrors,
	)
	if err := m.act.Close(); err != nil {
		m.log.Errorw("controller_close_failed", "err", err)
	}
}
