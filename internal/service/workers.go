package service

import (
	"context"
	"errors"
	"time"

	rc "robot_control"
	"robot_control/internal/driver"
	"robot_control/internal/logger"
	"robot_control/internal/models"
	"robot_control/internal/observer"
	"robot_control/internal/repository"
)

// ----------- Worker defaults -----------
const (
	DefaultWorkerLoopTime       = 100 * time.Millisecond
	DefaultMotionReportInterval = 200 * time.Millisecond
	DefaultRangeReportInterval  = 500 * time.Millisecond
)

// WorkerConfig paces a sensor worker.
type WorkerConfig struct {
	LoopTime       time.Duration
	ReportInterval time.Duration
}

func (c WorkerConfig) withDefaults(report time.Duration) WorkerConfig {
	if c.LoopTime <= 0 {
		c.LoopTime = DefaultWorkerLoopTime
	}
	if c.ReportInterval <= 0 {
		c.ReportInterval = report
	}
	return c
}

// runWorker polls the inbox, then calls tick, once per loop until Shutdown
// or ctx cancellation.
func runWorker(ctx context.Context, ep Endpoint, loop time.Duration, handle func(context.Context, Endpoint, rc.Message), tick func(Endpoint)) error {
	timer := time.NewTimer(loop)
	defer timer.Stop()
	for {
		start := time.Now()
		for {
			msg, ok := ep.Poll()
			if !ok {
				break
			}
			if _, stop := msg.(rc.Shutdown); stop {
				return nil
			}
			handle(ctx, ep, msg)
		}
		tick(ep)

		wait := loop - time.Since(start)
		if wait < 0 {
			wait = 0
		}
		timer.Reset(wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// MotionService reads the inertial sensor, runs turn and heading observers
// and calibrates the magnetometer on request.
type MotionService struct {
	cfg        WorkerConfig
	imu        driver.Motion
	calib      repository.CalibrationRepo
	robot      string
	log        *logger.Logger
	now        func() time.Time
	active     observer.Set
	lastReport time.Time
}

func NewMotionService(cfg WorkerConfig, imu driver.Motion, calib repository.CalibrationRepo, robot string, log *logger.Logger) *MotionService {
	if log == nil {
		log = logger.Nop()
	}
	return &MotionService{
		cfg:   cfg.withDefaults(DefaultMotionReportInterval),
		imu:   imu,
		calib: calib,
		robot: robot,
		log:   log,
		now:   time.Now,
	}
}

func (s *MotionService) Run(ctx context.Context, ep Endpoint) error {
	defer func() {
		if err := s.imu.Close(); err != nil {
			s.log.Errorw("motion_close_failed", "err", err)
		}
	}()
	s.restoreCalibration(ctx)
	s.log.Infow("motion_started", "loop", s.cfg.LoopTime)
	return runWorker(ctx, ep, s.cfg.LoopTime, s.handle, s.tick)
}

func (s *MotionService) handle(ctx context.Context, ep Endpoint, msg rc.Message) {
	switch v := msg.(type) {
	case rc.ObserveTurn:
		s.active.Add(observer.NewTurn(v.Angle, s.now(), s.log))
	case rc.ObserveHeading:
		s.active.Add(observer.NewHeading(v.Heading, s.now(), s.log))
	case rc.CalibrateMagnetometer:
		s.calibrate(ctx, v)
		ep.Send(rc.Power{})
	default:
		s.log.Debugw("message_ignored", "kind", msg.Kind())
	}
}

func (s *MotionService) tick(ep Endpoint) {
	sample := s.imu.Read()
	for _, res := range s.active.Update(sample) {
		ep.Send(res)
	}
	now := s.now()
	if now.Sub(s.lastReport) >= s.cfg.ReportInterval {
		s.lastReport = now
		ep.Send(sample)
	}
}

func (s *MotionService) calibrate(ctx context.Context, req rc.CalibrateMagnetometer) {
	s.log.Infow("mag_calibration_started", "samples", req.Samples, "source", req.Source)
	if err := s.imu.CalibrateMag(req.Samples, req.Source); err != nil {
		s.log.Errorw("mag_calibration_failed", "err", err)
		return
	}
	hc, ok := s.imu.(driver.HardIronCorrected)
	if !ok || s.calib == nil {
		return
	}
	alpha, beta := hc.HardIron()
	now := s.now().UTC()
	for _, set := range []models.CalibrationSetting{
		{Robot: s.robot, Name: models.SettingMagAlpha, Value: alpha, UpdatedAt: now},
		{Robot: s.robot, Name: models.SettingMagBeta, Value: beta, UpdatedAt: now},
	} {
		if err := s.calib.Save(ctx, set); err != nil {
			s.log.Errorw("calibration_save_failed", "name", set.Name, "err", err)
			return
		}
	}
}

// restoreCalibration applies saved hard iron offsets when both are present.
func (s *MotionService) restoreCalibration(ctx context.Context) {
	hc, ok := s.imu.(driver.HardIronCorrected)
	if !ok || s.calib == nil {
		return
	}
	alpha, err := s.calib.Load(ctx, s.robot, models.SettingMagAlpha)
	if err == nil {
		var beta models.CalibrationSetting
		beta, err = s.calib.Load(ctx, s.robot, models.SettingMagBeta)
		if err == nil {
			hc.SetHardIron(alpha.Value, beta.Value)
			s.log.Infow("mag_calibration_restored", "alpha", alpha.Value, "beta", beta.Value)
			return
		}
	}
	if errors.Is(err, repository.ErrNotFound) {
		s.log.Debugw("mag_calibration_missing", "robot", s.robot)
		return
	}
	s.log.Warnw("mag_calibration_load_failed", "err", err)
}

// RangeService reads the range sensors and runs range observers.
type RangeService struct {
	cfg        WorkerConfig
	sensor     driver.Range
	log        *logger.Logger
	now        func() time.Time
	active     observer.Set
	lastReport time.Time
	misses     int
}

func NewRangeService(cfg WorkerConfig, sensor driver.Range, log *logger.Logger) *RangeService {
	if log == nil {
		log = logger.Nop()
	}
	return &RangeService{
		cfg:    cfg.withDefaults(DefaultRangeReportInterval),
		sensor: sensor,
		log:    log,
		now:    time.Now,
	}
}

func (s *RangeService) Run(ctx context.Context, ep Endpoint) error {
	defer func() {
		if err := s.sensor.Close(); err != nil {
			s.log.Errorw("range_close_failed", "err", err)
		}
		s.log.Infow("range_stopped", "missed_reads", s.misses)
	}()
	s.log.Infow("range_started", "loop", s.cfg.LoopTime)
	return runWorker(ctx, ep, s.cfg.LoopTime, s.handle, s.tick)
}

func (s *RangeService) handle(_ context.Context, _ Endpoint, msg rc.Message) {
	if v, ok := msg.(rc.ObserveRange); ok {
		s.active.Add(observer.NewRange(v.Nav, s.now(), s.log))
		return
	}
	s.log.Debugw("message_ignored", "kind", msg.Kind())
}

// tick keeps the previous state when the read fails.
func (s *RangeService) tick(ep Endpoint) {
	ok, sample := s.sensor.Read()
	if !ok {
		s.misses++
		return
	}
	for _, res := range s.active.Update(sample) {
		ep.Send(res)
	}
	now := s.now()
	if now.Sub(s.lastReport) >= s.cfg.ReportInterval {
		s.lastReport = now
		ep.Send(sample)
	}
}
