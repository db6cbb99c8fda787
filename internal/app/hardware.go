package app

import (
	"robot_control/internal/config"
	"robot_control/internal/driver"
	"robot_control/internal/driver/serial"
	"robot_control/internal/driver/sim"
	"robot_control/internal/logger"
)

// Hardware opens the device a role needs when its process starts. The
// process owns the device and closes it on exit.
type Hardware interface {
	Actuator() (driver.Actuator, error)
	Motion() (driver.Motion, error)
	Range() (driver.Range, error)
}

// NewHardware returns simulated or serial hardware per cfg.Kind.
func NewHardware(cfg config.DriversConfig, log *logger.Logger) Hardware {
	if cfg.Kind == config.DriversSerial {
		if log == nil {
			log = logger.Nop()
		}
		return &serialHardware{cfg: cfg, log: log}
	}
	return &simHardware{world: sim.NewWorld(sim.Config{StartRange: cfg.SimRange})}
}

type simHardware struct {
	world *sim.World
}

func (h *simHardware) Actuator() (driver.Actuator, error) { return sim.NewSet(h.world).Actuator, nil }
func (h *simHardware) Motion() (driver.Motion, error)     { return sim.NewSet(h.world).Motion, nil }
func (h *simHardware) Range() (driver.Range, error)       { return sim.NewSet(h.world).Range, nil }

type serialHardware struct {
	cfg config.DriversConfig
	log *logger.Logger
}

func (h *serialHardware) Actuator() (driver.Actuator, error) {
	c, err := serial.OpenSDC2130(h.cfg.MotorPort, h.log.Named("sdc2130"))
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (h *serialHardware) Motion() (driver.Motion, error) {
	imu, err := serial.OpenRIOX(h.cfg.MotionPort, h.log.Named("riox"))
	if err != nil {
		return nil, err
	}
	imu.CalibrationDir = h.cfg.CalibrationDir
	return imu, nil
}

func (h *serialHardware) Range() (driver.Range, error) {
	p, err := serial.OpenP8X32(h.cfg.RangePort, h.log.Named("p8x32"))
	if err != nil {
		return nil, err
	}
	return p, nil
}
