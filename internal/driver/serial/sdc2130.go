package serial

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	rc "robot_control"
	"robot_control/internal/driver"
	"robot_control/internal/logger"
	"robot_control/internal/navigation"
)

const (
	SDC2130Baud    = 115200
	SDC2130Timeout = 250 * time.Millisecond

	stopMotorCommand = "!M 0 0\r"
)

// SDC2130 is a two channel motor controller in independent mode. Channel 1
// is mounted reversed so its command is negated.
type SDC2130 struct {
	conn    *lineConn
	log     *logger.Logger
	enabled bool

	motorCommand string
	lastVoltages rc.Voltages
}

// OpenSDC2130 opens the controller on dev.
func OpenSDC2130(dev string, log *logger.Logger) (*SDC2130, error) {
	p, err := Open(dev, SDC2130Baud, SDC2130Timeout)
	if err != nil {
		return nil, err
	}
	return NewSDC2130(p, log), nil
}

func NewSDC2130(port io.ReadWriteCloser, log *logger.Logger) *SDC2130 {
	return &SDC2130{
		conn:         newLineConn(port),
		log:          log,
		enabled:      true,
		motorCommand: stopMotorCommand,
		lastVoltages: rc.Voltages{MainBattery: 12.0, Internal: 12.0, Vout: 5.11},
	}
}

// SetEnabled turns motor output on or off. A disabled controller answers
// every motor command with MotorDisabled and writes nothing.
func (c *SDC2130) SetEnabled(on bool) { c.enabled = on }

// MixMotorCommand maps throttle and steering onto the two channels.
func (c *SDC2130) MixMotorCommand(throttle, steering int) rc.MotorCommandResult {
	ch1, ch2 := navigation.Mix(throttle, steering)
	return c.send(fmt.Sprintf("!M %d %d\r", -ch1, ch2))
}

func (c *SDC2130) send(cmd string) rc.MotorCommandResult {
	c.motorCommand = cmd
	now := time.Now()
	if !c.enabled {
		return rc.MotorCommandResult{Status: rc.MotorDisabled, Command: cmd, Time: now}
	}

	var reply string
	err := c.conn.write(cmd)
	if err == nil {
		_, err = c.conn.readUntil('\r') // echo
	}
	if err == nil {
		reply, err = c.conn.readUntil('\r')
	}
	if err != nil && c.log != nil {
		c.log.Warnw("motor_command_failed", "command", strings.TrimSpace(cmd), "err", err)
	}

	status := rc.MotorUnacknowledged
	switch {
	case strings.HasPrefix(reply, "+"):
		status = rc.MotorSuccess
	case strings.HasPrefix(reply, "-"):
		status = rc.MotorFailure
	}
	return rc.MotorCommandResult{Status: status, Command: cmd, Reply: strings.TrimSpace(reply), Time: now}
}

// CheckController reads voltages and amperages. A non-stop motor command
// is re-issued to keep the controller's serial watchdog alive.
func (c *SDC2130) CheckController() (rc.Voltages, rc.Amperages, error) {
	now := time.Now()
	var errs []error

	v := c.lastVoltages
	readings, err := c.query("?V")
	if err == nil && len(readings) == 3 {
		v = rc.Voltages{
			MainBattery: readings[1] / 10,
			Internal:    readings[0] / 10,
			Vout:        readings[2] / 1000,
			Time:        now,
		}
		c.lastVoltages = v
	} else if err == nil {
		err = fmt.Errorf("voltages: %w", driver.ErrMalformed)
	}
	errs = append(errs, err)

	a := rc.Amperages{Time: now}
	readings, err = c.query("?A")
	if err == nil && len(readings) == 2 {
		a.Channel1 = readings[0] / 10
		a.Channel2 = readings[1] / 10
	} else if err == nil {
		err = fmt.Errorf("amperages: %w", driver.ErrMalformed)
	}
	errs = append(errs, err)

	if c.motorCommand != stopMotorCommand {
		c.send(c.motorCommand)
	}
	return v, a, errors.Join(errs...)
}

// query sends a ?X query, consumes its echo and parses the "X=a:b:c" reply.
func (c *SDC2130) query(q string) ([]float64, error) {
	if err := c.conn.write(q + "\r"); err != nil {
		return nil, err
	}
	echo, err := c.conn.readUntil('\r')
	if err != nil {
		return nil, err
	}
	if echo != q+"\r" {
		return nil, fmt.Errorf("expected echo %q, got %q: %w", q, echo, driver.ErrMalformed)
	}
	reply, err := c.conn.readUntil('\r')
	if err != nil {
		return nil, err
	}
	return parseQueryResult(reply)
}

func parseQueryResult(reply string) ([]float64, error) {
	if len(reply) <= 3 {
		return nil, driver.ErrMalformed
	}
	fields := strings.Split(strings.TrimSuffix(reply[2:], "\r"), ":")
	out := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("query result %q: %w", reply, driver.ErrMalformed)
		}
		out = append(out, v)
	}
	return out, nil
}

// Close stops the motors and closes the port.
func (c *SDC2130) Close() error {
	if c.conn.port != nil {
		c.send(stopMotorCommand)
	}
	return c.conn.close()
}
