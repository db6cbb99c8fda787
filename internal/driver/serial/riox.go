package serial

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	rc "robot_control"
	"robot_control/internal/driver"
	"robot_control/internal/logger"
)

const (
	RIOXBaud    = 115200
	RIOXTimeout = 250 * time.Millisecond

	readAllMems = "?ML"
	memsFields  = 10

	gyroRange      = 4.0
	gyroSquelch    = 0.09
	errorLimit     = 3
	defaultHardIX  = -17.025
	defaultHardIY  = 4.8
	calibrationGap = 150 * time.Millisecond
)

// Axis sign conventions: clockwise and forward are negative on X, clockwise
// and right positive on Y, up negative on Z.
var axisConvention = rc.Vector3{X: -1, Y: 1, Z: -1}

// RIOX reads the raw MEMS registers of a RIOX-1216AHRS and converts them to
// SI units. Heading comes from the hard iron corrected magnetometer.
type RIOX struct {
	conn *lineConn
	log  *logger.Logger

	hix, hiy   float64
	readErrors int
	last       rc.MpuSample

	// CalibrationDir holds saved calibration runs. Empty disables saving.
	CalibrationDir string
	sampleGap      time.Duration
}

func OpenRIOX(dev string, log *logger.Logger) (*RIOX, error) {
	p, err := Open(dev, RIOXBaud, RIOXTimeout)
	if err != nil {
		return nil, err
	}
	return NewRIOX(p, log), nil
}

func NewRIOX(port io.ReadWriteCloser, log *logger.Logger) *RIOX {
	return &RIOX{
		conn:      newLineConn(port),
		log:       log,
		hix:       defaultHardIX,
		hiy:       defaultHardIY,
		sampleGap: calibrationGap,
	}
}

// HardIron returns the current magnetometer offsets.
func (r *RIOX) HardIron() (alpha, beta float64) { return r.hix, r.hiy }

// SetHardIron restores offsets saved from an earlier calibration.
func (r *RIOX) SetHardIron(alpha, beta float64) { r.hix, r.hiy = alpha, beta }

// Read returns the latest sample, or the previous one when the device
// replied with something unusable.
func (r *RIOX) Read() rc.MpuSample {
	lsb, err := r.readMems()
	if err != nil {
		r.readErrors++
		if r.readErrors > errorLimit {
			if r.log != nil {
				r.log.Warnw("mpu_read_errors", "errors", r.readErrors, "limit", errorLimit, "err", err)
			}
			r.readErrors = 0
		}
		return r.last
	}
	r.readErrors = 0
	r.last = r.toSample(lsb, time.Now())
	return r.last
}

func (r *RIOX) readMems() ([]int, error) {
	if err := r.conn.write(readAllMems + "\r"); err != nil {
		return nil, err
	}
	reply, err := r.conn.readUntil('\r')
	if err != nil {
		return nil, err
	}
	if reply == readAllMems+"\r" {
		if reply, err = r.conn.readUntil('\r'); err != nil {
			return nil, err
		}
	}
	reply = strings.TrimSpace(reply)
	if !strings.HasPrefix(reply, readAllMems[1:]+"=") {
		return nil, fmt.Errorf("mems reply %q: %w", reply, driver.ErrMalformed)
	}
	fields := strings.Split(reply[len(readAllMems):], ":")
	if len(fields) != memsFields {
		return nil, fmt.Errorf("mems reply has %d fields: %w", len(fields), driver.ErrMalformed)
	}
	lsb := make([]int, len(fields))
	for i, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("mems field %d: %w", i, driver.ErrMalformed)
		}
		lsb[i] = v
	}
	return lsb, nil
}

// toSample converts register values (accel xyz, temp, gyro xyz, mag xyz).
func (r *RIOX) toSample(lsb []int, t time.Time) rc.MpuSample {
	accel := rc.Vector3{
		X: round(float64(lsb[0])/16384, 4),
		Y: round(float64(lsb[1])/16384, 4),
		Z: round(float64(lsb[2])/16384, 4),
	}
	temp := round(float64(lsb[3])/340+35, 1)

	gyro := rc.Vector3{
		X: squelch(float64(lsb[4]) / 131 * gyroRange * axisConvention.X),
		Y: squelch(float64(lsb[5]) / 131 * gyroRange * axisConvention.Y),
		Z: squelch(float64(lsb[6]) / 131 * gyroRange * axisConvention.Z),
	}

	// factory sensitivity adjustment with zero ASA halves the raw value
	const sensitivity = 0.5
	mag := rc.Vector3{
		X: round(float64(lsb[7])*sensitivity-r.hix, 4),
		Y: round(float64(lsb[8])*sensitivity-r.hiy, 4),
		Z: round(float64(lsb[9])*sensitivity, 4),
	}

	return rc.MpuSample{
		Gyro:    gyro,
		Accel:   accel,
		Mag:     mag,
		Heading: driver.CompassHeading(mag.X, mag.Y),
		Temp:    temp,
		Time:    t,
	}
}

func squelch(v float64) float64 {
	if math.Abs(v) < gyroSquelch {
		return 0
	}
	return round(v, 3)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// CalibrateMag recomputes the hard iron offsets. With source empty or "-"
// it collects samples while the robot spins; otherwise it reads a saved run
// named source from CalibrationDir.
func (r *RIOX) CalibrateMag(samples int, source string) error {
	if samples > driver.MaxCalibrationSamples {
		samples = driver.MaxCalibrationSamples
	}

	var x, y []float64
	if source == "" || source == "-" {
		r.hix, r.hiy = 0, 0
		run := make([]driver.Sample3, 0, samples)
		for i := 0; i < samples; i++ {
			s := r.Read()
			run = append(run, driver.Sample3{X: s.Mag.X, Y: s.Mag.Y, Z: s.Mag.Z, Heading: s.Heading})
			x = append(x, s.Mag.X)
			y = append(y, s.Mag.Y)
			time.Sleep(r.sampleGap)
		}
		if err := r.saveRun(run); err != nil {
			return err
		}
	} else {
		f, err := os.Open(filepath.Join(r.CalibrationDir, source))
		if err != nil {
			return fmt.Errorf("open calibration source: %w", err)
		}
		defer f.Close()
		if x, y, err = driver.ReadCalibrationSamples(f); err != nil {
			return err
		}
	}

	alpha, beta, err := driver.HardIron(x, y)
	if err != nil {
		return fmt.Errorf("calibrate magnetometer: %w", err)
	}
	r.hix, r.hiy = alpha, beta
	if r.log != nil {
		r.log.Infow("mag_calibrated", "alpha", alpha, "beta", beta, "samples", len(x))
	}
	return nil
}

func (r *RIOX) saveRun(run []driver.Sample3) error {
	if r.CalibrationDir == "" {
		return nil
	}
	name := fmt.Sprintf("magcal-%s.csv", time.Now().Format("20060102-150405"))
	f, err := os.Create(filepath.Join(r.CalibrationDir, name))
	if err != nil {
		return fmt.Errorf("save calibration run: %w", err)
	}
	defer f.Close()
	return driver.WriteCalibrationSamples(f, run)
}

func (r *RIOX) Close() error {
	return r.conn.close()
}
