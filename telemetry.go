package robot_control

import "time"

// Vector3 is a three-axis reading.
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Voltages as reported by the motor controller, in volts.
type Voltages struct {
	MainBattery float64   `json:"mainBattery"`
	Internal    float64   `json:"internal"`
	Vout        float64   `json:"vout"`
	Time        time.Time `json:"time"`
}

// Amperages per motor channel, in amps.
type Amperages struct {
	Channel1 float64   `json:"channel1"`
	Channel2 float64   `json:"channel2"`
	Time     time.Time `json:"time"`
}

// MpuSample is one inertial reading. Gyro is in degrees per second,
// Heading in degrees [0,360).
type MpuSample struct {
	Gyro    Vector3   `json:"gyro"`
	Accel   Vector3   `json:"accel"`
	Mag     Vector3   `json:"mag"`
	Heading float64   `json:"heading"`
	Temp    float64   `json:"temp"`
	Time    time.Time `json:"time"`
}

// RangeSample holds the distance in cm per named sensor.
type RangeSample struct {
	Ranges    map[string]float64 `json:"Ranges"`
	Deltat    float64            `json:"Deltat"`
	Timestamp time.Time          `json:"Timestamp"`
}

// Outcome is the terminal state of a goal observer.
type Outcome string

const (
	Observed Outcome = "Observed"
	Missed   Outcome = "Missed"
)

// ObservationResult is published once when an observer terminates.
type ObservationResult struct {
	Observer string        `json:"observer"`
	Outcome  Outcome       `json:"outcome"`
	Value    float64       `json:"value"`
	Elapsed  time.Duration `json:"elapsed"`
}

// MotorStatus classifies the controller's reply to a motor command.
type MotorStatus string

const (
	MotorSuccess        MotorStatus = "Success"
	MotorFailure        MotorStatus = "Failure"
	MotorUnacknowledged MotorStatus = "Unacknowledged"
	MotorDisabled       MotorStatus = "Disabled"
)

type MotorCommandResult struct {
	Status  MotorStatus `json:"status"`
	Command string      `json:"command"`
	Reply   string      `json:"reply"`
	Time    time.Time   `json:"time"`
}

// Telemetry is a keyed partial update, e.g. {"MPU": ...} or {"Ranges": ...}.
type Telemetry map[string]any

func (Voltages) Kind() Kind           { return KindVoltages }
func (Amperages) Kind() Kind          { return KindAmperages }
func (MpuSample) Kind() Kind          { return KindMpuSample }
func (RangeSample) Kind() Kind        { return KindRangeSample }
func (ObservationResult) Kind() Kind  { return KindObservation }
func (MotorCommandResult) Kind() Kind { return KindMotorCommandResult }
func (Telemetry) Kind() Kind          { return KindTelemetry }

func (Voltages) message()           {}
func (Amperages) message()          {}
func (MpuSample) message()          {}
func (RangeSample) message()        {}
func (ObservationResult) message()  {}
func (MotorCommandResult) message() {}
func (Telemetry) message()          {}

// Forward returns the forward range, or -1 when the sensor is absent.
func (r RangeSample) Forward() float64 {
	if v, ok := r.Ranges[SensorForward]; ok {
		return v
	}
	return -1
}

// Range sensor names.
const (
	SensorForward = "Forward"
	SensorBottom  = "Bottom"
	SensorLeft    = "Left"
	SensorRight   = "Right"
	SensorBack    = "Back"
)
