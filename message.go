package robot_control

import "fmt"

// Kind names a message variant. Channel types are sets of kinds.
type Kind string

// Command kinds.
const (
	KindPower                 Kind = "power"
	KindNav                   Kind = "nav"
	KindObserveTurn           Kind = "observeTurn"
	KindExecuteTurn           Kind = "executeTurn"
	KindObserveHeading        Kind = "observeHeading"
	KindExecuteHeading        Kind = "executeHeading"
	KindObserveRange          Kind = "observeRange"
	KindCalibrateMagnetometer Kind = "calibrateMagnetometer"
	KindSpeech                Kind = "speech"
	KindDance                 Kind = "dance"
	KindFeedback              Kind = "feedback"
	KindShutdown              Kind = "shutdown"
	KindHeartbeat             Kind = "heartbeat"
)

// Telemetry kinds.
const (
	KindVoltages           Kind = "voltages"
	KindAmperages          Kind = "amperages"
	KindMpuSample          Kind = "mpuData"
	KindRangeSample        Kind = "ranges"
	KindObservation        Kind = "observation"
	KindMotorCommandResult Kind = "motorCommandResult"
	KindTelemetry          Kind = "telemetry"
)

// Message is anything that travels on a channel. The set of variants is closed.
type Message interface {
	Kind() Kind
	message()
}

// Power is a motion request: level in [0,1], angle in degrees relative to the
// robot (0 forward, 90 clockwise spin, 270 counter-clockwise spin).
type Power struct {
	Level float64 `json:"level"`
	Angle float64 `json:"angle"`
}

// Nav drives with Power until Sensor reports Range.
type Nav struct {
	Power    Power   `json:"power"`
	Range    float64 `json:"range"`  // cm
	Sensor   string  `json:"sensor"` // e.g. Forward, Back
	Interval float64 `json:"interval"`
}

type ObserveTurn struct {
	Angle float64 `json:"angle"`
}

type ExecuteTurn struct {
	Angle float64 `json:"angle"`
}

type ObserveHeading struct {
	Heading float64 `json:"heading"`
}

type ExecuteHeading struct {
	Heading float64 `json:"heading"`
}

type ObserveRange struct {
	Nav Nav `json:"nav"`
}

type CalibrateMagnetometer struct {
	Samples int    `json:"samples"`
	Source  string `json:"source"`
}

type Speech struct {
	Msg  string `json:"msg"`
	Save bool   `json:"save"`
}

type Dance struct {
	Song string `json:"song"`
}

// Feedback carries arbitrary information back to applications.
type Feedback struct {
	Info any `json:"info"`
}

// Shutdown asks every worker to stop. It is delivered on every send channel.
type Shutdown struct{}

// Heartbeat keeps the motor watchdog from cutting power.
type Heartbeat struct{}

func (Power) Kind() Kind                 { return KindPower }
func (Nav) Kind() Kind                   { return KindNav }
func (ObserveTurn) Kind() Kind           { return KindObserveTurn }
func (ExecuteTurn) Kind() Kind           { return KindExecuteTurn }
func (ObserveHeading) Kind() Kind        { return KindObserveHeading }
func (ExecuteHeading) Kind() Kind        { return KindExecuteHeading }
func (ObserveRange) Kind() Kind          { return KindObserveRange }
func (CalibrateMagnetometer) Kind() Kind { return KindCalibrateMagnetometer }
func (Speech) Kind() Kind                { return KindSpeech }
func (Dance) Kind() Kind                 { return KindDance }
func (Feedback) Kind() Kind              { return KindFeedback }
func (Shutdown) Kind() Kind              { return KindShutdown }
func (Heartbeat) Kind() Kind             { return KindHeartbeat }

func (Power) message()                 {}
func (Nav) message()                   {}
func (ObserveTurn) message()           {}
func (ExecuteTurn) message()           {}
func (ObserveHeading) message()        {}
func (ExecuteHeading) message()        {}
func (ObserveRange) message()          {}
func (CalibrateMagnetometer) message() {}
func (Speech) message()                {}
func (Dance) message()                 {}
func (Feedback) message()              {}
func (Shutdown) message()              {}
func (Heartbeat) message()             {}

// Token renders p in the textual command form.
func (p Power) Token() string {
	return fmt.Sprintf("/r/%g/%g", p.Level, p.Angle)
}

// Token renders n in the textual command form.
func (n Nav) Token() string {
	return fmt.Sprintf("/r/%g/%g/%g/%s/%g", n.Power.Level, n.Power.Angle, n.Range, n.Sensor, n.Interval)
}

// IsStop reports whether p commands zero motion.
func (p Power) IsStop() bool {
	return p.Level <= 0
}
