package fabric

import (
	rc "robot_control"
)

// Channel types.
const (
	TypeOperations  = "Operations"
	TypeMotion      = "Motion"
	TypeRange       = "Range"
	TypeControl     = "Control"
	TypeApplication = "Application"
	TypeSpeech      = "Speech"
	TypeDance       = "Dance"
)

// KindSet is the set of message kinds a channel type may carry.
type KindSet map[rc.Kind]struct{}

func NewKindSet(kinds ...rc.Kind) KindSet {
	s := make(KindSet, len(kinds))
	for _, k := range kinds {
		s[k] = struct{}{}
	}
	return s
}

func (s KindSet) Has(k rc.Kind) bool {
	_, ok := s[k]
	return ok
}

// TypeMap maps a channel type to the kinds it carries.
type TypeMap map[string]KindSet

// Accepts reports whether a channel of type chanType may carry kind.
func (m TypeMap) Accepts(chanType string, kind rc.Kind) bool {
	set, ok := m[chanType]
	return ok && set.Has(kind)
}

// DefaultTypeMap returns the channel type map for the standard topology.
func DefaultTypeMap() TypeMap {
	motion := []rc.Kind{rc.KindObserveTurn, rc.KindObserveHeading, rc.KindCalibrateMagnetometer}
	operatorCommands := []rc.Kind{
		rc.KindPower, rc.KindNav,
		rc.KindObserveTurn, rc.KindExecuteTurn,
		rc.KindObserveHeading, rc.KindExecuteHeading,
		rc.KindObserveRange, rc.KindCalibrateMagnetometer,
		rc.KindHeartbeat,
	}
	workerTelemetry := []rc.Kind{
		rc.KindVoltages, rc.KindAmperages, rc.KindMpuSample, rc.KindRangeSample,
		rc.KindObservation, rc.KindMotorCommandResult,
	}

	return TypeMap{
		TypeOperations:  NewKindSet(append(append([]rc.Kind{}, operatorCommands...), workerTelemetry...)...),
		TypeMotion:      NewKindSet(motion...),
		TypeRange:       NewKindSet(rc.KindObserveRange),
		TypeControl:     NewKindSet(append(append([]rc.Kind{}, operatorCommands...), rc.KindSpeech, rc.KindDance)...),
		TypeApplication: NewKindSet(rc.KindFeedback, rc.KindTelemetry),
		TypeSpeech:      NewKindSet(rc.KindSpeech),
		TypeDance:       NewKindSet(rc.KindDance),
	}
}
