package models

import "time"

// Event types recorded in the robot event log.
const (
	EventStart       = "START"
	EventShutdown    = "SHUTDOWN"
	EventSafety      = "SAFETY"
	EventAlarm       = "ALARM"
	EventObservation = "OBSERVATION"
	EventCommand     = "COMMAND"
)

// RobotEvent is a single log entry.
type RobotEvent struct {
	EventID     string    `json:"event_id"`
	OccurredAt  time.Time `json:"occurred_at"`
	Type        string    `json:"type"`        // START | SHUTDOWN | SAFETY | ALARM | OBSERVATION | COMMAND
	Description string    `json:"description"` // human-readable
	Metadata    any       `json:"metadata,omitempty"`
}
