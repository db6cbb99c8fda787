package models

import "time"

// RobotProcessID identifies the robot orchestrator itself in channel specs.
const RobotProcessID = 0

// Channel directions, seen from the robot.
const (
	DirectionSend    = "Send"
	DirectionReceive = "Receive"
)

// ProtocolQueue is the only channel transport: an in-process FIFO.
const ProtocolQueue = "queue"

// Process is one worker of the robot.
type Process struct {
	ID      int    `json:"id" yaml:"id"`
	Name    string `json:"name" yaml:"name"`
	Role    string `json:"role" yaml:"role"` // key in the process registry
	Enabled bool   `json:"enabled" yaml:"enabled"`
}

// Channel is a typed, directed link between two processes.
// ShareQueue, when non-zero, names an earlier channel whose queue is reused.
type Channel struct {
	ID          int    `json:"id" yaml:"id"`
	Description string `json:"description" yaml:"description"`
	Direction   string `json:"direction" yaml:"direction"`
	Source      int    `json:"source" yaml:"source"`
	Target      int    `json:"target" yaml:"target"`
	ShareQueue  int    `json:"share_queue,omitempty" yaml:"share_queue"`
	Type        string `json:"type" yaml:"type"`
	Protocol    string `json:"protocol,omitempty" yaml:"protocol"`
}

// Topology is the full process and channel configuration of one robot.
type Topology struct {
	Robot     string    `json:"robot" yaml:"robot"`
	Processes []Process `json:"processes" yaml:"processes"`
	Channels  []Channel `json:"channels" yaml:"channels"`
}

// Run records one start/shutdown cycle of a robot.
type Run struct {
	ID         string     `json:"id"`
	Robot      string     `json:"robot"`
	StartedAt  time.Time  `json:"started_at"`
	ShutdownAt *time.Time `json:"shutdown_at,omitempty"`
}
