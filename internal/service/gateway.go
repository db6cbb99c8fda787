package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	rc "robot_control"
	"robot_control/internal/logger"
	"robot_control/internal/telemetry"
)

var (
	ErrNoCommand = errors.New("no command in request")
	ErrUnrouted  = errors.New("no process accepts this command")
)

// feedbackKey holds Feedback that is not a telemetry map.
const feedbackKey = "Feedback"

// Parser turns a textual command into a message.
type Parser interface {
	Parse(token string) (rc.Message, error)
}

// PowerRequest is the remote drive request. Exactly one of Heading, Turn or
// Level is used, checked in that order.
type PowerRequest struct {
	Level    *float64 `json:"level,omitempty"`
	Angle    float64  `json:"angle"`
	Range    *float64 `json:"range,omitempty"`
	Sensor   string   `json:"sensor,omitempty"`
	Duration float64  `json:"duration"`
	Turn     *float64 `json:"turn,omitempty"`
	Heading  *float64 `json:"heading,omitempty"`
}

// Token renders the request as a textual command.
func (r PowerRequest) Token() (string, error) {
	switch {
	case r.Heading != nil:
		return fmt.Sprintf("/h/%.1f", *r.Heading), nil
	case r.Turn != nil:
		return fmt.Sprintf("/t/%.1f", *r.Turn), nil
	case r.Level != nil:
		power := rc.Power{Level: *r.Level, Angle: r.Angle}
		if r.Range == nil {
			return power.Token(), nil
		}
		sensor := r.Sensor
		if sensor == "" {
			sensor = rc.SensorForward
		}
		return rc.Nav{Power: power, Range: *r.Range, Sensor: sensor, Interval: r.Duration}.Token(), nil
	}
	return "", ErrNoCommand
}

// GatewayService is the remote operator's way into the robot. Commands go
// out through the gateway process endpoint and telemetry coming back is
// merged into the current view.
type GatewayService struct {
	ep      Endpoint
	parser  Parser
	current *telemetry.Current
	log     *logger.Logger

	mu      sync.Mutex
	powered bool
}

func NewGatewayService(ep Endpoint, parser Parser, current *telemetry.Current, log *logger.Logger) *GatewayService {
	if log == nil {
		log = logger.Nop()
	}
	if current == nil {
		current = telemetry.New()
	}
	return &GatewayService{ep: ep, parser: parser, current: current, log: log}
}

// Submit parses token and sends it toward the robot.
func (g *GatewayService) Submit(token string) (rc.Message, error) {
	msg, err := g.parser.Parse(token)
	if err != nil {
		return nil, err
	}
	if g.ep.Send(msg) == 0 {
		return msg, fmt.Errorf("%w: %s", ErrUnrouted, msg.Kind())
	}
	g.track(msg)
	g.log.Infow("command_submitted", "token", token, "kind", msg.Kind())
	return msg, nil
}

// Power submits a drive request and returns the current telemetry.
func (g *GatewayService) Power(req PowerRequest) (rc.Telemetry, error) {
	token, err := req.Token()
	if err != nil {
		return nil, err
	}
	if _, err := g.Submit(token); err != nil {
		return nil, err
	}
	snap, _ := g.current.Snapshot()
	return snap, nil
}

// PollTelemetry returns the current telemetry. While this gateway has the
// motors powered a poll also counts as operator liveness.
func (g *GatewayService) PollTelemetry() rc.Telemetry {
	if g.motorsPowered() {
		g.ep.Send(rc.Heartbeat{})
	}
	snap, _ := g.current.Snapshot()
	return snap
}

// Telemetry returns the current telemetry and its version.
func (g *GatewayService) Telemetry() (rc.Telemetry, uint64) {
	return g.current.Snapshot()
}

// DockSignal merges a docking beacon report into the current telemetry.
func (g *GatewayService) DockSignal(signal map[string]any) {
	g.current.Merge(rc.Telemetry{telemetry.DockSignal: signal})
}

func (g *GatewayService) track(msg rc.Message) {
	var p rc.Power
	switch v := msg.(type) {
	case rc.Power:
		p = v
	case rc.Nav:
		p = v.Power
	case rc.ExecuteTurn, rc.ExecuteHeading:
		p = rc.Power{Level: turnLevel}
	default:
		return
	}
	g.mu.Lock()
	g.powered = !p.IsStop()
	g.mu.Unlock()
}

func (g *GatewayService) motorsPowered() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.powered
}

// Run consumes what the robot sends to the gateway until Shutdown.
func (g *GatewayService) Run(ctx context.Context, ep Endpoint) error {
	g.log.Infow("gateway_started")
	return consumeTelemetry(ctx, ep, func(update rc.Telemetry) {
		_, cut := update[KeyWatchdog]
		_, done := update[KeyObservation]
		if cut || done {
			g.mu.Lock()
			g.powered = false
			g.mu.Unlock()
		}
		g.current.Merge(update)
	})
}

// consumeTelemetry receives Feedback until Shutdown and hands each telemetry
// update to apply.
func consumeTelemetry(ctx context.Context, ep Endpoint, apply func(rc.Telemetry)) error {
	for {
		msg, err := ep.Receive(ctx)
		if err != nil {
			return err
		}
		switch v := msg.(type) {
		case rc.Shutdown:
			return nil
		case rc.Feedback:
			apply(telemetryOf(v))
		case rc.Telemetry:
			apply(v)
		}
	}
}

func telemetryOf(f rc.Feedback) rc.Telemetry {
	switch info := f.Info.(type) {
	case rc.Telemetry:
		return info
	case map[string]any:
		return rc.Telemetry(info)
	default:
		return rc.Telemetry{feedbackKey: info}
	}
}
