// Package iot bridges the robot to an MQTT broker. Application telemetry is
// published and textual commands received on the command topic are sent into
// the robot.
package iot

import (
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"

	rc "robot_control"
	"robot_control/internal/logger"
)

// Topic suffixes under <prefix>/<robot>/.
const (
	TopicTelemetry = "telemetry"
	TopicCommand   = "command"
	TopicFeedback  = "feedback"
)

// Endpoint is the bridge process's view of the channel fabric.
type Endpoint interface {
	Send(msg rc.Message) int
	Receive(ctx context.Context) (rc.Message, error)
}

// Parser turns a textual command into a message.
type Parser interface {
	Parse(token string) (rc.Message, error)
}

// Bridge is the IoT process.
type Bridge struct {
	transport Transport
	parser    Parser
	log       *logger.Logger
	prefix    string

	ep        atomic.Pointer[endpointRef]
	published atomic.Uint64
	dropped   atomic.Uint64
}

type endpointRef struct{ Endpoint }

func NewBridge(t Transport, parser Parser, topicPrefix, robot string, log *logger.Logger) *Bridge {
	if log == nil {
		log = logger.Nop()
	}
	prefix := strings.Trim(topicPrefix, "/") + "/" + robot + "/"
	return &Bridge{transport: t, parser: parser, log: log, prefix: strings.TrimPrefix(prefix, "/")}
}

// Topic returns the full topic for suffix.
func (b *Bridge) Topic(suffix string) string {
	return b.prefix + suffix
}

// Run connects in the background and publishes what the robot sends until
// Shutdown or ctx is cancelled.
func (b *Bridge) Run(ctx context.Context, ep Endpoint) error {
	b.ep.Store(&endpointRef{ep})
	if err := b.transport.Subscribe(b.Topic(TopicCommand), b.onCommand); err != nil {
		return err
	}

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		if err := b.transport.Connect(connCtx); err != nil {
			b.log.Infow("iot_connect_abandoned", "err", err)
		}
	}()
	defer b.transport.Close()

	b.log.Infow("iot_started", "prefix", b.prefix)
	for {
		msg, err := ep.Receive(ctx)
		if err != nil {
			return err
		}
		switch v := msg.(type) {
		case rc.Shutdown:
			b.log.Infow("iot_stopped", "published", b.published.Load(), "dropped", b.dropped.Load())
			return nil
		case rc.Feedback:
			b.publish(TopicTelemetry, v.Info)
		case rc.Telemetry:
			b.publish(TopicTelemetry, v)
		}
	}
}

func (b *Bridge) publish(suffix string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		b.log.Errorw("iot_encode_failed", "err", err)
		return
	}
	if err := b.transport.Publish(b.Topic(suffix), payload); err != nil {
		b.dropped.Add(1)
		b.log.Debugw("iot_publish_failed", "topic", b.Topic(suffix), "err", err)
		return
	}
	b.published.Add(1)
}

// onCommand handles one payload from the command topic. The payload is the
// textual command, optionally as a JSON string.
func (b *Bridge) onCommand(payload []byte) {
	token := strings.TrimSpace(string(payload))
	var quoted string
	if json.Unmarshal(payload, &quoted) == nil {
		token = strings.TrimSpace(quoted)
	}
	if token == "" {
		return
	}

	msg, err := b.parser.Parse(token)
	if err != nil {
		b.log.Infow("iot_command_rejected", "token", token, "err", err)
		b.publish(TopicFeedback, map[string]string{"token": token, "error": err.Error()})
		return
	}
	ref := b.ep.Load()
	if ref == nil {
		return
	}
	if n := ref.Send(msg); n == 0 {
		b.log.Infow("iot_command_unrouted", "token", token, "kind", msg.Kind())
		b.publish(TopicFeedback, map[string]string{"token": token, "error": "not accepted"})
		return
	}
	b.log.Debugw("iot_command", "token", token, "kind", msg.Kind())
}
