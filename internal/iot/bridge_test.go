package iot

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	rc "robot_control"
	"robot_control/internal/command"
)

type published struct {
	topic   string
	payload []byte
}

type fakeTransport struct {
	mu        sync.Mutex
	handlers  map[string]func([]byte)
	out       []published
	connected chan struct{}
	closed    bool
	failPub   error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{handlers: make(map[string]func([]byte)), connected: make(chan struct{})}
}

func (f *fakeTransport) Connect(ctx context.Context) error {
	close(f.connected)
	return nil
}

func (f *fakeTransport) Subscribe(topic string, handle func([]byte)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[topic] = handle
	return nil
}

func (f *fakeTransport) Publish(topic string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPub != nil {
		return f.failPub
	}
	f.out = append(f.out, published{topic, payload})
	return nil
}

func (f *fakeTransport) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeTransport) deliver(topic string, payload string) {
	f.mu.Lock()
	h := f.handlers[topic]
	f.mu.Unlock()
	h([]byte(payload))
}

func (f *fakeTransport) sent() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.out...)
}

// chanEndpoint feeds Receive from a channel and records sends.
type chanEndpoint struct {
	in     chan rc.Message
	accept bool

	mu   sync.Mutex
	sent []rc.Message
}

func (e *chanEndpoint) Send(msg rc.Message) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.accept {
		return 0
	}
	e.sent = append(e.sent, msg)
	return 1
}

func (e *chanEndpoint) Receive(ctx context.Context) (rc.Message, error) {
	select {
	case m := <-e.in:
		return m, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (e *chanEndpoint) messages() []rc.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]rc.Message(nil), e.sent...)
}

func startBridge(t *testing.T, accept bool) (*fakeTransport, *chanEndpoint, chan error) {
	t.Helper()
	tr := newFakeTransport()
	ep := &chanEndpoint{in: make(chan rc.Message, 8), accept: accept}
	b := NewBridge(tr, command.NewInterpreter(nil), "/robots/", "rover", nil)
	done := make(chan error, 1)
	go func() { done <- b.Run(context.Background(), ep) }()
	select {
	case <-tr.connected:
	case <-time.After(time.Second):
		t.Fatalf("bridge never connected")
	}
	return tr, ep, done
}

func stopBridge(t *testing.T, ep *chanEndpoint, done chan error) {
	t.Helper()
	ep.in <- rc.Shutdown{}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("bridge did not stop")
	}
}

func TestBridge_PublishesTelemetry(t *testing.T) {
	tr, ep, done := startBridge(t, true)

	ep.in <- rc.Feedback{Info: rc.Telemetry{"Bat": map[string]any{"level": 0.5}}}
	stopBridge(t, ep, done)

	out := tr.sent()
	if len(out) != 1 || out[0].topic != "robots/rover/telemetry" {
		t.Fatalf("published %+v", out)
	}
	var got map[string]map[string]float64
	if err := json.Unmarshal(out[0].payload, &got); err != nil || got["Bat"]["level"] != 0.5 {
		t.Fatalf("payload %s (%v)", out[0].payload, err)
	}
	if !tr.closed {
		t.Fatalf("transport not closed")
	}
}

func TestBridge_Commands(t *testing.T) {
	tr, ep, done := startBridge(t, true)

	tr.deliver("robots/rover/command", "/t/90")
	tr.deliver("robots/rover/command", `"/s/hello"`)
	tr.deliver("robots/rover/command", "/x/1")
	tr.deliver("robots/rover/command", "   ")
	stopBridge(t, ep, done)

	msgs := ep.messages()
	if len(msgs) != 2 {
		t.Fatalf("sent %v", msgs)
	}
	if turn, ok := msgs[0].(rc.ExecuteTurn); !ok || turn.Angle != 90 {
		t.Fatalf("first command %#v", msgs[0])
	}
	if speech, ok := msgs[1].(rc.Speech); !ok || speech.Msg != "hello" {
		t.Fatalf("second command %#v", msgs[1])
	}
	out := tr.sent()
	if len(out) != 1 || out[0].topic != "robots/rover/feedback" {
		t.Fatalf("expected one feedback for the bad token, got %+v", out)
	}
}

func TestBridge_UnroutedCommandAndPublishFailure(t *testing.T) {
	tr, ep, done := startBridge(t, false)

	tr.deliver("robots/rover/command", "Shutdown")
	if len(tr.sent()) != 1 {
		t.Fatalf("unrouted command not reported: %+v", tr.sent())
	}

	tr.mu.Lock()
	tr.failPub = errors.New("offline")
	tr.mu.Unlock()
	ep.in <- rc.Telemetry{"MPU": map[string]any{"heading": 1.0}}
	stopBridge(t, ep, done)
	if len(tr.sent()) != 1 {
		t.Fatalf("failed publish recorded")
	}
}

func TestBridge_Topic(t *testing.T) {
	b := NewBridge(nil, nil, "", "r1", nil)
	if got := b.Topic(TopicCommand); got != "r1/command" {
		t.Fatalf("Topic = %q", got)
	}
}
