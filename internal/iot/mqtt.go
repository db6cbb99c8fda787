package iot

import (
	"context"
	"errors"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"robot_control/internal/logger"
)

const (
	keepAlive      = 30 * time.Second
	pingTimeout    = 10 * time.Second
	retryInterval  = 5 * time.Second
	publishTimeout = 2 * time.Second
	disconnectWait = 250 // ms
)

var ErrNotConnected = errors.New("mqtt not connected")

// Transport is the broker connection the bridge publishes and subscribes on.
type Transport interface {
	Connect(ctx context.Context) error
	Subscribe(topic string, handle func(payload []byte)) error
	Publish(topic string, payload []byte) error
	Close()
}

// Options configures the MQTT connection.
type Options struct {
	Broker   string
	ClientID string
	Username string
	Password string
	QoS      byte

	BackoffStart time.Duration
	BackoffMax   time.Duration
}

type mqttTransport struct {
	opts   Options
	client mqtt.Client
	log    *logger.Logger
	subs   map[string]func([]byte)
}

// NewMQTT builds a paho client. Subscriptions are restored on reconnect.
func NewMQTT(o Options, log *logger.Logger) Transport {
	if log == nil {
		log = logger.Nop()
	}
	if o.BackoffStart <= 0 {
		o.BackoffStart = time.Second
	}
	if o.BackoffMax <= 0 {
		o.BackoffMax = 30 * time.Second
	}
	t := &mqttTransport{opts: o, log: log, subs: make(map[string]func([]byte))}

	opts := mqtt.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetOrderMatters(false).
		SetCleanSession(true).
		SetKeepAlive(keepAlive).
		SetPingTimeout(pingTimeout).
		SetAutoReconnect(true).
		SetConnectRetry(false).
		SetConnectRetryInterval(retryInterval)
	if o.Username != "" {
		opts.SetUsername(o.Username)
	}
	if o.Password != "" {
		opts.SetPassword(o.Password)
	}
	opts.OnConnect = func(c mqtt.Client) {
		log.Infow("mqtt_connected", "broker", o.Broker)
		for topic, h := range t.subs {
			t.subscribe(c, topic, h)
		}
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Warnw("mqtt_connection_lost", "err", err)
	}

	t.client = mqtt.NewClient(opts)
	return t
}

// Connect retries with exponential backoff until connected or ctx is done.
func (t *mqttTransport) Connect(ctx context.Context) error {
	backoff := t.opts.BackoffStart
	for {
		token := t.client.Connect()
		token.Wait()
		if token.Error() == nil {
			return nil
		}
		t.log.Warnw("mqtt_connect_failed", "err", token.Error(), "retry_in", backoff)
		select {
		case <-time.After(backoff):
			if backoff < t.opts.BackoffMax {
				backoff *= 2
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Subscribe must be called before Connect.
func (t *mqttTransport) Subscribe(topic string, handle func(payload []byte)) error {
	t.subs[topic] = handle
	if t.client.IsConnected() {
		t.subscribe(t.client, topic, handle)
	}
	return nil
}

func (t *mqttTransport) subscribe(c mqtt.Client, topic string, handle func([]byte)) {
	token := c.Subscribe(topic, t.opts.QoS, func(_ mqtt.Client, m mqtt.Message) {
		handle(m.Payload())
	})
	if token.Wait() && token.Error() != nil {
		t.log.Errorw("mqtt_subscribe_failed", "topic", topic, "err", token.Error())
		return
	}
	t.log.Infow("mqtt_subscribed", "topic", topic, "qos", t.opts.QoS)
}

func (t *mqttTransport) Publish(topic string, payload []byte) error {
	if !t.client.IsConnectionOpen() {
		return ErrNotConnected
	}
	token := t.client.Publish(topic, t.opts.QoS, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return errors.New("mqtt publish timed out")
	}
	return token.Error()
}

func (t *mqttTransport) Close() {
	if t.client.IsConnected() {
		t.client.Disconnect(disconnectWait)
	}
}
