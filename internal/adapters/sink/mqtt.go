package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/okian/posture/internal/domain/model"
	"github.com/okian/posture/pkg/logger"
	"github.com/okian/posture/pkg/metrics"
)

const (
	mqttConnectTimeout = 5 * time.Second
	mqttDisconnectMs   = 250
)

// ErrMQTTConnect is returned when the broker cannot be reached in time.
var ErrMQTTConnect = errors.New("mqtt connect failed")

// Publisher is the subset of mqtt.Client the sink needs.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTOptions configures DialMQTT.
type MQTTOptions struct {
	Broker   string
	ClientID string
	Topic    string
	QoS      byte
}

type statusPayload struct {
	User    string    `json:"user"`
	Status  string    `json:"status"`
	Key     string    `json:"key"`
	Color   string    `json:"color"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

type logPayload struct {
	Level   string    `json:"level"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// MQTTSink publishes JSON status events to <topic>/status (retained) and
// log lines to <topic>/log. It never waits on delivery tokens.
type MQTTSink struct {
	Nop
	client Publisher
	topic  string
	qos    byte
	log    logger.Logger

	published  atomic.Uint64
	dropped    atomic.Uint64
	disconnect func()
}

// NewMQTTSink publishes through an existing client.
func NewMQTTSink(client Publisher, topic string, qos byte, l logger.Logger) *MQTTSink {
	if l == nil {
		l = logger.Discard()
	}
	return &MQTTSink{client: client, topic: topic, qos: qos, log: l, disconnect: func() {}}
}

// DialMQTT connects to the broker with auto-reconnect and returns a sink.
func DialMQTT(ctx context.Context, o MQTTOptions, l logger.Logger) (*MQTTSink, error) {
	if l == nil {
		l = logger.Discard()
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(o.Broker)
	opts.SetClientID(o.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		l.Info(context.Background(), "mqtt connection established", logger.String("broker", o.Broker))
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		l.Warn(context.Background(), "mqtt connection lost, will auto-reconnect", logger.Error(err))
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	select {
	case <-token.Done():
	case <-time.After(mqttConnectTimeout):
		client.Disconnect(0)
		return nil, fmt.Errorf("%w: %s: timeout", ErrMQTTConnect, o.Broker)
	case <-ctx.Done():
		client.Disconnect(0)
		return nil, fmt.Errorf("%w: %w", ErrMQTTConnect, ctx.Err())
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMQTTConnect, err)
	}

	s := NewMQTTSink(client, o.Topic, o.QoS, l)
	s.disconnect = func() {
		if client.IsConnected() {
			client.Disconnect(mqttDisconnectMs)
		}
	}
	return s, nil
}

// StatusChanged implements Sink.
func (s *MQTTSink) StatusChanged(ev model.StatusEvent) {
	s.publish("status", true, statusPayload{
		User:    ev.User,
		Status:  ev.Status.String(),
		Key:     ev.Status.Key(),
		Color:   ev.Color,
		Message: ev.Message,
		At:      ev.At,
	})
}

// Message implements Sink.
func (s *MQTTSink) Message(ev model.LogEvent) {
	s.publish("log", false, logPayload(ev))
}

// Published returns the number of messages handed to the client.
func (s *MQTTSink) Published() uint64 { return s.published.Load() }

// Dropped returns the number of messages that could not be encoded or sent.
func (s *MQTTSink) Dropped() uint64 { return s.dropped.Load() }

// Close disconnects a client created by DialMQTT.
func (s *MQTTSink) Close() error {
	s.disconnect()
	return nil
}

func (s *MQTTSink) publish(kind string, retained bool, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		s.drop(kind, err)
		return
	}
	token := s.client.Publish(s.topic+"/"+kind, s.qos, retained, payload)
	// Errors surface asynchronously; log them without blocking the caller.
	go func() {
		<-token.Done()
		if err := token.Error(); err != nil {
			s.drop(kind, err)
		}
	}()
	s.published.Add(1)
	metrics.RecordSinkEvent("mqtt", kind)
}

func (s *MQTTSink) drop(kind string, err error) {
	s.dropped.Add(1)
	metrics.RecordSinkDrop("mqtt")
	s.log.Warn(context.Background(), "mqtt publish failed", logger.String("kind", kind), logger.Error(err))
}
