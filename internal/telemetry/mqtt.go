package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/ayusman/emberguard/internal/response"
	"github.com/ayusman/emberguard/internal/sensor"
)

// ErrNotConnected is returned while the broker connection is down.
var ErrNotConnected = errors.New("mqtt not connected")

const publishTimeout = 2 * time.Second

// MQTTConfig configures an MQTTPublisher.
type MQTTConfig struct {
	Broker        string // host:port
	DeviceID      string
	ReadingsTopic string
	EpisodesTopic string
	QoS           byte
}

// mqttClient is the subset of mqtt.Client used for publishing.
type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	IsConnected() bool
	Disconnect(quiesce uint)
}

// MQTTPublisher publishes to "<topic>/<device id>".
type MQTTPublisher struct {
	cfg    MQTTConfig
	client mqttClient
	logger *slog.Logger

	mu        sync.Mutex
	published map[string]uint64
	errors    uint64
}

// DialMQTT connects to the broker. The client reconnects on its own after
// the first connection succeeds.
func DialMQTT(ctx context.Context, cfg MQTTConfig, logger *slog.Logger) (*MQTTPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", cfg.Broker))
	opts.SetClientID(cfg.DeviceID + "-" + uuid.NewString()[:8])
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		logger.Info("mqtt connection established", "broker", cfg.Broker)
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		logger.Warn("mqtt connection lost, will auto-reconnect", "broker", cfg.Broker, "error", err)
	}

	client := mqtt.NewClient(opts)
	logger.Info("connecting to mqtt broker", "broker", cfg.Broker)

	token := client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		client.Disconnect(0)
		return nil, ctx.Err()
	case <-time.After(5 * time.Second):
		client.Disconnect(0)
		return nil, fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connection failed: %w", err)
	}

	return newMQTTPublisher(cfg, client, logger), nil
}

func newMQTTPublisher(cfg MQTTConfig, client mqttClient, logger *slog.Logger) *MQTTPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &MQTTPublisher{
		cfg:       cfg,
		client:    client,
		logger:    logger,
		published: make(map[string]uint64),
	}
}

// RecordSample publishes one reading.
func (p *MQTTPublisher) RecordSample(ctx context.Context, s sensor.Sample) error {
	payload, err := readingEvent(p.cfg.DeviceID, s)
	if err != nil {
		return err
	}
	return p.publish(ctx, p.cfg.ReadingsTopic, payload)
}

// Report publishes one episode summary.
func (p *MQTTPublisher) Report(ctx context.Context, r *response.EpisodeResult) error {
	payload, err := episodeEvent(p.cfg.DeviceID, r)
	if err != nil {
		return err
	}
	return p.publish(ctx, p.cfg.EpisodesTopic, payload)
}

func (p *MQTTPublisher) publish(ctx context.Context, base string, payload []byte) error {
	if !p.client.IsConnected() {
		p.failed()
		return ErrNotConnected
	}

	topic := fmt.Sprintf("%s/%s", base, p.cfg.DeviceID)
	token := p.client.Publish(topic, p.cfg.QoS, false, payload)

	select {
	case <-token.Done():
	case <-ctx.Done():
		p.failed()
		return ctx.Err()
	case <-time.After(publishTimeout):
		p.failed()
		return fmt.Errorf("publish %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		p.failed()
		return fmt.Errorf("publish %s: %w", topic, err)
	}

	p.mu.Lock()
	p.published[topic]++
	p.mu.Unlock()

	p.logger.Debug("telemetry published", "topic", topic, "size", len(payload))
	return nil
}

func (p *MQTTPublisher) failed() {
	p.mu.Lock()
	p.errors++
	p.mu.Unlock()
}

// Stats returns per-topic publish counts and the error count.
func (p *MQTTPublisher) Stats() (map[string]uint64, uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]uint64, len(p.published))
	for k, v := range p.published {
		out[k] = v
	}
	return out, p.errors
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() error {
	if p.client.IsConnected() {
		p.client.Disconnect(250)
		p.logger.Info("mqtt disconnected")
	}
	return nil
}
