package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/emberguard/internal/log"
	"github.com/ayusman/emberguard/internal/response"
	"github.com/ayusman/emberguard/internal/sensor"
)

type doneToken struct {
	err error
}

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Error() error                   { return t.err }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type published struct {
	topic   string
	qos     byte
	payload []byte
}

type fakeMQTT struct {
	mu           sync.Mutex
	connected    bool
	err          error
	msgs         []published
	disconnected bool
}

func (c *fakeMQTT) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, published{topic, qos, payload.([]byte)})
	return doneToken{err: c.err}
}

func (c *fakeMQTT) IsConnected() bool { return c.connected }
func (c *fakeMQTT) Disconnect(uint)   { c.disconnected = true; c.connected = false }

type fakeKafka struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeKafka) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeKafka) Close() error {
	w.closed = true
	return nil
}

var at = time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)

func episode() *response.EpisodeResult {
	return &response.EpisodeResult{
		ID:           "ep-7",
		Trigger:      response.TriggerPeriodic,
		StartedAt:    at,
		FinishedAt:   at.Add(3 * time.Second),
		Scan:         response.ScanReport{{Position: response.Grid()[0]}},
		FireDetected: false,
	}
}

func TestMQTTPublisher(t *testing.T) {
	client := &fakeMQTT{connected: true}
	p := newMQTTPublisher(MQTTConfig{
		DeviceID:      "unit-3",
		ReadingsTopic: "emberguard/readings",
		EpisodesTopic: "emberguard/episodes",
		QoS:           1,
	}, client, log.Discard())
	ctx := context.Background()

	require.NoError(t, p.RecordSample(ctx, sensor.Sample{GasLevel: 42.5, Temperature: 23, Timestamp: at}))
	require.NoError(t, p.Report(ctx, episode()))

	require.Len(t, client.msgs, 2)
	assert.Equal(t, "emberguard/readings/unit-3", client.msgs[0].topic)
	assert.Equal(t, byte(1), client.msgs[0].qos)

	var reading ReadingEvent
	require.NoError(t, json.Unmarshal(client.msgs[0].payload, &reading))
	assert.Equal(t, ReadingEvent{DeviceID: "unit-3", Temperature: 23, GasLevel: 42.5, Timestamp: at}, reading)

	var ev EpisodeEvent
	require.NoError(t, json.Unmarshal(client.msgs[1].payload, &ev))
	assert.Equal(t, "emberguard/episodes/unit-3", client.msgs[1].topic)
	assert.Equal(t, "ep-7", ev.EpisodeID)
	assert.Equal(t, int64(3000), ev.DurationMS)
	assert.Len(t, ev.Result.ScanResults, 1)

	counts, errs := p.Stats()
	assert.Equal(t, uint64(1), counts["emberguard/readings/unit-3"])
	assert.Zero(t, errs)

	require.NoError(t, p.Close())
	assert.True(t, client.disconnected)
}

func TestMQTTPublisher_NotConnected(t *testing.T) {
	p := newMQTTPublisher(MQTTConfig{DeviceID: "d"}, &fakeMQTT{}, log.Discard())

	err := p.RecordSample(context.Background(), sensor.Sample{})
	assert.ErrorIs(t, err, ErrNotConnected)

	_, errs := p.Stats()
	assert.Equal(t, uint64(1), errs)
}

func TestMQTTPublisher_TokenError(t *testing.T) {
	broken := errors.New("not authorized")
	p := newMQTTPublisher(MQTTConfig{DeviceID: "d", EpisodesTopic: "e"}, &fakeMQTT{connected: true, err: broken}, log.Discard())

	assert.ErrorIs(t, p.Report(context.Background(), episode()), broken)
}

func TestKafkaPublisher(t *testing.T) {
	w := &fakeKafka{}
	p := newKafkaPublisher(KafkaConfig{
		DeviceID:      "unit-3",
		ReadingsTopic: "emberguard.readings",
		EpisodesTopic: "emberguard.episodes",
	}, w, log.Discard())
	ctx := context.Background()

	require.NoError(t, p.RecordSample(ctx, sensor.Sample{GasLevel: 10, Temperature: 20, Timestamp: at}))
	require.NoError(t, p.Report(ctx, episode()))

	require.Len(t, w.msgs, 2)
	assert.Equal(t, "emberguard.readings", w.msgs[0].Topic)
	assert.Equal(t, "emberguard.episodes", w.msgs[1].Topic)
	assert.Equal(t, []byte("unit-3"), w.msgs[0].Key)
	assert.Equal(t, at, w.msgs[0].Time)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaPublisher_WriteError(t *testing.T) {
	p := newKafkaPublisher(KafkaConfig{ReadingsTopic: "r"}, &fakeKafka{err: kafka.LeaderNotAvailable}, log.Discard())

	err := p.RecordSample(context.Background(), sensor.Sample{})
	assert.ErrorIs(t, err, kafka.LeaderNotAvailable)
}

func TestNewKafkaPublisher_RequiresBrokers(t *testing.T) {
	_, err := NewKafkaPublisher(KafkaConfig{}, nil)
	assert.Error(t, err)
}

func TestMulti(t *testing.T) {
	good := &fakeKafka{}
	bad := &fakeKafka{err: errors.New("down")}
	m := NewMulti(log.Discard(),
		newKafkaPublisher(KafkaConfig{ReadingsTopic: "r"}, bad, nil),
		newKafkaPublisher(KafkaConfig{ReadingsTopic: "r"}, good, nil),
		Nop{},
	)

	err := m.RecordSample(context.Background(), sensor.Sample{})
	assert.Error(t, err)
	assert.Len(t, good.msgs, 1, "a failing publisher does not stop the others")

	require.NoError(t, m.Close())
	assert.True(t, good.closed)
	assert.True(t, bad.closed)
}
