package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/ayusman/emberguard/internal/response"
	"github.com/ayusman/emberguard/internal/sensor"
)

// KafkaConfig configures a KafkaPublisher.
type KafkaConfig struct {
	Brokers       []string
	DeviceID      string
	ReadingsTopic string
	EpisodesTopic string
}

type kafkaMessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes readings and episodes keyed by device id, so each
// device's messages stay ordered within a partition.
type KafkaPublisher struct {
	cfg    KafkaConfig
	writer kafkaMessageWriter
	logger *slog.Logger
}

// NewKafkaPublisher creates a publisher. The writer connects lazily on the
// first write.
func NewKafkaPublisher(cfg KafkaConfig, logger *slog.Logger) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           50 * time.Millisecond,
		WriteTimeout:           5 * time.Second,
		AllowAutoTopicCreation: true,
	}
	return newKafkaPublisher(cfg, w, logger), nil
}

func newKafkaPublisher(cfg KafkaConfig, w kafkaMessageWriter, logger *slog.Logger) *KafkaPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaPublisher{cfg: cfg, writer: w, logger: logger}
}

// RecordSample writes one reading.
func (p *KafkaPublisher) RecordSample(ctx context.Context, s sensor.Sample) error {
	value, err := readingEvent(p.cfg.DeviceID, s)
	if err != nil {
		return err
	}
	return p.write(ctx, p.cfg.ReadingsTopic, value, s.Timestamp)
}

// Report writes one episode summary.
func (p *KafkaPublisher) Report(ctx context.Context, r *response.EpisodeResult) error {
	value, err := episodeEvent(p.cfg.DeviceID, r)
	if err != nil {
		return err
	}
	return p.write(ctx, p.cfg.EpisodesTopic, value, r.FinishedAt)
}

func (p *KafkaPublisher) write(ctx context.Context, topic string, value []byte, at time.Time) error {
	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(p.cfg.DeviceID),
		Value: value,
		Time:  at,
		Headers: []kafka.Header{
			{Key: "content-type", Value: []byte("application/json")},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write %s: %w", topic, err)
	}
	p.logger.Debug("telemetry written", "topic", topic, "size", len(value))
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
