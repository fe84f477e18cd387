package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"sak/internal/metrics"
	"sak/pkg/domain"
	"sak/pkg/logger"

	"github.com/segmentio/kafka-go"
)

const DefaultTopic = "kyc-status"

// MessageWriter is the part of kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer  MessageWriter
	timeout time.Duration
	logger  logger.Logger
	metrics *metrics.Metrics
}

// NewKafkaWriter builds a synchronous writer for a comma-separated broker list.
func NewKafkaWriter(brokers, topic string) *kafka.Writer {
	if topic == "" {
		topic = DefaultTopic
	}
	var addrs []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			addrs = append(addrs, b)
		}
	}
	return &kafka.Writer{
		Addr:         kafka.TCP(addrs...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		WriteTimeout: 10 * time.Second,
	}
}

func NewKafkaPublisher(w MessageWriter, log logger.Logger, m *metrics.Metrics) *KafkaPublisher {
	if log == nil {
		log = logger.NewNop()
	}
	if m == nil {
		m = metrics.NopMetrics()
	}
	return &KafkaPublisher{writer: w, timeout: 5 * time.Second, logger: log, metrics: m}
}

// Publish writes the event keyed by wallet so one wallet's events stay ordered
// within a partition.
func (p *KafkaPublisher) Publish(ctx context.Context, event domain.KYCStatusEvent) error {
	if p == nil || p.writer == nil {
		return nil
	}
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.Wallet),
		Value: value,
		Time:  event.Timestamp,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(event.Event)},
			{Key: "tier", Value: []byte(event.Tier)},
		},
	})
	result := "delivered"
	if err != nil {
		result = "failed"
		p.logger.Warn("Kafka publish failed", map[string]interface{}{
			"event":     "kafka_publish_failed",
			"kyc_event": event.Event,
			"error":     err.Error(),
		})
	}
	p.metrics.EventDeliveries.With("sink", "kafka", "result", result).Add(1)
	return err
}

func (p *KafkaPublisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
