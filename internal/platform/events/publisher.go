// Package events publishes visit stage changes to downstream systems.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/ehr/opdflow/pkg/flowmodel"
)

// Publisher delivers one stage-change event.
type Publisher interface {
	Publish(ctx context.Context, ev flowmodel.StageChangeEvent) error
	Close() error
}

// messageWriter is the part of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events to a Kafka topic. Messages are keyed by
// tenant and visit so one visit's events stay ordered on a partition.
type KafkaPublisher struct {
	w     messageWriter
	topic string
}

// NewKafkaPublisher returns a publisher writing to topic on brokers.
func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka publisher: no brokers")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka publisher: no topic")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
	}
	return &KafkaPublisher{w: w, topic: topic}, nil
}

func newKafkaPublisherWithWriter(w messageWriter, topic string) *KafkaPublisher {
	return &KafkaPublisher{w: w, topic: topic}
}

// Message builds the Kafka message for ev.
func Message(ev flowmodel.StageChangeEvent) (kafka.Message, error) {
	value, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal stage event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(ev.TenantID + "/" + ev.FlowID),
		Value: value,
		Time:  ev.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(ev.Type)},
			{Key: "tenant-id", Value: []byte(ev.TenantID)},
		},
	}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev flowmodel.StageChangeEvent) error {
	msg, err := Message(ev)
	if err != nil {
		return err
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write to %s: %w", p.topic, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}

// LogPublisher writes events to the log. It is used when no broker is
// configured.
type LogPublisher struct {
	logger zerolog.Logger
}

func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, ev flowmodel.StageChangeEvent) error {
	p.logger.Info().
		Str("type", ev.Type).
		Str("tenant_id", ev.TenantID).
		Str("flow_id", ev.FlowID).
		Str("action", string(ev.Action)).
		Str("from", string(ev.From)).
		Str("to", string(ev.To)).
		Int("version", ev.Version).
		Msg("stage changed")
	return nil
}

func (p *LogPublisher) Close() error { return nil }
