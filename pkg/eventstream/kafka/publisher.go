// Package kafka publishes pipeline stage events to a Kafka topic. Events are
// keyed by memory id so every stage of one memory lands on the same partition
// in order.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/papercomputeco/memorypalace/pkg/eventstream"
)

// messageWriter is the subset of *kafkago.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Config configures a Publisher.
type Config struct {
	Brokers []string
	Topic   string
}

// Publisher writes stage events as JSON messages.
type Publisher struct {
	writer messageWriter
	topic  string
}

// NewPublisher creates a Publisher backed by a kafka-go Writer.
func NewPublisher(cfg Config) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka publisher requires at least one broker")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka publisher requires a topic")
	}

	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}

	return newPublisher(w, cfg.Topic), nil
}

func newPublisher(w messageWriter, topic string) *Publisher {
	return &Publisher{writer: w, topic: topic}
}

// PublishStage writes one event. The write blocks until the broker
// acknowledges it or ctx is done.
func (p *Publisher) PublishStage(ctx context.Context, event *eventstream.StageEvent) error {
	if event == nil {
		return eventstream.ErrNilStageEvent
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling stage event: %w", err)
	}

	msg := kafkago.Message{
		Key:   []byte(event.MemoryID),
		Value: value,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publishing to %s: %w", p.topic, err)
	}

	return nil
}

// Close flushes pending writes and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
