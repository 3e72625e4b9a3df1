package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is the subset of a Kafka producer the publisher needs
type MessageWriter interface {
	WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error
	Close() error
}

// KafkaProducer lazily manages writers per topic.
type KafkaProducer struct {
	brokers []string
	mu      sync.Mutex
	writers map[string]*kafka.Writer
}

// NewKafkaProducer creates a KafkaProducer.
func NewKafkaProducer(brokers []string) *KafkaProducer {
	return &KafkaProducer{
		brokers: brokers,
		writers: make(map[string]*kafka.Writer),
	}
}

// WriteMessages writes messages to the given topic, creating a writer if necessary.
func (p *KafkaProducer) WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error {
	return p.writerForTopic(topic).WriteMessages(ctx, msgs...)
}

func (p *KafkaProducer) writerForTopic(topic string) *kafka.Writer {
	p.mu.Lock()
	defer p.mu.Unlock()

	if writer, ok := p.writers[topic]; ok {
		return writer
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(p.brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	p.writers[topic] = writer
	return writer
}

// Close releases all writers.
func (p *KafkaProducer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for topic, writer := range p.writers {
		if err := writer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(p.writers, topic)
	}
	return firstErr
}

// KafkaPublisher publishes events as JSON, keyed by athlete so one athlete's
// activities stay ordered within a partition.
type KafkaPublisher struct {
	writer MessageWriter
	topic  string
}

// NewKafkaPublisher creates a KafkaPublisher writing to topic.
func NewKafkaPublisher(writer MessageWriter, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: writer, topic: topic}
}

// PublishActivityIngested writes one message for e.
func (p *KafkaPublisher) PublishActivityIngested(ctx context.Context, e ActivityIngested) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(e.OwnerUserID, 10)),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(EventTypeActivityIngested)},
		},
	}
	if err := p.writer.WriteMessages(ctx, p.topic, msg); err != nil {
		return fmt.Errorf("publishing %s: %w", EventTypeActivityIngested, err)
	}
	return nil
}

// Close closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
