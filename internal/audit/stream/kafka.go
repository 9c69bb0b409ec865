package stream

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/segmentio/kafka-go"

	"accessplane/internal/audit/domain"
)

// Producer mirrors audit entries to an external stream. The database row is
// the source of truth; mirroring is best effort.
type Producer interface {
	Emit(ctx context.Context, e *domain.Entry) error
	Close() error
}

// KafkaProducer implements Producer using segmentio/kafka-go.
type KafkaProducer struct {
	writer *kafka.Writer
	topic  string
}

// NewKafkaProducer creates a Kafka producer that mirrors audit entries to the
// given topic. Returns nil (a no-op producer) when brokers or topic are unset.
// Call Close when shutting down.
func NewKafkaProducer(brokers []string, topic string) (*KafkaProducer, error) {
	if len(brokers) == 0 || topic == "" {
		return nil, nil
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 50 * time.Millisecond,
	}
	return &KafkaProducer{writer: writer, topic: topic}, nil
}

// Emit serializes the entry as JSON and writes it to the Kafka topic, keyed by
// actor id so one actor's events stay ordered within a partition. Uses the
// request context with a short timeout so slow Kafka does not block callers
// indefinitely.
func (p *KafkaProducer) Emit(ctx context.Context, e *domain.Entry) error {
	if p == nil || p.writer == nil || e == nil {
		return nil
	}
	payload, err := json.Marshal(map[string]any{
		"id":          e.ID,
		"actor_id":    e.ActorID,
		"actor_email": e.ActorEmail,
		"action":      string(e.Action),
		"resource":    e.Resource,
		"resource_id": e.ResourceID,
		"metadata":    e.Metadata,
		"ip_address":  e.IPAddress,
		"user_agent":  e.UserAgent,
		"timestamp":   e.Timestamp.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err = p.writer.WriteMessages(writeCtx, kafka.Message{
		Key:   []byte(e.ActorID),
		Value: payload,
	})
	if err != nil {
		log.Printf("audit: kafka emit failed: %v", err)
		return err
	}
	return nil
}

// Close closes the Kafka writer. Safe to call multiple times.
func (p *KafkaProducer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
