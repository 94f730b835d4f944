// Package events publishes committed case activity to a Kafka topic so other
// services (notifications, reporting) can follow case timelines without
// polling the database.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/aldoetobex/legal-aid-backend/pkg/models"
)

// CaseEvent is the message body.
type CaseEvent struct {
	ActivityID int64           `json:"activity_id"`
	CaseID     uuid.UUID       `json:"case_id"`
	CaseNumber string          `json:"case_number,omitempty"`
	ActorID    uuid.UUID       `json:"actor_id"`
	Action     string          `json:"action"`
	Details    json.RawMessage `json:"details,omitempty"`
	At         time.Time       `json:"at"`
}

// FromActivity builds the event for a recorded timeline entry.
func FromActivity(a *models.CaseActivity, caseNumber string) CaseEvent {
	return CaseEvent{
		ActivityID: a.ID,
		CaseID:     a.CaseID,
		CaseNumber: caseNumber,
		ActorID:    a.ActorID,
		Action:     a.Action,
		Details:    json.RawMessage(a.Details),
		At:         a.CreatedAt,
	}
}

// Publisher sends case events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, ev CaseEvent) error
	Close() error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, CaseEvent) error { return nil }
func (NopPublisher) Close() error                             { return nil }

// KafkaPublisher writes one message per event, keyed by case id so a case's
// events stay ordered within a partition. Writes are asynchronous: Publish
// only enqueues, and delivery failures are logged by the completion hook.
type KafkaPublisher struct {
	w   *kafka.Writer
	log *slog.Logger
}

// NewKafkaPublisher creates a writer for topic on brokers.
func NewKafkaPublisher(brokers []string, topic string, log *slog.Logger) *KafkaPublisher {
	if log == nil {
		log = slog.Default()
	}
	p := &KafkaPublisher{log: log}
	p.w = &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		BatchTimeout: 10 * time.Millisecond,
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
		Completion:   p.completed,
	}
	return p
}

func (p *KafkaPublisher) completed(messages []kafka.Message, err error) {
	if err == nil {
		return
	}
	for _, m := range messages {
		p.log.Warn("case event not delivered", "topic", p.w.Topic, "case_id", string(m.Key), "error", err)
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev CaseEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal case event: %w", err)
	}
	return p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.CaseID.String()),
		Value: body,
		Headers: []kafka.Header{
			{Key: "action", Value: []byte(ev.Action)},
		},
	})
}

func (p *KafkaPublisher) Close() error { return p.w.Close() }

// New returns a Kafka publisher, or a no-op one when no brokers are configured.
func New(brokers []string, topic string, log *slog.Logger) Publisher {
	if len(brokers) == 0 {
		return NopPublisher{}
	}
	return NewKafkaPublisher(brokers, topic, log)
}
