// Package notification publishes consultation lifecycle events for downstream
// consumers such as supervisor inboxes and reporting.
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// Event types emitted after a lifecycle transition commits.
const (
	EventStarted            = "consultation.started"
	EventReviewInitiated    = "consultation.review_initiated"
	EventReviewFinalized    = "consultation.review_finalized"
	EventSubmittedForReview = "consultation.submitted_for_review"
	EventReturnedForChanges = "consultation.returned_for_changes"
	EventCompleted          = "consultation.completed"
	EventGraded             = "grading.upserted"
	// EventAudited carries one state-changing API call for the audit trail.
	EventAudited = "api.write_audited"
)

// DefaultPublishTimeout bounds one Publish call so a broker outage costs a
// request at most this long.
const DefaultPublishTimeout = 2 * time.Second

type Event struct {
	Type          string            `json:"type"`
	AppointmentID string            `json:"appointment_id"`
	VersionID     string            `json:"version_id,omitempty"`
	ActorID       string            `json:"actor_id"`
	OccurredAt    time.Time         `json:"occurred_at"`
	Attributes    map[string]string `json:"attributes,omitempty"`
}

type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// KafkaPublisher writes events keyed by appointment id so one encounter's events
// stay ordered within a partition.
type KafkaPublisher struct {
	writer  *kafka.Writer
	timeout time.Duration
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			BatchTimeout: 50 * time.Millisecond,
			WriteTimeout: DefaultPublishTimeout,
			ReadTimeout:  DefaultPublishTimeout,
			MaxAttempts:  3,
		},
		timeout: DefaultPublishTimeout,
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, evt Event) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	value, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(evt.AppointmentID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(evt.Type)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write %s: %w", evt.Type, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// LogPublisher is used when no broker is configured.
type LogPublisher struct {
	logger zerolog.Logger
}

func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, evt Event) error {
	p.logger.Info().
		Str("event", evt.Type).
		Str("appointment_id", evt.AppointmentID).
		Str("version_id", evt.VersionID).
		Str("actor_id", evt.ActorID).
		Msg("lifecycle event")
	return nil
}

// Recorder keeps events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, evt Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

// Events returns a copy of what was published so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Types lists the recorded event types in publish order.
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}
