// Package broker publishes grading outcomes to RabbitMQ for downstream consumers
// (gradebooks, notifications).
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-proctor/internal/model"
)

const (
	ExchangeName       = "exam.events"
	RoutingKeyGraded   = "exam.graded"
	RoutingKeyAborted  = "exam.aborted"
	publishTimeout     = 5 * time.Second
	contentTypeJSONMsg = "application/json"
)

// GradedEvent is the message body for RoutingKeyGraded.
type GradedEvent struct {
	EventType     string              `json:"event_type"`
	SessionID     string              `json:"session_id"`
	ExamID        string              `json:"exam_id"`
	UserID        int                 `json:"user_id"`
	Trigger       model.SubmitTrigger `json:"trigger"`
	TotalPoints   int                 `json:"total_points"`
	MaxPoints     int                 `json:"max_points"`
	Percentage    int                 `json:"percentage"`
	PendingReview int                 `json:"pending_review"`
	GradedAt      time.Time           `json:"graded_at"`
}

// AbortedEvent is the message body for RoutingKeyAborted.
type AbortedEvent struct {
	EventType string    `json:"event_type"`
	SessionID string    `json:"session_id"`
	ExamID    string    `json:"exam_id"`
	UserID    int       `json:"user_id"`
	Reason    string    `json:"reason"`
	At        time.Time `json:"at"`
}

// Publisher sends exam events to a topic exchange. With an empty URI it is
// disabled and every publish is a no-op.
type Publisher struct {
	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
	enabled bool
	log     zerolog.Logger
}

func NewPublisher(uri string, log zerolog.Logger) (*Publisher, error) {
	log = log.With().Str("component", "broker").Logger()
	if uri == "" {
		log.Warn().Msg("RabbitMQ URI is empty, result publishing is disabled")
		return &Publisher{log: log}, nil
	}

	conn, err := amqp.Dial(uri)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}
	err = channel.ExchangeDeclare(
		ExchangeName, // name
		"topic",      // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	log.Info().Str("exchange", ExchangeName).Msg("RabbitMQ connected")
	return &Publisher{conn: conn, channel: channel, enabled: true, log: log}, nil
}

// Enabled reports whether messages are actually sent.
func (p *Publisher) Enabled() bool { return p.enabled }

func (p *Publisher) PublishGraded(ctx context.Context, r *model.GradingResult) error {
	return p.publish(ctx, RoutingKeyGraded, NewGradedEvent(r))
}

func (p *Publisher) PublishAborted(ctx context.Context, sessionID, examID string, userID int, reason string, at time.Time) error {
	return p.publish(ctx, RoutingKeyAborted, AbortedEvent{
		EventType: RoutingKeyAborted,
		SessionID: sessionID,
		ExamID:    examID,
		UserID:    userID,
		Reason:    reason,
		At:        at,
	})
}

// NewGradedEvent builds the message for a stored result.
func NewGradedEvent(r *model.GradingResult) GradedEvent {
	return GradedEvent{
		EventType:     RoutingKeyGraded,
		SessionID:     r.SessionID.String(),
		ExamID:        r.ExamID.String(),
		UserID:        r.UserID,
		Trigger:       r.Trigger,
		TotalPoints:   r.TotalPoints,
		MaxPoints:     r.MaxPoints,
		Percentage:    r.Percentage,
		PendingReview: r.PendingReview,
		GradedAt:      r.GradedAt,
	}
}

func (p *Publisher) publish(ctx context.Context, routingKey string, event any) error {
	if !p.enabled {
		return nil
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	// amqp channels are not safe for concurrent publishing.
	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.channel.PublishWithContext(
		pubCtx,
		ExchangeName,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  contentTypeJSONMsg,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", routingKey, err)
	}
	p.log.Debug().Str("routing_key", routingKey).Msg("Published event")
	return nil
}

func (p *Publisher) Close() error {
	if !p.enabled {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.channel.Close(); err != nil {
		p.conn.Close()
		return err
	}
	return p.conn.Close()
}
