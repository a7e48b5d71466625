package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// MonitorMessage is published on an exam's monitor channel for live proctoring dashboards.
type MonitorMessage struct {
	Type      string    `json:"type"`
	SessionID uuid.UUID `json:"session_id"`
	UserID    int       `json:"user_id"`
	Kind      string    `json:"kind,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// EventQueue is the durable event sink: events are pushed onto Redis lists that the
// event workers batch into Postgres, and mirrored on the exam's monitor channel.
type EventQueue struct {
	rdb *redis.Client
}

// NewEventQueue creates a new EventQueue.
func NewEventQueue(rdb *redis.Client) *EventQueue {
	return &EventQueue{rdb: rdb}
}

func (q *EventQueue) AppendViolation(ctx context.Context, e model.ViolationEvent) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal violation: %w", err)
	}
	return q.push(ctx, config.WorkerKey.PersistViolationsQueue, data, e.ExamID, MonitorMessage{
		Type:      "violation",
		SessionID: e.SessionID,
		UserID:    e.UserID,
		Kind:      string(e.Kind),
		Timestamp: e.Timestamp,
	})
}

func (q *EventQueue) AppendCapture(ctx context.Context, c model.CaptureRecord) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal capture: %w", err)
	}
	return q.push(ctx, config.WorkerKey.PersistCapturesQueue, data, c.ExamID, MonitorMessage{
		Type:      "capture",
		SessionID: c.SessionID,
		UserID:    c.UserID,
		Timestamp: c.Timestamp,
	})
}

// PublishLifecycle announces a session opening or finishing on the exam's monitor channel.
// Lifecycle messages are not persisted by the event workers.
func (q *EventQueue) PublishLifecycle(ctx context.Context, examID, sessionID uuid.UUID, userID int, kind string) error {
	live, err := json.Marshal(MonitorMessage{
		Type:      "session",
		SessionID: sessionID,
		UserID:    userID,
		Kind:      kind,
		Timestamp: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("marshal monitor message: %w", err)
	}
	return q.rdb.Publish(ctx, config.CacheKey.ExamMonitorChannel(examID.String()), live).Err()
}

func (q *EventQueue) push(ctx context.Context, queue string, data []byte, examID uuid.UUID, msg MonitorMessage) error {
	live, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal monitor message: %w", err)
	}

	pipe := q.rdb.Pipeline()
	pipe.RPush(ctx, queue, data)
	pipe.Publish(ctx, config.CacheKey.ExamMonitorChannel(examID.String()), live)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("enqueue %s: %w", queue, err)
	}
	return nil
}

// AnswerQueue hands accepted answers to the autosave worker.
type AnswerQueue struct {
	rdb *redis.Client
	now func() time.Time
}

// NewAnswerQueue creates a new AnswerQueue.
func NewAnswerQueue(rdb *redis.Client) *AnswerQueue {
	return &AnswerQueue{rdb: rdb, now: time.Now}
}

// queuedAnswer mirrors worker.AnswerPayload.
type queuedAnswer struct {
	SessionID  uuid.UUID    `json:"session_id"`
	QuestionID uuid.UUID    `json:"question_id"`
	Answer     model.Answer `json:"answer"`
	SavedAt    time.Time    `json:"saved_at"`
}

func (q *AnswerQueue) SaveAnswer(ctx context.Context, sessionID, questionID uuid.UUID, answer model.Answer) error {
	data, err := json.Marshal(queuedAnswer{
		SessionID:  sessionID,
		QuestionID: questionID,
		Answer:     answer,
		SavedAt:    q.now(),
	})
	if err != nil {
		return err
	}

	pipe := q.rdb.Pipeline()
	pipe.HSet(ctx, config.CacheKey.SessionAnswersKey(sessionID.String()), questionID.String(), data)
	pipe.RPush(ctx, config.WorkerKey.PersistAnswersQueue, data)
	_, err = pipe.Exec(ctx)
	return err
}

// ClearAnswers removes the live answer hash of a finished session.
func (q *AnswerQueue) ClearAnswers(ctx context.Context, sessionID uuid.UUID) error {
	return q.rdb.Del(ctx, config.CacheKey.SessionAnswersKey(sessionID.String())).Err()
}
