package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/session"
)

// The interfaces below are satisfied by the repository and broker packages.

type ExamReader interface {
	GetDefinition(ctx context.Context, id uuid.UUID) (*model.ExamDefinition, error)
}

type QuestionReader interface {
	ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Question, error)
}

type EnrollmentChecker interface {
	CanAccess(ctx context.Context, examID uuid.UUID, userID int) (bool, error)
}

type SessionRecorder interface {
	Create(ctx context.Context, s *model.ExamSession) error
	MarkAborted(ctx context.Context, id uuid.UUID, reason string) error
	HasFinished(ctx context.Context, examID uuid.UUID, userID int) (bool, error)
}

type ResultStore interface {
	session.ResultStore
	Exists(ctx context.Context, sessionID uuid.UUID) (bool, error)
	GetBySession(ctx context.Context, sessionID uuid.UUID) (*model.GradingResult, error)
}

type AnswerStore interface {
	session.AnswerSink
	ClearAnswers(ctx context.Context, sessionID uuid.UUID) error
}

type ResultPublisher interface {
	PublishGraded(ctx context.Context, r *model.GradingResult) error
	PublishAborted(ctx context.Context, sessionID, examID string, userID int, reason string, at time.Time) error
}

type ViolationReader interface {
	CountsByUser(ctx context.Context, examID uuid.UUID) (map[int]map[model.ViolationKind]int, error)
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]model.ViolationEvent, error)
}

type LifecyclePublisher interface {
	PublishLifecycle(ctx context.Context, examID, sessionID uuid.UUID, userID int, kind string) error
}
