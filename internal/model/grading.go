package model

import (
	"time"

	"github.com/google/uuid"
)

// QuestionResult is the per-question grading breakdown.
type QuestionResult struct {
	QuestionID    uuid.UUID    `json:"question_id"`
	Type          QuestionType `json:"type"`
	Submitted     Answer       `json:"submitted"`
	IsCorrect     bool         `json:"is_correct"`
	PointsAwarded int          `json:"points_awarded"`
	MaxPoints     int          `json:"max_points"`
	NeedsReview   bool         `json:"needs_review"`
}

// GradingResult is created exactly once per session and never modified afterwards.
type GradingResult struct {
	SessionID     uuid.UUID        `json:"session_id"`
	ExamID        uuid.UUID        `json:"exam_id"`
	UserID        int              `json:"user_id"`
	Trigger       SubmitTrigger    `json:"trigger"`
	Questions     []QuestionResult `json:"questions"`
	TotalPoints   int              `json:"total_points"`
	MaxPoints     int              `json:"max_points"`
	Percentage    int              `json:"percentage"`
	PendingReview int              `json:"pending_review"`
	Unmatched     []string         `json:"unmatched,omitempty"`
	GradedAt      time.Time        `json:"graded_at"`
}

// OpticalAnswersRequest grades a sheet whose answers were read by hand,
// keyed by zero-based question index.
type OpticalAnswersRequest struct {
	UserID  int            `json:"user_id" binding:"required,min=1"`
	Answers map[int]string `json:"answers" binding:"required"`
}
