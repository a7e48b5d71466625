package model

import (
	"time"

	"github.com/google/uuid"
)

// SessionState enumerates exam session states.
type SessionState string

const (
	SessionStateCreated   SessionState = "CREATED"
	SessionStateActive    SessionState = "ACTIVE"
	SessionStateSubmitted SessionState = "SUBMITTED"
	SessionStateExpired   SessionState = "EXPIRED"
	SessionStateAborted   SessionState = "ABORTED"
)

// Terminal reports whether no further transition can happen from s.
func (s SessionState) Terminal() bool {
	return s == SessionStateSubmitted || s == SessionStateExpired || s == SessionStateAborted
}

// SubmitTrigger records what ended a session.
type SubmitTrigger string

const (
	TriggerExplicit SubmitTrigger = "explicit"
	TriggerTimer    SubmitTrigger = "timer"
	TriggerOptical  SubmitTrigger = "optical"
)

// ExamSession represents one student's attempt at one exam.
type ExamSession struct {
	ID         uuid.UUID            `json:"id"`
	ExamID     uuid.UUID            `json:"exam_id"`
	UserID     int                  `json:"user_id"`
	State      SessionState         `json:"state"`
	StartedAt  time.Time            `json:"started_at"`
	DeadlineAt time.Time            `json:"deadline_at"`
	Answers    map[uuid.UUID]Answer `json:"answers"`
}

// SessionView is what the student portal shows for a live or finished session.
type SessionView struct {
	SessionID        uuid.UUID         `json:"session_id"`
	ExamID           uuid.UUID         `json:"exam_id"`
	State            SessionState      `json:"state"`
	StartedAt        time.Time         `json:"started_at"`
	DeadlineAt       time.Time         `json:"deadline_at"`
	RemainingSeconds float64           `json:"remaining_seconds"`
	Answers          map[string]Answer `json:"answers"`
	ViolationCount   int               `json:"violation_count"`
	Result           *GradingResult    `json:"result,omitempty"`
}

// SubmitRequest is the payload for an explicit submission.
type SubmitRequest struct {
	Confirm bool `json:"confirm"`
}

// SaveAnswerRequest is the payload for autosaving one answer.
type SaveAnswerRequest struct {
	Answer Answer `json:"answer"`
}
