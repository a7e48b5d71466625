package model

import (
	"time"

	"github.com/google/uuid"
)

// CaptureRecord points at one stored proctoring snapshot. The bytes live in blob storage.
type CaptureRecord struct {
	SessionID   uuid.UUID `json:"session_id"`
	ExamID      uuid.UUID `json:"exam_id"`
	UserID      int       `json:"user_id"`
	Timestamp   time.Time `json:"timestamp"`
	PayloadRef  string    `json:"payload_ref"`
	ContentType string    `json:"content_type"`
}
