package model

import (
	"time"

	"github.com/google/uuid"
)

// ViolationKind is the closed taxonomy of integrity events.
type ViolationKind string

const (
	ViolationExamStart         ViolationKind = "exam_start"
	ViolationExamEnd           ViolationKind = "exam_end"
	ViolationTabHidden         ViolationKind = "tab_hidden"
	ViolationTabVisible        ViolationKind = "tab_visible"
	ViolationWindowBlur        ViolationKind = "window_blur"
	ViolationWindowFocus       ViolationKind = "window_focus"
	ViolationCopyAttempt       ViolationKind = "copy_attempt"
	ViolationPasteAttempt      ViolationKind = "paste_attempt"
	ViolationScreenshotAttempt ViolationKind = "screenshot_attempt"
	ViolationDevtoolsOpen      ViolationKind = "devtools_open"
	ViolationRightClick        ViolationKind = "right_click"
	ViolationKeyboardShortcut  ViolationKind = "keyboard_shortcut"
	ViolationMultipleFaces     ViolationKind = "multiple_faces"
	ViolationNoFace            ViolationKind = "no_face"
	ViolationSEB               ViolationKind = "seb_violation"
)

// ViolationKinds lists every kind in a stable order.
var ViolationKinds = []ViolationKind{
	ViolationExamStart, ViolationExamEnd,
	ViolationTabHidden, ViolationTabVisible,
	ViolationWindowBlur, ViolationWindowFocus,
	ViolationCopyAttempt, ViolationPasteAttempt, ViolationScreenshotAttempt,
	ViolationDevtoolsOpen, ViolationRightClick, ViolationKeyboardShortcut,
	ViolationMultipleFaces, ViolationNoFace, ViolationSEB,
}

// Valid reports whether k belongs to the taxonomy.
func (k ViolationKind) Valid() bool {
	for _, known := range ViolationKinds {
		if k == known {
			return true
		}
	}
	return false
}

// IsLifecycle reports whether k only marks the start or end of monitoring.
func (k ViolationKind) IsLifecycle() bool {
	return k == ViolationExamStart || k == ViolationExamEnd
}

// ViolationEvent is an append-only integrity record.
type ViolationEvent struct {
	SessionID      uuid.UUID         `json:"session_id"`
	ExamID         uuid.UUID         `json:"exam_id"`
	UserID         int               `json:"user_id"`
	Kind           ViolationKind     `json:"kind"`
	Timestamp      time.Time         `json:"timestamp"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	ClientReported bool              `json:"client_reported"`
}

// LogViolationRequest is the body accepted by the violation-logging endpoint.
type LogViolationRequest struct {
	SessionID *uuid.UUID        `json:"session_id"`
	UserID    int               `json:"user_id" binding:"required,min=1"`
	Kind      string            `json:"kind" binding:"required,violation_kind"`
	Metadata  map[string]string `json:"metadata"`
	IsSEB     bool              `json:"is_seb_browser"`
}

// ViolationSummary aggregates non-lifecycle events per user for one exam.
type ViolationSummary struct {
	UserID          int                   `json:"user_id"`
	Violations      map[ViolationKind]int `json:"violations"`
	TotalViolations int                   `json:"total_violations"`
}
