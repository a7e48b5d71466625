package model

import (
	"time"

	"github.com/google/uuid"
)

// ExamDefinition is the read-only view of an exam the session engine runs against.
// It must not change once a session has started.
type ExamDefinition struct {
	ID              uuid.UUID        `json:"id"`
	Title           string           `json:"title"`
	DurationMinutes int              `json:"duration_minutes"`
	ScheduledStart  *time.Time       `json:"scheduled_start,omitempty"`
	ScheduledEnd    *time.Time       `json:"scheduled_end,omitempty"`
	QuestionIDs     []uuid.UUID      `json:"question_ids"`
	Security        SecuritySettings `json:"security"`
	RequiresSEB     bool             `json:"requires_seb"`
	IsOpticalForm   bool             `json:"is_optical_form"`
}

// Duration returns the configured exam length.
func (e *ExamDefinition) Duration() time.Duration {
	return time.Duration(e.DurationMinutes) * time.Minute
}

// IsDraft reports whether the exam has no scheduled window at all.
func (e *ExamDefinition) IsDraft() bool {
	return e.ScheduledStart == nil && e.ScheduledEnd == nil
}

// IsOpen reports whether now falls inside [ScheduledStart, ScheduledEnd).
// A missing bound is treated as unbounded on that side.
func (e *ExamDefinition) IsOpen(now time.Time) bool {
	if e.ScheduledStart != nil && now.Before(*e.ScheduledStart) {
		return false
	}
	if e.ScheduledEnd != nil && !now.Before(*e.ScheduledEnd) {
		return false
	}
	return true
}

// SecuritySettings carries the locked-browser restrictions authored for an exam.
//
// The capability flags use restriction naming (true = blocked/hidden), matching how the
// authoring UI presents them as risk toggles. The lock profile generator inverts them into
// the browser's "enable"/"allow" keys.
type SecuritySettings struct {
	AllowedURLs     []string `json:"allowed_urls"`
	BlockedURLs     []string `json:"blocked_urls"`
	BlockClipboard  bool     `json:"block_clipboard"`
	BlockScreenshot bool     `json:"block_screenshot"`
	BlockDevTools   bool     `json:"block_dev_tools"`
	BlockRightClick bool     `json:"block_right_click"`
	BlockSpellCheck bool     `json:"block_spell_check"`
	HideTaskbar     bool     `json:"hide_taskbar"`
	ExitCredential  *string  `json:"exit_credential,omitempty"`
	IntegrityKey    *string  `json:"integrity_key,omitempty"`
}
