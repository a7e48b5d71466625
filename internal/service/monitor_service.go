package service

import (
	"context"
	"slices"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/session"
)

// MonitorService builds the live proctoring view of one exam.
type MonitorService struct {
	registry   *session.Registry
	violations *ViolationService
	log        zerolog.Logger
}

// NewMonitorService creates a new MonitorService.
func NewMonitorService(registry *session.Registry, violations *ViolationService, log zerolog.Logger) *MonitorService {
	return &MonitorService{
		registry:   registry,
		violations: violations,
		log:        log.With().Str("component", "monitor_service").Logger(),
	}
}

// LiveSession is one in-progress attempt as seen on the proctor dashboard.
type LiveSession struct {
	SessionID        uuid.UUID          `json:"session_id"`
	UserID           int                `json:"user_id"`
	State            model.SessionState `json:"state"`
	RemainingSeconds float64            `json:"remaining_seconds"`
	AnsweredCount    int                `json:"answered_count"`
	ViolationCount   int                `json:"violation_count"`
}

// MonitorSnapshot is the initial state pushed to a proctor dashboard.
type MonitorSnapshot struct {
	ExamID          uuid.UUID                `json:"exam_id"`
	Live            []LiveSession            `json:"live"`
	Violations      []model.ViolationSummary `json:"violations"`
	TotalViolations int                      `json:"total_violations"`
}

// Snapshot combines the live sessions on this instance with stored violation counts.
// Stored counts are best-effort.
func (s *MonitorService) Snapshot(ctx context.Context, examID uuid.UUID) *MonitorSnapshot {
	snap := &MonitorSnapshot{ExamID: examID, Live: s.LiveSessions(examID)}

	summary, err := s.violations.Summary(ctx, examID)
	if err != nil {
		s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Failed to load violation summary")
		return snap
	}
	snap.Violations = summary
	for _, v := range summary {
		snap.TotalViolations += v.TotalViolations
	}
	return snap
}

// LiveSessions lists the exam's live sessions ordered by user id.
func (s *MonitorService) LiveSessions(examID uuid.UUID) []LiveSession {
	live := s.registry.ForExam(examID)
	out := make([]LiveSession, 0, len(live))
	for _, o := range live {
		v := o.View()
		out = append(out, LiveSession{
			SessionID:        v.SessionID,
			UserID:           o.UserID(),
			State:            v.State,
			RemainingSeconds: v.RemainingSeconds,
			AnsweredCount:    len(v.Answers),
			ViolationCount:   v.ViolationCount,
		})
	}
	slices.SortFunc(out, func(a, b LiveSession) int { return a.UserID - b.UserID })
	return out
}
