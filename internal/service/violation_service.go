package service

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strconv"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-proctor/internal/integrity"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/session"
)

// LiveSessions finds sessions held in memory by this instance.
type LiveSessions interface {
	Get(id uuid.UUID) (*session.Orchestrator, bool)
}

// ViolationService accepts client-reported violations and summarizes them for instructors.
type ViolationService struct {
	emitter    integrity.Emitter
	violations ViolationReader
	sessions   LiveSessions
	clock      clockwork.Clock
	log        zerolog.Logger
}

// NewViolationService creates a new ViolationService. sessions may be nil, in
// which case every report is stored without a session.
func NewViolationService(emitter integrity.Emitter, violations ViolationReader, sessions LiveSessions, clk clockwork.Clock, log zerolog.Logger) *ViolationService {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &ViolationService{
		emitter:    emitter,
		violations: violations,
		sessions:   sessions,
		clock:      clk,
		log:        log.With().Str("component", "violation_service").Logger(),
	}
}

// ReportContext carries request details stored alongside a reported violation.
type ReportContext struct {
	ClientIP  string
	UserAgent string
}

// Log queues a client-reported violation. It never blocks on storage and
// reports whether the event was accepted for delivery.
func (s *ViolationService) Log(examID uuid.UUID, req model.LogViolationRequest, rc ReportContext) bool {
	kind := model.ViolationKind(req.Kind)
	if !kind.Valid() || kind.IsLifecycle() {
		s.log.Debug().Str("kind", req.Kind).Msg("Dropped unknown or server-only violation kind")
		return false
	}

	md := make(map[string]string, len(req.Metadata)+3)
	maps.Copy(md, req.Metadata)
	if rc.ClientIP != "" {
		md["ip_address"] = rc.ClientIP
	}
	if rc.UserAgent != "" {
		md["user_agent"] = rc.UserAgent
	}
	md["is_seb_browser"] = strconv.FormatBool(req.IsSEB)

	if req.SessionID != nil {
		if s.reportToSession(examID, *req.SessionID, req.UserID, kind, md) {
			s.log.Info().
				Str("exam_id", examID.String()).
				Str("session_id", req.SessionID.String()).
				Int("user_id", req.UserID).
				Str("kind", req.Kind).
				Msg("Security violation reported")
			return true
		}
		s.log.Debug().
			Str("session_id", req.SessionID.String()).
			Int("user_id", req.UserID).
			Msg("Violation names no active session of this user; storing without session")
	}

	e := model.ViolationEvent{
		ExamID:         examID,
		UserID:         req.UserID,
		Kind:           kind,
		Timestamp:      s.clock.Now(),
		Metadata:       md,
		ClientReported: true,
	}
	s.emitter.EmitViolation(e)

	s.log.Info().
		Str("exam_id", examID.String()).
		Int("user_id", req.UserID).
		Str("kind", req.Kind).
		Msg("Security violation reported")
	return true
}

// reportToSession hands the event to the live session so it counts toward the
// abort threshold and is stamped before any grading time.
func (s *ViolationService) reportToSession(examID, sessionID uuid.UUID, userID int, kind model.ViolationKind, md map[string]string) bool {
	if s.sessions == nil {
		return false
	}
	o, ok := s.sessions.Get(sessionID)
	if !ok || o.UserID() != userID || o.Exam().ID != examID {
		return false
	}
	return o.ReportViolation(kind, md)
}

// Summary returns per-user violation counts for examID ordered by user id.
// Lifecycle markers are not counted.
func (s *ViolationService) Summary(ctx context.Context, examID uuid.UUID) ([]model.ViolationSummary, error) {
	counts, err := s.violations.CountsByUser(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("count violations: %w", err)
	}

	users := slices.Sorted(maps.Keys(counts))
	out := make([]model.ViolationSummary, 0, len(users))
	for _, uid := range users {
		sum := model.ViolationSummary{UserID: uid, Violations: make(map[model.ViolationKind]int)}
		for kind, n := range counts[uid] {
			if kind.IsLifecycle() {
				continue
			}
			sum.Violations[kind] = n
			sum.TotalViolations += n
		}
		out = append(out, sum)
	}
	return out, nil
}

// SessionLog returns the stored violations of one session in time order.
func (s *ViolationService) SessionLog(ctx context.Context, sessionID uuid.UUID) ([]model.ViolationEvent, error) {
	events, err := s.violations.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list violations: %w", err)
	}
	return events, nil
}
