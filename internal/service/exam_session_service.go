package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/stemsi/exstem-proctor/internal/capture"
	"github.com/stemsi/exstem-proctor/internal/integrity"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/repository"
	"github.com/stemsi/exstem-proctor/internal/session"
)

// terminalTimeout bounds the bookkeeping that follows a session's end.
const terminalTimeout = 10 * time.Second

// ExamSessionDeps are the collaborators of ExamSessionService. Captures,
// Answers, Publisher and Lifecycle are optional.
type ExamSessionDeps struct {
	Exams       ExamReader
	Questions   QuestionReader
	Enrollments EnrollmentChecker
	Sessions    SessionRecorder
	Results     ResultStore
	Events      session.Events
	Captures    capture.Store
	Answers     AnswerStore
	Publisher   ResultPublisher
	Lifecycle   LifecyclePublisher
	Clock       clockwork.Clock
	Policy      session.Policy
	// MaxFrameBytes rejects larger camera frames. Zero means unlimited.
	MaxFrameBytes int64
}

// ExamSessionService opens exam sessions and routes student actions to the
// live session they belong to.
type ExamSessionService struct {
	deps     ExamSessionDeps
	registry *session.Registry
	log      zerolog.Logger
}

// NewExamSessionService creates a new ExamSessionService.
func NewExamSessionService(deps ExamSessionDeps, registry *session.Registry, log zerolog.Logger) *ExamSessionService {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	return &ExamSessionService{
		deps:     deps,
		registry: registry,
		log:      log.With().Str("component", "exam_session_service").Logger(),
	}
}

// OpenedSession is returned to the student when an exam is opened or resumed.
type OpenedSession struct {
	Session   model.SessionView      `json:"session"`
	Questions []model.PublicQuestion `json:"questions"`
	Resumed   bool                   `json:"resumed"`
}

func newOpenedSession(o *session.Orchestrator, resumed bool) *OpenedSession {
	qs := o.Questions()
	public := make([]model.PublicQuestion, len(qs))
	for i, q := range qs {
		public[i] = q.Public()
	}
	return &OpenedSession{Session: o.View(), Questions: public, Resumed: resumed}
}

// Open starts userID's session for examID, or returns the live one. A user
// who already finished the exam cannot open it again.
func (s *ExamSessionService) Open(ctx context.Context, examID uuid.UUID, userID int) (*OpenedSession, error) {
	if o, ok := s.registry.Lookup(examID, userID); ok {
		return newOpenedSession(o, true), nil
	}

	var (
		exam      *model.ExamDefinition
		questions []model.Question
		allowed   bool
		finished  bool
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		e, err := s.deps.Exams.GetDefinition(gctx, examID)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrExamNotFound
		}
		if err != nil {
			return fmt.Errorf("get exam: %w", err)
		}
		exam = e
		return nil
	})
	g.Go(func() error {
		ok, err := s.deps.Enrollments.CanAccess(gctx, examID, userID)
		if err != nil {
			return fmt.Errorf("check enrollment: %w", err)
		}
		allowed = ok
		return nil
	})
	g.Go(func() error {
		qs, err := s.deps.Questions.ListByExam(gctx, examID)
		if err != nil {
			return fmt.Errorf("%w: %v", session.ErrQuestionsUnavailable, err)
		}
		questions = qs
		return nil
	})
	g.Go(func() error {
		done, err := s.deps.Sessions.HasFinished(gctx, examID, userID)
		if err != nil {
			return fmt.Errorf("check finished: %w", err)
		}
		finished = done
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	switch {
	case !allowed:
		return nil, session.ErrAccessDenied
	case finished:
		return nil, session.ErrAlreadySubmitted
	case len(questions) == 0:
		return nil, ErrNoQuestions
	case !exam.IsOpen(s.deps.Clock.Now()):
		return nil, session.ErrExamClosed
	}

	o, existed := s.registry.LoadOrCreate(examID, userID, func() *session.Orchestrator {
		return session.New(*exam, userID, questions, s.sessionDeps(), s.log)
	})
	if existed {
		return newOpenedSession(o, true), nil
	}

	if err := o.Activate(ctx); err != nil {
		s.registry.Remove(o)
		return nil, err
	}

	view := o.View()
	row := &model.ExamSession{
		ID:         o.ID(),
		ExamID:     examID,
		UserID:     userID,
		State:      view.State,
		StartedAt:  view.StartedAt,
		DeadlineAt: view.DeadlineAt,
	}
	if err := s.deps.Sessions.Create(ctx, row); err != nil {
		o.Close()
		s.registry.Remove(o)
		return nil, fmt.Errorf("persist session: %w", err)
	}

	s.publishLifecycle(ctx, o, "opened")
	s.log.Info().
		Str("session_id", o.ID().String()).
		Str("exam_id", examID.String()).
		Int("user_id", userID).
		Msg("Exam session opened")

	return newOpenedSession(o, false), nil
}

// Live returns the live session with sessionID owned by userID.
func (s *ExamSessionService) Live(sessionID uuid.UUID, userID int) (*session.Orchestrator, error) {
	o, ok := s.registry.Get(sessionID)
	if !ok {
		return nil, session.ErrSessionNotFound
	}
	if o.UserID() != userID {
		return nil, session.ErrNotOwner
	}
	return o, nil
}

// RecordAnswer autosaves one answer. An empty answer clears the question.
func (s *ExamSessionService) RecordAnswer(ctx context.Context, sessionID uuid.UUID, userID int, questionID uuid.UUID, answer model.Answer) error {
	o, err := s.Live(sessionID, userID)
	if errors.Is(err, session.ErrSessionNotFound) {
		return s.finishedOr(ctx, sessionID, userID, session.ErrAnswersFrozen)
	}
	if err != nil {
		return err
	}
	return o.RecordAnswer(ctx, questionID, answer)
}

// HandleSignal decodes a client signal and feeds it to the session's monitor.
// Unrecognized signals are dropped. It reports whether a violation was recorded.
func (s *ExamSessionService) HandleSignal(sessionID uuid.UUID, userID int, raw integrity.RawSignal) (bool, error) {
	o, err := s.Live(sessionID, userID)
	if err != nil {
		return false, err
	}
	sig, err := integrity.DecodeSignal(raw)
	if err != nil {
		s.log.Debug().Str("type", raw.Type).Msg("Dropped unknown signal")
		return false, nil
	}
	return o.HandleSignal(sig), nil
}

// ReportViewport updates the dimensions the session's viewport poller inspects.
func (s *ExamSessionService) ReportViewport(sessionID uuid.UUID, userID int, v integrity.ViewportSignal) error {
	o, err := s.Live(sessionID, userID)
	if err != nil {
		return err
	}
	o.Viewport().Set(v)
	return nil
}

// PushFrame hands the latest camera frame to the session's capture loop.
func (s *ExamSessionService) PushFrame(sessionID uuid.UUID, userID int, frame capture.Frame) error {
	if s.deps.MaxFrameBytes > 0 && int64(len(frame.Data)) > s.deps.MaxFrameBytes {
		return ErrFrameTooLarge
	}
	o, err := s.Live(sessionID, userID)
	if err != nil {
		return err
	}
	o.PushFrame(frame)
	return nil
}

// Submit grades the session on the student's confirmed request.
func (s *ExamSessionService) Submit(ctx context.Context, sessionID uuid.UUID, userID int, confirmed bool) (*model.GradingResult, error) {
	o, err := s.Live(sessionID, userID)
	if errors.Is(err, session.ErrSessionNotFound) {
		return nil, s.finishedOr(ctx, sessionID, userID, session.ErrAlreadySubmitted)
	}
	if err != nil {
		return nil, err
	}
	return o.Submit(ctx, confirmed)
}

// State returns the live view of a session, or the stored result of a finished one.
func (s *ExamSessionService) State(ctx context.Context, sessionID uuid.UUID, userID int) (*model.SessionView, error) {
	o, err := s.Live(sessionID, userID)
	if err == nil {
		v := o.View()
		return &v, nil
	}
	if !errors.Is(err, session.ErrSessionNotFound) {
		return nil, err
	}

	r, err := s.deps.Results.GetBySession(ctx, sessionID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, session.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get result: %w", err)
	}
	if r.UserID != userID {
		return nil, session.ErrNotOwner
	}

	state := model.SessionStateSubmitted
	if r.Trigger == model.TriggerTimer {
		state = model.SessionStateExpired
	}
	answers := make(map[string]model.Answer, len(r.Questions))
	for _, q := range r.Questions {
		if !q.Submitted.IsEmpty() {
			answers[q.QuestionID.String()] = q.Submitted
		}
	}
	return &model.SessionView{
		SessionID: r.SessionID,
		ExamID:    r.ExamID,
		State:     state,
		Answers:   answers,
		Result:    r,
	}, nil
}

// Shutdown tears down every live session without grading it.
func (s *ExamSessionService) Shutdown() {
	s.registry.CloseAll()
}

// finishedOr maps a request for a session that is no longer live to ifFinished
// when the session has a stored result owned by userID.
func (s *ExamSessionService) finishedOr(ctx context.Context, sessionID uuid.UUID, userID int, ifFinished error) error {
	r, err := s.deps.Results.GetBySession(ctx, sessionID)
	if errors.Is(err, repository.ErrNotFound) {
		return session.ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("get result: %w", err)
	}
	if r.UserID != userID {
		return session.ErrNotOwner
	}
	return ifFinished
}

func (s *ExamSessionService) sessionDeps() session.Deps {
	d := session.Deps{
		Clock:      s.deps.Clock,
		Results:    s.deps.Results,
		Events:     s.deps.Events,
		Captures:   s.deps.Captures,
		Policy:     s.deps.Policy,
		OnTerminal: s.onTerminal,
	}
	if s.deps.Answers != nil {
		d.Answers = s.deps.Answers
	}
	return d
}

// onTerminal runs once per session after it is graded or aborted.
func (s *ExamSessionService) onTerminal(o *session.Orchestrator) {
	s.registry.Remove(o)

	ctx, cancel := context.WithTimeout(context.Background(), terminalTimeout)
	defer cancel()

	log := s.log.With().Str("session_id", o.ID().String()).Logger()
	state := o.State()

	switch state {
	case model.SessionStateAborted:
		reason := o.AbortReason()
		if err := s.deps.Sessions.MarkAborted(ctx, o.ID(), reason); err != nil {
			log.Error().Err(err).Msg("Failed to mark session aborted")
		}
		if s.deps.Publisher != nil {
			err := s.deps.Publisher.PublishAborted(ctx, o.ID().String(), o.Exam().ID.String(), o.UserID(), reason, s.deps.Clock.Now())
			if err != nil {
				log.Warn().Err(err).Msg("Failed to publish aborted event")
			}
		}
	case model.SessionStateSubmitted, model.SessionStateExpired:
		if r := o.Result(); r != nil && s.deps.Publisher != nil {
			if err := s.deps.Publisher.PublishGraded(ctx, r); err != nil {
				log.Warn().Err(err).Msg("Failed to publish graded event")
			}
		}
	}

	if s.deps.Answers != nil {
		if err := s.deps.Answers.ClearAnswers(ctx, o.ID()); err != nil {
			log.Warn().Err(err).Msg("Failed to clear autosaved answers")
		}
	}
	s.publishLifecycle(ctx, o, string(state))
}

func (s *ExamSessionService) publishLifecycle(ctx context.Context, o *session.Orchestrator, kind string) {
	if s.deps.Lifecycle == nil {
		return
	}
	if err := s.deps.Lifecycle.PublishLifecycle(ctx, o.Exam().ID, o.ID(), o.UserID(), kind); err != nil {
		s.log.Debug().Err(err).Msg("Failed to publish lifecycle message")
	}
}
