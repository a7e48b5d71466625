package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/stemsi/exstem-proctor/internal/grading"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/repository"
	"github.com/stemsi/exstem-proctor/internal/session"
)

// OpticalService grades paper answer sheets.
type OpticalService struct {
	exams         ExamReader
	questions     QuestionReader
	sessions      SessionRecorder
	results       ResultStore
	detector      grading.Detector
	publisher     ResultPublisher
	clock         clockwork.Clock
	minConfidence float64
	log           zerolog.Logger
}

// OpticalDeps are the collaborators of OpticalService. Detector and Publisher are optional.
type OpticalDeps struct {
	Exams         ExamReader
	Questions     QuestionReader
	Sessions      SessionRecorder
	Results       ResultStore
	Detector      grading.Detector
	Publisher     ResultPublisher
	Clock         clockwork.Clock
	MinConfidence float64
}

// NewOpticalService creates a new OpticalService.
func NewOpticalService(deps OpticalDeps, log zerolog.Logger) *OpticalService {
	clk := deps.Clock
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &OpticalService{
		exams:         deps.Exams,
		questions:     deps.Questions,
		sessions:      deps.Sessions,
		results:       deps.Results,
		detector:      deps.Detector,
		publisher:     deps.Publisher,
		clock:         clk,
		minConfidence: deps.MinConfidence,
		log:           log.With().Str("component", "optical_service").Logger(),
	}
}

// Grade reads a scanned sheet through the detector and stores the result for userID.
func (s *OpticalService) Grade(ctx context.Context, examID uuid.UUID, userID int, image []byte) (*model.GradingResult, error) {
	if s.detector == nil {
		return nil, ErrOpticalDisabled
	}
	exam, questions, err := s.load(ctx, examID, userID)
	if err != nil {
		return nil, err
	}

	detections, err := s.detector.Detect(ctx, image, grading.OpticalQuestionCount(questions))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", grading.ErrDetectorUnavailable, err)
	}
	answers := grading.AnswersFromDetections(questions, detections, s.minConfidence)
	return s.record(ctx, exam, userID, questions, answers)
}

// GradeAnswers stores a result from answers already read off the sheet,
// keyed by zero-based question index.
func (s *OpticalService) GradeAnswers(ctx context.Context, examID uuid.UUID, userID int, byIndex map[int]string) (*model.GradingResult, error) {
	exam, questions, err := s.load(ctx, examID, userID)
	if err != nil {
		return nil, err
	}

	detections := make([]grading.Detection, 0, len(byIndex))
	for idx, opt := range byIndex {
		detections = append(detections, grading.Detection{QuestionIndex: idx, SelectedOption: opt, Confidence: 1})
	}
	answers := grading.AnswersFromDetections(questions, detections, 0)
	return s.record(ctx, exam, userID, questions, answers)
}

func (s *OpticalService) load(ctx context.Context, examID uuid.UUID, userID int) (*model.ExamDefinition, []model.Question, error) {
	var (
		exam      *model.ExamDefinition
		questions []model.Question
		finished  bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		e, err := s.exams.GetDefinition(gctx, examID)
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
		qs, err := s.questions.ListByExam(gctx, examID)
		if err != nil {
			return fmt.Errorf("%w: %v", session.ErrQuestionsUnavailable, err)
		}
		questions = qs
		return nil
	})
	g.Go(func() error {
		done, err := s.sessions.HasFinished(gctx, examID, userID)
		if err != nil {
			return fmt.Errorf("check finished: %w", err)
		}
		finished = done
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	switch {
	case !exam.IsOpticalForm:
		return nil, nil, ErrNotOpticalExam
	case len(questions) == 0:
		return nil, nil, ErrNoQuestions
	case finished:
		return nil, nil, session.ErrAlreadySubmitted
	}
	return exam, questions, nil
}

// record grades answers under a new session row so optical results join like online ones.
func (s *OpticalService) record(ctx context.Context, exam *model.ExamDefinition, userID int, questions []model.Question, answers map[uuid.UUID]model.Answer) (*model.GradingResult, error) {
	now := s.clock.Now()
	row := model.ExamSession{
		ID:         uuid.New(),
		ExamID:     exam.ID,
		UserID:     userID,
		State:      model.SessionStateActive,
		StartedAt:  now,
		DeadlineAt: now,
		Answers:    answers,
	}
	if err := s.sessions.Create(ctx, &row); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}

	result := grading.Aggregate(row, questions, model.TriggerOptical, now)
	if err := s.results.Save(ctx, result); err != nil {
		return nil, fmt.Errorf("%w: %v", session.ErrResultNotSaved, err)
	}

	if s.publisher != nil {
		if err := s.publisher.PublishGraded(ctx, result); err != nil {
			s.log.Warn().Err(err).Msg("Failed to publish graded event")
		}
	}

	s.log.Info().
		Str("session_id", row.ID.String()).
		Str("exam_id", exam.ID.String()).
		Int("user_id", userID).
		Int("percentage", result.Percentage).
		Msg("Optical sheet graded")
	return result, nil
}
