package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-proctor/internal/grading"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/session"
)

type stubDetector struct {
	detections []grading.Detection
	err        error
	gotCount   int
}

func (d *stubDetector) Detect(_ context.Context, _ []byte, questionCount int) ([]grading.Detection, error) {
	d.gotCount = questionCount
	return d.detections, d.err
}

type opticalFixture struct {
	exam      *model.ExamDefinition
	qs        []model.Question
	sessions  *fakeSessions
	results   *fakeResults
	publisher *fakePublisher
}

func newOpticalFixture() *opticalFixture {
	examID := uuid.New()
	return &opticalFixture{
		exam: &model.ExamDefinition{ID: examID, IsOpticalForm: true},
		qs: []model.Question{
			{ID: uuid.New(), ExamID: examID, Type: model.QuestionTypeMultipleChoice, Points: 1, Correct: model.TextAnswer("A")},
			{ID: uuid.New(), ExamID: examID, Type: model.QuestionTypeMultipleChoice, Points: 1, Correct: model.TextAnswer("B")},
			{ID: uuid.New(), ExamID: examID, Type: model.QuestionTypeMultipleChoice, Points: 1, Correct: model.TextAnswer("C")},
			{ID: uuid.New(), ExamID: examID, Type: model.QuestionTypeMultipleChoice, Points: 1, Correct: model.TextAnswer("D")},
		},
		sessions:  &fakeSessions{finished: map[int]bool{}},
		results:   &fakeResults{},
		publisher: &fakePublisher{},
	}
}

func (f *opticalFixture) service(detector grading.Detector) *OpticalService {
	deps := OpticalDeps{
		Exams:         &fakeExams{exams: map[uuid.UUID]*model.ExamDefinition{f.exam.ID: f.exam}},
		Questions:     &fakeQuestions{byExam: map[uuid.UUID][]model.Question{f.exam.ID: f.qs}},
		Sessions:      f.sessions,
		Results:       f.results,
		Publisher:     f.publisher,
		Clock:         clockwork.NewFakeClockAt(t0),
		MinConfidence: 0.6,
	}
	if detector != nil {
		deps.Detector = detector
	}
	return NewOpticalService(deps, zerolog.Nop())
}

func TestOpticalService_Grade(t *testing.T) {
	f := newOpticalFixture()
	det := &stubDetector{detections: []grading.Detection{
		{QuestionIndex: 0, SelectedOption: "a", Confidence: 0.9},
		{QuestionIndex: 1, SelectedOption: "B", Confidence: 0.3},
		{QuestionIndex: 2, SelectedOption: "C", Confidence: 0.8},
		{QuestionIndex: 9, SelectedOption: "D", Confidence: 0.99},
	}}

	result, err := f.service(det).Grade(context.Background(), f.exam.ID, 5, []byte("scan"))
	require.NoError(t, err)

	assert.Equal(t, 4, det.gotCount)
	assert.Equal(t, model.TriggerOptical, result.Trigger)
	assert.Equal(t, 2, result.TotalPoints)
	assert.Equal(t, 4, result.MaxPoints)
	assert.Equal(t, 50, result.Percentage)
	assert.Equal(t, t0, result.GradedAt)

	assert.Equal(t, 1, f.sessions.createdCount())
	assert.Len(t, f.publisher.gradedList(), 1)
	exists, _ := f.results.Exists(context.Background(), result.SessionID)
	assert.True(t, exists)
}

func TestOpticalService_GradeAnswers(t *testing.T) {
	f := newOpticalFixture()

	result, err := f.service(nil).GradeAnswers(context.Background(), f.exam.ID, 5, map[int]string{0: "A", 1: "B", 2: "x", 3: "D"})
	require.NoError(t, err)
	assert.Equal(t, 3, result.TotalPoints)
	assert.Equal(t, 75, result.Percentage)
}

func TestOpticalService_Rejections(t *testing.T) {
	t.Run("no detector", func(t *testing.T) {
		f := newOpticalFixture()
		_, err := f.service(nil).Grade(context.Background(), f.exam.ID, 5, []byte("scan"))
		assert.ErrorIs(t, err, ErrOpticalDisabled)
	})

	t.Run("online exam", func(t *testing.T) {
		f := newOpticalFixture()
		f.exam.IsOpticalForm = false
		_, err := f.service(nil).GradeAnswers(context.Background(), f.exam.ID, 5, nil)
		assert.ErrorIs(t, err, ErrNotOpticalExam)
	})

	t.Run("already graded", func(t *testing.T) {
		f := newOpticalFixture()
		f.sessions.finished[5] = true
		_, err := f.service(nil).GradeAnswers(context.Background(), f.exam.ID, 5, nil)
		assert.ErrorIs(t, err, session.ErrAlreadySubmitted)
	})

	t.Run("detector failure", func(t *testing.T) {
		f := newOpticalFixture()
		det := &stubDetector{err: errors.New("timeout")}
		_, err := f.service(det).Grade(context.Background(), f.exam.ID, 5, []byte("scan"))
		assert.ErrorIs(t, err, grading.ErrDetectorUnavailable)
		assert.Equal(t, 0, f.sessions.createdCount())
	})
}
