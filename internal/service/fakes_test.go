package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/repository"
)

type fakeExams struct {
	exams map[uuid.UUID]*model.ExamDefinition
}

func (f *fakeExams) GetDefinition(_ context.Context, id uuid.UUID) (*model.ExamDefinition, error) {
	e, ok := f.exams[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

type fakeQuestions struct {
	byExam map[uuid.UUID][]model.Question
}

func (f *fakeQuestions) ListByExam(_ context.Context, examID uuid.UUID) ([]model.Question, error) {
	return f.byExam[examID], nil
}

type fakeEnrollments struct {
	denied map[int]bool
}

func (f *fakeEnrollments) CanAccess(_ context.Context, _ uuid.UUID, userID int) (bool, error) {
	return !f.denied[userID], nil
}

type fakeSessions struct {
	mu       sync.Mutex
	created  []model.ExamSession
	aborted  map[uuid.UUID]string
	finished map[int]bool
}

func (f *fakeSessions) Create(_ context.Context, s *model.ExamSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, *s)
	return nil
}

func (f *fakeSessions) MarkAborted(_ context.Context, id uuid.UUID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.aborted == nil {
		f.aborted = make(map[uuid.UUID]string)
	}
	f.aborted[id] = reason
	return nil
}

func (f *fakeSessions) HasFinished(_ context.Context, _ uuid.UUID, userID int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.finished[userID], nil
}

func (f *fakeSessions) abortReason(id uuid.UUID) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.aborted[id]
	return r, ok
}

func (f *fakeSessions) createdCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

type fakeResults struct {
	mu    sync.Mutex
	saved map[uuid.UUID]*model.GradingResult
}

func (f *fakeResults) Save(_ context.Context, r *model.GradingResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saved == nil {
		f.saved = make(map[uuid.UUID]*model.GradingResult)
	}
	if _, ok := f.saved[r.SessionID]; ok {
		return repository.ErrResultExists
	}
	f.saved[r.SessionID] = r
	return nil
}

func (f *fakeResults) Exists(_ context.Context, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.saved[id]
	return ok, nil
}

func (f *fakeResults) GetBySession(_ context.Context, id uuid.UUID) (*model.GradingResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.saved[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return r, nil
}

type fakeEvents struct {
	mu         sync.Mutex
	violations []model.ViolationEvent
	captures   []model.CaptureRecord
}

func (f *fakeEvents) EmitViolation(v model.ViolationEvent) {
	f.mu.Lock()
	f.violations = append(f.violations, v)
	f.mu.Unlock()
}

func (f *fakeEvents) EmitCapture(c model.CaptureRecord) {
	f.mu.Lock()
	f.captures = append(f.captures, c)
	f.mu.Unlock()
}

func (f *fakeEvents) kinds() []model.ViolationKind {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.ViolationKind, len(f.violations))
	for i, v := range f.violations {
		out[i] = v.Kind
	}
	return out
}

func (f *fakeEvents) all() []model.ViolationEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.ViolationEvent(nil), f.violations...)
}

func (f *fakeEvents) last() model.ViolationEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.violations[len(f.violations)-1]
}

type fakeAnswers struct {
	mu      sync.Mutex
	saved   int
	cleared []uuid.UUID
}

func (f *fakeAnswers) SaveAnswer(context.Context, uuid.UUID, uuid.UUID, model.Answer) error {
	f.mu.Lock()
	f.saved++
	f.mu.Unlock()
	return nil
}

func (f *fakeAnswers) ClearAnswers(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	f.cleared = append(f.cleared, id)
	f.mu.Unlock()
	return nil
}

func (f *fakeAnswers) clearedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cleared)
}

type fakePublisher struct {
	mu      sync.Mutex
	graded  []*model.GradingResult
	aborted []string
}

func (f *fakePublisher) PublishGraded(_ context.Context, r *model.GradingResult) error {
	f.mu.Lock()
	f.graded = append(f.graded, r)
	f.mu.Unlock()
	return nil
}

func (f *fakePublisher) PublishAborted(_ context.Context, sessionID, _ string, _ int, _ string, _ time.Time) error {
	f.mu.Lock()
	f.aborted = append(f.aborted, sessionID)
	f.mu.Unlock()
	return nil
}

func (f *fakePublisher) gradedList() []*model.GradingResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*model.GradingResult(nil), f.graded...)
}

func (f *fakePublisher) abortedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.aborted)
}

type fakeViolations struct {
	counts map[int]map[model.ViolationKind]int
	events []model.ViolationEvent
}

func (f *fakeViolations) CountsByUser(context.Context, uuid.UUID) (map[int]map[model.ViolationKind]int, error) {
	return f.counts, nil
}

func (f *fakeViolations) ListBySession(context.Context, uuid.UUID) ([]model.ViolationEvent, error) {
	return f.events, nil
}
