package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-proctor/internal/capture"
	"github.com/stemsi/exstem-proctor/internal/integrity"
	"github.com/stemsi/exstem-proctor/internal/model"
)

var t0 = time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)

type memResults struct {
	mu    sync.Mutex
	fail  error
	saved []*model.GradingResult
}

func (m *memResults) Save(_ context.Context, r *model.GradingResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	for _, s := range m.saved {
		if s.SessionID == r.SessionID {
			return errors.New("duplicate result")
		}
	}
	m.saved = append(m.saved, r)
	return nil
}

func (m *memResults) setFail(err error) {
	m.mu.Lock()
	m.fail = err
	m.mu.Unlock()
}

func (m *memResults) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saved)
}

type memEvents struct {
	mu         sync.Mutex
	violations []model.ViolationEvent
	captures   []model.CaptureRecord
}

func (e *memEvents) EmitViolation(v model.ViolationEvent) {
	e.mu.Lock()
	e.violations = append(e.violations, v)
	e.mu.Unlock()
}

func (e *memEvents) EmitCapture(c model.CaptureRecord) {
	e.mu.Lock()
	e.captures = append(e.captures, c)
	e.mu.Unlock()
}

func (e *memEvents) kindCount(k model.ViolationKind) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, v := range e.violations {
		if v.Kind == k {
			n++
		}
	}
	return n
}

func (e *memEvents) captureCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.captures)
}

type memBlobs struct{}

func (memBlobs) Put(_ context.Context, key string, _ capture.Frame) (string, error) {
	return "mem://" + key, nil
}

type fixture struct {
	fc       *clockwork.FakeClock
	results  *memResults
	events   *memEvents
	exam     model.ExamDefinition
	qs       []model.Question
	terminal chan *Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	examID := uuid.New()
	qs := []model.Question{
		{ID: uuid.New(), ExamID: examID, Type: model.QuestionTypeMultipleChoice, Points: 5, Correct: model.TextAnswer("A")},
		{ID: uuid.New(), ExamID: examID, Type: model.QuestionTypeShortAnswer, Points: 5, Correct: model.TextAnswer("paris")},
		{ID: uuid.New(), ExamID: examID, Type: model.QuestionTypeTrueFalse, Points: 10, Correct: model.TextAnswer("true")},
	}
	return &fixture{
		fc:      clockwork.NewFakeClockAt(t0),
		results: &memResults{},
		events:  &memEvents{},
		exam: model.ExamDefinition{
			ID:              examID,
			Title:           "Physics",
			DurationMinutes: 1,
		},
		qs:       qs,
		terminal: make(chan *Orchestrator, 4),
	}
}

func (f *fixture) deps(p Policy) Deps {
	return Deps{
		Clock:      f.fc,
		Results:    f.results,
		Events:     f.events,
		Captures:   memBlobs{},
		Policy:     p,
		OnTerminal: func(o *Orchestrator) { f.terminal <- o },
	}
}

func (f *fixture) start(t *testing.T, p Policy) *Orchestrator {
	t.Helper()
	o := New(f.exam, 42, f.qs, f.deps(p), zerolog.Nop())
	require.NoError(t, o.Activate(context.Background()))
	return o
}

func waitWaiters(t *testing.T, fc *clockwork.FakeClock, n int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, fc.BlockUntilContext(ctx, n))
}

func TestActivate_RespectsWindow(t *testing.T) {
	f := newFixture(t)
	start := t0.Add(time.Hour)
	f.exam.ScheduledStart = &start

	o := New(f.exam, 42, f.qs, f.deps(Policy{}), zerolog.Nop())
	assert.ErrorIs(t, o.Activate(context.Background()), ErrExamClosed)
	assert.Equal(t, model.SessionStateCreated, o.State())

	f.fc.Advance(time.Hour)
	require.NoError(t, o.Activate(context.Background()))
	require.NoError(t, o.Activate(context.Background()), "activating twice is a no-op")
	assert.Equal(t, model.SessionStateActive, o.State())
	assert.Equal(t, 1, f.events.kindCount(model.ViolationExamStart))
	o.Close()
}

func TestSubmit_RequiresConfirmation(t *testing.T) {
	f := newFixture(t)
	o := f.start(t, Policy{})
	defer o.Close()

	_, err := o.Submit(context.Background(), false)
	assert.ErrorIs(t, err, ErrConfirmationRequired)
	assert.Equal(t, model.SessionStateActive, o.State())
}

func TestSubmit_GradesOnceAndRejectsSecondSubmission(t *testing.T) {
	f := newFixture(t)
	o := f.start(t, Policy{})
	ctx := context.Background()

	require.NoError(t, o.RecordAnswer(ctx, f.qs[0].ID, model.TextAnswer("A")))
	require.NoError(t, o.RecordAnswer(ctx, f.qs[1].ID, model.TextAnswer("  Paris ")))
	require.NoError(t, o.RecordAnswer(ctx, f.qs[2].ID, model.TextAnswer("false")))

	result, err := o.Submit(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStateSubmitted, o.State())
	assert.Equal(t, model.TriggerExplicit, result.Trigger)
	assert.Equal(t, 10, result.TotalPoints)
	assert.Equal(t, 20, result.MaxPoints)
	assert.Equal(t, 50, result.Percentage)

	_, err = o.Submit(ctx, true)
	assert.ErrorIs(t, err, ErrAlreadySubmitted)
	assert.True(t, IsUserError(err))
	assert.Same(t, result, o.Result())
	assert.Equal(t, 1, f.results.count())

	assert.ErrorIs(t, o.RecordAnswer(ctx, f.qs[2].ID, model.TextAnswer("true")), ErrAnswersFrozen)
	assert.Equal(t, 1, f.events.kindCount(model.ViolationExamEnd))
	assert.Same(t, o, <-f.terminal)
}

func TestExpiry_TransitionsExactlyOnce(t *testing.T) {
	f := newFixture(t)
	o := f.start(t, Policy{})
	require.NoError(t, o.RecordAnswer(context.Background(), f.qs[0].ID, model.TextAnswer("A")))

	waitWaiters(t, f.fc, 2) // session clock and viewport poll
	f.fc.Advance(61 * time.Second)

	require.Eventually(t, func() bool { return o.State() == model.SessionStateExpired }, 2*time.Second, 5*time.Millisecond)
	assert.LessOrEqual(t, o.Remaining(), time.Duration(0))
	assert.Equal(t, 1, f.results.count())
	assert.Equal(t, model.TriggerTimer, o.Result().Trigger)
	assert.Equal(t, 5, o.Result().TotalPoints)

	_, err := o.Submit(context.Background(), true)
	assert.ErrorIs(t, err, ErrAlreadySubmitted)
	assert.ErrorIs(t, o.RecordAnswer(context.Background(), f.qs[1].ID, model.TextAnswer("paris")), ErrAnswersFrozen)
	assert.Equal(t, 1, f.results.count())
	assert.Equal(t, 1, f.events.kindCount(model.ViolationExamEnd))
}

func TestRecordAnswer_RejectedOncePastDeadline(t *testing.T) {
	f := newFixture(t)
	// Result store rejects saves so the expiry path cannot complete and we observe the frozen window.
	f.results.setFail(errors.New("db down"))
	o := f.start(t, Policy{SaveRetryBase: time.Hour})
	defer o.Close()

	waitWaiters(t, f.fc, 2)
	f.fc.Advance(time.Minute)

	err := o.RecordAnswer(context.Background(), f.qs[0].ID, model.TextAnswer("A"))
	assert.ErrorIs(t, err, ErrAnswersFrozen)
}

func TestSubmit_SaveFailureKeepsSessionRetryable(t *testing.T) {
	f := newFixture(t)
	o := f.start(t, Policy{})
	ctx := context.Background()
	require.NoError(t, o.RecordAnswer(ctx, f.qs[0].ID, model.TextAnswer("A")))

	f.results.setFail(errors.New("db down"))
	_, err := o.Submit(ctx, true)
	require.ErrorIs(t, err, ErrResultNotSaved)
	assert.False(t, IsUserError(err))
	assert.Equal(t, model.SessionStateActive, o.State())
	assert.Nil(t, o.Result())
	assert.ErrorIs(t, o.RecordAnswer(ctx, f.qs[1].ID, model.TextAnswer("paris")), ErrAnswersFrozen)

	f.results.setFail(nil)
	result, err := o.Submit(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 5, result.TotalPoints)
	assert.Equal(t, model.SessionStateSubmitted, o.State())
	assert.Equal(t, 1, f.events.kindCount(model.ViolationExamEnd))
}

func TestRecordAnswer_Validation(t *testing.T) {
	f := newFixture(t)
	o := New(f.exam, 42, f.qs, f.deps(Policy{}), zerolog.Nop())
	ctx := context.Background()

	assert.ErrorIs(t, o.RecordAnswer(ctx, f.qs[0].ID, model.TextAnswer("A")), ErrSessionNotActive)

	require.NoError(t, o.Activate(ctx))
	defer o.Close()
	assert.ErrorIs(t, o.RecordAnswer(ctx, uuid.New(), model.TextAnswer("A")), ErrUnknownQuestion)

	require.NoError(t, o.RecordAnswer(ctx, f.qs[0].ID, model.TextAnswer("A")))
	require.NoError(t, o.RecordAnswer(ctx, f.qs[0].ID, model.TextAnswer("")))
	assert.Empty(t, o.Answers())
}

func TestCapture_StopsWithSession(t *testing.T) {
	f := newFixture(t)
	f.exam.RequiresSEB = true
	o := f.start(t, Policy{CaptureInterval: 5 * time.Second})

	waitWaiters(t, f.fc, 3) // clock, viewport poll, capture
	o.PushFrame(capture.Frame{Data: []byte{1}})
	f.fc.Advance(5 * time.Second)
	require.Eventually(t, func() bool { return f.events.captureCount() == 1 }, time.Second, 5*time.Millisecond)

	o.PushFrame(capture.Frame{Data: []byte{2}})
	_, err := o.Submit(context.Background(), true)
	require.NoError(t, err)

	f.fc.Advance(30 * time.Second)
	assert.Never(t, func() bool { return f.events.captureCount() > 1 }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestCapture_UnavailableIsRecordedNotFatal(t *testing.T) {
	f := newFixture(t)
	f.exam.RequiresSEB = true
	deps := f.deps(Policy{})
	deps.Captures = nil

	o := New(f.exam, 42, f.qs, deps, zerolog.Nop())
	require.NoError(t, o.Activate(context.Background()))
	defer o.Close()

	assert.Equal(t, model.SessionStateActive, o.State())
	assert.Equal(t, 1, f.events.kindCount(model.ViolationSEB))
	assert.Equal(t, 1, o.ViolationCount())
}

func TestSignals_FlowThroughMonitor(t *testing.T) {
	f := newFixture(t)
	o := f.start(t, Policy{})
	defer o.Close()

	assert.True(t, o.HandleSignal(integrity.ClipboardSignal{Action: integrity.ClipboardPaste}))
	assert.False(t, o.HandleSignal(integrity.KeySignal{Key: "a"}))

	assert.Equal(t, 1, f.events.kindCount(model.ViolationPasteAttempt))
	assert.Equal(t, 1, o.View().ViolationCount)
}

func TestAbortPolicy(t *testing.T) {
	f := newFixture(t)
	o := f.start(t, Policy{AbortAfterViolations: 2})

	o.HandleSignal(integrity.ContextMenuSignal{})
	assert.Equal(t, model.SessionStateActive, o.State())
	o.HandleSignal(integrity.ContextMenuSignal{})

	require.Eventually(t, func() bool { return o.State() == model.SessionStateAborted }, time.Second, 5*time.Millisecond)
	assert.Same(t, o, <-f.terminal)
	assert.Zero(t, f.results.count(), "aborted sessions are not graded")

	_, err := o.Submit(context.Background(), true)
	assert.ErrorIs(t, err, ErrSessionNotActive)
	assert.Equal(t, 1, f.events.kindCount(model.ViolationExamEnd))
}

func TestView(t *testing.T) {
	f := newFixture(t)
	o := f.start(t, Policy{})
	defer o.Close()
	require.NoError(t, o.RecordAnswer(context.Background(), f.qs[1].ID, model.TextAnswer("Paris")))

	v := o.View()
	assert.Equal(t, model.SessionStateActive, v.State)
	assert.Equal(t, t0, v.StartedAt)
	assert.Equal(t, t0.Add(time.Minute), v.DeadlineAt)
	assert.InDelta(t, 60, v.RemainingSeconds, 0.001)
	assert.Equal(t, model.TextAnswer("Paris"), v.Answers[f.qs[1].ID.String()])
}
