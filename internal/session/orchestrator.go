// Package session drives one student's exam attempt from opening to a persisted
// grading result.
//
// An Orchestrator owns the session clock, the integrity monitor and the capture
// loop for its lifetime. Finishing (explicit submit or clock expiry) happens under
// the orchestrator's lock, so exactly one of them wins, and answers are frozen
// before any teardown or grading work starts.
package session

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"github.com/stemsi/exstem-proctor/internal/capture"
	"github.com/stemsi/exstem-proctor/internal/clock"
	"github.com/stemsi/exstem-proctor/internal/grading"
	"github.com/stemsi/exstem-proctor/internal/integrity"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// ResultStore persists grading results. Save must fail if a result already exists for the session.
type ResultStore interface {
	Save(ctx context.Context, result *model.GradingResult) error
}

// Events receives violations and captures without blocking.
type Events interface {
	integrity.Emitter
	capture.Emitter
}

// AnswerSink receives every accepted answer for autosave. Failures are logged only.
type AnswerSink interface {
	SaveAnswer(ctx context.Context, sessionID, questionID uuid.UUID, answer model.Answer) error
}

// Policy holds the tunables shared by every session.
type Policy struct {
	CaptureInterval      time.Duration
	ViewportPollInterval time.Duration
	// AbortAfterViolations aborts the session once this many violations were
	// recorded. Zero keeps violations informational only.
	AbortAfterViolations int
	// SaveRetryBase is the first delay between result-save retries after expiry.
	SaveRetryBase time.Duration
}

// Deps are the collaborators shared by every session.
type Deps struct {
	Clock    clockwork.Clock
	Results  ResultStore
	Events   Events
	Captures capture.Store
	Answers  AnswerSink
	Policy   Policy
	// OnTerminal runs once, outside any session lock, after the session reaches a terminal state.
	OnTerminal func(o *Orchestrator)
}

// Orchestrator is the state machine of one exam session.
type Orchestrator struct {
	id        uuid.UUID
	exam      model.ExamDefinition
	userID    int
	questions []model.Question
	known     map[uuid.UUID]struct{}

	deps Deps
	clk  clockwork.Clock
	log  zerolog.Logger

	clock    *clock.SessionClock
	monitor  *integrity.Monitor
	viewport *integrity.LatestViewport
	frames   *capture.FrameBuffer
	capture  *capture.Loop

	mu          sync.Mutex
	state       model.SessionState
	startedAt   time.Time
	deadlineAt  time.Time
	answers     map[uuid.UUID]model.Answer
	frozen      bool
	trigger     model.SubmitTrigger
	result      *model.GradingResult
	abortReason string

	ctx       context.Context
	cancel    context.CancelFunc
	stopWatch chan struct{}
	watchDone chan struct{}
	tornDown  bool

	notifyOnce sync.Once
}

// New creates a session in the Created state. questions are the exam's questions in display order.
func New(exam model.ExamDefinition, userID int, questions []model.Question, deps Deps, log zerolog.Logger) *Orchestrator {
	clk := deps.Clock
	if clk == nil {
		clk = clockwork.NewRealClock()
		deps.Clock = clk
	}

	id := uuid.New()
	o := &Orchestrator{
		id:        id,
		exam:      exam,
		userID:    userID,
		questions: questions,
		known:     make(map[uuid.UUID]struct{}, len(questions)),
		deps:      deps,
		clk:       clk,
		log: log.With().
			Str("component", "session").
			Str("session_id", id.String()).
			Str("exam_id", exam.ID.String()).
			Int("user_id", userID).
			Logger(),
		clock:    clock.New(clk, exam.Duration()),
		viewport: &integrity.LatestViewport{},
		frames:   &capture.FrameBuffer{},
		state:    model.SessionStateCreated,
		answers:  make(map[uuid.UUID]model.Answer),
	}
	for _, q := range questions {
		o.known[q.ID] = struct{}{}
	}

	mcfg := integrity.MonitorConfig{
		SessionID:    id,
		ExamID:       exam.ID,
		UserID:       userID,
		Probe:        o.viewport,
		Clock:        clk,
		PollInterval: deps.Policy.ViewportPollInterval,
	}
	if deps.Events != nil {
		mcfg.Emitter = deps.Events
	}
	if n := deps.Policy.AbortAfterViolations; n > 0 {
		mcfg.Threshold = n
		mcfg.OnThreshold = func(count int) {
			reason := "violation threshold reached (" + strconv.Itoa(count) + ")"
			if err := o.Abort(reason); err != nil && !errors.Is(err, ErrSessionNotActive) {
				o.log.Warn().Err(err).Msg("Failed to abort session")
			}
		}
	}
	o.monitor = integrity.NewMonitor(mcfg, log)

	if exam.RequiresSEB && deps.Captures != nil {
		ccfg := capture.Config{
			SessionID: id,
			ExamID:    exam.ID,
			UserID:    userID,
			Interval:  deps.Policy.CaptureInterval,
			Clock:     clk,
			Source:    o.frames,
			Store:     deps.Captures,
		}
		if deps.Events != nil {
			ccfg.Emitter = deps.Events
		}
		o.capture = capture.NewLoop(ccfg, log)
	}
	return o
}

func (o *Orchestrator) ID() uuid.UUID                       { return o.id }
func (o *Orchestrator) UserID() int                         { return o.userID }
func (o *Orchestrator) Exam() model.ExamDefinition          { return o.exam }
func (o *Orchestrator) Questions() []model.Question         { return o.questions }
func (o *Orchestrator) Remaining() time.Duration            { return o.clock.Remaining() }
func (o *Orchestrator) Expired() <-chan struct{}            { return o.clock.Expired() }
func (o *Orchestrator) ViolationCount() int                 { return o.monitor.Count() }
func (o *Orchestrator) Viewport() *integrity.LatestViewport { return o.viewport }

// State returns the current state.
func (o *Orchestrator) State() model.SessionState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Result returns the grading result once the session is Submitted or Expired.
func (o *Orchestrator) Result() *model.GradingResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.result
}

// AbortReason returns why the session was aborted, empty otherwise.
func (o *Orchestrator) AbortReason() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.abortReason
}

// Activate moves Created to Active: the clock starts, the monitor attaches and,
// for locked-browser exams, the capture loop starts. Activating an Active session is a no-op.
func (o *Orchestrator) Activate(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch o.state {
	case model.SessionStateActive:
		return nil
	case model.SessionStateCreated:
	case model.SessionStateAborted:
		return ErrSessionNotActive
	default:
		return ErrAlreadySubmitted
	}

	if !o.exam.IsOpen(o.clk.Now()) {
		return ErrExamClosed
	}

	// Background work belongs to the session, not to the request that opened it.
	o.ctx, o.cancel = context.WithCancel(context.WithoutCancel(ctx))
	o.stopWatch = make(chan struct{})
	o.watchDone = make(chan struct{})

	o.startedAt = o.clock.Start()
	o.deadlineAt = o.clock.DeadlineAt()
	o.state = model.SessionStateActive

	o.monitor.Attach(o.ctx)
	o.startCaptureLocked()

	go o.watch(o.ctx, o.clock.Expired(), o.stopWatch)

	o.log.Info().Time("deadline_at", o.deadlineAt).Msg("Session activated")
	return nil
}

// startCaptureLocked starts proctoring capture. A capture loop that cannot run
// never blocks the exam; the condition is recorded as a violation instead.
func (o *Orchestrator) startCaptureLocked() {
	if !o.exam.RequiresSEB {
		return
	}
	if o.capture == nil {
		o.log.Warn().Msg("Capture store not configured, session proceeds without proctoring capture")
		o.monitor.Record(model.ViolationSEB, map[string]string{"reason": "capture_unavailable"})
		return
	}
	if err := o.capture.Start(o.ctx); err != nil {
		o.log.Warn().Err(err).Msg("Capture loop failed to start")
		o.monitor.Record(model.ViolationSEB, map[string]string{"reason": "capture_unavailable"})
	}
}

// RecordAnswer stores or replaces the answer to one question. An empty answer clears it.
func (o *Orchestrator) RecordAnswer(ctx context.Context, questionID uuid.UUID, answer model.Answer) error {
	o.mu.Lock()
	switch {
	case o.state == model.SessionStateSubmitted, o.state == model.SessionStateExpired:
		o.mu.Unlock()
		return ErrAnswersFrozen
	case o.state != model.SessionStateActive:
		o.mu.Unlock()
		return ErrSessionNotActive
	case o.frozen, o.clock.Remaining() <= 0:
		o.mu.Unlock()
		return ErrAnswersFrozen
	}
	if _, ok := o.known[questionID]; !ok {
		o.mu.Unlock()
		return ErrUnknownQuestion
	}

	if answer.IsEmpty() {
		delete(o.answers, questionID)
	} else {
		o.answers[questionID] = answer
	}
	o.mu.Unlock()

	if o.deps.Answers != nil {
		if err := o.deps.Answers.SaveAnswer(ctx, o.id, questionID, answer); err != nil {
			o.log.Warn().Err(err).Str("question_id", questionID.String()).Msg("Autosave failed")
		}
	}
	return nil
}

// HandleSignal feeds a raw client signal to the integrity monitor.
func (o *Orchestrator) HandleSignal(sig integrity.Signal) bool {
	if v, ok := sig.(integrity.ViewportSignal); ok {
		o.viewport.Set(v)
	}
	return o.monitor.Handle(sig)
}

// ReportViolation records a violation classified by the client. It reports
// false once the session has left Active.
func (o *Orchestrator) ReportViolation(kind model.ViolationKind, metadata map[string]string) bool {
	return o.monitor.Report(kind, metadata)
}

// PushFrame offers a camera frame to the capture loop.
func (o *Orchestrator) PushFrame(frame capture.Frame) {
	o.frames.Push(frame)
}

// Submit finishes the session on the student's explicit, confirmed request.
// Background activity is fully torn down before it returns.
func (o *Orchestrator) Submit(ctx context.Context, confirmed bool) (*model.GradingResult, error) {
	if !confirmed {
		return nil, ErrConfirmationRequired
	}

	result, err := o.finish(ctx, model.TriggerExplicit)
	if err != nil {
		return nil, err
	}
	<-o.watchDone
	o.notifyTerminal()
	return result, nil
}

// Abort ends an Active session without grading.
func (o *Orchestrator) Abort(reason string) error {
	o.mu.Lock()
	if o.state != model.SessionStateActive {
		o.mu.Unlock()
		return ErrSessionNotActive
	}
	o.frozen = true
	o.teardownLocked()
	o.state = model.SessionStateAborted
	o.abortReason = reason
	o.cancel()
	o.mu.Unlock()

	o.log.Warn().Str("reason", reason).Msg("Session aborted")
	<-o.watchDone
	o.notifyTerminal()
	return nil
}

// Close tears down background activity without changing state. Used at shutdown.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != model.SessionStateActive {
		return
	}
	o.teardownLocked()
	o.cancel()
}

// finish is the single exclusive transition out of Active. The first caller
// freezes answers and fixes the trigger; a caller retrying after a failed save
// keeps that trigger.
func (o *Orchestrator) finish(ctx context.Context, trigger model.SubmitTrigger) (*model.GradingResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch o.state {
	case model.SessionStateSubmitted, model.SessionStateExpired:
		return nil, ErrAlreadySubmitted
	case model.SessionStateActive:
	default:
		return nil, ErrSessionNotActive
	}

	if !o.frozen {
		o.frozen = true
		o.trigger = trigger
		o.teardownLocked()
	}

	snapshot := model.ExamSession{
		ID:         o.id,
		ExamID:     o.exam.ID,
		UserID:     o.userID,
		State:      o.state,
		StartedAt:  o.startedAt,
		DeadlineAt: o.deadlineAt,
		Answers:    o.answers,
	}
	result := grading.Aggregate(snapshot, o.questions, o.trigger, o.clk.Now())

	if err := o.deps.Results.Save(ctx, result); err != nil {
		o.log.Error().Err(err).Str("trigger", string(o.trigger)).Msg("Failed to save grading result")
		return nil, fmt.Errorf("%w: %v", ErrResultNotSaved, err)
	}

	if o.trigger == model.TriggerTimer {
		o.state = model.SessionStateExpired
	} else {
		o.state = model.SessionStateSubmitted
	}
	o.result = result
	o.cancel()

	o.log.Info().
		Str("state", string(o.state)).
		Int("total_points", result.TotalPoints).
		Int("max_points", result.MaxPoints).
		Int("percentage", result.Percentage).
		Msg("Session graded")
	return result, nil
}

// teardownLocked stops every session-scoped activity. Capture goes first so no
// record can follow the exam_end emitted by the monitor.
func (o *Orchestrator) teardownLocked() {
	if o.tornDown {
		return
	}
	o.tornDown = true

	if o.capture != nil {
		o.capture.Stop()
	}
	o.clock.Stop()
	o.monitor.Detach()
	close(o.stopWatch)
}

// watch waits for clock expiry and finishes the session with the timer trigger.
// A failed save is retried until it succeeds or the session ends another way.
func (o *Orchestrator) watch(ctx context.Context, expired <-chan struct{}, stop <-chan struct{}) {
	defer close(o.watchDone)

	select {
	case <-expired:
	case <-stop:
		return
	case <-ctx.Done():
		return
	}

	base := o.deps.Policy.SaveRetryBase
	if base <= 0 {
		base = time.Second
	}
	backoff := retry.WithCappedDuration(30*time.Second, retry.NewExponential(base))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		_, err := o.finish(ctx, model.TriggerTimer)
		if errors.Is(err, ErrResultNotSaved) {
			return retry.RetryableError(err)
		}
		return err
	})
	switch {
	case err == nil:
		go o.notifyTerminal()
	case errors.Is(err, ErrAlreadySubmitted), errors.Is(err, ErrSessionNotActive), errors.Is(err, context.Canceled):
	default:
		o.log.Error().Err(err).Msg("Expiry submission stopped")
	}
}

func (o *Orchestrator) notifyTerminal() {
	if o.deps.OnTerminal == nil {
		return
	}
	o.notifyOnce.Do(func() { o.deps.OnTerminal(o) })
}

// View renders the session for the student portal.
func (o *Orchestrator) View() model.SessionView {
	o.mu.Lock()
	answers := make(map[string]model.Answer, len(o.answers))
	for id, a := range o.answers {
		answers[id.String()] = a
	}
	v := model.SessionView{
		SessionID:  o.id,
		ExamID:     o.exam.ID,
		State:      o.state,
		StartedAt:  o.startedAt,
		DeadlineAt: o.deadlineAt,
		Answers:    answers,
		Result:     o.result,
	}
	o.mu.Unlock()

	if v.State == model.SessionStateActive {
		v.RemainingSeconds = max(o.clock.Remaining().Seconds(), 0)
	}
	v.ViolationCount = o.monitor.Count()
	return v
}

// Answers returns a copy of the current answers.
func (o *Orchestrator) Answers() map[uuid.UUID]model.Answer {
	o.mu.Lock()
	defer o.mu.Unlock()
	return maps.Clone(o.answers)
}
