package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/session"
)

func TestViolationService_Log(t *testing.T) {
	events := &fakeEvents{}
	svc := NewViolationService(events, &fakeViolations{}, session.NewRegistry(), clockwork.NewFakeClockAt(t0), zerolog.Nop())
	examID := uuid.New()

	for _, kind := range []string{"not_a_kind", "exam_start", "exam_end"} {
		assert.False(t, svc.Log(examID, model.LogViolationRequest{UserID: 3, Kind: kind}, ReportContext{}), kind)
	}
	assert.Empty(t, events.kinds())

	ok := svc.Log(examID, model.LogViolationRequest{
		UserID:   3,
		Kind:     "tab_hidden",
		Metadata: map[string]string{"duration_ms": "1200"},
		IsSEB:    true,
	}, ReportContext{ClientIP: "10.0.0.9", UserAgent: "SEB/3.5"})
	require.True(t, ok)

	got := events.last()
	assert.Equal(t, model.ViolationTabHidden, got.Kind)
	assert.Equal(t, uuid.Nil, got.SessionID)
	assert.Equal(t, examID, got.ExamID)
	assert.Equal(t, t0, got.Timestamp)
	assert.True(t, got.ClientReported)
	assert.Equal(t, "1200", got.Metadata["duration_ms"])
	assert.Equal(t, "10.0.0.9", got.Metadata["ip_address"])
	assert.Equal(t, "SEB/3.5", got.Metadata["user_agent"])
	assert.Equal(t, "true", got.Metadata["is_seb_browser"])
}

func TestViolationService_LogWithoutSession(t *testing.T) {
	events := &fakeEvents{}
	svc := NewViolationService(events, &fakeViolations{}, nil, nil, zerolog.Nop())

	require.True(t, svc.Log(uuid.New(), model.LogViolationRequest{UserID: 3, Kind: "right_click"}, ReportContext{}))
	assert.Equal(t, uuid.Nil, events.last().SessionID)
}

func TestViolationService_Summary(t *testing.T) {
	repo := &fakeViolations{counts: map[int]map[model.ViolationKind]int{
		9: {model.ViolationPasteAttempt: 2, model.ViolationExamStart: 1},
		4: {model.ViolationTabHidden: 1, model.ViolationDevtoolsOpen: 3},
	}}
	svc := NewViolationService(&fakeEvents{}, repo, nil, nil, zerolog.Nop())

	summary, err := svc.Summary(context.Background(), uuid.New())
	require.NoError(t, err)
	require.Len(t, summary, 2)

	assert.Equal(t, 4, summary[0].UserID)
	assert.Equal(t, 4, summary[0].TotalViolations)
	assert.Equal(t, 9, summary[1].UserID)
	assert.Equal(t, 2, summary[1].TotalViolations)
	assert.NotContains(t, summary[1].Violations, model.ViolationExamStart)
}

func TestViolationService_LogRoutesThroughLiveSession(t *testing.T) {
	f := newSessionFixture(t, session.Policy{AbortAfterViolations: 2})
	svc := NewViolationService(f.events, &fakeViolations{}, f.registry, f.fc, zerolog.Nop())
	sid := f.open(t, 7).Session.SessionID
	other := f.open(t, 8).Session.SessionID

	report := func(t *testing.T, sessionID uuid.UUID, examID uuid.UUID, userID int) model.ViolationEvent {
		t.Helper()
		require.True(t, svc.Log(examID, model.LogViolationRequest{
			SessionID: &sessionID, UserID: userID, Kind: "window_blur",
		}, ReportContext{ClientIP: "10.0.0.9"}))
		return f.events.last()
	}

	t.Run("unknown session is stored without session", func(t *testing.T) {
		assert.Equal(t, uuid.Nil, report(t, uuid.New(), f.exam.ID, 7).SessionID)
	})
	t.Run("session of another user is stored without session", func(t *testing.T) {
		assert.Equal(t, uuid.Nil, report(t, other, f.exam.ID, 7).SessionID)
	})
	t.Run("session of another exam is stored without session", func(t *testing.T) {
		assert.Equal(t, uuid.Nil, report(t, sid, uuid.New(), 7).SessionID)
	})

	got := report(t, sid, f.exam.ID, 7)
	assert.Equal(t, sid, got.SessionID)
	assert.Equal(t, "10.0.0.9", got.Metadata["ip_address"])
	assert.True(t, got.ClientReported)

	view, err := f.svc.State(context.Background(), sid, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, view.ViolationCount)

	// a second report reaches the abort threshold of the live session
	report(t, sid, f.exam.ID, 7)
	require.Eventually(t, func() bool {
		_, ok := f.sessions.abortReason(sid)
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, uuid.Nil, report(t, sid, f.exam.ID, 7).SessionID, "finished session no longer accepts events")
}

func TestViolationService_LogAfterGradingDropsSession(t *testing.T) {
	f := newSessionFixture(t, session.Policy{})
	svc := NewViolationService(f.events, &fakeViolations{}, f.registry, f.fc, zerolog.Nop())
	sid := f.open(t, 7).Session.SessionID

	result, err := f.svc.Submit(context.Background(), sid, 7, true)
	require.NoError(t, err)

	require.True(t, svc.Log(f.exam.ID, model.LogViolationRequest{SessionID: &sid, UserID: 7, Kind: "tab_hidden"}, ReportContext{}))
	got := f.events.last()
	assert.Equal(t, uuid.Nil, got.SessionID)

	for _, e := range f.events.all() {
		if e.SessionID == sid {
			assert.False(t, e.Timestamp.After(result.GradedAt), "%s stamped after grading", e.Kind)
		}
	}
}
