package integrity

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// DefaultPollInterval is how often the viewport heuristic is re-evaluated.
const DefaultPollInterval = time.Second

// Emitter receives classified violation events. Implementations must not block.
type Emitter interface {
	EmitViolation(event model.ViolationEvent)
}

// ViewportProbe returns the latest known window measurement, if any.
type ViewportProbe interface {
	Viewport() (ViewportSignal, bool)
}

// MonitorConfig wires a Monitor to one session.
type MonitorConfig struct {
	SessionID    uuid.UUID
	ExamID       uuid.UUID
	UserID       int
	Emitter      Emitter
	Probe        ViewportProbe
	Clock        clockwork.Clock
	PollInterval time.Duration

	// Threshold > 0 calls OnThreshold once the non-lifecycle count reaches it.
	Threshold   int
	OnThreshold func(count int)
}

// Monitor classifies signals for one session and forwards them to an Emitter.
// The violation counter belongs to the instance, so sessions never share state.
type Monitor struct {
	cfg MonitorConfig
	clk clockwork.Clock
	log zerolog.Logger

	mu        sync.Mutex
	count     int
	attached  bool
	detached  bool
	panelOpen bool
	fired     bool
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewMonitor(cfg MonitorConfig, log zerolog.Logger) *Monitor {
	clk := cfg.Clock
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	return &Monitor{
		cfg: cfg,
		clk: clk,
		log: log.With().
			Str("component", "integrity_monitor").
			Str("session_id", cfg.SessionID.String()).
			Logger(),
	}
}

// Attach emits exam_start and starts viewport polling. Calls after the first are no-ops.
func (m *Monitor) Attach(ctx context.Context) {
	m.mu.Lock()
	if m.attached || m.detached {
		m.mu.Unlock()
		return
	}
	m.attached = true
	pollCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	m.emitLocked(model.ViolationExamStart, nil, false)
	m.mu.Unlock()

	go m.poll(pollCtx)
}

// Detach stops polling and emits exam_end exactly once. Safe to call repeatedly,
// and before Attach (in which case nothing is emitted).
func (m *Monitor) Detach() {
	m.mu.Lock()
	if m.detached {
		m.mu.Unlock()
		return
	}
	m.detached = true
	cancel, done, attached := m.cancel, m.done, m.attached
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	if attached {
		m.mu.Lock()
		m.emitLocked(model.ViolationExamEnd, nil, false)
		m.mu.Unlock()
	}
}

// Handle classifies sig and emits the resulting event. It reports whether an
// event was emitted; unknown or benign signals and signals outside the
// attach/detach window are dropped.
func (m *Monitor) Handle(sig Signal) bool {
	m.mu.Lock()
	if !m.attached || m.detached {
		m.mu.Unlock()
		return false
	}
	if v, isViewport := sig.(ViewportSignal); isViewport && !m.viewportEdgeLocked(v) {
		m.mu.Unlock()
		return false
	}
	c, ok := Classify(sig)
	if !ok {
		m.mu.Unlock()
		return false
	}
	m.emitLocked(c.Kind, c.Metadata, true)
	notify := m.thresholdReachedLocked()
	count := m.count
	m.mu.Unlock()

	if notify {
		go m.cfg.OnThreshold(count)
	}
	return true
}

// Report emits an event the client classified itself. Like Handle it is
// dropped outside the attach/detach window.
func (m *Monitor) Report(kind model.ViolationKind, metadata map[string]string) bool {
	m.mu.Lock()
	if !m.attached || m.detached {
		m.mu.Unlock()
		return false
	}
	m.emitLocked(kind, metadata, true)
	notify := m.thresholdReachedLocked()
	count := m.count
	m.mu.Unlock()

	if notify {
		go m.cfg.OnThreshold(count)
	}
	return true
}

// Record emits a server-observed event such as a monitor that failed to attach.
func (m *Monitor) Record(kind model.ViolationKind, metadata map[string]string) {
	m.mu.Lock()
	m.emitLocked(kind, metadata, false)
	notify := m.thresholdReachedLocked()
	count := m.count
	m.mu.Unlock()

	if notify {
		go m.cfg.OnThreshold(count)
	}
}

// Count returns the number of non-lifecycle events emitted so far.
func (m *Monitor) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}

func (m *Monitor) poll(ctx context.Context) {
	defer close(m.done)
	if m.cfg.Probe == nil {
		<-ctx.Done()
		return
	}

	ticker := m.clk.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if v, ok := m.cfg.Probe.Viewport(); ok {
				m.Handle(v)
			}
		}
	}
}

// viewportEdgeLocked reports whether v is a closed-to-open transition of the
// inspection panel, so a panel left open is reported once rather than every poll.
func (m *Monitor) viewportEdgeLocked(v ViewportSignal) bool {
	open := PanelOpen(v)
	rising := open && !m.panelOpen
	m.panelOpen = open
	return rising
}

func (m *Monitor) thresholdReachedLocked() bool {
	if m.fired || m.cfg.Threshold <= 0 || m.cfg.OnThreshold == nil {
		return false
	}
	if m.count >= m.cfg.Threshold {
		m.fired = true
		return true
	}
	return false
}

func (m *Monitor) emitLocked(kind model.ViolationKind, metadata map[string]string, clientReported bool) {
	if !kind.IsLifecycle() {
		m.count++
	}
	if m.cfg.Emitter == nil {
		return
	}
	m.cfg.Emitter.EmitViolation(model.ViolationEvent{
		SessionID:      m.cfg.SessionID,
		ExamID:         m.cfg.ExamID,
		UserID:         m.cfg.UserID,
		Kind:           kind,
		Timestamp:      m.clk.Now(),
		Metadata:       metadata,
		ClientReported: clientReported,
	})
	m.log.Debug().Str("kind", string(kind)).Msg("Violation emitted")
}

// LatestViewport is a ViewportProbe holding the most recent measurement pushed by the client.
type LatestViewport struct {
	mu  sync.RWMutex
	v   ViewportSignal
	set bool
}

func (l *LatestViewport) Set(v ViewportSignal) {
	l.mu.Lock()
	l.v, l.set = v, true
	l.mu.Unlock()
}

func (l *LatestViewport) Viewport() (ViewportSignal, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.v, l.set
}
