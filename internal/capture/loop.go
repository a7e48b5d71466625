// Package capture runs the periodic visual snapshot loop of an active session.
package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-proctor/internal/model"
)

const (
	DefaultInterval = 5 * time.Second
	stopGrace       = 2 * time.Second
)

// ErrNoFrame is returned by a Source that has nothing to offer yet.
var ErrNoFrame = errors.New("no frame available")

// Frame is one encoded snapshot.
type Frame struct {
	Data        []byte
	ContentType string
}

// Source acquires a snapshot from the capture device.
type Source interface {
	Snapshot(ctx context.Context) (Frame, error)
}

// Store persists frame bytes and returns an opaque reference.
type Store interface {
	Put(ctx context.Context, key string, frame Frame) (string, error)
}

// Emitter receives capture records. Implementations must not block.
type Emitter interface {
	EmitCapture(record model.CaptureRecord)
}

// Config wires a Loop to one session.
type Config struct {
	SessionID uuid.UUID
	ExamID    uuid.UUID
	UserID    int
	Interval  time.Duration
	Clock     clockwork.Clock
	Source    Source
	Store     Store
	Emitter   Emitter
}

// Loop captures on a fixed cadence until stopped. Once Stop returns no further
// record is emitted, even if a tick was in flight.
type Loop struct {
	cfg Config
	clk clockwork.Clock
	log zerolog.Logger

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewLoop(cfg Config, log zerolog.Logger) *Loop {
	clk := cfg.Clock
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	return &Loop{
		cfg: cfg,
		clk: clk,
		log: log.With().
			Str("component", "capture_loop").
			Str("session_id", cfg.SessionID.String()).
			Logger(),
	}
}

// Start launches the loop. It fails when the loop was already started or stopped.
func (l *Loop) Start(ctx context.Context) error {
	if l.cfg.Source == nil || l.cfg.Store == nil {
		return fmt.Errorf("capture loop: source and store are required")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started || l.stopped {
		return fmt.Errorf("capture loop: already started")
	}
	l.started = true

	runCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.done = make(chan struct{})
	go l.run(runCtx)

	l.log.Info().Dur("interval", l.cfg.Interval).Msg("Capture loop started")
	return nil
}

// Stop halts the loop. The stopped flag is set before waiting, so a tick still
// running cannot emit; the wait itself is bounded.
func (l *Loop) Stop() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.stopped = true
	cancel, done := l.cancel, l.done
	l.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()

	select {
	case <-done:
	case <-time.After(stopGrace):
		l.log.Warn().Msg("Capture loop did not exit within grace period")
	}
}

func (l *Loop) run(ctx context.Context) {
	defer close(l.done)

	ticker := l.clk.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			l.tick(ctx)
		}
	}
}

func (l *Loop) tick(ctx context.Context) {
	frame, err := l.cfg.Source.Snapshot(ctx)
	if err != nil {
		if !errors.Is(err, ErrNoFrame) && ctx.Err() == nil {
			l.log.Warn().Err(err).Msg("Capture source unavailable")
		}
		return
	}

	ts := l.clk.Now()
	key := fmt.Sprintf("%s/%s/%d", l.cfg.ExamID, l.cfg.SessionID, ts.UnixMilli())
	ref, err := l.cfg.Store.Put(ctx, key, frame)
	if err != nil {
		if ctx.Err() == nil {
			l.log.Warn().Err(err).Msg("Failed to store capture")
		}
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped || l.cfg.Emitter == nil {
		return
	}
	l.cfg.Emitter.EmitCapture(model.CaptureRecord{
		SessionID:   l.cfg.SessionID,
		ExamID:      l.cfg.ExamID,
		UserID:      l.cfg.UserID,
		Timestamp:   ts,
		PayloadRef:  ref,
		ContentType: frame.ContentType,
	})
}
