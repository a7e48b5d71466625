package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// EventSink is the durable destination of integrity events.
type EventSink interface {
	AppendViolation(ctx context.Context, event model.ViolationEvent) error
	AppendCapture(ctx context.Context, record model.CaptureRecord) error
}

type DispatcherConfig struct {
	QueueSize  int
	Workers    int
	MaxRetries uint64
	RetryDelay time.Duration
	// SendTimeout bounds a single sink call.
	SendTimeout time.Duration
}

// Dispatcher decouples event producers from the sink. Emit never blocks: when the
// queue is full, or a delivery still fails after MaxRetries, the event is dropped
// and counted.
type Dispatcher struct {
	sink EventSink
	cfg  DispatcherConfig
	log  zerolog.Logger

	queue chan dispatchJob
	wg    sync.WaitGroup

	mu      sync.RWMutex
	closed  bool
	started bool

	dropped   atomic.Uint64
	delivered atomic.Uint64
}

type dispatchJob struct {
	kind string
	send func(ctx context.Context) error
}

func NewDispatcher(sink EventSink, cfg DispatcherConfig, log zerolog.Logger) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 200 * time.Millisecond
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 5 * time.Second
	}
	return &Dispatcher{
		sink:  sink,
		cfg:   cfg,
		log:   log.With().Str("component", "event_dispatcher").Logger(),
		queue: make(chan dispatchJob, cfg.QueueSize),
	}
}

// Start launches the delivery workers. They run until Close.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true

	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.run(ctx)
	}
	d.log.Info().Int("workers", d.cfg.Workers).Int("queue_size", d.cfg.QueueSize).Msg("Dispatcher started")
}

// Close stops accepting events and waits for queued ones to be attempted.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
	d.log.Info().
		Uint64("delivered", d.delivered.Load()).
		Uint64("dropped", d.dropped.Load()).
		Msg("Dispatcher stopped")
}

func (d *Dispatcher) EmitViolation(event model.ViolationEvent) {
	d.enqueue(dispatchJob{
		kind: "violation",
		send: func(ctx context.Context) error { return d.sink.AppendViolation(ctx, event) },
	})
}

func (d *Dispatcher) EmitCapture(record model.CaptureRecord) {
	d.enqueue(dispatchJob{
		kind: "capture",
		send: func(ctx context.Context) error { return d.sink.AppendCapture(ctx, record) },
	})
}

// Dropped returns how many events were given up on.
func (d *Dispatcher) Dropped() uint64 { return d.dropped.Load() }

// Delivered returns how many events reached the sink.
func (d *Dispatcher) Delivered() uint64 { return d.delivered.Load() }

func (d *Dispatcher) enqueue(job dispatchJob) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.drop(job.kind, "dispatcher closed")
		return
	}
	select {
	case d.queue <- job:
	default:
		d.drop(job.kind, "queue full")
	}
}

func (d *Dispatcher) run(ctx context.Context) {
	defer d.wg.Done()
	for job := range d.queue {
		d.deliver(ctx, job)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, job dispatchJob) {
	backoff := retry.WithMaxRetries(d.cfg.MaxRetries, retry.NewConstant(d.cfg.RetryDelay))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		sendCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
		defer cancel()
		if err := job.send(sendCtx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		d.log.Warn().Err(err).Str("kind", job.kind).Msg("Event delivery failed after retries")
		d.drop(job.kind, "retries exhausted")
		return
	}
	d.delivered.Add(1)
}

func (d *Dispatcher) drop(kind, reason string) {
	n := d.dropped.Add(1)
	d.log.Warn().Str("kind", kind).Str("reason", reason).Uint64("dropped_total", n).Msg("Event dropped")
}
