package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// rowDecoder turns one queued JSON payload into a table row.
type rowDecoder func(raw string) ([]any, error)

// EventWorker drains one Redis event queue into an append-only Postgres table.
type EventWorker struct {
	pool    *pgxpool.Pool
	rdb     *redis.Client
	log     zerolog.Logger
	queue   string
	table   string
	columns []string
	decode  rowDecoder
}

// NewViolationWorker persists queued violation events into exam_violations.
func NewViolationWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *EventWorker {
	return &EventWorker{
		pool:    pool,
		rdb:     rdb,
		log:     log.With().Str("component", "violation_worker").Logger(),
		queue:   config.WorkerKey.PersistViolationsQueue,
		table:   "exam_violations",
		columns: []string{"session_id", "exam_id", "user_id", "kind", "metadata", "client_reported", "occurred_at"},
		decode:  decodeViolationRow,
	}
}

// NewCaptureWorker persists queued capture references into exam_captures.
func NewCaptureWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *EventWorker {
	return &EventWorker{
		pool:    pool,
		rdb:     rdb,
		log:     log.With().Str("component", "capture_worker").Logger(),
		queue:   config.WorkerKey.PersistCapturesQueue,
		table:   "exam_captures",
		columns: []string{"session_id", "exam_id", "user_id", "payload_ref", "content_type", "captured_at"},
		decode:  decodeCaptureRow,
	}
}

type queuedRow struct {
	raw    string
	values []any
}

func (w *EventWorker) Start(ctx context.Context) {
	w.log.Info().Str("queue", w.queue).Msg("Event worker started")

	buffer := make([]queuedRow, 0, BatchSize)
	lastFlushTime := time.Now()

	for {
		// 1. Check Flush Conditions (Time or Size)
		if len(buffer) > 0 {
			if len(buffer) >= BatchSize || time.Since(lastFlushTime) >= BatchTimeout {
				w.flushSafe(ctx, buffer)
				buffer = buffer[:0]
				lastFlushTime = time.Now()
			}
		}

		// 2. Check Context (Graceful Shutdown)
		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		// 3. Fetch from Redis. BLPop returns immediately if data exists.
		result, err := w.rdb.BLPop(ctx, PollTimeout, w.queue).Result()
		if err != nil {
			if err == redis.Nil {
				continue // Queue empty, loop back to check flush timer
			}
			if ctx.Err() != nil {
				continue // Shutdown handled at the top of the loop
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			time.Sleep(3 * time.Second)
			continue
		}

		if len(result) < 2 {
			continue
		}

		values, err := w.decode(result[1])
		if err != nil {
			// Malformed payloads can never succeed. Log and discard.
			w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed event")
			continue
		}

		buffer = append(buffer, queuedRow{raw: result[1], values: values})
	}
}

// flushSafe attempts bulk insert, then fallback insert, then requeue
func (w *EventWorker) flushSafe(ctx context.Context, batch []queuedRow) {
	if err := w.bulkInsert(ctx, batch); err != nil {
		w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")
		w.fallbackInsert(ctx, batch)
	}
}

func (w *EventWorker) bulkInsert(ctx context.Context, batch []queuedRow) error {
	rows := make([][]any, 0, len(batch))
	for _, r := range batch {
		rows = append(rows, r.values)
	}

	_, err := w.pool.CopyFrom(
		ctx,
		pgx.Identifier{w.table},
		w.columns,
		pgx.CopyFromRows(rows),
	)
	return err
}

func (w *EventWorker) fallbackInsert(ctx context.Context, batch []queuedRow) {
	query := insertQuery(w.table, w.columns)
	requeueList := make([]string, 0)

	for _, r := range batch {
		if _, err := w.pool.Exec(ctx, query, r.values...); err != nil {
			w.log.Error().Err(err).Msg("Insert failed, requeueing")
			requeueList = append(requeueList, r.raw)
		}
	}

	if len(requeueList) > 0 {
		w.requeue(ctx, requeueList)
	}
}

func (w *EventWorker) requeue(ctx context.Context, items []string) {
	pipe := w.rdb.Pipeline()
	for _, raw := range items {
		pipe.RPush(ctx, w.queue, raw)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error().Err(err).Int("count", len(items)).Msg("CRITICAL: Failed to requeue events to Redis. Data loss occurred.")
		return
	}
	w.log.Info().Int("count", len(items)).Msg("Requeued failed events back to Redis")
	// Avoid thrashing while the database is down.
	time.Sleep(2 * time.Second)
}

func (w *EventWorker) shutdown(buffer []queuedRow) {
	w.log.Info().Msg("Worker stopping, flushing remaining buffer...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(buffer) > 0 {
		w.flushSafe(shutdownCtx, buffer)
	}
}

func insertQuery(table string, columns []string) string {
	placeholders := make([]string, len(columns))
	for i := range columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		pgx.Identifier{table}.Sanitize(),
		strings.Join(columns, ", "),
		strings.Join(placeholders, ", "),
	)
}

func decodeViolationRow(raw string) ([]any, error) {
	var e model.ViolationEvent
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return nil, err
	}
	if !e.Kind.Valid() {
		return nil, fmt.Errorf("unknown violation kind %q", e.Kind)
	}
	metadata := e.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	// Events reported outside a live session carry no session id.
	var sessionID any = e.SessionID
	if e.SessionID == uuid.Nil {
		sessionID = nil
	}
	return []any{sessionID, e.ExamID, e.UserID, string(e.Kind), metadata, e.ClientReported, e.Timestamp}, nil
}

func decodeCaptureRow(raw string) ([]any, error) {
	var r model.CaptureRecord
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil, err
	}
	if r.PayloadRef == "" {
		return nil, fmt.Errorf("capture without payload reference")
	}
	return []any{r.SessionID, r.ExamID, r.UserID, r.PayloadRef, r.ContentType, r.Timestamp}, nil
}
