package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

const examPayloadTTL = 10 * time.Minute

// ExamRepository handles exam data access. Definitions are cached in Redis because
// every session open and every lock profile download reads them.
type ExamRepository struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *ExamRepository {
	return &ExamRepository{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "exam_repository").Logger(),
	}
}

// GetDefinition retrieves an exam with its security settings and question order.
func (r *ExamRepository) GetDefinition(ctx context.Context, id uuid.UUID) (*model.ExamDefinition, error) {
	key := config.CacheKey.ExamPayloadKey(id.String())

	if r.rdb != nil {
		if raw, err := r.rdb.Get(ctx, key).Bytes(); err == nil {
			var e model.ExamDefinition
			if err := json.Unmarshal(raw, &e); err == nil {
				return &e, nil
			}
			r.log.Warn().Str("exam_id", id.String()).Msg("Discarding corrupt exam cache entry")
		} else if err != redis.Nil {
			r.log.Warn().Err(err).Msg("Exam cache read failed, falling back to database")
		}
	}

	e, err := r.loadDefinition(ctx, id)
	if err != nil {
		return nil, err
	}

	if r.rdb != nil {
		if raw, err := json.Marshal(e); err == nil {
			if err := r.rdb.Set(ctx, key, raw, examPayloadTTL).Err(); err != nil {
				r.log.Warn().Err(err).Msg("Exam cache write failed")
			}
		}
	}
	return e, nil
}

// Invalidate drops the cached definition, e.g. after authoring changes.
func (r *ExamRepository) Invalidate(ctx context.Context, id uuid.UUID) error {
	if r.rdb == nil {
		return nil
	}
	return r.rdb.Del(ctx, config.CacheKey.ExamPayloadKey(id.String())).Err()
}

func (r *ExamRepository) loadDefinition(ctx context.Context, id uuid.UUID) (*model.ExamDefinition, error) {
	e := &model.ExamDefinition{}
	s := &e.Security
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, duration_minutes, scheduled_start, scheduled_end,
		        requires_seb, is_optical_form,
		        seb_allowed_urls, seb_blocked_urls,
		        seb_block_clipboard, seb_block_screenshot, seb_block_dev_tools,
		        seb_block_right_click, seb_block_spell_check, seb_hide_taskbar,
		        seb_exit_credential, seb_integrity_key
		 FROM exams WHERE id = $1`, id,
	).Scan(&e.ID, &e.Title, &e.DurationMinutes, &e.ScheduledStart, &e.ScheduledEnd,
		&e.RequiresSEB, &e.IsOpticalForm,
		&s.AllowedURLs, &s.BlockedURLs,
		&s.BlockClipboard, &s.BlockScreenshot, &s.BlockDevTools,
		&s.BlockRightClick, &s.BlockSpellCheck, &s.HideTaskbar,
		&s.ExitCredential, &s.IntegrityKey)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id FROM questions WHERE exam_id = $1 ORDER BY order_num, id`, id)
	if err != nil {
		return nil, err
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, err
	}
	e.QuestionIDs = ids
	return e, nil
}
