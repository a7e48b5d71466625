package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// ErrResultExists is returned when a session already has a grading result.
var ErrResultExists = errors.New("grading result already exists")

// ResultRepository stores grading results. A result and its per-question items
// are written in one transaction together with the session's final state.
type ResultRepository struct {
	pool *pgxpool.Pool
}

// NewResultRepository creates a new ResultRepository.
func NewResultRepository(pool *pgxpool.Pool) *ResultRepository {
	return &ResultRepository{pool: pool}
}

// Save persists result. It fails with ErrResultExists when the session was already graded.
func (r *ResultRepository) Save(ctx context.Context, result *model.GradingResult) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`INSERT INTO grading_results
		   (session_id, exam_id, user_id, trigger, total_points, max_points,
		    percentage, pending_review, unmatched, graded_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (session_id) DO NOTHING`,
		resultRow(result)...,
	)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrResultExists
	}

	batch := &pgx.Batch{}
	for _, q := range result.Questions {
		batch.Queue(
			`INSERT INTO grading_result_items
			   (session_id, question_id, question_type, submitted, is_correct,
			    points_awarded, max_points, needs_review)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			itemRow(result.SessionID, q)...,
		)
	}
	state := model.SessionStateSubmitted
	if result.Trigger == model.TriggerTimer {
		state = model.SessionStateExpired
	}
	batch.Queue(
		`UPDATE exam_sessions SET state = $1, trigger = $2, finished_at = $3 WHERE id = $4`,
		state, result.Trigger, result.GradedAt, result.SessionID,
	)

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert result items: %w", err)
	}
	return tx.Commit(ctx)
}

// Exists reports whether sessionID has a stored result.
func (r *ResultRepository) Exists(ctx context.Context, sessionID uuid.UUID) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM grading_results WHERE session_id = $1)`, sessionID,
	).Scan(&ok)
	return ok, err
}

// GetBySession loads a stored result with its items.
func (r *ResultRepository) GetBySession(ctx context.Context, sessionID uuid.UUID) (*model.GradingResult, error) {
	res := &model.GradingResult{SessionID: sessionID}
	err := r.pool.QueryRow(ctx,
		`SELECT exam_id, user_id, trigger, total_points, max_points, percentage,
		        pending_review, unmatched, graded_at
		 FROM grading_results WHERE session_id = $1`, sessionID,
	).Scan(resultScanTargets(res)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT question_id, question_type, submitted, is_correct, points_awarded, max_points, needs_review
		 FROM grading_result_items WHERE session_id = $1 ORDER BY id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			q         model.QuestionResult
			submitted []byte
		)
		if err := rows.Scan(itemScanTargets(&q, &submitted)...); err != nil {
			return nil, err
		}
		if len(submitted) > 0 {
			if err := q.Submitted.UnmarshalJSON(submitted); err != nil {
				return nil, fmt.Errorf("decode submitted answer: %w", err)
			}
		}
		res.Questions = append(res.Questions, q)
	}
	return res, rows.Err()
}

// resultRow is the grading_results insert argument list, in column order.
func resultRow(r *model.GradingResult) []any {
	return []any{
		r.SessionID, r.ExamID, r.UserID, r.Trigger,
		r.TotalPoints, r.MaxPoints, r.Percentage, r.PendingReview,
		r.Unmatched, r.GradedAt,
	}
}

// resultScanTargets mirrors resultRow without session_id.
func resultScanTargets(r *model.GradingResult) []any {
	return []any{
		&r.ExamID, &r.UserID, &r.Trigger,
		&r.TotalPoints, &r.MaxPoints, &r.Percentage, &r.PendingReview,
		&r.Unmatched, &r.GradedAt,
	}
}

func itemRow(sessionID uuid.UUID, q model.QuestionResult) []any {
	return []any{
		sessionID, q.QuestionID, q.Type, submittedJSON(q.Submitted),
		q.IsCorrect, q.PointsAwarded, q.MaxPoints, q.NeedsReview,
	}
}

func itemScanTargets(q *model.QuestionResult, submitted *[]byte) []any {
	return []any{&q.QuestionID, &q.Type, submitted, &q.IsCorrect, &q.PointsAwarded, &q.MaxPoints, &q.NeedsReview}
}

// submittedJSON encodes an answer for a jsonb column; an empty answer is stored as NULL.
func submittedJSON(a model.Answer) any {
	if a.IsEmpty() {
		return nil
	}
	raw, err := a.MarshalJSON()
	if err != nil {
		return nil
	}
	return string(raw)
}
