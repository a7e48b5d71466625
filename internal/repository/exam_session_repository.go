package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// ExamSessionRepository keeps the durable record of each session's lifecycle.
// The live state machine is in memory; rows here are for audit and results joins.
type ExamSessionRepository struct {
	pool *pgxpool.Pool
}

// NewExamSessionRepository creates a new ExamSessionRepository.
func NewExamSessionRepository(pool *pgxpool.Pool) *ExamSessionRepository {
	return &ExamSessionRepository{pool: pool}
}

// Create inserts a session row when a session becomes active.
func (r *ExamSessionRepository) Create(ctx context.Context, s *model.ExamSession) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO exam_sessions (id, exam_id, user_id, state, started_at, deadline_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO NOTHING`,
		s.ID, s.ExamID, s.UserID, s.State, s.StartedAt, s.DeadlineAt,
	)
	return err
}

// MarkAborted records an aborted session. Graded sessions are finalized by ResultRepository.Save.
func (r *ExamSessionRepository) MarkAborted(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE exam_sessions
		 SET state = $1, abort_reason = $2, finished_at = NOW()
		 WHERE id = $3 AND state = $4`,
		model.SessionStateAborted, reason, id, model.SessionStateActive,
	)
	return err
}

// HasFinished reports whether userID already completed examID (graded or aborted).
func (r *ExamSessionRepository) HasFinished(ctx context.Context, examID uuid.UUID, userID int) (bool, error) {
	var finished bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM exam_sessions
		   WHERE exam_id = $1 AND user_id = $2 AND state = ANY($3)
		 )`,
		examID, userID,
		[]string{string(model.SessionStateSubmitted), string(model.SessionStateExpired), string(model.SessionStateAborted)},
	).Scan(&finished)
	return finished, err
}
