package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// ViolationRepository reads persisted integrity events for instructors.
type ViolationRepository struct {
	pool *pgxpool.Pool
}

// NewViolationRepository creates a new ViolationRepository.
func NewViolationRepository(pool *pgxpool.Pool) *ViolationRepository {
	return &ViolationRepository{pool: pool}
}

// CountsByUser returns per-user, per-kind counts for one exam. Lifecycle
// markers are excluded; they are not violations.
func (r *ViolationRepository) CountsByUser(ctx context.Context, examID uuid.UUID) (map[int]map[model.ViolationKind]int, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT user_id, kind, COUNT(*)
		 FROM exam_violations
		 WHERE exam_id = $1 AND kind <> ALL($2)
		 GROUP BY user_id, kind`,
		examID, []string{string(model.ViolationExamStart), string(model.ViolationExamEnd)},
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[int]map[model.ViolationKind]int)
	for rows.Next() {
		var (
			userID int
			kind   string
			n      int
		)
		if err := rows.Scan(&userID, &kind, &n); err != nil {
			return nil, err
		}
		if counts[userID] == nil {
			counts[userID] = make(map[model.ViolationKind]int)
		}
		counts[userID][model.ViolationKind(kind)] = n
	}
	return counts, rows.Err()
}

// ListBySession returns a session's events in order of occurrence.
func (r *ViolationRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]model.ViolationEvent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT session_id, exam_id, user_id, kind, metadata, client_reported, occurred_at
		 FROM exam_violations
		 WHERE session_id = $1
		 ORDER BY occurred_at, id`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.ViolationEvent
	for rows.Next() {
		var (
			e    model.ViolationEvent
			kind string
		)
		if err := rows.Scan(&e.SessionID, &e.ExamID, &e.UserID, &kind, &e.Metadata, &e.ClientReported, &e.Timestamp); err != nil {
			return nil, err
		}
		e.Kind = model.ViolationKind(kind)
		events = append(events, e)
	}
	return events, rows.Err()
}
