package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EnrollmentRepository answers whether a user may take an exam.
type EnrollmentRepository struct {
	pool *pgxpool.Pool
}

// NewEnrollmentRepository creates a new EnrollmentRepository.
func NewEnrollmentRepository(pool *pgxpool.Pool) *EnrollmentRepository {
	return &EnrollmentRepository{pool: pool}
}

// CanAccess reports whether userID is enrolled in examID. An exam without any
// enrollment rows is open to every student.
func (r *EnrollmentRepository) CanAccess(ctx context.Context, examID uuid.UUID, userID int) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx,
		`SELECT NOT EXISTS (SELECT 1 FROM exam_enrollments WHERE exam_id = $1)
		     OR EXISTS (SELECT 1 FROM exam_enrollments WHERE exam_id = $1 AND user_id = $2)`,
		examID, userID,
	).Scan(&ok)
	return ok, err
}
