package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// QuestionRepository handles question data access.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// ListByExam retrieves all questions for a given exam, ordered by order_num then id
// so equal positions keep a stable order.
func (r *QuestionRepository) ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, exam_id, question_type, points, correct_answer, options, order_num
		 FROM questions WHERE exam_id = $1
		 ORDER BY order_num, id`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var (
			q   model.Question
			typ string
		)
		if err := rows.Scan(questionScanTargets(&q, &typ)...); err != nil {
			return nil, err
		}
		// Unknown types are kept as-is; grading treats them as identifier comparisons.
		if parsed, err := model.ParseQuestionType(typ); err == nil {
			q.Type = parsed
		} else {
			q.Type = model.QuestionType(typ)
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

func questionScanTargets(q *model.Question, typ *string) []any {
	return []any{&q.ID, &q.ExamID, typ, &q.Points, &q.Correct, &q.Options, &q.OrderNum}
}
