package grading

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// Aggregate grades every question in order and produces the session's result.
//
// Questions without an answer still count toward MaxPoints. Answers that reference
// an unknown question are reported in Unmatched and never scored.
func Aggregate(session model.ExamSession, questions []model.Question, trigger model.SubmitTrigger, gradedAt time.Time) *model.GradingResult {
	res := &model.GradingResult{
		SessionID: session.ID,
		ExamID:    session.ExamID,
		UserID:    session.UserID,
		Trigger:   trigger,
		Questions: make([]model.QuestionResult, 0, len(questions)),
		GradedAt:  gradedAt,
	}

	known := make(map[uuid.UUID]struct{}, len(questions))
	for _, q := range questions {
		known[q.ID] = struct{}{}
		res.MaxPoints += q.Points

		var submitted *model.Answer
		entry := model.QuestionResult{QuestionID: q.ID, Type: q.Type, MaxPoints: q.Points}
		if a, ok := session.Answers[q.ID]; ok {
			submitted = &a
			entry.Submitted = a
		}

		out := Evaluate(q, submitted)
		entry.IsCorrect = out.Correct
		entry.PointsAwarded = out.Points
		entry.NeedsReview = out.NeedsReview
		if out.NeedsReview {
			res.PendingReview++
		}

		res.TotalPoints += out.Points
		res.Questions = append(res.Questions, entry)
	}

	for qid := range session.Answers {
		if _, ok := known[qid]; !ok {
			res.Unmatched = append(res.Unmatched, qid.String())
		}
	}
	sort.Strings(res.Unmatched)

	res.Percentage = Percentage(res.TotalPoints, res.MaxPoints)
	return res
}

// Percentage returns round(total/max*100) clamped to [0, 100]; zero when max is zero.
func Percentage(total, max int) int {
	if max <= 0 || total <= 0 {
		return 0
	}
	p := int(math.Round(float64(total) / float64(max) * 100))
	if p > 100 {
		return 100
	}
	return p
}
