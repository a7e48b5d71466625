package grading

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// MaxOpticalQuestions is the number of rows a printed answer sheet carries.
const MaxOpticalQuestions = 40

// ErrDetectorUnavailable is returned when no optical detector is configured.
var ErrDetectorUnavailable = errors.New("optical detector unavailable")

// Detection is one bubble the optical reader believes was filled in.
type Detection struct {
	QuestionIndex  int     `json:"question_index"`
	SelectedOption string  `json:"selected_option"`
	Confidence     float64 `json:"confidence"`
}

// Detector reads filled bubbles from a scanned answer sheet.
type Detector interface {
	Detect(ctx context.Context, image []byte, questionCount int) ([]Detection, error)
}

// OpticalQuestionCount caps the question count to what fits on one sheet.
func OpticalQuestionCount(questions []model.Question) int {
	if len(questions) > MaxOpticalQuestions {
		return MaxOpticalQuestions
	}
	return len(questions)
}

// AnswersFromDetections maps detections onto the ordered question list by index.
// Detections below minConfidence, out of range, or duplicated for the same row are ignored
// (the first confident detection for a row wins).
func AnswersFromDetections(questions []model.Question, detections []Detection, minConfidence float64) map[uuid.UUID]model.Answer {
	limit := OpticalQuestionCount(questions)
	answers := make(map[uuid.UUID]model.Answer, limit)
	for _, d := range detections {
		if d.QuestionIndex < 0 || d.QuestionIndex >= limit {
			continue
		}
		if d.Confidence < minConfidence || d.SelectedOption == "" {
			continue
		}
		qid := questions[d.QuestionIndex].ID
		if _, seen := answers[qid]; seen {
			continue
		}
		answers[qid] = model.TextAnswer(strings.ToUpper(strings.TrimSpace(d.SelectedOption)))
	}
	return answers
}
