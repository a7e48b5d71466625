package grading

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/stemsi/exstem-proctor/internal/model"
)

func question(t model.QuestionType, points int, correct model.Answer) model.Question {
	return model.Question{ID: uuid.New(), Type: t, Points: points, Correct: correct}
}

func ptr(a model.Answer) *model.Answer { return &a }

func TestEvaluateEmptySubmissionIsAlwaysIncorrect(t *testing.T) {
	types := []model.QuestionType{
		model.QuestionTypeMultipleChoice, model.QuestionTypeTrueFalse,
		model.QuestionTypeMultipleSelection, model.QuestionTypeFillBlank,
		model.QuestionTypeShortAnswer, model.QuestionTypeMatching,
		model.QuestionTypeOrdering, model.QuestionTypeCalculation,
		model.QuestionTypeHotspot, model.QuestionTypeCodeExecution,
	}
	empties := []*model.Answer{
		nil,
		ptr(model.TextAnswer("")),
		ptr(model.TextAnswer("   ")),
		ptr(model.ChoiceAnswer()),
		ptr(model.ChoiceAnswer("", "")),
	}

	for _, qt := range types {
		q := question(qt, 5, model.TextAnswer("A"))
		for _, sub := range empties {
			out := Evaluate(q, sub)
			assert.False(t, out.Correct, "type %s", qt)
			assert.Zero(t, out.Points, "type %s", qt)
			assert.False(t, out.NeedsReview, "type %s", qt)
		}
	}
}

func TestEvaluateExactIdentifierTypes(t *testing.T) {
	q := question(model.QuestionTypeMultipleChoice, 2, model.TextAnswer("B"))

	assert.Equal(t, Outcome{Correct: true, Points: 2}, Evaluate(q, ptr(model.TextAnswer("B"))))
	assert.Equal(t, Outcome{}, Evaluate(q, ptr(model.TextAnswer("b"))), "identifier match is case-sensitive")
	assert.Equal(t, Outcome{}, Evaluate(q, ptr(model.TextAnswer("C"))))

	tf := question(model.QuestionTypeTrueFalse, 1, model.TextAnswer("true"))
	assert.True(t, Evaluate(tf, ptr(model.TextAnswer("true"))).Correct)
	assert.False(t, Evaluate(tf, ptr(model.TextAnswer("false"))).Correct)
}

func TestEvaluateRichTypesReduceToIdentifier(t *testing.T) {
	for _, qt := range []model.QuestionType{
		model.QuestionTypeMatching, model.QuestionTypeOrdering, model.QuestionTypeCalculation,
		model.QuestionTypeHotspot, model.QuestionTypeCodeExecution,
	} {
		q := question(qt, 3, model.TextAnswer("C"))
		assert.True(t, Evaluate(q, ptr(model.TextAnswer("C"))).Correct, "type %s", qt)
		assert.True(t, Evaluate(q, ptr(model.ChoiceAnswer("C"))).Correct, "single-element set for %s", qt)
		assert.False(t, Evaluate(q, ptr(model.ChoiceAnswer("C", "D"))).Correct, "no structural comparison for %s", qt)
	}
}

func TestEvaluateMultipleSelectionIgnoresOrderAndDuplicates(t *testing.T) {
	q := question(model.QuestionTypeMultipleSelection, 4, model.ChoiceAnswer("A", "B"))

	assert.Equal(t, Evaluate(q, ptr(model.ChoiceAnswer("A", "B"))), Evaluate(q, ptr(model.ChoiceAnswer("B", "A"))))
	assert.True(t, Evaluate(q, ptr(model.ChoiceAnswer("B", "A"))).Correct)
	assert.True(t, Evaluate(q, ptr(model.ChoiceAnswer("A", "B", "A"))).Correct)
	assert.False(t, Evaluate(q, ptr(model.ChoiceAnswer("A"))).Correct)
	assert.False(t, Evaluate(q, ptr(model.ChoiceAnswer("A", "B", "C"))).Correct)
}

func TestEvaluateTextAnswersAreTrimmedAndCaseInsensitive(t *testing.T) {
	q := question(model.QuestionTypeShortAnswer, 1, model.TextAnswer("paris"))
	assert.True(t, Evaluate(q, ptr(model.TextAnswer("  Paris "))).Correct)

	fb := question(model.QuestionTypeFillBlank, 1, model.TextAnswer(" Photosynthesis"))
	assert.True(t, Evaluate(fb, ptr(model.TextAnswer("PHOTOSYNTHESIS"))).Correct)
	assert.False(t, Evaluate(fb, ptr(model.TextAnswer("photo synthesis"))).Correct)
}

func TestEvaluateManualReviewTypes(t *testing.T) {
	for _, qt := range []model.QuestionType{model.QuestionTypeLongAnswer, model.QuestionTypeFileUpload} {
		q := question(qt, 10, model.TextAnswer("anything"))
		out := Evaluate(q, ptr(model.TextAnswer("anything")))
		assert.Equal(t, Outcome{NeedsReview: true}, out, "type %s", qt)
	}
}
