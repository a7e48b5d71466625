// Package grading implements per-question-type answer evaluation and score aggregation.
package grading

import (
	"strings"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// Outcome is the result of evaluating one submitted answer.
type Outcome struct {
	Correct     bool
	Points      int
	NeedsReview bool
}

// Evaluate grades a single answer against its question. It never panics and
// treats a missing submission as incorrect.
func Evaluate(q model.Question, submitted *model.Answer) Outcome {
	if !q.Type.AutoGradable() {
		return Outcome{NeedsReview: true}
	}
	if submitted == nil || submitted.IsEmpty() {
		return Outcome{}
	}

	var correct bool
	switch q.Type {
	case model.QuestionTypeMultipleSelection:
		correct = sameSet(choicesOf(*submitted), choicesOf(q.Correct))
	case model.QuestionTypeFillBlank, model.QuestionTypeShortAnswer:
		correct = foldEqual(singleOf(*submitted), singleOf(q.Correct))
	default:
		// multiple_choice, true_false and the richer closed-option types
		// (matching, ordering, calculation, hotspot, code_execution) all reduce
		// to one identifier compared exactly.
		correct = exactEqual(singleOf(*submitted), singleOf(q.Correct))
	}

	if !correct {
		return Outcome{}
	}
	return Outcome{Correct: true, Points: q.Points}
}

// singleOf extracts the single comparable value of an answer.
func singleOf(a model.Answer) string {
	if a.Text != "" {
		return a.Text
	}
	if len(a.Choices) == 1 {
		return a.Choices[0]
	}
	return ""
}

// choicesOf extracts the identifier set of an answer.
func choicesOf(a model.Answer) []string {
	if len(a.Choices) > 0 {
		return a.Choices
	}
	if a.Text != "" {
		return []string{a.Text}
	}
	return nil
}

func exactEqual(submitted, canonical string) bool {
	return submitted != "" && submitted == canonical
}

func foldEqual(submitted, canonical string) bool {
	s := strings.TrimSpace(submitted)
	return s != "" && strings.EqualFold(s, strings.TrimSpace(canonical))
}

func sameSet(submitted, canonical []string) bool {
	a := toSet(submitted)
	b := toSet(canonical)
	if len(a) == 0 || len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		if it == "" {
			continue
		}
		set[it] = struct{}{}
	}
	return set
}
