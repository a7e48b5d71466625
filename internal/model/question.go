package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// QuestionType enumerates the supported question formats.
type QuestionType string

const (
	QuestionTypeMultipleChoice    QuestionType = "multiple_choice"
	QuestionTypeTrueFalse         QuestionType = "true_false"
	QuestionTypeMultipleSelection QuestionType = "multiple_selection"
	QuestionTypeFillBlank         QuestionType = "fill_blank"
	QuestionTypeShortAnswer       QuestionType = "short_answer"
	QuestionTypeMatching          QuestionType = "matching"
	QuestionTypeOrdering          QuestionType = "ordering"
	QuestionTypeCalculation       QuestionType = "calculation"
	QuestionTypeHotspot           QuestionType = "hotspot"
	QuestionTypeCodeExecution     QuestionType = "code_execution"
	QuestionTypeLongAnswer        QuestionType = "long_answer"
	QuestionTypeFileUpload        QuestionType = "file_upload"
)

// questionTypeAliases maps legacy spellings stored by older exam authoring clients.
var questionTypeAliases = map[string]QuestionType{
	"multi_select": QuestionTypeMultipleSelection,
}

// ParseQuestionType normalizes a stored type name.
func ParseQuestionType(s string) (QuestionType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if alias, ok := questionTypeAliases[s]; ok {
		return alias, nil
	}
	t := QuestionType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown question type %q", s)
	}
	return t, nil
}

// Valid reports whether t is one of the known question types.
func (t QuestionType) Valid() bool {
	switch t {
	case QuestionTypeMultipleChoice, QuestionTypeTrueFalse, QuestionTypeMultipleSelection,
		QuestionTypeFillBlank, QuestionTypeShortAnswer, QuestionTypeMatching,
		QuestionTypeOrdering, QuestionTypeCalculation, QuestionTypeHotspot,
		QuestionTypeCodeExecution, QuestionTypeLongAnswer, QuestionTypeFileUpload:
		return true
	}
	return false
}

// AutoGradable reports whether answers of this type can be scored without a human.
func (t QuestionType) AutoGradable() bool {
	return t != QuestionTypeLongAnswer && t != QuestionTypeFileUpload
}

// Question is a single exam question with its canonical answer.
type Question struct {
	ID       uuid.UUID       `json:"id"`
	ExamID   uuid.UUID       `json:"exam_id"`
	Type     QuestionType    `json:"type"`
	Points   int             `json:"points"`
	Correct  Answer          `json:"correct_answer"`
	Options  json.RawMessage `json:"options,omitempty"`
	OrderNum int             `json:"order_num"`
}

// Answer holds either a single identifier/text or a set of identifiers.
// On the wire it is a JSON string or a JSON array of strings.
type Answer struct {
	Text    string
	Choices []string
}

// TextAnswer builds a single-value answer.
func TextAnswer(s string) Answer { return Answer{Text: s} }

// ChoiceAnswer builds a set answer.
func ChoiceAnswer(choices ...string) Answer { return Answer{Choices: choices} }

// IsEmpty reports whether nothing was submitted.
func (a Answer) IsEmpty() bool {
	if len(a.Choices) > 0 {
		for _, c := range a.Choices {
			if strings.TrimSpace(c) != "" {
				return false
			}
		}
		return true
	}
	return strings.TrimSpace(a.Text) == ""
}

// MarshalJSON implements json.Marshaler.
func (a Answer) MarshalJSON() ([]byte, error) {
	if a.Choices != nil {
		return json.Marshal(a.Choices)
	}
	return json.Marshal(a.Text)
}

// UnmarshalJSON implements json.Unmarshaler.
func (a *Answer) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*a = Answer{}
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		return nil
	case data[0] == '[':
		var choices []string
		if err := json.Unmarshal(data, &choices); err != nil {
			return fmt.Errorf("answer choices: %w", err)
		}
		if choices == nil {
			choices = []string{}
		}
		a.Choices = choices
		return nil
	case data[0] == '"':
		return json.Unmarshal(data, &a.Text)
	case bytes.Equal(data, []byte("true")), bytes.Equal(data, []byte("false")):
		a.Text = string(data)
		return nil
	}
	return fmt.Errorf("answer must be a string or an array of strings")
}

// PublicQuestion is a question as shown to a student: no answer key.
type PublicQuestion struct {
	ID       uuid.UUID       `json:"id"`
	Type     QuestionType    `json:"type"`
	Points   int             `json:"points"`
	Options  json.RawMessage `json:"options,omitempty"`
	OrderNum int             `json:"order_num"`
}

// Public strips the answer key.
func (q Question) Public() PublicQuestion {
	return PublicQuestion{ID: q.ID, Type: q.Type, Points: q.Points, Options: q.Options, OrderNum: q.OrderNum}
}
