package service

import "errors"

var (
	ErrExamNotFound    = errors.New("exam not found")
	ErrFrameTooLarge   = errors.New("capture frame too large")
	ErrOpticalDisabled = errors.New("optical grading is not configured")
	ErrNotOpticalExam  = errors.New("exam is not an optical form exam")
	ErrNoQuestions     = errors.New("exam has no questions")
)
