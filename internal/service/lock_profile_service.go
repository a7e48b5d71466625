package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/stemsi/exstem-proctor/internal/lockprofile"
	"github.com/stemsi/exstem-proctor/internal/repository"
)

// LockProfileService renders locked-browser profiles.
type LockProfileService struct {
	exams ExamReader
	urls  lockprofile.RuntimeURLs
}

// NewLockProfileService creates a new LockProfileService.
func NewLockProfileService(exams ExamReader, urls lockprofile.RuntimeURLs) *LockProfileService {
	return &LockProfileService{exams: exams, urls: urls}
}

// Render returns the encoded profile for examID and its attachment filename.
func (s *LockProfileService) Render(ctx context.Context, examID uuid.UUID) ([]byte, string, error) {
	exam, err := s.exams.GetDefinition(ctx, examID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, "", ErrExamNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("get exam: %w", err)
	}

	data, err := lockprofile.Encode(lockprofile.Render(examID, exam.Security, s.urls))
	if err != nil {
		return nil, "", err
	}
	return data, lockprofile.Filename(examID), nil
}
