package session

import "errors"

// Rejections caused by the caller. No state changes when one is returned.
var (
	ErrAlreadySubmitted     = errors.New("session already submitted")
	ErrNotOwner             = errors.New("session belongs to another user")
	ErrConfirmationRequired = errors.New("submission must be confirmed")
	ErrSessionNotActive     = errors.New("session is not active")
	ErrAnswersFrozen        = errors.New("answers are frozen")
	ErrExamClosed           = errors.New("exam is outside its scheduled window")
	ErrAccessDenied         = errors.New("user is not enrolled in this exam")
	ErrUnknownQuestion      = errors.New("question is not part of this exam")
	ErrSessionNotFound      = errors.New("session not found")
)

// ErrQuestionsUnavailable wraps question repository failures on read paths.
var ErrQuestionsUnavailable = errors.New("questions unavailable")

// ErrResultNotSaved means grading ran but the result store rejected it. The
// session keeps its frozen answers and the caller should retry the submission.
var ErrResultNotSaved = errors.New("grading result not saved")

// IsUserError reports whether err is a caller-caused rejection.
func IsUserError(err error) bool {
	for _, target := range []error{
		ErrAlreadySubmitted, ErrNotOwner, ErrConfirmationRequired, ErrSessionNotActive,
		ErrAnswersFrozen, ErrExamClosed, ErrAccessDenied, ErrUnknownQuestion, ErrSessionNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
