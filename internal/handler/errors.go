package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-proctor/internal/grading"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/session"
)

type errMapping struct {
	err    error
	status int
	code   response.ErrCode
}

var errMappings = []errMapping{
	{session.ErrSessionNotFound, http.StatusNotFound, response.ErrSessionNotFound},
	{session.ErrNotOwner, http.StatusForbidden, response.ErrForbidden},
	{session.ErrAccessDenied, http.StatusForbidden, response.ErrNotEnrolled},
	{session.ErrAlreadySubmitted, http.StatusConflict, response.ErrAlreadySubmitted},
	{session.ErrConfirmationRequired, http.StatusBadRequest, response.ErrConfirmationRequired},
	{session.ErrSessionNotActive, http.StatusConflict, response.ErrSessionNotActive},
	{session.ErrAnswersFrozen, http.StatusConflict, response.ErrAnswersFrozen},
	{session.ErrExamClosed, http.StatusForbidden, response.ErrExamNotAvailable},
	{session.ErrUnknownQuestion, http.StatusBadRequest, response.ErrUnknownQuestion},
	{session.ErrResultNotSaved, http.StatusServiceUnavailable, response.ErrResultNotSaved},
	{session.ErrQuestionsUnavailable, http.StatusServiceUnavailable, response.ErrServiceUnavailable},
	{service.ErrExamNotFound, http.StatusNotFound, response.ErrNotFound},
	{service.ErrNoQuestions, http.StatusConflict, response.ErrNoQuestions},
	{service.ErrFrameTooLarge, http.StatusRequestEntityTooLarge, response.ErrFileTooLarge},
	{service.ErrOpticalDisabled, http.StatusServiceUnavailable, response.ErrOpticalDisabled},
	{service.ErrNotOpticalExam, http.StatusConflict, response.ErrNotOpticalExam},
	{grading.ErrDetectorUnavailable, http.StatusBadGateway, response.ErrDetectorUnavailable},
}

// statusFor maps a service error to an HTTP status and error code.
func statusFor(err error) (int, response.ErrCode) {
	for _, m := range errMappings {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, response.ErrInternal
}

// failFromError writes the response for err and logs unexpected failures.
func failFromError(c *gin.Context, log zerolog.Logger, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).
			Str("path", c.FullPath()).
			Str("request_id", response.RequestID(c)).
			Msg("Request failed")
	}
	response.Fail(c, status, code)
}
