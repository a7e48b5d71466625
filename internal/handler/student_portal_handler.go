package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/validator"
)

// StudentPortalHandler handles student-facing exam session endpoints.
type StudentPortalHandler struct {
	sessionService *service.ExamSessionService
	log            zerolog.Logger
}

// NewStudentPortalHandler creates a new StudentPortalHandler.
func NewStudentPortalHandler(sessionService *service.ExamSessionService, log zerolog.Logger) *StudentPortalHandler {
	return &StudentPortalHandler{
		sessionService: sessionService,
		log:            log.With().Str("component", "student_portal_handler").Logger(),
	}
}

// OpenSession godoc
// POST /api/v1/student/exams/:exam_id/sessions
// Starts the exam (idempotent while the session is live).
func (h *StudentPortalHandler) OpenSession(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	opened, err := h.sessionService.Open(c.Request.Context(), examID, claims.UserID)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}

	status := http.StatusCreated
	if opened.Resumed {
		status = http.StatusOK
	}
	response.Success(c, status, opened)
}

// GetSession godoc
// GET /api/v1/student/sessions/:session_id
// Returns answers and remaining time, or the result once graded. Covers page reloads.
func (h *StudentPortalHandler) GetSession(c *gin.Context) {
	claims, sessionID, ok := sessionParams(c)
	if !ok {
		return
	}

	view, err := h.sessionService.State(c.Request.Context(), sessionID, claims.UserID)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, view)
}

// SaveAnswer godoc
// PUT /api/v1/student/sessions/:session_id/answers/:question_id
// Autosaves one answer. An empty string or array clears it.
func (h *StudentPortalHandler) SaveAnswer(c *gin.Context) {
	claims, sessionID, ok := sessionParams(c)
	if !ok {
		return
	}

	questionID, err := uuid.Parse(c.Param("question_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.SaveAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.sessionService.RecordAnswer(c.Request.Context(), sessionID, claims.UserID, questionID, req.Answer); err != nil {
		failFromError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"status": "saved"})
}

// SubmitSession godoc
// POST /api/v1/student/sessions/:session_id/submit
// Grades the session. The body must carry {"confirm": true}.
func (h *StudentPortalHandler) SubmitSession(c *gin.Context) {
	claims, sessionID, ok := sessionParams(c)
	if !ok {
		return
	}

	var req model.SubmitRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	result, err := h.sessionService.Submit(c.Request.Context(), sessionID, claims.UserID, req.Confirm)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"result": result})
}

// sessionParams reads the caller and the :session_id param, writing the error response on failure.
func sessionParams(c *gin.Context) (*service.Claims, uuid.UUID, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return nil, uuid.Nil, false
	}

	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return nil, uuid.Nil, false
	}
	return claims, sessionID, true
}
