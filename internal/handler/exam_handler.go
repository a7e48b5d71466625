package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-proctor/internal/lockprofile"
	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/validator"
)

// ExamHandler serves the exam-scoped endpoints the locked browser calls
// directly: the lock profile download and violation reports.
type ExamHandler struct {
	profiles   *service.LockProfileService
	violations *service.ViolationService
	limiter    *middleware.RateLimiter
	log        zerolog.Logger
}

// NewExamHandler creates a new ExamHandler. limiter may be nil.
func NewExamHandler(profiles *service.LockProfileService, violations *service.ViolationService, limiter *middleware.RateLimiter, log zerolog.Logger) *ExamHandler {
	return &ExamHandler{
		profiles:   profiles,
		violations: violations,
		limiter:    limiter,
		log:        log.With().Str("component", "exam_handler").Logger(),
	}
}

// SEBConfig godoc
// GET /api/v1/exams/:exam_id/seb-config
// Downloads the locked-browser profile for the exam.
func (h *ExamHandler) SEBConfig(c *gin.Context) {
	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	data, filename, err := h.profiles.Render(c.Request.Context(), examID)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, lockprofile.ContentType, data)
}

// LogViolation godoc
// POST /api/v1/exams/:exam_id/security-violation
// Fire-and-forget: always answers 202 so a reporting client never stalls the exam.
func (h *ExamHandler) LogViolation(c *gin.Context) {
	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Accepted(c, gin.H{"logged": false})
		return
	}

	if !h.limiter.Allow(c.Request.Context(), c.ClientIP()) {
		response.Accepted(c, gin.H{"logged": false})
		return
	}

	var req model.LogViolationRequest
	if fields := validator.Bind(c, &req); fields != nil {
		h.log.Debug().Interface("fields", fields).Msg("Rejected violation report")
		response.Accepted(c, gin.H{"logged": false})
		return
	}

	logged := h.violations.Log(examID, req, service.ReportContext{
		ClientIP:  c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	response.Accepted(c, gin.H{"logged": logged})
}
