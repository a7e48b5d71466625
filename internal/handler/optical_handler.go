package handler

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/validator"
)

// maxSheetBytes caps an uploaded answer-sheet scan.
const maxSheetBytes = 10 << 20

// OpticalHandler grades paper answer sheets.
type OpticalHandler struct {
	optical *service.OpticalService
	log     zerolog.Logger
}

// NewOpticalHandler creates a new OpticalHandler.
func NewOpticalHandler(optical *service.OpticalService, log zerolog.Logger) *OpticalHandler {
	return &OpticalHandler{
		optical: optical,
		log:     log.With().Str("component", "optical_handler").Logger(),
	}
}

// GradeSheet godoc
// POST /api/v1/instructor/exams/:exam_id/optical
// Accepts either a multipart scan ("sheet" file plus "user_id") or a JSON body
// of answers already read off the sheet.
func (h *OpticalHandler) GradeSheet(c *gin.Context) {
	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var result *model.GradingResult
	if c.ContentType() == gin.MIMEMultipartPOSTForm {
		result, err = h.gradeScan(c, examID)
	} else {
		var req model.OpticalAnswersRequest
		if fields := validator.Bind(c, &req); fields != nil {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
			return
		}
		result, err = h.optical.GradeAnswers(c.Request.Context(), examID, req.UserID, req.Answers)
	}
	if c.IsAborted() || c.Writer.Written() {
		return
	}
	if err != nil {
		failFromError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"result": result})
}

// gradeScan writes its own response for malformed uploads.
func (h *OpticalHandler) gradeScan(c *gin.Context, examID uuid.UUID) (*model.GradingResult, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSheetBytes)

	userID, err := strconv.Atoi(c.PostForm("user_id"))
	if err != nil || userID <= 0 {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, map[string]string{"user_id": "user_id must be a positive integer"})
		return nil, nil
	}

	file, _, err := c.Request.FormFile("sheet")
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrFileRequired)
		return nil, nil
	}
	defer file.Close()

	image, err := io.ReadAll(file)
	if err != nil {
		response.Fail(c, http.StatusRequestEntityTooLarge, response.ErrFileTooLarge)
		return nil, nil
	}

	return h.optical.Grade(c.Request.Context(), examID, userID, image)
}
