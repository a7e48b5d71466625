package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
)

const (
	refreshInterval   = 15 * time.Second
	keepAliveInterval = 30 * time.Second
	refreshTimeout    = 5 * time.Second // prevent slow queries from blocking the SSE loop
)

// MonitorHandler serves the instructor's proctoring views.
type MonitorHandler struct {
	rdb        *redis.Client
	monitor    *service.MonitorService
	violations *service.ViolationService
	log        zerolog.Logger
}

func NewMonitorHandler(
	rdb *redis.Client,
	monitor *service.MonitorService,
	violations *service.ViolationService,
	log zerolog.Logger,
) *MonitorHandler {
	return &MonitorHandler{
		rdb:        rdb,
		monitor:    monitor,
		violations: violations,
		log:        log.With().Str("component", "monitor_handler").Logger(),
	}
}

// SecuritySummary godoc
// GET /api/v1/instructor/exams/:exam_id/security-summary
// Per-student violation counts. Lifecycle markers are not counted.
func (h *MonitorHandler) SecuritySummary(c *gin.Context) {
	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	summary, err := h.violations.Summary(c.Request.Context(), examID)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}
	if summary == nil {
		summary = []model.ViolationSummary{}
	}

	response.Success(c, http.StatusOK, gin.H{"students": summary})
}

// SessionViolations godoc
// GET /api/v1/instructor/sessions/:session_id/violations
// The stored violation log of one session in time order.
func (h *MonitorHandler) SessionViolations(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	events, err := h.violations.SessionLog(c.Request.Context(), sessionID)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}
	if events == nil {
		events = []model.ViolationEvent{}
	}

	response.Success(c, http.StatusOK, gin.H{"violations": events})
}

// MonitorExamSSE godoc
// GET /api/v1/instructor/exams/:exam_id/monitor
// Streams a snapshot, then live violation and session events, then periodic refreshes.
func (h *MonitorHandler) MonitorExamSSE(c *gin.Context) {
	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	reqCtx := c.Request.Context()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	snapCtx, cancel := context.WithTimeout(reqCtx, refreshTimeout)
	snapshot := h.monitor.Snapshot(snapCtx, examID)
	cancel()
	h.send(c, "snapshot", snapshot)

	channelName := config.CacheKey.ExamMonitorChannel(examID.String())
	pubsub := h.rdb.Subscribe(reqCtx, channelName)
	defer pubsub.Close()

	ch := pubsub.Channel()

	keepAliveTicker := time.NewTicker(keepAliveInterval)
	defer keepAliveTicker.Stop()

	refreshTicker := time.NewTicker(refreshInterval)
	defer refreshTicker.Stop()

	h.log.Info().Str("exam_id", examID.String()).Msg("Instructor attached to live monitor")

	pingPayload, _ := json.Marshal(map[string]string{"type": "ping"})

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Str("exam_id", examID.String()).Msg("Instructor detached from live monitor")
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}
			// Forward raw JSON, no need to decode.
			c.Writer.Write([]byte("data: "))
			c.Writer.Write([]byte(msg.Payload))
			c.Writer.Write([]byte("\n\n"))
			c.Writer.Flush()

		case <-refreshTicker.C:
			h.send(c, "refresh", h.monitor.LiveSessions(examID))

		case <-keepAliveTicker.C:
			c.Writer.Write([]byte("data: "))
			c.Writer.Write(pingPayload)
			c.Writer.Write([]byte("\n\n"))
			c.Writer.Flush()
		}
	}
}

func (h *MonitorHandler) send(c *gin.Context, kind string, data any) {
	c.SSEvent("message", gin.H{"type": kind, "data": data})
	c.Writer.Flush()
}
