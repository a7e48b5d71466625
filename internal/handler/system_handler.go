package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/response"
)

const (
	metricsInterval = 7 * time.Second
	healthTimeout   = 2 * time.Second
)

// DispatchStats reports the integrity event dispatcher's counters.
type DispatchStats interface {
	Delivered() uint64
	Dropped() uint64
}

// LiveCounter reports how many sessions are live on this instance.
type LiveCounter interface {
	Len() int
}

// SystemHandler serves health checks and streams engine metrics via SSE.
type SystemHandler struct {
	pool       *pgxpool.Pool
	rdb        *redis.Client
	dispatcher DispatchStats
	sessions   LiveCounter
	startTime  time.Time
	log        zerolog.Logger
}

func NewSystemHandler(pool *pgxpool.Pool, rdb *redis.Client, dispatcher DispatchStats, sessions LiveCounter, log zerolog.Logger) *SystemHandler {
	return &SystemHandler{
		pool:       pool,
		rdb:        rdb,
		dispatcher: dispatcher,
		sessions:   sessions,
		startTime:  time.Now(),
		log:        log.With().Str("component", "system_handler").Logger(),
	}
}

// Health godoc
// GET /health
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	checks := gin.H{"postgres": "ok", "redis": "ok"}
	healthy := true
	if err := h.pool.Ping(ctx); err != nil {
		checks["postgres"] = err.Error()
		healthy = false
	}
	if err := h.rdb.Ping(ctx).Err(); err != nil {
		checks["redis"] = err.Error()
		healthy = false
	}

	if !healthy {
		h.log.Warn().Interface("checks", checks).Msg("Health check failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "checks": checks})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "checks": checks})
}

// ---------- SSE Endpoint ----------

type systemMetrics struct {
	Timestamp int64  `json:"timestamp"`
	Uptime    string `json:"uptime"`

	// Go Application
	Goroutines int    `json:"goroutines"`
	HeapAlloc  uint64 `json:"heap_alloc"`
	HeapSys    uint64 `json:"heap_sys"`
	NumGC      uint32 `json:"num_gc"`
	GoVersion  string `json:"go_version"`
	NumCPU     int    `json:"num_cpu"`

	// Sessions
	LiveSessions int `json:"live_sessions"`

	// Integrity events
	EventsDelivered uint64 `json:"events_delivered"`
	EventsDropped   uint64 `json:"events_dropped"`

	// Worker Queues
	QueueViolations int64 `json:"queue_violations"`
	QueueCaptures   int64 `json:"queue_captures"`
	QueueAnswers    int64 `json:"queue_answers"`
}

// SystemMetricsSSE godoc
// GET /api/v1/instructor/system/metrics
func (h *SystemHandler) SystemMetricsSSE(c *gin.Context) {
	reqCtx := c.Request.Context()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	h.log.Info().Msg("Instructor connected to system metrics SSE")

	ticker := time.NewTicker(metricsInterval)
	defer ticker.Stop()

	// Send immediately on connect, then every tick
	h.writeMetrics(c)

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Msg("Instructor disconnected from system metrics SSE")
			return
		case <-ticker.C:
			h.writeMetrics(c)
		}
	}
}

// SystemMetrics godoc
// GET /api/v1/instructor/system/metrics/snapshot
func (h *SystemHandler) SystemMetrics(c *gin.Context) {
	response.Success(c, http.StatusOK, h.collect(c.Request.Context()))
}

func (h *SystemHandler) writeMetrics(c *gin.Context) {
	data, err := json.Marshal(h.collect(c.Request.Context()))
	if err != nil {
		return
	}
	c.Writer.Write([]byte("data: "))
	c.Writer.Write(data)
	c.Writer.Write([]byte("\n\n"))
	c.Writer.Flush()
}

func (h *SystemHandler) collect(ctx context.Context) systemMetrics {
	m := systemMetrics{
		Timestamp: time.Now().Unix(),
		Uptime:    formatDuration(time.Since(h.startTime)),
		GoVersion: runtime.Version(),
		NumCPU:    runtime.NumCPU(),
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	m.Goroutines = runtime.NumGoroutine()
	m.HeapAlloc = ms.HeapAlloc
	m.HeapSys = ms.Sys
	m.NumGC = ms.NumGC

	if h.sessions != nil {
		m.LiveSessions = h.sessions.Len()
	}
	if h.dispatcher != nil {
		m.EventsDelivered = h.dispatcher.Delivered()
		m.EventsDropped = h.dispatcher.Dropped()
	}

	// ── Worker Queues (pipelined LLEN) ──
	pipe := h.rdb.Pipeline()
	violationsCmd := pipe.LLen(ctx, config.WorkerKey.PersistViolationsQueue)
	capturesCmd := pipe.LLen(ctx, config.WorkerKey.PersistCapturesQueue)
	answersCmd := pipe.LLen(ctx, config.WorkerKey.PersistAnswersQueue)
	if _, err := pipe.Exec(ctx); err == nil {
		m.QueueViolations, _ = violationsCmd.Result()
		m.QueueCaptures, _ = capturesCmd.Result()
		m.QueueAnswers, _ = answersCmd.Result()
	}

	return m
}

// ---------- Helpers ----------

func formatDuration(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	return fmt.Sprintf("%dm %ds", minutes, seconds)
}
