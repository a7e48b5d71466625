package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/handler"
	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	StudentPortal *handler.StudentPortalHandler
	Exam          *handler.ExamHandler
	WS            *handler.WSHandler
	Monitor       *handler.MonitorHandler
	Optical       *handler.OpticalHandler
	System        *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID", "Content-Disposition"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	router.GET("/health", handlers.System.Health)

	// ─── 1. Exam Group (Public) ────────────────────────────────────────
	// The lockdown browser fetches its profile and the exam page reports
	// violations before any student token exists.
	examAPI := router.Group("/api/v1/exams")
	{
		examAPI.GET("/:exam_id/seb-config", middleware.NoStore(), handlers.Exam.SEBConfig)
		examAPI.POST("/:exam_id/security-violation", handlers.Exam.LogViolation)
	}

	// ─── 2. Student Group (JWT) ────────────────────────────────────────
	studentAPI := router.Group("/api/v1/student")
	studentAPI.Use(
		middleware.RequireStudentJWT(authService),
		middleware.NoStore(),
	)
	{
		studentAPI.POST("/exams/:exam_id/sessions", handlers.StudentPortal.OpenSession)
		studentAPI.GET("/sessions/:session_id", handlers.StudentPortal.GetSession)
		studentAPI.PUT("/sessions/:session_id/answers/:question_id", handlers.StudentPortal.SaveAnswer)
		studentAPI.POST("/sessions/:session_id/submit", handlers.StudentPortal.SubmitSession)
	}

	// ─── 3. WebSocket Group (Student WS Auth) ──────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireStudentWSAuth(authService))
	{
		ws.GET("/student/sessions/:session_id/stream", handlers.WS.SessionStream)
	}

	// ─── 4. Instructor Group (JWT) ─────────────────────────────────────
	instructorAPI := router.Group("/api/v1/instructor")
	instructorAPI.Use(middleware.RequireInstructorJWT(authService))
	{
		instructorAPI.GET("/exams/:exam_id/security-summary", handlers.Monitor.SecuritySummary)
		instructorAPI.GET("/exams/:exam_id/monitor", handlers.Monitor.MonitorExamSSE)
		instructorAPI.GET("/sessions/:session_id/violations", handlers.Monitor.SessionViolations)
		instructorAPI.POST("/exams/:exam_id/optical", handlers.Optical.GradeSheet)

		// System Monitoring
		instructorAPI.GET("/system/metrics", handlers.System.SystemMetricsSSE)
		instructorAPI.GET("/system/metrics/snapshot", handlers.System.SystemMetrics)
	}

	return router
}
