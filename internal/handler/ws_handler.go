package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-proctor/internal/capture"
	"github.com/stemsi/exstem-proctor/internal/integrity"
	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/session"
	ws "github.com/stemsi/exstem-proctor/internal/websocket"
)

const (
	tickInterval = time.Second
	// maxMessageBytes leaves room for a base64 camera frame.
	maxMessageBytes = 4 << 20
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams a live exam session to the student's browser.
type WSHandler struct {
	sessionService *service.ExamSessionService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(sessionService *service.ExamSessionService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		sessionService: sessionService,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// SessionStream godoc
// WS /ws/v1/student/sessions/:session_id/stream
// Carries autosaves, integrity signals and camera frames up, and the countdown
// and final result down.
func (h *WSHandler) SessionStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	// Reject before upgrading so the client gets a plain HTTP error.
	o, err := h.sessionService.Live(sessionID, claims.UserID)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxMessageBytes)

	w := ws.NewWriter(conn)
	wsLog := h.log.With().
		Int("user_id", claims.UserID).
		Str("session_id", sessionID.String()).
		Logger()
	wsLog.Info().Msg("Student connected")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.tick(ctx, w, o, wsLog)

	for {
		var msg ws.RequestPayload
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		if done := h.dispatch(ctx, w, wsLog, sessionID, claims.UserID, &msg); done {
			return
		}
	}
}

// dispatch handles one client message and reports whether the stream should end.
func (h *WSHandler) dispatch(ctx context.Context, w *ws.Writer, log zerolog.Logger, sessionID uuid.UUID, userID int, msg *ws.RequestPayload) bool {
	switch msg.Action {
	case ws.ActionAutosave:
		questionID, err := uuid.Parse(msg.QID)
		if err != nil {
			w.WriteError(string(response.ErrInvalidID), "invalid q_id format")
			return false
		}
		if err := h.sessionService.RecordAnswer(ctx, sessionID, userID, questionID, msg.Answer); err != nil {
			return h.writeErr(w, log, err)
		}
		w.WriteTyped(ws.SuccessResponse{Event: ws.EventSuccess, Action: msg.Action, Status: "saved"})

	case ws.ActionSignal:
		if msg.Signal == nil {
			w.WriteError(string(response.ErrInvalidPayload), "signal is required")
			return false
		}
		if _, err := h.sessionService.HandleSignal(sessionID, userID, *msg.Signal); err != nil {
			return h.writeErr(w, log, err)
		}

	case ws.ActionViewport:
		if msg.Viewport == nil {
			w.WriteError(string(response.ErrInvalidPayload), "viewport is required")
			return false
		}
		v := integrity.ViewportSignal{
			OuterWidth:  msg.Viewport.OuterWidth,
			InnerWidth:  msg.Viewport.InnerWidth,
			OuterHeight: msg.Viewport.OuterHeight,
			InnerHeight: msg.Viewport.InnerHeight,
		}
		if err := h.sessionService.ReportViewport(sessionID, userID, v); err != nil {
			return h.writeErr(w, log, err)
		}

	case ws.ActionFrame:
		if msg.Frame == nil || len(msg.Frame.Data) == 0 {
			w.WriteError(string(response.ErrInvalidPayload), "frame data is required")
			return false
		}
		frame := capture.Frame{Data: msg.Frame.Data, ContentType: msg.Frame.ContentType}
		if err := h.sessionService.PushFrame(sessionID, userID, frame); err != nil {
			return h.writeErr(w, log, err)
		}

	case ws.ActionSubmit:
		result, err := h.sessionService.Submit(ctx, sessionID, userID, msg.Confirm)
		if err != nil {
			return h.writeErr(w, log, err)
		}
		w.WriteTyped(ws.GradedResponse{Event: ws.EventGraded, Result: result})
		w.Close("submitted")
		return true

	case ws.ActionPing:
		w.WriteTyped(ws.PongResponse{Event: ws.EventPong})

	default:
		log.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
		w.WriteError(string(response.ErrInvalidPayload), "unknown action: "+string(msg.Action))
	}
	return false
}

// writeErr reports err to the client. The stream ends once the session is gone.
func (h *WSHandler) writeErr(w *ws.Writer, log zerolog.Logger, err error) bool {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Msg("Stream action failed")
	}
	w.WriteError(string(code), response.GetMessage(code))
	return errors.Is(err, session.ErrSessionNotFound)
}

// tick pushes the countdown every second and the final outcome once the
// session leaves Active by expiry or abort.
func (h *WSHandler) tick(ctx context.Context, w *ws.Writer, o *session.Orchestrator, log zerolog.Logger) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		switch o.State() {
		case model.SessionStateActive:
			w.WriteTyped(ws.TickResponse{
				Event:            ws.EventTick,
				RemainingSeconds: o.Remaining().Seconds(),
				ViolationCount:   o.ViolationCount(),
			})
		case model.SessionStateExpired:
			log.Info().Msg("Session expired, sending result")
			w.WriteTyped(ws.GradedResponse{Event: ws.EventGraded, Result: o.Result()})
			w.Close("expired")
			return
		case model.SessionStateAborted:
			w.WriteTyped(ws.AbortedResponse{Event: ws.EventAborted, Reason: o.AbortReason()})
			w.Close("aborted")
			return
		case model.SessionStateSubmitted:
			// The read loop answers its own submit.
			return
		}
	}
}
