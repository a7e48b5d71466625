package websocket

import (
	"github.com/stemsi/exstem-proctor/internal/integrity"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAutosave Action = "autosave"
	ActionSignal   Action = "signal"
	ActionViewport Action = "viewport"
	ActionFrame    Action = "frame"
	ActionSubmit   Action = "submit"
	ActionPing     Action = "ping"
)

// RequestPayload is the single envelope for every client message. Only the
// fields relevant to Action are read.
type RequestPayload struct {
	Action Action `json:"action"`

	// autosave
	QID    string       `json:"q_id,omitempty"`
	Answer model.Answer `json:"answer"`

	// signal
	Signal *integrity.RawSignal `json:"signal,omitempty"`

	// viewport
	Viewport *ViewportPayload `json:"viewport,omitempty"`

	// frame; Data is base64 on the wire
	Frame *FramePayload `json:"frame,omitempty"`

	// submit
	Confirm bool `json:"confirm,omitempty"`
}

type ViewportPayload struct {
	OuterWidth  int `json:"outer_width"`
	InnerWidth  int `json:"inner_width"`
	OuterHeight int `json:"outer_height"`
	InnerHeight int `json:"inner_height"`
}

type FramePayload struct {
	Data        []byte `json:"data"`
	ContentType string `json:"content_type"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError   Event = "error"
	EventSuccess Event = "success"
	EventTick    Event = "tick"
	EventGraded  Event = "graded"
	EventAborted Event = "aborted"
	EventPong    Event = "pong"
)

type SuccessResponse struct {
	Event  Event  `json:"event"`
	Action Action `json:"action"`
	Status string `json:"status"`
}

type TickResponse struct {
	Event            Event   `json:"event"`
	RemainingSeconds float64 `json:"remaining_seconds"`
	ViolationCount   int     `json:"violation_count"`
}

type GradedResponse struct {
	Event  Event                `json:"event"`
	Result *model.GradingResult `json:"result"`
}

type AbortedResponse struct {
	Event  Event  `json:"event"`
	Reason string `json:"reason"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
