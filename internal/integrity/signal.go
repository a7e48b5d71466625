// Package integrity classifies raw client signals into violation events.
//
// Classification is pure and platform-independent. Whatever produces the signals
// (browser listeners relayed over the exam stream, a locked browser's hooks, a
// proctoring camera) only has to build the Signal variants defined here.
package integrity

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownSignal is returned by DecodeSignal for signal types outside the taxonomy.
var ErrUnknownSignal = errors.New("unknown signal")

// Signal is one raw observation from the exam client.
type Signal interface {
	signalType() string
}

// ClipboardAction distinguishes clipboard events.
type ClipboardAction string

const (
	ClipboardCopy  ClipboardAction = "copy"
	ClipboardCut   ClipboardAction = "cut"
	ClipboardPaste ClipboardAction = "paste"
)

// ClipboardSignal is a copy, cut or paste attempt.
type ClipboardSignal struct {
	Action    ClipboardAction
	Selection string
}

// ContextMenuSignal is a right-click / context-menu invocation.
type ContextMenuSignal struct{}

// KeySignal is a key press with its modifier state.
type KeySignal struct {
	Key   string
	Ctrl  bool
	Shift bool
	Alt   bool
	Meta  bool
}

// ViewportSignal is a window measurement; a large outer/inner gap suggests a docked inspection panel.
type ViewportSignal struct {
	OuterWidth  int
	InnerWidth  int
	OuterHeight int
	InnerHeight int
}

// VisibilitySignal is a document visibility transition.
type VisibilitySignal struct {
	Hidden bool
}

// FocusSignal is a window focus transition.
type FocusSignal struct {
	Focused bool
}

// PrintSignal is a print dialog being opened.
type PrintSignal struct{}

// FaceSignal is a face count reported by the proctoring camera.
type FaceSignal struct {
	Count int
}

// LockedBrowserSignal reports a locked-browser integrity failure (e.g. exam key mismatch).
type LockedBrowserSignal struct {
	Reason string
}

func (ClipboardSignal) signalType() string     { return "clipboard" }
func (ContextMenuSignal) signalType() string   { return "contextmenu" }
func (KeySignal) signalType() string           { return "keydown" }
func (ViewportSignal) signalType() string      { return "viewport" }
func (VisibilitySignal) signalType() string    { return "visibilitychange" }
func (FocusSignal) signalType() string         { return "focus" }
func (PrintSignal) signalType() string         { return "beforeprint" }
func (FaceSignal) signalType() string          { return "faces" }
func (LockedBrowserSignal) signalType() string { return "seb" }

// RawSignal is the wire form of a signal sent by the exam client.
type RawSignal struct {
	Type        string `json:"type"`
	Key         string `json:"key,omitempty"`
	Ctrl        bool   `json:"ctrl,omitempty"`
	Shift       bool   `json:"shift,omitempty"`
	Alt         bool   `json:"alt,omitempty"`
	Meta        bool   `json:"meta,omitempty"`
	Selection   string `json:"selection,omitempty"`
	Hidden      bool   `json:"hidden,omitempty"`
	OuterWidth  int    `json:"outer_width,omitempty"`
	InnerWidth  int    `json:"inner_width,omitempty"`
	OuterHeight int    `json:"outer_height,omitempty"`
	InnerHeight int    `json:"inner_height,omitempty"`
	Faces       int    `json:"faces,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// DecodeSignal converts a wire message into a Signal.
func DecodeSignal(raw RawSignal) (Signal, error) {
	switch strings.ToLower(strings.TrimSpace(raw.Type)) {
	case "copy":
		return ClipboardSignal{Action: ClipboardCopy, Selection: raw.Selection}, nil
	case "cut":
		return ClipboardSignal{Action: ClipboardCut, Selection: raw.Selection}, nil
	case "paste":
		return ClipboardSignal{Action: ClipboardPaste}, nil
	case "contextmenu":
		return ContextMenuSignal{}, nil
	case "keydown":
		return KeySignal{Key: raw.Key, Ctrl: raw.Ctrl, Shift: raw.Shift, Alt: raw.Alt, Meta: raw.Meta}, nil
	case "resize", "viewport":
		return ViewportSignal{
			OuterWidth: raw.OuterWidth, InnerWidth: raw.InnerWidth,
			OuterHeight: raw.OuterHeight, InnerHeight: raw.InnerHeight,
		}, nil
	case "visibilitychange":
		return VisibilitySignal{Hidden: raw.Hidden}, nil
	case "blur":
		return FocusSignal{Focused: false}, nil
	case "focus":
		return FocusSignal{Focused: true}, nil
	case "beforeprint", "print":
		return PrintSignal{}, nil
	case "faces":
		return FaceSignal{Count: raw.Faces}, nil
	case "seb":
		return LockedBrowserSignal{Reason: raw.Reason}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownSignal, raw.Type)
}
