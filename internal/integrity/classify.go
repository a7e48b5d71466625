package integrity

import (
	"strconv"
	"strings"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// PanelThreshold is the outer/inner size gap, in pixels, treated as an open inspection panel.
const PanelThreshold = 160

// Classification is the violation kind a signal maps to, plus signal-specific metadata.
type Classification struct {
	Kind     model.ViolationKind
	Metadata map[string]string
}

// Classify maps a signal to exactly one violation kind. It returns false for signals
// that are not suspicious (ordinary key presses, a normal viewport, one face, nil).
func Classify(sig Signal) (Classification, bool) {
	switch s := sig.(type) {
	case ClipboardSignal:
		return classifyClipboard(s), true
	case ContextMenuSignal:
		return Classification{Kind: model.ViolationRightClick}, true
	case KeySignal:
		return classifyKey(s)
	case ViewportSignal:
		if !PanelOpen(s) {
			return Classification{}, false
		}
		return Classification{
			Kind:     model.ViolationDevtoolsOpen,
			Metadata: map[string]string{"method": "size_detection"},
		}, true
	case VisibilitySignal:
		if s.Hidden {
			return Classification{Kind: model.ViolationTabHidden}, true
		}
		return Classification{Kind: model.ViolationTabVisible}, true
	case FocusSignal:
		if s.Focused {
			return Classification{Kind: model.ViolationWindowFocus}, true
		}
		return Classification{Kind: model.ViolationWindowBlur}, true
	case PrintSignal:
		return Classification{
			Kind:     model.ViolationScreenshotAttempt,
			Metadata: map[string]string{"action": "print_dialog"},
		}, true
	case FaceSignal:
		switch {
		case s.Count == 0:
			return Classification{Kind: model.ViolationNoFace}, true
		case s.Count > 1:
			return Classification{
				Kind:     model.ViolationMultipleFaces,
				Metadata: map[string]string{"faces": strconv.Itoa(s.Count)},
			}, true
		}
		return Classification{}, false
	case LockedBrowserSignal:
		c := Classification{Kind: model.ViolationSEB}
		if s.Reason != "" {
			c.Metadata = map[string]string{"reason": s.Reason}
		}
		return c, true
	}
	return Classification{}, false
}

// PanelOpen applies the inspection-panel size heuristic.
func PanelOpen(v ViewportSignal) bool {
	return v.OuterWidth-v.InnerWidth > PanelThreshold || v.OuterHeight-v.InnerHeight > PanelThreshold
}

func classifyClipboard(s ClipboardSignal) Classification {
	switch s.Action {
	case ClipboardPaste:
		return Classification{Kind: model.ViolationPasteAttempt}
	case ClipboardCut:
		return Classification{Kind: model.ViolationCopyAttempt, Metadata: map[string]string{"action": "cut"}}
	}
	c := Classification{Kind: model.ViolationCopyAttempt}
	if sel := truncate(s.Selection, 50); sel != "" {
		c.Metadata = map[string]string{"selection": sel}
	}
	return c
}

// classifyKey checks the most specific combinations first so that Ctrl+Shift+S is a
// screenshot attempt rather than a plain Ctrl+S save shortcut.
func classifyKey(s KeySignal) (Classification, bool) {
	key := strings.ToLower(s.Key)

	switch {
	case key == "f12",
		s.Ctrl && s.Shift && (key == "i" || key == "j" || key == "c"),
		s.Ctrl && key == "u":
		return Classification{
			Kind:     model.ViolationDevtoolsOpen,
			Metadata: map[string]string{"key": comboName(s)},
		}, true
	case key == "printscreen":
		return Classification{Kind: model.ViolationScreenshotAttempt}, true
	case s.Ctrl && s.Shift && key == "s":
		return Classification{
			Kind:     model.ViolationScreenshotAttempt,
			Metadata: map[string]string{"action": "ctrl+shift+s"},
		}, true
	case s.Ctrl && key == "p":
		return Classification{
			Kind:     model.ViolationScreenshotAttempt,
			Metadata: map[string]string{"action": "print"},
		}, true
	case s.Ctrl && key == "s":
		return Classification{
			Kind:     model.ViolationKeyboardShortcut,
			Metadata: map[string]string{"key": "Ctrl+S"},
		}, true
	}
	return Classification{}, false
}

func comboName(s KeySignal) string {
	var parts []string
	if s.Ctrl {
		parts = append(parts, "Ctrl")
	}
	if s.Shift {
		parts = append(parts, "Shift")
	}
	if s.Alt {
		parts = append(parts, "Alt")
	}
	if s.Meta {
		parts = append(parts, "Meta")
	}
	key := s.Key
	if len(key) == 1 {
		key = strings.ToUpper(key)
	}
	return strings.Join(append(parts, key), "+")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
