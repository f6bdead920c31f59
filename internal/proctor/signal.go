package proctor

import "strings"

// SignalKind is the closed set of raw client events the monitor understands.
type SignalKind string

const (
	SignalVisibilityHidden  SignalKind = "visibility_hidden"
	SignalVisibilityVisible SignalKind = "visibility_visible"
	SignalBlur              SignalKind = "blur"
	SignalFocus             SignalKind = "focus"
	SignalFullscreenEnter   SignalKind = "fullscreen_enter"
	SignalFullscreenExit    SignalKind = "fullscreen_exit"
	SignalCopy              SignalKind = "copy"
	SignalCut               SignalKind = "cut"
	SignalPaste             SignalKind = "paste"
	SignalContextMenu       SignalKind = "context_menu"
	SignalKey               SignalKind = "key"
)

// Known reports whether k is one of the declared kinds.
func (k SignalKind) Known() bool {
	switch k {
	case SignalVisibilityHidden, SignalVisibilityVisible, SignalBlur, SignalFocus,
		SignalFullscreenEnter, SignalFullscreenExit, SignalCopy, SignalCut,
		SignalPaste, SignalContextMenu, SignalKey:
		return true
	}
	return false
}

// KeyCombo is a keydown with its modifier state. Key follows the DOM
// KeyboardEvent.key naming.
type KeyCombo struct {
	Key   string `json:"key"`
	Ctrl  bool   `json:"ctrl,omitempty"`
	Shift bool   `json:"shift,omitempty"`
	Alt   bool   `json:"alt,omitempty"`
	Meta  bool   `json:"meta,omitempty"`
}

// Signal is one event delivered through Controller.Dispatch. Key is only
// meaningful for SignalKey.
type Signal struct {
	Kind SignalKind `json:"kind"`
	Key  KeyCombo   `json:"key"`
}

// Verdict is the monitor's classification of a signal.
type Verdict struct {
	// Prevent asks the client to suppress the default browser action.
	Prevent bool
	// Counted marks a violation that feeds the escalator.
	Counted bool
	// Notice is a transient nudge shown without penalty.
	Notice string
	// Reason names the violation for warnings and reports.
	Reason string
}

// Violation reasons and nudges shown to the learner.
const (
	ReasonTabHidden      = "Tab switch detected"
	ReasonWindowBlur     = "Window lost focus"
	ReasonFullscreenExit = "Exited fullscreen mode"
	ReasonClipboard      = "Copy/paste is not allowed"
	ReasonDevTools       = "Developer tools access attempt"
	ReasonClipboardKey   = "Clipboard shortcut used"
	ReasonAltTab         = "Window switching (Alt+Tab) attempt"

	NoticeContextMenu = "Right-click is disabled during the exam"
	NoticeBlockedKey  = "This shortcut is disabled during the exam"
)

// keyRule is one deny-list entry.
type keyRule struct {
	match   func(k KeyCombo) bool
	counted bool
	reason  string
}

func letter(k KeyCombo) string { return strings.ToUpper(k.Key) }

func ctrlOrMeta(k KeyCombo) bool { return k.Ctrl || k.Meta }

// keyRules is the deny list, counted entries first.
var keyRules = []keyRule{
	{
		match:   func(k KeyCombo) bool { return k.Key == "F12" },
		counted: true, reason: ReasonDevTools,
	},
	{
		// Ctrl+Shift+I/J/C on Windows and Linux, Cmd+Opt+I/J/C on macOS.
		match: func(k KeyCombo) bool {
			l := letter(k)
			if l != "I" && l != "J" && l != "C" {
				return false
			}
			return (k.Ctrl && k.Shift) || (k.Meta && k.Alt)
		},
		counted: true, reason: ReasonDevTools,
	},
	{
		match: func(k KeyCombo) bool {
			l := letter(k)
			return ctrlOrMeta(k) && !k.Shift && !k.Alt && (l == "C" || l == "X" || l == "V")
		},
		counted: true, reason: ReasonClipboardKey,
	},
	{
		match:   func(k KeyCombo) bool { return k.Alt && k.Key == "Tab" },
		counted: true, reason: ReasonAltTab,
	},
	{
		// view-source, print, save
		match: func(k KeyCombo) bool {
			l := letter(k)
			return ctrlOrMeta(k) && (l == "U" || l == "P" || l == "S")
		},
	},
	{
		match: func(k KeyCombo) bool { return k.Key == "Tab" || k.Key == "Escape" },
	},
}

// classifyKey returns the verdict for a keydown, or an empty verdict when
// the combination is allowed.
func classifyKey(k KeyCombo) Verdict {
	for _, r := range keyRules {
		if !r.match(k) {
			continue
		}
		if r.counted {
			return Verdict{Prevent: true, Counted: true, Reason: r.reason}
		}
		return Verdict{Prevent: true, Notice: NoticeBlockedKey}
	}
	return Verdict{}
}

// Classify maps a signal to its verdict. Blur is classified as counted; the
// monitor debounces it before it reaches the escalator.
func Classify(sig Signal) Verdict {
	switch sig.Kind {
	case SignalVisibilityHidden:
		return Verdict{Counted: true, Reason: ReasonTabHidden}
	case SignalBlur:
		return Verdict{Counted: true, Reason: ReasonWindowBlur}
	case SignalFullscreenExit:
		return Verdict{Counted: true, Reason: ReasonFullscreenExit}
	case SignalCopy, SignalCut, SignalPaste:
		return Verdict{Prevent: true, Counted: true, Reason: ReasonClipboard}
	case SignalContextMenu:
		return Verdict{Prevent: true, Notice: NoticeContextMenu}
	case SignalKey:
		return classifyKey(sig.Key)
	default:
		return Verdict{}
	}
}
